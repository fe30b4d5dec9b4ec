package demangle

import (
	"fmt"
	"strings"
)

// Format renders the demangled representation of a node.
func Format(node *Node) string {
	if node == nil {
		return ""
	}
	switch node.Kind {
	case KindIdentifier, KindModule, KindBuiltinType:
		return node.Text
	case KindStructure, KindClass, KindEnum, KindProtocol, KindTypeAlias:
		if ctx := node.Context(); ctx != nil {
			return Format(ctx) + "." + node.Text
		}
		return node.Text
	case KindBoundGeneric:
		return formatBoundGeneric(node)
	case KindTuple:
		var elems []string
		for _, child := range node.Children {
			elems = append(elems, Format(child))
		}
		if node.Flags.Variadic && len(elems) > 0 {
			elems[len(elems)-1] += "..."
		}
		return "(" + strings.Join(elems, ", ") + ")"
	case KindTupleElement:
		if node.Text != "" {
			return node.Text + ": " + Format(node.Child(0))
		}
		return Format(node.Child(0))
	case KindArgumentTuple:
		var elems []string
		for _, child := range node.Children {
			elems = append(elems, Format(child))
		}
		return "(" + strings.Join(elems, ", ") + ")"
	case KindFunction, KindNoEscapeFunction, KindObjCBlock, KindCFunctionPointer, KindThinFunction:
		return formatFunction(node)
	case KindProtocolList:
		switch len(node.Children) {
		case 0:
			return "Any"
		case 1:
			return Format(node.Children[0])
		}
		var parts []string
		for _, child := range node.Children {
			parts = append(parts, Format(child))
		}
		return strings.Join(parts, " & ")
	case KindMetatype:
		return Format(node.Child(0)) + ".Type"
	case KindExistentialMeta:
		return "any " + Format(node.Child(0)) + ".Type"
	case KindGenericParam:
		return fmt.Sprintf("τ_%d_%d", node.Depth, node.Index)
	case KindDependentMember:
		return Format(node.Child(0)) + "." + node.Text
	case KindWeak:
		return "weak " + Format(node.Child(0))
	case KindUnowned:
		return "unowned " + Format(node.Child(0))
	case KindUnmanaged:
		return "unowned(unsafe) " + Format(node.Child(0))
	default:
		if len(node.Children) == 0 {
			return node.Text
		}
		var parts []string
		for _, child := range node.Children {
			parts = append(parts, Format(child))
		}
		if node.Text != "" {
			parts = append([]string{node.Text}, parts...)
		}
		return strings.Join(parts, " ")
	}
}

func formatBoundGeneric(node *Node) string {
	base := node.Child(0)
	var args []string
	if list := node.Child(1); list != nil {
		for _, child := range list.Children {
			args = append(args, Format(child))
		}
	}
	if ctx := base.Child(0); ctx != nil && ctx.Kind == KindModule && ctx.Text == StdlibModule {
		switch {
		case base.Text == "Optional" && len(args) == 1:
			return args[0] + "?"
		case base.Text == "Array" && len(args) == 1:
			return "[" + args[0] + "]"
		case base.Text == "Dictionary" && len(args) == 2:
			return "[" + args[0] + " : " + args[1] + "]"
		}
	}
	if len(args) == 0 {
		return Format(base)
	}
	return Format(base) + "<" + strings.Join(args, ", ") + ">"
}

func formatFunction(node *Node) string {
	var sb strings.Builder
	switch node.Kind {
	case KindObjCBlock:
		sb.WriteString("@convention(block) ")
	case KindCFunctionPointer:
		sb.WriteString("@convention(c) ")
	case KindThinFunction:
		sb.WriteString("@convention(thin) ")
	}
	sb.WriteString(Format(node.Child(0)))
	if node.Flags.Async {
		sb.WriteString(" async")
	}
	if node.Flags.Throws {
		sb.WriteString(" throws")
	}
	sb.WriteString(" -> ")
	sb.WriteString(Format(node.Child(1)))
	return sb.String()
}

// String implements fmt.Stringer for convenience.
func (n *Node) String() string {
	return Format(n)
}
