package typeref

import (
	"fmt"
	"strings"

	"github.com/blacktop/go-swift-reflection/swift/demangle"
)

func (tr *TypeRef) String() string {
	return tr.dump(false)
}

// Verbose renders tr like String and also prints the mangled name of every
// declaration.
func (tr *TypeRef) Verbose() string {
	return tr.dump(true)
}

func (tr *TypeRef) dump(verbose bool) string {
	p := printer{verbose: verbose}
	p.print(tr, 0)
	return p.sb.String()
}

type printer struct {
	sb      strings.Builder
	verbose bool
}

func (p *printer) open(indent int, header string) {
	if indent > 0 {
		p.sb.WriteByte('\n')
	}
	p.sb.WriteString(strings.Repeat("  ", indent))
	p.sb.WriteByte('(')
	p.sb.WriteString(header)
}

func (p *printer) print(tr *TypeRef, indent int) {
	if tr == nil {
		p.open(indent, "<<null>>)")
		return
	}
	switch tr.Kind {
	case Builtin:
		p.open(indent, "builtin "+p.declName(tr.MangledName))
	case Nominal:
		p.open(indent, declKind(tr.MangledName)+" "+p.declName(tr.MangledName))
		p.parent(tr, indent)
	case BoundGeneric:
		p.open(indent, "bound_generic_"+declKind(tr.MangledName)+" "+p.declName(tr.MangledName))
		for _, arg := range tr.Args {
			p.print(arg, indent+1)
		}
		p.parent(tr, indent)
	case Tuple:
		header := "tuple"
		if tr.Variadic {
			header += " variadic"
		}
		p.open(indent, header)
		for _, elem := range tr.Elements {
			p.print(elem, indent+1)
		}
	case Function:
		header := "function"
		if tr.Flags.Convention != ConventionSwift {
			header += " convention=" + tr.Flags.Convention.String()
		}
		if tr.Flags.Async {
			header += " async"
		}
		if tr.Flags.Throws {
			header += " throws"
		}
		if !tr.Flags.Escaping {
			header += " noescape"
		}
		p.open(indent, header)
		p.open(indent+1, "parameters")
		for _, arg := range tr.Args {
			p.print(arg, indent+2)
		}
		p.sb.WriteByte(')')
		p.open(indent+1, "result")
		p.print(tr.Result, indent+2)
		p.sb.WriteByte(')')
	case Protocol:
		name := tr.Module + "." + tr.Name
		if p.verbose {
			if mangled, err := ProtocolMangledName(tr); err == nil {
				name += " mangled=" + mangled
			}
		}
		p.open(indent, "protocol "+name)
	case ProtocolComposition:
		p.open(indent, "protocol_composition")
		for _, proto := range tr.Protocols {
			p.print(proto, indent+1)
		}
	case Metatype, ExistentialMetatype:
		p.open(indent, tr.Kind.String())
		p.print(tr.Instance, indent+1)
	case GenericTypeParameter:
		p.open(indent, fmt.Sprintf("generic_type_parameter depth=%d index=%d", tr.Depth, tr.Index))
	case DependentMember:
		p.open(indent, "dependent_member member="+tr.Member)
		p.print(tr.Base, indent+1)
		p.print(tr.Protocol, indent+1)
	case UnownedStorage, WeakStorage, UnmanagedStorage:
		p.open(indent, tr.Kind.String())
		p.print(tr.Base, indent+1)
	default:
		p.open(indent, tr.Kind.String())
	}
	p.sb.WriteByte(')')
}

func (p *printer) parent(tr *TypeRef, indent int) {
	if tr.Parent == nil {
		return
	}
	p.open(indent+1, "parent")
	p.print(tr.Parent, indent+2)
	p.sb.WriteByte(')')
}

func (p *printer) declName(mangled string) string {
	node, err := demangle.DemangleType(mangled)
	if err != nil {
		return mangled
	}
	if p.verbose {
		return demangle.Format(node) + " mangled=" + mangled
	}
	return demangle.Format(node)
}

func declKind(mangled string) string {
	node, err := demangle.DemangleType(mangled)
	if err != nil {
		return "nominal"
	}
	switch node.Kind {
	case demangle.KindStructure:
		return "struct"
	case demangle.KindClass:
		return "class"
	case demangle.KindEnum:
		return "enum"
	case demangle.KindProtocol:
		return "protocol"
	case demangle.KindTypeAlias:
		return "alias"
	}
	return "nominal"
}

// ProtocolMangledName returns the canonical mangling of a Protocol TypeRef.
func ProtocolMangledName(tr *TypeRef) (string, error) {
	if tr == nil || tr.Kind != Protocol {
		return "", fmt.Errorf("not a protocol type reference")
	}
	node := demangle.NewNode(demangle.KindProtocol, tr.Name)
	node.Append(demangle.NewNode(demangle.KindModule, tr.Module))
	return demangle.MangleDecl(node)
}
