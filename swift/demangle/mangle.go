package demangle

import (
	"fmt"
	"strconv"
	"strings"
)

// Mangle re-encodes a node tree into a canonical Swift type mangling. The
// output never uses substitutions or word substitutions, so two spellings
// of the same type compare equal after a DemangleType/Mangle round trip.
func Mangle(node *Node) (string, error) {
	var m mangler
	if err := m.mangle(node); err != nil {
		return "", err
	}
	return m.buf.String(), nil
}

// MangleDecl returns the canonical mangling of the declaration a nominal or
// bound generic node refers to, with every generic argument stripped. This is
// the key reflection records are stored under.
func MangleDecl(node *Node) (string, error) {
	var m mangler
	if err := m.mangleUnbound(node); err != nil {
		return "", err
	}
	return m.buf.String(), nil
}

type mangler struct {
	buf strings.Builder
}

func (m *mangler) identifier(s string) {
	m.buf.WriteString(strconv.Itoa(len(s)))
	m.buf.WriteString(s)
}

func (m *mangler) index(n uint32) {
	if n > 0 {
		m.buf.WriteString(strconv.FormatUint(uint64(n-1), 10))
	}
	m.buf.WriteByte('_')
}

func (m *mangler) mangle(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: cannot mangle a nil node", ErrMalformed)
	}
	switch n.Kind {
	case KindModule:
		switch n.Text {
		case StdlibModule:
			m.buf.WriteString("s")
		case ObjCModule:
			m.buf.WriteString("So")
		case ClangImporterModule:
			m.buf.WriteString("SC")
		default:
			m.identifier(n.Text)
		}
	case KindIdentifier:
		m.identifier(n.Text)
	case KindStructure, KindClass, KindEnum, KindProtocol, KindTypeAlias, KindBoundGeneric:
		return m.mangleNominalType(n)
	case KindTuple:
		return m.mangleTuple(n)
	case KindFunction, KindNoEscapeFunction, KindObjCBlock, KindCFunctionPointer, KindThinFunction:
		return m.mangleFunction(n)
	case KindProtocolList:
		if len(n.Children) == 0 {
			m.buf.WriteString("yp")
			return nil
		}
		if err := m.mangleList(n.Children); err != nil {
			return err
		}
		if len(n.Children) == 1 {
			m.buf.WriteByte('_')
		}
		m.buf.WriteByte('p')
	case KindMetatype:
		return m.mangleWrapped(n, "m")
	case KindExistentialMeta:
		return m.mangleWrapped(n, "Xp")
	case KindWeak:
		return m.mangleWrapped(n, "Xw")
	case KindUnowned:
		return m.mangleWrapped(n, "Xo")
	case KindUnmanaged:
		return m.mangleWrapped(n, "Xu")
	case KindGenericParam:
		m.genericParam(n)
	case KindDependentMember:
		return m.mangleDependentMember(n)
	case KindBuiltinType:
		return m.mangleBuiltin(n.Text)
	default:
		return fmt.Errorf("%w: cannot mangle %s", ErrUnsupported, n.Kind)
	}
	return nil
}

func (m *mangler) mangleWrapped(n *Node, suffix string) error {
	if err := m.mangle(n.Child(0)); err != nil {
		return err
	}
	m.buf.WriteString(suffix)
	return nil
}

// mangleList writes types separated by the first-element marker after the first.
func (m *mangler) mangleList(types []*Node) error {
	for i, t := range types {
		if err := m.mangle(t); err != nil {
			return err
		}
		if i == 0 && len(types) > 1 {
			m.buf.WriteByte('_')
		}
	}
	return nil
}

func (m *mangler) genericParam(n *Node) {
	switch {
	case n.Depth == 0 && n.Index == 0:
		m.buf.WriteByte('x')
	case n.Depth == 0:
		m.buf.WriteByte('q')
		m.index(n.Index - 1)
	default:
		m.buf.WriteString("qd")
		m.index(n.Depth - 1)
		m.index(n.Index)
	}
}

func (m *mangler) mangleUnbound(n *Node) error {
	switch {
	case n == nil:
		return fmt.Errorf("%w: missing declaration", ErrMalformed)
	case n.Kind == KindBoundGeneric:
		return m.mangleUnbound(n.Child(0))
	case n.Kind == KindModule:
		return m.mangle(n)
	case !n.IsNominal():
		return fmt.Errorf("%w: %s is not a declaration", ErrUnsupported, n.Kind)
	}
	ctx := n.Child(0)
	if ctx != nil && ctx.Kind == KindModule && ctx.Text == StdlibModule {
		if c, ok := standardTypeLetters[standardType{n.Kind, n.Text}]; ok {
			m.buf.WriteByte('S')
			m.buf.WriteByte(c)
			return nil
		}
	}
	if err := m.mangleUnbound(ctx); err != nil {
		return err
	}
	m.identifier(n.Text)
	m.buf.WriteByte(nominalKindChar(n.Kind))
	return nil
}

func nominalKindChar(kind NodeKind) byte {
	switch kind {
	case KindClass:
		return 'C'
	case KindEnum:
		return 'O'
	case KindProtocol:
		return 'P'
	case KindTypeAlias:
		return 'a'
	default:
		return 'V'
	}
}

// mangleNominalType writes the unbound declaration followed by one argument
// list per generic nesting level, outermost first.
func (m *mangler) mangleNominalType(n *Node) error {
	var levels [][]*Node // innermost first
	for cur := n; cur != nil; {
		switch {
		case cur.Kind == KindBoundGeneric:
			var args []*Node
			if list := cur.Child(1); list != nil {
				args = list.Children
			}
			levels = append(levels, args)
			cur = cur.Child(0).Child(0)
		case cur.IsNominal():
			levels = append(levels, nil)
			cur = cur.Child(0)
		default:
			cur = nil
		}
	}
	for len(levels) > 0 && len(levels[len(levels)-1]) == 0 {
		levels = levels[:len(levels)-1]
	}
	if len(levels) == 1 && len(levels[0]) == 1 && isStdlibNominal(n.Child(0), "Optional") {
		if err := m.mangle(levels[0][0]); err != nil {
			return err
		}
		m.buf.WriteString("Sg")
		return nil
	}
	if err := m.mangleUnbound(n); err != nil {
		return err
	}
	if len(levels) == 0 {
		return nil
	}
	m.buf.WriteByte('y')
	for i := len(levels) - 1; i >= 0; i-- {
		for _, arg := range levels[i] {
			if err := m.mangle(arg); err != nil {
				return err
			}
		}
		if i > 0 {
			m.buf.WriteByte('_')
		}
	}
	m.buf.WriteByte('G')
	return nil
}

func isStdlibNominal(n *Node, name string) bool {
	if n == nil || !n.IsNominal() || n.Text != name {
		return false
	}
	ctx := n.Child(0)
	return ctx != nil && ctx.Kind == KindModule && ctx.Text == StdlibModule
}

func (m *mangler) mangleTuple(n *Node) error {
	if len(n.Children) == 0 {
		m.buf.WriteString("yt")
		return nil
	}
	for i, elem := range n.Children {
		typ := elem
		if elem.Kind == KindTupleElement {
			typ = elem.Child(0)
		}
		if err := m.mangle(typ); err != nil {
			return err
		}
		if elem.Kind == KindTupleElement && elem.Text != "" {
			m.identifier(elem.Text)
		}
		if i == 0 {
			m.buf.WriteByte('_')
		}
	}
	if n.Flags.Variadic {
		m.buf.WriteByte('d')
	}
	m.buf.WriteByte('t')
	return nil
}

func (m *mangler) mangleFunction(n *Node) error {
	result := n.Child(1)
	if result != nil && result.Kind == KindTuple && len(result.Children) == 0 {
		m.buf.WriteByte('y')
	} else if err := m.mangle(result); err != nil {
		return err
	}
	var params []*Node
	if args := n.Child(0); args != nil {
		params = args.Children
	}
	switch len(params) {
	case 0:
		m.buf.WriteByte('y')
	case 1:
		if err := m.mangle(params[0]); err != nil {
			return err
		}
	default:
		if err := m.mangleList(params); err != nil {
			return err
		}
		m.buf.WriteByte('t')
	}
	if n.Flags.Async {
		m.buf.WriteString("Ya")
	}
	if n.Flags.Throws {
		m.buf.WriteByte('K')
	}
	switch n.Kind {
	case KindNoEscapeFunction:
		m.buf.WriteString("XE")
	case KindObjCBlock:
		m.buf.WriteString("XB")
	case KindCFunctionPointer:
		m.buf.WriteString("XC")
	case KindThinFunction:
		m.buf.WriteString("Xf")
	default:
		m.buf.WriteByte('c')
	}
	return nil
}

func (m *mangler) mangleDependentMember(n *Node) error {
	base := n.Child(0)
	if base == nil {
		return fmt.Errorf("%w: dependent member without a base", ErrMalformed)
	}
	isParam := base.Kind == KindGenericParam
	if !isParam {
		if err := m.mangle(base); err != nil {
			return err
		}
	}
	m.identifier(n.Text)
	if proto := n.Child(1); proto != nil {
		if err := m.mangleUnbound(proto); err != nil {
			return err
		}
	}
	switch {
	case isParam && base.Depth == 0 && base.Index == 0:
		m.buf.WriteString("Qz")
	case isParam && base.Depth == 0:
		m.buf.WriteString("Qy")
		m.index(base.Index - 1)
	case isParam:
		m.buf.WriteString("Qyd")
		m.index(base.Depth - 1)
		m.index(base.Index)
	default:
		m.buf.WriteString("Qa")
	}
	return nil
}

func (m *mangler) mangleBuiltin(name string) error {
	if c, ok := builtinTypeLetters[name]; ok {
		m.buf.WriteByte('B')
		m.buf.WriteByte(c)
		return nil
	}
	switch {
	case strings.HasPrefix(name, builtinIntPrefix):
		if width, err := strconv.Atoi(name[len(builtinIntPrefix):]); err == nil {
			fmt.Fprintf(&m.buf, "Bi%d_", width)
			return nil
		}
	case strings.HasPrefix(name, builtinFloatPrefix):
		if width, err := strconv.Atoi(name[len(builtinFloatPrefix):]); err == nil {
			fmt.Fprintf(&m.buf, "Bf%d_", width)
			return nil
		}
	case strings.HasPrefix(name, builtinVecPrefix):
		count, elem, ok := strings.Cut(name[len(builtinVecPrefix):], "x")
		if n, err := strconv.Atoi(count); ok && err == nil {
			if err := m.mangleBuiltin("Builtin." + elem); err != nil {
				return err
			}
			fmt.Fprintf(&m.buf, "Bv%d_", n)
			return nil
		}
	}
	return fmt.Errorf("%w: builtin type %q", ErrUnsupported, name)
}
