package demangle

import (
	"encoding/binary"
	"fmt"
)

func (p *parser) parseType() (*Node, error) {
	for !p.eof() {
		if err := p.demangleOperator(); err != nil {
			return nil, err
		}
	}
	if len(p.stack) != 1 {
		return nil, fmt.Errorf("%w: %d nodes left after parsing", ErrMalformed, len(p.stack))
	}
	return p.popType()
}

func (p *parser) demangleOperator() error {
	c := p.consume()
	switch {
	case c >= 0x01 && c <= 0x17:
		return p.demangleSymbolicReference(c)
	case c >= 0x18 && c <= 0x1f:
		return fmt.Errorf("%w: absolute symbolic reference (kind %02x)", ErrUnsupported, c)
	case isDigit(c):
		p.pos--
		name, err := p.readIdentifier()
		if err != nil {
			return err
		}
		p.push(NewNode(KindIdentifier, name))
		return nil
	}

	switch c {
	case 'A':
		return p.demangleMultiSubstitutions()
	case 'B':
		return p.demangleBuiltinType()
	case 'C':
		return p.demangleNominal(KindClass)
	case 'G':
		return p.demangleBoundGeneric()
	case 'K':
		p.pendingThrows = true
		return nil
	case 'O':
		return p.demangleNominal(KindEnum)
	case 'P':
		return p.demangleNominal(KindProtocol)
	case 'Q':
		return p.demangleDependentMember()
	case 'S':
		return p.demangleStandardSubstitution()
	case 'V':
		return p.demangleNominal(KindStructure)
	case 'X':
		return p.demangleSpecialType()
	case 'Y':
		if err := p.expect('a'); err != nil {
			return err
		}
		p.pendingAsync = true
		return nil
	case '_':
		p.push(NewNode(kindFirstElementMarker, ""))
		return nil
	case 'a':
		return p.demangleNominal(KindTypeAlias)
	case 'c':
		return p.demangleFunction(KindFunction)
	case 'd':
		if err := p.expect('t'); err != nil {
			return err
		}
		return p.demangleTuple(true)
	case 'm':
		return p.wrapType(KindMetatype)
	case 'p':
		return p.demangleProtocolList()
	case 'q':
		param, err := p.readGenericParam()
		if err != nil {
			return err
		}
		p.push(param)
		return nil
	case 's':
		p.push(NewNode(KindModule, StdlibModule))
		return nil
	case 't':
		return p.demangleTuple(false)
	case 'x':
		p.push(genericParam(0, 0))
		return nil
	case 'y':
		p.push(NewNode(kindEmptyList, ""))
		return nil
	case 0:
		return ErrUnexpectedEnd
	}
	return fmt.Errorf("%w: operator %q at position %d", ErrUnsupported, c, p.pos-1)
}

func (p *parser) demangleSymbolicReference(control byte) error {
	if p.resolver == nil {
		return fmt.Errorf("%w: symbolic reference (kind %02x) encountered without resolver", ErrUnsupported, control)
	}
	if p.pos+4 > len(p.data) {
		return fmt.Errorf("%w: symbolic reference truncated", ErrUnexpectedEnd)
	}
	refIndex := p.pos
	offset := int32(binary.LittleEndian.Uint32(p.data[p.pos : p.pos+4]))
	p.pos += 4
	node, err := p.resolver.ResolveType(control, offset, refIndex)
	if err != nil {
		return fmt.Errorf("failed to resolve symbolic reference (kind %02x): %w", control, err)
	}
	if node == nil {
		return fmt.Errorf("%w: symbolic reference (kind %02x) resolved to nothing", ErrMalformed, control)
	}
	p.push(node)
	p.addSubstitution(node)
	return nil
}

func (p *parser) demangleMultiSubstitutions() error {
	repeat := 0
	for !p.eof() {
		c := p.consume()
		switch {
		case isLowerLetter(c):
			n, err := p.substitution(int(c - 'a'))
			if err != nil {
				return err
			}
			for i := 0; i < max(repeat, 1); i++ {
				p.push(n)
			}
			repeat = 0
		case isUpperLetter(c):
			n, err := p.substitution(int(c - 'A'))
			if err != nil {
				return err
			}
			for i := 0; i < max(repeat, 1); i++ {
				p.push(n)
			}
			return nil
		case c == '_':
			n, err := p.substitution(repeat + 27)
			if err != nil {
				return err
			}
			p.push(n)
			return nil
		case isDigit(c):
			p.pos--
			n, err := p.readNumber()
			if err != nil {
				return err
			}
			repeat = n
		default:
			return fmt.Errorf("%w: invalid substitution character %q", ErrMalformed, c)
		}
	}
	return fmt.Errorf("%w: inside substitution", ErrUnexpectedEnd)
}

func (p *parser) popContext() (*Node, error) {
	n := p.pop()
	switch {
	case n == nil:
		return nil, fmt.Errorf("%w: missing declaration context", ErrMalformed)
	case n.Kind == KindIdentifier:
		mod := NewNode(KindModule, n.Text)
		p.addSubstitution(mod)
		return mod, nil
	case n.IsContext():
		return n, nil
	}
	return nil, fmt.Errorf("%w: %s cannot be a declaration context", ErrMalformed, n.Kind)
}

func (p *parser) demangleNominal(kind NodeKind) error {
	name := p.popKind(KindIdentifier)
	if name == nil {
		return fmt.Errorf("%w: %s without a name", ErrMalformed, kind)
	}
	ctx, err := p.popContext()
	if err != nil {
		return err
	}
	node := NewNode(kind, name.Text)
	node.Append(ctx)
	p.push(node)
	p.addSubstitution(node)
	return nil
}

func (p *parser) demangleStandardSubstitution() error {
	c := p.consume()
	switch c {
	case 0:
		return fmt.Errorf("%w: after 'S'", ErrUnexpectedEnd)
	case 'o':
		p.push(NewNode(KindModule, ObjCModule))
		return nil
	case 'C':
		p.push(NewNode(KindModule, ClangImporterModule))
		return nil
	case 'g':
		wrapped, err := p.popType()
		if err != nil {
			return err
		}
		opt := boundGenericNode(standardNominal(standardTypes['q']), []*Node{wrapped})
		p.push(opt)
		p.addSubstitution(opt)
		return nil
	}
	st, ok := standardTypes[c]
	if !ok {
		return fmt.Errorf("%w: standard substitution 'S%c'", ErrUnsupported, c)
	}
	p.push(standardNominal(st))
	return nil
}

func standardNominal(st standardType) *Node {
	node := NewNode(st.kind, st.name)
	node.Append(NewNode(KindModule, StdlibModule))
	return node
}

func boundGenericNode(base *Node, args []*Node) *Node {
	list := NewNode(KindGenericArgs, "")
	list.Append(args...)
	bound := NewNode(KindBoundGeneric, "")
	bound.Append(base, list)
	return bound
}

func genericParam(depth, index uint32) *Node {
	n := NewNode(KindGenericParam, "")
	n.Depth = depth
	n.Index = index
	return n
}

// readGenericParam reads the index that follows 'q' (or 'Qy').
func (p *parser) readGenericParam() (*Node, error) {
	if p.peek() == 'd' {
		p.pos++
		depth, err := p.readIndex()
		if err != nil {
			return nil, err
		}
		index, err := p.readIndex()
		if err != nil {
			return nil, err
		}
		return genericParam(depth+1, index), nil
	}
	index, err := p.readIndex()
	if err != nil {
		return nil, err
	}
	return genericParam(0, index+1), nil
}

// demangleBoundGeneric pops the argument lists (one per generic nesting
// level, separated by '_', opened by 'y') and binds them to the nominal
// below them on the stack.
func (p *parser) demangleBoundGeneric() error {
	var levels [][]*Node
	var cur []*Node
	for done := false; !done; {
		n := p.pop()
		switch {
		case n == nil:
			return fmt.Errorf("%w: unterminated generic argument list", ErrMalformed)
		case n.Kind == kindEmptyList:
			levels = append(levels, reverseNodes(cur))
			done = true
		case n.Kind == kindFirstElementMarker:
			levels = append(levels, reverseNodes(cur))
			cur = nil
		case n.isType():
			cur = append(cur, n)
		default:
			return fmt.Errorf("%w: %s inside generic argument list", ErrMalformed, n.Kind)
		}
	}
	base := p.pop()
	if base == nil || !base.IsNominal() {
		return fmt.Errorf("%w: generic arguments without a nominal type", ErrMalformed)
	}
	// levels were collected innermost first
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	bound, err := bindGenericLevels(base, levels)
	if err != nil {
		return err
	}
	p.push(bound)
	p.addSubstitution(bound)
	return nil
}

// bindGenericLevels applies outermost-first argument levels to the nominal
// chain ending at base. The last level binds base itself.
func bindGenericLevels(base *Node, levels [][]*Node) (*Node, error) {
	var chain []*Node
	for n := base; n.IsNominal(); n = n.Child(0) {
		chain = append(chain, n)
	}
	if len(levels) > len(chain) {
		return nil, fmt.Errorf("%w: %d generic argument levels for %d nested declarations", ErrMalformed, len(levels), len(chain))
	}
	outer := len(levels) - 1
	ctx := chain[outer].Child(0)
	for k := outer; k >= 0; k-- {
		nom := chain[k].Clone()
		nom.Children[0] = ctx
		if args := levels[outer-k]; len(args) > 0 {
			ctx = boundGenericNode(nom, args)
		} else {
			ctx = nom
		}
	}
	return ctx, nil
}

func reverseNodes(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}

func (p *parser) demangleTuple(variadic bool) error {
	tuple := NewNode(KindTuple, "")
	tuple.Flags.Variadic = variadic
	if p.popKind(kindEmptyList) != nil {
		p.push(tuple)
		return nil
	}
	var elems []*Node
	for {
		first := p.popKind(kindFirstElementMarker) != nil
		elem := NewNode(KindTupleElement, "")
		if label := p.popKind(KindIdentifier); label != nil {
			elem.Text = label.Text
		}
		typ, err := p.popType()
		if err != nil {
			return err
		}
		elem.Append(typ)
		elems = append(elems, elem)
		if first {
			break
		}
	}
	tuple.Append(reverseNodes(elems)...)
	p.push(tuple)
	return nil
}

func (p *parser) demangleProtocolList() error {
	list := NewNode(KindProtocolList, "")
	if p.popKind(kindEmptyList) != nil {
		p.push(list)
		return nil
	}
	var members []*Node
	for {
		first := p.popKind(kindFirstElementMarker) != nil
		typ, err := p.popType()
		if err != nil {
			return err
		}
		members = append(members, typ)
		if first {
			break
		}
		if t := p.top(); t == nil || (t.Kind != KindProtocol && t.Kind != kindFirstElementMarker) {
			break
		}
	}
	list.Append(reverseNodes(members)...)
	p.push(list)
	return nil
}

func (p *parser) demangleFunction(kind NodeKind) error {
	params := NewNode(KindArgumentTuple, "")
	switch n := p.pop(); {
	case n == nil:
		return fmt.Errorf("%w: function type without parameters", ErrMalformed)
	case n.Kind == kindEmptyList:
	case n.Kind == KindTuple:
		for _, elem := range n.Children {
			params.Append(elem.Child(0))
		}
	case n.isType():
		params.Append(n)
	default:
		return fmt.Errorf("%w: %s as function parameters", ErrMalformed, n.Kind)
	}

	var result *Node
	switch n := p.pop(); {
	case n == nil:
		return fmt.Errorf("%w: function type without result", ErrMalformed)
	case n.Kind == kindEmptyList:
		result = NewNode(KindTuple, "")
	case n.isType():
		result = n
	default:
		return fmt.Errorf("%w: %s as function result", ErrMalformed, n.Kind)
	}

	fn := NewNode(kind, "")
	fn.Flags.Throws = p.pendingThrows
	fn.Flags.Async = p.pendingAsync
	p.pendingThrows, p.pendingAsync = false, false
	fn.Append(params, result)
	p.push(fn)
	return nil
}

func (p *parser) wrapType(kind NodeKind) error {
	inner, err := p.popType()
	if err != nil {
		return err
	}
	n := NewNode(kind, "")
	n.Append(inner)
	p.push(n)
	return nil
}

func (p *parser) demangleSpecialType() error {
	switch c := p.consume(); c {
	case 'w':
		return p.wrapType(KindWeak)
	case 'o':
		return p.wrapType(KindUnowned)
	case 'u':
		return p.wrapType(KindUnmanaged)
	case 'p':
		return p.wrapType(KindExistentialMeta)
	case 'E':
		return p.demangleFunction(KindNoEscapeFunction)
	case 'B':
		return p.demangleFunction(KindObjCBlock)
	case 'C':
		return p.demangleFunction(KindCFunctionPointer)
	case 'f':
		return p.demangleFunction(KindThinFunction)
	case 0:
		return fmt.Errorf("%w: after 'X'", ErrUnexpectedEnd)
	default:
		return fmt.Errorf("%w: special type 'X%c'", ErrUnsupported, c)
	}
}

func (p *parser) demangleDependentMember() error {
	var base *Node
	kind := p.consume()
	switch kind {
	case 'z':
		base = genericParam(0, 0)
	case 'y':
		param, err := p.readGenericParam()
		if err != nil {
			return err
		}
		base = param
	case 'a':
	case 0:
		return fmt.Errorf("%w: after 'Q'", ErrUnexpectedEnd)
	default:
		return fmt.Errorf("%w: associated type 'Q%c'", ErrUnsupported, kind)
	}
	proto := p.popKind(KindProtocol)
	name := p.popKind(KindIdentifier)
	if name == nil {
		return fmt.Errorf("%w: dependent member without a name", ErrMalformed)
	}
	if base == nil {
		var err error
		if base, err = p.popType(); err != nil {
			return err
		}
	}
	member := NewNode(KindDependentMember, name.Text)
	member.Append(base)
	if proto != nil {
		member.Append(proto)
	}
	p.push(member)
	p.addSubstitution(member)
	return nil
}

func (p *parser) demangleBuiltinType() error {
	var name string
	switch c := p.consume(); c {
	case 'i', 'f':
		width, err := p.readNumber()
		if err != nil {
			return err
		}
		if err := p.expect('_'); err != nil {
			return err
		}
		if c == 'i' {
			name = fmt.Sprintf("%s%d", builtinIntPrefix, width)
		} else {
			name = fmt.Sprintf("%s%d", builtinFloatPrefix, width)
		}
	case 'v':
		count, err := p.readNumber()
		if err != nil {
			return err
		}
		if err := p.expect('_'); err != nil {
			return err
		}
		elem := p.popKind(KindBuiltinType)
		if elem == nil {
			return fmt.Errorf("%w: builtin vector without a builtin element type", ErrMalformed)
		}
		name = fmt.Sprintf("%s%dx%s", builtinVecPrefix, count, elem.Text[len("Builtin."):])
	case 0:
		return fmt.Errorf("%w: after 'B'", ErrUnexpectedEnd)
	default:
		fixed, ok := builtinTypes[c]
		if !ok {
			return fmt.Errorf("%w: builtin type 'B%c'", ErrUnsupported, c)
		}
		name = fixed
	}
	n := NewNode(KindBuiltinType, name)
	p.push(n)
	p.addSubstitution(n)
	return nil
}
