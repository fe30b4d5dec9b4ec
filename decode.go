package reflection

import (
	"fmt"

	"github.com/blacktop/go-swift-reflection/swift/demangle"
	"github.com/blacktop/go-swift-reflection/types/typeref"
)

// DecodeMangledName demangles a type name and builds its TypeRef. Names
// with symbolic references are resolved through the configured resolver.
func (b *Builder) DecodeMangledName(mangled string) (*typeref.TypeRef, error) {
	if b.closed {
		return nil, ErrClosed
	}
	return b.decodeName(nil, mangled, 0)
}

func (b *Builder) decodeName(img *image, mangled string, addr uint64) (*typeref.TypeRef, error) {
	node, err := b.demangleName(img, mangled, addr)
	if err != nil {
		return nil, err
	}
	tr, err := b.decodeNode(node)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", mangled, err)
	}
	return tr, nil
}

// DecodeNode builds the TypeRef of a demangled type tree.
func (b *Builder) DecodeNode(node *demangle.Node) (*typeref.TypeRef, error) {
	if b.closed {
		return nil, ErrClosed
	}
	return b.decodeNode(node)
}

func (b *Builder) decodeNode(n *demangle.Node) (*typeref.TypeRef, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: missing type node", demangle.ErrMalformed)
	}
	tr, err := b.decodeKind(n)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		if b.closed {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %s node was rejected", demangle.ErrMalformed, n.Kind)
	}
	return tr, nil
}

func (b *Builder) decodeKind(n *demangle.Node) (*typeref.TypeRef, error) {
	switch n.Kind {
	case demangle.KindBuiltinType:
		name, err := demangle.Mangle(n)
		if err != nil {
			return nil, err
		}
		return b.CreateBuiltinType(name), nil

	case demangle.KindStructure, demangle.KindClass, demangle.KindEnum, demangle.KindTypeAlias:
		name, err := demangle.MangleDecl(n)
		if err != nil {
			return nil, err
		}
		parent, err := b.decodeParent(n.Context())
		if err != nil {
			return nil, err
		}
		return b.CreateNominalType(name, parent), nil

	case demangle.KindProtocol:
		return b.CreateProtocolType(n.ModuleName(), n.Text), nil

	case demangle.KindBoundGeneric:
		base := n.Child(0)
		name, err := demangle.MangleDecl(base)
		if err != nil {
			return nil, err
		}
		var args []*typeref.TypeRef
		if list := n.Child(1); list != nil {
			if args, err = b.decodeAll(list.Children); err != nil {
				return nil, err
			}
		}
		parent, err := b.decodeParent(base.Context())
		if err != nil {
			return nil, err
		}
		return b.CreateBoundGenericType(name, args, parent), nil

	case demangle.KindTuple:
		var elems []*typeref.TypeRef
		for _, elem := range n.Children {
			typ := elem
			if elem.Kind == demangle.KindTupleElement {
				typ = elem.Child(0)
			}
			tr, err := b.decodeNode(typ)
			if err != nil {
				return nil, err
			}
			elems = append(elems, tr)
		}
		return b.CreateTupleType(elems, n.Flags.Variadic), nil

	case demangle.KindFunction, demangle.KindNoEscapeFunction, demangle.KindObjCBlock,
		demangle.KindCFunctionPointer, demangle.KindThinFunction:
		flags := typeref.FunctionTypeFlags{
			Throws:   n.Flags.Throws,
			Async:    n.Flags.Async,
			Escaping: n.Kind != demangle.KindNoEscapeFunction,
		}
		switch n.Kind {
		case demangle.KindObjCBlock:
			flags.Convention = typeref.ConventionBlock
		case demangle.KindCFunctionPointer:
			flags.Convention = typeref.ConventionC
		case demangle.KindThinFunction:
			flags.Convention = typeref.ConventionThin
		}
		var params []*typeref.TypeRef
		if list := n.Child(0); list != nil {
			var err error
			if params, err = b.decodeAll(list.Children); err != nil {
				return nil, err
			}
		}
		result, err := b.decodeNode(n.Child(1))
		if err != nil {
			return nil, err
		}
		return b.CreateFunctionType(params, result, flags), nil

	case demangle.KindProtocolList:
		protos, err := b.decodeAll(n.Children)
		if err != nil {
			return nil, err
		}
		// a single protocol is just that protocol
		if len(protos) == 1 {
			return protos[0], nil
		}
		return b.CreateProtocolCompositionType(protos), nil

	case demangle.KindMetatype:
		instance, err := b.decodeNode(n.Child(0))
		if err != nil {
			return nil, err
		}
		return b.CreateMetatypeType(instance), nil

	case demangle.KindExistentialMeta:
		instance, err := b.decodeNode(n.Child(0))
		if err != nil {
			return nil, err
		}
		return b.CreateExistentialMetatypeType(instance), nil

	case demangle.KindGenericParam:
		return b.CreateGenericTypeParameterType(n.Depth, n.Index), nil

	case demangle.KindDependentMember:
		base, err := b.decodeNode(n.Child(0))
		if err != nil {
			return nil, err
		}
		if n.Child(1) == nil {
			return nil, fmt.Errorf("%w: dependent member %s has no protocol", demangle.ErrUnsupported, n.Text)
		}
		proto, err := b.decodeNode(n.Child(1))
		if err != nil {
			return nil, err
		}
		return b.CreateDependentMemberType(n.Text, base, proto), nil

	case demangle.KindWeak, demangle.KindUnowned, demangle.KindUnmanaged:
		base, err := b.decodeNode(n.Child(0))
		if err != nil {
			return nil, err
		}
		switch n.Kind {
		case demangle.KindWeak:
			return b.CreateWeakStorageType(base), nil
		case demangle.KindUnowned:
			return b.CreateUnownedStorageType(base), nil
		default:
			return b.CreateUnmanagedStorageType(base), nil
		}
	}
	return nil, fmt.Errorf("%w: cannot build a type reference from a %s node", demangle.ErrUnsupported, n.Kind)
}

func (b *Builder) decodeAll(nodes []*demangle.Node) ([]*typeref.TypeRef, error) {
	trs := make([]*typeref.TypeRef, 0, len(nodes))
	for _, node := range nodes {
		tr, err := b.decodeNode(node)
		if err != nil {
			return nil, err
		}
		trs = append(trs, tr)
	}
	return trs, nil
}

// decodeParent returns the TypeRef of a declaration's parent context.
// Modules have none.
func (b *Builder) decodeParent(ctx *demangle.Node) (*typeref.TypeRef, error) {
	if ctx == nil || ctx.Kind == demangle.KindModule {
		return nil, nil
	}
	if !ctx.IsNominal() && ctx.Kind != demangle.KindBoundGeneric {
		return nil, nil
	}
	return b.decodeNode(ctx)
}
