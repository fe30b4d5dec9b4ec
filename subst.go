package reflection

import (
	"github.com/blacktop/go-swift-reflection/types/typeref"
)

// resolution tracks the associated type lookups in progress so a witness
// that refers back to itself ends the recursion.
type resolution struct {
	visiting map[string]bool
	// strict turns an unresolved dependent member on a concrete base into
	// a miss instead of leaving the dependent member in place.
	strict bool
}

func newResolution(strict bool) *resolution {
	return &resolution{visiting: make(map[string]bool), strict: strict}
}

// Subst replaces the generic type parameters of tr that are bound in subs
// and resolves dependent members whose base becomes a nominal type. The
// result is rebuilt through the factory; tr itself is not modified. It
// returns nil when a nested rebuild fails.
func (b *Builder) Subst(tr *typeref.TypeRef, subs typeref.GenericArgumentMap) *typeref.TypeRef {
	if b.closed {
		return nil
	}
	return b.subst(tr, subs, newResolution(false))
}

func (b *Builder) subst(tr *typeref.TypeRef, subs typeref.GenericArgumentMap, res *resolution) *typeref.TypeRef {
	if tr == nil {
		return nil
	}
	switch tr.Kind {
	case typeref.Builtin, typeref.Protocol, typeref.ObjCClass, typeref.ForeignClass, typeref.Opaque:
		return tr

	case typeref.Nominal:
		if tr.Parent == nil {
			return tr
		}
		parent := b.subst(tr.Parent, subs, res)
		if parent == nil {
			return nil
		}
		return b.CreateNominalType(tr.MangledName, parent)

	case typeref.BoundGeneric:
		args, ok := b.substAll(tr.Args, subs, res)
		if !ok {
			return nil
		}
		var parent *typeref.TypeRef
		if tr.Parent != nil {
			if parent = b.subst(tr.Parent, subs, res); parent == nil {
				return nil
			}
		}
		return b.CreateBoundGenericType(tr.MangledName, args, parent)

	case typeref.Tuple:
		elems, ok := b.substAll(tr.Elements, subs, res)
		if !ok {
			return nil
		}
		return b.CreateTupleType(elems, tr.Variadic)

	case typeref.Function:
		args, ok := b.substAll(tr.Args, subs, res)
		if !ok {
			return nil
		}
		result := b.subst(tr.Result, subs, res)
		if result == nil {
			return nil
		}
		return b.CreateFunctionType(args, result, tr.Flags)

	case typeref.ProtocolComposition:
		protos, ok := b.substAll(tr.Protocols, subs, res)
		if !ok {
			return nil
		}
		return b.CreateProtocolCompositionType(protos)

	case typeref.Metatype, typeref.ExistentialMetatype:
		instance := b.subst(tr.Instance, subs, res)
		if instance == nil {
			return nil
		}
		if tr.Kind == typeref.Metatype {
			return b.CreateMetatypeType(instance)
		}
		return b.CreateExistentialMetatypeType(instance)

	case typeref.GenericTypeParameter:
		if arg, ok := subs[typeref.GenericParam{Depth: tr.Depth, Index: tr.Index}]; ok {
			return arg
		}
		return tr

	case typeref.DependentMember:
		base := b.subst(tr.Base, subs, res)
		if base == nil {
			return nil
		}
		dm := b.CreateDependentMemberType(tr.Member, base, tr.Protocol)
		if dm == nil || !base.IsNominal() {
			return dm
		}
		witness, found := b.dependentMember(base.MangledName, dm, res)
		if witness == nil && !found && !res.strict {
			return dm
		}
		return witness

	case typeref.UnownedStorage, typeref.WeakStorage, typeref.UnmanagedStorage:
		base := b.subst(tr.Base, subs, res)
		if base == nil {
			return nil
		}
		switch tr.Kind {
		case typeref.UnownedStorage:
			return b.CreateUnownedStorageType(base)
		case typeref.WeakStorage:
			return b.CreateWeakStorageType(base)
		default:
			return b.CreateUnmanagedStorageType(base)
		}
	}
	return nil
}

func (b *Builder) substAll(trs []*typeref.TypeRef, subs typeref.GenericArgumentMap, res *resolution) ([]*typeref.TypeRef, bool) {
	out := make([]*typeref.TypeRef, 0, len(trs))
	for _, tr := range trs {
		s := b.subst(tr, subs, res)
		if s == nil {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
