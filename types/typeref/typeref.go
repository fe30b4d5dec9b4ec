// Package typeref defines TypeRef, the structural description of a Swift type
// reconstructed from reflection metadata.
package typeref

import "fmt"

// Kind is the tag of the TypeRef sum type.
type Kind uint8

const (
	Builtin Kind = iota
	Nominal
	BoundGeneric
	Tuple
	Function
	ProtocolComposition
	Protocol
	Metatype
	ExistentialMetatype
	GenericTypeParameter
	DependentMember
	ForeignClass
	ObjCClass
	Opaque
	UnownedStorage
	WeakStorage
	UnmanagedStorage
)

var kindNames = [...]string{
	Builtin:              "builtin",
	Nominal:              "nominal",
	BoundGeneric:         "bound_generic",
	Tuple:                "tuple",
	Function:             "function",
	ProtocolComposition:  "protocol_composition",
	Protocol:             "protocol",
	Metatype:             "metatype",
	ExistentialMetatype:  "existential_metatype",
	GenericTypeParameter: "generic_type_parameter",
	DependentMember:      "dependent_member",
	ForeignClass:         "foreign_class",
	ObjCClass:            "objective_c_class",
	Opaque:               "opaque",
	UnownedStorage:       "unowned_storage",
	WeakStorage:          "weak_storage",
	UnmanagedStorage:     "unmanaged_storage",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// FunctionConvention is the calling convention of a function type.
type FunctionConvention uint8

const (
	ConventionSwift FunctionConvention = iota // swift
	ConventionBlock                           // block
	ConventionThin                            // thin
	ConventionC                               // c
)

func (c FunctionConvention) String() string {
	switch c {
	case ConventionSwift:
		return "swift"
	case ConventionBlock:
		return "block"
	case ConventionThin:
		return "thin"
	case ConventionC:
		return "c"
	}
	return fmt.Sprintf("FunctionConvention(%d)", c)
}

// FunctionTypeFlags are the calling convention and effects of a function type.
type FunctionTypeFlags struct {
	Convention FunctionConvention
	Throws     bool
	Escaping   bool
	Async      bool
}

// TypeRef is a node of a type expression. Only the fields that belong to
// its Kind are populated; TypeRefs are never mutated once built.
type TypeRef struct {
	Kind Kind

	// Builtin, Nominal, BoundGeneric
	MangledName string
	// Nominal, BoundGeneric
	Parent *TypeRef

	// BoundGeneric arguments or Function parameters
	Args []*TypeRef

	// Tuple
	Elements []*TypeRef
	Variadic bool

	// Function
	Result *TypeRef
	Flags  FunctionTypeFlags

	// Protocol
	Module string
	Name   string

	// ProtocolComposition
	Protocols []*TypeRef

	// Metatype, ExistentialMetatype
	Instance *TypeRef

	// GenericTypeParameter
	Depth uint32
	Index uint32

	// DependentMember (Base is also the referent of the storage kinds)
	Member   string
	Base     *TypeRef
	Protocol *TypeRef
}

var (
	unnamedObjCClass    = &TypeRef{Kind: ObjCClass}
	unnamedForeignClass = &TypeRef{Kind: ForeignClass}
	opaque              = &TypeRef{Kind: Opaque}
)

// UnnamedObjCClass returns the shared unnamed Objective-C class reference.
func UnnamedObjCClass() *TypeRef { return unnamedObjCClass }

// UnnamedForeignClass returns the shared unnamed foreign class reference.
func UnnamedForeignClass() *TypeRef { return unnamedForeignClass }

// OpaqueType returns the shared opaque type reference.
func OpaqueType() *TypeRef { return opaque }

// IsNominal reports whether tr names a declaration, bound or not.
func (tr *TypeRef) IsNominal() bool {
	return tr != nil && (tr.Kind == Nominal || tr.Kind == BoundGeneric)
}

// GenericDepth is the number of generic ancestors of a nominal type, which
// is also the depth of the generic parameters it binds.
func (tr *TypeRef) GenericDepth() uint32 {
	var depth uint32
	for p := tr.Parent; p != nil; p = p.Parent {
		if p.Kind == BoundGeneric {
			depth++
		}
	}
	return depth
}

// IsConcrete reports whether no generic type parameter is reachable from tr.
func (tr *TypeRef) IsConcrete() bool {
	if tr == nil {
		return true
	}
	switch tr.Kind {
	case GenericTypeParameter:
		return false
	case Nominal:
		return tr.Parent.IsConcrete()
	case BoundGeneric:
		return allConcrete(tr.Args) && tr.Parent.IsConcrete()
	case Tuple:
		return allConcrete(tr.Elements)
	case Function:
		return allConcrete(tr.Args) && tr.Result.IsConcrete()
	case ProtocolComposition:
		return allConcrete(tr.Protocols)
	case Metatype, ExistentialMetatype:
		return tr.Instance.IsConcrete()
	case DependentMember, UnownedStorage, WeakStorage, UnmanagedStorage:
		return tr.Base.IsConcrete()
	}
	return true
}

func allConcrete(trs []*TypeRef) bool {
	for _, tr := range trs {
		if !tr.IsConcrete() {
			return false
		}
	}
	return true
}

// GenericParam identifies a generic parameter slot.
type GenericParam struct {
	Depth uint32
	Index uint32
}

// GenericArgumentMap binds generic parameter slots to argument types.
type GenericArgumentMap map[GenericParam]*TypeRef

// SubstMap returns the generic arguments bound by tr and its generic
// parents. The outermost generic parent binds depth 0.
func (tr *TypeRef) SubstMap() GenericArgumentMap {
	subs := make(GenericArgumentMap)
	for cur := tr; cur != nil; cur = cur.Parent {
		if cur.Kind != BoundGeneric {
			continue
		}
		depth := cur.GenericDepth()
		for i, arg := range cur.Args {
			subs[GenericParam{Depth: depth, Index: uint32(i)}] = arg
		}
	}
	return subs
}

// Equal reports whether a and b describe the same type structurally.
func Equal(a, b *TypeRef) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Builtin:
		return a.MangledName == b.MangledName
	case Nominal:
		return a.MangledName == b.MangledName && Equal(a.Parent, b.Parent)
	case BoundGeneric:
		return a.MangledName == b.MangledName && equalAll(a.Args, b.Args) && Equal(a.Parent, b.Parent)
	case Tuple:
		return a.Variadic == b.Variadic && equalAll(a.Elements, b.Elements)
	case Function:
		return a.Flags == b.Flags && equalAll(a.Args, b.Args) && Equal(a.Result, b.Result)
	case Protocol:
		return a.Module == b.Module && a.Name == b.Name
	case ProtocolComposition:
		return equalAll(a.Protocols, b.Protocols)
	case Metatype, ExistentialMetatype:
		return Equal(a.Instance, b.Instance)
	case GenericTypeParameter:
		return a.Depth == b.Depth && a.Index == b.Index
	case DependentMember:
		return a.Member == b.Member && Equal(a.Base, b.Base) && Equal(a.Protocol, b.Protocol)
	case UnownedStorage, WeakStorage, UnmanagedStorage:
		return Equal(a.Base, b.Base)
	}
	// unnamed classes and opaque carry no attributes
	return true
}

func equalAll(a, b []*TypeRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
