// Package reflection reconstructs Swift type references from the reflection
// metadata sections of loaded images and resolves them against the field,
// associated type and builtin type descriptors those images carry.
package reflection

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blacktop/go-swift-reflection/swift/demangle"
	"github.com/blacktop/go-swift-reflection/types/typeref"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrClosed is returned by operations on a Builder after Close.
	ErrClosed = errors.New("reflection: builder is closed")
	// ErrNotFound is returned when no registered image describes a type.
	ErrNotFound = errors.New("reflection: type information not found")
)

var validate = validator.New()

// Demangler decodes a mangled Swift type name into a node tree.
type Demangler interface {
	DemangleType(mangled string) (*demangle.Node, error)
}

// ContextResolver resolves the target of a symbolic reference embedded in a
// mangled name. kind is the control byte of the reference and addr the
// absolute address it points at.
type ContextResolver interface {
	ResolveContext(kind byte, addr uint64) (*demangle.Node, error)
}

// Config configures a Builder.
type Config struct {
	// Logger receives debug events for skipped records and resolution misses.
	Logger *slog.Logger
	// Demangler decodes names without symbolic references.
	Demangler Demangler
	// PointerSize of the inspected process, 8 when unset.
	PointerSize int `validate:"omitempty,oneof=4 8"`
	// Resolver is used for images registered without their own resolver.
	Resolver ContextResolver
}

// Builder owns every TypeRef it vends and the registry of reflection
// metadata images. A Builder is not safe for concurrent use.
type Builder struct {
	log         *slog.Logger
	demangler   Demangler
	pointerSize int
	resolver    ContextResolver

	pool    []*typeref.TypeRef
	images  []*image
	canon   map[string]string
	tc      *TypeConverter
	closers []io.Closer
	closed  bool
}

// NewBuilder creates a Builder.
func NewBuilder(config ...Config) (*Builder, error) {
	var conf Config
	if len(config) > 0 {
		conf = config[0]
	}
	if err := validate.Struct(conf); err != nil {
		return nil, fmt.Errorf("invalid builder config: %w", err)
	}
	b := &Builder{
		log:         conf.Logger,
		demangler:   conf.Demangler,
		pointerSize: conf.PointerSize,
		resolver:    conf.Resolver,
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.demangler == nil {
		b.demangler = demangle.New(nil)
	}
	if b.pointerSize == 0 {
		b.pointerSize = 8
	}
	b.tc = newTypeConverter(b)
	return b, nil
}

// Close releases the pool and the registry as one unit. TypeRefs vended by
// the builder must not be used afterwards.
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.pool = nil
	b.images = nil
	b.canon = nil
	b.tc = nil
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// PoolSize returns the number of TypeRefs owned by the builder.
func (b *Builder) PoolSize() int {
	return len(b.pool)
}

// GetTypeConverter returns the layout lowering cache shared by every
// caller of this builder, or nil after Close.
func (b *Builder) GetTypeConverter() *TypeConverter {
	return b.tc
}

func (b *Builder) makeTypeRef(tr *typeref.TypeRef) *typeref.TypeRef {
	if b.closed {
		return nil
	}
	b.pool = append(b.pool, tr)
	return tr
}

func cloneRefs(trs []*typeref.TypeRef) []*typeref.TypeRef {
	if len(trs) == 0 {
		return nil
	}
	return append([]*typeref.TypeRef(nil), trs...)
}

/* factory methods for all TypeRef kinds */

// CreateBuiltinType returns a Builtin module type such as Bi64_.
func (b *Builder) CreateBuiltinType(mangledName string) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.Builtin, MangledName: mangledName})
}

// CreateNominalType returns a non-generic struct, enum, class or protocol type.
func (b *Builder) CreateNominalType(mangledName string, parent *typeref.TypeRef) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.Nominal, MangledName: mangledName, Parent: parent})
}

// CreateBoundGenericType returns a generic nominal type applied to args.
func (b *Builder) CreateBoundGenericType(mangledName string, args []*typeref.TypeRef, parent *typeref.TypeRef) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{
		Kind:        typeref.BoundGeneric,
		MangledName: mangledName,
		Args:        cloneRefs(args),
		Parent:      parent,
	})
}

// CreateTupleType returns a tuple of elements. Variadic marks the last element as variadic.
func (b *Builder) CreateTupleType(elements []*typeref.TypeRef, variadic bool) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.Tuple, Elements: cloneRefs(elements), Variadic: variadic})
}

// CreateFunctionType returns a function from args to result.
func (b *Builder) CreateFunctionType(args []*typeref.TypeRef, result *typeref.TypeRef, flags typeref.FunctionTypeFlags) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.Function, Args: cloneRefs(args), Result: result, Flags: flags})
}

// CreateProtocolType returns the protocol name declared in module.
func (b *Builder) CreateProtocolType(module, name string) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.Protocol, Module: module, Name: name})
}

// CreateProtocolCompositionType returns nil unless every member is a protocol.
func (b *Builder) CreateProtocolCompositionType(protocols []*typeref.TypeRef) *typeref.TypeRef {
	for _, proto := range protocols {
		if proto == nil || proto.Kind != typeref.Protocol {
			return nil
		}
	}
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.ProtocolComposition, Protocols: cloneRefs(protocols)})
}

// CreateExistentialMetatypeType returns the metatype of an existential instance.
func (b *Builder) CreateExistentialMetatypeType(instance *typeref.TypeRef) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.ExistentialMetatype, Instance: instance})
}

// CreateMetatypeType returns the metatype of instance.
func (b *Builder) CreateMetatypeType(instance *typeref.TypeRef) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.Metatype, Instance: instance})
}

// CreateGenericTypeParameterType returns the generic parameter τ_depth_index.
func (b *Builder) CreateGenericTypeParameterType(depth, index uint32) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.GenericTypeParameter, Depth: depth, Index: index})
}

// CreateDependentMemberType returns nil unless protocol is a protocol.
func (b *Builder) CreateDependentMemberType(member string, base, protocol *typeref.TypeRef) *typeref.TypeRef {
	if protocol == nil || protocol.Kind != typeref.Protocol {
		return nil
	}
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.DependentMember, Member: member, Base: base, Protocol: protocol})
}

// CreateUnownedStorageType wraps base in unowned reference storage.
func (b *Builder) CreateUnownedStorageType(base *typeref.TypeRef) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.UnownedStorage, Base: base})
}

// CreateUnmanagedStorageType wraps base in unowned(unsafe) reference storage.
func (b *Builder) CreateUnmanagedStorageType(base *typeref.TypeRef) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.UnmanagedStorage, Base: base})
}

// CreateWeakStorageType wraps base in weak reference storage.
func (b *Builder) CreateWeakStorageType(base *typeref.TypeRef) *typeref.TypeRef {
	return b.makeTypeRef(&typeref.TypeRef{Kind: typeref.WeakStorage, Base: base})
}

// The unnamed class and opaque references are shared and never pooled.

// GetUnnamedObjCClassType returns the shared unnamed Objective-C class reference.
func (b *Builder) GetUnnamedObjCClassType() *typeref.TypeRef {
	return typeref.UnnamedObjCClass()
}

// GetUnnamedForeignClassType returns the shared unnamed foreign class reference.
func (b *Builder) GetUnnamedForeignClassType() *typeref.TypeRef {
	return typeref.UnnamedForeignClass()
}

// GetOpaqueType returns the shared opaque type reference.
func (b *Builder) GetOpaqueType() *typeref.TypeRef {
	return typeref.OpaqueType()
}
