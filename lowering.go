package reflection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/go-swift-reflection/types/swift"
	"github.com/blacktop/go-swift-reflection/types/typeref"
)

// ErrUnsupportedLayout is returned for types whose layout cannot be
// computed from reflection metadata alone.
var ErrUnsupportedLayout = errors.New("reflection: unsupported type layout")

const maxLoweringDepth = 64

type TypeInfoKind uint8

const (
	TIKindBuiltin TypeInfoKind = iota
	TIKindStruct
	TIKindTuple
	TIKindThickFunction
	TIKindThinFunction
	TIKindMetatype
	TIKindExistential
	TIKindExistentialMetatype
	TIKindNoPayloadEnum
	TIKindSinglePayloadEnum
	TIKindStrongReference
	TIKindWeakReference
	TIKindUnownedReference
	TIKindUnmanagedReference
)

var typeInfoKindNames = [...]string{
	TIKindBuiltin:             "builtin",
	TIKindStruct:              "struct",
	TIKindTuple:               "tuple",
	TIKindThickFunction:       "thick_function",
	TIKindThinFunction:        "thin_function",
	TIKindMetatype:            "metatype",
	TIKindExistential:         "existential",
	TIKindExistentialMetatype: "existential_metatype",
	TIKindNoPayloadEnum:       "no_payload_enum",
	TIKindSinglePayloadEnum:   "single_payload_enum",
	TIKindStrongReference:     "strong_reference",
	TIKindWeakReference:       "weak_reference",
	TIKindUnownedReference:    "unowned_reference",
	TIKindUnmanagedReference:  "unmanaged_reference",
}

func (k TypeInfoKind) String() string {
	if int(k) < len(typeInfoKindNames) {
		return typeInfoKindNames[k]
	}
	return fmt.Sprintf("TypeInfoKind(%d)", k)
}

// TypeInfo is the lowered layout of a type.
type TypeInfo struct {
	Kind                TypeInfoKind
	Size                uint32
	Alignment           uint32
	Stride              uint32
	NumExtraInhabitants uint32
	BitwiseTakable      bool
	Fields              []FieldInfo
}

// FieldInfo is a stored field, tuple element or enum payload.
type FieldInfo struct {
	Name    string
	Offset  uint32
	TypeRef *typeref.TypeRef
	Info    *TypeInfo
}

func (ti *TypeInfo) String() string {
	var sb strings.Builder
	ti.dump(&sb, 0)
	return sb.String()
}

func (ti *TypeInfo) dump(sb *strings.Builder, indent int) {
	if indent > 0 {
		sb.WriteByte('\n')
	}
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(sb, "%s(%s size=%d alignment=%d stride=%d num_extra_inhabitants=%d bitwise_takable=%t",
		pad, ti.Kind, ti.Size, ti.Alignment, ti.Stride, ti.NumExtraInhabitants, ti.BitwiseTakable)
	for _, f := range ti.Fields {
		fmt.Fprintf(sb, "\n%s  (field name=%s offset=%d", pad, f.Name, f.Offset)
		if f.Info != nil {
			f.Info.dump(sb, indent+2)
		}
		sb.WriteByte(')')
	}
	sb.WriteByte(')')
}

// TypeConverter lowers TypeRefs to layouts, caching results by TypeRef
// identity. It belongs to a Builder and shares its lifetime.
type TypeConverter struct {
	b          *Builder
	cache      map[*typeref.TypeRef]*TypeInfo
	inProgress map[*typeref.TypeRef]bool
	depth      int
}

func newTypeConverter(b *Builder) *TypeConverter {
	return &TypeConverter{
		b:          b,
		cache:      make(map[*typeref.TypeRef]*TypeInfo),
		inProgress: make(map[*typeref.TypeRef]bool),
	}
}

// GetTypeInfo returns the layout of tr. Failures are not cached.
func (tc *TypeConverter) GetTypeInfo(tr *typeref.TypeRef) (*TypeInfo, error) {
	if tc == nil || tc.b.closed {
		return nil, ErrClosed
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: nil type reference", ErrUnsupportedLayout)
	}
	if ti, ok := tc.cache[tr]; ok {
		return ti, nil
	}
	if tc.inProgress[tr] || tc.depth >= maxLoweringDepth {
		return nil, fmt.Errorf("%w: %s contains itself", ErrUnsupportedLayout, tr.Kind)
	}
	tc.inProgress[tr] = true
	tc.depth++
	defer func() {
		delete(tc.inProgress, tr)
		tc.depth--
	}()

	ti, err := tc.lower(tr)
	if err != nil {
		return nil, err
	}
	tc.cache[tr] = ti
	return ti, nil
}

func (tc *TypeConverter) pointerSize() uint32 {
	return uint32(tc.b.pointerSize)
}

// pointerExtraInhabitants is the number of invalid pointer values usable
// as enum tags.
func (tc *TypeConverter) pointerExtraInhabitants() uint32 {
	if tc.b.pointerSize == 8 {
		return swift.MaxNumExtraInhabitants
	}
	return 4096
}

func (tc *TypeConverter) pointerLike(kind TypeInfoKind, words uint32) *TypeInfo {
	ptr := tc.pointerSize()
	return &TypeInfo{
		Kind:                kind,
		Size:                ptr * words,
		Alignment:           ptr,
		Stride:              ptr * words,
		NumExtraInhabitants: tc.pointerExtraInhabitants(),
		BitwiseTakable:      true,
	}
}

func (tc *TypeConverter) reference(kind TypeInfoKind) *TypeInfo {
	ti := tc.pointerLike(kind, 1)
	if kind == TIKindWeakReference {
		ti.NumExtraInhabitants = 0
		ti.BitwiseTakable = false
	}
	return ti
}

func (tc *TypeConverter) lower(tr *typeref.TypeRef) (*TypeInfo, error) {
	switch tr.Kind {
	case typeref.Builtin:
		bt := tc.b.GetBuiltinTypeInfo(tr)
		if bt == nil {
			return nil, fmt.Errorf("builtin %s: %w", tr.MangledName, ErrNotFound)
		}
		return builtinTypeInfo(bt), nil

	case typeref.Nominal, typeref.BoundGeneric:
		return tc.lowerNominal(tr)

	case typeref.Tuple:
		var rb recordBuilder
		for i, elem := range tr.Elements {
			ti, err := tc.GetTypeInfo(elem)
			if err != nil {
				return nil, fmt.Errorf("tuple element %d: %w", i, err)
			}
			rb.addField(fmt.Sprint(i), elem, ti)
		}
		return rb.build(TIKindTuple), nil

	case typeref.Function:
		switch tr.Flags.Convention {
		case typeref.ConventionThin, typeref.ConventionC:
			return tc.pointerLike(TIKindThinFunction, 1), nil
		case typeref.ConventionBlock:
			return tc.reference(TIKindStrongReference), nil
		}
		// function pointer and context
		return tc.pointerLike(TIKindThickFunction, 2), nil

	case typeref.Metatype:
		return tc.pointerLike(TIKindMetatype, 1), nil

	case typeref.ExistentialMetatype:
		return tc.pointerLike(TIKindExistentialMetatype, 1+witnessTables(tr.Instance)), nil

	case typeref.Protocol, typeref.ProtocolComposition:
		// three word inline buffer, metadata and one witness table per protocol
		return tc.pointerLike(TIKindExistential, 4+witnessTables(tr)), nil

	case typeref.ObjCClass, typeref.ForeignClass:
		return tc.reference(TIKindStrongReference), nil

	case typeref.WeakStorage:
		return tc.reference(TIKindWeakReference), nil
	case typeref.UnownedStorage:
		return tc.reference(TIKindUnownedReference), nil
	case typeref.UnmanagedStorage:
		return tc.reference(TIKindUnmanagedReference), nil
	}
	return nil, fmt.Errorf("%w: %s has no fixed layout", ErrUnsupportedLayout, tr.Kind)
}

func witnessTables(tr *typeref.TypeRef) uint32 {
	switch {
	case tr == nil:
		return 0
	case tr.Kind == typeref.Protocol:
		return 1
	case tr.Kind == typeref.ProtocolComposition:
		return uint32(len(tr.Protocols))
	}
	return 0
}

func builtinTypeInfo(bt *swift.BuiltinType) *TypeInfo {
	return &TypeInfo{
		Kind:                TIKindBuiltin,
		Size:                bt.Size,
		Alignment:           uint32(bt.AlignmentAndFlags.Alignment()),
		Stride:              bt.Stride,
		NumExtraInhabitants: bt.NumExtraInhabitants,
		BitwiseTakable:      bt.AlignmentAndFlags.IsBitwiseTakable(),
	}
}

func (tc *TypeConverter) lowerNominal(tr *typeref.TypeRef) (*TypeInfo, error) {
	if bt := tc.b.GetBuiltinTypeInfo(tr); bt != nil {
		return builtinTypeInfo(bt), nil
	}
	fd := tc.b.GetFieldTypeInfo(tr)
	if fd == nil {
		// Optional is laid out as a single payload enum even without metadata.
		if tr.Kind == typeref.BoundGeneric && tr.MangledName == "Sq" && len(tr.Args) == 1 {
			return tc.singlePayloadEnum(FieldInfo{Name: "some", TypeRef: tr.Args[0]}, 1)
		}
		return nil, fmt.Errorf("%s: %w", tr.MangledName, ErrNotFound)
	}

	switch {
	case fd.IsClass():
		return tc.reference(TIKindStrongReference), nil
	case fd.IsStruct():
		fields := tc.b.GetFieldTypeRefs(tr, fd)
		if fields == nil && len(fd.Records) > 0 {
			return nil, fmt.Errorf("%w: fields of %s could not be resolved", ErrUnsupportedLayout, fd.TypeName)
		}
		var rb recordBuilder
		for _, f := range fields {
			ti, err := tc.GetTypeInfo(f.TypeRef)
			if err != nil {
				return nil, fmt.Errorf("field %s of %s: %w", f.Name, fd.TypeName, err)
			}
			rb.addField(f.Name, f.TypeRef, ti)
		}
		return rb.build(TIKindStruct), nil
	case fd.IsEnum():
		return tc.lowerEnum(tr, fd)
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedLayout, fd.Kind, fd.TypeName)
}

func (tc *TypeConverter) lowerEnum(tr *typeref.TypeRef, fd *swift.Field) (*TypeInfo, error) {
	cases := tc.b.GetFieldTypeRefs(tr, fd)
	if cases == nil && len(fd.Records) > 0 {
		return nil, fmt.Errorf("%w: cases of %s could not be resolved", ErrUnsupportedLayout, fd.TypeName)
	}
	var (
		payloads   []FieldInfo
		emptyCases uint32
	)
	for i, c := range cases {
		if c.TypeRef == nil {
			emptyCases++
			continue
		}
		payload := FieldInfo{Name: c.Name, TypeRef: c.TypeRef}
		if fd.Records[i].Flags.IsIndirectCase() {
			payload.Info = tc.reference(TIKindStrongReference)
		}
		payloads = append(payloads, payload)
	}

	switch len(payloads) {
	case 0:
		return noPayloadEnum(emptyCases), nil
	case 1:
		return tc.singlePayloadEnum(payloads[0], emptyCases)
	}
	return nil, fmt.Errorf("%w: multi-payload enum %s", ErrUnsupportedLayout, fd.TypeName)
}

func noPayloadEnum(cases uint32) *TypeInfo {
	ti := &TypeInfo{Kind: TIKindNoPayloadEnum, Alignment: 1, Stride: 1, BitwiseTakable: true}
	if cases <= 1 {
		return ti
	}
	ti.Size = tagBytes(cases)
	ti.Alignment = ti.Size
	ti.Stride = ti.Size
	ti.NumExtraInhabitants = extraTagValues(ti.Size, cases)
	return ti
}

func (tc *TypeConverter) singlePayloadEnum(payload FieldInfo, emptyCases uint32) (*TypeInfo, error) {
	if payload.Info == nil {
		ti, err := tc.GetTypeInfo(payload.TypeRef)
		if err != nil {
			return nil, fmt.Errorf("payload %s: %w", payload.Name, err)
		}
		payload.Info = ti
	}
	pti := payload.Info
	ti := &TypeInfo{
		Kind:           TIKindSinglePayloadEnum,
		Size:           pti.Size,
		Alignment:      pti.Alignment,
		BitwiseTakable: pti.BitwiseTakable,
		Fields:         []FieldInfo{payload},
	}
	if emptyCases <= pti.NumExtraInhabitants {
		ti.NumExtraInhabitants = pti.NumExtraInhabitants - emptyCases
	} else {
		tags := numTags(pti.Size, emptyCases-pti.NumExtraInhabitants, 1)
		extra := tagBytes(tags)
		ti.Size += extra
		ti.NumExtraInhabitants = extraTagValues(extra, tags)
	}
	ti.Stride = max(alignTo(ti.Size, ti.Alignment), 1)
	return ti, nil
}

// numTags is the number of tag values needed to tell the payload cases and
// the empty cases that do not fit in the payload apart.
func numTags(payloadSize, emptyCases, payloadCases uint32) uint32 {
	if emptyCases == 0 {
		return payloadCases
	}
	if payloadSize >= 4 {
		return payloadCases + 1
	}
	bits := payloadSize * 8
	return payloadCases + (emptyCases+(1<<bits)-1)>>bits
}

func tagBytes(tags uint32) uint32 {
	switch {
	case tags <= 1:
		return 0
	case tags <= 1<<8:
		return 1
	case tags <= 1<<16:
		return 2
	}
	return 4
}

func extraTagValues(size, used uint32) uint32 {
	if size == 0 {
		return 0
	}
	if size >= 4 {
		return swift.MaxNumExtraInhabitants
	}
	return min((uint32(1)<<(size*8))-used, swift.MaxNumExtraInhabitants)
}

func alignTo(n, align uint32) uint32 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

type recordBuilder struct {
	size      uint32
	alignment uint32
	extra     uint32
	notTake   bool
	fields    []FieldInfo
}

func (rb *recordBuilder) addField(name string, tr *typeref.TypeRef, ti *TypeInfo) {
	offset := alignTo(rb.size, ti.Alignment)
	rb.size = offset + ti.Size
	rb.alignment = max(rb.alignment, ti.Alignment)
	// the field with the most extra inhabitants provides the record's
	rb.extra = max(rb.extra, ti.NumExtraInhabitants)
	rb.notTake = rb.notTake || !ti.BitwiseTakable
	rb.fields = append(rb.fields, FieldInfo{Name: name, Offset: offset, TypeRef: tr, Info: ti})
}

func (rb *recordBuilder) build(kind TypeInfoKind) *TypeInfo {
	align := max(rb.alignment, 1)
	return &TypeInfo{
		Kind:                kind,
		Size:                rb.size,
		Alignment:           align,
		Stride:              max(alignTo(rb.size, align), 1),
		NumExtraInhabitants: rb.extra,
		BitwiseTakable:      !rb.notTake,
		Fields:              rb.fields,
	}
}
