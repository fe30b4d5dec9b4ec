package reflection

import (
	"github.com/blacktop/go-swift-reflection/types/swift"
	"github.com/blacktop/go-swift-reflection/types/typeref"
)

// FieldTypeRef is a field (or enum case) name with its substituted type.
// TypeRef is nil for enum cases without a payload.
type FieldTypeRef struct {
	Name    string
	TypeRef *typeref.TypeRef
}

func (b *Builder) matches(raw, key, mangled string) bool {
	if len(mangled) == 0 {
		return false
	}
	return raw == mangled || (len(key) > 0 && key == b.canonical(mangled))
}

// GetFieldTypeInfo returns the field descriptor of a nominal or bound
// generic type. When several images describe the same type the first
// registered one wins.
func (b *Builder) GetFieldTypeInfo(tr *typeref.TypeRef) *swift.Field {
	if b.closed || !tr.IsNominal() {
		return nil
	}
	for _, img := range b.images {
		for i := range img.fields {
			e := &img.fields[i]
			if b.matches(e.field.Type, e.key, tr.MangledName) {
				return &e.field
			}
		}
	}
	b.log.Debug("no field descriptor", "type", tr.MangledName)
	return nil
}

func (b *Builder) imageOfField(fd *swift.Field) *image {
	for _, img := range b.images {
		for i := range img.fields {
			if &img.fields[i].field == fd {
				return img
			}
		}
	}
	return nil
}

// GetFieldTypeRefs decodes the type of every record of fd and binds the
// generic parameters of the enclosing type tr. Records are returned in
// declaration order. The result is empty if any record fails to decode.
func (b *Builder) GetFieldTypeRefs(tr *typeref.TypeRef, fd *swift.Field) []FieldTypeRef {
	if b.closed || fd == nil {
		return nil
	}
	img := b.imageOfField(fd)
	if img == nil {
		b.log.Debug("field descriptor is not registered with this builder", "address", fd.Address)
		return nil
	}
	subs := tr.SubstMap()
	fields := make([]FieldTypeRef, 0, len(fd.Records))
	for _, rec := range fd.Records {
		if len(rec.MangledType) == 0 {
			fields = append(fields, FieldTypeRef{Name: rec.Name})
			continue
		}
		unsubst, err := b.decodeName(img, rec.MangledType, rec.MangledTypeNameOffset.GetAddress())
		if err != nil {
			b.log.Debug("failed to decode field type", "image", img.info.ImageName, "field", rec.Name, "error", err)
			return nil
		}
		subst := b.subst(unsubst, subs, newResolution(false))
		if subst == nil {
			b.log.Debug("failed to substitute field type", "image", img.info.ImageName, "field", rec.Name)
			return nil
		}
		fields = append(fields, FieldTypeRef{Name: rec.Name, TypeRef: subst})
	}
	return fields
}

// protocolOf returns the decoded protocol of an associated type descriptor.
func (b *Builder) protocolOf(img *image, e *assocEntry) *typeref.TypeRef {
	if e.proto == nil {
		proto, err := b.decodeName(img, e.assoc.ProtocolTypeName, e.assoc.ProtocolTypeNameOffset.GetAddress())
		if err != nil {
			b.log.Debug("failed to decode conformance protocol", "image", img.info.ImageName, "protocol", e.assoc.ProtocolTypeName, "error", err)
			return nil
		}
		e.proto = proto
	}
	return e.proto
}

// lookupAssociatedTypes finds the type witness record of dm.Member in the
// conformance of mangledTypeName to dm.Protocol.
func (b *Builder) lookupAssociatedTypes(mangledTypeName string, dm *typeref.TypeRef) (*image, *swift.ATRecordType) {
	for _, img := range b.images {
		for i := range img.assocs {
			e := &img.assocs[i]
			if !b.matches(e.assoc.ConformingTypeName, e.key, mangledTypeName) {
				continue
			}
			if !typeref.Equal(b.protocolOf(img, e), dm.Protocol) {
				continue
			}
			if rec := e.assoc.Record(dm.Member); rec != nil {
				return img, rec
			}
		}
	}
	return nil, nil
}

// GetDependentMemberTypeRef resolves the associated type dm of the type
// named mangledTypeName to its witness. A base that is itself a dependent
// member is resolved first and the member is looked up on the result.
// Witnesses that are dependent members are followed until a type without
// one is reached. A missing conformance anywhere along the chain, or a
// chain that loops, yields nil.
func (b *Builder) GetDependentMemberTypeRef(mangledTypeName string, dm *typeref.TypeRef) *typeref.TypeRef {
	if b.closed || dm == nil || dm.Kind != typeref.DependentMember {
		return nil
	}
	witness, _ := b.dependentMember(mangledTypeName, dm, newResolution(true))
	return witness
}

// dependentMember reports found=false only when no conformance binds the
// member; a nil witness with found=true means the witness could not be built.
func (b *Builder) dependentMember(mangledTypeName string, dm *typeref.TypeRef, res *resolution) (witness *typeref.TypeRef, found bool) {
	if dm.Base != nil && dm.Base.Kind == typeref.DependentMember {
		base := b.subst(dm.Base, nil, res)
		if base == nil || !base.IsNominal() {
			b.log.Debug("dependent member base did not resolve to a nominal type", "type", mangledTypeName, "member", dm.Member)
			return nil, true
		}
		if dm = b.CreateDependentMemberType(dm.Member, base, dm.Protocol); dm == nil {
			return nil, true
		}
		mangledTypeName = base.MangledName
	}
	key := b.canonical(mangledTypeName) + "." + dm.Member
	if dm.Protocol != nil {
		key += ":" + dm.Protocol.Module + "." + dm.Protocol.Name
	}
	if res.visiting[key] {
		b.log.Debug("associated type witness refers to itself", "type", mangledTypeName, "member", dm.Member)
		return nil, true
	}
	res.visiting[key] = true
	defer delete(res.visiting, key)

	img, rec := b.lookupAssociatedTypes(mangledTypeName, dm)
	if rec == nil {
		b.log.Debug("no associated type witness", "type", mangledTypeName, "member", dm.Member)
		return nil, false
	}
	tr, err := b.decodeName(img, rec.SubstitutedTypeName, rec.SubstitutedTypeNameOffset.GetAddress())
	if err != nil {
		b.log.Debug("failed to decode associated type witness", "image", img.info.ImageName, "member", dm.Member, "error", err)
		return nil, true
	}
	return b.subst(tr, dm.Base.SubstMap(), res), true
}

// GetBuiltinTypeInfo returns the layout descriptor registered for a builtin,
// nominal or bound generic type. Descriptors without a layout are skipped.
func (b *Builder) GetBuiltinTypeInfo(tr *typeref.TypeRef) *swift.BuiltinType {
	if b.closed || tr == nil {
		return nil
	}
	switch tr.Kind {
	case typeref.Builtin, typeref.Nominal, typeref.BoundGeneric:
	default:
		return nil
	}
	for _, img := range b.images {
		for i := range img.builtins {
			e := &img.builtins[i]
			if !e.builtin.IsValid() {
				continue
			}
			if b.matches(e.builtin.Name, e.key, tr.MangledName) {
				return &e.builtin
			}
		}
	}
	b.log.Debug("no builtin type descriptor", "type", tr.MangledName)
	return nil
}
