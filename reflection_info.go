package reflection

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/blacktop/go-swift-reflection/swift/demangle"
	"github.com/blacktop/go-swift-reflection/types/swift"
	"github.com/blacktop/go-swift-reflection/types/typeref"
)

// ErrMalformedSection is returned when a reflection section cannot be
// decoded into whole records.
var ErrMalformedSection = errors.New("reflection: malformed reflection section")

// ReflectionSection is a contiguous range of mapped metadata starting at Addr.
type ReflectionSection struct {
	Addr uint64
	Data []byte
}

// Contains reports whether addr falls inside the section.
func (s ReflectionSection) Contains(addr uint64) bool {
	return addr >= s.Addr && addr-s.Addr < uint64(len(s.Data))
}

// ReflectionInfo holds the reflection metadata sections of one image.
type ReflectionInfo struct {
	ImageName        string `validate:"required"`
	Field            ReflectionSection
	AssociatedType   ReflectionSection
	Builtin          ReflectionSection
	TypeRef          ReflectionSection
	ReflectionString ReflectionSection
	// Resolver resolves symbolic references found in this image's names.
	// The builder's resolver is used when nil.
	Resolver ContextResolver `validate:"-"`
}

type fieldEntry struct {
	field swift.Field
	key   string
}

type assocEntry struct {
	assoc swift.AssociatedType
	key   string
	proto *typeref.TypeRef // decoded on first lookup
}

type builtinEntry struct {
	builtin swift.BuiltinType
	key     string
}

// image is a registered ReflectionInfo with its records decoded. Records
// are never modified after registration; the decoded protocol of a
// conformance is filled in on first lookup.
type image struct {
	info     ReflectionInfo
	sections [5]*ReflectionSection
	fields   []fieldEntry
	assocs   []assocEntry
	builtins []builtinEntry
}

func (img *image) resolver(b *Builder) ContextResolver {
	if img != nil && img.info.Resolver != nil {
		return img.info.Resolver
	}
	return b.resolver
}

func (img *image) section(addr uint64) (*ReflectionSection, bool) {
	for _, sec := range img.sections {
		if sec.Contains(addr) {
			return sec, true
		}
	}
	return nil, false
}

func (img *image) readMangledName(addr uint64, pointerSize int) (string, error) {
	sec, ok := img.section(addr)
	if !ok {
		return "", fmt.Errorf("mangled name address %#x is outside the reflection sections", addr)
	}
	return swift.ReadMangledName(sec.Data[addr-sec.Addr:], pointerSize)
}

func (img *image) readCString(addr uint64) (string, error) {
	sec, ok := img.section(addr)
	if !ok {
		return "", fmt.Errorf("string address %#x is outside the reflection sections", addr)
	}
	return swift.ReadCString(sec.Data[addr-sec.Addr:])
}

// AddReflectionInfo registers the reflection sections of an image. Images
// are searched in registration order. A section that cannot be split into
// whole records rejects the image, while a record whose names cannot be
// read is skipped.
func (b *Builder) AddReflectionInfo(info ReflectionInfo) error {
	if b.closed {
		return ErrClosed
	}
	if err := validate.Struct(info); err != nil {
		return fmt.Errorf("invalid reflection info: %w", err)
	}
	img := &image{info: info}
	img.sections = [5]*ReflectionSection{
		&img.info.Field,
		&img.info.AssociatedType,
		&img.info.Builtin,
		&img.info.TypeRef,
		&img.info.ReflectionString,
	}
	if err := b.readFields(img); err != nil {
		return fmt.Errorf("image %s: __swift5_fieldmd: %w", info.ImageName, err)
	}
	if err := b.readAssociatedTypes(img); err != nil {
		return fmt.Errorf("image %s: __swift5_assocty: %w", info.ImageName, err)
	}
	if err := b.readBuiltinTypes(img); err != nil {
		return fmt.Errorf("image %s: __swift5_builtin: %w", info.ImageName, err)
	}
	b.images = append(b.images, img)
	b.log.Debug("registered reflection info",
		"image", info.ImageName,
		"fields", len(img.fields),
		"associated_types", len(img.assocs),
		"builtin_types", len(img.builtins))
	return nil
}

// Images returns the names of the registered images in registration order.
func (b *Builder) Images() []string {
	var names []string
	for _, img := range b.images {
		names = append(names, img.info.ImageName)
	}
	return names
}

// Fields returns every registered field descriptor.
func (b *Builder) Fields() []*swift.Field {
	var fields []*swift.Field
	for _, img := range b.images {
		for i := range img.fields {
			fields = append(fields, &img.fields[i].field)
		}
	}
	return fields
}

// AssociatedTypes returns every registered associated type descriptor.
func (b *Builder) AssociatedTypes() []*swift.AssociatedType {
	var assocs []*swift.AssociatedType
	for _, img := range b.images {
		for i := range img.assocs {
			assocs = append(assocs, &img.assocs[i].assoc)
		}
	}
	return assocs
}

// BuiltinTypes returns every registered builtin type descriptor.
func (b *Builder) BuiltinTypes() []*swift.BuiltinType {
	var builtins []*swift.BuiltinType
	for _, img := range b.images {
		for i := range img.builtins {
			builtins = append(builtins, &img.builtins[i].builtin)
		}
	}
	return builtins
}

// readFields walks the field descriptors of img. A section whose framing
// is broken rejects the image; a descriptor whose names cannot be read is
// logged and skipped.
func (b *Builder) readFields(img *image) error {
	sec := img.info.Field
	for off := 0; off < len(sec.Data); {
		addr := sec.Addr + uint64(off)
		if len(sec.Data)-off < swift.FieldDescriptorSize {
			return fmt.Errorf("%w: truncated field descriptor at %#x", ErrMalformedSection, addr)
		}

		var fd swift.FieldDescriptor
		if err := fd.Read(bytes.NewReader(sec.Data[off:]), addr); err != nil {
			return fmt.Errorf("failed to read field descriptor at %#x: %w", addr, err)
		}
		if fd.NumFields > 0 && fd.FieldRecordSize < swift.FieldRecordDescriptorSize {
			return fmt.Errorf("%w: field record size %d at %#x", ErrMalformedSection, fd.FieldRecordSize, addr)
		}
		size := swift.FieldDescriptorSize + int(fd.NumFields)*int(fd.FieldRecordSize)
		if len(sec.Data)-off < size {
			return fmt.Errorf("%w: field descriptor at %#x needs %d bytes", ErrMalformedSection, addr, size)
		}

		if field, err := b.readField(img, fd, sec.Data[off:off+size], addr); err != nil {
			b.log.Warn("skipping unreadable field descriptor", "image", img.info.ImageName, "address", addr, "error", err)
		} else {
			img.fields = append(img.fields, fieldEntry{
				field: field,
				key:   b.registeredKey(img, field.Type, fd.MangledTypeNameOffset.GetAddress()),
			})
		}
		off += size
	}
	return nil
}

func (b *Builder) readField(img *image, fd swift.FieldDescriptor, data []byte, addr uint64) (swift.Field, error) {
	field := swift.Field{FieldDescriptor: fd, Address: addr}
	if fd.MangledTypeNameOffset.IsSet() {
		name, err := img.readMangledName(fd.MangledTypeNameOffset.GetAddress(), b.pointerSize)
		if err != nil {
			return field, fmt.Errorf("failed to read type name of field descriptor at %#x: %w", addr, err)
		}
		field.Type = name
		field.TypeName = b.displayName(img, name, fd.MangledTypeNameOffset.GetAddress())
	}
	if fd.SuperclassOffset.IsSet() {
		name, err := img.readMangledName(fd.SuperclassOffset.GetAddress(), b.pointerSize)
		if err != nil {
			return field, fmt.Errorf("failed to read superclass of field descriptor at %#x: %w", addr, err)
		}
		field.SuperClass = b.displayName(img, name, fd.SuperclassOffset.GetAddress())
	}

	for i := 0; i < int(fd.NumFields); i++ {
		roff := swift.FieldDescriptorSize + i*int(fd.FieldRecordSize)
		raddr := addr + uint64(roff)
		var rec swift.FieldRecord
		if err := rec.FieldRecordDescriptor.Read(bytes.NewReader(data[roff:]), raddr); err != nil {
			return field, fmt.Errorf("failed to read field record at %#x: %w", raddr, err)
		}
		if rec.FieldNameOffset.IsSet() {
			name, err := img.readCString(rec.FieldNameOffset.GetAddress())
			if err != nil {
				return field, fmt.Errorf("failed to read name of field record at %#x: %w", raddr, err)
			}
			rec.Name = name
		}
		if rec.HasMangledTypeName() {
			name, err := img.readMangledName(rec.MangledTypeNameOffset.GetAddress(), b.pointerSize)
			if err != nil {
				return field, fmt.Errorf("failed to read type of field record at %#x: %w", raddr, err)
			}
			rec.MangledType = name
			rec.TypeName = b.displayName(img, name, rec.MangledTypeNameOffset.GetAddress())
		}
		field.Records = append(field.Records, rec)
	}
	return field, nil
}

func (b *Builder) readAssociatedTypes(img *image) error {
	sec := img.info.AssociatedType
	for off := 0; off < len(sec.Data); {
		addr := sec.Addr + uint64(off)
		if len(sec.Data)-off < swift.AssociatedTypeDescriptorSize {
			return fmt.Errorf("%w: truncated associated type descriptor at %#x", ErrMalformedSection, addr)
		}

		var desc swift.AssociatedTypeDescriptor
		if err := desc.Read(bytes.NewReader(sec.Data[off:]), addr); err != nil {
			return fmt.Errorf("failed to read associated type descriptor at %#x: %w", addr, err)
		}
		if desc.NumAssociatedTypes > 0 && desc.AssociatedTypeRecordSize < swift.AssociatedTypeRecordSize {
			return fmt.Errorf("%w: associated type record size %d at %#x", ErrMalformedSection, desc.AssociatedTypeRecordSize, addr)
		}
		size := swift.AssociatedTypeDescriptorSize + int(desc.NumAssociatedTypes)*int(desc.AssociatedTypeRecordSize)
		if len(sec.Data)-off < size {
			return fmt.Errorf("%w: associated type descriptor at %#x needs %d bytes", ErrMalformedSection, addr, size)
		}

		if at, err := b.readAssociatedType(img, desc, sec.Data[off:off+size], addr); err != nil {
			b.log.Warn("skipping unreadable associated type descriptor", "image", img.info.ImageName, "address", addr, "error", err)
		} else {
			img.assocs = append(img.assocs, assocEntry{
				assoc: at,
				key:   b.registeredKey(img, at.ConformingTypeName, desc.ConformingTypeNameOffset.GetAddress()),
			})
		}
		off += size
	}
	return nil
}

func (b *Builder) readAssociatedType(img *image, desc swift.AssociatedTypeDescriptor, data []byte, addr uint64) (swift.AssociatedType, error) {
	at := swift.AssociatedType{AssociatedTypeDescriptor: desc, Address: addr}
	conformingAddr := desc.ConformingTypeNameOffset.GetAddress()
	name, err := img.readMangledName(conformingAddr, b.pointerSize)
	if err != nil {
		return at, fmt.Errorf("failed to read conforming type of associated type descriptor at %#x: %w", addr, err)
	}
	at.ConformingTypeName = name
	at.ConformingType = b.displayName(img, name, conformingAddr)

	protoAddr := desc.ProtocolTypeNameOffset.GetAddress()
	if name, err = img.readMangledName(protoAddr, b.pointerSize); err != nil {
		return at, fmt.Errorf("failed to read protocol of associated type descriptor at %#x: %w", addr, err)
	}
	at.ProtocolTypeName = name
	at.Protocol = b.displayName(img, name, protoAddr)

	for i := 0; i < int(desc.NumAssociatedTypes); i++ {
		roff := swift.AssociatedTypeDescriptorSize + i*int(desc.AssociatedTypeRecordSize)
		raddr := addr + uint64(roff)
		var rec swift.ATRecordType
		if err := rec.AssociatedTypeRecord.Read(bytes.NewReader(data[roff:]), raddr); err != nil {
			return at, fmt.Errorf("failed to read associated type record at %#x: %w", raddr, err)
		}
		if rec.Name, err = img.readCString(rec.NameOffset.GetAddress()); err != nil {
			return at, fmt.Errorf("failed to read name of associated type record at %#x: %w", raddr, err)
		}
		substAddr := rec.SubstitutedTypeNameOffset.GetAddress()
		if rec.SubstitutedTypeName, err = img.readMangledName(substAddr, b.pointerSize); err != nil {
			return at, fmt.Errorf("failed to read substituted type of associated type record at %#x: %w", raddr, err)
		}
		rec.SubstitutedType = b.displayName(img, rec.SubstitutedTypeName, substAddr)
		at.TypeRecords = append(at.TypeRecords, rec)
	}
	return at, nil
}

func (b *Builder) readBuiltinTypes(img *image) error {
	sec := img.info.Builtin
	if len(sec.Data)%swift.BuiltinTypeDescriptorSize != 0 {
		return fmt.Errorf("%w: section size %d is not a multiple of %d",
			ErrMalformedSection, len(sec.Data), swift.BuiltinTypeDescriptorSize)
	}
	r := bytes.NewReader(sec.Data)
	for off := 0; off < len(sec.Data); off += swift.BuiltinTypeDescriptorSize {
		addr := sec.Addr + uint64(off)
		var bt swift.BuiltinType
		if err := bt.BuiltinTypeDescriptor.Read(r, addr); err != nil {
			return fmt.Errorf("failed to read builtin type descriptor at %#x: %w", addr, err)
		}
		bt.Address = addr
		if bt.TypeNameOffset.IsSet() {
			name, err := img.readMangledName(bt.TypeNameOffset.GetAddress(), b.pointerSize)
			if err != nil {
				b.log.Warn("skipping unreadable builtin type descriptor", "image", img.info.ImageName, "address", addr, "error", err)
				continue
			}
			bt.Name = name
			bt.TypeName = b.displayName(img, name, bt.TypeNameOffset.GetAddress())
		}
		if !bt.IsValid() {
			b.log.Debug("builtin type descriptor has no layout", "image", img.info.ImageName, "address", addr, "type", bt.Name)
		}
		img.builtins = append(img.builtins, builtinEntry{
			builtin: bt,
			key:     b.registeredKey(img, bt.Name, bt.TypeNameOffset.GetAddress()),
		})
	}
	return nil
}

// symbolicRefs resolves the symbolic references of a name stored at addr.
type symbolicRefs struct {
	addr     uint64
	resolver ContextResolver
}

func (s symbolicRefs) ResolveType(control byte, offset int32, refIndex int) (*demangle.Node, error) {
	if s.resolver == nil {
		return nil, fmt.Errorf("no context resolver for symbolic reference %#02x in name at %#x", control, s.addr)
	}
	target := uint64(int64(s.addr) + int64(refIndex) + int64(offset))
	return s.resolver.ResolveContext(control, target)
}

// demangleName demangles a name read from img at addr. Names with symbolic
// references are resolved relative to addr.
func (b *Builder) demangleName(img *image, mangled string, addr uint64) (*demangle.Node, error) {
	if !swift.HasSymbolicReferences(mangled) {
		return b.demangler.DemangleType(mangled)
	}
	if img == nil && b.resolver == nil {
		return b.demangler.DemangleType(mangled)
	}
	return demangle.New(symbolicRefs{addr: addr, resolver: img.resolver(b)}).DemangleType(mangled)
}

func (b *Builder) displayName(img *image, mangled string, addr uint64) string {
	node, err := b.demangleName(img, mangled, addr)
	if err != nil {
		b.log.Debug("failed to demangle reflection name", "image", img.info.ImageName, "address", addr, "error", err)
		return mangled
	}
	return demangle.Format(node)
}

// registeredKey is the canonical mangling a record is matched by.
func (b *Builder) registeredKey(img *image, mangled string, addr uint64) string {
	if len(mangled) == 0 {
		return ""
	}
	node, err := b.demangleName(img, mangled, addr)
	if err != nil {
		return mangled
	}
	return canonicalName(node, mangled)
}

// canonical returns the canonical mangling of a name handed in by a caller.
func (b *Builder) canonical(mangled string) string {
	if key, ok := b.canon[mangled]; ok {
		return key
	}
	key := mangled
	if node, err := b.demangler.DemangleType(mangled); err == nil {
		key = canonicalName(node, mangled)
	}
	if b.canon == nil {
		b.canon = make(map[string]string)
	}
	b.canon[mangled] = key
	return key
}

func canonicalName(node *demangle.Node, fallback string) string {
	var (
		key string
		err error
	)
	if node.IsNominal() || node.Kind == demangle.KindBoundGeneric {
		key, err = demangle.MangleDecl(node)
	} else {
		key, err = demangle.Mangle(node)
	}
	if err != nil {
		return fallback
	}
	return key
}
