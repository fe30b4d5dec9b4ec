package reflection

import (
	"encoding/binary"
	"testing"

	"github.com/blacktop/go-swift-reflection/types/swift"
	"github.com/blacktop/go-swift-reflection/types/typeref"
)

const (
	fieldAddr   = 0x10000
	assocAddr   = 0x20000
	builtinAddr = 0x30000
	typerefAddr = 0x40000
	reflstrAddr = 0x50000
)

// section lays out records at a fixed base address.
type section struct {
	addr uint64
	data []byte
}

func (s *section) next() uint64 {
	return s.addr + uint64(len(s.data))
}

func (s *section) u16(v uint16) { s.data = binary.LittleEndian.AppendUint16(s.data, v) }
func (s *section) u32(v uint32) { s.data = binary.LittleEndian.AppendUint32(s.data, v) }

// rel32 appends a relative pointer to target, 0 for none.
func (s *section) rel32(target uint64) {
	if target == 0 {
		s.u32(0)
		return
	}
	s.u32(uint32(int32(int64(target) - int64(s.next()))))
}

func (s *section) cstring(str string) uint64 {
	addr := s.next()
	s.data = append(append(s.data, str...), 0)
	return addr
}

func (s *section) info() ReflectionSection {
	return ReflectionSection{Addr: s.addr, Data: s.data}
}

// testImage assembles the reflection sections of one synthetic image.
type testImage struct {
	name                                     string
	fields, assocs, builtins, typerefs, strs section
}

func newTestImage(name string) *testImage {
	return &testImage{
		name:     name,
		fields:   section{addr: fieldAddr},
		assocs:   section{addr: assocAddr},
		builtins: section{addr: builtinAddr},
		typerefs: section{addr: typerefAddr},
		strs:     section{addr: reflstrAddr},
	}
}

type testRecord struct {
	name  string
	typ   string
	flags swift.FieldRecordFlags
}

func (img *testImage) typeName(mangled string) uint64 {
	if len(mangled) == 0 {
		return 0
	}
	return img.typerefs.cstring(mangled)
}

func (img *testImage) field(kind swift.FieldDescriptorKind, mangled string, records ...testRecord) *testImage {
	img.fields.rel32(img.typeName(mangled))
	img.fields.rel32(0)
	img.fields.u16(uint16(kind))
	img.fields.u16(swift.FieldRecordDescriptorSize)
	img.fields.u32(uint32(len(records)))
	for _, rec := range records {
		img.fields.u32(uint32(rec.flags))
		img.fields.rel32(img.typeName(rec.typ))
		img.fields.rel32(img.strs.cstring(rec.name))
	}
	return img
}

func (img *testImage) assoc(conforming, protocol string, witnesses ...[2]string) *testImage {
	img.assocs.rel32(img.typeName(conforming))
	img.assocs.rel32(img.typeName(protocol))
	img.assocs.u32(uint32(len(witnesses)))
	img.assocs.u32(swift.AssociatedTypeRecordSize)
	for _, w := range witnesses {
		img.assocs.rel32(img.strs.cstring(w[0]))
		img.assocs.rel32(img.typeName(w[1]))
	}
	return img
}

func (img *testImage) builtin(mangled string, size, align, stride, extra uint32) *testImage {
	img.builtins.rel32(img.typeName(mangled))
	img.builtins.u32(size)
	img.builtins.u32(align | 1<<16) // bitwise takable
	img.builtins.u32(stride)
	img.builtins.u32(extra)
	return img
}

func (img *testImage) info() ReflectionInfo {
	return ReflectionInfo{
		ImageName:        img.name,
		Field:            img.fields.info(),
		AssociatedType:   img.assocs.info(),
		Builtin:          img.builtins.info(),
		TypeRef:          img.typerefs.info(),
		ReflectionString: img.strs.info(),
	}
}

func newTestBuilder(t *testing.T, images ...*testImage) *Builder {
	t.Helper()
	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	for _, img := range images {
		if err := b.AddReflectionInfo(img.info()); err != nil {
			t.Fatalf("AddReflectionInfo(%s) failed: %v", img.name, err)
		}
	}
	return b
}

func mustDecode(t *testing.T, b *Builder, mangled string) *typeref.TypeRef {
	t.Helper()
	tr, err := b.DecodeMangledName(mangled)
	if err != nil {
		t.Fatalf("DecodeMangledName(%q) failed: %v", mangled, err)
	}
	return tr
}
