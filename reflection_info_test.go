package reflection

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/blacktop/go-swift-reflection/swift/demangle"
	"github.com/blacktop/go-swift-reflection/types/swift"
	"github.com/google/go-cmp/cmp"
)

func TestAddReflectionInfoValidation(t *testing.T) {
	b := newTestBuilder(t)
	if err := b.AddReflectionInfo(ReflectionInfo{}); err == nil {
		t.Fatal("AddReflectionInfo() accepted an image without a name")
	}
	if err := b.AddReflectionInfo(ReflectionInfo{ImageName: "empty"}); err != nil {
		t.Fatalf("AddReflectionInfo() with empty sections failed: %v", err)
	}
	if diff := cmp.Diff([]string{"empty"}, b.Images()); diff != "" {
		t.Errorf("Images() mismatch (-want +got):\n%s", diff)
	}
}

func TestAddReflectionInfoMalformed(t *testing.T) {
	valid := newTestImage("main").
		field(swift.FDKindStruct, "4main5PointV", testRecord{name: "x", typ: "Si"}).
		assoc("4main5OuterV", "4main1PP", [2]string{"Member1", "Si"}).
		builtin("Bi64_", 8, 8, 8, 0).
		info()

	tests := []struct {
		name    string
		corrupt func(*ReflectionInfo)
		want    error
	}{
		{
			"truncated field descriptor",
			func(info *ReflectionInfo) { info.Field.Data = info.Field.Data[:10] },
			ErrMalformedSection,
		},
		{
			"truncated field records",
			func(info *ReflectionInfo) { info.Field.Data = info.Field.Data[:swift.FieldDescriptorSize+4] },
			ErrMalformedSection,
		},
		{
			"short field record size",
			func(info *ReflectionInfo) {
				data := append([]byte(nil), info.Field.Data...)
				binary.LittleEndian.PutUint16(data[10:], 4)
				info.Field.Data = data
			},
			ErrMalformedSection,
		},
		{
			"truncated associated type descriptor",
			func(info *ReflectionInfo) { info.AssociatedType.Data = info.AssociatedType.Data[:12] },
			ErrMalformedSection,
		},
		{
			"builtin section not a whole number of descriptors",
			func(info *ReflectionInfo) { info.Builtin.Data = append(append([]byte(nil), info.Builtin.Data...), 0) },
			ErrMalformedSection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(t)
			info := valid
			tt.corrupt(&info)
			err := b.AddReflectionInfo(info)
			if err == nil {
				t.Fatal("AddReflectionInfo() accepted a malformed image")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("AddReflectionInfo() error = %v, want %v", err, tt.want)
			}
			if len(b.Images()) != 0 {
				t.Errorf("malformed image was registered: %v", b.Images())
			}
		})
	}
}

func TestAddReflectionInfoSkipsUnreadableRecords(t *testing.T) {
	t.Run("unterminated field name", func(t *testing.T) {
		info := newTestImage("main").
			field(swift.FDKindStruct, "4main5PointV", testRecord{name: "x", typ: "Si"}).
			field(swift.FDKindStruct, "4main4LineV", testRecord{name: "start", typ: "4main5PointV"}).
			info()
		// drop the terminator of the last field name
		info.ReflectionString.Data = info.ReflectionString.Data[:len(info.ReflectionString.Data)-1]

		b := newTestBuilder(t)
		if err := b.AddReflectionInfo(info); err != nil {
			t.Fatalf("AddReflectionInfo() failed: %v", err)
		}
		fields := b.Fields()
		if len(fields) != 1 || fields[0].TypeName != "main.Point" {
			t.Fatalf("Fields() = %v, want only main.Point", fields)
		}
		if fd := b.GetFieldTypeInfo(b.CreateNominalType("4main4LineV", nil)); fd != nil {
			t.Errorf("GetFieldTypeInfo(main.Line) = %v, want nil", fd)
		}
	})

	t.Run("type names outside the sections", func(t *testing.T) {
		info := newTestImage("main").
			field(swift.FDKindStruct, "4main5PointV", testRecord{name: "x", typ: "Si"}).
			assoc("4main5OuterV", "4main1PP", [2]string{"Member1", "Si"}).
			builtin("Bi64_", 8, 8, 8, 0).
			info()
		info.TypeRef.Addr = 0x90000

		b := newTestBuilder(t)
		if err := b.AddReflectionInfo(info); err != nil {
			t.Fatalf("AddReflectionInfo() failed: %v", err)
		}
		if diff := cmp.Diff([]string{"main"}, b.Images()); diff != "" {
			t.Errorf("Images() mismatch (-want +got):\n%s", diff)
		}
		if n := len(b.Fields()) + len(b.AssociatedTypes()) + len(b.BuiltinTypes()); n != 0 {
			t.Errorf("%d unreadable descriptors were registered", n)
		}
	})
}

func TestRegisteredRecords(t *testing.T) {
	b := newTestBuilder(t,
		newTestImage("first").
			field(swift.FDKindStruct, "4main5PointV",
				testRecord{name: "x", typ: "Si", flags: swift.IsVar},
				testRecord{name: "y", typ: "Si"}).
			assoc("4main5OuterV", "4main1PP", [2]string{"Member1", "SS"}),
		newTestImage("second").
			builtin("Bi64_", 8, 8, 8, 0).
			field(swift.FDKindEnum, "4main4ModeO", testRecord{name: "none"}),
	)

	if diff := cmp.Diff([]string{"first", "second"}, b.Images()); diff != "" {
		t.Errorf("Images() mismatch (-want +got):\n%s", diff)
	}

	fields := b.Fields()
	if len(fields) != 2 {
		t.Fatalf("Fields() returned %d descriptors, want 2", len(fields))
	}
	point := fields[0]
	if point.Type != "4main5PointV" || point.TypeName != "main.Point" {
		t.Errorf("field descriptor names = %q, %q", point.Type, point.TypeName)
	}
	if point.Address != fieldAddr {
		t.Errorf("field descriptor address = %#x, want %#x", point.Address, fieldAddr)
	}
	var records [][3]string
	for _, rec := range point.Records {
		records = append(records, [3]string{rec.Name, rec.MangledType, rec.TypeName})
	}
	want := [][3]string{{"x", "Si", "Swift.Int"}, {"y", "Si", "Swift.Int"}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if !point.Records[0].Flags.IsVar() {
		t.Error("record flags were not decoded")
	}
	if !fields[1].IsEnum() || fields[1].Records[0].HasMangledTypeName() {
		t.Errorf("unexpected enum descriptor %v", fields[1])
	}

	assocs := b.AssociatedTypes()
	if len(assocs) != 1 {
		t.Fatalf("AssociatedTypes() returned %d descriptors, want 1", len(assocs))
	}
	at := assocs[0]
	if at.ConformingType != "main.Outer" || at.Protocol != "main.P" {
		t.Errorf("conformance = %s : %s", at.ConformingType, at.Protocol)
	}
	if rec := at.Record("Member1"); rec == nil || rec.SubstitutedType != "Swift.String" {
		t.Errorf("Record(Member1) = %v", rec)
	}

	builtins := b.BuiltinTypes()
	if len(builtins) != 1 {
		t.Fatalf("BuiltinTypes() returned %d descriptors, want 1", len(builtins))
	}
	if bt := builtins[0]; bt.Name != "Bi64_" || bt.TypeName != "Builtin.Int64" || !bt.IsValid() {
		t.Errorf("unexpected builtin descriptor %v", bt)
	}
}

type stubResolver struct {
	calls []uint64
	kinds []byte
}

func (r *stubResolver) ResolveContext(kind byte, addr uint64) (*demangle.Node, error) {
	r.calls = append(r.calls, addr)
	r.kinds = append(r.kinds, kind)
	node := demangle.NewNode(demangle.KindStructure, "Point")
	node.Append(demangle.NewNode(demangle.KindModule, "main"))
	return node, nil
}

// symbolic builds a name made of a single direct context reference.
func symbolic(offset int32) string {
	buf := []byte{swift.SymbolicRefDirectContext}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(offset))
	return string(buf)
}

func TestSymbolicReferences(t *testing.T) {
	img := newTestImage("main").
		field(swift.FDKindStruct, symbolic(0x10), testRecord{name: "x", typ: "Si"}).
		field(swift.FDKindStruct, "4main4LineV", testRecord{name: "start", typ: symbolic(0x20)})

	tests := []struct {
		name        string
		imageScoped bool
	}{
		{"image resolver", true},
		{"builder resolver", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{}
			conf := Config{}
			info := img.info()
			if tt.imageScoped {
				info.Resolver = resolver
				conf.Resolver = &stubResolver{}
			} else {
				conf.Resolver = resolver
			}
			b, err := NewBuilder(conf)
			if err != nil {
				t.Fatal(err)
			}
			defer b.Close()
			if err := b.AddReflectionInfo(info); err != nil {
				t.Fatalf("AddReflectionInfo() failed: %v", err)
			}

			fields := b.Fields()
			if got := fields[0].TypeName; got != "main.Point" {
				t.Errorf("TypeName = %q, want main.Point", got)
			}
			// the reference is relative to the byte after the control byte
			if len(resolver.calls) == 0 || resolver.calls[0] != typerefAddr+1+0x10 {
				t.Fatalf("resolver calls = %#x, want %#x first", resolver.calls, typerefAddr+1+0x10)
			}
			if resolver.kinds[0] != swift.SymbolicRefDirectContext {
				t.Errorf("resolver kind = %#x", resolver.kinds[0])
			}

			if fd := b.GetFieldTypeInfo(b.CreateNominalType("4main5PointV", nil)); fd != fields[0] {
				t.Errorf("GetFieldTypeInfo() = %v, want the symbolic descriptor", fd)
			}

			line := b.CreateNominalType("4main4LineV", nil)
			refs := b.GetFieldTypeRefs(line, b.GetFieldTypeInfo(line))
			if len(refs) != 1 || refs[0].TypeRef == nil || refs[0].TypeRef.MangledName != "4main5PointV" {
				t.Errorf("GetFieldTypeRefs() = %v", summarize(refs))
			}
		})
	}
}

func TestSymbolicReferenceWithoutResolver(t *testing.T) {
	b := newTestBuilder(t, newTestImage("main").
		field(swift.FDKindStruct, symbolic(0x10), testRecord{name: "x", typ: "Si"}))
	fields := b.Fields()
	if len(fields) != 1 {
		t.Fatalf("Fields() returned %d descriptors, want 1", len(fields))
	}
	// the raw name is kept when the reference cannot be resolved
	if fields[0].TypeName != fields[0].Type {
		t.Errorf("TypeName = %q, want the raw name", fields[0].TypeName)
	}
}
