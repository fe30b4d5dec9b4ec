package reflection

import (
	"errors"
	"testing"

	"github.com/blacktop/go-swift-reflection/types/swift"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func layoutImage() *testImage {
	return newTestImage("main").
		builtin("Si", 8, 8, 8, 0).
		builtin("Sb", 1, 1, 1, 254).
		builtin("Bi64_", 8, 8, 8, 0).
		field(swift.FDKindStruct, "4main5PointV",
			testRecord{name: "flag", typ: "Sb"},
			testRecord{name: "count", typ: "Si"},
			testRecord{name: "other", typ: "Sb"}).
		field(swift.FDKindStruct, "4main3BoxV", testRecord{name: "item", typ: "x"}).
		field(swift.FDKindStruct, "4main5EmptyV").
		field(swift.FDKindStruct, "4main4NodeV", testRecord{name: "next", typ: "4main4NodeV"}).
		field(swift.FDKindClass, "4main3FooC", testRecord{name: "value", typ: "Si"}).
		field(swift.FDKindEnum, "4main4ModeO",
			testRecord{name: "a"}, testRecord{name: "b"}, testRecord{name: "c"}).
		field(swift.FDKindEnum, "4main3OneO", testRecord{name: "only"}).
		field(swift.FDKindEnum, "4main6ResultO",
			testRecord{name: "value", typ: "Si"}, testRecord{name: "none"}).
		field(swift.FDKindEnum, "4main4TreeO",
			testRecord{name: "leaf"},
			testRecord{name: "node", typ: "4main4TreeO", flags: swift.IsIndirectCase}).
		field(swift.FDKindEnum, "4main6EitherO",
			testRecord{name: "left", typ: "Si"}, testRecord{name: "right", typ: "Sb"})
}

var ignoreFields = cmpopts.IgnoreFields(TypeInfo{}, "Fields")

func TestGetTypeInfo(t *testing.T) {
	const maxExtra = swift.MaxNumExtraInhabitants
	tests := []struct {
		mangled string
		want    TypeInfo
	}{
		{"Bi64_", TypeInfo{Kind: TIKindBuiltin, Size: 8, Alignment: 8, Stride: 8, BitwiseTakable: true}},
		{"Si", TypeInfo{Kind: TIKindBuiltin, Size: 8, Alignment: 8, Stride: 8, BitwiseTakable: true}},
		{"4main5PointV", TypeInfo{Kind: TIKindStruct, Size: 17, Alignment: 8, Stride: 24, NumExtraInhabitants: 254, BitwiseTakable: true}},
		{"4main3BoxVySbG", TypeInfo{Kind: TIKindStruct, Size: 1, Alignment: 1, Stride: 1, NumExtraInhabitants: 254, BitwiseTakable: true}},
		{"4main5EmptyV", TypeInfo{Kind: TIKindStruct, Alignment: 1, Stride: 1, BitwiseTakable: true}},
		{"Si_Sbt", TypeInfo{Kind: TIKindTuple, Size: 9, Alignment: 8, Stride: 16, NumExtraInhabitants: 254, BitwiseTakable: true}},
		{"yt", TypeInfo{Kind: TIKindTuple, Alignment: 1, Stride: 1, BitwiseTakable: true}},
		{"SiSg", TypeInfo{Kind: TIKindSinglePayloadEnum, Size: 9, Alignment: 8, Stride: 16, NumExtraInhabitants: 254, BitwiseTakable: true}},
		{"SbSg", TypeInfo{Kind: TIKindSinglePayloadEnum, Size: 1, Alignment: 1, Stride: 1, NumExtraInhabitants: 253, BitwiseTakable: true}},
		{"4main3FooCSg", TypeInfo{Kind: TIKindSinglePayloadEnum, Size: 8, Alignment: 8, Stride: 8, NumExtraInhabitants: maxExtra - 1, BitwiseTakable: true}},
		{"4main4ModeO", TypeInfo{Kind: TIKindNoPayloadEnum, Size: 1, Alignment: 1, Stride: 1, NumExtraInhabitants: 253, BitwiseTakable: true}},
		{"4main3OneO", TypeInfo{Kind: TIKindNoPayloadEnum, Alignment: 1, Stride: 1, BitwiseTakable: true}},
		{"4main6ResultO", TypeInfo{Kind: TIKindSinglePayloadEnum, Size: 9, Alignment: 8, Stride: 16, NumExtraInhabitants: 254, BitwiseTakable: true}},
		{"4main4TreeO", TypeInfo{Kind: TIKindSinglePayloadEnum, Size: 8, Alignment: 8, Stride: 8, NumExtraInhabitants: maxExtra - 1, BitwiseTakable: true}},
		{"4main3FooC", TypeInfo{Kind: TIKindStrongReference, Size: 8, Alignment: 8, Stride: 8, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"4main3FooCSgXw", TypeInfo{Kind: TIKindWeakReference, Size: 8, Alignment: 8, Stride: 8}},
		{"4main3FooCXo", TypeInfo{Kind: TIKindUnownedReference, Size: 8, Alignment: 8, Stride: 8, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"yyc", TypeInfo{Kind: TIKindThickFunction, Size: 16, Alignment: 8, Stride: 16, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"yyXf", TypeInfo{Kind: TIKindThinFunction, Size: 8, Alignment: 8, Stride: 8, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"yyXC", TypeInfo{Kind: TIKindThinFunction, Size: 8, Alignment: 8, Stride: 8, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"yyXB", TypeInfo{Kind: TIKindStrongReference, Size: 8, Alignment: 8, Stride: 8, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"Sim", TypeInfo{Kind: TIKindMetatype, Size: 8, Alignment: 8, Stride: 8, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"yp", TypeInfo{Kind: TIKindExistential, Size: 32, Alignment: 8, Stride: 32, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"SQ_SHp", TypeInfo{Kind: TIKindExistential, Size: 48, Alignment: 8, Stride: 48, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
		{"SQ_pXp", TypeInfo{Kind: TIKindExistentialMetatype, Size: 16, Alignment: 8, Stride: 16, NumExtraInhabitants: maxExtra, BitwiseTakable: true}},
	}
	b := newTestBuilder(t, layoutImage())
	tc := b.GetTypeConverter()
	for _, tt := range tests {
		t.Run(tt.mangled, func(t *testing.T) {
			ti, err := tc.GetTypeInfo(mustDecode(t, b, tt.mangled))
			if err != nil {
				t.Fatalf("GetTypeInfo() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, *ti, ignoreFields); diff != "" {
				t.Errorf("GetTypeInfo() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetTypeInfoFields(t *testing.T) {
	b := newTestBuilder(t, layoutImage())
	ti, err := b.GetTypeConverter().GetTypeInfo(mustDecode(t, b, "4main5PointV"))
	if err != nil {
		t.Fatal(err)
	}
	type field struct {
		Name   string
		Offset uint32
		Size   uint32
	}
	var got []field
	for _, f := range ti.Fields {
		got = append(got, field{f.Name, f.Offset, f.Info.Size})
	}
	want := []field{{"flag", 0, 1}, {"count", 8, 8}, {"other", 16, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeInfoString(t *testing.T) {
	b := newTestBuilder(t, layoutImage())
	ti, err := b.GetTypeConverter().GetTypeInfo(mustDecode(t, b, "Si_Sbt"))
	if err != nil {
		t.Fatal(err)
	}
	want := "(tuple size=9 alignment=8 stride=16 num_extra_inhabitants=254 bitwise_takable=true\n" +
		"  (field name=0 offset=0\n" +
		"    (builtin size=8 alignment=8 stride=8 num_extra_inhabitants=0 bitwise_takable=true))\n" +
		"  (field name=1 offset=8\n" +
		"    (builtin size=1 alignment=1 stride=1 num_extra_inhabitants=254 bitwise_takable=true)))"
	if got := ti.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}

func TestGetTypeInfoErrors(t *testing.T) {
	tests := []struct {
		mangled string
		want    error
	}{
		{"x", ErrUnsupportedLayout},
		{"4main4LineV", ErrNotFound},
		{"Bi32_", ErrNotFound},
		{"4main3BoxVy4main4LineVG", ErrNotFound},
		{"4main6EitherO", ErrUnsupportedLayout},
		{"4main4NodeV", ErrUnsupportedLayout},
	}
	b := newTestBuilder(t, layoutImage())
	tc := b.GetTypeConverter()
	for _, tt := range tests {
		t.Run(tt.mangled, func(t *testing.T) {
			ti, err := tc.GetTypeInfo(mustDecode(t, b, tt.mangled))
			if !errors.Is(err, tt.want) {
				t.Fatalf("GetTypeInfo() = %v, %v, want %v", ti, err, tt.want)
			}
		})
	}
	if _, err := tc.GetTypeInfo(nil); !errors.Is(err, ErrUnsupportedLayout) {
		t.Errorf("GetTypeInfo(nil) error = %v, want ErrUnsupportedLayout", err)
	}
}

func TestGetTypeInfoCache(t *testing.T) {
	b := newTestBuilder(t, layoutImage())
	tc := b.GetTypeConverter()
	point := mustDecode(t, b, "4main5PointV")
	first, err := tc.GetTypeInfo(point)
	if err != nil {
		t.Fatal(err)
	}
	second, err := tc.GetTypeInfo(point)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("GetTypeInfo() did not reuse the cached layout")
	}
}

func TestGetTypeInfo32Bit(t *testing.T) {
	b, err := NewBuilder(Config{PointerSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.AddReflectionInfo(layoutImage().info()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		mangled string
		want    TypeInfo
	}{
		{"4main3FooC", TypeInfo{Kind: TIKindStrongReference, Size: 4, Alignment: 4, Stride: 4, NumExtraInhabitants: 4096, BitwiseTakable: true}},
		{"yyc", TypeInfo{Kind: TIKindThickFunction, Size: 8, Alignment: 4, Stride: 8, NumExtraInhabitants: 4096, BitwiseTakable: true}},
		{"yp", TypeInfo{Kind: TIKindExistential, Size: 16, Alignment: 4, Stride: 16, NumExtraInhabitants: 4096, BitwiseTakable: true}},
	}
	for _, tt := range tests {
		t.Run(tt.mangled, func(t *testing.T) {
			tr, err := b.DecodeMangledName(tt.mangled)
			if err != nil {
				t.Fatal(err)
			}
			ti, err := b.GetTypeConverter().GetTypeInfo(tr)
			if err != nil {
				t.Fatalf("GetTypeInfo() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, *ti, ignoreFields); diff != "" {
				t.Errorf("GetTypeInfo() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnumTagHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"no empty cases", numTags(8, 0, 1), 1},
		{"large payload", numTags(8, 300, 1), 2},
		{"one byte payload", numTags(1, 300, 1), 3},
		{"tag bytes 2", tagBytes(2), 1},
		{"tag bytes 257", tagBytes(257), 2},
		{"tag bytes 70000", tagBytes(70000), 4},
		{"extra one byte", extraTagValues(1, 3), 253},
		{"extra none", extraTagValues(0, 1), 0},
		{"align", alignTo(9, 8), 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %d, want %d", tt.got, tt.want)
			}
		})
	}
}
