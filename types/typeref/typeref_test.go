package typeref

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func nominal(mangled string) *TypeRef {
	return &TypeRef{Kind: Nominal, MangledName: mangled}
}

func param(depth, index uint32) *TypeRef {
	return &TypeRef{Kind: GenericTypeParameter, Depth: depth, Index: index}
}

func TestEqual(t *testing.T) {
	sequence := &TypeRef{Kind: Protocol, Module: "Swift", Name: "Sequence"}
	tests := []struct {
		name string
		a, b *TypeRef
		want bool
	}{
		{"nil", nil, nil, true},
		{"nil and nominal", nil, nominal("Si"), false},
		{"distinct identical nominals", nominal("Si"), nominal("Si"), true},
		{"different nominals", nominal("Si"), nominal("SS"), false},
		{
			"bound generics",
			&TypeRef{Kind: BoundGeneric, MangledName: "Sa", Args: []*TypeRef{nominal("Si")}},
			&TypeRef{Kind: BoundGeneric, MangledName: "Sa", Args: []*TypeRef{nominal("Si")}},
			true,
		},
		{
			"bound generic argument order",
			&TypeRef{Kind: BoundGeneric, MangledName: "SD", Args: []*TypeRef{nominal("SS"), nominal("Si")}},
			&TypeRef{Kind: BoundGeneric, MangledName: "SD", Args: []*TypeRef{nominal("Si"), nominal("SS")}},
			false,
		},
		{
			"nominal parents",
			&TypeRef{Kind: Nominal, MangledName: "4main1AV1BV", Parent: nominal("4main1AV")},
			&TypeRef{Kind: Nominal, MangledName: "4main1AV1BV"},
			false,
		},
		{
			"tuple variadic",
			&TypeRef{Kind: Tuple, Elements: []*TypeRef{nominal("Si")}, Variadic: true},
			&TypeRef{Kind: Tuple, Elements: []*TypeRef{nominal("Si")}},
			false,
		},
		{
			"function flags",
			&TypeRef{Kind: Function, Result: nominal("Si"), Flags: FunctionTypeFlags{Throws: true}},
			&TypeRef{Kind: Function, Result: nominal("Si")},
			false,
		},
		{"generic params", param(0, 1), param(0, 1), true},
		{"generic param slots", param(0, 1), param(1, 0), false},
		{
			"dependent members",
			&TypeRef{Kind: DependentMember, Member: "Element", Base: param(0, 0), Protocol: sequence},
			&TypeRef{Kind: DependentMember, Member: "Element", Base: param(0, 0), Protocol: &TypeRef{Kind: Protocol, Module: "Swift", Name: "Sequence"}},
			true,
		},
		{"singletons", UnnamedObjCClass(), UnnamedObjCClass(), true},
		{"different singletons", UnnamedObjCClass(), UnnamedForeignClass(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestIsConcrete(t *testing.T) {
	tests := []struct {
		name string
		tr   *TypeRef
		want bool
	}{
		{"nominal", nominal("Si"), true},
		{"param", param(0, 0), false},
		{"bound generic over param", &TypeRef{Kind: BoundGeneric, MangledName: "Sa", Args: []*TypeRef{param(0, 0)}}, false},
		{"tuple", &TypeRef{Kind: Tuple, Elements: []*TypeRef{nominal("Si"), nominal("SS")}}, true},
		{"function result", &TypeRef{Kind: Function, Result: param(0, 0)}, false},
		{"metatype", &TypeRef{Kind: Metatype, Instance: nominal("Si")}, true},
		{"weak storage", &TypeRef{Kind: WeakStorage, Base: param(1, 0)}, false},
		{"dependent member on param", &TypeRef{Kind: DependentMember, Member: "Element", Base: param(0, 0)}, false},
		{"opaque", OpaqueType(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tr.IsConcrete(); got != tt.want {
				t.Errorf("IsConcrete() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestSubstMap(t *testing.T) {
	outer := &TypeRef{Kind: BoundGeneric, MangledName: "4main5OuterV", Args: []*TypeRef{nominal("Si")}}
	middle := &TypeRef{Kind: Nominal, MangledName: "4main5OuterV6MiddleV", Parent: outer}
	inner := &TypeRef{
		Kind:        BoundGeneric,
		MangledName: "4main5OuterV6MiddleV5InnerV",
		Args:        []*TypeRef{nominal("SS"), nominal("Sb")},
		Parent:      middle,
	}

	want := GenericArgumentMap{
		{Depth: 0, Index: 0}: nominal("Si"),
		{Depth: 1, Index: 0}: nominal("SS"),
		{Depth: 1, Index: 1}: nominal("Sb"),
	}
	if diff := cmp.Diff(want, inner.SubstMap()); diff != "" {
		t.Errorf("SubstMap() mismatch (-want +got):\n%s", diff)
	}
	if got := middle.SubstMap(); len(got) != 1 {
		t.Errorf("middle SubstMap() = %v, want one binding", got)
	}
	if got := nominal("Si").SubstMap(); len(got) != 0 {
		t.Errorf("nominal SubstMap() = %v, want none", got)
	}
	if got := inner.GenericDepth(); got != 1 {
		t.Errorf("GenericDepth() = %d, want 1", got)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		tr   *TypeRef
		want string
	}{
		{"builtin", &TypeRef{Kind: Builtin, MangledName: "Bi64_"}, "(builtin Builtin.Int64)"},
		{"struct", nominal("Si"), "(struct Swift.Int)"},
		{"class", nominal("4main3FooC"), "(class main.Foo)"},
		{
			"bound generic",
			&TypeRef{Kind: BoundGeneric, MangledName: "Sa", Args: []*TypeRef{nominal("Si")}},
			"(bound_generic_struct Swift.Array\n  (struct Swift.Int))",
		},
		{
			"nested",
			&TypeRef{Kind: Nominal, MangledName: "4main1AV1BO", Parent: nominal("4main1AV")},
			"(enum main.A.B\n  (parent\n    (struct main.A)))",
		},
		{
			"function",
			&TypeRef{
				Kind:   Function,
				Args:   []*TypeRef{nominal("Si")},
				Result: &TypeRef{Kind: Tuple},
				Flags:  FunctionTypeFlags{Escaping: true, Throws: true},
			},
			"(function throws\n  (parameters\n    (struct Swift.Int))\n  (result\n    (tuple)))",
		},
		{
			"dependent member",
			&TypeRef{
				Kind:     DependentMember,
				Member:   "Element",
				Base:     param(0, 0),
				Protocol: &TypeRef{Kind: Protocol, Module: "Swift", Name: "Sequence"},
			},
			"(dependent_member member=Element\n  (generic_type_parameter depth=0 index=0)\n  (protocol Swift.Sequence))",
		},
		{"opaque", OpaqueType(), "(opaque)"},
		{"objc class", UnnamedObjCClass(), "(objective_c_class)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tr.String(); got != tt.want {
				t.Errorf("String() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestVerbose(t *testing.T) {
	if got, want := nominal("Si").Verbose(), "(struct Swift.Int mangled=Si)"; got != want {
		t.Errorf("Verbose() = %q, want %q", got, want)
	}
	proto := &TypeRef{Kind: Protocol, Module: "Swift", Name: "Sequence"}
	if got, want := proto.Verbose(), "(protocol Swift.Sequence mangled=ST)"; got != want {
		t.Errorf("Verbose() = %q, want %q", got, want)
	}
}
