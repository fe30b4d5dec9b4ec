package swift

import (
	"encoding/binary"
	"fmt"
	"io"
)

// __TEXT.__swift5_fieldmd
// This section contains an array of field descriptors.
// A field descriptor contains a collection of field records for a single class,
// struct or enum declaration. Each field descriptor can be a different length depending on how many field records the type contains.

// Field is a decoded field descriptor together with its records.
type Field struct {
	FieldDescriptor
	Address    uint64
	Type       string // mangled name as stored in the image
	TypeName   string // demangled
	SuperClass string
	Records    []FieldRecord
}

func (f Field) IsEnum() bool {
	return f.Kind == FDKindEnum || f.Kind == FDKindMultiPayloadEnum
}
func (f Field) IsClass() bool {
	return f.Kind == FDKindClass || f.Kind == FDKindObjCClass
}
func (f Field) IsProtocol() bool {
	return f.Kind == FDKindProtocol || f.Kind == FDKindClassProtocol || f.Kind == FDKindObjCProtocol
}
func (f Field) IsStruct() bool {
	return f.Kind == FDKindStruct
}
func (f Field) HasMangledTypeName() bool {
	return f.MangledTypeNameOffset.IsSet()
}

func (f Field) String() string {
	return f.dump(false)
}
func (f Field) Verbose() string {
	return f.dump(true)
}
func (f Field) dump(verbose bool) string {
	var recs string
	if len(f.Records) > 0 {
		recs = "\n"
	}
	for _, r := range f.Records {
		var flags string
		if f.IsEnum() {
			flags = "case"
			if r.Flags.IsIndirectCase() {
				flags = "indirect case"
			}
		} else {
			flags = r.Flags.String()
		}
		var typ string
		if len(r.MangledType) > 0 {
			typ = ": " + r.displayType()
		}
		recs += fmt.Sprintf("    %s %s%s\n", flags, r.Name, typ)
	}
	var addr string
	if verbose {
		addr = fmt.Sprintf("// %#x\n", f.Address)
	}
	name := f.TypeName
	if len(name) == 0 {
		name = f.Type
	}
	if len(f.SuperClass) > 0 {
		return fmt.Sprintf("%s%s %s: %s {%s}", addr, f.Kind, name, f.SuperClass, recs)
	}
	return fmt.Sprintf("%s%s %s {%s}", addr, f.Kind, name, recs)
}

type FieldDescriptorKind uint16

const (
	// Swift nominal types.
	FDKindStruct FieldDescriptorKind = iota // struct
	FDKindClass                             // class
	FDKindEnum                              // enum

	// Fixed-size multi-payload enums have a special descriptor format that
	// encodes spare bits.
	FDKindMultiPayloadEnum // multi-payload enum

	// A Swift opaque protocol. There are no fields, just a record for the
	// type itself.
	FDKindProtocol // protocol

	// A Swift class-bound protocol.
	FDKindClassProtocol // class protocol

	// An Objective-C protocol, which may be imported or defined in Swift.
	FDKindObjCProtocol // objc protocol

	// An Objective-C class, which may be imported or defined in Swift.
	// In the former case, field type metadata is not emitted, and
	// must be obtained from the Objective-C runtime.
	FDKindObjCClass // objc class
)

var fieldDescriptorKindNames = [...]string{
	FDKindStruct:           "struct",
	FDKindClass:            "class",
	FDKindEnum:             "enum",
	FDKindMultiPayloadEnum: "multi-payload enum",
	FDKindProtocol:         "protocol",
	FDKindClassProtocol:    "class protocol",
	FDKindObjCProtocol:     "objc protocol",
	FDKindObjCClass:        "objc class",
}

func (k FieldDescriptorKind) String() string {
	if int(k) < len(fieldDescriptorKindNames) {
		return fieldDescriptorKindNames[k]
	}
	return fmt.Sprintf("FieldDescriptorKind(%d)", k)
}

// FieldDescriptor contain a collection of field records for a single class, struct or enum declaration.
// ref: swift/include/swift/Reflection/Records.h
type FieldDescriptor struct {
	MangledTypeNameOffset RelativeDirectPointer
	SuperclassOffset      RelativeDirectPointer
	Kind                  FieldDescriptorKind
	FieldRecordSize       uint16
	NumFields             uint32
}

// FieldDescriptorSize is the encoded size of a FieldDescriptor header.
const FieldDescriptorSize = 16

func (fd *FieldDescriptor) Read(r io.Reader, addr uint64) error {
	if err := fd.MangledTypeNameOffset.Read(r, addr); err != nil {
		return err
	}
	if err := fd.SuperclassOffset.Read(r, addr+sizeOfRelOff); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &fd.Kind); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &fd.FieldRecordSize); err != nil {
		return err
	}
	return binary.Read(r, binary.LittleEndian, &fd.NumFields)
}

type FieldRecord struct {
	FieldRecordDescriptor
	Name        string
	MangledType string
	TypeName    string // demangled
}

func (r FieldRecord) HasMangledTypeName() bool {
	return r.MangledTypeNameOffset.IsSet()
}

func (r FieldRecord) displayType() string {
	if len(r.TypeName) > 0 {
		return r.TypeName
	}
	return r.MangledType
}

type FieldRecordDescriptor struct {
	Flags                 FieldRecordFlags
	MangledTypeNameOffset RelativeDirectPointer
	FieldNameOffset       RelativeDirectPointer
}

// FieldRecordDescriptorSize is the encoded size of a FieldRecordDescriptor.
const FieldRecordDescriptorSize = 12

func (frd *FieldRecordDescriptor) Read(r io.Reader, addr uint64) error {
	if err := binary.Read(r, binary.LittleEndian, &frd.Flags); err != nil {
		return err
	}
	if err := frd.MangledTypeNameOffset.Read(r, addr+4); err != nil {
		return err
	}
	return frd.FieldNameOffset.Read(r, addr+4+sizeOfRelOff)
}

type FieldRecordFlags uint32

const (
	// IsIndirectCase is this an indirect enum case?
	IsIndirectCase FieldRecordFlags = 0x1
	// IsVar is this a mutable `var` property?
	IsVar FieldRecordFlags = 0x2
	// IsArtificial is this an artificial field?
	IsArtificial FieldRecordFlags = 0x4
)

func (f FieldRecordFlags) IsIndirectCase() bool {
	return (f & IsIndirectCase) == IsIndirectCase
}
func (f FieldRecordFlags) IsVar() bool {
	return (f & IsVar) == IsVar
}
func (f FieldRecordFlags) IsArtificial() bool {
	return (f & IsArtificial) == IsArtificial
}

func (f FieldRecordFlags) String() string {
	out := "let"
	if f.IsVar() {
		out = "var"
	}
	if f.IsArtificial() {
		out = "artificial " + out
	}
	return out
}
