package swift

import (
	"encoding/binary"
	"fmt"
	"io"
)

type ContextDescriptorKind uint8

const (
	// This context descriptor represents a module.
	CDKindModule ContextDescriptorKind = 0 // module
	// This context descriptor represents an extension.
	CDKindExtension ContextDescriptorKind = 1 // extension
	// This context descriptor represents an anonymous possibly-generic context
	// such as a function body.
	CDKindAnonymous ContextDescriptorKind = 2 // anonymous
	// This context descriptor represents a protocol context.
	CDKindProtocol ContextDescriptorKind = 3 // protocol
	// This context descriptor represents an opaque type alias.
	CDKindOpaqueType ContextDescriptorKind = 4 // opaque_type
	// This context descriptor represents a class.
	CDKindClass ContextDescriptorKind = 16 // class
	// This context descriptor represents a struct.
	CDKindStruct ContextDescriptorKind = 17 // struct
	// This context descriptor represents an enum.
	CDKindEnum ContextDescriptorKind = 18 // enum
)

func (k ContextDescriptorKind) String() string {
	switch k {
	case CDKindModule:
		return "module"
	case CDKindExtension:
		return "extension"
	case CDKindAnonymous:
		return "anonymous"
	case CDKindProtocol:
		return "protocol"
	case CDKindOpaqueType:
		return "opaque_type"
	case CDKindClass:
		return "class"
	case CDKindStruct:
		return "struct"
	case CDKindEnum:
		return "enum"
	}
	return fmt.Sprintf("ContextDescriptorKind(%d)", k)
}

type ContextDescriptorFlags uint32

func (f ContextDescriptorFlags) Kind() ContextDescriptorKind {
	return ContextDescriptorKind(f & 0x1F)
}
func (f ContextDescriptorFlags) IsGeneric() bool {
	return (f & 0x80) != 0
}

// ContextDescriptor is the common prefix of module, protocol and nominal
// type context descriptors.
// ref: swift/include/swift/ABI/Metadata.h
type ContextDescriptor struct {
	Flags  ContextDescriptorFlags
	Parent RelativeDirectPointer // indirectable, low bit set means indirect
	Name   RelativeDirectPointer // absent for extensions and anonymous contexts
}

// HasName reports whether the descriptor kind stores a name.
func (c ContextDescriptor) HasName() bool {
	switch c.Flags.Kind() {
	case CDKindModule, CDKindProtocol, CDKindClass, CDKindStruct, CDKindEnum:
		return true
	}
	return false
}

// ParentAddress returns the parent pointer target and whether it is an
// indirect reference that must be dereferenced.
func (c ContextDescriptor) ParentAddress() (uint64, bool) {
	addr := c.Parent.GetAddress()
	return addr &^ 1, addr&1 == 1
}

func (c *ContextDescriptor) Read(r io.Reader, addr uint64) error {
	if err := binary.Read(r, binary.LittleEndian, &c.Flags); err != nil {
		return err
	}
	if err := c.Parent.Read(r, addr+4); err != nil {
		return err
	}
	return c.Name.Read(r, addr+4+sizeOfRelOff)
}
