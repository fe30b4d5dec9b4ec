package swift

import (
	"encoding/binary"
	"fmt"
	"io"
)

// __TEXT.__swift5_builtin
// This section contains an array of builtin type descriptors.
// A builtin type descriptor describes the basic layout information about any builtin types referenced from other sections.

const MaxNumExtraInhabitants = 0x7FFFFFFF

// BuiltinType builtin swift type
type BuiltinType struct {
	BuiltinTypeDescriptor
	Address  uint64
	Name     string // mangled
	TypeName string // demangled
}

// IsValid reports whether the descriptor carries a usable layout.
func (b BuiltinType) IsValid() bool {
	return b.Size > 0 && b.AlignmentAndFlags.Alignment() > 0 && b.Stride > 0
}

func (b BuiltinType) String() string {
	return b.dump(false)
}
func (b BuiltinType) Verbose() string {
	return b.dump(true)
}
func (b BuiltinType) dump(verbose bool) string {
	var numExtraInhabitants string
	if b.NumExtraInhabitants == MaxNumExtraInhabitants {
		numExtraInhabitants = "max"
	} else {
		numExtraInhabitants = fmt.Sprintf("%d", b.NumExtraInhabitants)
	}
	var addr string
	if verbose {
		addr = fmt.Sprintf("// %#x\n", b.Address)
	}
	name := b.TypeName
	if len(name) == 0 {
		name = b.Name
	}
	return fmt.Sprintf(
		"%s%s\t// "+
			"(size: %d"+
			", align: %d"+
			", bitwise-takable: %t"+
			", stride: %d"+
			", extra-inhabitants: %s)",
		addr,
		name,
		b.Size,
		b.AlignmentAndFlags.Alignment(),
		b.AlignmentAndFlags.IsBitwiseTakable(),
		b.Stride,
		numExtraInhabitants)
}

// BuiltinTypeDescriptor type records describe basic layout information about any builtin types referenced from the other sections.
// ref: include/swift/Reflection/Records.h
type BuiltinTypeDescriptor struct {
	TypeNameOffset      RelativeDirectPointer
	Size                uint32
	AlignmentAndFlags   BuiltinTypeFlag
	Stride              uint32
	NumExtraInhabitants uint32
}

// BuiltinTypeDescriptorSize is the encoded size of a BuiltinTypeDescriptor.
const BuiltinTypeDescriptorSize = 20

func (b *BuiltinTypeDescriptor) Read(r io.Reader, addr uint64) error {
	if err := b.TypeNameOffset.Read(r, addr); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &b.Size); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &b.AlignmentAndFlags); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &b.Stride); err != nil {
		return err
	}
	return binary.Read(r, binary.LittleEndian, &b.NumExtraInhabitants)
}

type BuiltinTypeFlag uint32

func (f BuiltinTypeFlag) IsBitwiseTakable() bool {
	return ((f >> 16) & 1) != 0
}
func (f BuiltinTypeFlag) Alignment() uint16 {
	return uint16(f & 0xffff)
}
