package swift

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// __TEXT.__swift5_assocty
// This section contains an array of associated type descriptors.
// An associated type descriptor contains a collection of associated type records for a conformance.
// An associated type records describe the mapping from an associated type to the type witness of a conformance.

type AssociatedType struct {
	AssociatedTypeDescriptor
	Address            uint64
	ConformingTypeName string // mangled
	ProtocolTypeName   string // mangled
	ConformingType     string // demangled
	Protocol           string // demangled
	TypeRecords        []ATRecordType
}

// Record returns the record binding the associated type name, or nil.
func (a AssociatedType) Record(name string) *ATRecordType {
	for i := range a.TypeRecords {
		if a.TypeRecords[i].Name == name {
			return &a.TypeRecords[i]
		}
	}
	return nil
}

func (a AssociatedType) String() string {
	return a.dump(false)
}
func (a AssociatedType) Verbose() string {
	return a.dump(true)
}
func (a AssociatedType) dump(verbose bool) string {
	var addr string
	var vars []string
	for _, v := range a.TypeRecords {
		if verbose {
			addr = fmt.Sprintf("/* %#x */ ", v.NameOffset.GetAddress())
		}
		subst := v.SubstitutedType
		if len(subst) == 0 {
			subst = v.SubstitutedTypeName
		}
		vars = append(vars, fmt.Sprintf("    %stypealias %s = %s", addr, v.Name, subst))
	}
	if verbose {
		addr = fmt.Sprintf("// %#x\n", a.Address)
	}
	conforming, proto := a.ConformingType, a.Protocol
	if len(conforming) == 0 {
		conforming = a.ConformingTypeName
	}
	if len(proto) == 0 {
		proto = a.ProtocolTypeName
	}
	return fmt.Sprintf(
		"%s"+
			"extension %s: %s {\n"+
			"%s\n"+
			"}",
		addr,
		conforming,
		proto,
		strings.Join(vars, "\n"),
	)
}

// AssociatedTypeDescriptor an associated type descriptor contains a collection of associated type records for a conformance.
// ref: include/swift/Reflection/Records.h
type AssociatedTypeDescriptor struct {
	ConformingTypeNameOffset RelativeDirectPointer
	ProtocolTypeNameOffset   RelativeDirectPointer
	NumAssociatedTypes       uint32
	AssociatedTypeRecordSize uint32
}

// AssociatedTypeDescriptorSize is the encoded size of an AssociatedTypeDescriptor header.
const AssociatedTypeDescriptorSize = 16

func (a *AssociatedTypeDescriptor) Read(r io.Reader, addr uint64) error {
	if err := a.ConformingTypeNameOffset.Read(r, addr); err != nil {
		return err
	}
	if err := a.ProtocolTypeNameOffset.Read(r, addr+sizeOfRelOff); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &a.NumAssociatedTypes); err != nil {
		return err
	}
	return binary.Read(r, binary.LittleEndian, &a.AssociatedTypeRecordSize)
}

type ATRecordType struct {
	AssociatedTypeRecord
	Name                string
	SubstitutedTypeName string // mangled
	SubstitutedType     string // demangled
}

// AssociatedTypeRecord type records describe the mapping from an associated type to the type witness of a conformance.
// ref: include/swift/Reflection/Records.h
type AssociatedTypeRecord struct {
	NameOffset                RelativeDirectPointer
	SubstitutedTypeNameOffset RelativeDirectPointer
}

// AssociatedTypeRecordSize is the encoded size of an AssociatedTypeRecord.
const AssociatedTypeRecordSize = 8

func (a *AssociatedTypeRecord) Read(r io.Reader, addr uint64) error {
	if err := a.NameOffset.Read(r, addr); err != nil {
		return err
	}
	return a.SubstitutedTypeNameOffset.Read(r, addr+sizeOfRelOff)
}
