package reflection

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/blacktop/go-swift-reflection/swift/demangle"
	"github.com/blacktop/go-swift-reflection/types/swift"
)

// dumper stops writing after the first error.
type dumper struct {
	w   io.Writer
	err error
}

func (d *dumper) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func printable(mangled string) string {
	if swift.HasSymbolicReferences(mangled) {
		return strconv.Quote(mangled)
	}
	return mangled
}

// DumpTypeRef writes the TypeRef tree of a mangled type name, optionally
// preceded by its demangled spelling.
func (b *Builder) DumpTypeRef(w io.Writer, mangled string, printTypeName bool) error {
	if b.closed {
		return ErrClosed
	}
	d := &dumper{w: w}
	b.dumpTypeRef(d, nil, mangled, 0, printTypeName)
	return d.err
}

func (b *Builder) dumpTypeRef(d *dumper, img *image, mangled string, addr uint64, printTypeName bool) {
	node, err := b.demangleName(img, mangled, addr)
	if err != nil {
		d.printf("!!! Invalid typeref: %s\n", printable(mangled))
		return
	}
	if printTypeName {
		d.printf("%s\n", demangle.Format(node))
	}
	tr, err := b.decodeNode(node)
	if err != nil {
		d.printf("!!! Invalid typeref: %s\n", printable(mangled))
		return
	}
	d.printf("%s\n\n", tr)
}

// DumpFieldSection writes every field descriptor of every registered image.
func (b *Builder) DumpFieldSection(w io.Writer) error {
	if b.closed {
		return ErrClosed
	}
	d := &dumper{w: w}
	b.dumpFieldSection(d)
	return d.err
}

func (b *Builder) dumpFieldSection(d *dumper) {
	for _, img := range b.images {
		for _, e := range img.fields {
			name := e.field.TypeName
			if len(name) == 0 {
				name = printable(e.field.Type)
			}
			d.printf("%s\n%s\n", name, strings.Repeat("-", len(name)))
			for _, rec := range e.field.Records {
				d.printf("%s", rec.Name)
				if len(rec.MangledType) == 0 {
					d.printf("\n\n")
					continue
				}
				d.printf(": ")
				b.dumpTypeRef(d, img, rec.MangledType, rec.MangledTypeNameOffset.GetAddress(), false)
			}
		}
	}
}

// DumpAssociatedTypeSection writes every conformance's type witnesses.
func (b *Builder) DumpAssociatedTypeSection(w io.Writer) error {
	if b.closed {
		return ErrClosed
	}
	d := &dumper{w: w}
	b.dumpAssociatedTypeSection(d)
	return d.err
}

func (b *Builder) dumpAssociatedTypeSection(d *dumper) {
	for _, img := range b.images {
		for _, e := range img.assocs {
			d.printf("- %s : %s\n", e.assoc.ConformingType, e.assoc.Protocol)
			for _, rec := range e.assoc.TypeRecords {
				d.printf("typealias %s = ", rec.Name)
				b.dumpTypeRef(d, img, rec.SubstitutedTypeName, rec.SubstitutedTypeNameOffset.GetAddress(), false)
			}
		}
	}
}

// DumpBuiltinTypeSection writes the layout of every builtin type descriptor.
func (b *Builder) DumpBuiltinTypeSection(w io.Writer) error {
	if b.closed {
		return ErrClosed
	}
	d := &dumper{w: w}
	b.dumpBuiltinTypeSection(d)
	return d.err
}

func (b *Builder) dumpBuiltinTypeSection(d *dumper) {
	for _, img := range b.images {
		for _, e := range img.builtins {
			bt := e.builtin
			name := bt.TypeName
			if len(name) == 0 {
				name = printable(bt.Name)
			}
			d.printf("\n- %s:\n", name)
			d.printf("Size: %d\n", bt.Size)
			d.printf("Alignment: %d\n", bt.AlignmentAndFlags.Alignment())
			d.printf("Stride: %d\n", bt.Stride)
			d.printf("NumExtraInhabitants: %d\n", bt.NumExtraInhabitants)
			d.printf("BitwiseTakable: %t\n", bt.AlignmentAndFlags.IsBitwiseTakable())
		}
	}
}

// DumpAllSections writes the field, associated type and builtin type
// sections under their headings.
func (b *Builder) DumpAllSections(w io.Writer) error {
	if b.closed {
		return ErrClosed
	}
	d := &dumper{w: w}
	d.printf("FIELDS:\n=======\n")
	b.dumpFieldSection(d)
	d.printf("\n")
	d.printf("ASSOCIATED TYPES:\n=================\n")
	b.dumpAssociatedTypeSection(d)
	d.printf("\n")
	d.printf("BUILTIN TYPES:\n==============\n")
	b.dumpBuiltinTypeSection(d)
	d.printf("\n")
	return d.err
}
