package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	reflection "github.com/blacktop/go-swift-reflection"
	"github.com/blacktop/go-swift-reflection/swift/demangle"
)

type Globals struct {
	Debug       bool `help:"Log resolution misses and skipped records." short:"d"`
	PointerSize int  `help:"Pointer size of the inspected process." default:"8" enum:"4,8"`
}

func (g *Globals) builder(files []string) (*reflection.Builder, error) {
	level := slog.LevelInfo
	if g.Debug {
		level = slog.LevelDebug
	}
	b, err := reflection.NewBuilder(reflection.Config{
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		PointerSize: g.PointerSize,
	})
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if err := b.LoadMachO(file); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

type CLI struct {
	Globals

	Dump     DumpCmd     `cmd:"" help:"Dump every reflection section."`
	Fields   FieldsCmd   `cmd:"" help:"List field descriptors."`
	Assoc    AssocCmd    `cmd:"" help:"List associated type conformances."`
	Builtin  BuiltinCmd  `cmd:"" help:"List builtin type layouts."`
	Resolve  ResolveCmd  `cmd:"" help:"Resolve the stored fields of a type."`
	Typeref  TyperefCmd  `cmd:"" help:"Print the TypeRef tree of a mangled type name."`
	Demangle DemangleCmd `cmd:"" help:"Demangle Swift type manglings."`
}

type DumpCmd struct {
	Files []string `arg:"" help:"Mach-O images." type:"existingfile"`
}

func (c *DumpCmd) Run(g *Globals) error {
	b, err := g.builder(c.Files)
	if err != nil {
		return err
	}
	defer b.Close()
	return b.DumpAllSections(os.Stdout)
}

type FieldsCmd struct {
	Files   []string `arg:"" help:"Mach-O images." type:"existingfile"`
	Verbose bool     `help:"Print descriptor addresses." short:"V"`
}

func (c *FieldsCmd) Run(g *Globals) error {
	b, err := g.builder(c.Files)
	if err != nil {
		return err
	}
	defer b.Close()
	for _, f := range b.Fields() {
		if c.Verbose {
			fmt.Println(f.Verbose())
		} else {
			fmt.Println(f)
		}
	}
	return nil
}

type AssocCmd struct {
	Files   []string `arg:"" help:"Mach-O images." type:"existingfile"`
	Verbose bool     `help:"Print descriptor addresses." short:"V"`
}

func (c *AssocCmd) Run(g *Globals) error {
	b, err := g.builder(c.Files)
	if err != nil {
		return err
	}
	defer b.Close()
	for _, at := range b.AssociatedTypes() {
		if c.Verbose {
			fmt.Println(at.Verbose())
		} else {
			fmt.Println(at)
		}
	}
	return nil
}

type BuiltinCmd struct {
	Files   []string `arg:"" help:"Mach-O images." type:"existingfile"`
	Verbose bool     `help:"Print descriptor addresses." short:"V"`
}

func (c *BuiltinCmd) Run(g *Globals) error {
	b, err := g.builder(c.Files)
	if err != nil {
		return err
	}
	defer b.Close()
	for _, bt := range b.BuiltinTypes() {
		if c.Verbose {
			fmt.Println(bt.Verbose())
		} else {
			fmt.Println(bt)
		}
	}
	return nil
}

type ResolveCmd struct {
	Type   string   `arg:"" help:"Mangled type name, e.g. 4main3BoxVySiG."`
	Files  []string `arg:"" help:"Mach-O images." type:"existingfile"`
	Layout bool     `help:"Also print the lowered layout." short:"l"`
}

func (c *ResolveCmd) Run(g *Globals) error {
	b, err := g.builder(c.Files)
	if err != nil {
		return err
	}
	defer b.Close()
	tr, err := b.DecodeMangledName(c.Type)
	if err != nil {
		return err
	}
	fd := b.GetFieldTypeInfo(tr)
	if fd == nil {
		return fmt.Errorf("%s: %w", c.Type, reflection.ErrNotFound)
	}
	fmt.Println(fd.TypeName)
	for _, field := range b.GetFieldTypeRefs(tr, fd) {
		if field.TypeRef == nil {
			fmt.Printf("%s\n\n", field.Name)
			continue
		}
		fmt.Printf("%s: %s\n\n", field.Name, field.TypeRef)
	}
	if c.Layout {
		ti, err := b.GetTypeConverter().GetTypeInfo(tr)
		if err != nil {
			return err
		}
		fmt.Println(ti)
	}
	return nil
}

type TyperefCmd struct {
	Name    string   `arg:"" help:"Mangled type name."`
	Files   []string `arg:"" optional:"" help:"Mach-O images to resolve layouts against." type:"existingfile"`
	Verbose bool     `help:"Include mangled names." short:"V"`
	Layout  bool     `help:"Also print the lowered layout." short:"l"`
}

func (c *TyperefCmd) Run(g *Globals) error {
	b, err := g.builder(c.Files)
	if err != nil {
		return err
	}
	defer b.Close()
	if !c.Verbose && !c.Layout {
		return b.DumpTypeRef(os.Stdout, c.Name, true)
	}
	tr, err := b.DecodeMangledName(c.Name)
	if err != nil {
		return err
	}
	if c.Verbose {
		fmt.Println(tr.Verbose())
	} else {
		fmt.Println(tr)
	}
	if c.Layout {
		ti, err := b.GetTypeConverter().GetTypeInfo(tr)
		if err != nil {
			return err
		}
		fmt.Println(ti)
	}
	return nil
}

type DemangleCmd struct {
	Names     []string `arg:"" help:"Mangled type names."`
	Canonical bool     `help:"Print the canonical mangling instead." short:"c"`
}

func (c *DemangleCmd) Run() error {
	for _, name := range c.Names {
		if c.Canonical {
			fmt.Println(demangle.Normalize(name))
			continue
		}
		out, _, err := demangle.New(nil).DemangleTypeString(name)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("swift-reflect"),
		kong.Description("Inspect Swift reflection metadata in Mach-O images."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
