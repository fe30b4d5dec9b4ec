package reflection

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/go-swift-reflection/swift/demangle"
	"github.com/blacktop/go-swift-reflection/types/swift"
)

const (
	fieldmdSection = "__swift5_fieldmd"
	assoctySection = "__swift5_assocty"
	builtinSection = "__swift5_builtin"
	typerefSection = "__swift5_typeref"
	reflstrSection = "__swift5_reflstr"

	maxContextDepth = 32
)

// LoadMachO opens a Mach-O (or the first 64-bit slice of a universal
// binary) and registers its reflection sections. The file stays open until
// the builder is closed so symbolic references can be resolved lazily.
func (b *Builder) LoadMachO(path string) error {
	if b.closed {
		return ErrClosed
	}
	f, closer, err := openMachO(path)
	if err != nil {
		return err
	}
	if ptrSize := machoPointerSize(f); ptrSize != b.pointerSize {
		b.log.Warn("image pointer size differs from the builder's", "image", path, "image_pointer_size", ptrSize, "pointer_size", b.pointerSize)
	}
	info, err := ReflectionInfoFromMachO(filepath.Base(path), f)
	if err != nil {
		closer.Close()
		return err
	}
	if err := b.AddReflectionInfo(info); err != nil {
		closer.Close()
		return err
	}
	b.closers = append(b.closers, closer)
	return nil
}

type closerFunc func() error

func (fn closerFunc) Close() error { return fn() }

func openMachO(path string) (*macho.File, closerFunc, error) {
	fat, err := macho.OpenFat(path)
	if err == nil {
		for _, arch := range fat.Arches {
			if arch.File.Magic == types.Magic64 {
				return arch.File, fat.Close, nil
			}
		}
		if len(fat.Arches) > 0 {
			return fat.Arches[0].File, fat.Close, nil
		}
		fat.Close()
		return nil, nil, fmt.Errorf("universal binary %s has no slices", path)
	}
	if !errors.Is(err, macho.ErrNotFat) {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	f, err := macho.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, f.Close, nil
}

func machoPointerSize(f *macho.File) int {
	if f.Magic == types.Magic64 {
		return 8
	}
	return 4
}

// ReflectionInfoFromMachO collects the Swift reflection sections of f. The
// returned info resolves symbolic references by reading context
// descriptors from f, which must stay open while the info is in use.
func ReflectionInfoFromMachO(name string, f *macho.File) (ReflectionInfo, error) {
	info := ReflectionInfo{
		ImageName: name,
		Resolver:  &machoContextResolver{f: f},
	}
	targets := map[string]*ReflectionSection{
		fieldmdSection: &info.Field,
		assoctySection: &info.AssociatedType,
		builtinSection: &info.Builtin,
		typerefSection: &info.TypeRef,
		reflstrSection: &info.ReflectionString,
	}
	for _, s := range f.Segments() {
		if !strings.HasPrefix(s.Name, "__TEXT") {
			continue
		}
		for sectName, target := range targets {
			if target.Data != nil {
				continue
			}
			if sec := f.Section(s.Name, sectName); sec != nil {
				dat, err := sec.Data()
				if err != nil {
					return ReflectionInfo{}, fmt.Errorf("failed to read %s.%s data: %w", s.Name, sectName, err)
				}
				*target = ReflectionSection{Addr: sec.Addr, Data: dat}
			}
		}
	}
	return info, nil
}

// machoContextResolver turns context descriptors referenced by symbolic
// references into demangle nodes.
type machoContextResolver struct {
	f *macho.File
}

func (r *machoContextResolver) ResolveContext(kind byte, addr uint64) (*demangle.Node, error) {
	switch kind {
	case swift.SymbolicRefDirectContext:
		return r.context(addr, 0)
	case swift.SymbolicRefIndirectContext:
		target, node, err := r.readPointer(addr)
		if err != nil || node != nil {
			return node, err
		}
		return r.context(target, 0)
	}
	return nil, fmt.Errorf("%w: symbolic reference kind %#02x", demangle.ErrUnsupported, kind)
}

func (r *machoContextResolver) read(addr uint64, size int) ([]byte, error) {
	off, err := r.f.GetOffset(addr)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := r.f.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at %#x: %w", size, addr, err)
	}
	return buf, nil
}

// readPointer reads the pointer stored at addr. A pointer bound to an
// imported descriptor is returned as the node its symbol names.
func (r *machoContextResolver) readPointer(addr uint64) (uint64, *demangle.Node, error) {
	ptrSize := machoPointerSize(r.f)
	buf, err := r.read(addr, ptrSize)
	if err != nil {
		return 0, nil, err
	}
	var ptr uint64
	if ptrSize == 8 {
		ptr = r.f.ByteOrder.Uint64(buf)
	} else {
		ptr = uint64(r.f.ByteOrder.Uint32(buf))
	}
	// chained fixup binds are keyed by the pointer value, dyld info binds by
	// the address of the slot
	bindKey := addr
	if r.f.HasFixups() {
		bindKey = ptr
	}
	if sym, err := r.f.GetBindName(bindKey); err == nil {
		node, err := descriptorSymbolNode(sym)
		return 0, node, err
	}
	return r.f.SlidePointer(ptr), nil, nil
}

// descriptorSymbolNode demangles the symbol of a nominal type or protocol
// descriptor, e.g. _$s4main3FooVMn.
func descriptorSymbolNode(sym string) (*demangle.Node, error) {
	sym = strings.TrimPrefix(sym, "_")
	for _, suffix := range []string{"Mn", "Mp"} {
		if strings.HasSuffix(sym, suffix) {
			return demangle.DemangleType(strings.TrimSuffix(sym, suffix))
		}
	}
	return nil, fmt.Errorf("%w: %s is not a context descriptor symbol", demangle.ErrUnsupported, sym)
}

func (r *machoContextResolver) context(addr uint64, depth int) (*demangle.Node, error) {
	if depth > maxContextDepth {
		return nil, fmt.Errorf("%w: context descriptor nesting at %#x is too deep", demangle.ErrMalformed, addr)
	}
	buf, err := r.read(addr, 12)
	if err != nil {
		return nil, fmt.Errorf("failed to read context descriptor: %w", err)
	}
	var cd swift.ContextDescriptor
	if err := cd.Read(bytes.NewReader(buf), addr); err != nil {
		return nil, fmt.Errorf("failed to read context descriptor at %#x: %w", addr, err)
	}

	var parent *demangle.Node
	if cd.Parent.IsSet() {
		paddr, indirect := cd.ParentAddress()
		if indirect {
			target, node, err := r.readPointer(paddr)
			if err != nil {
				return nil, err
			}
			parent = node
			paddr = target
		}
		if parent == nil {
			if parent, err = r.context(paddr, depth+1); err != nil {
				return nil, err
			}
		}
	}

	var kind demangle.NodeKind
	switch cd.Flags.Kind() {
	case swift.CDKindModule:
		kind = demangle.KindModule
	case swift.CDKindExtension, swift.CDKindAnonymous:
		// members of extensions and anonymous contexts are named by their parent
		if parent == nil {
			return nil, fmt.Errorf("%w: %s context at %#x has no parent", demangle.ErrMalformed, cd.Flags.Kind(), addr)
		}
		return parent, nil
	case swift.CDKindProtocol:
		kind = demangle.KindProtocol
	case swift.CDKindClass:
		kind = demangle.KindClass
	case swift.CDKindStruct:
		kind = demangle.KindStructure
	case swift.CDKindEnum:
		kind = demangle.KindEnum
	default:
		return nil, fmt.Errorf("%w: %s context at %#x", demangle.ErrUnsupported, cd.Flags.Kind(), addr)
	}

	name, err := r.f.GetCString(cd.Name.GetAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to read name of context descriptor at %#x: %w", addr, err)
	}
	node := demangle.NewNode(kind, name)
	if kind != demangle.KindModule {
		if parent == nil {
			return nil, fmt.Errorf("%w: %s context %s at %#x has no parent", demangle.ErrMalformed, cd.Flags.Kind(), name, addr)
		}
		node.Append(parent)
	}
	return node, nil
}
