// Package demangle decodes Swift type manglings, as found in reflection
// metadata sections, into a tree of Nodes.
package demangle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyInput    = errors.New("demangle: empty input")
	ErrUnexpectedEnd = errors.New("demangle: unexpected end of mangled name")
	ErrUnsupported   = errors.New("demangle: unsupported mangling")
	ErrMalformed     = errors.New("demangle: malformed mangled name")
)

// SymbolicReferenceResolver resolves symbolic reference offsets found in mangled
// strings. Implementations must interpret the offset relative to the address of
// the reference site (refIndex is the byte index of the offset inside the
// mangled string) and return a preconstructed node representing the target
// context or type.
type SymbolicReferenceResolver interface {
	ResolveType(control byte, offset int32, refIndex int) (*Node, error)
}

// Demangler owns shared state for parsing mangled strings.
type Demangler struct {
	resolver SymbolicReferenceResolver
}

// New returns a new demangler using the provided resolver (which may be nil).
func New(resolver SymbolicReferenceResolver) *Demangler {
	return &Demangler{resolver: resolver}
}

// DemangleType converts a mangled Swift type string into a Node tree.
func (d *Demangler) DemangleType(mangled string) (*Node, error) {
	clean := trimManglingPrefix(mangled)
	if len(clean) == 0 {
		return nil, ErrEmptyInput
	}
	p := newParser([]byte(clean), d.resolver)
	node, err := p.parseType()
	if err != nil {
		return nil, fmt.Errorf("failed to demangle %q: %w", mangled, err)
	}
	return node, nil
}

// DemangleTypeString returns both the formatted type and its tree.
func (d *Demangler) DemangleTypeString(mangled string) (string, *Node, error) {
	node, err := d.DemangleType(mangled)
	if err != nil {
		return "", nil, err
	}
	return Format(node), node, nil
}

// DemangleType demangles with a resolver-less demangler.
func DemangleType(mangled string) (*Node, error) {
	return New(nil).DemangleType(mangled)
}

// Normalize returns the canonical mangling of a type string, or the input
// unchanged when it cannot be demangled.
func Normalize(mangled string) string {
	node, err := DemangleType(mangled)
	if err != nil {
		return mangled
	}
	out, err := Mangle(node)
	if err != nil {
		return mangled
	}
	return out
}

func trimManglingPrefix(s string) string {
	s = strings.TrimPrefix(s, "_")
	for _, prefix := range []string{"$s", "$S", "$e"} {
		if strings.HasPrefix(s, prefix) {
			return s[len(prefix):]
		}
	}
	return s
}
