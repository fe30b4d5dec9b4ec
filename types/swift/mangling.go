package swift

import (
	"errors"
	"fmt"
)

// ErrUnterminated is returned when a name runs off the end of its section.
var ErrUnterminated = errors.New("unterminated string")

const (
	// symbolic reference control bytes followed by a 32-bit relative offset
	SymbolicRefRelativeFirst = 0x01
	SymbolicRefRelativeLast  = 0x17
	// symbolic reference control bytes followed by an absolute pointer
	SymbolicRefAbsoluteFirst = 0x18
	SymbolicRefAbsoluteLast  = 0x1F

	// SymbolicRefDirectContext references a context descriptor directly.
	SymbolicRefDirectContext = 0x01
	// SymbolicRefIndirectContext references a pointer to a context descriptor.
	SymbolicRefIndirectContext = 0x02
)

// ReadMangledName reads a NUL terminated mangled name from the start of
// data. Embedded symbolic references are copied through verbatim, their
// payload may contain NUL bytes.
func ReadMangledName(data []byte, pointerSize int) (string, error) {
	for i := 0; i < len(data); {
		switch c := data[i]; {
		case c == 0:
			return string(data[:i]), nil
		case c >= SymbolicRefRelativeFirst && c <= SymbolicRefRelativeLast:
			i += 1 + 4
		case c >= SymbolicRefAbsoluteFirst && c <= SymbolicRefAbsoluteLast:
			i += 1 + pointerSize
		default:
			i++
		}
	}
	return "", fmt.Errorf("failed to read mangled name: %w", ErrUnterminated)
}

// ReadCString reads a NUL terminated string from the start of data.
func ReadCString(data []byte) (string, error) {
	for i, c := range data {
		if c == 0 {
			return string(data[:i]), nil
		}
	}
	return "", fmt.Errorf("failed to read cstring: %w", ErrUnterminated)
}

// HasSymbolicReferences reports whether name embeds symbolic references.
func HasSymbolicReferences(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] >= SymbolicRefRelativeFirst && name[i] <= SymbolicRefAbsoluteLast {
			return true
		}
	}
	return false
}
