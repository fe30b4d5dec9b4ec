package swift

import (
	"encoding/binary"
	"io"
)

const sizeOfRelOff = 4

// RelativeDirectPointer is a 32-bit offset relative to its own address.
type RelativeDirectPointer struct {
	Address uint64
	RelOff  int32
}

func (r RelativeDirectPointer) GetAddress() uint64 {
	return uint64(int64(r.Address) + int64(r.RelOff))
}

// IsSet reports whether the pointer is non-null; a zero offset means "none".
func (r RelativeDirectPointer) IsSet() bool {
	return r.RelOff != 0
}

func (p *RelativeDirectPointer) Read(r io.Reader, addr uint64) error {
	p.Address = addr
	return binary.Read(r, binary.LittleEndian, &p.RelOff)
}
