// Package memory provides the engine's view of a loaded binary as a flat
// address space.
package memory

// Image is a flat memory image mapped at a base virtual address.
//
// Reads outside [Base, End) are never an error: unmapped bytes read as zero
// so that speculative decoder lookahead past the end of the image succeeds.
// An Image cannot tell a legitimate zero byte from an unmapped one.
type Image struct {
	base uint64
	data []byte
}

// NewImage maps data at base. The slice is retained, not copied; callers must
// not modify it afterwards.
func NewImage(data []byte, base uint64) *Image {
	return &Image{base: base, data: data}
}

// Base returns the first mapped address.
func (m *Image) Base() uint64 { return m.base }

// Len returns the number of mapped bytes.
func (m *Image) Len() int { return len(m.data) }

// End returns one past the last mapped address. It saturates at the top of
// the address space.
func (m *Image) End() uint64 {
	end := m.base + uint64(len(m.data))
	if end < m.base {
		return ^uint64(0)
	}
	return end
}

// Contains reports whether addr is backed by image bytes.
func (m *Image) Contains(addr uint64) bool {
	return addr >= m.base && addr-m.base < uint64(len(m.data))
}

// Read returns length bytes starting at address.
func (m *Image) Read(address uint64, length int) []byte {
	if length <= 0 {
		return []byte{}
	}
	buf := make([]byte, length)
	m.ReadInto(address, buf)
	return buf
}

// ReadInto fills buf with the bytes at address, zero-filling unmapped
// positions. It returns the number of bytes that came from the image.
func (m *Image) ReadInto(address uint64, buf []byte) int {
	clear(buf)
	if len(buf) == 0 || len(m.data) == 0 {
		return 0
	}

	size := uint64(len(m.data))
	n := 0
	for i := range buf {
		cur := address + uint64(i)
		if cur < address {
			// Wrapped past the top of the address space.
			break
		}
		if cur < m.base {
			continue
		}
		off := cur - m.base
		if off >= size {
			break
		}
		// Copy the rest of the contiguous run in one go.
		copied := copy(buf[i:], m.data[off:])
		n += copied
		break
	}
	return n
}
