package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImage_Read(t *testing.T) {
	img := NewImage([]byte{0x55, 0x48, 0x89, 0xe5, 0xc3}, 0x1000)

	tests := []struct {
		name    string
		address uint64
		length  int
		want    []byte
	}{
		{
			name:    "fully mapped",
			address: 0x1000,
			length:  3,
			want:    []byte{0x55, 0x48, 0x89},
		},
		{
			name:    "tail of image",
			address: 0x1004,
			length:  1,
			want:    []byte{0xc3},
		},
		{
			name:    "straddles end",
			address: 0x1003,
			length:  4,
			want:    []byte{0xe5, 0xc3, 0x00, 0x00},
		},
		{
			name:    "straddles start",
			address: 0x0ffe,
			length:  4,
			want:    []byte{0x00, 0x00, 0x55, 0x48},
		},
		{
			name:    "below image",
			address: 0x10,
			length:  2,
			want:    []byte{0x00, 0x00},
		},
		{
			name:    "above image",
			address: 0x2000,
			length:  3,
			want:    []byte{0x00, 0x00, 0x00},
		},
		{
			name:    "zero length",
			address: 0x1000,
			length:  0,
			want:    []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := img.Read(tt.address, tt.length)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImage_ReadIntoCountsMappedBytes(t *testing.T) {
	img := NewImage([]byte{1, 2, 3, 4}, 0x400)

	buf := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	n := img.ReadInto(0x402, buf)

	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{3, 4, 0, 0, 0, 0}, buf)
}

func TestImage_TopOfAddressSpace(t *testing.T) {
	base := ^uint64(0) - 1
	img := NewImage([]byte{0xaa, 0xbb}, base)

	assert.Equal(t, ^uint64(0), img.End())
	assert.True(t, img.Contains(^uint64(0)))
	assert.Equal(t, []byte{0xbb, 0x00, 0x00}, img.Read(^uint64(0), 3))
}

func TestImage_Contains(t *testing.T) {
	img := NewImage(make([]byte, 0x10), 0x1000)

	assert.True(t, img.Contains(0x1000))
	assert.True(t, img.Contains(0x100f))
	assert.False(t, img.Contains(0x1010))
	assert.False(t, img.Contains(0xfff))
	assert.Equal(t, uint64(0x1000), img.Base())
	assert.Equal(t, 0x10, img.Len())
}
