package session

import (
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/loupe-re/loupe/internal/client"
)

// Binary is the client's copy of a loaded binary, kept so it can be replayed
// into a restarted engine.
type Binary struct {
	// Path is where the bytes were read from. It is informational only.
	Path        string
	Data        []byte
	BaseAddress uint64
	ArchSpec    string
	SpecDir     string
}

// BinaryID fingerprints a Binary. Two binaries with equal IDs produce the
// same engine session.
type BinaryID struct {
	Path        string
	Size        int
	ArchSpec    string
	BaseAddress uint64
	Hash        uint64
}

// String returns a short form suitable for logs.
func (id BinaryID) String() string {
	return fmt.Sprintf("%s (%d bytes, %s @ %#x, xxh3 %016x)", id.Path, id.Size, id.ArchSpec, id.BaseAddress, id.Hash)
}

// ID computes the binary's fingerprint.
func (b *Binary) ID() BinaryID {
	return BinaryID{
		Path:        b.Path,
		Size:        len(b.Data),
		ArchSpec:    b.ArchSpec,
		BaseAddress: b.BaseAddress,
		Hash:        xxh3.Hash(b.Data),
	}
}

func (b *Binary) loadRequest() *client.LoadRequest {
	return &client.LoadRequest{
		Content:     b.Data,
		BaseAddress: b.BaseAddress,
		ArchSpec:    b.ArchSpec,
		SpecDir:     b.SpecDir,
	}
}
