// Package payload provides the deterministic byte block served by the
// download endpoint and reused for upload bodies. The block is generated
// once at init and shared read-only across all requests, so answering a
// download costs no per-request CPU beyond the copy onto the wire.
package payload

import "github.com/Cyberes/cf-speedtest-custom/spec"

var block [spec.ChunkSize]byte

func init() {
	for i := range block {
		block[i] = byte((i * 31) % 256)
	}
}

// Block returns the shared pattern block. Callers must not modify it.
func Block() []byte {
	return block[:]
}

// Fill writes the pattern into p as if it continued from byte offset off,
// and returns the offset after the last byte written. It lets a caller
// build bodies of any size that are byte-identical to a concatenation of
// pattern blocks.
func Fill(p []byte, off int64) int64 {
	for i := range p {
		p[i] = block[(off+int64(i))%spec.ChunkSize]
	}
	return off + int64(len(p))
}
