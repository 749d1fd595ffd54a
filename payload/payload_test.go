package payload

import (
	"bytes"
	"testing"

	"github.com/Cyberes/cf-speedtest-custom/spec"
)

func TestBlockPattern(t *testing.T) {
	b := Block()
	if len(b) != spec.ChunkSize {
		t.Fatalf("Block length = %d, want %d", len(b), spec.ChunkSize)
	}
	for _, i := range []int{0, 1, 31, 255, 256, 4096, spec.ChunkSize - 1} {
		want := byte((i * 31) % 256)
		if b[i] != want {
			t.Errorf("Block()[%d] = %d, want %d", i, b[i], want)
		}
	}
}

func TestFillContinuesPattern(t *testing.T) {
	// Filling in two pieces must equal filling in one.
	whole := make([]byte, 1000)
	Fill(whole, 0)

	split := make([]byte, 1000)
	off := Fill(split[:400], 0)
	Fill(split[400:], off)

	if !bytes.Equal(whole, split) {
		t.Error("split Fill calls diverge from a single Fill")
	}
}

func TestFillWrapsAroundBlock(t *testing.T) {
	p := make([]byte, 16)
	Fill(p, spec.ChunkSize-8)
	for i := 8; i < 16; i++ {
		want := byte(((i - 8) * 31) % 256)
		if p[i] != want {
			t.Errorf("wrapped byte %d = %d, want %d", i, p[i], want)
		}
	}
}
