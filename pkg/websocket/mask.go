package websocket

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/cpu"
)

// maskWideThreshold is the minimum payload length, in bytes, below which
// the wide (8-byte-at-a-time) masking path isn't worth its setup cost.
const maskWideThreshold = 16

// wideMaskSupported reports whether the current CPU offers a fast wide XOR
// path for masking: SSSE3 on x86-64, ASIMD (NEON) on arm64. Detection runs
// once per process and is cached; it must not become a per-frame branch.
var wideMaskSupported = sync.OnceValue(func() bool {
	return cpu.X86.HasSSSE3 || cpu.ARM64.HasASIMD
})

// maskInto XORs src against a repeating 4-byte mask and writes the result
// into dst starting at offset headerLen, implementing
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.3.
//
// dst and src are expected to alias the same underlying array during frame
// encoding: src is the unmasked payload sitting at the front of a buffer
// that has headerLen bytes of header space reserved after it, and dst is
// that same buffer viewed starting at headerLen. Because dst[headerLen+i]
// always lies at or past src[i], processing indices from the end to the
// start lets the in-place shift-right-by-headerLen happen safely in a
// single pass, without an intermediate buffer: by the time a source byte
// at index i is overwritten (as part of writing some dst[headerLen+k] with
// k <= i), it has already been read.
//
// maskInto is its own inverse when headerLen is 0: applying it twice to
// the same slice restores the original bytes. That degenerate form isn't
// used by this package (server frames are never masked, so nothing needs
// unmasking on receive), but it falls out of the same algorithm for free.
func maskInto(dst, src []byte, mask [4]byte, headerLen int) {
	if wideMaskSupported() && len(src) >= maskWideThreshold {
		maskIntoWide(dst, src, mask, headerLen)
		return
	}
	maskIntoScalar(dst, src, mask, headerLen)
}

func maskIntoScalar(dst, src []byte, mask [4]byte, headerLen int) {
	for i := len(src) - 1; i >= 0; i-- {
		dst[headerLen+i] = src[i] ^ mask[i&3]
	}
}

// maskIntoWide is the wide back-end of the masking dispatch. Go has no
// portable SIMD intrinsics outside hand-written assembly, so both CPU
// families share this single 8-byte word-XOR path (via encoding/binary);
// only wideMaskSupported's feature probe differs per architecture. Its
// output must stay byte-identical to maskIntoScalar's for all inputs.
func maskIntoWide(dst, src []byte, mask [4]byte, headerLen int) {
	n := len(src)
	chunks := n / 8
	tailStart := chunks * 8
	wideMask := wideMaskWord(mask)

	for i := n - 1; i >= tailStart; i-- {
		dst[headerLen+i] = src[i] ^ mask[i&3]
	}

	for c := chunks - 1; c >= 0; c-- {
		i := c * 8
		v := binary.LittleEndian.Uint64(src[i:i+8]) ^ wideMask
		binary.LittleEndian.PutUint64(dst[headerLen+i:headerLen+i+8], v)
	}
}

// wideMaskWord repeats a 4-byte mask across an 8-byte word so it can be
// XOR'd against two mask periods at once. This is only correct when the
// XOR'd chunk starts at an offset that's a multiple of 4 bytes into the
// logical payload, which maskIntoWide guarantees (chunks are 8 bytes wide
// and therefore always 4-byte aligned).
func wideMaskWord(mask [4]byte) uint64 {
	m := uint64(binary.LittleEndian.Uint32(mask[:]))
	return m | m<<32
}
