package websocket

import "unicode/utf8"

// utf8Validator performs incremental UTF-8 validation across the
// boundaries of a fragmented Text message. A single multi-byte rune may
// be split by the peer across two or more continuation frames, so
// validation can't simply call utf8.Valid on each fragment in isolation;
// pending, not-yet-complete trailing bytes are carried from one fragment
// to the next. Validating per fragment (instead of once over the fully
// reassembled message) lets an oversized invalid Text message be
// rejected as soon as the bad bytes arrive.
//
// Built on unicode/utf8's decoding primitives, which already distinguish
// a genuinely invalid byte from a valid-but-incomplete trailing sequence
// via utf8.FullRune.
type utf8Validator struct {
	pending    [4]byte
	pendingLen int
}

// step feeds the next fragment's bytes through the validator. It reports
// false as soon as an invalid byte sequence is found (RFC 6455 §8.1: the
// whole message must then be rejected).
func (v *utf8Validator) step(chunk []byte) bool {
	data := chunk
	if v.pendingLen > 0 {
		data = make([]byte, 0, v.pendingLen+len(chunk))
		data = append(data, v.pending[:v.pendingLen]...)
		data = append(data, chunk...)
		v.pendingLen = 0
	}

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r != utf8.RuneError || size > 1 {
			data = data[size:]
			continue
		}

		// size == 1 and r == RuneError: either a genuinely invalid byte,
		// or a valid-looking prefix that's simply incomplete so far.
		if utf8.FullRune(data) {
			return false
		}
		if len(data) > utf8.UTFMax-1 {
			// A valid rune is at most 4 bytes; anything longer that
			// still isn't a full rune can never become one.
			return false
		}

		v.pendingLen = copy(v.pending[:], data)
		return true
	}

	return true
}

// done reports whether the terminal fragment left no pending continuation
// bytes; a message that ends mid-sequence is invalid (RFC 6455 §8.1).
func (v *utf8Validator) done() bool {
	return v.pendingLen == 0
}
