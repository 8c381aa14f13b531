package voprf

import "encoding/binary"

// i2osp2 encodes an integer as two big-endian bytes. Transcript lengths are
// always well under 2^16.
func i2osp2(n int) []byte {
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], uint16(n))
	return out[:]
}

// lengthPrefix prepends the two-byte length of data, RFC 9497 style.
func lengthPrefix(data []byte) []byte {
	return append(i2osp2(len(data)), data...)
}

// concat joins byte slices into a freshly allocated buffer, so callers can
// build transcripts from shared slices without aliasing surprises.
func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
