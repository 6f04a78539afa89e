// Package uniqueness implements the uniqueness filter (C6): a rotating
// pair of Bloom filters over 128-bit query fingerprints, sized for
// billion-scale runs under a bounded memory budget.
package uniqueness

import (
	"crypto/sha256"
	"encoding/binary"
)

// Fingerprint is the 128-bit digest of a query string, split into two
// independent 64-bit halves so the filter's double-hashing scheme has
// two genuinely different seeds to combine rather than one hash cut in
// half.
type Fingerprint [2]uint64

// Fingerprint128 hashes text with SHA-256 and folds the 32-byte digest
// down to 128 bits by XORing the two halves together, the same
// reduction the teacher's own content-addressing code uses when it
// needs a digest narrower than SHA-256's native width.
func Fingerprint128(text string) Fingerprint {
	sum := sha256.Sum256([]byte(text))
	var fp Fingerprint
	fp[0] = binary.LittleEndian.Uint64(sum[0:8]) ^ binary.LittleEndian.Uint64(sum[16:24])
	fp[1] = binary.LittleEndian.Uint64(sum[8:16]) ^ binary.LittleEndian.Uint64(sum[24:32])
	return fp
}
