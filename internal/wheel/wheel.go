// Package wheel implements the pure, publicly verifiable outcome derivation
// for commit-reveal rounds. Any party holding the revealed secret, the entropy
// value and the round id can recompute the winning slot bit-for-bit.
package wheel

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"hash"
)

// DefaultWheelSize is the number of slots on a standard wheel (0..36).
const DefaultWheelSize uint32 = 37

// MaxWheelSize bounds the modulo: the bias of reducing a 64-bit hash prefix
// mod wheelSize is negligible up to 2^16 slots.
const MaxWheelSize uint32 = 1 << 16

var derivePrefix = []byte("OCRv1|derive_outcome|")

// CommitmentFor returns the commitment a secret must be bound to before any
// wagers are placed: sha256 over the raw secret bytes, so it can be reproduced
// with any off-the-shelf tooling.
func CommitmentFor(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	return sum[:]
}

// VerifyCommitment reports whether secret hashes to commitment.
func VerifyCommitment(commitment, secret []byte) bool {
	if len(commitment) != sha256.Size {
		return false
	}
	sum := sha256.Sum256(secret)
	return subtle.ConstantTimeCompare(commitment, sum[:]) == 1
}

func writeFramed(h hash.Hash, b []byte) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// Derive maps (secret, entropy, roundID) to a slot in [0, wheelSize).
//
// The digest input is a domain prefix followed by length-framed secret and
// entropy and the big-endian round id, so no two input combinations collide by
// concatenation. Repeated calls with identical inputs always yield the
// identical slot.
func Derive(secret, entropy []byte, roundID uint64, wheelSize uint32) (uint32, error) {
	if wheelSize == 0 || wheelSize > MaxWheelSize {
		return 0, fmt.Errorf("wheel size %d out of range [1, %d]", wheelSize, MaxWheelSize)
	}
	h := sha256.New()
	h.Write(derivePrefix)
	writeFramed(h, secret)
	writeFramed(h, entropy)
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], roundID)
	h.Write(id[:])
	digest := h.Sum(nil)
	return uint32(binary.BigEndian.Uint64(digest[:8]) % uint64(wheelSize)), nil
}
