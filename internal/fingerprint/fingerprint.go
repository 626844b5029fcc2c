// Package fingerprint identifies control images so repeated comparisons
// against the same reference can be grouped.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"image"

	"github.com/corona10/goimagehash"
)

// MaxNearDistance is the largest perceptual-hash Hamming distance at which two
// controls are reported as near duplicates.
const MaxNearDistance = 5

// Fingerprint is the exact and perceptual identity of a control image.
type Fingerprint struct {
	SHA1  string
	PHash uint64
}

// Compute returns the SHA-1 of the encoded bytes and the perceptual hash of
// the decoded image. The SHA-1 is filled in even when hashing fails.
func Compute(encoded []byte, img image.Image) (Fingerprint, error) {
	sum := sha1.Sum(encoded)
	fp := Fingerprint{SHA1: hex.EncodeToString(sum[:])}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return fp, err
	}
	fp.PHash = hash.GetHash()
	return fp, nil
}

// Distance returns the Hamming distance between two perceptual hashes.
func Distance(a, b uint64) (int, error) {
	return goimagehash.NewImageHash(a, goimagehash.PHash).Distance(goimagehash.NewImageHash(b, goimagehash.PHash))
}

// Near reports whether two perceptual hashes are within MaxNearDistance.
func Near(a, b uint64) bool {
	d, err := Distance(a, b)
	return err == nil && d <= MaxNearDistance
}
