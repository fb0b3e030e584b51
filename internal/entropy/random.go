// Package entropy provides crypto/rand backed randomness for reaction picks,
// so the sprite's moods never settle into a seeded pattern across restarts.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
)

// Float returns a uniform float64 in [0, 1).
func Float() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively impossible; 0.5 keeps picks sane.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// IntN returns a uniform int in [0, n). Returns 0 when n <= 0.
func IntN(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(Float() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
