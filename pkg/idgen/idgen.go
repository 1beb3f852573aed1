// Package idgen allocates project identifiers.
//
// Identifiers are lowercase UUID v4 strings. The primary path uses a
// cryptographically strong source; when that source fails, a template
// fallback still produces correctly shaped v4 identifiers (version nibble
// fixed to 4, variant nibble in 8..b), since callers rely on the shape for
// routing and validation.
package idgen

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

const template = "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"

// NewID returns a new lowercase UUID v4 string.
func NewID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return newFallbackID(rand.Float64)
	}
	return id.String()
}

// newFallbackID substitutes the v4 template using the given uniform [0,1)
// source. Each 'x' becomes a random hex digit r = floor(rand*16); each 'y'
// becomes (r & 0x3) | 0x8, constraining the variant nibble to {8,9,a,b}.
func newFallbackID(randFloat func() float64) string {
	var b strings.Builder
	b.Grow(len(template))
	for _, c := range template {
		switch c {
		case 'x', 'y':
			r := int(randFloat() * 16)
			if c == 'y' {
				r = (r & 0x3) | 0x8
			}
			b.WriteByte(hexDigit(r))
		default:
			b.WriteByte(byte(c))
		}
	}
	return b.String()
}

func hexDigit(v int) byte {
	const digits = "0123456789abcdef"
	return digits[v&0xf]
}
