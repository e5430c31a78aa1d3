package catalog

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParsePattern decodes a hex pattern string into a Pattern. Each byte is two
// hex digits; "??" marks a wildcard position. Spaces are ignored, so
// "ff d8 ff ??" and "ffd8ff??" are equivalent.
func ParsePattern(s string) (Pattern, error) {
	clean := strings.ReplaceAll(s, " ", "")
	if len(clean) == 0 {
		return Pattern{}, ErrEmptyPattern
	}
	if len(clean)%2 != 0 {
		return Pattern{}, fmt.Errorf("%w: odd-length hex %q", ErrBadPattern, s)
	}
	n := len(clean) / 2
	p := Pattern{Bytes: make([]byte, n)}
	for i := 0; i < n; i++ {
		pair := clean[2*i : 2*i+2]
		if pair == "??" {
			if p.Wild == nil {
				p.Wild = make([]bool, n)
			}
			p.Wild[i] = true
			continue
		}
		b, err := hex.DecodeString(pair)
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: %q at byte %d", ErrBadPattern, s, i)
		}
		p.Bytes[i] = b[0]
	}
	return p, nil
}

// MustPattern is ParsePattern for compile-time constant patterns; it panics
// on malformed input and is only used by the builtin catalog and tests.
func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// LiteralPattern wraps raw bytes as a wildcard-free pattern.
func LiteralPattern(b []byte) Pattern {
	return Pattern{Bytes: append([]byte(nil), b...)}
}
