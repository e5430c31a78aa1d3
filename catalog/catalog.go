package catalog

import (
	"errors"
	"fmt"
)

// SizePolicy determines how a carve session for a type resolves its end.
type SizePolicy int

const (
	// FooterTerminated ends a carve at the type's footer pattern, bounded by MaxSize.
	FooterTerminated SizePolicy = iota
	// FixedLength ends a carve exactly FixedSize bytes after the header start.
	FixedLength
	// MaxSizeCapped ends a carve at MaxSize bytes with no footer required.
	MaxSizeCapped
)

func (p SizePolicy) String() string {
	switch p {
	case FooterTerminated:
		return "footer"
	case FixedLength:
		return "fixed"
	case MaxSizeCapped:
		return "capped"
	default:
		return "unknown"
	}
}

var (
	ErrDuplicateType = errors.New("duplicate signature type")
	ErrEmptyPattern  = errors.New("empty signature pattern")
	ErrBadPattern    = errors.New("malformed signature pattern")
	ErrBadSize       = errors.New("size fields inconsistent with policy")
)

// Pattern is a byte sequence with optional wildcard positions. A wildcard
// position matches any byte value. Wild is nil when the pattern is literal.
type Pattern struct {
	Bytes []byte
	Wild  []bool
}

// Len returns the pattern length in bytes.
func (p Pattern) Len() int { return len(p.Bytes) }

// Literal reports whether the pattern contains no wildcard positions.
func (p Pattern) Literal() bool {
	for _, w := range p.Wild {
		if w {
			return false
		}
	}
	return true
}

// Signature describes one recoverable file type: how it starts, how it ends,
// and how large it may be. Immutable once handed to a Catalog.
type Signature struct {
	// Type uniquely identifies the signature within a catalog (e.g. "jpeg-jfif").
	Type string
	// Ext is the file extension used when naming recovered artifacts.
	Ext string
	// Header marks the start of a candidate file.
	Header Pattern
	// Footer marks the end, for FooterTerminated types. Nil otherwise.
	Footer *Pattern
	// FooterInclusive controls whether the footer bytes belong to the carve.
	// An exclusive footer delimits the carve without being part of it (e.g.
	// an OLE document terminated by the next OLE header).
	FooterInclusive bool
	// Policy selects the end-resolution strategy.
	Policy SizePolicy
	// MaxSize bounds the carve length in bytes. Zero means unbounded for
	// FooterTerminated types; it is required for MaxSizeCapped.
	MaxSize int64
	// FixedSize is the exact carve length for FixedLength types.
	FixedSize int64
	// AllowOverlap permits multiple simultaneously open sessions of this
	// type. The default (false) ignores nested headers while a session of
	// the same type is open.
	AllowOverlap bool
}

func (s Signature) validate() error {
	if s.Type == "" {
		return fmt.Errorf("%w: signature has no type", ErrBadPattern)
	}
	if s.Header.Len() == 0 {
		return fmt.Errorf("%w: header of %q", ErrEmptyPattern, s.Type)
	}
	if s.Header.allWild() {
		// Wildcard-only headers match everywhere; require one literal byte.
		return fmt.Errorf("%w: header of %q has no literal bytes", ErrBadPattern, s.Type)
	}
	switch s.Policy {
	case FooterTerminated:
		if s.Footer == nil || s.Footer.Len() == 0 {
			return fmt.Errorf("%w: footer of %q", ErrEmptyPattern, s.Type)
		}
	case FixedLength:
		if s.FixedSize <= 0 {
			return fmt.Errorf("%w: %q fixed-length without fixed_size", ErrBadSize, s.Type)
		}
		if s.FixedSize < int64(s.Header.Len()) {
			return fmt.Errorf("%w: %q fixed_size shorter than header", ErrBadSize, s.Type)
		}
	case MaxSizeCapped:
		if s.MaxSize <= 0 {
			return fmt.Errorf("%w: %q capped without max_size", ErrBadSize, s.Type)
		}
	default:
		return fmt.Errorf("%w: %q unknown policy %d", ErrBadSize, s.Type, s.Policy)
	}
	if s.MaxSize > 0 && s.MaxSize < int64(s.Header.Len()) {
		return fmt.Errorf("%w: %q max_size shorter than header", ErrBadSize, s.Type)
	}
	return nil
}

func (p Pattern) allWild() bool {
	if len(p.Wild) == 0 {
		return false
	}
	for _, w := range p.Wild {
		if !w {
			return false
		}
	}
	return true
}

// Catalog is the immutable set of signature definitions a scan runs against.
// Safe for concurrent readers after construction.
type Catalog struct {
	sigs          []Signature
	byType        map[string]int
	maxPatternLen int
}

// New validates the definitions and builds a catalog. Declaration order is
// preserved and breaks ties between equally specific patterns at match time.
func New(sigs []Signature) (*Catalog, error) {
	if len(sigs) == 0 {
		return nil, errors.New("catalog has no signatures")
	}
	c := &Catalog{
		sigs:   make([]Signature, len(sigs)),
		byType: make(map[string]int, len(sigs)),
	}
	copy(c.sigs, sigs)
	for i, s := range c.sigs {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byType[s.Type]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateType, s.Type)
		}
		c.byType[s.Type] = i
		if n := s.Header.Len(); n > c.maxPatternLen {
			c.maxPatternLen = n
		}
		if s.Footer != nil {
			if n := s.Footer.Len(); n > c.maxPatternLen {
				c.maxPatternLen = n
			}
		}
	}
	return c, nil
}

// Signatures returns the definitions in declaration order. The returned
// slice is shared; callers must not mutate it.
func (c *Catalog) Signatures() []Signature { return c.sigs }

// Len returns the number of signature definitions.
func (c *Catalog) Len() int { return len(c.sigs) }

// ByType looks up a definition by its type id.
func (c *Catalog) ByType(t string) (Signature, bool) {
	i, ok := c.byType[t]
	if !ok {
		return Signature{}, false
	}
	return c.sigs[i], true
}

// Footer returns the footer pattern for a type, if it has one.
func (c *Catalog) Footer(t string) (*Pattern, bool) {
	s, ok := c.ByType(t)
	if !ok || s.Footer == nil {
		return nil, false
	}
	return s.Footer, true
}

// MaxPatternLen is the longest header or footer length in the catalog. The
// scan window must retain MaxPatternLen-1 trailing bytes between chunks so
// no pattern is missed at a chunk boundary.
func (c *Catalog) MaxPatternLen() int { return c.maxPatternLen }

// MaxCarveSize is the largest bounded carve length in the catalog, used to
// size segment overlap for parallel scans. Returns 0 if any type is
// unbounded.
func (c *Catalog) MaxCarveSize() int64 {
	var max int64
	for _, s := range c.sigs {
		limit := s.MaxSize
		if s.Policy == FixedLength {
			limit = s.FixedSize
		}
		if limit == 0 {
			return 0
		}
		if limit > max {
			max = limit
		}
	}
	return max
}
