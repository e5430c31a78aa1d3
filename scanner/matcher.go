package scanner

import (
	"sort"

	"github.com/rawcarve/rawcarve/catalog"
)

// Match is one header or footer occurrence at an absolute stream offset.
// Produced by the Matcher, consumed immediately by the session tracker.
type Match struct {
	Type   string
	Sig    int // catalog declaration index
	Kind   Kind
	Offset int64 // absolute start of the occurrence
	Length int
}

// End is the exclusive absolute end of the occurrence.
func (m Match) End() int64 { return m.Offset + int64(m.Length) }

// Matcher feeds stream chunks through the window and reports each true
// pattern occurrence exactly once, in non-decreasing start-offset order.
// The overlapped region of consecutive windows is rescanned and matches
// already visible in the previous view are dropped; with the tail invariant
// this duplicates nothing and misses nothing at chunk boundaries.
//
// Matches starting in the trailing maxLen bytes of a view are held back
// until the next advance: a longer pattern starting at the same offset may
// still complete there, and the same-offset tie-break needs both candidates
// in one batch. Held matches always have larger start offsets than anything
// already emitted, so batch order stays non-decreasing.
type Matcher struct {
	cat     *catalog.Catalog
	auto    *Automaton
	win     *Window
	pending []Match
}

// NewMatcher builds the automaton for cat and an empty window sized by the
// catalog's longest pattern.
func NewMatcher(cat *catalog.Catalog) *Matcher {
	auto := NewAutomaton(cat)
	return &Matcher{
		cat:  cat,
		auto: auto,
		win:  NewWindow(auto.MaxLen() - 1),
	}
}

// Advance slides the window by one chunk and returns the settled new
// occurrences, sorted by start offset with same-offset headers reduced to
// the most specific one (longest pattern, then catalog declaration order).
// A zero-length chunk marks end of stream and flushes any held matches.
func (m *Matcher) Advance(chunk []byte) ([]Match, error) {
	if err := m.win.Advance(chunk); err != nil {
		return nil, err
	}
	batch := m.pending
	m.pending = nil
	if len(chunk) > 0 {
		view, base := m.win.View()
		newFrom := m.win.NewFrom()
		sigs := m.cat.Signatures()
		m.auto.Scan(view, func(end int, ref patternRef) {
			absEnd := base + int64(end)
			if absEnd <= newFrom {
				return // already reported by a previous view
			}
			batch = append(batch, Match{
				Type:   sigs[ref.sig].Type,
				Sig:    ref.sig,
				Kind:   ref.kind,
				Offset: absEnd - int64(ref.length),
				Length: ref.length,
			})
		})
		// Hold back matches that may gain a longer same-offset sibling.
		settled := m.win.End() - int64(m.auto.MaxLen())
		kept := batch[:0]
		for _, mt := range batch {
			if mt.Offset > settled {
				m.pending = append(m.pending, mt)
				continue
			}
			kept = append(kept, mt)
		}
		batch = kept
	}
	if len(batch) == 0 {
		return nil, nil
	}
	sort.SliceStable(batch, func(i, j int) bool {
		a, b := batch[i], batch[j]
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		if a.Kind != b.Kind {
			return a.Kind == KindHeader
		}
		if a.Length != b.Length {
			return a.Length > b.Length // more specific first
		}
		return a.Sig < b.Sig
	})
	return dedupeHeaders(batch), nil
}

// dedupeHeaders keeps only the most specific header per offset. The input
// is sorted so the winner is the first header in each same-offset run.
func dedupeHeaders(matches []Match) []Match {
	out := matches[:0]
	var lastHeaderOffset int64 = -1
	seenHeader := false
	for _, m := range matches {
		if m.Kind == KindHeader {
			if seenHeader && m.Offset == lastHeaderOffset {
				continue
			}
			lastHeaderOffset = m.Offset
			seenHeader = true
		}
		out = append(out, m)
	}
	return out
}

// Position is the absolute stream offset consumed so far.
func (m *Matcher) Position() int64 { return m.win.End() }

// SettledPosition is the offset up to which every occurrence has been
// delivered. It trails Position by the longest pattern while matches may
// still be held back, and catches up at end of stream.
func (m *Matcher) SettledPosition() int64 {
	if m.win.Done() {
		return m.win.End()
	}
	p := m.win.End() - int64(m.auto.MaxLen())
	if p < 0 {
		p = 0
	}
	return p
}

// Done reports whether end of stream was signaled.
func (m *Matcher) Done() bool { return m.win.Done() }

// MaxPatternLen exposes the automaton's longest pattern, which is also the
// window tail width plus one.
func (m *Matcher) MaxPatternLen() int { return m.auto.MaxLen() }
