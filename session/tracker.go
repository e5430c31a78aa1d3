package session

import (
	"fmt"

	"github.com/rawcarve/rawcarve/catalog"
	"github.com/rawcarve/rawcarve/scanner"
)

// State of a carve session.
type State int

const (
	StateOpen State = iota
	StateFinalized
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFinalized:
		return "finalized"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Session is one finalized or discarded recovery candidate. For finalized
// sessions Start < End always holds; for discarded sessions End is the
// extent known when the session was abandoned.
type Session struct {
	Type  string
	Ext   string
	Sig   int // catalog declaration index
	Start int64
	End   int64
	State State
}

// Len is the carve length in bytes.
func (s Session) Len() int64 { return s.End - s.Start }

func (s Session) String() string {
	return fmt.Sprintf("%s[%d:%d] %s", s.Type, s.Start, s.End, s.State)
}

type openSession struct {
	sig      catalog.Signature
	sigIdx   int
	start    int64
	limit    int64 // start+MaxSize, 0 when unbounded
	fixedEnd int64 // start+FixedSize, fixed-length only
}

// Stats counts session outcomes for diagnostics. Discards are expected,
// lossy behavior for truncated or false-positive headers, not errors.
type Stats struct {
	Opened        int64
	Finalized     int64
	Discarded     int64
	IgnoredNested int64
}

// Tracker maintains the set of open carve sessions and resolves each to
// finalized or discarded using the type's size policy. Match events must
// arrive in non-decreasing offset order (the matcher guarantees this);
// position advances must be monotonic. Finalized sessions are delivered in
// non-decreasing start order: a finalized session is held until every open
// session with a smaller start has resolved.
//
// Every open session is resolved by Finish at the latest; none survives end
// of stream.
type Tracker struct {
	cat      *catalog.Catalog
	emit     func(Session)
	discard  func(Session) // optional observer, may be nil
	open     []*openSession
	pending  []Session // finalized, held for ordered release
	pos      int64
	stats    Stats
	finished bool
}

// New creates a tracker delivering finalized sessions to emit. discard, if
// non-nil, observes discarded sessions.
func New(cat *catalog.Catalog, emit func(Session), discard func(Session)) *Tracker {
	if emit == nil {
		emit = func(Session) {}
	}
	return &Tracker{cat: cat, emit: emit, discard: discard}
}

// Observe applies one match event. Events after Finish are ignored.
func (t *Tracker) Observe(m scanner.Match) {
	if t.finished {
		return
	}
	t.resolveUpTo(m.Offset)
	if m.Kind == scanner.KindHeader {
		t.observeHeader(m)
		return
	}
	t.observeFooter(m)
}

func (t *Tracker) observeHeader(m scanner.Match) {
	sig := t.cat.Signatures()[m.Sig]
	if !sig.AllowOverlap {
		for _, s := range t.open {
			if s.sig.Type == sig.Type {
				// First-opened-wins: nested header of an open type.
				t.stats.IgnoredNested++
				return
			}
		}
	}
	s := &openSession{sig: sig, sigIdx: m.Sig, start: m.Offset}
	if sig.MaxSize > 0 {
		s.limit = m.Offset + sig.MaxSize
	}
	if sig.Policy == catalog.FixedLength {
		s.fixedEnd = m.Offset + sig.FixedSize
	}
	t.open = append(t.open, s) // headers arrive in offset order, stays sorted
	t.stats.Opened++
}

func (t *Tracker) observeFooter(m scanner.Match) {
	// A footer closes every satisfiable open footer-terminated session of
	// its type. With first-opened-wins there is at most one.
	closed := t.open[:0]
	for _, s := range t.open {
		if s.sig.Type != m.Type || s.sig.Policy != catalog.FooterTerminated {
			closed = append(closed, s)
			continue
		}
		// The footer must lie beyond the session's own header bytes, so an
		// exclusive footer equal to the header does not close its own start.
		if m.Offset < s.start+int64(s.sig.Header.Len()) {
			closed = append(closed, s)
			continue
		}
		end := m.Offset
		if s.sig.FooterInclusive {
			end = m.End()
		}
		if end <= s.start || (s.limit > 0 && end > s.limit) {
			closed = append(closed, s)
			continue
		}
		t.finalize(s, end)
	}
	t.open = closed
	t.release()
}

// resolveUpTo resolves every open session whose outcome is already decided
// at stream offset pos: fixed-length and capped sessions whose end has been
// reached finalize, footer-terminated sessions whose size limit has passed
// without a footer discard.
func (t *Tracker) resolveUpTo(pos int64) {
	if len(t.open) == 0 {
		return
	}
	kept := t.open[:0]
	for _, s := range t.open {
		switch s.sig.Policy {
		case catalog.FixedLength:
			if pos >= s.fixedEnd {
				t.finalize(s, s.fixedEnd)
				continue
			}
		case catalog.MaxSizeCapped:
			if pos >= s.limit {
				t.finalize(s, s.limit)
				continue
			}
		case catalog.FooterTerminated:
			// Strictly past the limit: a footer arriving at exactly
			// start+MaxSize may still close the session at the cap (an
			// exclusive footer there yields length == MaxSize), and match
			// events at pos are delivered after this resolution pass.
			if s.limit > 0 && pos > s.limit {
				t.discardSession(s, pos)
				continue
			}
		}
		kept = append(kept, s)
	}
	t.open = kept
	t.release()
}

// AdvancePosition informs the tracker that all match events up to pos have
// been delivered. Must be monotonic.
func (t *Tracker) AdvancePosition(pos int64) {
	if t.finished || pos <= t.pos {
		return
	}
	t.pos = pos
	t.resolveUpTo(pos)
}

// Finish flushes at end of stream: sessions whose policy is already
// satisfied at the final position finalize (resolveUpTo handles those),
// everything still open discards as incomplete. Pending ordered output is
// drained. The tracker accepts no events afterwards.
func (t *Tracker) Finish(pos int64) {
	if t.finished {
		return
	}
	if pos > t.pos {
		t.pos = pos
	}
	t.resolveUpTo(t.pos)
	for _, s := range t.open {
		t.discardSession(s, t.pos)
	}
	t.open = nil
	t.finished = true
	t.release()
}

// Abort discards every open session without policy resolution, for
// cancelled scans. Sessions already finalized are still released.
func (t *Tracker) Abort() {
	if t.finished {
		return
	}
	for _, s := range t.open {
		t.discardSession(s, t.pos)
	}
	t.open = nil
	t.finished = true
	t.release()
}

func (t *Tracker) finalize(s *openSession, end int64) {
	if end <= s.start {
		// Policy violation; treat as discard rather than emit a zero or
		// negative carve.
		t.discardSession(s, end)
		return
	}
	sess := Session{
		Type:  s.sig.Type,
		Ext:   s.sig.Ext,
		Sig:   s.sigIdx,
		Start: s.start,
		End:   end,
		State: StateFinalized,
	}
	t.stats.Finalized++
	// Insert keeping pending sorted by start. Finalization order differs
	// from open order, so a simple append is not enough.
	i := len(t.pending)
	for i > 0 && t.pending[i-1].Start > sess.Start {
		i--
	}
	t.pending = append(t.pending, Session{})
	copy(t.pending[i+1:], t.pending[i:])
	t.pending[i] = sess
}

func (t *Tracker) discardSession(s *openSession, extent int64) {
	t.stats.Discarded++
	if t.discard != nil {
		end := extent
		if end < s.start {
			end = s.start
		}
		t.discard(Session{
			Type:  s.sig.Type,
			Ext:   s.sig.Ext,
			Sig:   s.sigIdx,
			Start: s.start,
			End:   end,
			State: StateDiscarded,
		})
	}
}

// release emits pending finalized sessions that can no longer be preceded:
// every open session starts later, so output order is non-decreasing in
// start offset.
func (t *Tracker) release() {
	if len(t.pending) == 0 {
		return
	}
	var minOpen int64 = -1
	if len(t.open) > 0 {
		minOpen = t.open[0].start
	}
	n := 0
	for _, sess := range t.pending {
		if minOpen >= 0 && sess.Start > minOpen {
			break
		}
		t.emit(sess)
		n++
	}
	t.pending = t.pending[n:]
}

// OpenCount is the number of currently open sessions.
func (t *Tracker) OpenCount() int { return len(t.open) }

// Stats returns outcome counters.
func (t *Tracker) Stats() Stats { return t.stats }
