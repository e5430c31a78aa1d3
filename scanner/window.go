package scanner

import "errors"

var (
	ErrChunkTooSmall = errors.New("chunk shorter than retained tail supplied mid-stream")
	ErrStreamDone    = errors.New("advance after end of stream")
)

// Window is the bounded in-memory view over the input stream. Every advance
// retains the trailing tailLen bytes of the previous view so a pattern
// spanning two physical reads is still fully visible in one view. Memory
// use is O(tail + largest chunk) regardless of stream length.
type Window struct {
	tailLen int
	buf     []byte
	data    []byte // current combined view, aliases buf
	start   int64  // absolute stream offset of data[0]
	newFrom int64  // absolute end of the previous view; matches ending at or before this were already visible
	short   bool   // a short chunk was accepted; only EOS may follow
	done    bool
}

// NewWindow creates a window retaining tailLen bytes across advances.
// tailLen must be maxPatternLen-1 or more for boundary-spanning matches to
// be caught.
func NewWindow(tailLen int) *Window {
	if tailLen < 0 {
		tailLen = 0
	}
	return &Window{tailLen: tailLen}
}

// Advance appends a chunk, sliding the view forward. A zero-length chunk
// signals end of stream. A chunk shorter than the retained tail is accepted
// as a valid final chunk, but any further non-empty advance returns
// ErrChunkTooSmall: the driver must buffer degenerate reads up to the tail
// width itself. A failed advance leaves the view untouched.
func (w *Window) Advance(chunk []byte) error {
	if w.done {
		return ErrStreamDone
	}
	if len(chunk) == 0 {
		w.done = true
		return nil
	}
	if w.short {
		return ErrChunkTooSmall
	}
	n := len(w.data)
	keep := w.tailLen
	if keep > n {
		keep = n
	}
	w.newFrom = w.start + int64(n)
	w.start += int64(n - keep)
	// Slide the tail to the front of the scratch buffer, then append the
	// chunk. copy handles the overlapping move.
	copy(w.buf[:keep], w.data[n-keep:])
	w.buf = append(w.buf[:keep], chunk...)
	w.data = w.buf
	if len(chunk) < w.tailLen {
		w.short = true
	}
	return nil
}

// View returns the combined window and the absolute stream offset of its
// first byte. Read-only; valid until the next Advance.
func (w *Window) View() ([]byte, int64) { return w.data, w.start }

// NewFrom is the absolute offset after which visible bytes are new in the
// current view. A match whose end falls at or before NewFrom was already
// reported by an earlier view.
func (w *Window) NewFrom() int64 { return w.newFrom }

// End is the absolute stream offset just past the current view.
func (w *Window) End() int64 { return w.start + int64(len(w.data)) }

// Done reports whether end of stream has been signaled.
func (w *Window) Done() bool { return w.done }
