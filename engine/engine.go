package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/rawcarve/rawcarve/catalog"
	"github.com/rawcarve/rawcarve/scanner"
	"github.com/rawcarve/rawcarve/session"
)

// DefaultChunkSize is tuned for sequential reads from disk images.
const DefaultChunkSize = 1 << 20

var ErrFinished = errors.New("engine already finished")

// Engine is the single-pass carving pipeline: window + matcher + tracker
// over one immutable catalog. It is a pure transform from (chunk sequence,
// catalog) to an ordered sequence of finalized byte ranges; it performs no
// file-system writes itself. Not safe for concurrent use; run one Engine
// per scanning goroutine.
type Engine struct {
	cat      *catalog.Catalog
	matcher  *scanner.Matcher
	tracker  *session.Tracker
	stats    *Collector
	finished bool
}

// New creates an engine delivering finalized sessions to emit in
// non-decreasing start order. discard, if non-nil, observes discarded
// candidates (expected, lossy outcomes; see Stats for the count).
func New(cat *catalog.Catalog, emit func(session.Session), discard func(session.Session)) *Engine {
	return &Engine{
		cat:     cat,
		matcher: scanner.NewMatcher(cat),
		tracker: session.New(cat, emit, discard),
		stats:   NewCollector(),
	}
}

// Feed advances the scan by one chunk. A failed advance leaves all session
// state untouched; the driver decides whether to retry I/O and feed again.
// A zero-length chunk is equivalent to Finish.
func (e *Engine) Feed(chunk []byte) error {
	if e.finished {
		return ErrFinished
	}
	if len(chunk) == 0 {
		return e.Finish()
	}
	matches, err := e.matcher.Advance(chunk)
	if err != nil {
		return err
	}
	for _, m := range matches {
		e.tracker.Observe(m)
	}
	e.tracker.AdvancePosition(e.matcher.SettledPosition())
	e.stats.RecordChunk(len(chunk), len(matches))
	return nil
}

// Finish signals end of stream: held matches flush, satisfied sessions
// finalize per their size policy, and everything still open is discarded
// as incomplete.
func (e *Engine) Finish() error {
	if e.finished {
		return ErrFinished
	}
	matches, err := e.matcher.Advance(nil)
	if err != nil {
		return err
	}
	for _, m := range matches {
		e.tracker.Observe(m)
	}
	e.tracker.Finish(e.matcher.Position())
	e.finished = true
	return nil
}

// Abort stops a partial scan: open sessions are discarded, never finalized,
// so a cancelled scan fabricates no output. Sessions finalized before the
// abort have already been emitted.
func (e *Engine) Abort() {
	if e.finished {
		return
	}
	e.tracker.Abort()
	e.finished = true
}

// Position is the absolute stream offset consumed so far.
func (e *Engine) Position() int64 { return e.matcher.Position() }

// Stats returns a snapshot of scan counters.
func (e *Engine) Stats() Snapshot { return e.stats.Snapshot(e.tracker.Stats()) }

// ScanReader streams r through the engine in chunkSize reads and finishes
// at EOF. Cancellation is cooperative between chunks: on ctx cancellation
// the scan aborts and the context error is returned. Reads shorter than a
// full chunk are accumulated so only the final chunk is short.
func (e *Engine) ScanReader(ctx context.Context, r io.Reader, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if min := e.matcher.MaxPatternLen(); chunkSize < min {
		chunkSize = min
	}
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			e.Abort()
			return err
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if ferr := e.Feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return e.Finish()
		default:
			slog.Error("chunk read failed", "offset", e.Position(), "error", err)
			return err
		}
	}
}
