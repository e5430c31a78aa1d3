package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"

	"github.com/rawcarve/rawcarve/catalog"
	"github.com/rawcarve/rawcarve/session"
)

// ErrUnboundedCatalog: segment overlap is sized by the largest bounded
// carve; a catalog with an unbounded type cannot be segmented safely.
var ErrUnboundedCatalog = errors.New("catalog has unbounded types; parallel scan unavailable")

// DefaultSegmentSize is the per-worker segment length for parallel scans.
const DefaultSegmentSize = int64(256) << 20

// ParallelResult is the merged outcome of a segmented scan.
type ParallelResult struct {
	Sessions []session.Session // finalized, sorted by start offset
	Stats    Snapshot
}

type segmentJob struct {
	index int
	base  int64
	own   int64 // exclusive ownership boundary
	ext   int64 // scanned extent (ownership + overlap)
}

type segmentResult struct {
	index    int
	sessions []session.Session
	stats    session.Stats
	err      error
}

// ScanReaderAt partitions src into independently scanned segments with
// overlap at least the largest bounded carve size, one matcher/tracker pair
// per worker, then merges and deduplicates sessions falling in overlap
// zones with the first-opened-by-absolute-offset rule. Sessions carved by
// two adjacent segments collapse to one; a session nested inside an
// earlier-opened one of the same type is dropped unless the type allows
// overlap. Nesting decisions that depend on sessions a segment cannot see
// (a suppressed header whose suppressor was later discarded) may differ
// from a single-threaded scan.
func ScanReaderAt(ctx context.Context, cat *catalog.Catalog, src io.ReaderAt, size int64, workers int, segmentSize int64) (ParallelResult, error) {
	overlap := cat.MaxCarveSize()
	if overlap == 0 {
		return ParallelResult{}, ErrUnboundedCatalog
	}
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	if segmentSize < overlap {
		segmentSize = overlap
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var jobs []segmentJob
	for i, base := 0, int64(0); base < size; i, base = i+1, base+segmentSize {
		own := base + segmentSize
		if own > size {
			own = size
		}
		ext := own + overlap
		if ext > size {
			ext = size
		}
		jobs = append(jobs, segmentJob{index: i, base: base, own: own, ext: ext})
	}
	if len(jobs) == 0 {
		return ParallelResult{Stats: NewCollector().Snapshot(session.Stats{})}, nil
	}
	if len(jobs) < workers {
		workers = len(jobs)
	}

	collector := NewCollector()
	jobCh := make(chan segmentJob, len(jobs))
	resCh := make(chan segmentResult, len(jobs))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				resCh <- scanSegment(ctx, cat, src, job, collector)
			}
		}()
	}
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()
	close(resCh)

	results := make([]segmentResult, 0, len(jobs))
	var total session.Stats
	for res := range resCh {
		if res.err != nil {
			return ParallelResult{}, fmt.Errorf("segment %d: %w", res.index, res.err)
		}
		results = append(results, res)
		total.Opened += res.stats.Opened
		total.Finalized += res.stats.Finalized
		total.Discarded += res.stats.Discarded
		total.IgnoredNested += res.stats.IgnoredNested
	}

	merged := mergeSessions(cat, results)
	total.Finalized = int64(len(merged))
	return ParallelResult{Sessions: merged, Stats: collector.Snapshot(total)}, nil
}

// scanSegment runs one engine over the segment extent and keeps only
// sessions the segment owns (start inside [base, own)).
func scanSegment(ctx context.Context, cat *catalog.Catalog, src io.ReaderAt, job segmentJob, collector *Collector) segmentResult {
	res := segmentResult{index: job.index}
	eng := New(cat, func(s session.Session) {
		s.Start += job.base
		s.End += job.base
		if s.Start < job.own {
			res.sessions = append(res.sessions, s)
		}
	}, nil)
	eng.stats = collector
	sec := io.NewSectionReader(src, job.base, job.ext-job.base)
	if err := eng.ScanReader(ctx, sec, DefaultChunkSize); err != nil {
		res.err = err
		return res
	}
	res.stats = eng.tracker.Stats()
	return res
}

// mergeSessions flattens segment outputs into a single ordered sequence.
// Exact duplicates from overlap zones collapse, and for types without
// allow-overlap a session starting inside an earlier-opened session of the
// same type is dropped, matching the tracker's first-opened-wins nesting
// rule across segment boundaries.
func mergeSessions(cat *catalog.Catalog, results []segmentResult) []session.Session {
	var all []session.Session
	for _, r := range results {
		all = append(all, r.sessions...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].Sig < all[j].Sig
	})
	sigs := cat.Signatures()
	lastEnd := make(map[string]int64, cat.Len())
	seen := make(map[string]int64, cat.Len()) // type -> last accepted start
	out := all[:0]
	for _, s := range all {
		if start, ok := seen[s.Type]; ok && start == s.Start {
			continue // same session carved by two adjacent segments
		}
		if !sigs[s.Sig].AllowOverlap {
			if end, ok := lastEnd[s.Type]; ok && s.Start < end {
				continue // nested inside a first-opened session
			}
		}
		seen[s.Type] = s.Start
		if s.End > lastEnd[s.Type] {
			lastEnd[s.Type] = s.End
		}
		out = append(out, s)
	}
	return out
}
