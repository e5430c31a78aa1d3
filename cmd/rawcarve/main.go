package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/spf13/pflag"

	"github.com/rawcarve/rawcarve/catalog"
	"github.com/rawcarve/rawcarve/engine"
	"github.com/rawcarve/rawcarve/extract"
	"github.com/rawcarve/rawcarve/internal/logging"
	"github.com/rawcarve/rawcarve/internal/natspub"
	"github.com/rawcarve/rawcarve/internal/otelinit"
	"github.com/rawcarve/rawcarve/internal/resilience"
	"github.com/rawcarve/rawcarve/report"
	"github.com/rawcarve/rawcarve/session"
	"github.com/rawcarve/rawcarve/verify"
)

type options struct {
	input        string
	outputDir    string
	catalogPath  string
	reportPath   string
	chunkSize    int
	workers      int
	segmentSize  int64
	compress     bool
	maxBandwidth int64
	natsURL      string
	natsSubject  string
	yaraRules    string
	yaraTimeout  int
}

func parseFlags() options {
	var o options
	pflag.StringVarP(&o.input, "input", "i", "", "disk image or block device to scan (required)")
	pflag.StringVarP(&o.outputDir, "output-dir", "o", "./recovered", "directory for recovered artifacts")
	pflag.StringVarP(&o.catalogPath, "catalog", "c", "", "signature catalog JSON file or directory (default: built-in catalog)")
	pflag.StringVar(&o.reportPath, "report", "", "write the hash-chained scan report as JSONL to this path")
	pflag.IntVar(&o.chunkSize, "chunk-size", engine.DefaultChunkSize, "read chunk size in bytes")
	pflag.IntVarP(&o.workers, "workers", "w", 1, "parallel scan workers; >1 requires a fully bounded catalog")
	pflag.Int64Var(&o.segmentSize, "segment-size", engine.DefaultSegmentSize, "per-worker segment size for parallel scans")
	pflag.BoolVar(&o.compress, "zstd", false, "write artifacts zstd-compressed")
	pflag.Int64Var(&o.maxBandwidth, "max-bandwidth", 0, "cap sequential read bandwidth in bytes/sec (0 = unlimited)")
	pflag.StringVar(&o.natsURL, "nats-url", "", "publish artifact records to this NATS server")
	pflag.StringVar(&o.natsSubject, "nats-subject", "rawcarve.artifacts", "NATS subject for artifact records")
	pflag.StringVar(&o.yaraRules, "yara-rules", "", "scan recovered artifacts with YARA rules from this directory")
	pflag.IntVar(&o.yaraTimeout, "yara-timeout", 30, "per-artifact YARA scan timeout in seconds")
	pflag.Parse()
	return o
}

func main() {
	o := parseFlags()
	logging.Init("rawcarve")
	if o.input == "" {
		pflag.Usage()
		slog.Error("missing required --input")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	shutdownTrace := otelinit.InitTracer(ctx, "rawcarve")
	shutdownMetrics, inst := otelinit.InitMetrics(ctx, "rawcarve")
	defer func() {
		flushCtx := context.Background()
		otelinit.Flush(flushCtx, shutdownTrace)
		otelinit.Flush(flushCtx, shutdownMetrics)
	}()

	if err := run(ctx, o, inst); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("scan cancelled; no artifacts fabricated from open sessions")
			os.Exit(130)
		}
		slog.Error("carve failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, inst otelinit.Instruments) error {
	cat, err := loadCatalog(o.catalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	slog.Info("catalog loaded", "types", cat.Len(), "max_pattern_len", cat.MaxPatternLen())

	src, err := os.Open(o.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()
	fi, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	srcSize := fi.Size()

	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var verifier *verify.Verifier
	if o.yaraRules != "" {
		verifier, err = verify.NewVerifier(o.yaraRules, "artifacts")
		if err != nil {
			return fmt.Errorf("load yara rules: %w", err)
		}
		defer verifier.Close()
	}

	var nc *nats.Conn
	if o.natsURL != "" {
		nc, err = natspub.Connect(ctx, o.natsURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()
	}

	rep := report.NewLog()
	rep.Append(report.EventScanStart, "", 0, srcSize, o.input)

	d := &driver{
		ctx:       ctx,
		opts:      o,
		inst:      inst,
		rep:       rep,
		nc:        nc,
		verifier:  verifier,
		extractor: extract.New(src, srcSize, o.outputDir, extractOpts(o)...),
	}

	start := time.Now()
	var stats engine.Snapshot
	if o.workers > 1 {
		stats, err = d.runParallel(cat, src, srcSize)
	} else {
		stats, err = d.runSequential(cat, src)
	}
	if err != nil {
		return err
	}

	rep.Append(report.EventScanComplete, "", 0, srcSize, "")
	if !rep.Verify() {
		return errors.New("scan report hash chain verification failed")
	}
	if o.reportPath != "" {
		if err := writeReport(rep, o.reportPath); err != nil {
			return err
		}
	}

	inst.BytesScanned.Add(ctx, stats.BytesScanned)
	inst.MatchEvents.Add(ctx, stats.MatchEvents)
	inst.ScanDuration.Record(ctx, time.Since(start).Seconds())
	slog.Info("scan complete",
		"bytes_scanned", stats.BytesScanned,
		"sessions_opened", stats.Opened,
		"sessions_finalized", stats.Finalized,
		"sessions_discarded", stats.Discarded,
		"nested_headers_ignored", stats.IgnoredNested,
		"artifacts_written", d.extractor.Count(),
		"extract_errors", d.extractErrors,
		"throughput_mbps", fmt.Sprintf("%.1f", stats.ThroughputBPS/1e6),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func extractOpts(o options) []extract.Option {
	if o.compress {
		return []extract.Option{extract.WithCompression()}
	}
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Builtin()
	}
	return catalog.Load(path)
}

func writeReport(rep *report.Log, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if err := rep.WriteJSONL(f); err != nil {
		return err
	}
	slog.Info("scan report written", "path", path, "entries", rep.Len())
	return nil
}

// driver owns the per-scan side effects: extraction, reporting, metrics,
// fleet publishing, artifact verification.
type driver struct {
	ctx           context.Context
	opts          options
	inst          otelinit.Instruments
	rep           *report.Log
	nc            *nats.Conn
	verifier      *verify.Verifier
	extractor     *extract.Extractor
	extractErrors int64
}

func (d *driver) runSequential(cat *catalog.Catalog, src *os.File) (engine.Snapshot, error) {
	var th *resilience.Throttle
	if d.opts.maxBandwidth > 0 {
		th = resilience.NewThrottle(d.opts.maxBandwidth)
	}
	eng := engine.New(cat, d.onFinalized, d.onDiscarded)
	r := resilience.NewThrottledReader(src, th)
	if err := eng.ScanReader(d.ctx, r, d.opts.chunkSize); err != nil {
		return engine.Snapshot{}, err
	}
	return eng.Stats(), nil
}

func (d *driver) runParallel(cat *catalog.Catalog, src *os.File, srcSize int64) (engine.Snapshot, error) {
	res, err := engine.ScanReaderAt(d.ctx, cat, src, srcSize, d.opts.workers, d.opts.segmentSize)
	if err != nil {
		if errors.Is(err, engine.ErrUnboundedCatalog) {
			return engine.Snapshot{}, fmt.Errorf("%w; rerun with --workers=1 or bound every type's max size", err)
		}
		return engine.Snapshot{}, err
	}
	for _, s := range res.Sessions {
		d.onFinalized(s)
	}
	return res.Stats, nil
}

func (d *driver) onFinalized(s session.Session) {
	d.rep.Append(report.EventSessionFinalized, s.Type, s.Start, s.End, "")
	d.inst.Finalized.Add(d.ctx, 1)

	art, err := d.extractor.Extract(s)
	if err != nil {
		d.extractErrors++
		d.inst.ExtractErrors.Add(d.ctx, 1)
		d.rep.Append(report.EventExtractError, s.Type, s.Start, s.End, err.Error())
		slog.Error("extract failed", "session", s.String(), "error", err)
		return
	}
	d.rep.Append(report.EventArtifactWritten, s.Type, s.Start, s.End, art.Path+" blake3:"+art.Digest)
	if art.Duplicate {
		slog.Info("likely duplicate artifact", "path", art.Path, "digest", art.Digest)
	}
	d.verifyArtifact(art)
	d.publishArtifact(art)
}

func (d *driver) onDiscarded(s session.Session) {
	d.rep.Append(report.EventSessionDiscarded, s.Type, s.Start, s.End, "")
	d.inst.Discarded.Add(d.ctx, 1)
	slog.Debug("session discarded", "session", s.String())
}

func (d *driver) verifyArtifact(art extract.Artifact) {
	if d.verifier == nil || art.Compressed {
		return
	}
	findings, err := d.verifier.VerifyFile(art.Path, time.Duration(d.opts.yaraTimeout)*time.Second)
	if err != nil {
		slog.Error("yara scan failed", "path", art.Path, "error", err)
		return
	}
	for _, f := range findings {
		slog.Warn("yara rule matched recovered artifact",
			"path", art.Path, "rule", f.Rule, "namespace", f.Namespace, "offset", f.Offset)
	}
}

func (d *driver) publishArtifact(art extract.Artifact) {
	if d.nc == nil {
		return
	}
	payload, err := json.Marshal(art)
	if err != nil {
		return
	}
	ctx, done := otelinit.WithSpan(d.ctx, "publish_artifact")
	defer done()
	if err := natspub.Publish(ctx, d.nc, d.opts.natsSubject, payload); err != nil {
		slog.Error("artifact publish failed", "subject", d.opts.natsSubject, "error", err)
	}
}
