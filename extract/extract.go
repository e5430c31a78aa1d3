package extract

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/rawcarve/rawcarve/session"
)

var ErrSourceUnavailable = errors.New("source cannot provide the requested byte range")

// Artifact is one recovered file written to disk.
type Artifact struct {
	Type       string `json:"type"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	Path       string `json:"path"`
	Size       int64  `json:"size"` // carved bytes, before compression
	Digest     string `json:"digest"`
	Compressed bool   `json:"compressed,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

// Extractor copies finalized session byte ranges out of the original input
// source into artifact files. The source must support random access back to
// any finalized offset, which is why the engine requires seekable input.
// A BLAKE3 digest is computed for every artifact; a bloom filter over
// digests flags likely duplicates (the same file is often reachable from
// several headers in unallocated space) without suppressing output.
type Extractor struct {
	src      io.ReaderAt
	srcSize  int64 // -1 when unknown
	dir      string
	compress bool
	seen     *digestFilter
	count    int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCompression writes artifacts zstd-compressed with a .zst suffix.
func WithCompression() Option {
	return func(x *Extractor) { x.compress = true }
}

// New creates an extractor writing into dir. srcSize bounds range checks;
// pass -1 when the total source length is unknown.
func New(src io.ReaderAt, srcSize int64, dir string, opts ...Option) *Extractor {
	x := &Extractor{
		src:     src,
		srcSize: srcSize,
		dir:     dir,
		seen:    newDigestFilter(1 << 16),
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Extract copies the session's byte range into a new artifact file named
// recovered_<offset>_<type>.<ext>. A short read from the source maps to
// ErrSourceUnavailable. Individual extract failures leave no partial file
// behind.
func (x *Extractor) Extract(s session.Session) (Artifact, error) {
	if s.End <= s.Start {
		return Artifact{}, fmt.Errorf("invalid range %d..%d for %s", s.Start, s.End, s.Type)
	}
	if x.srcSize >= 0 && s.End > x.srcSize {
		return Artifact{}, fmt.Errorf("%w: range %d..%d beyond source size %d", ErrSourceUnavailable, s.Start, s.End, x.srcSize)
	}
	length := s.End - s.Start
	name := fmt.Sprintf("recovered_%d_%s.%s", s.Start, s.Type, s.Ext)
	if x.compress {
		name += ".zst"
	}
	path := filepath.Join(x.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Artifact{}, fmt.Errorf("create artifact: %w", err)
	}
	hasher := blake3.New()
	var sink io.Writer = f
	var zw *zstd.Encoder
	if x.compress {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			os.Remove(path)
			return Artifact{}, fmt.Errorf("zstd writer: %w", err)
		}
		sink = zw
	}

	src := io.NewSectionReader(x.src, s.Start, length)
	n, err := io.Copy(io.MultiWriter(sink, hasher), src)
	if err == nil && zw != nil {
		err = zw.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n < length {
		err = fmt.Errorf("%w: short read at offset %d", ErrSourceUnavailable, s.Start+n)
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		return Artifact{}, err
	}

	digest := hasher.Sum(nil)
	art := Artifact{
		Type:       s.Type,
		Start:      s.Start,
		End:        s.End,
		Path:       path,
		Size:       length,
		Digest:     hex.EncodeToString(digest),
		Compressed: x.compress,
		Duplicate:  x.seen.mayContain(digest),
	}
	x.seen.add(digest)
	x.count++
	return art, nil
}

// Count is the number of artifacts written so far.
func (x *Extractor) Count() int64 { return x.count }
