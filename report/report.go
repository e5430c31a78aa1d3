package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"
)

// Event names recorded in a scan report.
const (
	EventScanStart        = "scan_start"
	EventSessionFinalized = "session_finalized"
	EventSessionDiscarded = "session_discarded"
	EventArtifactWritten  = "artifact_written"
	EventExtractError     = "extract_error"
	EventScanComplete     = "scan_complete"
)

// Entry is one immutable record in a scan report. Each entry chains to its
// predecessor through PrevHash, so any later modification of the report is
// detectable by Verify. Forensic runs need that chain-of-custody property.
type Entry struct {
	Index     uint64    `json:"index"`
	Timestamp time.Time `json:"ts"`
	Event     string    `json:"event"`
	Type      string    `json:"type,omitempty"` // signature type id
	Start     int64     `json:"start,omitempty"`
	End       int64     `json:"end,omitempty"`
	Detail    string    `json:"detail,omitempty"` // artifact path, digest, error text
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Log is an append-only, hash-chained scan report.
type Log struct {
	mu  sync.RWMutex
	log []Entry
}

// NewLog creates an empty report.
func NewLog() *Log { return &Log{log: make([]Entry, 0, 256)} }

// Append records an event and returns the sealed entry.
func (l *Log) Append(event, typeID string, start, end int64, detail string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := uint64(len(l.log))
	prev := ""
	if idx > 0 {
		prev = l.log[idx-1].Hash
	}
	ent := Entry{
		Index:     idx,
		Timestamp: time.Now().UTC(),
		Event:     event,
		Type:      typeID,
		Start:     start,
		End:       end,
		Detail:    detail,
		PrevHash:  prev,
	}
	ent.Hash = hashEntry(ent)
	l.log = append(l.log, ent)
	return ent
}

// Len is the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.log)
}

// Latest returns the newest entry.
func (l *Log) Latest() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.log) == 0 {
		return Entry{}, false
	}
	return l.log[len(l.log)-1], true
}

// Entries returns a copy of the report.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.log))
	copy(out, l.log)
	return out
}

// Verify walks the chain and reports whether every entry's hash and link
// are intact.
func (l *Log) Verify() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.log {
		if hashEntry(l.log[i]) != l.log[i].Hash {
			return false
		}
		if i > 0 && l.log[i-1].Hash != l.log[i].PrevHash {
			return false
		}
	}
	return true
}

// WriteJSONL streams the report as one JSON object per line.
func (l *Log) WriteJSONL(w io.Writer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	enc := json.NewEncoder(w)
	for i := range l.log {
		if err := enc.Encode(&l.log[i]); err != nil {
			return fmt.Errorf("write report entry %d: %w", i, err)
		}
	}
	return nil
}

func hashEntry(e Entry) string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(e.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(e.Event))
	h.Write([]byte(e.Type))
	h.Write([]byte(strconv.FormatInt(e.Start, 10)))
	h.Write([]byte(strconv.FormatInt(e.End, 10)))
	h.Write([]byte(e.Detail))
	return hex.EncodeToString(h.Sum(nil))
}
