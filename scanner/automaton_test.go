package scanner

import (
	"testing"

	"github.com/rawcarve/rawcarve/catalog"
)

func mustCatalog(t *testing.T, sigs []catalog.Signature) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(sigs)
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	return cat
}

func TestAutomatonBasicMatch(t *testing.T) {
	cat := mustCatalog(t, []catalog.Signature{
		{
			Type:   "jpeg",
			Ext:    "jpg",
			Header: catalog.MustPattern("ffd8ff"),
			Footer: ptr(catalog.MustPattern("ffd9")),
			Policy: catalog.FooterTerminated,
		},
	})
	auto := NewAutomaton(cat)

	if auto.Patterns() != 2 {
		t.Errorf("expected 2 compiled patterns (header+footer), got %d", auto.Patterns())
	}
	if auto.MaxLen() != 3 {
		t.Errorf("expected max pattern length 3, got %d", auto.MaxLen())
	}
	if auto.BuildHash() == "" {
		t.Error("build hash should not be empty")
	}

	data := []byte{0x00, 0xff, 0xd8, 0xff, 0x41, 0x42, 0xff, 0xd9}
	type hit struct {
		end  int
		kind Kind
	}
	var hits []hit
	auto.Scan(data, func(end int, ref patternRef) {
		hits = append(hits, hit{end, ref.kind})
	})

	want := []hit{{4, KindHeader}, {8, KindFooter}}
	if len(hits) != len(want) {
		t.Fatalf("expected %d hits, got %d: %+v", len(want), len(hits), hits)
	}
	for i, h := range hits {
		if h != want[i] {
			t.Errorf("hit %d: got end=%d kind=%v, want end=%d kind=%v",
				i, h.end, h.kind, want[i].end, want[i].kind)
		}
	}
}

func TestAutomatonSameOffsetPrefixes(t *testing.T) {
	// Two headers where one is a strict prefix of the other. Both must be
	// reported when the longer one occurs.
	cat := mustCatalog(t, []catalog.Signature{
		{Type: "short", Ext: "s", Header: catalog.MustPattern("0102"), Policy: catalog.MaxSizeCapped, MaxSize: 64},
		{Type: "long", Ext: "l", Header: catalog.MustPattern("01020304"), Policy: catalog.MaxSizeCapped, MaxSize: 64},
	})
	auto := NewAutomaton(cat)

	data := []byte{0x01, 0x02, 0x03, 0x04}
	var got []int
	auto.Scan(data, func(end int, ref patternRef) {
		got = append(got, ref.length)
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
	if got[0] != 2 || got[1] != 4 {
		t.Errorf("expected lengths [2 4] in end order, got %v", got)
	}
}

func TestAutomatonWildcard(t *testing.T) {
	cat := mustCatalog(t, []catalog.Signature{
		{Type: "riff", Ext: "bin", Header: catalog.MustPattern("52494646????AB"), Policy: catalog.MaxSizeCapped, MaxSize: 64},
	})
	auto := NewAutomaton(cat)

	// Wildcard positions accept any byte value, including 0x00 and 0xff.
	for _, fill := range []byte{0x00, 0x7f, 0xff} {
		data := []byte{0x52, 0x49, 0x46, 0x46, fill, fill, 0xab}
		count := 0
		auto.Scan(data, func(end int, ref patternRef) {
			count++
			if end != 7 {
				t.Errorf("fill %#x: expected match end 7, got %d", fill, end)
			}
		})
		if count != 1 {
			t.Errorf("fill %#x: expected 1 match, got %d", fill, count)
		}
	}

	// Mismatch in the literal suffix must not match.
	data := []byte{0x52, 0x49, 0x46, 0x46, 0x01, 0x02, 0xac}
	auto.Scan(data, func(end int, ref patternRef) {
		t.Errorf("unexpected match at end %d", end)
	})
}

func TestAutomatonOverlappingOccurrences(t *testing.T) {
	// Self-overlapping pattern: "aa" in "aaaa" occurs at 0,1,2.
	cat := mustCatalog(t, []catalog.Signature{
		{Type: "aa", Ext: "aa", Header: catalog.MustPattern("6161"), Policy: catalog.MaxSizeCapped, MaxSize: 64},
	})
	auto := NewAutomaton(cat)

	var ends []int
	auto.Scan([]byte("aaaa"), func(end int, ref patternRef) {
		ends = append(ends, end)
	})
	if len(ends) != 3 {
		t.Fatalf("expected 3 overlapping occurrences, got %d: %v", len(ends), ends)
	}
	for i, want := range []int{2, 3, 4} {
		if ends[i] != want {
			t.Errorf("occurrence %d: got end %d, want %d", i, ends[i], want)
		}
	}
}

func TestAutomatonEmptyInput(t *testing.T) {
	cat := mustCatalog(t, []catalog.Signature{
		{Type: "x", Ext: "x", Header: catalog.MustPattern("01"), Policy: catalog.MaxSizeCapped, MaxSize: 64},
	})
	auto := NewAutomaton(cat)
	auto.Scan(nil, func(end int, ref patternRef) {
		t.Error("no matches expected on empty input")
	})
}

func TestAutomatonBuildHashChangesWithPatterns(t *testing.T) {
	a := NewAutomaton(mustCatalog(t, []catalog.Signature{
		{Type: "x", Ext: "x", Header: catalog.MustPattern("0102"), Policy: catalog.MaxSizeCapped, MaxSize: 64},
	}))
	b := NewAutomaton(mustCatalog(t, []catalog.Signature{
		{Type: "x", Ext: "x", Header: catalog.MustPattern("0103"), Policy: catalog.MaxSizeCapped, MaxSize: 64},
	}))
	if a.BuildHash() == b.BuildHash() {
		t.Error("different pattern sets should produce different build hashes")
	}
}

func ptr(p catalog.Pattern) *catalog.Pattern { return &p }
