package catalog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("ffd8ff??e0")
	if err != nil {
		t.Fatalf("ParsePattern failed: %v", err)
	}
	if p.Len() != 5 {
		t.Errorf("Expected length 5, got %d", p.Len())
	}
	if !bytes.Equal(p.Bytes[:3], []byte{0xff, 0xd8, 0xff}) {
		t.Errorf("Unexpected literal bytes: %x", p.Bytes)
	}
	if p.Wild == nil || !p.Wild[3] || p.Wild[4] {
		t.Errorf("Wildcard mask wrong: %v", p.Wild)
	}
	if p.Literal() {
		t.Error("Pattern with wildcard should not be literal")
	}
}

func TestParsePatternSpaces(t *testing.T) {
	a, err := ParsePattern("ff d8 ff e0")
	if err != nil {
		t.Fatalf("ParsePattern failed: %v", err)
	}
	b, _ := ParsePattern("ffd8ffe0")
	if !bytes.Equal(a.Bytes, b.Bytes) {
		t.Errorf("Spaced and compact forms differ: %x vs %x", a.Bytes, b.Bytes)
	}
}

func TestParsePatternErrors(t *testing.T) {
	if _, err := ParsePattern(""); !errors.Is(err, ErrEmptyPattern) {
		t.Errorf("Expected ErrEmptyPattern, got %v", err)
	}
	if _, err := ParsePattern("fff"); !errors.Is(err, ErrBadPattern) {
		t.Errorf("Expected ErrBadPattern for odd length, got %v", err)
	}
	if _, err := ParsePattern("zz"); !errors.Is(err, ErrBadPattern) {
		t.Errorf("Expected ErrBadPattern for non-hex, got %v", err)
	}
}

func TestCatalogDuplicateType(t *testing.T) {
	sigs := []Signature{
		{Type: "a", Ext: "a", Header: MustPattern("0102"), Policy: MaxSizeCapped, MaxSize: 1024},
		{Type: "a", Ext: "a", Header: MustPattern("0304"), Policy: MaxSizeCapped, MaxSize: 1024},
	}
	if _, err := New(sigs); !errors.Is(err, ErrDuplicateType) {
		t.Errorf("Expected ErrDuplicateType, got %v", err)
	}
}

func TestCatalogEmptyHeader(t *testing.T) {
	sigs := []Signature{{Type: "a", Ext: "a", Policy: MaxSizeCapped, MaxSize: 1024}}
	if _, err := New(sigs); !errors.Is(err, ErrEmptyPattern) {
		t.Errorf("Expected ErrEmptyPattern, got %v", err)
	}
}

func TestCatalogPolicyValidation(t *testing.T) {
	// Footer-terminated without footer.
	sigs := []Signature{{Type: "a", Ext: "a", Header: MustPattern("01"), Policy: FooterTerminated}}
	if _, err := New(sigs); !errors.Is(err, ErrEmptyPattern) {
		t.Errorf("Expected ErrEmptyPattern for missing footer, got %v", err)
	}
	// Fixed-length without size.
	sigs = []Signature{{Type: "b", Ext: "b", Header: MustPattern("01"), Policy: FixedLength}}
	if _, err := New(sigs); !errors.Is(err, ErrBadSize) {
		t.Errorf("Expected ErrBadSize for missing fixed_size, got %v", err)
	}
	// Capped without max.
	sigs = []Signature{{Type: "c", Ext: "c", Header: MustPattern("01"), Policy: MaxSizeCapped}}
	if _, err := New(sigs); !errors.Is(err, ErrBadSize) {
		t.Errorf("Expected ErrBadSize for missing max_size, got %v", err)
	}
}

func TestCatalogMaxPatternLen(t *testing.T) {
	footer := MustPattern("0102030405060708")
	sigs := []Signature{
		{Type: "a", Ext: "a", Header: MustPattern("0102"), Footer: &footer, FooterInclusive: true, Policy: FooterTerminated, MaxSize: 1024},
	}
	cat, err := New(sigs)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if cat.MaxPatternLen() != 8 {
		t.Errorf("Expected max pattern len 8, got %d", cat.MaxPatternLen())
	}
}

func TestBuiltinCatalog(t *testing.T) {
	cat, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin catalog invalid: %v", err)
	}
	if cat.Len() == 0 {
		t.Fatal("Builtin catalog is empty")
	}
	jpeg, ok := cat.ByType("jpeg-jfif")
	if !ok {
		t.Fatal("jpeg-jfif missing from builtin catalog")
	}
	if jpeg.Policy != FooterTerminated || jpeg.Footer == nil {
		t.Error("jpeg-jfif should be footer-terminated")
	}
	if _, ok := cat.Footer("bmp"); ok {
		t.Error("bmp should have no footer")
	}
	// RIFF wildcard placement: bytes 4..7 wild.
	avi, _ := cat.ByType("avi")
	for i := 4; i < 8; i++ {
		if !avi.Header.Wild[i] {
			t.Errorf("avi header byte %d should be wildcard", i)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sigs.json")
	content := `{"signatures":[
		{"type":"jpeg","ext":"jpg","header":"ffd8ffe0","footer":"ffd9","policy":"footer","max_size":10485760},
		{"type":"block","ext":"bin","header":"aa55","policy":"fixed","fixed_size":512}
	]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("Expected 2 signatures, got %d", cat.Len())
	}
	block, _ := cat.ByType("block")
	if block.Policy != FixedLength || block.FixedSize != 512 {
		t.Errorf("fixed policy not parsed: %+v", block)
	}
	jpeg, _ := cat.ByType("jpeg")
	if !jpeg.FooterInclusive {
		t.Error("footer_inclusive should default to true")
	}
}

func TestLoadDirManifestMismatch(t *testing.T) {
	dir := t.TempDir()
	sig := `{"signatures":[{"type":"a","ext":"a","header":"0102","policy":"capped","max_size":1024}]}`
	if err := os.WriteFile(filepath.Join(dir, "a.json"), []byte(sig), 0o644); err != nil {
		t.Fatal(err)
	}
	man := `{"version":"1","hash":"deadbeef"}`
	if err := os.WriteFile(filepath.Join(dir, "index.json"), []byte(man), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("Expected manifest hash mismatch error")
	}
}

func TestLoadDirManifestMatch(t *testing.T) {
	dir := t.TempDir()
	sig := `{"signatures":[{"type":"a","ext":"a","header":"0102","policy":"capped","max_size":1024}]}`
	if err := os.WriteFile(filepath.Join(dir, "a.json"), []byte(sig), 0o644); err != nil {
		t.Fatal(err)
	}
	composite, _, err := dirCompositeHash(dir)
	if err != nil {
		t.Fatal(err)
	}
	man := `{"version":"1","hash":"` + composite + `"}`
	if err := os.WriteFile(filepath.Join(dir, "index.json"), []byte(man), 0o644); err != nil {
		t.Fatal(err)
	}
	sigs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(sigs) != 1 {
		t.Errorf("Expected 1 signature, got %d", len(sigs))
	}
}
