package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// signatureSpec is the on-disk JSON form of a Signature. Patterns are hex
// strings; "??" marks a wildcard byte.
type signatureSpec struct {
	Type            string `json:"type"`
	Ext             string `json:"ext"`
	Header          string `json:"header"`
	Footer          string `json:"footer,omitempty"`
	FooterInclusive *bool  `json:"footer_inclusive,omitempty"`
	Policy          string `json:"policy"` // "footer" | "fixed" | "capped"
	MaxSize         int64  `json:"max_size,omitempty"`
	FixedSize       int64  `json:"fixed_size,omitempty"`
	AllowOverlap    bool   `json:"allow_overlap,omitempty"`
}

func (sp signatureSpec) compile() (Signature, error) {
	header, err := ParsePattern(sp.Header)
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: header: %w", sp.Type, err)
	}
	sig := Signature{
		Type:         sp.Type,
		Ext:          sp.Ext,
		Header:       header,
		MaxSize:      sp.MaxSize,
		FixedSize:    sp.FixedSize,
		AllowOverlap: sp.AllowOverlap,
	}
	if sp.Footer != "" {
		footer, err := ParsePattern(sp.Footer)
		if err != nil {
			return Signature{}, fmt.Errorf("signature %q: footer: %w", sp.Type, err)
		}
		sig.Footer = &footer
		sig.FooterInclusive = true
		if sp.FooterInclusive != nil {
			sig.FooterInclusive = *sp.FooterInclusive
		}
	}
	switch sp.Policy {
	case "footer", "":
		sig.Policy = FooterTerminated
	case "fixed":
		sig.Policy = FixedLength
	case "capped":
		sig.Policy = MaxSizeCapped
	default:
		return Signature{}, fmt.Errorf("signature %q: %w: policy %q", sp.Type, ErrBadSize, sp.Policy)
	}
	return sig, nil
}

// LoadFile reads signature definitions from a single JSON file of the form
// {"signatures": [...]}.
func LoadFile(path string) ([]Signature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Signatures []signatureSpec `json:"signatures"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	sigs := make([]Signature, 0, len(wrapper.Signatures))
	for _, sp := range wrapper.Signatures {
		sig, err := sp.compile()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// manifest is the optional index.json in a catalog directory. When Hash is
// set it must equal the composite hash of the definition files, guarding
// against partially synced or tampered catalogs.
type manifest struct {
	Version string `json:"version"`
	Hash    string `json:"hash"`
}

// LoadDir reads every *.json definition file in a directory (except
// index.json) in name order and verifies the manifest hash if present.
func LoadDir(dir string) ([]Signature, error) {
	composite, files, err := dirCompositeHash(dir)
	if err != nil {
		return nil, err
	}
	manPath := filepath.Join(dir, "index.json")
	if b, err := os.ReadFile(manPath); err == nil {
		var man manifest
		if err := json.Unmarshal(b, &man); err != nil {
			return nil, fmt.Errorf("parse %s: %w", manPath, err)
		}
		if man.Hash != "" && man.Hash != composite {
			return nil, fmt.Errorf("catalog manifest hash mismatch expected=%s got=%s", man.Hash, composite)
		}
	}
	var sigs []Signature
	for _, f := range files {
		fileSigs, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, fileSigs...)
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("no signatures loaded from %s", dir)
	}
	return sigs, nil
}

// Load builds a catalog from a JSON file or a catalog directory.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	var sigs []Signature
	if info.IsDir() {
		sigs, err = LoadDir(path)
	} else {
		sigs, err = LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return New(sigs)
}

// dirCompositeHash builds a deterministic hash across definition file
// contents, excluding the manifest itself. Returns the sorted file list so
// callers load in the same order the hash covers.
func dirCompositeHash(dir string) (string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name() == "index.json" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	h := sha256.New()
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return "", nil, err
		}
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil)), files, nil
}
