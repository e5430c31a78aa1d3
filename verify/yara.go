// Package verify runs YARA rules over recovered artifacts. Carving from
// unallocated space routinely resurrects malware; flagging it before an
// examiner opens the artifact is standard forensic hygiene. The carving
// engine does not depend on this package; the driver wires it in when a
// rules directory is supplied.
package verify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hillu/go-yara/v4"
)

// Finding is one YARA rule hit inside an artifact.
type Finding struct {
	Rule      string            `json:"rule"`
	Namespace string            `json:"namespace"`
	Tags      []string          `json:"tags,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Offset    int64             `json:"offset"`
	Length    int               `json:"length"`
}

// Verifier wraps a compiled YARA rule set.
type Verifier struct {
	mu    sync.RWMutex
	rules *yara.Rules
}

// NewVerifier compiles every .yar/.yara file under rulesDir into namespace.
func NewVerifier(rulesDir, namespace string) (*Verifier, error) {
	compiler, err := yara.NewCompiler()
	if err != nil {
		return nil, fmt.Errorf("yara compiler init: %w", err)
	}
	if namespace == "" {
		namespace = "default"
	}
	var ruleFiles []string
	err = filepath.Walk(rulesDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && (filepath.Ext(path) == ".yar" || filepath.Ext(path) == ".yara") {
			ruleFiles = append(ruleFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rules dir: %w", err)
	}
	if len(ruleFiles) == 0 {
		return nil, errors.New("no YARA rules found in " + rulesDir)
	}
	for _, rfile := range ruleFiles {
		f, err := os.Open(rfile)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", rfile, err)
		}
		err = compiler.AddFile(f, namespace)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", rfile, err)
		}
	}
	rules, err := compiler.GetRules()
	if err != nil {
		return nil, fmt.Errorf("get rules: %w", err)
	}
	return &Verifier{rules: rules}, nil
}

// VerifyFile scans one artifact file with timeout protection.
func (v *Verifier) VerifyFile(path string, timeout time.Duration) ([]Finding, error) {
	v.mu.RLock()
	rules := v.rules
	v.mu.RUnlock()
	if rules == nil {
		return nil, errors.New("no rules loaded")
	}
	var matches yara.MatchRules
	if err := rules.ScanFile(path, yara.ScanFlagsFastMode, timeout, &matches); err != nil {
		return nil, fmt.Errorf("yara scan %s: %w", path, err)
	}
	var findings []Finding
	for _, m := range matches {
		meta := make(map[string]string)
		for _, mi := range m.Metas {
			meta[mi.Identifier] = fmt.Sprintf("%v", mi.Value)
		}
		if len(m.Strings) == 0 {
			findings = append(findings, Finding{
				Rule:      m.Rule,
				Namespace: m.Namespace,
				Tags:      m.Tags,
				Meta:      meta,
			})
			continue
		}
		for _, str := range m.Strings {
			findings = append(findings, Finding{
				Rule:      m.Rule,
				Namespace: m.Namespace,
				Tags:      m.Tags,
				Meta:      meta,
				Offset:    int64(str.Offset),
				Length:    len(str.Data),
			})
		}
	}
	return findings, nil
}

// Close releases YARA resources.
func (v *Verifier) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rules != nil {
		v.rules.Destroy()
		v.rules = nil
	}
	return nil
}
