package scanner

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/rawcarve/rawcarve/catalog"
)

// Kind distinguishes header and footer occurrences.
type Kind int

const (
	KindHeader Kind = iota
	KindFooter
)

func (k Kind) String() string {
	if k == KindFooter {
		return "footer"
	}
	return "header"
}

// patternRef identifies which catalog pattern a terminal node completes.
type patternRef struct {
	sig    int // catalog declaration index
	kind   Kind
	length int
}

// acNode is one trie node. The wild edge matches any byte value.
type acNode struct {
	next map[byte]*acNode
	wild *acNode
	out  []patternRef
}

// Automaton is a single multi-pattern structure over every header and
// footer in a catalog, built once at engine construction. Wildcard support
// rules out the classic failure-link walk, so matching instead tracks the
// set of live trie states; the set is bounded by the trie width at each
// depth (one thread per candidate start offset, at most the longest pattern
// plus wildcard branches), which keeps a window scan linear in the window
// length and independent of catalog size. Read-only and safe for concurrent
// scans after construction.
type Automaton struct {
	root      *acNode
	maxLen    int
	patterns  int
	buildHash string // fingerprint of the pattern set (for diagnostics)
}

// NewAutomaton compiles the catalog's patterns.
func NewAutomaton(cat *catalog.Catalog) *Automaton {
	a := &Automaton{root: newNode()}
	h := sha256.New()
	for i, sig := range cat.Signatures() {
		a.insert(sig.Header, patternRef{sig: i, kind: KindHeader, length: sig.Header.Len()})
		h.Write([]byte(sig.Type))
		h.Write([]byte{0})
		h.Write(sig.Header.Bytes)
		if sig.Footer != nil {
			a.insert(*sig.Footer, patternRef{sig: i, kind: KindFooter, length: sig.Footer.Len()})
			h.Write([]byte{0xff})
			h.Write(sig.Footer.Bytes)
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(sig.Header.Len()))
		h.Write(lenBuf[:])
	}
	a.buildHash = hex.EncodeToString(h.Sum(nil))[:16]
	return a
}

func newNode() *acNode { return &acNode{next: make(map[byte]*acNode)} }

func (a *Automaton) insert(p catalog.Pattern, ref patternRef) {
	cur := a.root
	for i := 0; i < p.Len(); i++ {
		if len(p.Wild) > 0 && p.Wild[i] {
			if cur.wild == nil {
				cur.wild = newNode()
			}
			cur = cur.wild
			continue
		}
		b := p.Bytes[i]
		nxt, ok := cur.next[b]
		if !ok {
			nxt = newNode()
			cur.next[b] = nxt
		}
		cur = nxt
	}
	cur.out = append(cur.out, ref)
	a.patterns++
	if p.Len() > a.maxLen {
		a.maxLen = p.Len()
	}
}

// MaxLen is the longest compiled pattern.
func (a *Automaton) MaxLen() int { return a.maxLen }

// Patterns is the number of compiled patterns.
func (a *Automaton) Patterns() int { return a.patterns }

// BuildHash fingerprints the compiled pattern set.
func (a *Automaton) BuildHash() string { return a.buildHash }

// Scan walks data once and invokes emit for every pattern occurrence, with
// end being the exclusive end index of the occurrence within data. Matches
// are reported in end-index order. Occurrences are reported exactly once:
// each live state corresponds to a distinct start offset, so no occurrence
// is reachable by two paths.
func (a *Automaton) Scan(data []byte, emit func(end int, ref patternRef)) {
	if len(data) == 0 {
		return
	}
	cur := make([]*acNode, 0, a.maxLen+1)
	nxt := make([]*acNode, 0, a.maxLen+1)
	for i := 0; i < len(data); i++ {
		b := data[i]
		cur = append(cur, a.root)
		nxt = nxt[:0]
		for _, st := range cur {
			if n, ok := st.next[b]; ok {
				nxt = append(nxt, n)
				for _, ref := range n.out {
					emit(i+1, ref)
				}
			}
			if st.wild != nil {
				nxt = append(nxt, st.wild)
				for _, ref := range st.wild.out {
					emit(i+1, ref)
				}
			}
		}
		cur, nxt = nxt, cur
	}
}
