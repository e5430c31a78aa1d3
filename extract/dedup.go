package extract

import (
	"hash/fnv"
	"math"
)

// digestFilter is a bloom filter over artifact digests: if mayContain says
// no, the digest was definitely not seen, so a positive only ever flags a
// likely duplicate. False positive rate is fixed at 1% for the expected
// artifact count.
type digestFilter struct {
	bits []uint64
	k    int
	m    int
}

func newDigestFilter(expected int) *digestFilter {
	if expected < 1 {
		expected = 1
	}
	m := optimalM(expected, 0.01)
	k := optimalK(m, expected)
	return &digestFilter{bits: make([]uint64, (m+63)/64), k: k, m: m}
}

func optimalM(n int, p float64) int {
	return int(math.Ceil(-float64(n) * math.Log(p) / (math.Log(2) * math.Log(2))))
}

func optimalK(m, n int) int {
	k := int(math.Ceil(float64(m) / float64(n) * math.Log(2)))
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}
	return k
}

func (bf *digestFilter) add(data []byte) {
	for i := 0; i < bf.k; i++ {
		idx := bf.index(data, i)
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
}

func (bf *digestFilter) mayContain(data []byte) bool {
	for i := 0; i < bf.k; i++ {
		idx := bf.index(data, i)
		if (bf.bits[idx/64] & (1 << (idx % 64))) == 0 {
			return false
		}
	}
	return true
}

// index combines FNV-1a with a seed byte for k different hash functions.
// The modulo is taken in unsigned space so the index stays in [0, m).
func (bf *digestFilter) index(data []byte, seed int) int {
	h := fnv.New64a()
	h.Write(data)
	if seed > 0 {
		h.Write([]byte{byte(seed)})
	}
	return int(h.Sum64() % uint64(bf.m))
}
