// Package statistical implements the greenlist-biased watermark's
// keyed hash, sparse/dense greenlist selection, and z-score detection.
package statistical

import (
	"container/heap"
	"math"

	"github.com/rawblock/watermark-gateway/internal/keys"
)

const (
	mask63 = (uint64(1) << 63) - 1
	mixA   = 2862933555777941757
	mixB   = 3037000493
)

// mix63 is the keyed, cheap, deterministic hash underlying both the
// dense green predicate and sparse greenlist selection.
func mix63(x uint64) uint64 {
	return (mixA*(x&mask63) + mixB) & mask63
}

// TokenIsGreen implements the dense green predicate used when scoring
// over a full vocabulary.
func TokenIsGreen(id uint64, seed uint64, ratio float64) bool {
	threshold := uint64(ratio * float64(mask63))
	h := mix63(id ^ (seed & mask63))
	return h < threshold
}

// sparseGreenCount returns the bounded greenlist size k for a given
// vocabulary size, ratio, and max-bias-tokens cap.
func sparseGreenCount(vocabSize int, ratio float64, maxBiasTokens int) int {
	if vocabSize <= 0 {
		return 0
	}
	k := int(float64(vocabSize) * ratio)
	if k < 1 {
		k = 1
	}
	if k > maxBiasTokens {
		k = maxBiasTokens
	}
	if k > vocabSize {
		k = vocabSize
	}
	return k
}

// idHash pairs a token id with its mix63 hash for the selection heap.
type idHash struct {
	id   int
	hash uint64
}

// maxHeap keeps the k smallest-hash ids seen so far by evicting the
// current largest whenever a strictly smaller candidate arrives.
type maxHeap []idHash

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].hash > h[j].hash }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(idHash)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SelectSparseGreenIDs returns the k token ids (k bounded by
// maxBiasTokens and vocabSize) whose mix63(id ^ seed) values are
// smallest, ordered ascending by hash. This bounds GPU-memory cost of
// the bias vector regardless of vocabSize.
func SelectSparseGreenIDs(vocabSize int, seed uint64, ratio float64, maxBiasTokens int) []int {
	k := sparseGreenCount(vocabSize, ratio, maxBiasTokens)
	if k == 0 {
		return nil
	}

	h := make(maxHeap, 0, k)
	heap.Init(&h)
	for id := 0; id < vocabSize; id++ {
		hv := mix63(uint64(id) ^ (seed & mask63))
		if h.Len() < k {
			heap.Push(&h, idHash{id: id, hash: hv})
			continue
		}
		if hv < h[0].hash {
			heap.Pop(&h)
			heap.Push(&h, idHash{id: id, hash: hv})
		}
	}

	out := make([]idHash, h.Len())
	copy(out, h)
	// Sort ascending by hash for a deterministic, platform-independent order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].hash < out[j-1].hash; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	ids := make([]int, len(out))
	for i, e := range out {
		ids[i] = e.id
	}
	return ids
}

// Score is the result of scoring a token sequence against a derived key.
type Score struct {
	TotalScored    int
	GreenHits      int
	Expected       float64
	ZScore         float64
	PValueOneSided float64
}

func zAndP(hits int, n int, pGreen float64) (z, p float64) {
	expected := float64(n) * pGreen
	variance := float64(n) * pGreen * (1 - pGreen)
	if variance <= 0 {
		z = 0
	} else {
		z = (float64(hits) - expected) / math.Sqrt(variance)
	}
	p = 0.5 * math.Erfc(z/math.Sqrt2)
	return z, p
}

// ScoreDense iterates t in [contextWidth, len(tokens)) using the dense
// green predicate against the nominal ratio.
func ScoreDense(tokens []int, derivedKey []byte, contextWidth int, ratio float64) Score {
	if len(tokens) <= contextWidth {
		return Score{PValueOneSided: 1.0}
	}

	hits := 0
	n := 0
	for t := contextWidth; t < len(tokens); t++ {
		context := tokens[t-contextWidth : t]
		seed := keys.DeriveContextSeed(derivedKey, context)
		if TokenIsGreen(uint64(tokens[t]), seed, ratio) {
			hits++
		}
		n++
	}

	z, p := zAndP(hits, n, ratio)
	return Score{
		TotalScored:    n,
		GreenHits:      hits,
		Expected:       float64(n) * ratio,
		ZScore:         z,
		PValueOneSided: p,
	}
}

// ScoreSparse mirrors ScoreDense but against the sparse greenlist
// actually used for biasing, using p_green = k/vocabSize since the
// sampler biased only k tokens.
func ScoreSparse(tokens []int, derivedKey []byte, vocabSize int, contextWidth int, ratio float64, maxBiasTokens int) Score {
	if len(tokens) <= contextWidth {
		return Score{PValueOneSided: 1.0}
	}

	k := sparseGreenCount(vocabSize, ratio, maxBiasTokens)
	pGreen := 0.0
	if vocabSize > 0 {
		pGreen = float64(k) / float64(vocabSize)
	}

	hits := 0
	n := 0
	for t := contextWidth; t < len(tokens); t++ {
		context := tokens[t-contextWidth : t]
		seed := keys.DeriveContextSeed(derivedKey, context)
		green := SelectSparseGreenIDs(vocabSize, seed, ratio, maxBiasTokens)
		if contains(green, tokens[t]) {
			hits++
		}
		n++
	}

	z, p := zAndP(hits, n, pGreen)
	return Score{
		TotalScored:    n,
		GreenHits:      hits,
		Expected:       float64(n) * pGreen,
		ZScore:         z,
		PValueOneSided: p,
	}
}

func contains(ids []int, target int) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
