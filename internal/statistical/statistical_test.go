package statistical

import (
	"testing"

	"github.com/rawblock/watermark-gateway/internal/keys"
)

func TestSelectSparseGreenIDsDeterministic(t *testing.T) {
	a := SelectSparseGreenIDs(32000, 12345, 0.25, 256)
	b := SelectSparseGreenIDs(32000, 12345, 0.25, 256)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("order differs at %d: %d vs %d", i, a[i], b[i])
		}
	}
	if len(a) != 256 {
		t.Fatalf("expected k=256 (clipped by max_bias_tokens), got %d", len(a))
	}
}

func TestSelectSparseGreenIDsClipping(t *testing.T) {
	// vocab small enough that ratio*vocab < 1 should clip to 1.
	ids := SelectSparseGreenIDs(3, 1, 0.1, 2048)
	if len(ids) != 1 {
		t.Fatalf("expected k=1 for tiny vocab, got %d", len(ids))
	}

	// max_bias_tokens smaller than ratio*vocab should clip down.
	ids2 := SelectSparseGreenIDs(1000, 1, 0.5, 10)
	if len(ids2) != 10 {
		t.Fatalf("expected k=10 (clipped by max_bias_tokens), got %d", len(ids2))
	}
}

func TestS3Scenario(t *testing.T) {
	// tokens=[11..17], model_id=3, key_id=1, date="20260225", vocab=32000,
	// context_width=2, ratio=0.25, max_bias=256: score.total_scored == 5.
	derived, err := keys.DeriveStepKey([]byte(keys.DevMasterKey), 3, "20260225", 1)
	if err != nil {
		t.Fatalf("DeriveStepKey: %v", err)
	}
	tokens := []int{11, 12, 13, 14, 15, 16, 17}
	score := ScoreSparse(tokens, derived, 32000, 2, 0.25, 256)
	if score.TotalScored != 5 {
		t.Fatalf("total_scored = %d, want 5", score.TotalScored)
	}
}

func TestScoreDenseShortSequenceIsNoOp(t *testing.T) {
	derived, _ := keys.DeriveStepKey([]byte(keys.DevMasterKey), 1, "20260101", 1)
	score := ScoreDense([]int{1, 2}, derived, 2, 0.25)
	if score.TotalScored != 0 || score.ZScore != 0 || score.PValueOneSided != 1.0 {
		t.Fatalf("expected no-op score for sequence no longer than context width, got %+v", score)
	}
}

func TestTokenIsGreenDeterministic(t *testing.T) {
	if TokenIsGreen(42, 999, 0.25) != TokenIsGreen(42, 999, 0.25) {
		t.Fatalf("TokenIsGreen is not deterministic")
	}
}
