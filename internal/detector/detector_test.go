package detector

import (
	"testing"

	"github.com/rawblock/watermark-gateway/internal/keys"
	"github.com/rawblock/watermark-gateway/internal/payload"
	"github.com/rawblock/watermark-gateway/internal/zerowidth"
)

func testConfig() Config {
	return Config{
		MasterKeys:     keys.MasterKeySet{7: []byte(keys.DevMasterKey)},
		ActiveKeyID:    7,
		ContextWidth:   2,
		GreenlistRatio: 0.25,
		MaxBiasTokens:  256,
		ModelIDFor:     func(string) int { return 3 },
		Tag:            zerowidth.DefaultConfig(),
	}
}

func TestVerifyRecoversValidTag(t *testing.T) {
	d := New(testConfig())

	meta := payload.New(1, 123, 4567, 89, 7)
	word, err := payload.Pack(meta)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	tag := zerowidth.EncodePayloadToTag(word, zerowidth.DefaultConfig())
	text := "some generated text" + tag + " continues here"

	result := d.Verify(text, "gpt-x", nil, nil, nil, 0)
	if result.Status != "verified" {
		t.Fatalf("status = %q, want verified; explanations=%v", result.Status, result.Explanations)
	}
	if result.Payload == nil {
		t.Fatalf("expected a recovered payload")
	}
	if result.KeyID == nil || *result.KeyID != 7 {
		t.Fatalf("expected keyID 7 from payload, got %v", result.KeyID)
	}
}

func TestVerifyNoTagFallsBackToStatistical(t *testing.T) {
	d := New(testConfig())
	// Plain text, no tag, no tokens: nothing to score.
	result := d.Verify("plain untouched text", "gpt-x", nil, nil, nil, 0)
	if result.Status != "none" {
		t.Fatalf("status = %q, want none", result.Status)
	}
	if result.Payload != nil {
		t.Fatalf("expected no recovered payload")
	}
}

func TestVerifyMalformedTagFallsThroughToStatistical(t *testing.T) {
	cfg := testConfig()
	d := New(cfg)

	word, err := payload.Pack(payload.New(1, 123, 4567, 89, 7))
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	// A correctly framed 64-bit tag whose trailing CRC byte is corrupted.
	malformed := zerowidth.EncodePayloadToTag(word^0xFF, cfg.Tag)
	tokens := []int{1, 2, 3}

	result := d.Verify("prefix"+malformed+"suffix", "gpt-x", tokens, nil, nil, 0)
	if result.Payload != nil {
		t.Fatalf("expected no payload recovered from malformed tag")
	}
	found := false
	for _, e := range result.Explanations {
		if e == "zero-width tags found but CRC invalid" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an explanation noting CRC invalidity, got %v", result.Explanations)
	}
}

func TestVerifyUsesSuppliedTokenizeFunc(t *testing.T) {
	d := New(testConfig())
	calls := 0
	tokenize := func(s string) ([]int, error) {
		calls++
		return []int{11, 12, 13, 14, 15}, nil
	}
	result := d.Verify("text needing tokenization", "gpt-x", nil, tokenize, nil, 0)
	if calls != 1 {
		t.Fatalf("expected tokenize to be called once, got %d", calls)
	}
	if result.StatisticalScore == nil {
		t.Fatalf("expected a statistical score to be computed")
	}
}

func TestVerifyPrefersSuppliedTokenIDsOverTokenizeFunc(t *testing.T) {
	d := New(testConfig())
	tokenize := func(string) ([]int, error) {
		t.Fatalf("tokenize should not be called when tokenIDs is already supplied")
		return nil, nil
	}
	result := d.Verify("text", "gpt-x", []int{11, 12, 13, 14, 15}, tokenize, nil, 0)
	if result.StatisticalScore == nil {
		t.Fatalf("expected a statistical score")
	}
}

func TestCandidateDatesIncludesTodayAndDaysBack(t *testing.T) {
	dates := candidateDates(3)
	if len(dates) != 4 {
		t.Fatalf("expected 4 candidate dates, got %d", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if dates[i] == dates[i-1] {
			t.Fatalf("expected distinct consecutive dates, got duplicate %q", dates[i])
		}
	}
}
