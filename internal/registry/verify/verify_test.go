package verify

import (
	"testing"

	"github.com/rawblock/watermark-gateway/internal/detector"
	"github.com/rawblock/watermark-gateway/internal/keys"
	"github.com/rawblock/watermark-gateway/internal/payload"
	"github.com/rawblock/watermark-gateway/internal/zerowidth"
)

func testDetector() *detector.Detector {
	return detector.New(detector.Config{
		MasterKeys:     keys.MasterKeySet{7: []byte(keys.DevMasterKey)},
		ActiveKeyID:    7,
		ContextWidth:   2,
		GreenlistRatio: 0.25,
		MaxBiasTokens:  256,
		ModelIDFor:     func(string) int { return 3 },
		Tag:            zerowidth.DefaultConfig(),
	})
}

func TestAttachWatermarkNoopWithoutDetector(t *testing.T) {
	v := &Verifier{}
	result := &Result{Verified: false, Reason: "hash not found in registry"}
	v.attachWatermark("some text", result)
	if result.WatermarkTag != nil {
		t.Fatalf("expected WatermarkTag to stay nil when no detector is configured")
	}
}

func TestAttachWatermarkRecoversTagPayload(t *testing.T) {
	v := &Verifier{detector: testDetector()}

	meta := payload.New(1, 123, 4567, 89, 7)
	word, err := payload.Pack(meta)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	tag := zerowidth.EncodePayloadToTag(word, zerowidth.DefaultConfig())
	text := "generated response" + tag

	result := &Result{Verified: false, Reason: "hash not found in registry"}
	v.attachWatermark(text, result)

	if result.WatermarkTag == nil {
		t.Fatalf("expected a watermark tag result to be attached")
	}
	if result.WatermarkTag.Status != "verified" {
		t.Fatalf("status = %q, want verified", result.WatermarkTag.Status)
	}
}

func TestAttachWatermarkReportsNoneForUntaggedText(t *testing.T) {
	v := &Verifier{detector: testDetector()}
	result := &Result{Verified: false, Reason: "hash not found in registry"}
	v.attachWatermark("plain untouched text", result)

	if result.WatermarkTag == nil {
		t.Fatalf("expected a watermark tag result to be attached")
	}
	if result.WatermarkTag.Status != "none" {
		t.Fatalf("status = %q, want none", result.WatermarkTag.Status)
	}
}
