package gateway

import (
	"testing"

	"github.com/rawblock/watermark-gateway/internal/config"
	"github.com/rawblock/watermark-gateway/internal/keys"
)

func testPlan() GenerationPlan {
	return GenerationPlan{
		Cfg: &config.Config{
			MasterKeys:     keys.MasterKeySet{1: []byte(keys.DevMasterKey)},
			ContextWidth:   2,
			GreenlistRatio: 0.25,
			BiasDelta:      1.0,
			MaxBiasTokens:  256,
		},
		ModelIDNum: 3,
		KeyID:      1,
		Mode:       ModeHybrid,
		Enabled:    true,
		DateStr:    "20260225",
	}
}

func TestBuildSparseWatermarkBiasShortContextReturnsNil(t *testing.T) {
	plan := testPlan()
	bias, err := buildSparseWatermarkBias([]int{11}, plan, 32000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bias != nil {
		t.Fatalf("expected nil bias for context shorter than context_width, got %v", bias)
	}
}

func TestBuildSparseWatermarkBiasDeterministic(t *testing.T) {
	plan := testPlan()
	a, err := buildSparseWatermarkBias([]int{11, 12, 13}, plan, 32000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := buildSparseWatermarkBias([]int{11, 12, 13}, plan, 32000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("bias maps differ in size: %d vs %d", len(a), len(b))
	}
	for id, bias := range a {
		if b[id] != bias {
			t.Fatalf("bias for token %d differs: %v vs %v", id, bias, b[id])
		}
	}
	if len(a) == 0 {
		t.Fatalf("expected a non-empty greenlist bias map")
	}
}

func TestBuildSparseWatermarkBiasUsesResolvedKeyID(t *testing.T) {
	plan := testPlan()
	plan.KeyID = 999 // not present in Cfg.MasterKeys; must fall back to id 1

	resolved, err := buildSparseWatermarkBias([]int{11, 12, 13}, plan, 32000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	explicit := testPlan()
	explicit.KeyID = 1
	want, err := buildSparseWatermarkBias([]int{11, 12, 13}, explicit, 32000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resolved) != len(want) {
		t.Fatalf("bias maps differ in size: %d vs %d", len(resolved), len(want))
	}
	for id, bias := range want {
		if resolved[id] != bias {
			t.Fatalf("step key derivation used the unresolved key id: bias for token %d differs: %v vs %v", id, resolved[id], bias)
		}
	}
}

func TestMergeLogitBiasSumsOverlappingKeys(t *testing.T) {
	merged := mergeLogitBias(
		map[int]float64{1: 1.0, 2: 2.0},
		map[int]float64{2: 3.0, 3: 4.0},
	)
	if merged[1] != 1.0 || merged[2] != 5.0 || merged[3] != 4.0 {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
}

func TestParseOAILogitBiasFromMap(t *testing.T) {
	got := parseOAILogitBias(map[string]interface{}{"100": float64(-1.5), "notanumber": float64(1)})
	if len(got) != 1 || got[100] != -1.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseOAILogitBiasFromList(t *testing.T) {
	got := parseOAILogitBias([]interface{}{
		[]interface{}{float64(200), float64(2.5)},
		[]interface{}{float64(201)}, // malformed, skipped
	})
	if len(got) != 1 || got[200] != 2.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseOAILogitBiasNil(t *testing.T) {
	if got := parseOAILogitBias(nil); len(got) != 0 {
		t.Fatalf("expected empty map for nil input, got %+v", got)
	}
}

func TestToLlamaCompletionRequestDefaults(t *testing.T) {
	req := toLlamaCompletionRequest(map[string]interface{}{}, "hello", 1, nil, 0)
	if req["temperature"] != 0.8 || req["top_p"] != 0.95 {
		t.Fatalf("expected sampling defaults, got %+v", req)
	}
	if _, present := req["logit_bias"]; present {
		t.Fatalf("logit_bias should be omitted when empty")
	}
}

func TestToLlamaCompletionRequestCarriesOptionalSamplingParams(t *testing.T) {
	body := map[string]interface{}{
		"top_k":              float64(40),
		"seed":               float64(7),
		"repetition_penalty": float64(1.1),
	}
	req := toLlamaCompletionRequest(body, "hello", 1, map[int]float64{5: 1.0}, 2)
	if req["top_k"] != float64(40) || req["seed"] != float64(7) {
		t.Fatalf("expected optional params carried through, got %+v", req)
	}
	if req["repeat_penalty"] != float64(1.1) {
		t.Fatalf("expected repetition_penalty renamed to repeat_penalty, got %+v", req)
	}
	bias, ok := req["logit_bias"].(map[string]float64)
	if !ok || bias["5"] != 1.0 {
		t.Fatalf("expected logit_bias keyed by string token id, got %+v", req["logit_bias"])
	}
}
