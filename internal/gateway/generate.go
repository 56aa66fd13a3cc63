package gateway

import (
	"context"
	"fmt"

	"github.com/rawblock/watermark-gateway/internal/config"
	"github.com/rawblock/watermark-gateway/internal/keys"
	"github.com/rawblock/watermark-gateway/internal/statistical"
)

// GenerationPlan carries everything the per-token loop needs beyond
// the upstream prompt itself.
type GenerationPlan struct {
	Cfg        *config.Config
	ModelName  string
	ModelIDNum int
	KeyID      int
	Mode       Mode
	Enabled    bool
	DateStr    string // keys.DateFormat; TodayUTC() if empty
}

// GenerationResult is what the biased loop produced.
type GenerationResult struct {
	Text         string
	Tokens       []int
	PromptTokens int
}

// buildSparseWatermarkBias derives the per-step greenlist bias map for
// one generation step, or nil if the context is too short to seed a
// step key yet.
func buildSparseWatermarkBias(ctxTokens []int, plan GenerationPlan, nVocab int) (map[int]float64, error) {
	width := plan.Cfg.ContextWidth
	if len(ctxTokens) < width {
		return nil, nil
	}

	resolvedKeyID, masterKey := plan.Cfg.MasterKeys.GetMasterKey(&plan.KeyID)
	dateStr := plan.DateStr
	if dateStr == "" {
		dateStr = keys.TodayUTC()
	}

	derived, err := keys.DeriveStepKey(masterKey, plan.ModelIDNum, dateStr, resolvedKeyID)
	if err != nil {
		return nil, fmt.Errorf("gateway: derive step key: %w", err)
	}

	seed := keys.DeriveContextSeed(derived, ctxTokens[len(ctxTokens)-width:])
	greenIDs := statistical.SelectSparseGreenIDs(nVocab, seed, plan.Cfg.GreenlistRatio, plan.Cfg.MaxBiasTokens)

	bias := make(map[int]float64, len(greenIDs))
	for _, id := range greenIDs {
		bias[id] = plan.Cfg.BiasDelta
	}
	return bias, nil
}

func mergeLogitBias(maps ...map[int]float64) map[int]float64 {
	merged := make(map[int]float64)
	for _, m := range maps {
		for tid, bias := range m {
			merged[tid] += bias
		}
	}
	return merged
}

func parseOAILogitBias(raw interface{}) map[int]float64 {
	out := map[int]float64{}
	switch v := raw.(type) {
	case map[string]interface{}:
		for k, val := range v {
			var id int
			if _, err := fmt.Sscanf(k, "%d", &id); err != nil {
				continue
			}
			if f, ok := toFloat(val); ok {
				out[id] = f
			}
		}
	case []interface{}:
		for _, entry := range v {
			pair, ok := entry.([]interface{})
			if !ok || len(pair) != 2 {
				continue
			}
			id, okID := toInt(pair[0])
			f, okF := toFloat(pair[1])
			if okID && okF {
				out[id] = f
			}
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		var id int
		if _, err := fmt.Sscanf(n, "%d", &id); err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// toLlamaCompletionRequest shapes one native /completion call, mirroring
// the caller's sampling parameters plus the merged logit bias.
func toLlamaCompletionRequest(body map[string]interface{}, prompt string, nPredict int, logitBias map[int]float64, slot int) map[string]interface{} {
	req := map[string]interface{}{
		"prompt":        prompt,
		"n_predict":     nPredict,
		"temperature":   getOrDefault(body, "temperature", 0.8),
		"top_p":         getOrDefault(body, "top_p", 0.95),
		"stop":          getOrDefault(body, "stop", []interface{}{}),
		"stream":        false,
		"cache_prompt":  true,
		"id_slot":       slot,
		"return_tokens": true,
	}

	for _, key := range []string{"top_k", "min_p", "seed", "presence_penalty", "frequency_penalty"} {
		if v, ok := body[key]; ok && v != nil {
			req[key] = v
		}
	}
	if v, ok := body["repetition_penalty"]; ok && v != nil {
		req["repeat_penalty"] = v
	}

	if len(logitBias) > 0 {
		strBias := make(map[string]float64, len(logitBias))
		for tid, bias := range logitBias {
			strBias[fmt.Sprintf("%d", tid)] = bias
		}
		req["logit_bias"] = strBias
	}
	return req
}

func getOrDefault(body map[string]interface{}, key string, fallback interface{}) interface{} {
	if v, ok := body[key]; ok && v != nil {
		return v
	}
	return fallback
}

// WatermarkedGenerate runs the per-token biased completion loop: on
// every step it derives a fresh sparse greenlist from the running
// context, merges it with any caller-supplied logit_bias, and asks the
// upstream for exactly one more token, stopping on eos/word or once
// max_tokens steps have run.
func WatermarkedGenerate(ctx context.Context, client *UpstreamClient, body map[string]interface{}, plan GenerationPlan, prompt string) (*GenerationResult, error) {
	_, nVocab, err := client.ModelMeta(ctx, stringOrEmpty(body["model"]))
	if err != nil {
		return nil, err
	}

	promptTokens, err := client.Tokenize(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	maxTokens := 16
	if v, ok := toInt(body["max_tokens"]); ok {
		maxTokens = v
	} else if f, ok := toFloat(body["max_tokens"]); ok {
		maxTokens = int(f)
	}
	if maxTokens < 0 {
		maxTokens = 16
	}

	userBias := parseOAILogitBias(body["logit_bias"])
	slot := 0
	if v, ok := toInt(body["id_slot"]); ok {
		slot = v
	}

	generatedText := ""
	var generatedTokens []int

	for i := 0; i < maxTokens; i++ {
		var wmBias map[int]float64
		if plan.Enabled && plan.Mode.UsesStatistical() {
			allCtx := append(append([]int{}, promptTokens...), generatedTokens...)
			wmBias, err = buildSparseWatermarkBias(allCtx, plan, nVocab)
			if err != nil {
				return nil, err
			}
		}

		req := toLlamaCompletionRequest(body, prompt+generatedText, 1, mergeLogitBias(userBias, wmBias), slot)

		result, err := client.Completion(ctx, req)
		if err != nil {
			return nil, err
		}

		stepIDs := result.Tokens
		if len(stepIDs) == 0 && result.Content != "" {
			stepIDs, err = client.Tokenize(ctx, result.Content, false)
			if err != nil {
				return nil, err
			}
		}

		generatedText += result.Content
		generatedTokens = append(generatedTokens, stepIDs...)

		if result.StopType == "eos" || result.StopType == "word" {
			break
		}
	}

	return &GenerationResult{
		Text:         generatedText,
		Tokens:       generatedTokens,
		PromptTokens: len(promptTokens),
	}, nil
}

func stringOrEmpty(v interface{}) string {
	s, _ := v.(string)
	return s
}
