// Package gateway implements the watermarking reverse proxy in front
// of a llama.cpp-server-compatible completion backend: per-request
// watermark plan parsing, the per-token greenlist-biased generation
// loop, zero-width tag injection, and passthrough for opted-out or
// tag-only requests.
package gateway

import (
	"context"
	"time"

	"github.com/rawblock/watermark-gateway/internal/apierr"
	"github.com/rawblock/watermark-gateway/internal/config"
	"github.com/rawblock/watermark-gateway/internal/keys"
	"github.com/rawblock/watermark-gateway/internal/payload"
	"github.com/rawblock/watermark-gateway/internal/policy"
	"github.com/rawblock/watermark-gateway/internal/zerowidth"
)

// Gateway dispatches completion requests against one upstream backend
// under one resolved configuration.
type Gateway struct {
	cfg      *config.Config
	upstream *UpstreamClient
}

// New builds a Gateway bound to cfg's upstream URL.
func New(cfg *config.Config) *Gateway {
	return &Gateway{cfg: cfg, upstream: NewUpstreamClient(cfg.UpstreamLlamaCppURL)}
}

type tagContext struct {
	tag            string
	repeatInterval int
}

// HandleCompletion implements POST /v1/completions.
func (g *Gateway) HandleCompletion(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return g.handleCommon(ctx, body, false)
}

// HandleChatCompletion implements POST /v1/chat/completions.
func (g *Gateway) HandleChatCompletion(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return g.handleCommon(ctx, body, true)
}

func (g *Gateway) handleCommon(ctx context.Context, body map[string]interface{}, asChat bool) (map[string]interface{}, error) {
	rawWatermark, _ := body["watermark"].(map[string]interface{})
	delete(body, "watermark")
	reqWM := ParseEffectiveRequest(rawWatermark)

	if !reqWM.Enabled {
		ok, reason := policy.VerifyOptOutToken(reqWM.OptOutToken, g.cfg.OptOutSecret)
		if !ok {
			return nil, apierr.New(apierr.PermissionDenied, "watermark opt-out denied: %s", reason)
		}
	}

	modelName := "llama.cpp"
	if m, ok := body["model"].(string); ok && m != "" {
		modelName = m
	}
	keyID := ResolveKeyID(g.cfg, reqWM)

	var tagCtx *tagContext
	if reqWM.Enabled && reqWM.Mode.UsesTag() {
		meta := payload.New(
			g.cfg.SchemaVersion,
			g.cfg.IssuerID,
			uint16(ModelIDFor(g.cfg, modelName)),
			uint16(ModelVersionIDFor(g.cfg, modelName)),
			uint8(keyID),
		)
		word, err := payload.Pack(meta)
		if err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "packing watermark payload failed")
		}
		tagCtx = &tagContext{
			tag:            zerowidth.EncodePayloadToTag(word, zerowidth.DefaultConfig()),
			repeatInterval: g.cfg.RepeatIntervalTokens,
		}
	}

	if reqWM.Enabled && reqWM.Mode.UsesStatistical() {
		resp, err := g.generateAndShape(ctx, body, reqWM, modelName, keyID, asChat)
		if err != nil {
			return nil, err
		}
		if tagCtx != nil {
			resp = InjectTagNonstream(resp, tagCtx.tag, tagCtx.repeatInterval)
		}
		return resp, nil
	}

	path := "/v1/completions"
	if asChat {
		path = "/v1/chat/completions"
	}
	data, err := g.upstream.Passthrough(ctx, path, body)
	if err != nil {
		return nil, err
	}
	if tagCtx != nil {
		data = InjectTagNonstream(data, tagCtx.tag, tagCtx.repeatInterval)
	}
	return data, nil
}

func (g *Gateway) generateAndShape(ctx context.Context, body map[string]interface{}, reqWM EffectiveRequest, modelName string, keyID int, asChat bool) (map[string]interface{}, error) {
	prompt, err := g.resolvePrompt(ctx, body, asChat)
	if err != nil {
		return nil, err
	}

	plan := GenerationPlan{
		Cfg:        g.cfg,
		ModelName:  modelName,
		ModelIDNum: ModelIDFor(g.cfg, modelName),
		KeyID:      keyID,
		Mode:       reqWM.Mode,
		Enabled:    reqWM.Enabled,
		// Fixed once so every token of this response is biased against
		// the same day's greenlist, even if generation straddles UTC
		// midnight.
		DateStr: keys.TodayUTC(),
	}

	result, err := WatermarkedGenerate(ctx, g.upstream, body, plan, prompt)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if asChat {
		return OAIChatResponse(modelName, result.Text, result.PromptTokens, len(result.Tokens), now), nil
	}
	return OAICompletionResponse(modelName, result.Text, result.PromptTokens, len(result.Tokens), now), nil
}

func (g *Gateway) resolvePrompt(ctx context.Context, body map[string]interface{}, asChat bool) (string, error) {
	if !asChat {
		prompt, ok := body["prompt"].(string)
		if !ok {
			return "", apierr.New(apierr.InvalidArgument, "this gateway currently supports string prompt only")
		}
		return prompt, nil
	}

	rawMessages, ok := body["messages"].([]interface{})
	if !ok {
		return "", apierr.New(apierr.InvalidArgument, "messages is required for chat completions")
	}
	messages := make([]map[string]interface{}, 0, len(rawMessages))
	for _, m := range rawMessages {
		if mm, ok := m.(map[string]interface{}); ok {
			messages = append(messages, mm)
		}
	}

	model, _ := body["model"].(string)
	return g.upstream.ApplyTemplate(ctx, messages, model)
}
