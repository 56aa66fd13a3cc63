package gateway

import (
	"strconv"
	"strings"

	"github.com/rawblock/watermark-gateway/internal/config"
)

// Mode selects which watermarking mechanisms apply to one request.
type Mode string

const (
	ModeHybrid          Mode = "hybrid"
	ModeStatisticalOnly Mode = "statistical_only"
	ModeTagOnly         Mode = "tag_only"
)

// EffectiveRequest is the per-request watermark plan parsed out of a
// completion body's "watermark" object.
type EffectiveRequest struct {
	Enabled     bool
	Mode        Mode
	KeyID       *int
	OptOutToken string
}

// ParseEffectiveRequest extracts a per-request watermark plan from the
// "watermark" sub-object of an OAI-style completion body, defaulting
// permissively wherever the caller omitted or mistyped a field.
func ParseEffectiveRequest(raw map[string]interface{}) EffectiveRequest {
	out := EffectiveRequest{Enabled: true, Mode: ModeHybrid}
	if raw == nil {
		return out
	}

	if m, ok := raw["mode"].(string); ok {
		switch Mode(m) {
		case ModeHybrid, ModeStatisticalOnly, ModeTagOnly:
			out.Mode = Mode(m)
		}
	}

	if kid, ok := raw["key_id"]; ok && kid != nil {
		switch v := kid.(type) {
		case float64:
			id := int(v)
			out.KeyID = &id
		case string:
			if id, err := strconv.Atoi(v); err == nil {
				out.KeyID = &id
			}
		}
	}

	out.Enabled = coerceBool(raw["enabled"], true)

	if tok, ok := raw["opt_out_token"].(string); ok {
		out.OptOutToken = tok
	}

	return out
}

func coerceBool(v interface{}, fallback bool) bool {
	if v == nil {
		return fallback
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true
		default:
			return false
		}
	default:
		return fallback
	}
}

// UsesStatistical reports whether mode runs the per-token biased
// generation loop.
func (m Mode) UsesStatistical() bool {
	return m == ModeHybrid || m == ModeStatisticalOnly
}

// UsesTag reports whether mode injects the zero-width provenance tag.
func (m Mode) UsesTag() bool {
	return m == ModeHybrid || m == ModeTagOnly
}

// ModelIDFor resolves a model name to its configured numeric id,
// defaulting to 0 for an unknown or empty name.
func ModelIDFor(cfg *config.Config, modelName string) int {
	if modelName == "" {
		return 0
	}
	return cfg.ModelIDMap[modelName]
}

// ModelVersionIDFor resolves a model name to its configured numeric
// version id, defaulting to 0 for an unknown or empty name.
func ModelVersionIDFor(cfg *config.Config, modelName string) int {
	if modelName == "" {
		return 0
	}
	return cfg.ModelVersionMap[modelName]
}

// ResolveKeyID returns the request's explicit key id, or the
// configured active key id when none was supplied.
func ResolveKeyID(cfg *config.Config, req EffectiveRequest) int {
	if req.KeyID != nil {
		return *req.KeyID
	}
	return cfg.ActiveKeyID
}
