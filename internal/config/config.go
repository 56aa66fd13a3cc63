// Package config loads and validates all runtime configuration from
// environment variables in a single pass.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rawblock/watermark-gateway/internal/keys"
)

// Config is the fully resolved, validated runtime configuration for
// the gateway and registry.
type Config struct {
	Port string

	MasterKeys    keys.MasterKeySet
	OptOutSecret  []byte
	SchemaVersion uint8
	IssuerID      uint16
	ActiveKeyID   int

	ModelIDMap      map[string]int
	ModelVersionMap map[string]int

	ContextWidth         int
	GreenlistRatio       float64
	BiasDelta            float64
	MaxBiasTokens        int
	RepeatIntervalTokens int

	UpstreamLlamaCppURL string
	DatabaseURL         string
	RegistryAdminSecret string

	RateLimitPerMinute int
	RateLimitBurst     int
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func loadMasterKeys() (keys.MasterKeySet, error) {
	if raw := os.Getenv("WATERMARK_MASTER_KEYS"); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("config: WATERMARK_MASTER_KEYS is not valid JSON: %w", err)
		}
		out := make(keys.MasterKeySet, len(parsed))
		for idStr, b64 := range parsed {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				return nil, fmt.Errorf("config: WATERMARK_MASTER_KEYS key %q is not an integer", idStr)
			}
			secret, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return nil, fmt.Errorf("config: WATERMARK_MASTER_KEYS[%s] is not valid base64: %w", idStr, err)
			}
			out[id] = secret
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	if single := os.Getenv("WATERMARK_MASTER_KEY"); single != "" {
		secret, err := base64.StdEncoding.DecodeString(single)
		if err != nil {
			return nil, fmt.Errorf("config: WATERMARK_MASTER_KEY is not valid base64: %w", err)
		}
		return keys.MasterKeySet{1: secret}, nil
	}

	return keys.MasterKeySet{1: []byte(keys.DevMasterKey)}, nil
}

func loadIntStringMap(envVar string) (map[string]int, error) {
	raw := getEnvOrDefault(envVar, "{}")
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("config: %s is not valid JSON: %w", envVar, err)
	}
	out := make(map[string]int, len(parsed))
	for k, v := range parsed {
		switch n := v.(type) {
		case float64:
			out[k] = int(n)
		case string:
			iv, err := strconv.Atoi(n)
			if err != nil {
				return nil, fmt.Errorf("config: %s[%s] is not an integer", envVar, k)
			}
			out[k] = iv
		default:
			return nil, fmt.Errorf("config: %s[%s] has an unsupported value type", envVar, k)
		}
	}
	return out, nil
}

func parseIntEnv(key, fallback string) (int, error) {
	raw := getEnvOrDefault(key, fallback)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, raw)
	}
	return v, nil
}

func parseFloatEnv(key, fallback string) (float64, error) {
	raw := getEnvOrDefault(key, fallback)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number", key, raw)
	}
	return v, nil
}

// Load parses and validates every environment variable the gateway and
// registry recognize (spec §6), returning a single immutable Config.
func Load() (*Config, error) {
	masterKeys, err := loadMasterKeys()
	if err != nil {
		return nil, err
	}

	modelIDMap, err := loadIntStringMap("WATERMARK_MODEL_ID_MAP")
	if err != nil {
		return nil, err
	}
	modelVersionMap, err := loadIntStringMap("WATERMARK_MODEL_VERSION_MAP")
	if err != nil {
		return nil, err
	}

	schemaVersion, err := parseIntEnv("WATERMARK_SCHEMA_VERSION", "1")
	if err != nil {
		return nil, err
	}
	if schemaVersion < 0 || schemaVersion > 0xF {
		return nil, fmt.Errorf("config: WATERMARK_SCHEMA_VERSION=%d out of 4-bit range", schemaVersion)
	}

	issuerID, err := parseIntEnv("WATERMARK_ISSUER_ID", "1")
	if err != nil {
		return nil, err
	}
	if issuerID < 0 || issuerID > 0xFFFF {
		return nil, fmt.Errorf("config: WATERMARK_ISSUER_ID=%d out of 16-bit range", issuerID)
	}

	activeKeyID, err := parseIntEnv("WATERMARK_ACTIVE_KEY_ID", "1")
	if err != nil {
		return nil, err
	}

	contextWidth, err := parseIntEnv("WATERMARK_CONTEXT_WIDTH", "2")
	if err != nil {
		return nil, err
	}
	greenlistRatio, err := parseFloatEnv("WATERMARK_GREENLIST_RATIO", "0.25")
	if err != nil {
		return nil, err
	}
	biasDelta, err := parseFloatEnv("WATERMARK_BIAS_DELTA", "1.0")
	if err != nil {
		return nil, err
	}
	maxBiasTokens, err := parseIntEnv("WATERMARK_MAX_BIAS_TOKENS", "2048")
	if err != nil {
		return nil, err
	}
	repeatIntervalTokens, err := parseIntEnv("WATERMARK_REPEAT_INTERVAL_TOKENS", "160")
	if err != nil {
		return nil, err
	}

	optOutSecret := []byte(getEnvOrDefault("WATERMARK_OPTOUT_SECRET", "dev-only-optout-secret-change-me"))

	rateLimitPerMinute, err := parseIntEnv("GATEWAY_RATE_LIMIT_PER_MINUTE", "30")
	if err != nil {
		return nil, err
	}
	rateLimitBurst, err := parseIntEnv("GATEWAY_RATE_LIMIT_BURST", "10")
	if err != nil {
		return nil, err
	}

	return &Config{
		Port: getEnvOrDefault("PORT", "8080"),

		MasterKeys:    masterKeys,
		OptOutSecret:  optOutSecret,
		SchemaVersion: uint8(schemaVersion),
		IssuerID:      uint16(issuerID),
		ActiveKeyID:   activeKeyID,

		ModelIDMap:      modelIDMap,
		ModelVersionMap: modelVersionMap,

		ContextWidth:         contextWidth,
		GreenlistRatio:       greenlistRatio,
		BiasDelta:            biasDelta,
		MaxBiasTokens:        maxBiasTokens,
		RepeatIntervalTokens: repeatIntervalTokens,

		UpstreamLlamaCppURL: getEnvOrDefault("UPSTREAM_LLAMACPP_URL", "http://127.0.0.1:8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RegistryAdminSecret: os.Getenv("REGISTRY_ADMIN_SECRET"),

		RateLimitPerMinute: rateLimitPerMinute,
		RateLimitBurst:     rateLimitBurst,
	}, nil
}
