package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rawblock/watermark-gateway/internal/apierr"
)

// UpstreamClient talks to a llama.cpp-server-compatible backend over
// its native (non-OpenAI) endpoints: /tokenize, /apply-template,
// /completion, and /v1/models for vocabulary metadata.
type UpstreamClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUpstreamClient builds a client bound to baseURL with generous
// read timeouts, since completion requests run a full generation.
func NewUpstreamClient(baseURL string) *UpstreamClient {
	return &UpstreamClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 180 * time.Second},
	}
}

func (u *UpstreamClient) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: marshal upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("gateway: build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.Upstream, err, "upstream request to %s failed", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Wrap(apierr.Upstream, err, "reading upstream response from %s failed", path)
	}

	if resp.StatusCode >= 400 {
		return apierr.UpstreamError(resp.StatusCode, "upstream %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gateway: decode upstream response from %s: %w", path, err)
		}
	}
	return nil
}

func (u *UpstreamClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("gateway: build upstream request: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.Upstream, err, "upstream request to %s failed", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Wrap(apierr.Upstream, err, "reading upstream response from %s failed", path)
	}
	if resp.StatusCode >= 400 {
		return apierr.UpstreamError(resp.StatusCode, "upstream %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gateway: decode upstream response from %s: %w", path, err)
		}
	}
	return nil
}

// Tokenize calls the upstream's native tokenizer.
func (u *UpstreamClient) Tokenize(ctx context.Context, text string, addSpecial bool) ([]int, error) {
	var data struct {
		Tokens []json.RawMessage `json:"tokens"`
	}
	err := u.postJSON(ctx, "/tokenize", map[string]interface{}{
		"content":       text,
		"add_special":   addSpecial,
		"parse_special": true,
	}, &data)
	if err != nil {
		return nil, err
	}

	out := make([]int, 0, len(data.Tokens))
	for _, raw := range data.Tokens {
		var id int
		if err := json.Unmarshal(raw, &id); err == nil {
			out = append(out, id)
			continue
		}
		var obj struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			out = append(out, obj.ID)
		}
	}
	return out, nil
}

// ApplyTemplate renders chat messages into a completion prompt via the
// upstream's native chat-template endpoint.
func (u *UpstreamClient) ApplyTemplate(ctx context.Context, messages []map[string]interface{}, model string) (string, error) {
	payload := map[string]interface{}{"messages": messages}
	if model != "" {
		payload["model"] = model
	}

	var data struct {
		Prompt string `json:"prompt"`
		Error  string `json:"error"`
	}
	if err := u.postJSON(ctx, "/apply-template", payload, &data); err != nil {
		return "", err
	}
	if strings.Contains(data.Error, "Unexpected endpoint or method") {
		return "", apierr.New(apierr.Unimplemented,
			"upstream does not expose /apply-template; statistical watermark mode requires llama-server native endpoints")
	}
	if data.Prompt == "" {
		return "", apierr.New(apierr.Upstream, "/apply-template did not return a prompt")
	}
	return data.Prompt, nil
}

// ModelMeta reports the resolved model id and vocabulary size the
// upstream is currently serving.
func (u *UpstreamClient) ModelMeta(ctx context.Context, model string) (modelID string, vocabSize int, err error) {
	var data struct {
		Data []struct {
			ID   string `json:"id"`
			Meta struct {
				NVocab int `json:"n_vocab"`
			} `json:"meta"`
		} `json:"data"`
	}
	if err := u.getJSON(ctx, "/v1/models", &data); err != nil {
		return "", 0, err
	}
	if len(data.Data) == 0 {
		if model == "" {
			model = "llama.cpp"
		}
		return model, 32000, nil
	}

	chosen := data.Data[0]
	if model != "" {
		for _, it := range data.Data {
			if it.ID == model {
				chosen = it
				break
			}
		}
	}
	nVocab := chosen.Meta.NVocab
	if nVocab == 0 {
		nVocab = 32000
	}
	id := chosen.ID
	if id == "" {
		id = model
	}
	return id, nVocab, nil
}

// CompletionResult is the subset of a /completion response the
// per-token generation loop needs.
type CompletionResult struct {
	Content  string
	Tokens   []int
	StopType string
}

// Completion issues one native /completion call.
func (u *UpstreamClient) Completion(ctx context.Context, req map[string]interface{}) (*CompletionResult, error) {
	var data struct {
		Content  string        `json:"content"`
		Tokens   []json.Number `json:"tokens"`
		StopType string        `json:"stop_type"`
		Error    string        `json:"error"`
	}
	if err := u.postJSON(ctx, "/completion", req, &data); err != nil {
		return nil, err
	}
	if strings.Contains(data.Error, "Unexpected endpoint or method") {
		return nil, apierr.New(apierr.Unimplemented,
			"upstream does not expose /completion; statistical watermark mode requires llama-server native endpoints")
	}

	tokens := make([]int, 0, len(data.Tokens))
	for _, n := range data.Tokens {
		if v, err := n.Int64(); err == nil {
			tokens = append(tokens, int(v))
		}
	}

	return &CompletionResult{Content: data.Content, Tokens: tokens, StopType: data.StopType}, nil
}

// Passthrough forwards body verbatim to the upstream's OpenAI-style
// endpoint at path, for requests that don't need per-token biasing.
func (u *UpstreamClient) Passthrough(ctx context.Context, path string, body map[string]interface{}) (map[string]interface{}, error) {
	var data map[string]interface{}
	if err := u.postJSON(ctx, path, body, &data); err != nil {
		return nil, err
	}
	return data, nil
}
