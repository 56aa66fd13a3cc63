package gateway

import (
	"strconv"
	"time"
)

// OAICompletionResponse shapes a non-chat OpenAI-style text-completion
// response around generated text.
func OAICompletionResponse(model, text string, promptTokens, completionTokens int, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":      "cmpl-wm-" + strconv.FormatInt(now.UnixMilli(), 10),
		"object":  "text_completion",
		"created": now.Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"text":          text,
				"logprobs":      nil,
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

// OAIChatResponse shapes a chat-completion response around generated text.
func OAIChatResponse(model, text string, promptTokens, completionTokens int, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-wm-" + strconv.FormatInt(now.UnixMilli(), 10),
		"object":  "chat.completion",
		"created": now.Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": text,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}
