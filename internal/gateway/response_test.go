package gateway

import (
	"testing"
	"time"
)

func TestOAICompletionResponseShape(t *testing.T) {
	now := time.Unix(1700000000, 0)
	resp := OAICompletionResponse("llama-3", "hello", 5, 3, now)
	if resp["object"] != "text_completion" {
		t.Fatalf("object = %v", resp["object"])
	}
	usage := resp["usage"].(map[string]interface{})
	if usage["prompt_tokens"] != 5 || usage["completion_tokens"] != 3 || usage["total_tokens"] != 8 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	choices := resp["choices"].([]map[string]interface{})
	if choices[0]["text"] != "hello" || choices[0]["finish_reason"] != "stop" {
		t.Fatalf("unexpected choice: %+v", choices[0])
	}
}

func TestOAIChatResponseShape(t *testing.T) {
	now := time.Unix(1700000000, 0)
	resp := OAIChatResponse("llama-3", "hi", 2, 1, now)
	if resp["object"] != "chat.completion" {
		t.Fatalf("object = %v", resp["object"])
	}
	choices := resp["choices"].([]map[string]interface{})
	msg := choices[0]["message"].(map[string]interface{})
	if msg["role"] != "assistant" || msg["content"] != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
