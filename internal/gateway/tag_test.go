package gateway

import (
	"strings"
	"testing"
)

func TestInjectTagNonstreamIntoShapedCompletion(t *testing.T) {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"text": "hello world"},
		},
	}
	out := InjectTagNonstream(resp, "<TAG>", 1000)
	choices := out["choices"].([]map[string]interface{})
	text := choices[0]["text"].(string)
	if !strings.Contains(text, "<TAG>") {
		t.Fatalf("expected tag to be injected, got %q", text)
	}
}

func TestInjectTagNonstreamIntoShapedChat(t *testing.T) {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"role": "assistant", "content": "hi there"}},
		},
	}
	out := InjectTagNonstream(resp, "<TAG>", 1000)
	choices := out["choices"].([]map[string]interface{})
	msg := choices[0]["message"].(map[string]interface{})
	if !strings.Contains(msg["content"].(string), "<TAG>") {
		t.Fatalf("expected tag injected into chat content, got %+v", msg)
	}
}

func TestInjectTagNonstreamHandlesJSONDecodedChoices(t *testing.T) {
	// Simulates a passthrough response decoded via encoding/json, where
	// array elements come back as []interface{} of map[string]interface{}.
	resp := map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{"text": "passthrough text"},
		},
	}
	out := InjectTagNonstream(resp, "<TAG>", 1000)
	choices := out["choices"].([]interface{})
	text := choices[0].(map[string]interface{})["text"].(string)
	if !strings.Contains(text, "<TAG>") {
		t.Fatalf("expected tag injected into JSON-decoded choices, got %q", text)
	}
}

func TestInjectTagNonstreamNoChoicesIsNoOp(t *testing.T) {
	resp := map[string]interface{}{"foo": "bar"}
	out := InjectTagNonstream(resp, "<TAG>", 10)
	if out["foo"] != "bar" {
		t.Fatalf("expected response to be unchanged when choices is absent")
	}
}
