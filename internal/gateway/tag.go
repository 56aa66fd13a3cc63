package gateway

import "github.com/rawblock/watermark-gateway/internal/zerowidth"

// InjectTagNonstream walks a shaped OAI-style response's choices and
// streams the zero-width tag into any text/message content found,
// finalizing so a tag is guaranteed even on a short completion.
//
// choices may be []map[string]interface{} (a response we shaped
// ourselves) or []interface{} of map[string]interface{} (a response
// decoded from upstream JSON via encoding/json) — both are handled.
func InjectTagNonstream(resp map[string]interface{}, tag string, repeatInterval int) map[string]interface{} {
	inj := zerowidth.NewTagInjector(tag, repeatInterval)

	for _, choice := range choiceMaps(resp["choices"]) {
		if text, ok := choice["text"].(string); ok {
			choice["text"] = inj.InjectDelta(text, true)
		}
		if msg, ok := choice["message"].(map[string]interface{}); ok {
			if content, ok := msg["content"].(string); ok {
				msg["content"] = inj.InjectDelta(content, true)
			}
		}
	}
	return resp
}

func choiceMaps(raw interface{}) []map[string]interface{} {
	switch v := raw.(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
