package rpc

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const maxEchoedBody = 512

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"passwordhash":  {},
	"password_hash": {},
	"secret":        {},
	"token":         {},
}

// redactBody renders a reply body for diagnostics. JSON bodies have their
// credential fields masked; anything else is echoed as text. The result is
// truncated to a bounded length.
func redactBody(body []byte) string {
	if len(body) == 0 {
		return "<empty>"
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		if out, err := json.Marshal(scrub(decoded)); err == nil {
			return truncate(string(out))
		}
	}

	if !utf8.Valid(body) {
		return "<binary body>"
	}
	text := string(body)
	if strings.Contains(strings.ToLower(text), "password") {
		return "<unparseable body containing credential fields>"
	}
	return truncate(text)
}

func scrub(v any) any {
	switch value := v.(type) {
	case map[string]any:
		for key, inner := range value {
			if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
				value[key] = redacted
				continue
			}
			value[key] = scrub(inner)
		}
		return value
	case []any:
		for i := range value {
			value[i] = scrub(value[i])
		}
		return value
	default:
		return v
	}
}

func truncate(s string) string {
	if len(s) <= maxEchoedBody {
		return s
	}
	cut := maxEchoedBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
