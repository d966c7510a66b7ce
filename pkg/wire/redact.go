package wire

// RedactedValue replaces sensitive values in logged messages.
const RedactedValue = "<REDACTED>"

// sensitiveKeys lists fields that carry network secrets.
var sensitiveKeys = map[string]struct{}{
	"networkKey":       {},
	"linkKey":          {},
	"installCode":      {},
	"preconfiguredKey": {},
}

// IsSensitiveKey reports whether values stored under key must not be logged.
func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[key]
	return ok
}

// Redact returns a deep copy of msg with every sensitive value replaced by
// RedactedValue, including values inside nested maps and arrays.
// The input is not modified.
func Redact(msg Message) Message {
	if msg == nil {
		return nil
	}
	return redactValue(msg).(Message)
}

func redactValue(v any) any {
	switch t := v.(type) {
	case Message:
		out := make(Message, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = redactValue(val)
		}
		return out
	case map[string]any:
		return map[string]any(redactValue(Message(t)).(Message))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	default:
		return cloneValue(v)
	}
}
