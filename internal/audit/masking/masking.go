package masking

import "strings"

const maskToken = "****"

// Metadata keys whose values identify a person or a credential.
var sensitiveKeys = map[string]struct{}{
	"phone":   {},
	"email":   {},
	"api_key": {},
	"key_id":  {},
}

// MaskSecret redacts a value while keeping a short suffix for correlation.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskMetadata returns a copy of input with sensitive keys masked, recursing
// into nested maps.
func MaskMetadata(input map[string]any) map[string]any {
	masked := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			masked[key] = MaskMetadata(cast)
		case string:
			if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
				masked[key] = MaskSecret(cast)
			} else {
				masked[key] = cast
			}
		default:
			masked[key] = value
		}
	}
	return masked
}
