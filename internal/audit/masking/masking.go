package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys whose values are masked before an audit
// row is written.
var SensitiveKeys = map[string]struct{}{
	"payment_reference": {},
	"payment_method":    {},
}

// MaskSecret redacts a value while keeping its last four characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskSensitive returns a copy of input with SensitiveKeys string values masked.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, sensitive := SensitiveKeys[key]; sensitive {
			if str, ok := value.(string); ok {
				value = MaskSecret(str)
			}
		}
		out[key] = value
	}
	return out
}

// splitPrefix keeps gateway prefixes such as "pi_" readable.
func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
