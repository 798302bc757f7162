package guard

import "strings"

var shellMeta = strings.NewReplacer(
	";", "", "|", "", "&", "", "$", "", "`", "",
	"(", "", ")", "", "{", "", "}", "", "[", "", "]", "",
)

// Sanitize strips shell metacharacters and surrounding whitespace.
func Sanitize(s string) string {
	return strings.TrimSpace(shellMeta.Replace(s))
}

// SanitizeParams applies Sanitize to every string value, recursing into
// nested maps and slices. The input is not modified.
func SanitizeParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return Sanitize(t)
	case map[string]interface{}:
		return SanitizeParams(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = sanitizeValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = Sanitize(item)
		}
		return out
	default:
		return v
	}
}
