package telemetry

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Keys that may carry typed text or credentials never become attributes.
var denyKeys = []string{
	"text",
	"preview",
	"prompt",
	"content",
	"suggestion",
	"authorization",
	"api_key",
	"token",
	"secret",
}

const maxAttrString = 256

// SafeAttributes filters out unsafe keys and oversized values and returns OTEL
// attributes.
func SafeAttributes(values map[string]any) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(values))
	for k, v := range values {
		if denied(k) {
			continue
		}
		switch val := v.(type) {
		case string:
			if len(val) > maxAttrString {
				continue
			}
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case []string:
			if len(val) > 16 {
				val = val[:16]
			}
			attrs = append(attrs, attribute.StringSlice(k, val))
		case interface{ String() string }:
			if s := val.String(); len(s) <= maxAttrString {
				attrs = append(attrs, attribute.String(k, s))
			}
		}
	}
	return attrs
}

func denied(key string) bool {
	lk := strings.ToLower(key)
	for _, bad := range denyKeys {
		if strings.Contains(lk, bad) {
			return true
		}
	}
	return false
}
