package telemetry

import (
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// AttrPrefix namespaces every attribute produced by SafeAttributes.
const AttrPrefix = "guard."

// Field names that can carry message content, file names or credentials.
// Matching is by substring, so "filenames" and "text_preview" are dropped too.
var sensitiveFields = []string{
	"text",
	"details",
	"filename",
	"path",
	"url",
	"authorization",
	"api_key",
	"token",
	"email",
}

const (
	maxStringLen = 256
	maxListLen   = 16
)

// SafeAttributes turns analysis fields into span and metric attributes.
// Sensitive fields, oversized strings and unsupported types are skipped;
// durations are recorded in milliseconds. Output is sorted by key.
func SafeAttributes(fields map[string]any) []attribute.KeyValue {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !sensitive(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		name := AttrPrefix + k
		switch v := fields[k].(type) {
		case string:
			if v == "" || len(v) > maxStringLen {
				continue
			}
			attrs = append(attrs, attribute.String(name, v))
		case bool:
			attrs = append(attrs, attribute.Bool(name, v))
		case int:
			attrs = append(attrs, attribute.Int(name, v))
		case int64:
			attrs = append(attrs, attribute.Int64(name, v))
		case float64:
			attrs = append(attrs, attribute.Float64(name, v))
		case time.Duration:
			attrs = append(attrs, attribute.Int64(name+"_ms", v.Milliseconds()))
		case []string:
			if len(v) == 0 {
				continue
			}
			if len(v) > maxListLen {
				v = v[:maxListLen]
			}
			attrs = append(attrs, attribute.StringSlice(name, v))
		}
	}
	return attrs
}

func sensitive(key string) bool {
	lk := strings.ToLower(key)
	for _, bad := range sensitiveFields {
		if strings.Contains(lk, bad) {
			return true
		}
	}
	return false
}
