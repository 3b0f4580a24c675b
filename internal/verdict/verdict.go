package verdict

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ThreatLevel is the coarse verdict reported by an analyzer.
type ThreatLevel string

const (
	ThreatSafe    ThreatLevel = "safe"
	ThreatWarning ThreatLevel = "warning"
	ThreatDanger  ThreatLevel = "danger"
)

const (
	DefaultConfidence     = 70.0
	DefaultCategory       = "Uncategorized"
	DefaultDetails        = "No details provided by AI."
	DefaultRecommendation = "Stay cautious."
)

// Valid reports whether l is one of the three recognized tokens.
func (l ThreatLevel) Valid() bool {
	switch l {
	case ThreatSafe, ThreatWarning, ThreatDanger:
		return true
	}
	return false
}

// Result is the canonical analysis outcome shown to the user.
type Result struct {
	ThreatLevel             ThreatLevel `json:"threatLevel"`
	Confidence              float64     `json:"confidence"`
	Category                string      `json:"category"`
	Details                 string      `json:"details"`
	Recommendations         []string    `json:"recommendations"`
	SecurityRecommendations []string    `json:"securityRecommendations,omitempty"`
	Services                []string    `json:"services,omitempty"`

	// Anomalies lists response fields that were present but unusable and
	// were replaced by defaults.
	Anomalies []string `json:"anomalies,omitempty"`
}

var (
	listSplitRe  = regexp.MustCompile(`\r?\n|-\s+|•|\*+`)
	listMarkerRe = regexp.MustCompile(`^\s*[-•*]+\s*`)
)

// NormalizeJSON decodes body and normalizes it. Undecodable input yields
// a result made entirely of defaults.
func NormalizeJSON(body []byte) Result {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		res := Normalize(nil)
		res.Anomalies = append(res.Anomalies, "response body is not valid JSON")
		return res
	}
	return Normalize(raw)
}

// Normalize converts a decoded JSON value into a Result. It never fails:
// missing or wrong-typed fields fall back to the documented defaults.
func Normalize(raw any) Result {
	fields, _ := raw.(map[string]any)

	res := Result{
		ThreatLevel: ThreatWarning,
		Confidence:  DefaultConfidence,
		Category:    DefaultCategory,
		Details:     DefaultDetails,
	}

	if v, ok := fields["threatLevel"]; ok && v != nil {
		level := ThreatLevel(stringify(v))
		if level.Valid() {
			res.ThreatLevel = level
		} else {
			res.Anomalies = append(res.Anomalies, fmt.Sprintf("threatLevel %q not recognized", stringify(v)))
		}
	}

	if v, ok := fields["confidence"]; ok {
		if c, ok := coerceConfidence(v); ok {
			res.Confidence = c
		} else if v != nil {
			res.Anomalies = append(res.Anomalies, "confidence is not numeric")
		}
	}

	if s := firstString(fields, "category"); s != "" {
		res.Category = s
	}
	if s := firstString(fields, "details", "explanation"); s != "" {
		res.Details = s
	}

	res.Recommendations = NormalizeList(fields["recommendations"])
	if len(res.Recommendations) == 0 {
		res.Recommendations = []string{DefaultRecommendation}
	}
	res.SecurityRecommendations = NormalizeList(fields["securityRecommendations"])
	res.Services = NormalizeList(fields["services"])

	return res
}

// NormalizeList accepts an array, a bullet/line separated string, or any
// scalar and returns the non-empty trimmed items in order.
func NormalizeList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range listSplitRe.Split(val, -1) {
			part = strings.TrimSpace(listMarkerRe.ReplaceAllString(part, ""))
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		if s := strings.TrimSpace(stringify(val)); s != "" {
			return []string{s}
		}
		return nil
	}
}

func coerceConfidence(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(val), "%")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return math.Max(0, math.Min(100, f)), true
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(stringify(v)); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
