package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/claims-processor/constants"
)

var (
	reFence  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	reAmount = regexp.MustCompile(`-?\d[\d,]*(\.\d+)?`)

	amountFields = []string{"total_amount"}
	dateFields   = []string{"date_of_service", "admission_date", "discharge_date", "validity_date"}

	dateLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
		"02.01.2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 January 2006",
		"02 Jan 2006",
		"2-Jan-2006",
	}
)

// StripCodeFences removes a surrounding ``` block and any prose around the outermost JSON object.
func StripCodeFences(content string) string {
	s := strings.TrimSpace(content)
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i > 0 && j > i {
		s = s[i : j+1]
	}
	return s
}

// SanitizeFields normalizes a model reply for docType so it can pass SchemaFor(docType):
// - strips code fences
// - forces "type" to docType
// - drops null / empty values and unknown keys
// - coerces amounts ("$1,234.50") to numbers and dates to YYYY-MM-DD
// It returns the cleaned JSON and a list of what was dropped or rewritten.
func SanitizeFields(content []byte, docType constants.DocType, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(StripCodeFences(string(content))), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	if m == nil {
		return nil, nil, fmt.Errorf("sanitize: not a JSON object")
	}

	var dropped []string
	if t, ok := m["type"].(string); ok && t != string(docType) {
		dropped = append(dropped, "type("+t+")")
	}
	m["type"] = string(docType)

	allowed := allowedKeys(docType)
	for k, v := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
			continue
		}
		switch t := v.(type) {
		case nil:
			delete(m, k)
			dropped = append(dropped, k+"(null)")
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	for _, k := range amountFields {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
		case string:
			if f, ok := ParseAmount(t); ok {
				m[k] = f
			} else {
				delete(m, k)
				dropped = append(dropped, k+"(unparsable)")
			}
		default:
			delete(m, k)
			dropped = append(dropped, k+"(type)")
		}
	}

	for _, k := range dateFields {
		s, ok := m[k].(string)
		if !ok {
			if _, present := m[k]; present {
				delete(m, k)
				dropped = append(dropped, k+"(type)")
			}
			continue
		}
		if d, ok := NormalizeDate(s); ok {
			m[k] = d
		} else {
			delete(m, k)
			dropped = append(dropped, k+"(unparsable)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "doc_type", docType, "dropped", dropped)
	}
	return out, dropped, nil
}

// ParseAmount reads the first number in s, ignoring currency symbols and thousands separators.
func ParseAmount(s string) (float64, bool) {
	num := reAmount.FindString(s)
	if num == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NormalizeDate renders a date in any of the accepted layouts as YYYY-MM-DD.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	// "2024-04-10 00:00:00+00:00" and friends
	if len(s) > 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
