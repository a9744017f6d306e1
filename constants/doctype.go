package constants

import (
	"strings"
)

type DocType string

const (
	Bill             DocType = "bill"
	DischargeSummary DocType = "discharge_summary"
	IDCard           DocType = "id_card"
	Other            DocType = "other"
)

var allDocTypes = []DocType{
	Bill,
	DischargeSummary,
	IDCard,
	Other,
}

// RequiredDocTypes must all be present for a claim to be approved.
var RequiredDocTypes = []DocType{Bill, DischargeSummary}

func AsStringSlice() []string {
	result := make([]string, len(allDocTypes))
	for i, dt := range allDocTypes {
		result[i] = string(dt)
	}
	return result
}

// Canonicalize maps a model reply to a DocType. The reply is lower-cased and trimmed and must
// then name one of the four types exactly; anything else is Other with ok=false.
func Canonicalize(input string) (DocType, bool) {
	normalized := DocType(strings.ToLower(strings.TrimSpace(input)))
	for _, dt := range allDocTypes {
		if normalized == dt {
			return dt, true
		}
	}
	return Other, false
}
