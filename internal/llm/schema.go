package llm

import "github.com/joseph-ayodele/claims-processor/constants"

const datePattern = `^\d{4}-\d{2}-\d{2}$`

// SchemaFor returns the JSON Schema for the extracted fields of docType.
// Every field but "type" is optional; a model answering null for a field is sanitized to an absent key.
func SchemaFor(docType constants.DocType) map[string]any {
	var props map[string]any
	switch docType {
	case constants.Bill:
		props = map[string]any{
			"hospital_name":   stringProp(),
			"patient_name":    stringProp(),
			"total_amount":    map[string]any{"type": "number"},
			"date_of_service": dateProp(),
		}
	case constants.DischargeSummary:
		props = map[string]any{
			"patient_name":   stringProp(),
			"diagnosis":      stringProp(),
			"admission_date": dateProp(),
			"discharge_date": dateProp(),
		}
	case constants.IDCard:
		props = map[string]any{
			"patient_name":       stringProp(),
			"patient_id":         stringProp(),
			"insurance_provider": stringProp(),
			"policy_number":      stringProp(),
			"validity_date":      dateProp(),
		}
	default:
		docType = constants.Other
		props = map[string]any{
			"document_title":  stringProp(),
			"content_summary": stringProp(),
		}
	}
	props["type"] = map[string]any{"type": "string", "const": string(docType)}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"type"},
	}
}

// allowedKeys lists the property names SchemaFor accepts for docType.
func allowedKeys(docType constants.DocType) map[string]struct{} {
	props, _ := SchemaFor(docType)["properties"].(map[string]any)
	out := make(map[string]struct{}, len(props))
	for k := range props {
		out[k] = struct{}{}
	}
	return out
}

func stringProp() map[string]any {
	return map[string]any{"type": "string"}
}

func dateProp() map[string]any {
	return map[string]any{"type": "string", "pattern": datePattern}
}
