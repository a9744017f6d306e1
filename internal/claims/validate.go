package claims

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/common"
)

const (
	msgTotalAmount     = "Total amount must be greater than 0."
	msgPatientName     = "Patient name is missing or invalid."
	msgDischargeBefore = "Discharge date is before admission date."
	msgCardExpired     = "Insurance card validity date has passed."
)

// Validate runs the per-document field checks. now decides whether an ID card has expired.
func Validate(docs []Document, now time.Time) []ValidationResult {
	out := make([]ValidationResult, 0, len(docs))
	today := now.UTC().Truncate(24 * time.Hour)
	for _, d := range docs {
		v := common.NewValidator()
		var warnings []string

		switch d.Type {
		case constants.Bill:
			if b := d.Bill; b != nil {
				v.Field("total_amount", b.TotalAmount, common.Positive(msgTotalAmount)).
					Field("patient_name", b.PatientName, common.NotPlaceholder(msgPatientName, "tbd", "unknown"))
			}
		case constants.DischargeSummary:
			if ds := d.DischargeSummary; ds != nil {
				adm, okA := parseDate(ds.AdmissionDate)
				dis, okD := parseDate(ds.DischargeDate)
				if okA && okD && dis.Before(adm) {
					v.Field("discharge_date", *ds.DischargeDate, func(field string, value interface{}) *common.ValidationError {
						return &common.ValidationError{Field: field, Value: value, Message: msgDischargeBefore}
					})
				}
			}
		case constants.IDCard:
			if id := d.IDCard; id != nil {
				if until, ok := parseDate(id.ValidityDate); ok && until.Before(today) {
					warnings = append(warnings, msgCardExpired)
				}
			}
		}

		errs := v.Messages()
		out = append(out, ValidationResult{
			Document: d.Source,
			Type:     d.Type,
			IsValid:  len(errs) == 0,
			Errors:   errs,
			Warnings: nonNil(warnings),
		})
	}
	return out
}

// CheckClaim runs the cross-document checks: required types present and consistent patient names.
func CheckClaim(docs []Document) ClaimValidation {
	found := map[constants.DocType]bool{}
	for _, d := range docs {
		found[d.Type] = true
	}
	missing := []string{}
	for _, t := range constants.RequiredDocTypes {
		if !found[t] {
			missing = append(missing, string(t))
		}
	}
	sort.Strings(missing)

	discrepancies := []string{}
	ds, okDS := firstNamed(docs, constants.DischargeSummary)
	id, okID := firstNamed(docs, constants.IDCard)
	if okDS && okID && !sameName(ds, id) {
		discrepancies = append(discrepancies,
			fmt.Sprintf("Patient name mismatch: discharge summary has %q, ID card has %q.", ds, id))
	}
	return ClaimValidation{MissingDocuments: missing, Discrepancies: discrepancies}
}

// Decide approves a claim only when nothing is missing and nothing disagrees.
func Decide(v ClaimValidation) ClaimDecision {
	if len(v.MissingDocuments) == 0 && len(v.Discrepancies) == 0 {
		return ClaimDecision{
			Status: constants.ClaimApproved,
			Reason: "All required documents present and data is consistent",
		}
	}
	return ClaimDecision{
		Status: constants.ClaimRejected,
		Reason: "Missing required documents or found discrepancies",
	}
}

func firstNamed(docs []Document, t constants.DocType) (string, bool) {
	for _, d := range docs {
		if d.Type != t {
			continue
		}
		if n := strings.TrimSpace(d.PatientName()); n != "" {
			return n, true
		}
	}
	return "", false
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

func parseDate(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	t, err := common.ParseYMD(*s)
	return t, err == nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
