package claims

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/claims-processor/constants"
)

// BillData is a hospital bill. Missing fields are nil and serialize as null.
type BillData struct {
	Type          constants.DocType `json:"type"`
	HospitalName  *string           `json:"hospital_name"`
	PatientName   *string           `json:"patient_name,omitempty"`
	TotalAmount   *float64          `json:"total_amount"`
	DateOfService *string           `json:"date_of_service"`
}

type DischargeSummaryData struct {
	Type          constants.DocType `json:"type"`
	PatientName   *string           `json:"patient_name"`
	Diagnosis     *string           `json:"diagnosis"`
	AdmissionDate *string           `json:"admission_date"`
	DischargeDate *string           `json:"discharge_date"`
}

type IDCardData struct {
	Type              constants.DocType `json:"type"`
	PatientName       *string           `json:"patient_name"`
	PatientID         *string           `json:"patient_id"`
	InsuranceProvider *string           `json:"insurance_provider"`
	PolicyNumber      *string           `json:"policy_number"`
	ValidityDate      *string           `json:"validity_date"`
}

type OtherDocumentData struct {
	Type           constants.DocType `json:"type"`
	DocumentTitle  *string           `json:"document_title,omitempty"`
	ContentSummary *string           `json:"content_summary"`
}

// Document is one extracted document. Exactly one of the typed pointers matching Type is set.
// It serializes as the flat object of that type.
type Document struct {
	Type             constants.DocType
	Source           string
	Bill             *BillData
	DischargeSummary *DischargeSummaryData
	IDCard           *IDCardData
	Other            *OtherDocumentData
}

func (d Document) MarshalJSON() ([]byte, error) {
	switch d.Type {
	case constants.Bill:
		return json.Marshal(d.Bill)
	case constants.DischargeSummary:
		return json.Marshal(d.DischargeSummary)
	case constants.IDCard:
		return json.Marshal(d.IDCard)
	default:
		return json.Marshal(d.Other)
	}
}

func (d *Document) UnmarshalJSON(b []byte) error {
	doc, err := DecodeDocument(b)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// DecodeDocument builds a Document from an extracted-fields object; its "type" picks the variant.
// Unknown types decode as "other".
func DecodeDocument(raw []byte) (Document, error) {
	var head struct {
		Type constants.DocType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	d := Document{Type: head.Type}
	var err error
	switch head.Type {
	case constants.Bill:
		d.Bill = &BillData{}
		err = json.Unmarshal(raw, d.Bill)
	case constants.DischargeSummary:
		d.DischargeSummary = &DischargeSummaryData{}
		err = json.Unmarshal(raw, d.DischargeSummary)
	case constants.IDCard:
		d.IDCard = &IDCardData{}
		err = json.Unmarshal(raw, d.IDCard)
	default:
		d.Type = constants.Other
		d.Other = &OtherDocumentData{}
		err = json.Unmarshal(raw, d.Other)
		d.Other.Type = constants.Other
	}
	if err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return d, nil
}

// EmptyDocument is a document of docType with every field null.
func EmptyDocument(docType constants.DocType) Document {
	d := Document{Type: docType}
	switch docType {
	case constants.Bill:
		d.Bill = &BillData{Type: docType}
	case constants.DischargeSummary:
		d.DischargeSummary = &DischargeSummaryData{Type: docType}
	case constants.IDCard:
		d.IDCard = &IDCardData{Type: docType}
	default:
		d.Type = constants.Other
		d.Other = &OtherDocumentData{Type: constants.Other}
	}
	return d
}

// PatientName returns the document's patient name, if it carries one.
func (d Document) PatientName() string {
	var p *string
	switch d.Type {
	case constants.Bill:
		if d.Bill != nil {
			p = d.Bill.PatientName
		}
	case constants.DischargeSummary:
		if d.DischargeSummary != nil {
			p = d.DischargeSummary.PatientName
		}
	case constants.IDCard:
		if d.IDCard != nil {
			p = d.IDCard.PatientName
		}
	}
	if p == nil {
		return ""
	}
	return *p
}

// ValidationResult holds the field checks of one document.
type ValidationResult struct {
	Document string            `json:"document,omitempty"`
	Type     constants.DocType `json:"type"`
	IsValid  bool              `json:"is_valid"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings"`
}

// ClaimValidation holds the cross-document checks.
type ClaimValidation struct {
	MissingDocuments []string `json:"missing_documents"`
	Discrepancies    []string `json:"discrepancies"`
}

type ClaimDecision struct {
	Status constants.ClaimStatus `json:"status"`
	Reason string                `json:"reason"`
}

// SkippedDocument is an upload that produced no text.
type SkippedDocument struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ClaimResult is the outcome of processing one claim.
type ClaimResult struct {
	ClaimID             string             `json:"claim_id"`
	Documents           []Document         `json:"documents"`
	Validation          ClaimValidation    `json:"validation"`
	Decision            ClaimDecision      `json:"claim_decision"`
	DocumentValidations []ValidationResult `json:"document_validations"`
	Skipped             []SkippedDocument  `json:"skipped"`
	ProcessedAt         time.Time          `json:"processed_at"`
}
