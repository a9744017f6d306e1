package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/common"
	"github.com/joseph-ayodele/claims-processor/internal/ingest"
	"github.com/joseph-ayodele/claims-processor/internal/llm"
	"github.com/joseph-ayodele/claims-processor/internal/ocr"
)

func ptr[T any](v T) *T { return &v }

func pdf(body string) []byte { return []byte("%PDF-1.4\n" + body) }

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeExtractor returns the PDF body after the header as text; bodies starting with "ERR" fail.
type fakeExtractor struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeExtractor) Extract(ctx context.Context, doc []byte) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	body := strings.TrimPrefix(string(doc), "%PDF-1.4\n")
	if strings.HasPrefix(body, "ERR") {
		return "", &ocr.ExtractionError{Kind: ocr.KindNoExtractableContent, Message: "no text extracted, even with OCR fallback"}
	}
	return body, nil
}

// fakeStage classifies by the first word of the text and returns canned fields per type.
type fakeStage struct {
	mu         sync.Mutex
	fields     map[constants.DocType]string
	classifyFn func(text string) (constants.DocType, error)
	extractErr error
	seen       []string
}

func (s *fakeStage) Classify(ctx context.Context, text string) (constants.DocType, error) {
	s.mu.Lock()
	s.seen = append(s.seen, text)
	s.mu.Unlock()
	if s.classifyFn != nil {
		return s.classifyFn(text)
	}
	first, _, _ := strings.Cut(text, " ")
	return llm.ParseDocType(first), nil
}

func (s *fakeStage) ExtractFields(ctx context.Context, text string, dt constants.DocType) (json.RawMessage, error) {
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	if f, ok := s.fields[dt]; ok {
		return json.RawMessage(f), nil
	}
	return llm.OtherDocument("summary of " + text), nil
}

func goodFields() map[constants.DocType]string {
	return map[constants.DocType]string{
		constants.Bill:             `{"type":"bill","hospital_name":"City Hospital","patient_name":"Jane Roe","total_amount":1250,"date_of_service":"2024-04-10"}`,
		constants.DischargeSummary: `{"type":"discharge_summary","patient_name":"Jane Roe","diagnosis":"Appendicitis","admission_date":"2024-04-01","discharge_date":"2024-04-10"}`,
		constants.IDCard:           `{"type":"id_card","patient_name":"jane  roe","patient_id":"P1","insurance_provider":"Acme","policy_number":"X9","validity_date":"2030-12-31"}`,
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	docs := []Document{
		{Type: constants.Bill, Source: "ok.pdf", Bill: &BillData{Type: constants.Bill, TotalAmount: ptr(10.0), PatientName: ptr("Jane")}},
		{Type: constants.Bill, Source: "bad.pdf", Bill: &BillData{Type: constants.Bill, TotalAmount: ptr(0.0), PatientName: ptr(" TBD ")}},
		{Type: constants.Bill, Source: "null.pdf", Bill: &BillData{Type: constants.Bill}},
		{Type: constants.DischargeSummary, DischargeSummary: &DischargeSummaryData{AdmissionDate: ptr("2024-04-10"), DischargeDate: ptr("2024-04-01")}},
		{Type: constants.DischargeSummary, DischargeSummary: &DischargeSummaryData{AdmissionDate: ptr("2024-04-01"), DischargeDate: ptr("2024-04-01")}},
		{Type: constants.IDCard, IDCard: &IDCardData{ValidityDate: ptr("2025-01-14")}},
		{Type: constants.IDCard, IDCard: &IDCardData{ValidityDate: ptr("2025-01-15")}},
		{Type: constants.Other, Other: &OtherDocumentData{}},
	}

	got := Validate(docs, now)
	require.Len(t, got, len(docs))

	assert.True(t, got[0].IsValid)
	assert.Empty(t, got[0].Errors)
	assert.Equal(t, "ok.pdf", got[0].Document)

	assert.False(t, got[1].IsValid)
	assert.Equal(t, []string{msgTotalAmount, msgPatientName}, got[1].Errors)
	assert.Equal(t, []string{msgTotalAmount, msgPatientName}, got[2].Errors)

	assert.Equal(t, []string{msgDischargeBefore}, got[3].Errors)
	assert.True(t, got[4].IsValid, "same-day discharge is fine")

	assert.True(t, got[5].IsValid, "expired card is only a warning")
	assert.Equal(t, []string{msgCardExpired}, got[5].Warnings)
	assert.Empty(t, got[6].Warnings, "card valid through today")

	assert.True(t, got[7].IsValid)
	assert.NotNil(t, got[7].Warnings)
}

func TestCheckClaimAndDecide(t *testing.T) {
	bill := EmptyDocument(constants.Bill)
	ds := Document{Type: constants.DischargeSummary, DischargeSummary: &DischargeSummaryData{PatientName: ptr("Jane Roe")}}
	id := Document{Type: constants.IDCard, IDCard: &IDCardData{PatientName: ptr("JANE ROE")}}
	otherID := Document{Type: constants.IDCard, IDCard: &IDCardData{PatientName: ptr("John Doe")}}

	tests := []struct {
		name          string
		docs          []Document
		missing       []string
		discrepancies int
		status        constants.ClaimStatus
	}{
		{"complete", []Document{bill, ds}, []string{}, 0, constants.ClaimApproved},
		{"complete with matching card", []Document{ds, id, bill}, []string{}, 0, constants.ClaimApproved},
		{"nothing", nil, []string{"bill", "discharge_summary"}, 0, constants.ClaimRejected},
		{"only other", []Document{EmptyDocument(constants.Other)}, []string{"bill", "discharge_summary"}, 0, constants.ClaimRejected},
		{"missing discharge", []Document{bill, id}, []string{"discharge_summary"}, 0, constants.ClaimRejected},
		{"name mismatch", []Document{bill, ds, otherID}, []string{}, 1, constants.ClaimRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CheckClaim(tt.docs)
			assert.Equal(t, tt.missing, v.MissingDocuments)
			assert.Len(t, v.Discrepancies, tt.discrepancies)
			d := Decide(v)
			assert.Equal(t, tt.status, d.Status)
			if tt.status == constants.ClaimApproved {
				assert.Equal(t, "All required documents present and data is consistent", d.Reason)
			} else {
				assert.Equal(t, "Missing required documents or found discrepancies", d.Reason)
			}
		})
	}
}

func TestDocumentJSON(t *testing.T) {
	d, err := DecodeDocument([]byte(`{"type":"bill","hospital_name":"City","total_amount":12.5}`))
	require.NoError(t, err)
	assert.Equal(t, constants.Bill, d.Type)
	assert.Equal(t, 12.5, *d.Bill.TotalAmount)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"bill","hospital_name":"City","total_amount":12.5,"date_of_service":null}`, string(b))

	var back Document
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, d, back)

	other, err := DecodeDocument([]byte(`{"type":"prescription","content_summary":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, constants.Other, other.Type)
	assert.Equal(t, constants.Other, other.Other.Type)

	_, err = DecodeDocument([]byte(`not json`))
	assert.Error(t, err)
}

func TestProcessClaim_Approved(t *testing.T) {
	stage := &fakeStage{fields: goodFields()}
	p := NewProcessor(quiet, &fakeExtractor{}, stage, 4)
	p.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	res, err := p.ProcessClaim(context.Background(), []ingest.Upload{
		{Name: "bill.pdf", Data: pdf("bill City Hospital total 1250")},
		{Name: "discharge.pdf", Data: pdf("discharge_summary Jane Roe")},
		{Name: "card.pdf", Data: pdf("id_card Jane Roe")},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ClaimID)
	require.Len(t, res.Documents, 3)
	assert.Equal(t, constants.Bill, res.Documents[0].Type)
	assert.Equal(t, "bill.pdf", res.Documents[0].Source)
	assert.Equal(t, constants.DischargeSummary, res.Documents[1].Type)
	assert.Equal(t, constants.IDCard, res.Documents[2].Type)
	assert.Empty(t, res.Validation.MissingDocuments)
	assert.Empty(t, res.Validation.Discrepancies)
	assert.Equal(t, constants.ClaimApproved, res.Decision.Status)
	assert.Len(t, res.DocumentValidations, 3)
	assert.Empty(t, res.Skipped)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	for _, k := range []string{"claim_id", "documents", "validation", "claim_decision", "skipped"} {
		assert.Contains(t, m, k)
	}
	assert.Equal(t, []any{}, m["validation"].(map[string]any)["missing_documents"])
}

func TestProcessClaim_SkipsFailedExtraction(t *testing.T) {
	p := NewProcessor(quiet, &fakeExtractor{}, &fakeStage{fields: goodFields()}, 2)

	res, err := p.ProcessClaim(context.Background(), []ingest.Upload{
		{Name: "blank.pdf", Data: pdf("ERR blank scan")},
		{Name: "bill.pdf", Data: pdf("bill total 10")},
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "blank.pdf", res.Skipped[0].Name)
	assert.Contains(t, res.Skipped[0].Reason, "no text extracted")
	assert.Equal(t, []string{"discharge_summary"}, res.Validation.MissingDocuments)
	assert.Equal(t, constants.ClaimRejected, res.Decision.Status)
}

func TestProcessClaim_InputErrors(t *testing.T) {
	p := NewProcessor(quiet, &fakeExtractor{}, &fakeStage{}, 1)

	_, err := p.ProcessClaim(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = p.ProcessClaim(context.Background(), []ingest.Upload{
		{Name: "bill.pdf", Data: pdf("bill")},
		{Name: "photo.jpg", Data: []byte{0xff, 0xd8}},
	})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Equal(t, "Only PDF files are supported. Got: photo.jpg", err.Error())
}

func TestProcessClaim_PreservesUploadOrderUnderConcurrency(t *testing.T) {
	ext := &fakeExtractor{delay: 20 * time.Millisecond}
	stage := &fakeStage{fields: goodFields()}
	p := NewProcessor(quiet, ext, stage, 3)

	var uploads []ingest.Upload
	for i := 0; i < 9; i++ {
		uploads = append(uploads, ingest.Upload{Name: fmt.Sprintf("doc-%d.pdf", i), Data: pdf(fmt.Sprintf("other page %d", i))})
	}
	res, err := p.ProcessClaim(context.Background(), uploads)
	require.NoError(t, err)
	require.Len(t, res.Documents, 9)
	for i, d := range res.Documents {
		assert.Equal(t, fmt.Sprintf("doc-%d.pdf", i), d.Source)
	}
	for i, text := range stage.seen {
		assert.Equal(t, fmt.Sprintf("other page %d", i), text)
	}
	assert.LessOrEqual(t, ext.peak.Load(), int32(3))
	assert.Greater(t, ext.peak.Load(), int32(1))
}

func TestProcessClaim_ModelFailuresDegrade(t *testing.T) {
	stage := &fakeStage{
		classifyFn: func(text string) (constants.DocType, error) {
			if strings.HasPrefix(text, "flaky") {
				return "", errors.New("upstream 502")
			}
			return constants.Bill, nil
		},
		extractErr: errors.New("schema validation failed"),
	}
	p := NewProcessor(quiet, &fakeExtractor{}, stage, 2)

	res, err := p.ProcessClaim(context.Background(), []ingest.Upload{
		{Name: "bill.pdf", Data: pdf("bill text")},
		{Name: "flaky.pdf", Data: pdf("flaky text that is long enough")},
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)

	assert.Equal(t, constants.Bill, res.Documents[0].Type, "extraction failure keeps the classified type")
	assert.Nil(t, res.Documents[0].Bill.TotalAmount)
	assert.False(t, res.DocumentValidations[0].IsValid)

	assert.Equal(t, constants.Other, res.Documents[1].Type)
	require.NotNil(t, res.Documents[1].Other.ContentSummary)
	assert.Equal(t, "flaky text that is long enough", *res.Documents[1].Other.ContentSummary)
}

func TestProcessClaim_UnauthorizedAborts(t *testing.T) {
	stage := &fakeStage{classifyFn: func(string) (constants.DocType, error) {
		return constants.Other, fmt.Errorf("%w: status 401", llm.ErrUnauthorized)
	}}
	p := NewProcessor(quiet, &fakeExtractor{}, stage, 1)

	_, err := p.ProcessClaim(context.Background(), []ingest.Upload{{Name: "bill.pdf", Data: pdf("bill")}})
	assert.ErrorIs(t, err, llm.ErrUnauthorized)
}

func TestProcessClaim_WithoutModel(t *testing.T) {
	p := NewProcessor(quiet, &fakeExtractor{}, nil, 1)

	res, err := p.ProcessClaim(context.Background(), []ingest.Upload{{Name: "bill.pdf", Data: pdf("bill City Hospital")}})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, constants.Other, res.Documents[0].Type)
	assert.Equal(t, "bill City Hospital", *res.Documents[0].Other.ContentSummary)
	assert.Equal(t, []string{"bill", "discharge_summary"}, res.Validation.MissingDocuments)
}

func TestProcessClaim_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewProcessor(quiet, &fakeExtractor{delay: time.Second}, &fakeStage{}, 1)

	_, err := p.ProcessClaim(ctx, []ingest.Upload{{Name: "bill.pdf", Data: pdf("bill")}})
	assert.ErrorIs(t, err, context.Canceled)
}
