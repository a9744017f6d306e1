package llm

import (
	"strings"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/retrieval"
)

// PromptTextChars bounds how much document text goes into an extraction prompt, and is the
// fallback size of the classification context.
const PromptTextChars = 2000

const SystemPrompt = "You are a highly reliable, detail-oriented assistant for medical insurance claim document processing. " +
	"Your job is to help classify, extract, and validate information from uploaded medical documents. " +
	"You must always follow these rules:\n" +
	"- Only respond with the requested information, in the format specified.\n" +
	"- If asked to classify, choose only from: bill, discharge_summary, id_card, other.\n" +
	"- If extracting data, be precise and never fabricate information.\n" +
	"- If information is missing or unclear, state so explicitly.\n" +
	"- Never include any patient data in your response except as found in the document.\n" +
	"- If you are unsure, respond with 'other' or 'unknown'.\n" +
	"- Be concise, accurate, and avoid speculation.\n" +
	"- Do not provide explanations unless explicitly asked.\n" +
	"- Always use the most up-to-date medical and insurance terminology.\n" +
	"- When extracting or structuring data, always use the following JSON format as a reference for your output, including only the fields relevant to the document type:\n" +
	`  For a bill: {"type": "bill", "hospital_name": ..., "total_amount": ..., "date_of_service": ...}` + "\n" +
	`  For a discharge summary: {"type": "discharge_summary", "patient_name": ..., "diagnosis": ..., "admission_date": ..., "discharge_date": ...}` + "\n" +
	`  For an id_card: {"type": "id_card", "patient_name": ..., "patient_id": ..., "insurance_provider": ..., "policy_number": ..., "validity_date": ...}` + "\n" +
	`  For other: {"type": "other", "content_summary": ...}` + "\n" +
	"- Do not include extra fields or explanations in your JSON output.\n"

const ClassifyPrompt = "Classify the above medical document as one of: bill, discharge_summary, id_card, other. " +
	"Respond with only the type."

// BuildClassifySystemPrompt appends the retrieved document context to the system prompt.
func BuildClassifySystemPrompt(indexed string) string {
	return SystemPrompt + "\n\n--- Indexed PDF Content ---\n" + indexed + "\n--- End ---"
}

const missingRule = " If a field is missing, use null. Do not include extra fields or explanations.\n\nDocument:\n"

// BuildExtractPrompt returns the user message asking for the fields of docType.
func BuildExtractPrompt(text string, docType constants.DocType) string {
	head := retrieval.Head(text, PromptTextChars)
	var b strings.Builder
	switch docType {
	case constants.Bill:
		b.WriteString("Extract ONLY the following fields from the medical bill document below as a JSON object. Use this format (replace values with those from the document): ")
		b.WriteString(`{"type": "bill", "hospital_name": "HOSPITAL_NAME", "patient_name": "PATIENT_NAME", "total_amount": 12345, "date_of_service": "2024-04-10"}`)
		b.WriteString(missingRule)
	case constants.DischargeSummary:
		b.WriteString("Extract ONLY the following fields from the discharge summary below as a JSON object. Use this format (replace values with those from the document): ")
		b.WriteString(`{"type": "discharge_summary", "patient_name": "PATIENT_NAME", "diagnosis": "DIAGNOSIS", "admission_date": "2024-04-01", "discharge_date": "2024-04-10"}`)
		b.WriteString(missingRule)
	case constants.IDCard:
		b.WriteString("Extract ONLY the following fields from the insurance ID card below as a JSON object. Use this format (replace values with those from the document): ")
		b.WriteString(`{"type": "id_card", "patient_name": "PATIENT_NAME", "patient_id": "ID", "insurance_provider": "PROVIDER", "policy_number": "POLICY", "validity_date": "2024-12-31"}`)
		b.WriteString(missingRule)
	default:
		b.WriteString(`Summarize the content of the following document in at least 100 words. Respond with a JSON object: {"type": "other", "content_summary": "SUMMARY"}. Do not include extra fields or explanations.`)
		b.WriteString("\n\nDocument:\n")
	}
	b.WriteString(head)
	return b.String()
}

// ParseDocType maps a classification reply to a document type; unknown replies are "other".
func ParseDocType(content string) constants.DocType {
	dt, _ := constants.Canonicalize(content)
	return dt
}
