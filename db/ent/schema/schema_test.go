package schema

import (
	"testing"

	"entgo.io/ent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/claims-processor/db/ent/schema/utils"
)

func fieldNames(fields []ent.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Descriptor().Name
	}
	return names
}

func TestClaimFields(t *testing.T) {
	assert.Equal(t, []string{
		"id", "status", "reason", "missing_documents", "discrepancies", "result", "processed_at",
	}, fieldNames(Claim{}.Fields()))
}

func TestClaimDocumentFields(t *testing.T) {
	assert.Equal(t, []string{
		"claim_id", "ordinal", "source", "doc_type", "fields", "is_valid", "errors", "warnings",
	}, fieldNames(ClaimDocument{}.Fields()))

	edges := ClaimDocument{}.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "claim", edges[0].Descriptor().Name)
	assert.Equal(t, "claim_id", edges[0].Descriptor().Field)
}

func TestEnumValidator(t *testing.T) {
	v := utils.EnumValidator("approved", "rejected")
	assert.NoError(t, v("approved"))
	assert.Error(t, v("pending"))
	assert.Error(t, v(""))
}
