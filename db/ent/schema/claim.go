package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/db/ent/schema/utils"
)

// Claim is one processed claim. The full result is kept as JSON next to the
// columns the export filters and sorts on.
type Claim struct{ ent.Schema }

func (Claim) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "claims"},
	}
}

func (Claim) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			MaxLen(64).
			NotEmpty().
			Immutable(),
		field.String("status").
			SchemaType(map[string]string{dialect.Postgres: "varchar(16)"}).
			Validate(utils.EnumValidator(string(constants.ClaimApproved), string(constants.ClaimRejected))),
		field.Text("reason"),
		field.JSON("missing_documents", []string{}).
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.JSON("discrepancies", []string{}).
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.JSON("result", json.RawMessage{}).
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.Time("processed_at").
			Default(time.Now).
			SchemaType(map[string]string{dialect.Postgres: "timestamptz"}),
	}
}

func (Claim) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("documents", ClaimDocument.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

func (Claim) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("processed_at").StorageKey("claims_processed_at"),
	}
}
