package schema

import (
	"encoding/json"

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

// ClaimDocument is one document of a claim with its validation outcome.
type ClaimDocument struct{ ent.Schema }

func (ClaimDocument) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "claim_documents"},
	}
}

func (ClaimDocument) Fields() []ent.Field {
	return []ent.Field{
		field.String("claim_id").MaxLen(64).NotEmpty(),
		field.Int("ordinal").NonNegative(),
		field.Text("source"),
		field.String("doc_type").
			SchemaType(map[string]string{dialect.Postgres: "varchar(32)"}).
			Validate(utils.EnumValidator(constants.AsStringSlice()...)),
		field.JSON("fields", json.RawMessage{}).
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.Bool("is_valid").Default(false),
		field.JSON("errors", []string{}).
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.JSON("warnings", []string{}).
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
	}
}

func (ClaimDocument) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("claim", Claim.Type).
			Ref("documents").
			Field("claim_id").
			Unique().
			Required(),
	}
}

func (ClaimDocument) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("claim_id", "ordinal").Unique(),
	}
}
