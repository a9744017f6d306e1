package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const (
	claimsTable    = "claims"
	documentsTable = "claim_documents"
)

type columnTypes struct {
	json, timestamp, boolean string
}

func typesFor(d string) columnTypes {
	if d == dialect.Postgres {
		return columnTypes{json: "jsonb", timestamp: "timestamptz", boolean: "boolean"}
	}
	return columnTypes{json: "text", timestamp: "datetime", boolean: "boolean"}
}

// Migrate creates the claim tables when they do not exist yet.
func Migrate(ctx context.Context, db *DB) error {
	d := db.Dialect()
	b := entsql.Dialect(d)
	ct := typesFor(d)

	claims := b.CreateTable(claimsTable).IfNotExists().
		Columns(
			entsql.Column("id").Type("varchar(64)").Attr("NOT NULL"),
			entsql.Column("status").Type("varchar(16)").Attr("NOT NULL"),
			entsql.Column("reason").Type("text").Attr("NOT NULL"),
			entsql.Column("missing_documents").Type(ct.json).Attr("NOT NULL"),
			entsql.Column("discrepancies").Type(ct.json).Attr("NOT NULL"),
			entsql.Column("result").Type(ct.json).Attr("NOT NULL"),
			entsql.Column("processed_at").Type(ct.timestamp).Attr("NOT NULL"),
		).
		PrimaryKey("id")

	documents := b.CreateTable(documentsTable).IfNotExists().
		Columns(
			entsql.Column("claim_id").Type("varchar(64)").Attr("NOT NULL"),
			entsql.Column("ordinal").Type("integer").Attr("NOT NULL"),
			entsql.Column("source").Type("text").Attr("NOT NULL"),
			entsql.Column("doc_type").Type("varchar(32)").Attr("NOT NULL"),
			entsql.Column("fields").Type(ct.json).Attr("NOT NULL"),
			entsql.Column("is_valid").Type(ct.boolean).Attr("NOT NULL"),
			entsql.Column("errors").Type(ct.json).Attr("NOT NULL"),
			entsql.Column("warnings").Type(ct.json).Attr("NOT NULL"),
		).
		PrimaryKey("claim_id", "ordinal").
		ForeignKeys(
			entsql.ForeignKey().Columns("claim_id").
				Reference(entsql.Reference().Table(claimsTable).Columns("id")).
				OnDelete("CASCADE"),
		)

	index := b.CreateIndex("claims_processed_at").IfNotExists().
		Table(claimsTable).Columns("processed_at")

	for _, q := range []entsql.Querier{claims, documents, index} {
		query, args := q.Query()
		if err := db.Driver.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
