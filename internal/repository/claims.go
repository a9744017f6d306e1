package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/claims"
	"github.com/joseph-ayodele/claims-processor/internal/common"
)

// ClaimSummary is one stored claim without its document bodies.
type ClaimSummary struct {
	ID               string
	Status           constants.ClaimStatus
	Reason           string
	ProcessedAt      time.Time
	DocumentTypes    []string
	MissingDocuments []string
	Discrepancies    []string
}

// DocumentRow is one stored document of a claim.
type DocumentRow struct {
	ClaimID  string
	Ordinal  int
	Source   string
	Type     constants.DocType
	Fields   json.RawMessage
	IsValid  bool
	Errors   []string
	Warnings []string
}

type ClaimRepository interface {
	Save(ctx context.Context, result claims.ClaimResult) error
	Get(ctx context.Context, id string) (*claims.ClaimResult, error)
	List(ctx context.Context, from, to time.Time) ([]ClaimSummary, error)
	ListDocuments(ctx context.Context, from, to time.Time) ([]DocumentRow, error)
}

type claimRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewClaimRepository(db *DB, logger *slog.Logger) ClaimRepository {
	return &claimRepo{
		db:     db,
		logger: logger,
	}
}

// Save stores a processed claim, replacing any earlier result with the same id.
func (r *claimRepo) Save(ctx context.Context, result claims.ClaimResult) error {
	if result.ClaimID == "" {
		return common.NewAppError("INVALID_INPUT", "claim id is required", common.ErrInvalidInput)
	}
	if result.ProcessedAt.IsZero() {
		result.ProcessedAt = time.Now()
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode claim %s: %w", result.ClaimID, err)
	}
	missing, _ := json.Marshal(nonNil(result.Validation.MissingDocuments))
	discrepancies, _ := json.Marshal(nonNil(result.Validation.Discrepancies))

	b := entsql.Dialect(r.db.Dialect())
	stmts := []entsql.Querier{
		b.Delete(documentsTable).Where(entsql.EQ("claim_id", result.ClaimID)),
		b.Delete(claimsTable).Where(entsql.EQ("id", result.ClaimID)),
		b.Insert(claimsTable).
			Columns("id", "status", "reason", "missing_documents", "discrepancies", "result", "processed_at").
			Values(result.ClaimID, string(result.Decision.Status), result.Decision.Reason,
				string(missing), string(discrepancies), string(body), result.ProcessedAt.UTC()),
	}

	if len(result.Documents) > 0 {
		ins := b.Insert(documentsTable).
			Columns("claim_id", "ordinal", "source", "doc_type", "fields", "is_valid", "errors", "warnings")
		for i, doc := range result.Documents {
			fields, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document %d of claim %s: %w", i, result.ClaimID, err)
			}
			v := validationAt(result.DocumentValidations, i, doc.Type)
			errs, _ := json.Marshal(nonNil(v.Errors))
			warns, _ := json.Marshal(nonNil(v.Warnings))
			ins.Values(result.ClaimID, i, doc.Source, string(doc.Type), string(fields), v.IsValid, string(errs), string(warns))
		}
		stmts = append(stmts, ins)
	}

	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		r.logger.Error("failed to begin claim transaction", "claim_id", result.ClaimID, "error", err)
		return common.NewAppError("DATABASE_ERROR", "failed to save claim", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	for _, st := range stmts {
		query, args := st.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			_ = tx.Rollback()
			r.logger.Error("failed to save claim", "claim_id", result.ClaimID, "error", err)
			return common.NewAppError("DATABASE_ERROR", "failed to save claim", fmt.Errorf("%w: %v", common.ErrDatabase, err))
		}
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("failed to commit claim", "claim_id", result.ClaimID, "error", err)
		return common.NewAppError("DATABASE_ERROR", "failed to save claim", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}

	r.logger.Info("saved claim", "claim_id", result.ClaimID, "status", result.Decision.Status, "documents", len(result.Documents))
	return nil
}

func (r *claimRepo) Get(ctx context.Context, id string) (*claims.ClaimResult, error) {
	b := entsql.Dialect(r.db.Dialect())
	query, args := b.Select("result").From(b.Table(claimsTable)).Where(entsql.EQ("id", id)).Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to get claim", "claim_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("claim %s not found", id), common.ErrNotFound)
	}
	var body []byte
	if err := rows.Scan(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	var out claims.ClaimResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode claim %s: %w", id, err)
	}
	return &out, nil
}

// List returns claims processed in [from, to), oldest first. A zero bound is open.
func (r *claimRepo) List(ctx context.Context, from, to time.Time) ([]ClaimSummary, error) {
	b := entsql.Dialect(r.db.Dialect())
	t := b.Table(claimsTable)
	sel := b.Select(t.C("id"), t.C("status"), t.C("reason"), t.C("processed_at"),
		t.C("missing_documents"), t.C("discrepancies"), t.C("result")).
		From(t).
		OrderBy(t.C("processed_at"), t.C("id"))
	if p := between(t.C("processed_at"), from, to); p != nil {
		sel.Where(p)
	}
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to list claims", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []ClaimSummary
	for rows.Next() {
		var (
			s                     ClaimSummary
			status                string
			missing, disc, result []byte
		)
		if err := rows.Scan(&s.ID, &status, &s.Reason, &s.ProcessedAt, &missing, &disc, &result); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		s.Status = constants.ClaimStatus(status)
		if err := json.Unmarshal(missing, &s.MissingDocuments); err != nil {
			return nil, fmt.Errorf("decode claim %s: %w", s.ID, err)
		}
		if err := json.Unmarshal(disc, &s.Discrepancies); err != nil {
			return nil, fmt.Errorf("decode claim %s: %w", s.ID, err)
		}
		var head struct {
			Documents []struct {
				Type string `json:"type"`
			} `json:"documents"`
		}
		if err := json.Unmarshal(result, &head); err != nil {
			return nil, fmt.Errorf("decode claim %s: %w", s.ID, err)
		}
		for _, d := range head.Documents {
			s.DocumentTypes = append(s.DocumentTypes, d.Type)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}

	r.logger.Debug("listed claims", "count", len(out))
	return out, nil
}

// ListDocuments returns the documents of claims processed in [from, to), grouped by claim.
func (r *claimRepo) ListDocuments(ctx context.Context, from, to time.Time) ([]DocumentRow, error) {
	b := entsql.Dialect(r.db.Dialect())
	c := b.Table(claimsTable)
	d := b.Table(documentsTable)
	sel := b.Select(d.C("claim_id"), d.C("ordinal"), d.C("source"), d.C("doc_type"),
		d.C("fields"), d.C("is_valid"), d.C("errors"), d.C("warnings")).
		From(d).
		Join(c).On(d.C("claim_id"), c.C("id")).
		OrderBy(c.C("processed_at"), d.C("claim_id"), d.C("ordinal"))
	if p := between(c.C("processed_at"), from, to); p != nil {
		sel.Where(p)
	}
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to list claim documents", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var (
			row                 DocumentRow
			docType             string
			fields, errs, warns []byte
		)
		if err := rows.Scan(&row.ClaimID, &row.Ordinal, &row.Source, &docType, &fields, &row.IsValid, &errs, &warns); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		row.Type = constants.DocType(docType)
		row.Fields = json.RawMessage(fields)
		if err := json.Unmarshal(errs, &row.Errors); err != nil {
			return nil, fmt.Errorf("decode document %s/%d: %w", row.ClaimID, row.Ordinal, err)
		}
		if err := json.Unmarshal(warns, &row.Warnings); err != nil {
			return nil, fmt.Errorf("decode document %s/%d: %w", row.ClaimID, row.Ordinal, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func between(col string, from, to time.Time) *entsql.Predicate {
	var ps []*entsql.Predicate
	if !from.IsZero() {
		ps = append(ps, entsql.GTE(col, from.UTC()))
	}
	if !to.IsZero() {
		ps = append(ps, entsql.LT(col, to.UTC()))
	}
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return ps[0]
	}
	return entsql.And(ps...)
}

func validationAt(vs []claims.ValidationResult, i int, t constants.DocType) claims.ValidationResult {
	if i < len(vs) {
		return vs[i]
	}
	return claims.ValidationResult{Type: t, IsValid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
