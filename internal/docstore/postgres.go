package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres stores documents as jsonb rows in a single documents table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle. The schema comes from the embedded migrations.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Get loads one document.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, classify(err)
	}
	fields, err := decode(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Fields: fields}, nil
}

// Set replaces the document.
func (p *Postgres) Set(ctx context.Context, collection, id string, fields Fields) error {
	return p.Commit(ctx, NewBatch().Set(collection, id, fields))
}

// Update merges fields into the document.
func (p *Postgres) Update(ctx context.Context, collection, id string, fields Fields) error {
	return p.Commit(ctx, NewBatch().Update(collection, id, fields))
}

// Delete removes the document.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	return p.Commit(ctx, NewBatch().Delete(collection, id))
}

// Query scans a collection with jsonb comparisons.
func (p *Postgres) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	query, args, err := buildQuery(collection, filters)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, classify(err)
		}
		fields, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Document{ID: id, Fields: fields})
	}
	return out, classify(rows.Err())
}

func buildQuery(collection string, filters []Filter) (string, []any, error) {
	query := `SELECT id, data FROM documents WHERE collection = $1`
	args := []any{collection}
	for _, f := range filters {
		val, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, f.Field, string(val))
		field, value := len(args)-1, len(args)
		switch f.Op {
		case OpEq, OpLt, OpLte, OpGt, OpGte:
			op := string(f.Op)
			if f.Op == OpEq {
				op = "="
			}
			query += fmt.Sprintf(" AND (data -> $%d::text) %s $%d::jsonb", field, op, value)
		case OpNe:
			query += fmt.Sprintf(" AND (data -> $%d::text) IS DISTINCT FROM $%d::jsonb", field, value)
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return query + " ORDER BY id", args, nil
}

// Commit runs the batch in one transaction.
func (p *Postgres) Commit(ctx context.Context, b *Batch) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range b.ops {
		if err := applyPostgres(ctx, tx, o); err != nil {
			return err
		}
	}
	return classify(tx.Commit())
}

func applyPostgres(ctx context.Context, tx *sql.Tx, o op) error {
	switch o.kind {
	case opSet:
		data, err := json.Marshal(o.fields)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
		`, o.collection, o.id, string(data))
		return classify(err)
	case opUpdate:
		data, err := json.Marshal(o.fields)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
			WHERE collection = $1 AND id = $2
		`, o.collection, o.id, string(data))
		return affected(res, err, ErrNotFound)
	case opDelete:
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, o.collection, o.id)
		return classify(err)
	case opIncrement:
		res, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET data = jsonb_set(data, ARRAY[$3::text], to_jsonb(COALESCE((data ->> $3::text)::bigint, 0) + $4::bigint)),
			    updated_at = NOW()
			WHERE collection = $1 AND id = $2
		`, o.collection, o.id, o.field, o.delta)
		return affected(res, err, ErrNotFound)
	case opCreateUnique:
		data, err := json.Marshal(o.fields)
		if err != nil {
			return err
		}
		var key sql.NullString
		if k, ok := uniqueKey(o.fields, o.unique); ok {
			key = sql.NullString{String: strings.Join(o.unique, ",") + "|" + k, Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data, unique_key)
			VALUES ($1, $2, $3::jsonb, $4)
			ON CONFLICT DO NOTHING
		`, o.collection, o.id, string(data), key)
		return affected(res, err, ErrConflict)
	case opExpect:
		// FOR UPDATE holds the row until commit, so the checked value cannot change underneath.
		var raw []byte
		err := tx.QueryRowContext(ctx, `
			SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE
		`, o.collection, o.id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return classify(err)
		}
		cur, err := decode(raw)
		if err != nil {
			return err
		}
		if !Matches(cur, o.expectation()) {
			return ErrConflict
		}
		return nil
	}
	return fmt.Errorf("unknown batch op %d", o.kind)
}

func affected(res sql.Result, err error, none error) error {
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return none
	}
	return nil
}

// classify maps connection-level and serialization failures to ErrUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01":
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func decode(raw []byte) (Fields, error) {
	var fields Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

// Close closes the database handle.
func (p *Postgres) Close() error { return p.db.Close() }
