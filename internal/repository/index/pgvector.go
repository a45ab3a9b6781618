package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// DefaultTable holds uploaded chunk records.
const DefaultTable = "docingest_chunks"

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PGVector stores records in a Postgres table with a pgvector column.
type PGVector struct {
	db    *sql.DB
	table string
	dim   int
}

// OpenPGVector connects to Postgres through the pgx stdlib driver and verifies the connection.
func OpenPGVector(ctx context.Context, dsn, table string, dim int) (*PGVector, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	pg, err := NewPGVector(sqlDB, table, dim)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return pg, nil
}

// NewPGVector wraps an open database. table must be a plain lowercase identifier.
func NewPGVector(sqlDB *sql.DB, table string, dim int) (*PGVector, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	return &PGVector{db: sqlDB, table: table, dim: dim}, nil
}

// Close releases the connection pool.
func (p *PGVector) Close() error { return p.db.Close() }

// Ping checks connectivity.
func (p *PGVector) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// EnsureSchema creates the vector extension and the records table if missing.
func (p *PGVector) EnsureSchema(ctx context.Context) error {
	for _, stmt := range p.schemaStatements() {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *PGVector) schemaStatements() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			source     TEXT NOT NULL,
			chunk_id   INTEGER NOT NULL,
			char_count INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.table, p.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, p.table, p.table),
	}
}

func (p *PGVector) upsertSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, source, chunk_id, char_count, chunk_text, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			chunk_id = EXCLUDED.chunk_id,
			char_count = EXCLUDED.char_count,
			chunk_text = EXCLUDED.chunk_text,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`, p.table)
}

func (p *PGVector) querySQL(filtered bool) string {
	where := ""
	if filtered {
		where = "WHERE source = $3"
	}
	return fmt.Sprintf(`
		SELECT id, source, chunk_id, char_count, chunk_text, embedding, embedding <=> $1 AS distance
		FROM %s
		%s
		ORDER BY distance ASC
		LIMIT $2
	`, p.table, where)
}

// Upsert writes records in a single transaction; an existing id is overwritten.
func (p *PGVector) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, p.upsertSQL())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if len(rec.Vector) != p.dim {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", rec.ID, &domain.DimMismatchError{Expected: p.dim, Actual: len(rec.Vector)})
		}
		m := rec.Metadata
		if _, err := stmt.ExecContext(ctx,
			rec.ID, m.Source, m.ChunkID, m.CharCount, m.ChunkText, pgvector.NewVector(rec.Vector),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Fetch returns a stored record by id.
func (p *PGVector) Fetch(ctx context.Context, id string) (domain.Record, error) {
	q := fmt.Sprintf(`SELECT id, source, chunk_id, char_count, chunk_text, embedding FROM %s WHERE id = $1`, p.table)

	var (
		rec domain.Record
		emb pgvector.Vector
	)
	err := p.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.Metadata.Source, &rec.Metadata.ChunkID, &rec.Metadata.CharCount, &rec.Metadata.ChunkText, &emb,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("fetch %s: %w", id, err)
	}
	rec.Vector = emb.Slice()
	return rec, nil
}

// Query returns the topK records closest to vector by cosine distance, best first.
// Score is cosine similarity.
func (p *PGVector) Query(ctx context.Context, vector []float32, topK int, filter domain.QueryFilter) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	args := []any{pgvector.NewVector(vector), topK}
	if filter.Source != "" {
		args = append(args, filter.Source)
	}

	rows, err := p.db.QueryContext(ctx, p.querySQL(filter.Source != ""), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", p.table, err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		var (
			m    domain.Match
			emb  pgvector.Vector
			dist float64
		)
		if err := rows.Scan(
			&m.ID, &m.Metadata.Source, &m.Metadata.ChunkID, &m.Metadata.CharCount, &m.Metadata.ChunkText, &emb, &dist,
		); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p.table, err)
		}
		m.Vector = emb.Slice()
		m.Score = 1 - dist
		out = append(out, m)
	}
	return out, rows.Err()
}
