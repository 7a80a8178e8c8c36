package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	name TEXT NOT NULL,
	format TEXT NOT NULL,
	regime TEXT,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL,
	failure_reason TEXT,
	report JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_batch ON documents(batch_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS batch_reports (
	batch_id TEXT PRIMARY KEY,
	report JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS classification_corrections (
	seq BIGSERIAL PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	tipo TEXT NOT NULL,
	ramo TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_corrections_fingerprint ON classification_corrections(fingerprint, seq DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	dataJSON, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("marshal document data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, batch_id, name, format, regime, data, status, failure_reason, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.BatchID, doc.Name, string(doc.Format), doc.Regime, dataJSON,
		string(doc.Status), doc.FailureReason, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, batch_id, name, format, regime, data, status, failure_reason, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, batch_id, name, format, regime, data, status, failure_reason, created_at, updated_at
FROM documents
WHERE batch_id = $1
ORDER BY id
`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, failureReason string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, failure_reason = $3, updated_at = $4
WHERE id = $1
`, id, string(status), failureReason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return notFoundWhenNoRows(result, "update document status", id)
}

func (r *DocumentRepository) SaveReport(ctx context.Context, id string, report []byte) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET report = $2, updated_at = $3
WHERE id = $1
`, id, report, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document report: %w", err)
	}
	return notFoundWhenNoRows(result, "save document report", id)
}

func (r *DocumentRepository) GetReport(ctx context.Context, id string) ([]byte, error) {
	var report []byte
	err := r.db.QueryRowContext(ctx, `SELECT report FROM documents WHERE id = $1`, id).Scan(&report)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document report", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document report: %w", err)
	}
	if len(report) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "get document report", fmt.Errorf("id %s has no report yet", id))
	}
	return report, nil
}

func (r *DocumentRepository) SaveBatchReport(ctx context.Context, batchID string, report []byte) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO batch_reports (batch_id, report, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (batch_id) DO UPDATE SET report = EXCLUDED.report
`, batchID, report, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save batch report: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetBatchReport(ctx context.Context, batchID string) ([]byte, error) {
	var report []byte
	err := r.db.QueryRowContext(ctx, `SELECT report FROM batch_reports WHERE batch_id = $1`, batchID).Scan(&report)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get batch report", fmt.Errorf("batch %s", batchID))
		}
		return nil, fmt.Errorf("scan batch report: %w", err)
	}
	return report, nil
}

func notFoundWhenNoRows(result sql.Result, operation, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id %s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc     domain.Document
		dataRaw []byte
		format  string
		status  string
	)
	err := row.Scan(
		&doc.ID, &doc.BatchID, &doc.Name, &format, &doc.Regime,
		&dataRaw, &status, &doc.FailureReason, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dataRaw, &doc.Data); err != nil {
		return nil, fmt.Errorf("unmarshal document data: %w", err)
	}
	doc.Format = domain.SourceFormat(format)
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}
