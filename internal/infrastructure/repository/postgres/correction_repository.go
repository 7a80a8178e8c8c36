package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// CorrectionRepository is the durable append-only feedback store. Rows
// are never updated; the latest seq per fingerprint is authoritative.
type CorrectionRepository struct {
	db *sql.DB
}

func NewCorrectionRepository(db *sql.DB) *CorrectionRepository {
	return &CorrectionRepository{db: db}
}

func (r *CorrectionRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Correction, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT seq, fingerprint, tipo, ramo, created_at
FROM classification_corrections
WHERE fingerprint = $1
ORDER BY seq DESC
LIMIT 1
`, fingerprint)

	var correction domain.Correction
	err := row.Scan(&correction.Seq, &correction.Fingerprint, &correction.Tipo, &correction.Ramo, &correction.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get correction", fmt.Errorf("fingerprint %s", fingerprint))
		}
		return nil, fmt.Errorf("scan correction: %w", err)
	}
	return &correction, nil
}

func (r *CorrectionRepository) Append(ctx context.Context, correction domain.Correction) (int64, error) {
	createdAt := correction.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var seq int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO classification_corrections (fingerprint, tipo, ramo, created_at)
VALUES ($1, $2, $3, $4)
RETURNING seq
`, correction.Fingerprint, correction.Tipo, correction.Ramo, createdAt).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("insert correction: %w", err)
	}
	return seq, nil
}
