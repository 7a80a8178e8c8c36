package ports

import (
	"context"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// BatchProcessor drives a batch of raw documents through the full
// per-document stage sequence under the configured concurrency limit.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batchID string, inputs []domain.RawInput) (*domain.BatchResult, error)
}

// Auditor evaluates the rule corpus against extracted fields. Pure and
// order-deterministic.
type Auditor interface {
	Evaluate(data domain.DocumentData, regime string) []domain.Inconsistency
}

// Classifier infers the document category, corrections first.
type Classifier interface {
	Classify(ctx context.Context, data domain.DocumentData, name string) (domain.ClassificationResult, error)
}

// TaxComputer produces per-tax totals and balanced ledger postings.
type TaxComputer interface {
	Compute(data domain.DocumentData, regime string) (domain.TaxComputation, error)
}

// CorrectionService appends user feedback to the correction store.
type CorrectionService interface {
	Submit(ctx context.Context, fingerprint, tipo, ramo string) (domain.Correction, error)
}
