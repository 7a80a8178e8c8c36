package ports

import (
	"context"
	"io"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// FieldExtractor turns a raw source document into normalized fiscal
// fields. The core depends only on this contract, not on the recognition
// technology behind it.
type FieldExtractor interface {
	Extract(ctx context.Context, raw domain.RawInput) (domain.DocumentData, error)
}

// RuleSource loads a versioned rule corpus. Reload returns a fresh set and
// never mutates one already handed to a batch.
type RuleSource interface {
	Load(ctx context.Context) (domain.RuleSet, error)
}

// CorrectionStore is the durable fingerprint→category feedback store.
// Reads may run concurrently with classification; appends are serialized.
type CorrectionStore interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Correction, error)
	Append(ctx context.Context, correction domain.Correction) (int64, error)
}

// CategoryModel is the optional pluggable inference model consulted when
// rule-based mapping is inconclusive.
type CategoryModel interface {
	Infer(ctx context.Context, data domain.DocumentData) (tipo, ramo string, confidence float64, err error)
}

// EventSink receives append-only stage-transition records. Appends from
// concurrent documents must not interleave partial records.
type EventSink interface {
	Append(ctx context.Context, event domain.ProcessingEvent) error
}

// MessageQueue carries batch-submitted notifications from api to worker.
type MessageQueue interface {
	PublishBatchSubmitted(ctx context.Context, batchID string) error
	SubscribeBatchSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentRepository persists document state and per-document reports.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByBatch(ctx context.Context, batchID string) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, failureReason string) error
	SaveReport(ctx context.Context, id string, report []byte) error
	GetReport(ctx context.Context, id string) ([]byte, error)
}

// BatchReportRepository persists the consolidated batch report.
type BatchReportRepository interface {
	SaveBatchReport(ctx context.Context, batchID string, report []byte) error
	GetBatchReport(ctx context.Context, batchID string) ([]byte, error)
}

// ObjectStorage stages raw uploads between api and worker.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
