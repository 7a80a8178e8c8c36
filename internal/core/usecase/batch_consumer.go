package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
	"github.com/rmacedo/fiscal-audit-service/internal/core/ports"
)

// StorageKey is the staging location of one uploaded document.
func StorageKey(batchID, documentID string) string {
	return batchID + "/" + documentID
}

// BatchConsumer is the worker-side entry point: it loads a submitted
// batch from staging, runs the pipeline and persists the reports.
type BatchConsumer struct {
	storage   ports.ObjectStorage
	documents ports.DocumentRepository
	batches   ports.BatchReportRepository
	pipeline  ports.BatchProcessor
	logger    *slog.Logger
}

func NewBatchConsumer(
	storage ports.ObjectStorage,
	documents ports.DocumentRepository,
	batches ports.BatchReportRepository,
	pipeline ports.BatchProcessor,
	logger *slog.Logger,
) *BatchConsumer {
	return &BatchConsumer{
		storage:   storage,
		documents: documents,
		batches:   batches,
		pipeline:  pipeline,
		logger:    logger,
	}
}

func (c *BatchConsumer) Consume(ctx context.Context, batchID string) error {
	docs, err := c.documents.ListByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("list batch documents: %w", err)
	}
	if len(docs) == 0 {
		return domain.WrapError(domain.ErrNotFound, "consume batch", fmt.Errorf("batch %s has no documents", batchID))
	}

	inputs := make([]domain.RawInput, 0, len(docs))
	for _, doc := range docs {
		if doc.Status != domain.StatusPending {
			continue
		}
		content, err := c.loadContent(ctx, batchID, doc.ID)
		if err != nil {
			c.logger.ErrorContext(ctx, "load staged document",
				slog.String("document_id", doc.ID), slog.Any("error", err))
			if updErr := c.documents.UpdateStatus(ctx, doc.ID, domain.StatusFailed, err.Error()); updErr != nil {
				c.logger.WarnContext(ctx, "persist staging failure", slog.Any("error", updErr))
			}
			continue
		}
		inputs = append(inputs, domain.RawInput{
			ID:      doc.ID,
			Name:    doc.Name,
			Format:  doc.Format,
			Regime:  doc.Regime,
			Content: content,
		})
	}
	if len(inputs) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "consume batch", fmt.Errorf("batch %s has no runnable documents", batchID))
	}

	batch, err := c.pipeline.ProcessBatch(ctx, batchID, inputs)
	if err != nil {
		return fmt.Errorf("process batch: %w", err)
	}
	return c.persistReports(ctx, batch)
}

func (c *BatchConsumer) persistReports(ctx context.Context, batch *domain.BatchResult) error {
	for _, result := range batch.Results {
		payload, err := json.Marshal(BuildDocumentReport(result))
		if err != nil {
			return fmt.Errorf("marshal document report: %w", err)
		}
		if err := c.documents.SaveReport(ctx, result.Document.ID, payload); err != nil {
			return fmt.Errorf("save document report: %w", err)
		}
	}

	payload, err := json.Marshal(BuildBatchReport(batch))
	if err != nil {
		return fmt.Errorf("marshal batch report: %w", err)
	}
	if err := c.batches.SaveBatchReport(ctx, batch.BatchID, payload); err != nil {
		return fmt.Errorf("save batch report: %w", err)
	}
	return nil
}

func (c *BatchConsumer) loadContent(ctx context.Context, batchID, documentID string) ([]byte, error) {
	reader, err := c.storage.Open(ctx, StorageKey(batchID, documentID))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
