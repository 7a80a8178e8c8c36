package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
	"github.com/rmacedo/fiscal-audit-service/internal/core/ports"
)

// Stage names in execution order.
const (
	StageExtract  = "extract"
	StageAudit    = "audit"
	StageClassify = "classify"
	StageCompute  = "compute"
)

// StageMetrics receives pipeline observations. Implementations must be
// safe for concurrent use.
type StageMetrics interface {
	ObserveStage(stage string, duration time.Duration)
	DocumentDone(status domain.DocumentStatus)
	InFlight(delta int)
}

// PipelineConfig bounds one coordinator run.
type PipelineConfig struct {
	// Concurrency is the maximum number of documents in flight.
	Concurrency int
	// DocumentTimeout caps the wall time of one document's stage sequence.
	DocumentTimeout time.Duration
	// SlotTimeout caps how long intake waits for a free worker slot before
	// the whole batch fails.
	SlotTimeout time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.DocumentTimeout <= 0 {
		c.DocumentTimeout = 30 * time.Second
	}
	if c.SlotTimeout <= 0 {
		c.SlotTimeout = 5 * time.Minute
	}
	return c
}

// Pipeline coordinates the per-document stage sequence for a batch under a
// bounded worker pool. One document failing never aborts its siblings;
// only batch cancellation or slot starvation stops intake.
type Pipeline struct {
	extractor    ports.FieldExtractor
	auditor      ports.Auditor
	classifier   ports.Classifier
	taxes        ports.TaxComputer
	events       ports.EventSink
	documents    ports.DocumentRepository
	consolidator *Consolidator
	metrics      StageMetrics
	logger       *slog.Logger
	cfg          PipelineConfig
}

func NewPipeline(
	extractor ports.FieldExtractor,
	auditor ports.Auditor,
	classifier ports.Classifier,
	taxes ports.TaxComputer,
	events ports.EventSink,
	documents ports.DocumentRepository,
	consolidator *Consolidator,
	metrics StageMetrics,
	logger *slog.Logger,
	cfg PipelineConfig,
) *Pipeline {
	return &Pipeline{
		extractor:    extractor,
		auditor:      auditor,
		classifier:   classifier,
		taxes:        taxes,
		events:       events,
		documents:    documents,
		consolidator: consolidator,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg.withDefaults(),
	}
}

// ProcessBatch runs every input through the stage sequence and returns the
// consolidated batch result. Results are ordered by document id.
func (p *Pipeline) ProcessBatch(ctx context.Context, batchID string, inputs []domain.RawInput) (*domain.BatchResult, error) {
	cfg := p.cfg
	sem := semaphore.NewWeighted(int64(cfg.Concurrency))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]domain.DocumentResult, 0, len(inputs))
	)

	p.logger.InfoContext(ctx, "batch started",
		slog.String("batch_id", batchID),
		slog.Int("documents", len(inputs)),
		slog.Int("concurrency", cfg.Concurrency))

	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			// Cancellation stops intake; documents already running finish.
			break
		}

		slotCtx, cancel := context.WithTimeout(ctx, cfg.SlotTimeout)
		err := sem.Acquire(slotCtx, 1)
		cancel()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				break
			}
			return nil, domain.WrapError(domain.ErrTimeout, "acquire worker slot", err)
		}

		wg.Add(1)
		go func(input domain.RawInput) {
			defer wg.Done()
			defer sem.Release(1)

			if p.metrics != nil {
				p.metrics.InFlight(1)
				defer p.metrics.InFlight(-1)
			}

			result := p.processDocument(ctx, batchID, input)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(input)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Document.ID < results[j].Document.ID
	})

	batch := &domain.BatchResult{
		BatchID: batchID,
		Results: results,
		Report:  p.consolidator.Consolidate(results),
	}

	p.logger.InfoContext(ctx, "batch finished",
		slog.String("batch_id", batchID),
		slog.Int("processed", len(results)),
		slog.Float64("compliance_total", batch.Report.Total))
	return batch, nil
}

// processDocument runs the stage sequence for one input under its own
// deadline. Failures keep the outputs of stages that already completed.
func (p *Pipeline) processDocument(parent context.Context, batchID string, input domain.RawInput) domain.DocumentResult {
	ctx, cancel := context.WithTimeout(parent, p.cfg.DocumentTimeout)
	defer cancel()

	doc := &domain.Document{
		ID:        input.ID,
		BatchID:   batchID,
		Name:      input.Name,
		Format:    input.Format,
		Regime:    input.Regime,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	result := domain.DocumentResult{Document: doc}

	if err := p.runStage(ctx, &result, StageExtract, func() error {
		data, err := p.extractor.Extract(ctx, input)
		if err != nil {
			return err
		}
		doc.Data = data
		return nil
	}); err != nil {
		return p.fail(ctx, result, StageExtract, err)
	}
	p.advance(ctx, doc, domain.StatusExtracted)

	if err := p.runStage(ctx, &result, StageAudit, func() error {
		result.Inconsistencies = p.auditor.Evaluate(doc.Data, input.Regime)
		result.Score = p.consolidator.DocumentScore(result.Inconsistencies)
		return nil
	}); err != nil {
		return p.fail(ctx, result, StageAudit, err)
	}
	p.advance(ctx, doc, domain.StatusAudited)

	if err := p.runStage(ctx, &result, StageClassify, func() error {
		classification, err := p.classifier.Classify(ctx, doc.Data, doc.Name)
		if err != nil {
			return err
		}
		result.Classification = &classification
		return nil
	}); err != nil {
		return p.fail(ctx, result, StageClassify, err)
	}
	p.advance(ctx, doc, domain.StatusClassified)

	if err := p.runStage(ctx, &result, StageCompute, func() error {
		computation, err := p.taxes.Compute(doc.Data, input.Regime)
		if err != nil {
			return err
		}
		result.Taxes = &computation
		return nil
	}); err != nil {
		return p.fail(ctx, result, StageCompute, err)
	}
	p.advance(ctx, doc, domain.StatusComputed)

	p.advance(ctx, doc, domain.StatusCompleted)
	if p.metrics != nil {
		p.metrics.DocumentDone(domain.StatusCompleted)
	}
	return result
}

// runStage executes one stage, emitting the started and terminal events
// and honoring the per-document deadline.
func (p *Pipeline) runStage(ctx context.Context, result *domain.DocumentResult, stage string, run func() error) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrTimeout, stage, err)
	}

	p.emit(ctx, result, domain.ProcessingEvent{
		DocumentID: result.Document.ID,
		Stage:      stage,
		Status:     domain.StageStarted,
		Timestamp:  time.Now().UTC(),
	})

	start := time.Now()
	err := run()
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, elapsed)
	}

	if err == nil && ctx.Err() != nil {
		err = domain.WrapError(domain.ErrTimeout, stage, ctx.Err())
	}
	event := domain.ProcessingEvent{
		DocumentID: result.Document.ID,
		Stage:      stage,
		Status:     domain.StageCompleted,
		Duration:   elapsed,
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		event.Status = domain.StageFailed
		event.Detail = err.Error()
	}
	p.emit(ctx, result, event)
	return err
}

// fail marks the document failed, keeping whatever earlier stages
// produced.
func (p *Pipeline) fail(ctx context.Context, result domain.DocumentResult, stage string, err error) domain.DocumentResult {
	doc := result.Document
	doc.Status = domain.StatusFailed
	doc.FailureReason = err.Error()
	doc.UpdatedAt = time.Now().UTC()

	if p.documents != nil {
		if repoErr := p.documents.UpdateStatus(ctx, doc.ID, domain.StatusFailed, doc.FailureReason); repoErr != nil && !errors.Is(repoErr, context.Canceled) {
			p.logger.WarnContext(ctx, "persist failure status",
				slog.String("document_id", doc.ID), slog.Any("error", repoErr))
		}
	}
	if p.metrics != nil {
		p.metrics.DocumentDone(domain.StatusFailed)
	}

	p.logger.ErrorContext(ctx, "document failed",
		slog.String("document_id", doc.ID),
		slog.String("stage", stage),
		slog.Any("error", err))
	return result
}

func (p *Pipeline) advance(ctx context.Context, doc *domain.Document, status domain.DocumentStatus) {
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	if p.documents == nil {
		return
	}
	if err := p.documents.UpdateStatus(ctx, doc.ID, status, ""); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.WarnContext(ctx, "persist document status",
			slog.String("document_id", doc.ID),
			slog.String("status", string(status)),
			slog.Any("error", err))
	}
}

// emit appends the event to the result and the sink. Sink failures are
// logged, never fatal to the document.
func (p *Pipeline) emit(ctx context.Context, result *domain.DocumentResult, event domain.ProcessingEvent) {
	result.Events = append(result.Events, event)
	if p.events == nil {
		return
	}
	if err := p.events.Append(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "append processing event",
			slog.String("document_id", event.DocumentID),
			slog.String("stage", event.Stage),
			slog.Any("error", err))
	}
}
