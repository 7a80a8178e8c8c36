package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rmacedo/fiscal-audit-service/internal/classify"
	"github.com/rmacedo/fiscal-audit-service/internal/config"
	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
	"github.com/rmacedo/fiscal-audit-service/internal/core/ports"
	"github.com/rmacedo/fiscal-audit-service/internal/core/usecase"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/eventlog"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/extractor"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/extractor/nfe"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/extractor/scanned"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/extractor/spreadsheet"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/ocr"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/queue/nats"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/repository/postgres"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/resilience"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/storage/localfs"
	"github.com/rmacedo/fiscal-audit-service/internal/observability/metrics"
	"github.com/rmacedo/fiscal-audit-service/internal/rules"
	"github.com/rmacedo/fiscal-audit-service/internal/tax"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Documents ports.DocumentRepository
	Batches   ports.BatchReportRepository
	Storage   ports.ObjectStorage

	Pipeline        ports.BatchProcessor
	Corrections     ports.CorrectionService
	Consumer        *usecase.BatchConsumer
	PipelineMetrics *metrics.PipelineMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	if err := documents.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	corrections := postgres.NewCorrectionRepository(db)

	storage, err := localfs.New(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ruleSet, err := rules.NewFileSource(cfg.RulesPath).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rule corpus: %w", err)
	}
	engine, err := rules.NewEngine(ruleSet)
	if err != nil {
		return nil, fmt.Errorf("build rule engine: %w", err)
	}
	logger.Info("rule corpus loaded",
		slog.String("version", engine.Version()),
		slog.Int("rules", len(ruleSet.Rules)))

	rateTable, err := tax.LoadRateTable(cfg.RatesPath)
	if err != nil {
		return nil, fmt.Errorf("load rate table: %w", err)
	}
	calculator := tax.NewCalculator(rateTable)

	classifier := classify.NewClassifier(corrections, nil, cfg.ClassifyMinConfidence, logger)

	ocrClient := ocr.New(cfg.OCRURL, ocr.Options{
		Language:       cfg.OCRLanguage,
		ResilienceExec: executor,
	})
	scannedExtractor := scanned.NewExtractor(ocrClient)
	tableExtractor := spreadsheet.NewExtractor()
	dispatcher := extractor.NewDispatcher(map[domain.SourceFormat]ports.FieldExtractor{
		domain.FormatNFeXML: nfe.NewExtractor(),
		domain.FormatCSV:    tableExtractor,
		domain.FormatXLSX:   tableExtractor,
		domain.FormatPDF:    scannedExtractor,
		domain.FormatImage:  scannedExtractor,
	})

	events, err := eventlog.NewJSONLSink(cfg.EventLogPath)
	if err != nil {
		return nil, fmt.Errorf("init event log: %w", err)
	}

	consolidator, err := usecase.NewConsolidator(engine.Penalties(), cfg.ModuleWeights())
	if err != nil {
		return nil, fmt.Errorf("build consolidator: %w", err)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(service)
	pipeline := usecase.NewPipeline(
		dispatcher, engine, classifier, calculator,
		events, documents, consolidator, pipelineMetrics, logger,
		usecase.PipelineConfig{
			Concurrency:     cfg.PipelineConcurrency,
			DocumentTimeout: time.Duration(cfg.DocumentTimeoutSeconds) * time.Second,
			SlotTimeout:     time.Duration(cfg.SlotTimeoutSeconds) * time.Second,
		},
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Documents: documents,
		Batches:   documents,
		Storage:   storage,

		Pipeline:        pipeline,
		Corrections:     usecase.NewCorrectionUsecase(corrections, logger),
		Consumer:        usecase.NewBatchConsumer(storage, documents, documents, pipeline, logger),
		PipelineMetrics: pipelineMetrics,

		closeFn: func() {
			queue.Close()
			_ = events.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
