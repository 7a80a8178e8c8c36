package httpadapter

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
	"github.com/rmacedo/fiscal-audit-service/internal/core/ports"
	"github.com/rmacedo/fiscal-audit-service/internal/core/usecase"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/extractor"
	"github.com/rmacedo/fiscal-audit-service/internal/observability/metrics"
)

const maxUploadBytes = 64 << 20

type Router struct {
	processor   ports.BatchProcessor
	corrections ports.CorrectionService
	documents   ports.DocumentRepository
	batches     ports.BatchReportRepository
	storage     ports.ObjectStorage
	queue       ports.MessageQueue
	logger      *slog.Logger
	metrics     *metrics.HTTPServerMetrics
	service     string
}

func NewRouter(
	processor ports.BatchProcessor,
	corrections ports.CorrectionService,
	documents ports.DocumentRepository,
	batches ports.BatchReportRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	logger *slog.Logger,
	serverMetrics *metrics.HTTPServerMetrics,
	service string,
) *Router {
	return &Router{
		processor:   processor,
		corrections: corrections,
		documents:   documents,
		batches:     batches,
		storage:     storage,
		queue:       queue,
		logger:      logger,
		metrics:     serverMetrics,
		service:     service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/batches", rt.submitBatch)
	mux.HandleFunc("/v1/batches/", rt.getBatchReport)
	mux.HandleFunc("/v1/documents/", rt.getDocumentReport)
	mux.HandleFunc("/v1/corrections", rt.submitCorrection)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submitBatch accepts a multipart upload of fiscal documents. mode=sync
// processes inline and returns the consolidated report; the default async
// mode stages the files and hands the batch to the workers.
func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart payload"})
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}
	regime := strings.TrimSpace(r.FormValue("regime"))
	mode := strings.TrimSpace(r.FormValue("mode"))
	if mode == "" {
		mode = "async"
	}

	batchID := uuid.NewString()
	inputs := make([]domain.RawInput, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable upload " + header.Filename})
			return
		}
		content, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable upload " + header.Filename})
			return
		}
		inputs = append(inputs, domain.RawInput{
			ID:      uuid.NewString(),
			Name:    header.Filename,
			Format:  extractor.DetectFormat(header.Filename, content),
			Regime:  regime,
			Content: content,
		})
	}

	if rt.metrics != nil {
		rt.metrics.RecordBatchSubmitted(rt.service, mode, len(inputs))
	}

	switch mode {
	case "sync":
		rt.processSync(w, r, batchID, inputs)
	case "async":
		rt.enqueueAsync(w, r, batchID, inputs)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be sync or async"})
	}
}

func (rt *Router) processSync(w http.ResponseWriter, r *http.Request, batchID string, inputs []domain.RawInput) {
	batch, err := rt.processor.ProcessBatch(r.Context(), batchID, inputs)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (rt *Router) enqueueAsync(w http.ResponseWriter, r *http.Request, batchID string, inputs []domain.RawInput) {
	ctx := r.Context()
	now := time.Now().UTC()

	for _, input := range inputs {
		key := usecase.StorageKey(batchID, input.ID)
		if err := rt.storage.Save(ctx, key, bytes.NewReader(input.Content)); err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrTemporary, "stage upload", err))
			return
		}
		doc := &domain.Document{
			ID:        input.ID,
			BatchID:   batchID,
			Name:      input.Name,
			Format:    input.Format,
			Regime:    input.Regime,
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := rt.documents.Create(ctx, doc); err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrTemporary, "register document", err))
			return
		}
	}

	if err := rt.queue.PublishBatchSubmitted(ctx, batchID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":  batchID,
		"documents": len(inputs),
		"status":    "queued",
	})
}

func (rt *Router) getBatchReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	batchID := strings.TrimPrefix(r.URL.Path, "/v1/batches/")
	if batchID == "" || strings.Contains(batchID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch id is required"})
		return
	}

	report, err := rt.batches.GetBatchReport(r.Context(), batchID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, report)
}

func (rt *Router) getDocumentReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	report, err := rt.documents.GetReport(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, report)
}

func (rt *Router) submitCorrection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Fingerprint string `json:"fingerprint"`
		Tipo        string `json:"tipo"`
		Ramo        string `json:"ramo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	correction, err := rt.corrections.Submit(r.Context(), req.Fingerprint, req.Tipo, req.Ramo)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordCorrection(rt.service)
	}
	writeJSON(w, http.StatusCreated, correction)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		rt.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
