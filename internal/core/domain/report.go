package domain

import "time"

type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// ProcessingEvent records one stage transition for one document.
// Append-only; one writer per document-stage.
type ProcessingEvent struct {
	DocumentID string        `json:"document_id"`
	Stage      string        `json:"stage"`
	Status     StageStatus   `json:"status"`
	Duration   time.Duration `json:"duration_ns"`
	Timestamp  time.Time     `json:"timestamp"`
	Detail     string        `json:"detail,omitempty"`
}

// DocumentResult carries everything one document produced, complete or
// partial. A Failed document keeps the outputs of the stages that did run.
type DocumentResult struct {
	Document        *Document             `json:"document"`
	Inconsistencies []Inconsistency       `json:"inconsistencies"`
	Classification  *ClassificationResult `json:"classification,omitempty"`
	Taxes           *TaxComputation       `json:"taxes,omitempty"`
	Events          []ProcessingEvent     `json:"events"`
	Score           float64               `json:"score"`
}

type KPI struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ModuleScore is one weighted component of the consolidated report.
type ModuleScore struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// DocumentScore is the per-document line of the consolidated report.
type DocumentScore struct {
	DocumentID    string  `json:"documentId"`
	Title         string  `json:"title"`
	ValorProdutos float64 `json:"valorProdutos"`
	Score         float64 `json:"score"`
	Failed        bool    `json:"failed,omitempty"`
}

// ComplianceReport is the batch-level weighted aggregate.
// Invariant: Total == Σ(weight_i × score_i) with weights summing to 1±1e-6.
type ComplianceReport struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Total       float64                `json:"total"`
	Modules     map[string]ModuleScore `json:"modules"`
	Documents   []DocumentScore        `json:"docs"`
	Totals      map[string]float64     `json:"totals"`
}

// BatchResult is what one coordinator run returns.
type BatchResult struct {
	BatchID string           `json:"batch_id"`
	Results []DocumentResult `json:"results"`
	Report  ComplianceReport `json:"report"`
}
