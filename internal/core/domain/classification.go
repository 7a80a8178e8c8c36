package domain

import "time"

type ClassificationSource string

const (
	SourceRuleMatched ClassificationSource = "rule_matched"
	SourceLearned     ClassificationSource = "learned"
	SourceCorrected   ClassificationSource = "corrected"
)

// UncertainCategory is returned when inference confidence falls below the
// configured threshold.
const UncertainCategory = "Indefinido"

// ClassificationResult is the classifier stage output. Confidence is in
// [0,1]; corrections always carry 1.0.
type ClassificationResult struct {
	Tipo         string               `json:"tipo"`
	Ramo         string               `json:"ramo"`
	Confidence   float64              `json:"confidence"`
	Source       ClassificationSource `json:"source"`
	Fingerprint  string               `json:"fingerprint,omitempty"`
	Emitente     string               `json:"emitente,omitempty"`
	Destinatario string               `json:"destinatario,omitempty"`
	CFOP         string               `json:"cfop,omitempty"`
	NCM          string               `json:"ncm,omitempty"`
}

// Correction is a user-confirmed category for a document fingerprint.
// Corrections are append-only; the highest Seq for a fingerprint wins.
type Correction struct {
	Seq         int64     `json:"seq"`
	Fingerprint string    `json:"fingerprint"`
	Tipo        string    `json:"tipo"`
	Ramo        string    `json:"ramo"`
	CreatedAt   time.Time `json:"created_at"`
}
