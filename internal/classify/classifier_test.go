package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func saleDocument() domain.DocumentData {
	return domain.DocumentData{
		Emitente:     &domain.Party{Nome: "ACME Ltda", CNPJ: "12345678000199"},
		Destinatario: &domain.Party{Nome: "Cliente SA"},
		Itens: []domain.LineItem{
			{CFOP: "5102", NCM: "85044010", CST: "00", Valor: 1200},
			{CFOP: "5102", NCM: "85044090", CST: "00", Valor: 300},
		},
	}
}

func TestClassifyInfersFromCFOPAndNCM(t *testing.T) {
	classifier := NewClassifier(NewMemoryCorrectionStore(), nil, 0.55, discardLogger())

	got, err := classifier.Classify(context.Background(), saleDocument(), "nfe-001.xml")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Tipo != "Venda de Mercadoria" {
		t.Fatalf("tipo = %q", got.Tipo)
	}
	if got.Ramo != "Tecnologia da Informação" {
		t.Fatalf("ramo = %q", got.Ramo)
	}
	if got.Source != domain.SourceRuleMatched {
		t.Fatalf("source = %q", got.Source)
	}
	if math.Abs(got.Confidence-0.79) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.79 for two items", got.Confidence)
	}
}

func TestCorrectionTakesPrecedenceOverInference(t *testing.T) {
	store := NewMemoryCorrectionStore()
	classifier := NewClassifier(store, nil, 0.55, discardLogger())
	data := saleDocument()

	_, err := store.Append(context.Background(), domain.Correction{
		Fingerprint: Fingerprint(data),
		Tipo:        "Transferência entre Filiais",
		Ramo:        "Logística",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := classifier.Classify(context.Background(), data, "nfe-001.xml")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Tipo != "Transferência entre Filiais" || got.Ramo != "Logística" {
		t.Fatalf("correction not honored: %+v", got)
	}
	if got.Source != domain.SourceCorrected || got.Confidence != 1.0 {
		t.Fatalf("corrected results carry source=corrected confidence=1.0, got %+v", got)
	}
}

func TestLatestCorrectionWins(t *testing.T) {
	store := NewMemoryCorrectionStore()
	data := saleDocument()
	fp := Fingerprint(data)

	for _, tipo := range []string{"Primeira", "Segunda", "Terceira"} {
		if _, err := store.Append(context.Background(), domain.Correction{Fingerprint: fp, Tipo: tipo, Ramo: "X"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	latest, err := store.GetByFingerprint(context.Background(), fp)
	if err != nil {
		t.Fatalf("GetByFingerprint() error = %v", err)
	}
	if latest.Tipo != "Terceira" || latest.Seq != 3 {
		t.Fatalf("latest = %+v, want seq 3 Terceira", latest)
	}
}

func TestLowConfidenceFallsBackToUncertain(t *testing.T) {
	classifier := NewClassifier(NewMemoryCorrectionStore(), nil, 0.90, discardLogger())

	got, err := classifier.Classify(context.Background(), saleDocument(), "nfe-001.xml")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Tipo != domain.UncertainCategory || got.Ramo != domain.UncertainCategory {
		t.Fatalf("below-threshold result must be uncertain, got %+v", got)
	}
}

type stubModel struct {
	tipo, ramo string
	confidence float64
	err        error
}

func (m stubModel) Infer(context.Context, domain.DocumentData) (string, string, float64, error) {
	return m.tipo, m.ramo, m.confidence, m.err
}

func TestModelConsultedOnlyBelowThreshold(t *testing.T) {
	model := stubModel{tipo: "Importação Direta", ramo: "Comércio Exterior", confidence: 0.95}
	classifier := NewClassifier(NewMemoryCorrectionStore(), model, 0.90, discardLogger())

	got, err := classifier.Classify(context.Background(), saleDocument(), "nfe-001.xml")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Source != domain.SourceLearned || got.Tipo != "Importação Direta" {
		t.Fatalf("model inference not applied: %+v", got)
	}
}

func TestModelFailureKeepsRuleInference(t *testing.T) {
	model := stubModel{err: errors.New("model offline")}
	classifier := NewClassifier(NewMemoryCorrectionStore(), model, 0.90, discardLogger())

	got, err := classifier.Classify(context.Background(), saleDocument(), "nfe-001.xml")
	if err != nil {
		t.Fatalf("Classify() must not fail when the model is down, got %v", err)
	}
	if got.Tipo != domain.UncertainCategory {
		t.Fatalf("expected uncertain fallback, got %+v", got)
	}
}

func TestFingerprintIgnoresItemOrder(t *testing.T) {
	a := saleDocument()
	b := saleDocument()
	b.Itens[0], b.Itens[1] = b.Itens[1], b.Itens[0]

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("fingerprint must be item-order independent")
	}

	c := saleDocument()
	c.Itens[0].CFOP = "6102"
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("different fiscal shape must fingerprint differently")
	}
}
