package usecase

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

func reportFixture() domain.DocumentResult {
	return domain.DocumentResult{
		Document: &domain.Document{
			ID:   "doc-1",
			Name: "nota-123.xml",
			Data: domain.DocumentData{
				Itens: []domain.LineItem{
					{CFOP: "5102", NCM: "85044010", Valor: 700},
					{CFOP: "5102", NCM: "85044010", Valor: 300},
				},
			},
		},
		Classification: &domain.ClassificationResult{
			Tipo:       "Venda de Mercadoria",
			Ramo:       "TI",
			Confidence: 0.79,
			Source:     domain.SourceRuleMatched,
		},
		Taxes: &domain.TaxComputation{
			Regime: "simples_nacional",
			Totals: map[domain.TaxKind]domain.TaxTotal{
				domain.TaxICMS: {Amount: decimal.NewFromFloat(30), Applicable: true},
				domain.TaxPIS:  {Amount: decimal.NewFromFloat(6.5), Applicable: true},
				domain.TaxST:   {Applicable: false},
			},
			PayableTotal: decimal.NewFromFloat(1036.5),
		},
		Events: []domain.ProcessingEvent{
			{Stage: StageExtract, Status: domain.StageCompleted, Duration: 12 * time.Millisecond},
			{Stage: StageAudit, Status: domain.StageCompleted, Duration: 3 * time.Millisecond},
		},
		Score: 0.95,
	}
}

func TestBuildDocumentReportShape(t *testing.T) {
	report := BuildDocumentReport(reportFixture())

	if report.DocumentID != "doc-1" || report.Title != "nota-123.xml" {
		t.Fatalf("header = %q %q", report.DocumentID, report.Title)
	}
	if report.Classification.Tipo != "Venda de Mercadoria" {
		t.Fatalf("classification = %+v", report.Classification)
	}
	if report.Taxes.Regime != "simples_nacional" {
		t.Fatalf("regime = %q", report.Taxes.Regime)
	}
	if got := report.Taxes.Resumo["ICMS"]; got != 30 {
		t.Fatalf("resumo ICMS = %v", got)
	}
	if _, present := report.Taxes.Resumo["ST"]; present {
		t.Fatalf("not-applicable tax leaked into resumo: %+v", report.Taxes.Resumo)
	}
	if report.Compliance.Score != 0.95 {
		t.Fatalf("score = %v", report.Compliance.Score)
	}
	if len(report.Logs) != 2 || !strings.Contains(report.Logs[0], "extract completed") {
		t.Fatalf("logs = %v", report.Logs)
	}
}

func TestBuildDocumentReportKPIs(t *testing.T) {
	report := BuildDocumentReport(reportFixture())

	want := map[string]float64{
		"Valor dos Produtos": 1000,
		"Itens":              2,
		"Inconsistências":    0,
		"Total a Pagar":      1036.5,
	}
	if len(report.KPIs) != len(want) {
		t.Fatalf("kpis = %+v", report.KPIs)
	}
	for _, kpi := range report.KPIs {
		if want[kpi.Label] != kpi.Value {
			t.Fatalf("kpi %q = %v, want %v", kpi.Label, kpi.Value, want[kpi.Label])
		}
	}
}

func TestBuildDocumentReportInconsistenciesNeverNull(t *testing.T) {
	result := reportFixture()
	result.Inconsistencies = nil

	report := BuildDocumentReport(result)
	if report.Compliance.Inconsistencies == nil {
		t.Fatal("inconsistencies must be an empty slice")
	}
}

func TestBuildBatchReportCollectsDocuments(t *testing.T) {
	batch := &domain.BatchResult{
		BatchID: "batch-1",
		Results: []domain.DocumentResult{reportFixture()},
		Report:  domain.ComplianceReport{Total: 0.9},
	}

	report := BuildBatchReport(batch)
	if report.BatchID != "batch-1" || len(report.Documents) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Compliance.Total != 0.9 {
		t.Fatalf("total = %v", report.Compliance.Total)
	}
}
