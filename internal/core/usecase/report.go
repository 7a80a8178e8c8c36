package usecase

import (
	"fmt"
	"strings"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// DocumentReport is the per-document wire contract served to clients.
type DocumentReport struct {
	DocumentID     string               `json:"documentId"`
	Title          string               `json:"title"`
	KPIs           []domain.KPI         `json:"kpis"`
	Classification ReportClassification `json:"classification"`
	Taxes          ReportTaxes          `json:"taxes"`
	Compliance     ReportCompliance     `json:"compliance"`
	Logs           []string             `json:"logs"`
}

type ReportClassification struct {
	Tipo       string  `json:"tipo"`
	Ramo       string  `json:"ramo"`
	Confidence float64 `json:"confidence"`
}

type ReportTaxes struct {
	Regime      string               `json:"regime"`
	Resumo      map[string]float64   `json:"resumo"`
	Lancamentos []domain.LedgerEntry `json:"lancamentos"`
}

type ReportCompliance struct {
	Score           float64                `json:"score"`
	Inconsistencies []domain.Inconsistency `json:"inconsistencies"`
}

// BatchReport is the consolidated batch contract: the compliance report
// plus every per-document report.
type BatchReport struct {
	BatchID    string                  `json:"batchId"`
	Compliance domain.ComplianceReport `json:"compliance"`
	Documents  []DocumentReport        `json:"documents"`
}

// resumoKinds fixes which tax kinds appear in the summary block.
var resumoKinds = []domain.TaxKind{
	domain.TaxICMS,
	domain.TaxPIS,
	domain.TaxCOFINS,
	domain.TaxISS,
	domain.TaxIVA,
}

// BuildDocumentReport flattens one document result into the wire shape.
func BuildDocumentReport(result domain.DocumentResult) DocumentReport {
	report := DocumentReport{
		DocumentID: result.Document.ID,
		Title:      result.Document.Name,
		KPIs:       buildKPIs(result),
		Compliance: ReportCompliance{
			Score:           result.Score,
			Inconsistencies: result.Inconsistencies,
		},
		Logs: buildLogs(result.Events),
	}

	if result.Classification != nil {
		report.Classification = ReportClassification{
			Tipo:       result.Classification.Tipo,
			Ramo:       result.Classification.Ramo,
			Confidence: result.Classification.Confidence,
		}
	}
	if result.Taxes != nil {
		resumo := make(map[string]float64, len(resumoKinds))
		for _, kind := range resumoKinds {
			total := result.Taxes.Totals[kind]
			if !total.Applicable {
				continue
			}
			resumo[strings.ToUpper(string(kind))], _ = total.Amount.Float64()
		}
		report.Taxes = ReportTaxes{
			Regime:      result.Taxes.Regime,
			Resumo:      resumo,
			Lancamentos: result.Taxes.Entries,
		}
	}
	// The wire field is an empty array, never null.
	if report.Compliance.Inconsistencies == nil {
		report.Compliance.Inconsistencies = []domain.Inconsistency{}
	}
	return report
}

// BuildBatchReport assembles the full batch contract.
func BuildBatchReport(batch *domain.BatchResult) BatchReport {
	report := BatchReport{
		BatchID:    batch.BatchID,
		Compliance: batch.Report,
		Documents:  make([]DocumentReport, 0, len(batch.Results)),
	}
	for _, result := range batch.Results {
		report.Documents = append(report.Documents, BuildDocumentReport(result))
	}
	return report
}

func buildKPIs(result domain.DocumentResult) []domain.KPI {
	kpis := []domain.KPI{
		{Label: "Valor dos Produtos", Value: result.Document.Data.TotalValue()},
		{Label: "Itens", Value: float64(len(result.Document.Data.Itens))},
		{Label: "Inconsistências", Value: float64(len(result.Inconsistencies))},
	}
	if result.Taxes != nil {
		payable, _ := result.Taxes.PayableTotal.Float64()
		kpis = append(kpis, domain.KPI{Label: "Total a Pagar", Value: payable})
	}
	return kpis
}

func buildLogs(events []domain.ProcessingEvent) []string {
	logs := make([]string, 0, len(events))
	for _, event := range events {
		line := fmt.Sprintf("[%s] %s %s (%dms)",
			event.Timestamp.UTC().Format("15:04:05.000"),
			event.Stage, event.Status, event.Duration.Milliseconds())
		if event.Detail != "" {
			line += ": " + event.Detail
		}
		logs = append(logs, line)
	}
	return logs
}
