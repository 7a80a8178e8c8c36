package usecase

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// Module names of the consolidated report.
const (
	ModuleAudit          = "auditoria"
	ModuleTaxes          = "contabilidade"
	ModuleClassification = "classificacao"
	ModulePipeline       = "pipeline"
)

const weightTolerance = 1e-6

// DefaultModuleWeights reflects the relative weight of each stage in the
// consolidated compliance total.
func DefaultModuleWeights() map[string]float64 {
	return map[string]float64{
		ModuleAudit:          0.40,
		ModuleTaxes:          0.30,
		ModuleClassification: 0.20,
		ModulePipeline:       0.10,
	}
}

// Consolidator folds per-document results into the batch compliance
// report. Pure; safe for concurrent use.
type Consolidator struct {
	penalties map[domain.Severity]float64
	weights   map[string]float64
}

func NewConsolidator(penalties map[domain.Severity]float64, weights map[string]float64) (*Consolidator, error) {
	if len(weights) == 0 {
		weights = DefaultModuleWeights()
	}
	var sum float64
	for _, weight := range weights {
		if weight < 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "validate module weights", errors.New("negative weight"))
		}
		sum += weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate module weights",
			fmt.Errorf("weights sum to %.8f, want 1", sum))
	}
	return &Consolidator{penalties: penalties, weights: weights}, nil
}

// DocumentScore maps inconsistencies to a [0,1] score by subtracting the
// per-severity penalty for each finding.
func (c *Consolidator) DocumentScore(inconsistencies []domain.Inconsistency) float64 {
	score := 1.0
	for _, inc := range inconsistencies {
		score -= c.penalties[inc.Severity]
	}
	if score < 0 {
		return 0
	}
	return score
}

// Consolidate aggregates document results into module scores and the
// weighted total. The outcome does not depend on the order results
// arrived in.
func (c *Consolidator) Consolidate(results []domain.DocumentResult) domain.ComplianceReport {
	out := domain.ComplianceReport{
		GeneratedAt: time.Now().UTC(),
		Modules:     make(map[string]domain.ModuleScore, len(c.weights)),
		Documents:   make([]domain.DocumentScore, 0, len(results)),
		Totals:      aggregateTotals(results),
	}

	var auditSum, confidenceSum float64
	var balanced, completed int
	for _, result := range results {
		auditSum += result.Score
		if result.Classification != nil {
			confidenceSum += result.Classification.Confidence
		}
		if result.Taxes != nil {
			balanced++
		}
		if result.Document.Status == domain.StatusCompleted {
			completed++
		}
		out.Documents = append(out.Documents, domain.DocumentScore{
			DocumentID:    result.Document.ID,
			Title:         result.Document.Name,
			ValorProdutos: result.Document.Data.TotalValue(),
			Score:         result.Score,
			Failed:        result.Document.Status == domain.StatusFailed,
		})
	}

	total := len(results)
	moduleScores := map[string]float64{
		ModuleAudit:          ratio(auditSum, total),
		ModuleTaxes:          ratio(float64(balanced), total),
		ModuleClassification: ratio(confidenceSum, total),
		ModulePipeline:       ratio(float64(completed), total),
	}
	// Summing in a fixed name order keeps the float total bit-identical
	// across runs; map iteration order would not.
	names := make([]string, 0, len(c.weights))
	for name := range c.weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		weight := c.weights[name]
		score := moduleScores[name]
		out.Modules[name] = domain.ModuleScore{Score: score, Weight: weight}
		out.Total += weight * score
	}

	sort.Slice(out.Documents, func(i, j int) bool {
		return out.Documents[i].DocumentID < out.Documents[j].DocumentID
	})
	return out
}

func aggregateTotals(results []domain.DocumentResult) map[string]float64 {
	totals := map[string]float64{"vNF": 0, "vProd": 0, "vICMS": 0, "vPIS": 0, "vCOFINS": 0}
	for _, result := range results {
		value := result.Document.Data.TotalValue()
		totals["vProd"] += value
		totals["vNF"] += value
		totals["vICMS"] += result.Document.Data.Impostos["icms"]
		totals["vPIS"] += result.Document.Data.Impostos["pis"]
		totals["vCOFINS"] += result.Document.Data.Impostos["cofins"]
	}
	return totals
}

func ratio(sum float64, total int) float64 {
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}
