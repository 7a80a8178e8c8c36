package classify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
	"github.com/rmacedo/fiscal-audit-service/internal/core/ports"
)

const (
	baseConfidence    = 0.75
	perItemConfidence = 0.02
	maxCountedItems   = 5

	defaultTipo = "Operação Fiscal"
	defaultRamo = "Comércio Geral"
)

// cfopOperations maps known CFOP codes to the operation nature. Codes not
// listed fall back to the first-digit direction below.
var cfopOperations = map[string]string{
	"1102": "Compra para Comercialização",
	"2102": "Compra para Comercialização",
	"1202": "Devolução de Venda",
	"2202": "Devolução de Venda",
	"5102": "Venda de Mercadoria",
	"6102": "Venda de Mercadoria",
	"5202": "Devolução de Compra",
	"6202": "Devolução de Compra",
	"5901": "Remessa para Industrialização",
	"5915": "Remessa para Conserto",
	"6901": "Remessa para Industrialização",
}

// ncmSegments maps NCM chapter prefixes to business segments.
var ncmSegments = map[string]string{
	"85": "Tecnologia da Informação",
	"84": "Tecnologia da Informação",
	"30": "Saúde e Farmacêutico",
	"21": "Saúde e Farmacêutico",
	"02": "Alimentos e Bebidas",
	"16": "Alimentos e Bebidas",
}

// Classifier resolves the document category. Stored corrections take
// precedence over inference; the optional model is consulted only when
// rule-based inference stays below the confidence threshold.
type Classifier struct {
	corrections   ports.CorrectionStore
	model         ports.CategoryModel
	minConfidence float64
	logger        *slog.Logger
}

func NewClassifier(corrections ports.CorrectionStore, model ports.CategoryModel, minConfidence float64, logger *slog.Logger) *Classifier {
	return &Classifier{
		corrections:   corrections,
		model:         model,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

func (c *Classifier) Classify(ctx context.Context, data domain.DocumentData, name string) (domain.ClassificationResult, error) {
	fingerprint := Fingerprint(data)

	if c.corrections != nil {
		correction, err := c.corrections.GetByFingerprint(ctx, fingerprint)
		if err != nil && !domain.IsKind(err, domain.ErrNotFound) {
			return domain.ClassificationResult{}, domain.WrapError(domain.ErrTemporary, "lookup correction", err)
		}
		if correction != nil {
			c.logger.DebugContext(ctx, "classification corrected by feedback",
				slog.String("document", name),
				slog.Int64("correction_seq", correction.Seq))
			return c.describe(data, domain.ClassificationResult{
				Tipo:        correction.Tipo,
				Ramo:        correction.Ramo,
				Confidence:  1.0,
				Source:      domain.SourceCorrected,
				Fingerprint: fingerprint,
			}), nil
		}
	}

	result := c.infer(data)
	result.Fingerprint = fingerprint

	if result.Confidence < c.minConfidence && c.model != nil {
		tipo, ramo, confidence, err := c.model.Infer(ctx, data)
		if err != nil {
			c.logger.WarnContext(ctx, "category model unavailable, keeping rule inference",
				slog.String("document", name),
				slog.Any("error", err))
		} else if confidence >= c.minConfidence {
			result.Tipo = tipo
			result.Ramo = ramo
			result.Confidence = confidence
			result.Source = domain.SourceLearned
		}
	}

	if result.Confidence < c.minConfidence {
		result.Tipo = domain.UncertainCategory
		result.Ramo = domain.UncertainCategory
	}
	return c.describe(data, result), nil
}

// infer applies the CFOP operation map and NCM segment prefixes. The more
// items agree with the mapping, the higher the confidence.
func (c *Classifier) infer(data domain.DocumentData) domain.ClassificationResult {
	result := domain.ClassificationResult{
		Tipo:   defaultTipo,
		Ramo:   defaultRamo,
		Source: domain.SourceRuleMatched,
	}

	for _, item := range data.Itens {
		if op, ok := cfopOperations[item.CFOP]; ok {
			result.Tipo = op
			break
		}
		if op := directionFor(item.CFOP); op != "" {
			result.Tipo = op
		}
	}
	for _, item := range data.Itens {
		if len(item.NCM) >= 2 {
			if segment, ok := ncmSegments[item.NCM[:2]]; ok {
				result.Ramo = segment
				break
			}
		}
	}

	counted := len(data.Itens)
	if counted > maxCountedItems {
		counted = maxCountedItems
	}
	result.Confidence = baseConfidence + perItemConfidence*float64(counted)
	return result
}

// describe fills the contextual fields every result carries regardless of
// how the category was resolved.
func (c *Classifier) describe(data domain.DocumentData, result domain.ClassificationResult) domain.ClassificationResult {
	if data.Emitente != nil {
		result.Emitente = data.Emitente.Nome
	}
	if data.Destinatario != nil {
		result.Destinatario = data.Destinatario.Nome
	}
	if len(data.Itens) > 0 {
		result.CFOP = data.Itens[0].CFOP
		result.NCM = data.Itens[0].NCM
	}
	return result
}

func directionFor(cfop string) string {
	switch {
	case strings.HasPrefix(cfop, "1"), strings.HasPrefix(cfop, "2"), strings.HasPrefix(cfop, "3"):
		return "Entrada de Mercadoria"
	case strings.HasPrefix(cfop, "5"), strings.HasPrefix(cfop, "6"), strings.HasPrefix(cfop, "7"):
		return "Saída de Mercadoria"
	default:
		return ""
	}
}
