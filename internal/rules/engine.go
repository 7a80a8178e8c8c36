package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

const defaultSegment = "Geral"

// Engine interprets a rule corpus against extracted document fields.
// Evaluation is pure: no state is mutated, and identical inputs always
// yield an identical ordered inconsistency list.
type Engine struct {
	set      domain.RuleSet
	patterns map[string]*regexp.Regexp
}

func NewEngine(set domain.RuleSet) (*Engine, error) {
	patterns := make(map[string]*regexp.Regexp)
	for _, rule := range set.Rules {
		if rule.Predicate.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(rule.Predicate.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: compile pattern: %w", rule.ID, err)
		}
		patterns[rule.ID] = re
	}
	return &Engine{set: set, patterns: patterns}, nil
}

// Version reports the corpus version the engine was built from.
func (e *Engine) Version() string { return e.set.Version }

// Penalties exposes the severity scoring policy of the loaded corpus.
func (e *Engine) Penalties() map[domain.Severity]float64 {
	return e.set.SeverityPenalties
}

// Evaluate runs every applicable rule in declaration order. Rules scoped
// to other regimes are skipped outright. A rule that cannot evaluate
// because a required field is absent contributes an ERROR inconsistency
// citing the field instead of aborting the run.
func (e *Engine) Evaluate(data domain.DocumentData, regime string) []domain.Inconsistency {
	out := make([]domain.Inconsistency, 0)
	for _, rule := range e.set.Rules {
		if !rule.AppliesTo(regime) {
			continue
		}
		if missing := firstMissingField(data, rule.Predicate.Required); missing != "" {
			out = append(out, domain.Inconsistency{
				RuleID:        rule.ID,
				Field:         missing,
				Severity:      domain.SeverityError,
				Message:       "campo obrigatório ausente para avaliação da regra",
				NormativeBase: rule.NormativeBase,
				Expected:      "campo presente",
				Actual:        "ausente",
			})
			continue
		}
		out = append(out, e.evalRule(rule, data, regime)...)
	}
	sortInconsistencies(out)
	return out
}

// sortInconsistencies keeps the declaration/item order produced above and
// orders each adjacent run of same-severity findings by rule id. Sorting
// whole runs instead of using one comparator keeps the ordering well
// defined: a comparator that returns false for different severities is
// not a strict weak ordering.
func sortInconsistencies(incs []domain.Inconsistency) {
	for start := 0; start < len(incs); {
		end := start + 1
		for end < len(incs) && incs[end].Severity == incs[start].Severity {
			end++
		}
		run := incs[start:end]
		sort.SliceStable(run, func(i, j int) bool {
			return run[i].RuleID < run[j].RuleID
		})
		start = end
	}
}

func (e *Engine) evalRule(rule domain.Rule, data domain.DocumentData, regime string) []domain.Inconsistency {
	switch rule.Predicate.Kind {
	case domain.PredCFOPInSet:
		return e.evalCFOPInSet(rule, data)
	case domain.PredCSTMatrix:
		return e.evalCSTMatrix(rule, data)
	case domain.PredNCMFormat:
		return e.evalNCMFormat(rule, data)
	case domain.PredNonNegativeItem:
		return e.evalNonNegativeItem(rule, data)
	case domain.PredSTSensitive:
		return e.evalSTSensitive(rule, data)
	case domain.PredTaxTolerance:
		return e.evalTaxTolerance(rule, data, regime)
	case domain.PredISSRange:
		return e.evalISSRange(rule, data, regime)
	case domain.PredIVAMarkup:
		return e.evalIVAMarkup(rule, data)
	default:
		return []domain.Inconsistency{{
			RuleID:        rule.ID,
			Field:         "predicate",
			Severity:      domain.SeverityError,
			Message:       "predicado desconhecido no corpus de regras",
			NormativeBase: rule.NormativeBase,
			Expected:      "predicado suportado",
			Actual:        string(rule.Predicate.Kind),
		}}
	}
}

func (e *Engine) evalCFOPInSet(rule domain.Rule, data domain.DocumentData) []domain.Inconsistency {
	valid := make(map[string]struct{}, len(rule.Predicate.Set))
	for _, cfop := range rule.Predicate.Set {
		valid[cfop] = struct{}{}
	}
	var out []domain.Inconsistency
	for i, item := range data.Itens {
		cfop := normalizeCFOP(item.CFOP)
		if cfop == "" {
			continue
		}
		if _, ok := valid[cfop]; !ok {
			out = append(out, e.issue(rule, itemField(i, "cfop"), "CFOP constante na tabela vigente", cfop))
		}
	}
	return out
}

func (e *Engine) evalCSTMatrix(rule domain.Rule, data domain.DocumentData) []domain.Inconsistency {
	var out []domain.Inconsistency
	for i, item := range data.Itens {
		cfop := normalizeCFOP(item.CFOP)
		allowed, ok := rule.Predicate.Matrix[cfop]
		if !ok || item.CST == "" {
			continue
		}
		if !contains(allowed, item.CST) {
			out = append(out, e.issue(rule, itemField(i, "cst"), strings.Join(allowed, ","), item.CST))
		}
	}
	return out
}

func (e *Engine) evalNCMFormat(rule domain.Rule, data domain.DocumentData) []domain.Inconsistency {
	re := e.patterns[rule.ID]
	var out []domain.Inconsistency
	for i, item := range data.Itens {
		if item.NCM == "" || re == nil {
			continue
		}
		if !re.MatchString(item.NCM) {
			out = append(out, e.issue(rule, itemField(i, "ncm"), rule.Predicate.Pattern, item.NCM))
		}
	}
	return out
}

func (e *Engine) evalNonNegativeItem(rule domain.Rule, data domain.DocumentData) []domain.Inconsistency {
	var out []domain.Inconsistency
	for i, item := range data.Itens {
		if item.Valor < 0 {
			actual := "cfop=" + normalizeCFOP(item.CFOP) + " valor=" + formatAmount(item.Valor)
			out = append(out, e.issue(rule, itemField(i, "valor"), "valor >= 0", actual))
		}
	}
	return out
}

func (e *Engine) evalSTSensitive(rule domain.Rule, data domain.DocumentData) []domain.Inconsistency {
	sensitive := make(map[string]struct{}, len(rule.Predicate.Set))
	for _, cfop := range rule.Predicate.Set {
		sensitive[cfop] = struct{}{}
	}
	var out []domain.Inconsistency
	for i, item := range data.Itens {
		cfop := normalizeCFOP(item.CFOP)
		if _, ok := sensitive[cfop]; ok {
			out = append(out, e.issue(rule, itemField(i, "cfop"), "apuração de substituição tributária", cfop))
		}
	}
	return out
}

func (e *Engine) evalTaxTolerance(rule domain.Rule, data domain.DocumentData, regime string) []domain.Inconsistency {
	rate, ok := rule.Predicate.ExpectedRates[regime]
	if !ok {
		return nil
	}
	total := data.TotalValue()
	expected := total * rate
	actual := data.Impostos[rule.Predicate.Tax]
	if expected == 0 && actual == 0 {
		return nil
	}
	band := expected * rule.Predicate.Tolerance
	if band < 0 {
		band = -band
	}
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	if diff <= band {
		return nil
	}
	return []domain.Inconsistency{e.issue(rule, "impostos."+rule.Predicate.Tax, formatAmount(expected), formatAmount(actual))}
}

func (e *Engine) evalISSRange(rule domain.Rule, data domain.DocumentData, regime string) []domain.Inconsistency {
	minRate, okMin := rule.Predicate.MinRates[regime]
	maxRate, okMax := rule.Predicate.MaxRates[regime]
	if !okMin || !okMax {
		return nil
	}
	actual := data.Impostos["iss"]
	if actual == 0 {
		return nil
	}
	total := data.TotalValue()
	lo, hi := total*minRate, total*maxRate
	if actual >= lo && actual <= hi {
		return nil
	}
	expected := "entre " + formatAmount(lo) + " e " + formatAmount(hi)
	return []domain.Inconsistency{e.issue(rule, "impostos.iss", expected, formatAmount(actual))}
}

func (e *Engine) evalIVAMarkup(rule domain.Rule, data domain.DocumentData) []domain.Inconsistency {
	actual := data.Impostos["iva"]
	if actual == 0 {
		return nil
	}
	segment := e.segmentFor(data)
	markup, ok := rule.Predicate.Segments[segment]
	if !ok {
		markup, ok = rule.Predicate.Segments[defaultSegment]
		if !ok {
			return nil
		}
	}
	total := data.TotalValue()
	lo, hi := total*markup.Min, total*markup.Max
	if actual >= lo && actual <= hi {
		return nil
	}
	expected := segment + ": entre " + formatAmount(lo) + " e " + formatAmount(hi)
	return []domain.Inconsistency{e.issue(rule, "impostos.iva", expected, formatAmount(actual))}
}

// segmentFor infers the business segment from the first item whose NCM
// prefix is present in the corpus segment table.
func (e *Engine) segmentFor(data domain.DocumentData) string {
	for _, item := range data.Itens {
		if len(item.NCM) < 2 {
			continue
		}
		if segment, ok := e.set.SegmentPrefixes[item.NCM[:2]]; ok {
			return segment
		}
	}
	return defaultSegment
}

func (e *Engine) issue(rule domain.Rule, field, expected, actual string) domain.Inconsistency {
	return domain.Inconsistency{
		RuleID:        rule.ID,
		Field:         field,
		Severity:      rule.Severity,
		Message:       rule.Message,
		NormativeBase: rule.NormativeBase,
		Expected:      expected,
		Actual:        actual,
	}
}

// firstMissingField resolves required field paths against the extracted
// data and returns the first absent one.
func firstMissingField(data domain.DocumentData, required []string) string {
	for _, path := range required {
		if !fieldPresent(data, path) {
			return path
		}
	}
	return ""
}

func fieldPresent(data domain.DocumentData, path string) bool {
	switch {
	case path == "itens":
		return len(data.Itens) > 0
	case path == "emitente":
		return data.Emitente != nil
	case path == "destinatario":
		return data.Destinatario != nil
	case strings.HasPrefix(path, "impostos."):
		_, ok := data.Impostos[strings.TrimPrefix(path, "impostos.")]
		return ok
	case strings.HasPrefix(path, "metadata."):
		_, ok := data.Metadata[strings.TrimPrefix(path, "metadata.")]
		return ok
	case path == "destinatario.municipio":
		return data.Destinatario != nil && data.Destinatario.Municipio != ""
	default:
		return true
	}
}

func normalizeCFOP(cfop string) string {
	return strings.ReplaceAll(strings.TrimSpace(cfop), ".", "")
}

func itemField(index int, name string) string {
	return "itens[" + strconv.Itoa(index) + "]." + name
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}
