package rules

import (
	"reflect"
	"strings"
	"testing"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

func testRuleSet() domain.RuleSet {
	return domain.RuleSet{
		Version:           "test-1",
		SeverityPenalties: DefaultSeverityPenalties(),
		SegmentPrefixes:   map[string]string{"85": "Tecnologia da Informação"},
		Rules: []domain.Rule{
			{
				ID:       "CFOP_VALID",
				Kind:     domain.TaxCFOP,
				Severity: domain.SeverityError,
				Message:  "CFOP inexistente na tabela vigente",
				Predicate: domain.Predicate{
					Kind: domain.PredCFOPInSet,
					Set:  []string{"5102", "6102", "1102"},
				},
			},
			{
				ID:       "ITEM_VALOR_NEGATIVO",
				Kind:     domain.TaxCFOP,
				Severity: domain.SeverityError,
				Message:  "Item com valor negativo",
				Predicate: domain.Predicate{
					Kind: domain.PredNonNegativeItem,
				},
			},
			{
				ID:       "ICMS_BASE_CALC",
				Kind:     domain.TaxICMS,
				Severity: domain.SeverityError,
				Message:  "ICMS divergente da expectativa do regime",
				Predicate: domain.Predicate{
					Kind:          domain.PredTaxTolerance,
					Required:      []string{"itens", "impostos.icms"},
					Tax:           "icms",
					Tolerance:     0.05,
					ExpectedRates: map[string]float64{"simples_nacional": 0.03, "lucro_real": 0.18},
				},
			},
			{
				ID:       "IVA_MARKUP",
				Kind:     domain.TaxIVA,
				Severity: domain.SeverityInfo,
				Message:  "IVA fora da faixa de markup do segmento",
				Regimes:  []string{"lucro_real"},
				Predicate: domain.Predicate{
					Kind: domain.PredIVAMarkup,
					Segments: map[string]domain.MarkupRange{
						"Geral": {Min: 0.05, Max: 0.30},
					},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(testRuleSet())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestEngineReportsCorpusVersion(t *testing.T) {
	if got := newTestEngine(t).Version(); got != "test-1" {
		t.Fatalf("Version() = %q, want test-1", got)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := newTestEngine(t)
	data := domain.DocumentData{
		Itens: []domain.LineItem{
			{CFOP: "9999", Valor: -10},
			{CFOP: "5102", Valor: 100},
		},
		Impostos: map[string]float64{"icms": 50},
	}

	first := engine.Evaluate(data, "simples_nacional")
	second := engine.Evaluate(data, "simples_nacional")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("evaluation not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(first) == 0 {
		t.Fatalf("expected inconsistencies")
	}
}

func TestNegativeItemValueYieldsSingleErrorCitingCFOP(t *testing.T) {
	engine := newTestEngine(t)
	data := domain.DocumentData{
		Itens:    []domain.LineItem{{CFOP: "5102", Valor: -42.5}},
		Impostos: map[string]float64{"icms": 0},
	}

	incs := engine.Evaluate(data, "simples_nacional")

	var negative []domain.Inconsistency
	for _, inc := range incs {
		if inc.RuleID == "ITEM_VALOR_NEGATIVO" {
			negative = append(negative, inc)
		}
	}
	if len(negative) != 1 {
		t.Fatalf("expected exactly one negative-value inconsistency, got %d", len(negative))
	}
	if negative[0].Severity != domain.SeverityError {
		t.Fatalf("severity = %s, want ERROR", negative[0].Severity)
	}
	if !strings.Contains(negative[0].Actual, "5102") || !strings.Contains(negative[0].Actual, "-42.50") {
		t.Fatalf("actual %q does not cite the cfop/value pair", negative[0].Actual)
	}
}

func TestMissingRequiredFieldBecomesErrorInconsistency(t *testing.T) {
	engine := newTestEngine(t)
	data := domain.DocumentData{
		Itens: []domain.LineItem{{CFOP: "5102", Valor: 100}},
		// impostos.icms absent: the ICMS rule must degrade, not abort.
	}

	incs := engine.Evaluate(data, "simples_nacional")

	found := false
	for _, inc := range incs {
		if inc.RuleID == "ICMS_BASE_CALC" {
			found = true
			if inc.Severity != domain.SeverityError {
				t.Fatalf("severity = %s, want ERROR", inc.Severity)
			}
			if inc.Field != "impostos.icms" {
				t.Fatalf("field = %s, want impostos.icms", inc.Field)
			}
		}
	}
	if !found {
		t.Fatalf("expected a missing-field inconsistency for ICMS_BASE_CALC, got %+v", incs)
	}
}

func TestRegimeScopedRuleIsSkipped(t *testing.T) {
	engine := newTestEngine(t)
	data := domain.DocumentData{
		Itens:    []domain.LineItem{{CFOP: "5102", NCM: "10000000", Valor: 100}},
		Impostos: map[string]float64{"icms": 3, "iva": 500},
	}

	for _, inc := range engine.Evaluate(data, "simples_nacional") {
		if inc.RuleID == "IVA_MARKUP" {
			t.Fatalf("IVA_MARKUP is scoped to lucro_real, must not fire under simples_nacional")
		}
	}

	fired := false
	data.Impostos["icms"] = 18
	for _, inc := range engine.Evaluate(data, "lucro_real") {
		if inc.RuleID == "IVA_MARKUP" {
			fired = true
		}
	}
	if !fired {
		t.Fatalf("IVA_MARKUP should fire under lucro_real for out-of-range iva")
	}
}

func TestOneFieldMayTriggerMultipleRules(t *testing.T) {
	engine := newTestEngine(t)
	data := domain.DocumentData{
		Itens:    []domain.LineItem{{CFOP: "9999", Valor: -5}},
		Impostos: map[string]float64{"icms": 0},
	}

	incs := engine.Evaluate(data, "simples_nacional")
	seen := map[string]bool{}
	for _, inc := range incs {
		seen[inc.RuleID] = true
	}
	if !seen["CFOP_VALID"] || !seen["ITEM_VALOR_NEGATIVO"] {
		t.Fatalf("expected both CFOP_VALID and ITEM_VALOR_NEGATIVO to fire, got %+v", incs)
	}
}

func TestSameSeverityRunOrdersByRuleID(t *testing.T) {
	engine := newTestEngine(t)
	data := domain.DocumentData{
		Itens:    []domain.LineItem{{CFOP: "9999", Valor: -10}},
		Impostos: map[string]float64{"icms": 500},
	}

	incs := engine.Evaluate(data, "simples_nacional")

	ids := make([]string, 0, len(incs))
	for _, inc := range incs {
		ids = append(ids, inc.RuleID)
	}
	// All three fire at ERROR; the run is ordered by rule id even though
	// ITEM_VALOR_NEGATIVO is declared before ICMS_BASE_CALC.
	want := []string{"CFOP_VALID", "ICMS_BASE_CALC", "ITEM_VALOR_NEGATIVO"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("rule order = %v, want %v", ids, want)
	}
}

func TestDifferentSeverityRunsKeepDeclarationOrder(t *testing.T) {
	engine := newTestEngine(t)
	data := domain.DocumentData{
		Itens:    []domain.LineItem{{CFOP: "9999", NCM: "10000000", Valor: 100}},
		Impostos: map[string]float64{"icms": 90, "iva": 500},
	}

	incs := engine.Evaluate(data, "lucro_real")
	if len(incs) < 3 {
		t.Fatalf("expected error and info findings, got %+v", incs)
	}
	last := incs[len(incs)-1]
	if last.RuleID != "IVA_MARKUP" || last.Severity != domain.SeverityInfo {
		t.Fatalf("last finding = %+v, want the INFO rule declared last", last)
	}
	for _, inc := range incs[:len(incs)-1] {
		if inc.Severity != domain.SeverityError {
			t.Fatalf("error run interrupted by %+v", inc)
		}
	}
}

func TestTaxWithinToleranceIsSilent(t *testing.T) {
	engine := newTestEngine(t)
	data := domain.DocumentData{
		Itens:    []domain.LineItem{{CFOP: "5102", Valor: 1000}},
		Impostos: map[string]float64{"icms": 30.5},
	}

	for _, inc := range engine.Evaluate(data, "simples_nacional") {
		if inc.RuleID == "ICMS_BASE_CALC" {
			t.Fatalf("icms within tolerance should not fire: %+v", inc)
		}
	}
}

func TestParseRejectsBrokenCorpus(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing version", "rules: []"},
		{"duplicate id", "version: v1\nrules:\n  - {id: A, severity: WARN, predicate: {kind: ncm-format}}\n  - {id: A, severity: WARN, predicate: {kind: ncm-format}}"},
		{"bad severity", "version: v1\nrules:\n  - {id: A, severity: FATAL, predicate: {kind: ncm-format}}"},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.yaml)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
