package tax

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

func testTable() RateTable {
	table, err := ParseRateTable([]byte(`
version: "2026-08"
default_regime: simples_nacional
accounts:
  estoques: "1.1.05.001"
  fornecedores: "2.1.01.001"
  icms_recuperar: "1.1.09.002"
  pis_recuperar: "1.1.09.003"
  cofins_recuperar: "1.1.09.004"
  iss_pagar: "2.1.09.001"
  st_recolher: "2.1.09.002"
  iva_registro: "3.1.04.005"
  ajuste_arredondamento: "3.1.09.999"
regimes:
  simples_nacional:
    name: Simples Nacional
    aliquotas: {icms: "0.03", pis: "0.0065", cofins: "0.03", iss: "0.02", iva: "0.12"}
    iss_municipios: {SP: "0.02", RJ: "0.03", BH: "0.025"}
  lucro_real:
    name: Lucro Real
    aliquotas: {icms: "0.18", pis: "0.0165", cofins: "0.076", iss: "0.035", iva: "0.28"}
    iss_municipios: {SP: "0.035", RJ: "0.04", BH: "0.032"}
`))
	if err != nil {
		panic(err)
	}
	return table
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeApuresRegimeRates(t *testing.T) {
	calc := NewCalculator(testTable())
	data := domain.DocumentData{
		Itens: []domain.LineItem{{Valor: 600}, {Valor: 400}},
	}

	got, err := calc.Compute(data, "simples_nacional")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	want := map[domain.TaxKind]string{
		domain.TaxICMS:   "30",
		domain.TaxPIS:    "6.5",
		domain.TaxCOFINS: "30",
		domain.TaxISS:    "20",
		domain.TaxIVA:    "120",
	}
	for kind, expected := range want {
		tt := got.Totals[kind]
		if !tt.Applicable {
			t.Fatalf("%s should be applicable", kind)
		}
		if !tt.Amount.Equal(amount(expected)) {
			t.Fatalf("%s = %s, want %s", kind, tt.Amount, expected)
		}
	}
	if got.Regime != "Simples Nacional" {
		t.Fatalf("regime = %q", got.Regime)
	}
}

func TestComputeKeepsPostingsBalanced(t *testing.T) {
	calc := NewCalculator(testTable())
	data := domain.DocumentData{
		Itens: []domain.LineItem{{Valor: 100.185}, {Valor: 33.337}, {Valor: 0.01}},
	}

	got, err := calc.Compute(data, "lucro_real")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !got.DebitTotal().Equal(got.CreditTotal()) {
		t.Fatalf("debits %s != credits %s", got.DebitTotal(), got.CreditTotal())
	}
	if !got.Balanced(calc.SupplierAccount()) {
		t.Fatalf("postings not balanced against payable %s", got.PayableTotal)
	}
}

func TestNotApplicableDistinctFromComputedZero(t *testing.T) {
	calc := NewCalculator(testTable())
	data := domain.DocumentData{Itens: []domain.LineItem{{Valor: 100}}}

	got, err := calc.Compute(data, "simples_nacional")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	st := got.Totals[domain.TaxST]
	if st.Applicable {
		t.Fatalf("ST has no rate under simples_nacional, want not-applicable")
	}
	if !st.Amount.IsZero() {
		t.Fatalf("not-applicable amount must be zero, got %s", st.Amount)
	}
	if !got.Totals[domain.TaxICMS].Applicable {
		t.Fatalf("ICMS must stay applicable even when the amount could be zero")
	}
}

func TestMunicipalISSOverride(t *testing.T) {
	calc := NewCalculator(testTable())
	data := domain.DocumentData{
		Destinatario: &domain.Party{Municipio: "RJ"},
		Itens:        []domain.LineItem{{Valor: 1000}},
	}

	got, err := calc.Compute(data, "simples_nacional")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !got.Totals[domain.TaxISS].Amount.Equal(amount("30")) {
		t.Fatalf("iss = %s, want 30 (RJ override)", got.Totals[domain.TaxISS].Amount)
	}
}

func TestMunicipalISSOverrideWithMixedCaseTableKeys(t *testing.T) {
	table, err := ParseRateTable([]byte(`
version: v1
default_regime: simples_nacional
accounts:
  estoques: "1.1.05.001"
  fornecedores: "2.1.01.001"
  iss_pagar: "2.1.09.001"
  ajuste_arredondamento: "3.1.09.999"
regimes:
  simples_nacional:
    name: Simples Nacional
    aliquotas: {iss: "0.02"}
    iss_municipios: {"Rio de Janeiro": "0.03"}
`))
	if err != nil {
		t.Fatalf("ParseRateTable() error = %v", err)
	}
	calc := NewCalculator(table)
	data := domain.DocumentData{
		Destinatario: &domain.Party{Municipio: "Rio de Janeiro"},
		Itens:        []domain.LineItem{{Valor: 1000}},
	}

	got, err := calc.Compute(data, "simples_nacional")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !got.Totals[domain.TaxISS].Amount.Equal(amount("30")) {
		t.Fatalf("iss = %s, want 30 (mixed-case city key must still match)", got.Totals[domain.TaxISS].Amount)
	}
}

func TestShippedRateTableMunicipalOverrides(t *testing.T) {
	table, err := LoadRateTable("../../configs/rates.yaml")
	if err != nil {
		t.Fatalf("LoadRateTable() error = %v", err)
	}
	calc := NewCalculator(table)
	data := domain.DocumentData{
		Destinatario: &domain.Party{Municipio: "Rio de Janeiro"},
		Itens:        []domain.LineItem{{Valor: 1000}},
	}

	got, err := calc.Compute(data, "simples_nacional")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !got.Totals[domain.TaxISS].Amount.Equal(amount("30")) {
		t.Fatalf("iss = %s, want 30 via Rio de Janeiro override", got.Totals[domain.TaxISS].Amount)
	}
}

func TestUnknownRegimeFallsBackToDefault(t *testing.T) {
	calc := NewCalculator(testTable())
	data := domain.DocumentData{Itens: []domain.LineItem{{Valor: 100}}}

	got, err := calc.Compute(data, "regime_inexistente")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if got.Regime != "Simples Nacional" {
		t.Fatalf("regime = %q, want default", got.Regime)
	}
}

func TestRoundingDriftGetsAdjustmentEntry(t *testing.T) {
	calc := NewCalculator(testTable())

	// Per-tax amounts rounded independently drift 0.03 above the payable.
	totals := map[domain.TaxKind]domain.TaxTotal{
		domain.TaxICMS: {Amount: amount("10.03"), Applicable: true},
	}
	entries, adjusted, err := calc.buildEntries(amount("100"), amount("10.00"), totals)
	if err != nil {
		t.Fatalf("buildEntries() error = %v", err)
	}
	if !adjusted {
		t.Fatalf("expected rounding adjustment flag")
	}

	computation := domain.TaxComputation{
		Entries:      entries,
		PayableTotal: amount("100"),
	}
	if !computation.Balanced(calc.SupplierAccount()) {
		t.Fatalf("adjustment entry did not restore balance")
	}
	last := entries[len(entries)-1]
	if last.Historico != "Ajuste de arredondamento" {
		t.Fatalf("last entry = %+v, want adjustment", last)
	}
}

func TestRoundingDriftBeyondBoundFails(t *testing.T) {
	calc := NewCalculator(testTable())
	totals := map[domain.TaxKind]domain.TaxTotal{
		domain.TaxICMS: {Amount: amount("10.50"), Applicable: true},
	}
	_, _, err := calc.buildEntries(amount("100"), amount("10.00"), totals)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrLedgerImbalance) {
		t.Fatalf("expected ErrLedgerImbalance, got %v", err)
	}
}

func TestTaxesExceedingTotalFail(t *testing.T) {
	calc := NewCalculator(testTable())
	totals := map[domain.TaxKind]domain.TaxTotal{
		domain.TaxICMS: {Amount: amount("150"), Applicable: true},
	}
	_, _, err := calc.buildEntries(amount("100"), amount("150"), totals)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrLedgerImbalance) {
		t.Fatalf("expected ErrLedgerImbalance, got %v", err)
	}
}
