package tax

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// Plan-of-accounts keys expected in the rate table.
const (
	accountEstoques     = "estoques"
	accountFornecedores = "fornecedores"
	accountISSPagar     = "iss_pagar"
	accountIVARegistro  = "iva_registro"
	accountSTRecolher   = "st_recolher"
	accountAjuste       = "ajuste_arredondamento"
)

// computedKinds fixes the apuration order so postings are reproducible.
var computedKinds = []domain.TaxKind{
	domain.TaxICMS,
	domain.TaxPIS,
	domain.TaxCOFINS,
	domain.TaxISS,
	domain.TaxST,
	domain.TaxIVA,
}

var entryMemos = map[domain.TaxKind]string{
	domain.TaxICMS:   "Crédito ICMS",
	domain.TaxPIS:    "Crédito PIS",
	domain.TaxCOFINS: "Crédito COFINS",
	domain.TaxISS:    "Provisão ISS",
	domain.TaxST:     "Recolhimento ST",
	domain.TaxIVA:    "Ajuste IVA",
}

// maxRoundingAdjustment bounds the entry inserted when per-tax rounding
// drifts from the independently rounded payable total.
var maxRoundingAdjustment = decimal.RequireFromString("0.10")

// Calculator apures per-tax totals and builds balanced ledger postings
// from the configured rate table. Pure: every call derives everything
// from its inputs and the immutable table.
type Calculator struct {
	table RateTable
}

func NewCalculator(table RateTable) *Calculator {
	return &Calculator{table: table}
}

// Accounts exposes the plan-of-accounts codes (used by report assembly).
func (c *Calculator) Accounts() map[string]string { return c.table.Accounts }

// SupplierAccount is the account every posting settles against.
func (c *Calculator) SupplierAccount() string { return c.table.Accounts[accountFornecedores] }

// Compute produces the tax computation for one document under the given
// regime. The double-entry invariant is verified before returning: when
// rounding breaks it within the allowed bound an explicit adjustment
// entry is inserted and flagged; beyond the bound the computation fails
// with ErrLedgerImbalance.
func (c *Calculator) Compute(data domain.DocumentData, regime string) (domain.TaxComputation, error) {
	rates, ok := c.table.Regimes[strings.ToLower(regime)]
	if !ok {
		rates = c.table.Regimes[c.table.DefaultRegime]
	}

	total := decimal.Zero
	for _, item := range data.Itens {
		total = total.Add(decimal.NewFromFloat(item.Valor))
	}

	totals := make(map[domain.TaxKind]domain.TaxTotal, len(computedKinds))
	taxSum := decimal.Zero
	for _, kind := range computedKinds {
		rate, applicable := c.resolveRate(rates, kind, data)
		if !applicable {
			totals[kind] = domain.TaxTotal{Amount: decimal.Zero, Applicable: false}
			continue
		}
		amount := total.Mul(rate)
		totals[kind] = domain.TaxTotal{Amount: roundHalfUp(amount), Applicable: true}
		taxSum = taxSum.Add(amount)
	}

	computation := domain.TaxComputation{
		Regime:       rates.Name,
		Competencia:  time.Now().UTC().Format("2006-01"),
		Totals:       totals,
		PayableTotal: roundHalfUp(total),
	}

	entries, adjusted, err := c.buildEntries(total, taxSum, totals)
	if err != nil {
		return domain.TaxComputation{}, err
	}
	computation.Entries = entries
	computation.RoundingAdjusted = adjusted

	if !computation.Balanced(c.SupplierAccount()) {
		return domain.TaxComputation{}, domain.WrapError(
			domain.ErrLedgerImbalance, "verify postings", errors.New("debits and credits diverge"))
	}
	return computation, nil
}

// resolveRate looks the rate up for one kind, honoring municipal ISS
// overrides by destination city/UF.
func (c *Calculator) resolveRate(rates RegimeRates, kind domain.TaxKind, data domain.DocumentData) (decimal.Decimal, bool) {
	if kind == domain.TaxISS && data.Destinatario != nil {
		if rate, ok := rates.ISSMunicipios[strings.ToUpper(data.Destinatario.Municipio)]; ok {
			return rate, true
		}
		if rate, ok := rates.ISSMunicipios[strings.ToUpper(data.Destinatario.UF)]; ok {
			return rate, true
		}
	}
	rate, ok := rates.Aliquotas[kind]
	return rate, ok
}

func (c *Calculator) buildEntries(total, taxSum decimal.Decimal, totals map[domain.TaxKind]domain.TaxTotal) ([]domain.LedgerEntry, bool, error) {
	supplier := c.SupplierAccount()
	payable := roundHalfUp(total)

	net := roundHalfUp(total.Sub(taxSum))
	if net.IsNegative() {
		return nil, false, domain.WrapError(
			domain.ErrLedgerImbalance, "build postings", errors.New("tax total exceeds document total"))
	}

	entries := []domain.LedgerEntry{{
		Debito:    c.table.Accounts[accountEstoques],
		Credito:   supplier,
		Valor:     net,
		Historico: "Entrada de mercadorias (líquida de tributos)",
	}}
	componentSum := net

	for _, kind := range computedKinds {
		tt := totals[kind]
		if !tt.Applicable || tt.Amount.IsZero() {
			continue
		}
		entries = append(entries, domain.LedgerEntry{
			Debito:    c.debitAccount(kind),
			Credito:   supplier,
			Valor:     tt.Amount,
			Historico: entryMemos[kind],
		})
		componentSum = componentSum.Add(tt.Amount)
	}

	diff := payable.Sub(componentSum)
	if diff.IsZero() {
		return entries, false, nil
	}
	if diff.Abs().GreaterThan(maxRoundingAdjustment) {
		return nil, false, domain.WrapError(
			domain.ErrLedgerImbalance, "build postings",
			errors.New("rounding drift "+diff.String()+" exceeds adjustment bound"))
	}

	adjustment := domain.LedgerEntry{
		Valor:     diff.Abs(),
		Historico: "Ajuste de arredondamento",
	}
	if diff.IsPositive() {
		adjustment.Debito = c.table.Accounts[accountAjuste]
		adjustment.Credito = supplier
	} else {
		adjustment.Debito = supplier
		adjustment.Credito = c.table.Accounts[accountAjuste]
	}
	return append(entries, adjustment), true, nil
}

func (c *Calculator) debitAccount(kind domain.TaxKind) string {
	switch kind {
	case domain.TaxISS:
		return c.table.Accounts[accountISSPagar]
	case domain.TaxIVA:
		return c.table.Accounts[accountIVARegistro]
	case domain.TaxST:
		return c.table.Accounts[accountSTRecolher]
	default:
		return c.table.Accounts[string(kind)+"_recuperar"]
	}
}

// roundHalfUp quantizes to centavos with half-up rounding, matching the
// fiscal convention used across the rate tables.
func roundHalfUp(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return v.Neg().Round(2).Neg()
	}
	return v.Round(2)
}
