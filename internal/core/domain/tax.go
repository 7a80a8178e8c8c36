package domain

import "github.com/shopspring/decimal"

// TaxTotal is the computed amount for one tax kind. Applicable
// distinguishes "no rate configured for this regime" from a computed zero.
type TaxTotal struct {
	Amount     decimal.Decimal `json:"amount"`
	Applicable bool            `json:"applicable"`
}

// LedgerEntry is a double-entry posting: Valor is debited to Debito and
// credited to Credito.
type LedgerEntry struct {
	Debito    string          `json:"debito"`
	Credito   string          `json:"credito"`
	Valor     decimal.Decimal `json:"valor"`
	Historico string          `json:"historico"`
}

// TaxComputation is the accountant stage output. PayableTotal is the
// independently rounded gross amount owed to the supplier; the component
// entries must add up to it exactly, with at most one flagged rounding
// adjustment closing the gap.
type TaxComputation struct {
	Regime           string               `json:"regime"`
	Competencia      string               `json:"competencia"`
	Totals           map[TaxKind]TaxTotal `json:"totals"`
	Entries          []LedgerEntry        `json:"lancamentos"`
	PayableTotal     decimal.Decimal      `json:"payable_total"`
	RoundingAdjusted bool                 `json:"rounding_adjusted,omitempty"`
}

// DebitTotal sums the debit legs of all postings.
func (t TaxComputation) DebitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, entry := range t.Entries {
		total = total.Add(entry.Valor)
	}
	return total
}

// CreditTotal sums the credit legs of all postings.
func (t TaxComputation) CreditTotal() decimal.Decimal {
	total := decimal.Zero
	for _, entry := range t.Entries {
		total = total.Add(entry.Valor)
	}
	return total
}

// NetCreditedTo sums credits minus debits posted against one account.
func (t TaxComputation) NetCreditedTo(account string) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range t.Entries {
		if entry.Credito == account {
			total = total.Add(entry.Valor)
		}
		if entry.Debito == account {
			total = total.Sub(entry.Valor)
		}
	}
	return total
}

// Balanced reports whether the double-entry invariant holds: debit and
// credit grand totals match, and the net supplier credit equals the
// independently rounded PayableTotal.
func (t TaxComputation) Balanced(supplierAccount string) bool {
	if !t.DebitTotal().Equal(t.CreditTotal()) {
		return false
	}
	return t.NetCreditedTo(supplierAccount).Equal(t.PayableTotal)
}
