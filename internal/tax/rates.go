package tax

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// RegimeRates carries the rate configuration for one tax regime. A tax
// kind absent from Aliquotas is not applicable under the regime, which is
// different from a configured zero rate.
type RegimeRates struct {
	Name          string
	Aliquotas     map[domain.TaxKind]decimal.Decimal
	ISSMunicipios map[string]decimal.Decimal
}

// RateTable is the versioned, data-driven rate configuration loaded at
// batch start. Immutable once loaded.
type RateTable struct {
	Version       string
	DefaultRegime string
	Accounts      map[string]string
	Regimes       map[string]RegimeRates
}

type rawRegime struct {
	Name          string            `yaml:"name"`
	Aliquotas     map[string]string `yaml:"aliquotas"`
	ISSMunicipios map[string]string `yaml:"iss_municipios"`
}

type rawTable struct {
	Version       string               `yaml:"version"`
	DefaultRegime string               `yaml:"default_regime"`
	Accounts      map[string]string    `yaml:"accounts"`
	Regimes       map[string]rawRegime `yaml:"regimes"`
}

// LoadRateTable reads and validates a YAML rate table. Rates are parsed
// into decimals so apuration never goes through binary floats.
func LoadRateTable(path string) (RateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RateTable{}, fmt.Errorf("read rate table: %w", err)
	}
	return ParseRateTable(raw)
}

func ParseRateTable(raw []byte) (RateTable, error) {
	var decoded rawTable
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return RateTable{}, fmt.Errorf("decode rate table: %w", err)
	}
	if len(decoded.Regimes) == 0 {
		return RateTable{}, fmt.Errorf("rate table: no regimes configured")
	}
	if decoded.DefaultRegime == "" {
		return RateTable{}, fmt.Errorf("rate table: missing default_regime")
	}
	if _, ok := decoded.Regimes[decoded.DefaultRegime]; !ok {
		return RateTable{}, fmt.Errorf("rate table: default_regime %q not configured", decoded.DefaultRegime)
	}

	table := RateTable{
		Version:       decoded.Version,
		DefaultRegime: decoded.DefaultRegime,
		Accounts:      decoded.Accounts,
		Regimes:       make(map[string]RegimeRates, len(decoded.Regimes)),
	}
	for key, regime := range decoded.Regimes {
		rates := RegimeRates{
			Name:          regime.Name,
			Aliquotas:     make(map[domain.TaxKind]decimal.Decimal, len(regime.Aliquotas)),
			ISSMunicipios: make(map[string]decimal.Decimal, len(regime.ISSMunicipios)),
		}
		for kind, value := range regime.Aliquotas {
			rate, err := decimal.NewFromString(value)
			if err != nil {
				return RateTable{}, fmt.Errorf("rate table: regime %q tax %q: %w", key, kind, err)
			}
			rates.Aliquotas[domain.TaxKind(kind)] = rate
		}
		for city, value := range regime.ISSMunicipios {
			rate, err := decimal.NewFromString(value)
			if err != nil {
				return RateTable{}, fmt.Errorf("rate table: regime %q iss override %q: %w", key, city, err)
			}
			// Lookups uppercase the destination city/UF, so the table
			// keys must be uppercase regardless of how the file spells
			// them.
			rates.ISSMunicipios[strings.ToUpper(city)] = rate
		}
		table.Regimes[key] = rates
	}

	for _, account := range []string{accountEstoques, accountFornecedores, accountAjuste} {
		if table.Accounts[account] == "" {
			return RateTable{}, fmt.Errorf("rate table: missing account %q", account)
		}
	}
	return table, nil
}
