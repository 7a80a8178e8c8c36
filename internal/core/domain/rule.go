package domain

type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

type TaxKind string

const (
	TaxCFOP   TaxKind = "cfop"
	TaxNCM    TaxKind = "ncm"
	TaxCST    TaxKind = "cst"
	TaxICMS   TaxKind = "icms"
	TaxPIS    TaxKind = "pis"
	TaxCOFINS TaxKind = "cofins"
	TaxISS    TaxKind = "iss"
	TaxST     TaxKind = "st"
	TaxIVA    TaxKind = "iva"
)

type PredicateKind string

const (
	PredCFOPInSet       PredicateKind = "cfop-in-set"
	PredCSTMatrix       PredicateKind = "cst-matrix"
	PredNCMFormat       PredicateKind = "ncm-format"
	PredNonNegativeItem PredicateKind = "non-negative-item"
	PredSTSensitive     PredicateKind = "st-sensitive-cfop"
	PredTaxTolerance    PredicateKind = "tax-tolerance"
	PredISSRange        PredicateKind = "iss-range"
	PredIVAMarkup       PredicateKind = "iva-markup"
)

// MarkupRange bounds the accepted IVA markup for a segment, as a fraction
// of the document total.
type MarkupRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Predicate is the declarative condition a rule evaluates. Only the fields
// relevant to Kind are populated; the evaluator interprets them, so the
// corpus stays data and can be versioned without recompilation.
type Predicate struct {
	Kind PredicateKind `yaml:"kind" json:"kind"`

	// Fields that must be present before evaluation. A missing one turns
	// into an ERROR inconsistency instead of aborting the run.
	Required []string `yaml:"required,omitempty" json:"required,omitempty"`

	Set           []string                `yaml:"set,omitempty" json:"set,omitempty"`
	Matrix        map[string][]string     `yaml:"matrix,omitempty" json:"matrix,omitempty"`
	Pattern       string                  `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Tax           string                  `yaml:"tax,omitempty" json:"tax,omitempty"`
	Tolerance     float64                 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	ExpectedRates map[string]float64      `yaml:"expected_rates,omitempty" json:"expected_rates,omitempty"`
	MinRates      map[string]float64      `yaml:"min_rates,omitempty" json:"min_rates,omitempty"`
	MaxRates      map[string]float64      `yaml:"max_rates,omitempty" json:"max_rates,omitempty"`
	Segments      map[string]MarkupRange  `yaml:"segments,omitempty" json:"segments,omitempty"`
}

// Rule is one normative check. Immutable once loaded.
type Rule struct {
	ID            string    `yaml:"id" json:"id"`
	Kind          TaxKind   `yaml:"kind" json:"kind"`
	Severity      Severity  `yaml:"severity" json:"severity"`
	Message       string    `yaml:"message" json:"message"`
	NormativeBase string    `yaml:"normative_base" json:"normative_base"`
	Regimes       []string  `yaml:"regimes,omitempty" json:"regimes,omitempty"`
	Predicate     Predicate `yaml:"predicate" json:"predicate"`
}

// AppliesTo reports whether the rule is in scope for the given regime.
// An empty Regimes list means all regimes.
func (r Rule) AppliesTo(regime string) bool {
	if len(r.Regimes) == 0 {
		return true
	}
	for _, candidate := range r.Regimes {
		if candidate == regime {
			return true
		}
	}
	return false
}

// RuleSet is a versioned, ordered rule corpus plus the scoring policy and
// the NCM-prefix segment table shared by segment-scoped predicates.
type RuleSet struct {
	Version           string               `yaml:"version" json:"version"`
	SeverityPenalties map[Severity]float64 `yaml:"severity_penalties" json:"severity_penalties"`
	SegmentPrefixes   map[string]string    `yaml:"segment_prefixes" json:"segment_prefixes"`
	Rules             []Rule               `yaml:"rules" json:"rules"`
}

// Inconsistency is one rule violation. Expected/Actual are preformatted so
// repeated evaluations of the same input are byte-identical.
type Inconsistency struct {
	RuleID        string   `json:"code"`
	Field         string   `json:"field"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
	NormativeBase string   `json:"normative_base,omitempty"`
	Expected      string   `json:"expected,omitempty"`
	Actual        string   `json:"actual,omitempty"`
}
