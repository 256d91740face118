package fees

import "github.com/shopspring/decimal"

// =============================================================================
// MONTHLY PRORATION - snapshot item list -> base monthly amount
// =============================================================================

// MonthsPerYear and TermsPerYear drive the frequency smoothing below.
//
// TERM semantics: a TERM item's amount is a per-term amount. The school year
// has three terms, so the monthly portion is amount * 3 / 12. This resolves
// a long-standing ambiguity where per-term amounts were smoothed as if they
// were annual; the per-term reading is the one the domain owners confirmed.
const (
	MonthsPerYear = 12
	TermsPerYear  = 3
)

var (
	monthsPerYear = decimal.NewFromInt(MonthsPerYear)
	termsPerYear  = decimal.NewFromInt(TermsPerYear)
)

// ItemPortion is one prorated line of the monthly breakdown.
type ItemPortion struct {
	Category       string          `json:"category"`
	Label          string          `json:"label"`
	Frequency      Frequency       `json:"frequency"`
	Amount         decimal.Decimal `json:"amount"`
	MonthlyPortion decimal.Decimal `json:"monthly_portion"`
	IsOptional     bool            `json:"is_optional"`
}

// ProrationResult is the output of Prorate. Base is the unrounded sum of
// all monthly portions.
type ProrationResult struct {
	Base  decimal.Decimal
	Items []ItemPortion
}

// Prorate maps a structure version's item list to its base monthly amount
// and itemized breakdown for the given month.
//
// Per-frequency monthly portion:
//   - MONTHLY:  amount (charged every month in full)
//   - ANNUAL:   amount / 12
//   - TERM:     amount * TermsPerYear / 12
//   - ONE_TIME: 0 (not amortized here; listed in the breakdown with a zero
//     portion so statements remain self-contained)
//
// Pure and deterministic: identical inputs always produce identical output.
// No rounding happens here; see Round.
func Prorate(items []FeeItem, period Month) ProrationResult {
	result := ProrationResult{Base: decimal.Zero}

	for _, item := range items {
		portion := monthlyPortion(item)
		result.Base = result.Base.Add(portion)
		result.Items = append(result.Items, ItemPortion{
			Category:       item.Category,
			Label:          item.Label,
			Frequency:      item.Frequency,
			Amount:         item.Amount,
			MonthlyPortion: portion,
			IsOptional:     item.IsOptional,
		})
	}
	return result
}

func monthlyPortion(item FeeItem) decimal.Decimal {
	switch item.Frequency {
	case FreqMonthly:
		return item.Amount
	case FreqAnnual:
		return item.Amount.Div(monthsPerYear)
	case FreqTerm:
		return item.Amount.Mul(termsPerYear).Div(monthsPerYear)
	case FreqOneTime:
		return decimal.Zero
	default:
		return decimal.Zero
	}
}
