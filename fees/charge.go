package fees

import "github.com/shopspring/decimal"

// =============================================================================
// CHARGE COMPOSITION - additions on top of the payable
// =============================================================================

// AppliedCharge records one charge's contribution to the breakdown.
type AppliedCharge struct {
	ChargeID ChargeID        `json:"charge_id"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason,omitempty"`
}

// ChargeResult is the output of ApplyCharges.
type ChargeResult struct {
	Total   decimal.Decimal
	Applied []AppliedCharge
}

// ApplyCharges sums the materialized amount of every charge assignment whose
// applied month equals the target month and whose definition is active.
// Charges are independent of scholarships: the orchestrator adds them after
// scholarships have reduced the base, never before.
func ApplyCharges(assignments []ChargeAssignment, period Month) ChargeResult {
	result := ChargeResult{Total: decimal.Zero}

	for _, a := range assignments {
		if !a.AppliedMonth.Equal(period) || !a.Definition.IsActive {
			continue
		}
		result.Total = result.Total.Add(a.Amount)
		result.Applied = append(result.Applied, AppliedCharge{
			ChargeID: a.ChargeID,
			Name:     a.Definition.Name,
			Amount:   a.Amount,
			Reason:   a.Reason,
		})
	}
	return result
}
