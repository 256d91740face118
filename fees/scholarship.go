package fees

import "github.com/shopspring/decimal"

// =============================================================================
// SCHOLARSHIP COMPOSITION - deductions against the structure base
// =============================================================================

var hundred = decimal.NewFromInt(100)

// AppliedScholarship records one scholarship's contribution to the breakdown,
// frozen with the definition's name and value at computation time.
type AppliedScholarship struct {
	ScholarshipID ScholarshipID   `json:"scholarship_id"`
	Name          string          `json:"name"`
	ValueType     ValueType       `json:"value_type"`
	Value         decimal.Decimal `json:"value"`
	Deduction     decimal.Decimal `json:"deduction"`
}

// ScholarshipResult is the output of ApplyScholarships.
type ScholarshipResult struct {
	Deduction decimal.Decimal
	Applied   []AppliedScholarship
}

// ApplyScholarships computes the total deduction for the month.
//
// An assignment counts iff its window overlaps the month (ActiveIn) and its
// definition is active. PERCENTAGE deducts base * value / 100; FIXED deducts
// the value as-is. Multiple active scholarships are ADDITIVE with no cap and
// no precedence: the total deduction can exceed the base. That is a
// deliberate policy decision, not an oversight.
func ApplyScholarships(base decimal.Decimal, assignments []ScholarshipAssignment, period Month) ScholarshipResult {
	result := ScholarshipResult{Deduction: decimal.Zero}

	for _, a := range assignments {
		if !a.ActiveIn(period) || !a.Definition.IsActive {
			continue
		}

		var deduction decimal.Decimal
		switch a.Definition.ValueType {
		case ValuePercentage:
			deduction = base.Mul(a.Definition.Value).Div(hundred)
		case ValueFixed:
			deduction = a.Definition.Value
		default:
			continue
		}

		result.Deduction = result.Deduction.Add(deduction)
		result.Applied = append(result.Applied, AppliedScholarship{
			ScholarshipID: a.ScholarshipID,
			Name:          a.Definition.Name,
			ValueType:     a.Definition.ValueType,
			Value:         a.Definition.Value,
			Deduction:     deduction,
		})
	}
	return result
}
