package fees_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/campus/fee-engine/fees"
)

func charge(id, monthStr, amount string, t *testing.T) fees.ChargeAssignment {
	return fees.ChargeAssignment{
		ID:           "ca-" + id,
		ChargeID:     fees.ChargeID(id),
		StudentID:    "stu-1",
		AppliedMonth: month(t, monthStr),
		Amount:       fees.MustParseDecimal(amount),
		Definition:   fees.ChargeDefinition{ID: fees.ChargeID(id), Name: id, IsActive: true},
	}
}

func TestApplyCharges_SumsMatchingMonth(t *testing.T) {
	// GIVEN: Two charges in May and one in June
	// WHEN: Applying for May
	// THEN: Only the May charges count

	assignments := []fees.ChargeAssignment{
		charge("lab-fee", "2025-05", "15.50", t),
		charge("library-fine", "2025-05", "5.00", t),
		charge("trip", "2025-06", "40.00", t),
	}

	result := fees.ApplyCharges(assignments, month(t, "2025-05"))

	assert.True(t, result.Total.Equal(fees.MustParseDecimal("20.50")),
		"expected 20.50, got %s", result.Total)
	assert.Len(t, result.Applied, 2)
}

func TestApplyCharges_SkipsInactiveDefinition(t *testing.T) {
	c := charge("cancelled", "2025-05", "10.00", t)
	c.Definition.IsActive = false

	result := fees.ApplyCharges([]fees.ChargeAssignment{c}, month(t, "2025-05"))

	assert.True(t, result.Total.IsZero())
	assert.Empty(t, result.Applied)
}

func TestApplyCharges_NoAssignments(t *testing.T) {
	result := fees.ApplyCharges(nil, month(t, "2025-05"))
	assert.True(t, result.Total.Equal(decimal.Zero))
	assert.Empty(t, result.Applied)
}
