package fees_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus/fee-engine/fees"
)

func scholarship(id string, valueType fees.ValueType, value string) fees.ScholarshipDefinition {
	return fees.ScholarshipDefinition{
		ID:        fees.ScholarshipID(id),
		Name:      id,
		ValueType: valueType,
		Value:     fees.MustParseDecimal(value),
		IsActive:  true,
	}
}

func assignment(def fees.ScholarshipDefinition, from time.Time, until *time.Time) fees.ScholarshipAssignment {
	return fees.ScholarshipAssignment{
		ID:            "asg-" + string(def.ID),
		ScholarshipID: def.ID,
		StudentID:     "stu-1",
		EffectiveFrom: from,
		ExpiresAt:     until,
		Definition:    def,
	}
}

func TestApplyScholarships_Additive(t *testing.T) {
	// GIVEN: Base 1000, a fixed 50 award and a 10% award
	// WHEN: Applying both
	// THEN: Deduction is 50 + 100 = 150

	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	base := decimal.NewFromInt(1000)

	assignments := []fees.ScholarshipAssignment{
		assignment(scholarship("fixed-50", fees.ValueFixed, "50"), jan, nil),
		assignment(scholarship("merit-10", fees.ValuePercentage, "10"), jan, nil),
	}

	result := fees.ApplyScholarships(base, assignments, month(t, "2025-03"))

	assert.True(t, result.Deduction.Equal(decimal.NewFromInt(150)),
		"expected 150, got %s", result.Deduction)
	assert.Len(t, result.Applied, 2)
}

func TestApplyScholarships_WindowBoundaries(t *testing.T) {
	// GIVEN: An award effective Feb 10 and expiring Feb 20
	// WHEN: Checking adjacent months
	// THEN: It overlaps February only

	from := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)
	a := assignment(scholarship("short", fees.ValueFixed, "25"), from, &until)

	assert.False(t, a.ActiveIn(month(t, "2025-01")))
	assert.True(t, a.ActiveIn(month(t, "2025-02")))
	assert.False(t, a.ActiveIn(month(t, "2025-03")))
}

func TestApplyScholarships_SkipsInactiveDefinition(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	def := scholarship("revoked", fees.ValueFixed, "100")
	def.IsActive = false

	result := fees.ApplyScholarships(decimal.NewFromInt(500),
		[]fees.ScholarshipAssignment{assignment(def, jan, nil)}, month(t, "2025-02"))

	assert.True(t, result.Deduction.IsZero())
	assert.Empty(t, result.Applied)
}

func TestApplyScholarships_OpenEndedWindow(t *testing.T) {
	// Nil ExpiresAt means the award applies indefinitely.
	from := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	a := assignment(scholarship("open", fees.ValuePercentage, "50"), from, nil)

	assert.True(t, a.ActiveIn(month(t, "2030-12")))

	result := fees.ApplyScholarships(decimal.NewFromInt(200),
		[]fees.ScholarshipAssignment{a}, month(t, "2030-12"))

	require.Len(t, result.Applied, 1)
	assert.True(t, result.Deduction.Equal(decimal.NewFromInt(100)))
	assert.True(t, result.Applied[0].Deduction.Equal(decimal.NewFromInt(100)))
}
