package fees_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus/fee-engine/fees"
	"github.com/campus/fee-engine/fees/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine() (*fees.Engine, *store.Memory) {
	mem := store.NewMemory()
	return fees.NewEngine(mem, mem, mem, mem, mem), mem
}

// seedClass creates a class with one structure version: monthly 100 +
// annual 1200, effective January 2025. Prorated base per month: 200.
func seedClass(t *testing.T, mem *store.Memory, classID string) fees.FeeStructureVersion {
	t.Helper()

	mem.AddClass(fees.Class{ID: fees.ClassID(classID), Name: classID})
	mem.SaveStructure(fees.FeeStructure{
		ID:           fees.StructureID("fs-" + classID),
		ClassID:      fees.ClassID(classID),
		AcademicYear: "2025",
		Name:         classID + " fees",
		Status:       fees.StructureActive,
	})
	v, err := mem.AppendStructureVersion(fees.FeeStructureVersion{
		StructureID:   fees.StructureID("fs-" + classID),
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ChangeReason:  "initial",
		Snapshot: []fees.FeeItem{
			{Category: "tuition", Label: "Tuition", Amount: fees.MustParseDecimal("100"), Frequency: fees.FreqMonthly},
			{Category: "development", Label: "Development", Amount: fees.MustParseDecimal("1200"), Frequency: fees.FreqAnnual},
		},
		TotalAnnual: fees.MustParseDecimal("2400"),
	})
	require.NoError(t, err)
	return v
}

func addStudent(mem *store.Memory, id, classID string) {
	mem.AddStudent(fees.Student{ID: fees.StudentID(id), ClassID: fees.ClassID(classID), Name: id})
}

// =============================================================================
// IDEMPOTENCE
// =============================================================================

func TestComputeForMonth_SecondRunIsNoOp(t *testing.T) {
	// GIVEN: One student, one structure, computed once
	// WHEN: Running the same month again with unchanged inputs
	// THEN: Nothing new is appended and the latest version is still 1

	engine, mem := newTestEngine()
	seedClass(t, mem, "grade-1")
	addStudent(mem, "stu-1", "grade-1")
	ctx := context.Background()

	first, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)

	second, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Count, "unchanged inputs must not append")
	assert.Equal(t, 1, second.Unchanged)

	latest, err := mem.Latest(ctx, "stu-1", month(t, "2025-03"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1, latest.Version)
}

func TestComputeForMonth_IncludeExistingForcesAppend(t *testing.T) {
	// The force flag appends a version even when the amounts are identical.
	engine, mem := newTestEngine()
	seedClass(t, mem, "grade-1")
	addStudent(mem, "stu-1", "grade-1")
	ctx := context.Background()

	_, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: "2025-03"})
	require.NoError(t, err)

	forced, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: "2025-03", IncludeExisting: true})
	require.NoError(t, err)
	assert.Equal(t, 1, forced.Count)

	latest, err := mem.Latest(ctx, "stu-1", month(t, "2025-03"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Version)
}

// =============================================================================
// CHANGE DETECTION AND VERSIONING
// =============================================================================

func TestComputeForMonth_ChargeChangeAppendsNextVersion(t *testing.T) {
	// GIVEN: A month already computed at version 1
	// WHEN: A charge lands in that month and the month is recomputed
	// THEN: Version 2 is appended with the charge folded into the payable

	engine, mem := newTestEngine()
	seedClass(t, mem, "grade-1")
	addStudent(mem, "stu-1", "grade-1")
	ctx := context.Background()

	_, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: "2025-03"})
	require.NoError(t, err)

	_, err = mem.CreateChargeAssignment(fees.ChargeAssignment{
		ChargeID:     "chg-lab",
		StudentID:    "stu-1",
		AppliedMonth: month(t, "2025-03"),
		Amount:       fees.MustParseDecimal("15.50"),
		Reason:       "Broken beaker",
		Definition:   fees.ChargeDefinition{ID: "chg-lab", Name: "Lab Fee", IsActive: true},
	})
	require.NoError(t, err)

	result, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	latest, err := mem.Latest(ctx, "stu-1", month(t, "2025-03"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Version)
	assert.True(t, latest.FinalPayable.Equal(fees.MustParseDecimal("215.50")),
		"expected 215.50, got %s", latest.FinalPayable)
	assert.True(t, latest.ExtraChargesAmount.Equal(fees.MustParseDecimal("15.50")))
}

func TestComputeForMonth_FullComposition(t *testing.T) {
	// GIVEN: Base 200, a 10% scholarship, a 20 charge
	// WHEN: Computing the month
	// THEN: final = 200 - 20 + 20 = 200 with each component recorded

	engine, mem := newTestEngine()
	seedClass(t, mem, "grade-1")
	addStudent(mem, "stu-1", "grade-1")
	ctx := context.Background()

	mem.AssignScholarship(fees.ScholarshipAssignment{
		ID:            "asg-1",
		ScholarshipID: "sch-merit",
		StudentID:     "stu-1",
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Definition: fees.ScholarshipDefinition{
			ID: "sch-merit", Name: "Merit", ValueType: fees.ValuePercentage,
			Value: fees.MustParseDecimal("10"), IsActive: true,
		},
	})
	_, err := mem.CreateChargeAssignment(fees.ChargeAssignment{
		ChargeID:     "chg-trip",
		StudentID:    "stu-1",
		AppliedMonth: month(t, "2025-03"),
		Amount:       fees.MustParseDecimal("20"),
		Definition:   fees.ChargeDefinition{ID: "chg-trip", Name: "Trip", IsActive: true},
	})
	require.NoError(t, err)

	result, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: "2025-03", ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	latest, err := mem.Latest(ctx, "stu-1", month(t, "2025-03"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.BaseAmount.Equal(fees.MustParseDecimal("200")))
	assert.True(t, latest.ScholarshipAmount.Equal(fees.MustParseDecimal("20")))
	assert.True(t, latest.ExtraChargesAmount.Equal(fees.MustParseDecimal("20")))
	assert.True(t, latest.FinalPayable.Equal(fees.MustParseDecimal("200")))
	assert.Equal(t, "admin-1", latest.CreatedByID)

	// The breakdown is self-contained: totals match the ledger columns.
	assert.Equal(t, fees.BreakdownSchemaVersion, latest.Breakdown.SchemaVersion)
	assert.True(t, latest.Breakdown.Totals.Final.Equal(latest.FinalPayable))
	assert.Len(t, latest.Breakdown.Scholarships, 1)
	assert.Len(t, latest.Breakdown.Charges, 1)
}

func TestComputeForMonth_StructureRevisionAppliesFromItsMonth(t *testing.T) {
	// GIVEN: An initial version and a revision effective June 1
	// WHEN: Computing May and June
	// THEN: May uses the old amounts, June the revised ones

	engine, mem := newTestEngine()
	seedClass(t, mem, "grade-1")
	addStudent(mem, "stu-1", "grade-1")
	ctx := context.Background()

	_, err := mem.AppendStructureVersion(fees.FeeStructureVersion{
		StructureID:   "fs-grade-1",
		EffectiveFrom: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ChangeReason:  "tuition raise",
		Snapshot: []fees.FeeItem{
			{Category: "tuition", Label: "Tuition", Amount: fees.MustParseDecimal("150"), Frequency: fees.FreqMonthly},
			{Category: "development", Label: "Development", Amount: fees.MustParseDecimal("1200"), Frequency: fees.FreqAnnual},
		},
		TotalAnnual: fees.MustParseDecimal("3000"),
	})
	require.NoError(t, err)

	for _, m := range []string{"2025-05", "2025-06"} {
		_, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: m})
		require.NoError(t, err)
	}

	may, err := mem.Latest(ctx, "stu-1", month(t, "2025-05"))
	require.NoError(t, err)
	require.NotNil(t, may)
	assert.True(t, may.BaseAmount.Equal(fees.MustParseDecimal("200")))

	june, err := mem.Latest(ctx, "stu-1", month(t, "2025-06"))
	require.NoError(t, err)
	require.NotNil(t, june)
	assert.True(t, june.BaseAmount.Equal(fees.MustParseDecimal("250")))
}

// =============================================================================
// SCOPE AND SKIPS
// =============================================================================

func TestComputeForMonth_NoStructureSkipsStudent(t *testing.T) {
	// A class without a published fee plan is skipped, not failed.
	engine, mem := newTestEngine()
	mem.AddClass(fees.Class{ID: "grade-x", Name: "Grade X"})
	addStudent(mem, "stu-1", "grade-x")

	result, err := engine.ComputeForMonth(context.Background(), fees.ComputeRequest{Month: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
}

func TestComputeForMonth_FutureEffectiveVersionNotResolved(t *testing.T) {
	// A version effective after the target month does not apply yet.
	engine, mem := newTestEngine()
	mem.AddClass(fees.Class{ID: "grade-1", Name: "Grade 1"})
	mem.SaveStructure(fees.FeeStructure{ID: "fs-grade-1", ClassID: "grade-1", Status: fees.StructureActive})
	_, err := mem.AppendStructureVersion(fees.FeeStructureVersion{
		StructureID:   "fs-grade-1",
		EffectiveFrom: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Snapshot: []fees.FeeItem{
			{Category: "tuition", Label: "Tuition", Amount: fees.MustParseDecimal("100"), Frequency: fees.FreqMonthly},
		},
		TotalAnnual: fees.MustParseDecimal("1200"),
	})
	require.NoError(t, err)
	addStudent(mem, "stu-1", "grade-1")

	result, err := engine.ComputeForMonth(context.Background(), fees.ComputeRequest{Month: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
}

func TestComputeForMonth_ClassScope(t *testing.T) {
	// GIVEN: Students in two classes
	// WHEN: Computing with a class filter
	// THEN: Only that class's students are evaluated

	engine, mem := newTestEngine()
	seedClass(t, mem, "grade-1")
	seedClass(t, mem, "grade-2")
	addStudent(mem, "stu-1", "grade-1")
	addStudent(mem, "stu-2", "grade-2")
	ctx := context.Background()

	result, err := engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: "2025-03", ClassID: "grade-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 1, result.Count)

	other, err := mem.Latest(ctx, "stu-2", month(t, "2025-03"))
	require.NoError(t, err)
	assert.Nil(t, other, "out-of-scope student must not be touched")
}

// =============================================================================
// STRUCTURAL MISUSE
// =============================================================================

func TestComputeForMonth_MalformedMonth(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.ComputeForMonth(context.Background(), fees.ComputeRequest{Month: "March 2025"})
	require.Error(t, err)
	assert.True(t, fees.IsInvalidArgument(err))
}

func TestComputeForMonth_UnknownClass(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.ComputeForMonth(context.Background(), fees.ComputeRequest{Month: "2025-03", ClassID: "no-such-class"})
	require.Error(t, err)
	assert.True(t, fees.IsNotFound(err))
	assert.ErrorIs(t, err, fees.ErrClassNotFound)
}
