/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates classes, students,
	fee structures, scholarships, and charges, then runs the computation
	so the ledger has something to show.

AVAILABLE SCENARIOS:

	small-school:   One class, three students, a mid-year fee revision
	scholarships:   Overlapping percentage + fixed awards with expiry

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create classes and students
 3. Create a fee structure and append versions
 4. Assign scholarships and charges
 5. Run the monthly computation for a few months

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-school"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: error/JSON helpers
  - fees/engine.go: the computation the scenarios exercise
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/campus/fee-engine/fees"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "small-school",
		Name:        "Small School",
		Description: "One class, three students, a mid-year fee revision",
	},
	{
		ID:          "scholarships",
		Name:        "Scholarship Windows",
		Description: "Overlapping percentage + fixed awards with expiry",
	},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": scenarios,
		"current":   h.currentScenario,
	})
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "small-school":
		err = h.loadSmallSchoolScenario(ctx)
	case "scholarships":
		err = h.loadScholarshipScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadSmallSchoolScenario(ctx context.Context) error {
	if err := h.Store.SaveClass(ctx, fees.Class{ID: "grade-5", Name: "Grade 5"}); err != nil {
		return err
	}
	students := []fees.Student{
		{ID: "stu-amina", ClassID: "grade-5", Name: "Amina Okello"},
		{ID: "stu-brian", ClassID: "grade-5", Name: "Brian Ssali"},
		{ID: "stu-clara", ClassID: "grade-5", Name: "Clara Nankya"},
	}
	for _, st := range students {
		if err := h.Store.SaveStudent(ctx, st); err != nil {
			return err
		}
	}

	structure := fees.FeeStructure{
		ID:           "fs-grade-5-2025",
		ClassID:      "grade-5",
		AcademicYear: "2025",
		Name:         "Grade 5 Standard Fees",
		Status:       fees.StructureActive,
	}
	if err := h.Store.SaveStructure(ctx, structure); err != nil {
		return err
	}

	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []fees.FeeItem{
		{Category: "tuition", Label: "Tuition", Amount: fees.MustParseDecimal("120.00"), Frequency: fees.FreqMonthly},
		{Category: "development", Label: "Development Fund", Amount: fees.MustParseDecimal("240.00"), Frequency: fees.FreqAnnual},
		{Category: "exams", Label: "Examination Fee", Amount: fees.MustParseDecimal("30.00"), Frequency: fees.FreqTerm},
	}
	if _, err := h.Store.AppendStructureVersion(ctx, fees.FeeStructureVersion{
		StructureID:   structure.ID,
		EffectiveFrom: jan,
		ChangeReason:  "Initial publication for the 2025 academic year",
		Snapshot:      items,
		TotalAnnual:   fees.MustParseDecimal("1770.00"),
	}); err != nil {
		return err
	}

	// Mid-year revision: tuition raised from June on.
	jun := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	revised := []fees.FeeItem{
		{Category: "tuition", Label: "Tuition", Amount: fees.MustParseDecimal("135.00"), Frequency: fees.FreqMonthly},
		{Category: "development", Label: "Development Fund", Amount: fees.MustParseDecimal("240.00"), Frequency: fees.FreqAnnual},
		{Category: "exams", Label: "Examination Fee", Amount: fees.MustParseDecimal("30.00"), Frequency: fees.FreqTerm},
	}
	if _, err := h.Store.AppendStructureVersion(ctx, fees.FeeStructureVersion{
		StructureID:   structure.ID,
		EffectiveFrom: jun,
		ChangeReason:  "Board-approved tuition adjustment",
		Snapshot:      revised,
		TotalAnnual:   fees.MustParseDecimal("1950.00"),
	}); err != nil {
		return err
	}

	// Late library book fine for Brian in May.
	if err := h.Store.SaveChargeDefinition(ctx, fees.ChargeDefinition{
		ID: "chg-library-fine", Name: "Library Fine", Type: "fine",
		ValueType: fees.ValueFixed, Value: fees.MustParseDecimal("5.00"), IsActive: true,
	}); err != nil {
		return err
	}
	may, _ := fees.ParseMonth("2025-05")
	if _, err := h.Store.CreateChargeAssignment(ctx, fees.ChargeAssignment{
		ChargeID: "chg-library-fine", StudentID: "stu-brian", AppliedMonth: may,
		Amount: fees.MustParseDecimal("5.00"), Reason: "Overdue library books",
	}); err != nil {
		return err
	}

	// Compute a few months either side of the revision.
	for _, m := range []string{"2025-05", "2025-06"} {
		if _, err := h.Engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: m, ActorID: "scenario"}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadScholarshipScenario(ctx context.Context) error {
	if err := h.Store.SaveClass(ctx, fees.Class{ID: "grade-8", Name: "Grade 8"}); err != nil {
		return err
	}
	if err := h.Store.SaveStudent(ctx, fees.Student{ID: "stu-daniel", ClassID: "grade-8", Name: "Daniel Mugisha"}); err != nil {
		return err
	}

	structure := fees.FeeStructure{
		ID:           "fs-grade-8-2025",
		ClassID:      "grade-8",
		AcademicYear: "2025",
		Name:         "Grade 8 Standard Fees",
		Status:       fees.StructureActive,
	}
	if err := h.Store.SaveStructure(ctx, structure); err != nil {
		return err
	}
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := h.Store.AppendStructureVersion(ctx, fees.FeeStructureVersion{
		StructureID:   structure.ID,
		EffectiveFrom: jan,
		ChangeReason:  "Initial publication",
		Snapshot: []fees.FeeItem{
			{Category: "tuition", Label: "Tuition", Amount: fees.MustParseDecimal("200.00"), Frequency: fees.FreqMonthly},
		},
		TotalAnnual: fees.MustParseDecimal("2400.00"),
	}); err != nil {
		return err
	}

	// Merit award: 25% off, expires end of June.
	if err := h.Store.SaveScholarshipDefinition(ctx, fees.ScholarshipDefinition{
		ID: "sch-merit", Name: "Merit Award", Type: "merit",
		ValueType: fees.ValuePercentage, Value: fees.MustParseDecimal("25"), IsActive: true,
	}); err != nil {
		return err
	}
	junEnd := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	if _, err := h.Store.AssignScholarship(ctx, fees.ScholarshipAssignment{
		ScholarshipID: "sch-merit", StudentID: "stu-daniel",
		EffectiveFrom: jan, ExpiresAt: &junEnd,
	}); err != nil {
		return err
	}

	// Sibling discount: flat 20 per month, open-ended from March.
	if err := h.Store.SaveScholarshipDefinition(ctx, fees.ScholarshipDefinition{
		ID: "sch-sibling", Name: "Sibling Discount", Type: "sibling",
		ValueType: fees.ValueFixed, Value: fees.MustParseDecimal("20.00"), IsActive: true,
	}); err != nil {
		return err
	}
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := h.Store.AssignScholarship(ctx, fees.ScholarshipAssignment{
		ScholarshipID: "sch-sibling", StudentID: "stu-daniel",
		EffectiveFrom: mar,
	}); err != nil {
		return err
	}

	// February: merit only. April: both. July: sibling only.
	for _, m := range []string{"2025-02", "2025-04", "2025-07"} {
		if _, err := h.Engine.ComputeForMonth(ctx, fees.ComputeRequest{Month: m, ActorID: "scenario"}); err != nil {
			return err
		}
	}
	return nil
}
