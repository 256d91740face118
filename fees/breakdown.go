package fees

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// BREAKDOWN - the frozen, self-contained statement document
// =============================================================================

// BreakdownSchemaVersion is bumped whenever a field is added to the document.
// Readers must tolerate older versions forever: historical breakdowns are
// never rewritten.
const BreakdownSchemaVersion = 1

// Breakdown is the structured document persisted with every history entry.
// It is deliberately denormalized: item labels, scholarship names and charge
// names are frozen at computation time so a human-readable statement can be
// reconstructed without re-querying any other table, even after definitions
// are renamed or retired.
type Breakdown struct {
	SchemaVersion int                  `json:"schema_version"`
	PeriodMonth   Month                `json:"period_month"`
	Structure     BreakdownStructure   `json:"structure"`
	Items         []ItemPortion        `json:"items"`
	Scholarships  []AppliedScholarship `json:"scholarships,omitempty"`
	Charges       []AppliedCharge      `json:"charges,omitempty"`
	Totals        BreakdownTotals      `json:"totals"`
}

// BreakdownStructure identifies the structure version the computation used.
type BreakdownStructure struct {
	StructureID  StructureID `json:"structure_id"`
	VersionID    string      `json:"version_id"`
	Version      int         `json:"version"`
	Name         string      `json:"name,omitempty"`
	AcademicYear string      `json:"academic_year,omitempty"`
}

// BreakdownTotals mirrors the entry's persisted amount fields.
type BreakdownTotals struct {
	Base         decimal.Decimal `json:"base"`
	Scholarships decimal.Decimal `json:"scholarships"`
	Charges      decimal.Decimal `json:"charges"`
	Final        decimal.Decimal `json:"final"`
}

func buildBreakdown(period Month, version *FeeStructureVersion, structure *FeeStructure,
	proration ProrationResult, scholarships ScholarshipResult, charges ChargeResult,
	totals BreakdownTotals) Breakdown {

	items := make([]ItemPortion, len(proration.Items))
	for i, item := range proration.Items {
		item.MonthlyPortion = Round(item.MonthlyPortion)
		items[i] = item
	}

	applied := make([]AppliedScholarship, len(scholarships.Applied))
	for i, s := range scholarships.Applied {
		s.Deduction = Round(s.Deduction)
		applied[i] = s
	}

	b := Breakdown{
		SchemaVersion: BreakdownSchemaVersion,
		PeriodMonth:   period,
		Structure: BreakdownStructure{
			StructureID: version.StructureID,
			VersionID:   version.ID,
			Version:     version.Version,
		},
		Items:        items,
		Scholarships: applied,
		Charges:      charges.Applied,
		Totals:       totals,
	}
	if structure != nil {
		b.Structure.Name = structure.Name
		b.Structure.AcademicYear = structure.AcademicYear
	}
	return b
}
