/*
Package fees provides the fee computation and versioning engine.

PURPOSE:
  This package contains the core logic for a school-administration backend:
  resolving the fee structure in effect for a class in a given month,
  prorating annual/term line items into monthly portions, applying
  time-bounded scholarships and per-month charges, and appending the
  computed result to an immutable per-student version history.

KEY CONCEPTS IN THIS FILE (types.go):
  - FeeStructure / FeeStructureVersion: effective-dated, append-only fee plans
  - ScholarshipDefinition / ScholarshipAssignment: time-windowed deductions
  - ChargeDefinition / ChargeAssignment: per-month additions
  - HistoryEntry: one immutable version of a student's computed monthly fee

DESIGN PRINCIPLES:
  1. Immutability: history entries and structure versions are never modified
  2. Precision: decimal.Decimal for every amount - no binary floating point
  3. Type Safety: strong typing for IDs prevents mixing student/class IDs
  4. Auditability: each history entry carries a frozen, self-contained breakdown

SEE ALSO:
  - prorate.go: item-list to monthly-base proration
  - engine.go: the batch orchestrator
  - store.go: persistence interfaces
*/
package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type ClassID string
type StructureID string
type ScholarshipID string
type ChargeID string

// =============================================================================
// MONEY - rounding is applied only at the persistence boundary
// =============================================================================

// RoundPlaces is the scale used for persisted amounts. Intermediate
// arithmetic is never rounded; see Round.
const RoundPlaces = 2

// Round applies the persistence rounding mode (half away from zero).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(RoundPlaces)
}

// MustParseDecimal parses a decimal literal, returning zero on failure.
// For test fixtures and seed data only.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// FEE STRUCTURES - versioned, effective-dated fee plans per class
// =============================================================================

type StructureStatus string

const (
	StructureDraft    StructureStatus = "DRAFT"
	StructureActive   StructureStatus = "ACTIVE"
	StructureArchived StructureStatus = "ARCHIVED"
)

// Frequency is the accrual cadence of a single fee line item.
type Frequency string

const (
	FreqMonthly Frequency = "MONTHLY"
	FreqTerm    Frequency = "TERM"
	FreqAnnual  Frequency = "ANNUAL"
	FreqOneTime Frequency = "ONE_TIME"
)

// FeeItem is one line of a structure version's snapshot.
type FeeItem struct {
	Category   string          `json:"category"`
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
	Frequency  Frequency       `json:"frequency"`
	IsOptional bool            `json:"is_optional"`
}

// FeeStructure identifies a fee plan. Mutable metadata only; amounts live
// exclusively in versions.
type FeeStructure struct {
	ID           StructureID
	ClassID      ClassID
	AcademicYear string
	Name         string
	Status       StructureStatus
}

// FeeStructureVersion is one immutable, dated snapshot of a structure's
// line items.
//
// INVARIANTS:
//   - Snapshot and EffectiveFrom never change once created.
//   - Version is monotonic per structure, starting at 1.
//   - EffectiveFrom is non-decreasing relative to prior versions.
type FeeStructureVersion struct {
	ID            string
	StructureID   StructureID
	Version       int
	EffectiveFrom time.Time
	ChangeReason  string
	Snapshot      []FeeItem
	TotalAnnual   decimal.Decimal
}

// =============================================================================
// SCHOLARSHIPS - time-bounded deductions from the structure base
// =============================================================================

type ValueType string

const (
	ValuePercentage ValueType = "PERCENTAGE"
	ValueFixed      ValueType = "FIXED"
)

type ScholarshipDefinition struct {
	ID        ScholarshipID
	Name      string
	Type      string // e.g. "merit", "sibling", "staff"
	ValueType ValueType
	Value     decimal.Decimal
	IsActive  bool
}

// ScholarshipAssignment links a scholarship definition to a student for a
// time window. ExpiresAt nil means open-ended.
type ScholarshipAssignment struct {
	ID            string
	ScholarshipID ScholarshipID
	StudentID     StudentID
	EffectiveFrom time.Time
	ExpiresAt     *time.Time

	// Definition is the joined definition at read time.
	Definition ScholarshipDefinition
}

// ActiveIn reports whether the assignment window overlaps the month:
// EffectiveFrom <= end(m) and (ExpiresAt is nil or ExpiresAt >= start(m)).
func (a ScholarshipAssignment) ActiveIn(m Month) bool {
	if a.EffectiveFrom.After(m.End()) {
		return false
	}
	return a.ExpiresAt == nil || !a.ExpiresAt.Before(m.Start())
}

// =============================================================================
// CHARGES - per-month additions on top of the payable
// =============================================================================

type ChargeDefinition struct {
	ID          ChargeID
	Name        string
	Type        string // e.g. "fine", "transport", "equipment"
	ValueType   ValueType
	Value       decimal.Decimal
	IsRecurring bool
	IsActive    bool
}

// ChargeAssignment applies a charge to a student for one month. Amount is
// materialized at assignment time and may differ from the definition's value.
//
// INVARIANT: at most one assignment per (ChargeID, StudentID, AppliedMonth).
type ChargeAssignment struct {
	ID           string
	ChargeID     ChargeID
	StudentID    StudentID
	AppliedMonth Month
	Amount       decimal.Decimal
	Reason       string

	Definition ChargeDefinition
}

// =============================================================================
// STUDENTS & CLASSES
// =============================================================================

type Class struct {
	ID   ClassID
	Name string
}

type Student struct {
	ID      StudentID
	ClassID ClassID
	Name    string
}

// =============================================================================
// HISTORY - the append-only ledger of computed monthly fees
// =============================================================================

// HistoryEntry is one version in a student's fee history for a month.
//
// INVARIANTS:
//   - Never updated or deleted; corrections append a new version.
//   - FinalPayable = BaseAmount - ScholarshipAmount + ExtraChargesAmount.
//   - Version is monotonic per (StudentID, PeriodMonth), starting at 1.
//   - Every new version reflects a real change in one of the amount fields,
//     unless the computation was explicitly forced.
type HistoryEntry struct {
	ID                 string
	StudentID          StudentID
	PeriodMonth        Month
	Version            int
	StructureVersionID string // the FeeStructureVersion actually used
	BaseAmount         decimal.Decimal
	ScholarshipAmount  decimal.Decimal
	ExtraChargesAmount decimal.Decimal
	FinalPayable       decimal.Decimal
	Breakdown          Breakdown
	CreatedAt          time.Time
	CreatedByID        string
}

// SameAmounts reports whether the four persisted amount fields match.
// This is the change-detection equality used by the orchestrator.
func (e HistoryEntry) SameAmounts(base, scholarship, charges, final decimal.Decimal) bool {
	return e.BaseAmount.Equal(base) &&
		e.ScholarshipAmount.Equal(scholarship) &&
		e.ExtraChargesAmount.Equal(charges) &&
		e.FinalPayable.Equal(final)
}
