/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the internal
  domain model from the external contract.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

AMOUNTS:
  All monetary fields serialize as decimal strings (e.g. "1250.00"), never
  JSON numbers. Clients must not round-trip fees through binary floats.

SEE ALSO:
  - handlers.go: uses these types
  - fees/breakdown.go: the persisted breakdown document embedded in history DTOs
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus/fee-engine/fees"
)

// =============================================================================
// COMPUTE
// =============================================================================

// ComputeRequest triggers a batch fee computation.
type ComputeRequest struct {
	Month           string `json:"month"`
	ClassID         string `json:"class_id,omitempty"`
	IncludeExisting bool   `json:"include_existing,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
}

// ComputeResponse reports the batch counters. Count is the number of newly
// appended versions.
type ComputeResponse struct {
	Count     int `json:"count"`
	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// =============================================================================
// HISTORY / LEDGER READS
// =============================================================================

// HistoryEntryDTO is one version of a student's monthly fee history.
type HistoryEntryDTO struct {
	ID                 string          `json:"id"`
	StudentID          string          `json:"student_id"`
	PeriodMonth        string          `json:"period_month"`
	Version            int             `json:"version"`
	StructureVersionID string          `json:"structure_version_id"`
	BaseAmount         decimal.Decimal `json:"base_amount"`
	ScholarshipAmount  decimal.Decimal `json:"scholarship_amount"`
	ExtraChargesAmount decimal.Decimal `json:"extra_charges_amount"`
	FinalPayable       decimal.Decimal `json:"final_payable"`
	Breakdown          fees.Breakdown  `json:"breakdown"`
	CreatedAt          string          `json:"created_at"`
	CreatedByID        string          `json:"created_by_id,omitempty"`
}

func historyDTO(e fees.HistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:                 e.ID,
		StudentID:          string(e.StudentID),
		PeriodMonth:        e.PeriodMonth.String(),
		Version:            e.Version,
		StructureVersionID: e.StructureVersionID,
		BaseAmount:         e.BaseAmount,
		ScholarshipAmount:  e.ScholarshipAmount,
		ExtraChargesAmount: e.ExtraChargesAmount,
		FinalPayable:       e.FinalPayable,
		Breakdown:          e.Breakdown,
		CreatedAt:          e.CreatedAt.UTC().Format(time.RFC3339),
		CreatedByID:        e.CreatedByID,
	}
}

// HistoryPageDTO is a paginated history response.
type HistoryPageDTO struct {
	Entries []HistoryEntryDTO `json:"entries"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// MonthSummaryDTO is the bulk latest-per-student view with page aggregates.
type MonthSummaryDTO struct {
	Month    string            `json:"month"`
	ClassID  string            `json:"class_id,omitempty"`
	Students []HistoryEntryDTO `json:"students"`
	Totals   SummaryTotalsDTO  `json:"totals"`
}

type SummaryTotalsDTO struct {
	Base         decimal.Decimal `json:"base"`
	Scholarships decimal.Decimal `json:"scholarships"`
	Charges      decimal.Decimal `json:"charges"`
	Final        decimal.Decimal `json:"final"`
}

// =============================================================================
// COLLABORATOR WRITES (students, structures, scholarships, charges)
// =============================================================================

type CreateClassRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateStudentRequest struct {
	ID      string `json:"id"`
	ClassID string `json:"class_id"`
	Name    string `json:"name"`
}

type CreateStructureRequest struct {
	ID           string `json:"id"`
	ClassID      string `json:"class_id"`
	AcademicYear string `json:"academic_year"`
	Name         string `json:"name"`
	Status       string `json:"status,omitempty"`
}

type FeeItemDTO struct {
	Category   string `json:"category"`
	Label      string `json:"label"`
	Amount     string `json:"amount"`
	Frequency  string `json:"frequency"`
	IsOptional bool   `json:"is_optional,omitempty"`
}

type AppendVersionRequest struct {
	EffectiveFrom string       `json:"effective_from"`
	ChangeReason  string       `json:"change_reason,omitempty"`
	Items         []FeeItemDTO `json:"items"`
}

type StructureVersionDTO struct {
	ID            string         `json:"id"`
	StructureID   string         `json:"structure_id"`
	Version       int            `json:"version"`
	EffectiveFrom string         `json:"effective_from"`
	ChangeReason  string         `json:"change_reason,omitempty"`
	Items         []fees.FeeItem `json:"items"`
	TotalAnnual   decimal.Decimal `json:"total_annual"`
}

type CreateScholarshipRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	ValueType string `json:"value_type"`
	Value     string `json:"value"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

type AssignScholarshipRequest struct {
	ScholarshipID string  `json:"scholarship_id"`
	StudentID     string  `json:"student_id"`
	EffectiveFrom string  `json:"effective_from"`
	ExpiresAt     *string `json:"expires_at,omitempty"`
}

type CreateChargeRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	ValueType   string `json:"value_type,omitempty"`
	Value       string `json:"value"`
	IsRecurring bool   `json:"is_recurring,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

type AssignChargeRequest struct {
	ChargeID  string `json:"charge_id"`
	StudentID string `json:"student_id"`
	Month     string `json:"month"`
	// Amount overrides the definition's value when set.
	Amount string `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
