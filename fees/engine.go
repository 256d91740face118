/*
engine.go - The fee computation orchestrator

PURPOSE:
  For a target month and student scope, joins the three input stores
  (structure versions, scholarships, charges), prorates the applicable
  snapshot, composes the final payable, and conditionally appends a new
  version to each student's fee history.

ALGORITHM (per invocation):
  1. Normalize the month; validate the class scope up front.
  2. Resolve the student scope (all students, or one class).
  3. Resolve the effective structure version once per class (cached).
  4. Per student: no resolved version -> skip, NOT an error.
  5. Prorate, apply scholarships, apply charges, round at the boundary.
  6. Compare against the latest persisted version; append only on change
     (or when explicitly forced). This is the idempotence contract.
  7. Return aggregate counters; a single student's failure never aborts
     the batch and never rolls back other students' appends.

CONCURRENCY:
  The read-compare-append sequence is serialized per (student, month) with
  a keyed mutex, and the store's unique version index is the backstop for
  concurrent processes: on ErrVersionConflict the engine re-reads the
  latest version and retries the compare-and-append exactly once.
*/
package fees

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the fee computation orchestrator. All stores are required.
type Engine struct {
	Structures   StructureStore
	Scholarships ScholarshipStore
	Charges      ChargeStore
	Students     StudentStore
	History      HistoryStore

	locks keyedMutex

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewEngine wires an engine over a set of stores.
func NewEngine(structures StructureStore, scholarships ScholarshipStore, charges ChargeStore, students StudentStore, history HistoryStore) *Engine {
	return &Engine{
		Structures:   structures,
		Scholarships: scholarships,
		Charges:      charges,
		Students:     students,
		History:      history,
		Now:          time.Now,
	}
}

// ComputeRequest scopes one batch run. Month is required ("YYYY-MM").
type ComputeRequest struct {
	Month string

	// ClassID restricts the scope to one class. Empty means all students.
	ClassID ClassID

	// IncludeExisting forces a new version even when the computed amounts
	// match the latest persisted version.
	IncludeExisting bool

	// ActorID is recorded on appended versions.
	ActorID string
}

// ComputeResult aggregates one batch run. Count is the number of NEWLY
// appended versions, not the number of students evaluated.
type ComputeResult struct {
	Count     int
	Evaluated int
	Skipped   int // students whose class had no applicable structure
	Unchanged int // idempotent no-ops
	Failed    int // non-fatal per-student resolution/write failures
}

// ComputeForMonth runs the batch. Structural misuse (malformed month,
// unknown class) is rejected before the loop starts; per-student failures
// are counted, not raised.
func (e *Engine) ComputeForMonth(ctx context.Context, req ComputeRequest) (*ComputeResult, error) {
	period, err := ParseMonth(req.Month)
	if err != nil {
		return nil, err
	}

	students, err := e.resolveScope(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	// Resolve the effective version once per class. A nil entry is a
	// negative cache: the class has no fee plan this month.
	versions := make(map[ClassID]*FeeStructureVersion)
	structures := make(map[StructureID]*FeeStructure)

	result := &ComputeResult{}
	for _, student := range students {
		result.Evaluated++

		version, ok := versions[student.ClassID]
		if !ok {
			version, err = e.Structures.ResolveLatestVersion(ctx, student.ClassID, period.Start())
			if err != nil {
				result.Failed++
				continue
			}
			versions[student.ClassID] = version
			if version != nil {
				if _, seen := structures[version.StructureID]; !seen {
					// Metadata lookup is best-effort; the breakdown still
					// identifies the version without it.
					s, _ := e.Structures.Structure(ctx, version.StructureID)
					structures[version.StructureID] = s
				}
			}
		}
		if version == nil {
			result.Skipped++
			continue
		}

		outcome, err := e.computeStudent(ctx, student, period, version, structures[version.StructureID], req)
		if err != nil {
			result.Failed++
			continue
		}
		switch outcome {
		case outcomeAppended:
			result.Count++
		case outcomeUnchanged:
			result.Unchanged++
		}
	}
	return result, nil
}

func (e *Engine) resolveScope(ctx context.Context, classID ClassID) ([]Student, error) {
	if classID == "" {
		return e.Students.Students(ctx)
	}
	exists, err := e.Students.ClassExists(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, classID)
	}
	return e.Students.StudentsByClass(ctx, classID)
}

// =============================================================================
// PER-STUDENT COMPUTATION
// =============================================================================

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeAppended
)

func (e *Engine) computeStudent(ctx context.Context, student Student, period Month,
	version *FeeStructureVersion, structure *FeeStructure, req ComputeRequest) (outcome, error) {

	scholarships, err := e.Scholarships.ActiveScholarships(ctx, student.ID, period)
	if err != nil {
		return outcomeUnchanged, err
	}
	charges, err := e.Charges.ChargesFor(ctx, student.ID, period)
	if err != nil {
		return outcomeUnchanged, err
	}

	proration := Prorate(version.Snapshot, period)
	deduction := ApplyScholarships(proration.Base, scholarships, period)
	extra := ApplyCharges(charges, period)

	// Rounding happens exactly once, at the persistence boundary.
	base := Round(proration.Base)
	scholarshipAmount := Round(deduction.Deduction)
	chargesAmount := Round(extra.Total)
	final := base.Sub(scholarshipAmount).Add(chargesAmount)

	breakdown := buildBreakdown(period, version, structure, proration, deduction, extra, BreakdownTotals{
		Base:         base,
		Scholarships: scholarshipAmount,
		Charges:      chargesAmount,
		Final:        final,
	})

	// Serialize the read-compare-append per (student, month). Overlapping
	// invocations in other processes are caught by the version index.
	unlock := e.locks.lock(lockKey(student.ID, period))
	defer unlock()

	appended, err := e.compareAndAppend(ctx, student, period, version, base, scholarshipAmount, chargesAmount, final, breakdown, req)
	if err == nil || !IsConflict(err) {
		return appended, err
	}

	// Lost a race against a concurrent process: re-read and retry once.
	return e.compareAndAppend(ctx, student, period, version, base, scholarshipAmount, chargesAmount, final, breakdown, req)
}

func (e *Engine) compareAndAppend(ctx context.Context, student Student, period Month,
	version *FeeStructureVersion, base, scholarshipAmount, chargesAmount, final decimal.Decimal,
	breakdown Breakdown, req ComputeRequest) (outcome, error) {

	latest, err := e.History.Latest(ctx, student.ID, period)
	if err != nil {
		return outcomeUnchanged, err
	}

	next := 1
	if latest != nil {
		if latest.SameAmounts(base, scholarshipAmount, chargesAmount, final) && !req.IncludeExisting {
			return outcomeUnchanged, nil
		}
		next = latest.Version + 1
	}

	entry := HistoryEntry{
		ID:                 uuid.NewString(),
		StudentID:          student.ID,
		PeriodMonth:        period,
		Version:            next,
		StructureVersionID: version.ID,
		BaseAmount:         base,
		ScholarshipAmount:  scholarshipAmount,
		ExtraChargesAmount: chargesAmount,
		FinalPayable:       final,
		Breakdown:          breakdown,
		CreatedAt:          e.Now().UTC(),
		CreatedByID:        req.ActorID,
	}
	if err := e.History.Append(ctx, entry); err != nil {
		return outcomeUnchanged, err
	}
	return outcomeAppended, nil
}

func lockKey(studentID StudentID, period Month) string {
	return string(studentID) + "|" + period.String()
}
