/*
store.go - Persistence interfaces for the fee engine

PURPOSE:
  Defines the boundary between the computation logic and the database.
  The engine only READS structures, scholarships, charges and students;
  its sole WRITE is the append-only history ledger.

APPEND-ONLY CONTRACT:
  HistoryStore has Append() and reads. No Update() or Delete() exists.
  Corrections are made by computing and appending a new version.

CONCURRENCY:
  Append must fail with ErrVersionConflict when the (student, month,
  version) key already exists. Implementations back this with a unique
  index; the engine retries once after re-reading the latest version.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (same SQL works on PostgreSQL)
  - fees/store:   in-memory, for tests and demos
*/
package fees

import (
	"context"
	"time"
)

// =============================================================================
// READ-ONLY COLLABORATOR STORES
// =============================================================================

// StructureStore resolves effective-dated fee structure versions.
type StructureStore interface {
	// ResolveLatestVersion returns, among all versions of any structure for
	// the class with EffectiveFrom <= onOrBefore, the one with the maximum
	// EffectiveFrom (ties broken by highest version). Returns (nil, nil)
	// when the class has no applicable fee plan - that is not an error.
	ResolveLatestVersion(ctx context.Context, classID ClassID, onOrBefore time.Time) (*FeeStructureVersion, error)

	// Structure returns the structure metadata for breakdown labelling.
	Structure(ctx context.Context, id StructureID) (*FeeStructure, error)
}

// ScholarshipStore resolves a student's scholarship assignments.
type ScholarshipStore interface {
	// ActiveScholarships returns assignments (with joined definitions) whose
	// window overlaps the month.
	ActiveScholarships(ctx context.Context, studentID StudentID, period Month) ([]ScholarshipAssignment, error)
}

// ChargeStore resolves a student's charge assignments.
type ChargeStore interface {
	// ChargesFor returns assignments (with joined definitions) applied to
	// the student for exactly that month.
	ChargesFor(ctx context.Context, studentID StudentID, period Month) ([]ChargeAssignment, error)
}

// StudentStore resolves the batch scope.
type StudentStore interface {
	Students(ctx context.Context) ([]Student, error)
	StudentsByClass(ctx context.Context, classID ClassID) ([]Student, error)
	ClassExists(ctx context.Context, classID ClassID) (bool, error)
}

// =============================================================================
// HISTORY STORE - the append-only output ledger
// =============================================================================

// HistoryPage is a paginated slice of a student's history plus the total
// number of matching entries.
type HistoryPage struct {
	Entries []HistoryEntry
	Total   int
}

// HistoryStore persists computed fee versions. Append-only.
type HistoryStore interface {
	// Append persists a new version. Fails with ErrVersionConflict if the
	// (StudentID, PeriodMonth, Version) key exists. The ONLY write.
	Append(ctx context.Context, entry HistoryEntry) error

	// Latest returns the highest version for (student, month), or (nil, nil)
	// if the pair has never been computed.
	Latest(ctx context.Context, studentID StudentID, period Month) (*HistoryEntry, error)

	// History returns entries for the student with PeriodMonth in [from, to],
	// newest first, paginated.
	History(ctx context.Context, studentID StudentID, from, to Month, limit, offset int) (*HistoryPage, error)

	// LatestPerStudent returns the latest entry of every student computed for
	// the month, optionally restricted to a class. classID "" means all.
	LatestPerStudent(ctx context.Context, period Month, classID ClassID) ([]HistoryEntry, error)
}
