/*
Package sqlite provides a SQLite-backed implementation of the fee engine's
storage interfaces.

PURPOSE:
  Implements StructureStore, ScholarshipStore, ChargeStore, StudentStore and
  HistoryStore over database/sql. In production the same SQL applies to
  PostgreSQL - only minor dialect differences.

APPEND-ONLY ENFORCEMENT:
  The student_fee_history table has no UPDATE or DELETE path in this package.
  Corrections are appended as new versions by the engine.

KEY INDEXES:
  idx_history_version:   UNIQUE(student_id, period_month, version) - the
                         backstop against concurrent compute races; mapped
                         to fees.ErrVersionConflict.
  idx_charge_unique:     UNIQUE(charge_id, student_id, applied_month) -
                         backstop for the duplicate-charge pre-check; mapped
                         to fees.ErrDuplicateCharge.
  idx_versions_resolve:  (structure_id, effective_from) - version resolution
                         hot path.

DATA REPRESENTATION:
  Amounts are stored as decimal TEXT, never REAL - numeric fidelity
  underpins the engine's change detection. Months are stored as "YYYY-MM"
  (normalized); dates as "YYYY-MM-DD"; snapshots and breakdowns as JSON
  documents.

WAL MODE:
  SQLite is opened with WAL for better concurrency; a sync.RWMutex guards
  the connection the same way PostgreSQL row locks would in production.

SEE ALSO:
  - fees/store.go: interface definitions
  - fees/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/campus/fee-engine/fees"
)

const dateLayout = "2006-01-02"

// Store implements all persistence interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL REFERENCES classes(id),
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id);

	CREATE TABLE IF NOT EXISTS fee_structures (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL REFERENCES classes(id),
		academic_year TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_structures_class ON fee_structures(class_id);

	-- Immutable, dated snapshots. Versions are appended, never edited.
	CREATE TABLE IF NOT EXISTS fee_structure_versions (
		id TEXT PRIMARY KEY,
		structure_id TEXT NOT NULL REFERENCES fee_structures(id),
		version INTEGER NOT NULL,
		effective_from TEXT NOT NULL,
		change_reason TEXT,
		snapshot_json TEXT NOT NULL,
		total_annual TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(structure_id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_versions_resolve
		ON fee_structure_versions(structure_id, effective_from DESC);

	CREATE TABLE IF NOT EXISTS scholarship_definitions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		value_type TEXT NOT NULL,
		value TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS scholarship_assignments (
		id TEXT PRIMARY KEY,
		scholarship_id TEXT NOT NULL REFERENCES scholarship_definitions(id),
		student_id TEXT NOT NULL REFERENCES students(id),
		effective_from TEXT NOT NULL,
		expires_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scholarship_assignments_student
		ON scholarship_assignments(student_id, effective_from);

	CREATE TABLE IF NOT EXISTS charge_definitions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		value_type TEXT NOT NULL DEFAULT 'FIXED',
		value TEXT NOT NULL,
		is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS charge_assignments (
		id TEXT PRIMARY KEY,
		charge_id TEXT NOT NULL REFERENCES charge_definitions(id),
		student_id TEXT NOT NULL REFERENCES students(id),
		applied_month TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	-- Backstop for the application-level duplicate pre-check.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_charge_unique
		ON charge_assignments(charge_id, student_id, applied_month);
	CREATE INDEX IF NOT EXISTS idx_charge_assignments_student_month
		ON charge_assignments(student_id, applied_month);

	-- The append-only ledger. No UPDATE, no DELETE. Ever.
	CREATE TABLE IF NOT EXISTS student_fee_history (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		period_month TEXT NOT NULL,
		version INTEGER NOT NULL,
		structure_version_id TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		scholarship_amount TEXT NOT NULL,
		extra_charges_amount TEXT NOT NULL,
		final_payable TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		created_by_id TEXT
	);

	-- CRITICAL: serializes concurrent computations for the same student+month.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_history_version
		ON student_fee_history(student_id, period_month, version);
	CREATE INDEX IF NOT EXISTS idx_history_student_month
		ON student_fee_history(student_id, period_month, version DESC);
	CREATE INDEX IF NOT EXISTS idx_history_month
		ON student_fee_history(period_month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CLASSES & STUDENTS (fees.StudentStore)
// =============================================================================

// SaveClass inserts or updates a class.
func (s *Store) SaveClass(ctx context.Context, c fees.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classes (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, c.ID, c.Name)
	return err
}

// SaveStudent inserts or updates a student.
func (s *Store) SaveStudent(ctx context.Context, st fees.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, class_id, name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET class_id = excluded.class_id, name = excluded.name
	`, st.ID, st.ClassID, st.Name, now())
	return err
}

// GetStudent returns a student, or (nil, nil) if absent.
func (s *Store) GetStudent(ctx context.Context, id fees.StudentID) (*fees.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st fees.Student
	err := s.db.QueryRowContext(ctx,
		"SELECT id, class_id, name FROM students WHERE id = ?", id,
	).Scan(&st.ID, &st.ClassID, &st.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) Students(ctx context.Context) ([]fees.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryStudents(ctx, "SELECT id, class_id, name FROM students ORDER BY id")
}

func (s *Store) StudentsByClass(ctx context.Context, classID fees.ClassID) ([]fees.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryStudents(ctx,
		"SELECT id, class_id, name FROM students WHERE class_id = ? ORDER BY id", classID)
}

func (s *Store) ClassExists(ctx context.Context, classID fees.ClassID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM classes WHERE id = ?", classID).Scan(&count)
	return count > 0, err
}

func (s *Store) queryStudents(ctx context.Context, query string, args ...any) ([]fees.Student, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []fees.Student
	for rows.Next() {
		var st fees.Student
		if err := rows.Scan(&st.ID, &st.ClassID, &st.Name); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// =============================================================================
// FEE STRUCTURES (fees.StructureStore + collaborator writes)
// =============================================================================

// SaveStructure inserts or updates structure metadata. Amounts never live
// here; they are appended as versions.
func (s *Store) SaveStructure(ctx context.Context, fs fees.FeeStructure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fee_structures (id, class_id, academic_year, name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			academic_year = excluded.academic_year,
			name = excluded.name,
			status = excluded.status
	`, fs.ID, fs.ClassID, fs.AcademicYear, fs.Name, fs.Status, now())
	return err
}

func (s *Store) Structure(ctx context.Context, id fees.StructureID) (*fees.FeeStructure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fs fees.FeeStructure
	err := s.db.QueryRowContext(ctx,
		"SELECT id, class_id, academic_year, name, status FROM fee_structures WHERE id = ?", id,
	).Scan(&fs.ID, &fs.ClassID, &fs.AcademicYear, &fs.Name, &fs.Status)
	if err == sql.ErrNoRows {
		return nil, fees.ErrStructureNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// AppendStructureVersion appends the next immutable version of a structure.
// Version 0 assigns the next number; effective-from must be non-decreasing
// relative to the last version.
func (s *Store) AppendStructureVersion(ctx context.Context, v fees.FeeStructureVersion) (*fees.FeeStructureVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var lastVersion int
	var lastEffective sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0),
		       (SELECT effective_from FROM fee_structure_versions
		        WHERE structure_id = ? ORDER BY version DESC LIMIT 1)
		FROM fee_structure_versions WHERE structure_id = ?
	`, v.StructureID, v.StructureID).Scan(&lastVersion, &lastEffective)
	if err != nil {
		return nil, err
	}

	next := lastVersion + 1
	if v.Version == 0 {
		v.Version = next
	} else if v.Version != next {
		return nil, fees.ErrVersionOrder
	}
	if lastEffective.Valid {
		last, err := time.Parse(dateLayout, lastEffective.String)
		if err == nil && v.EffectiveFrom.Before(last) {
			return nil, fees.ErrVersionOrder
		}
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	snapshotJSON, err := json.Marshal(v.Snapshot)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fee_structure_versions
		(id, structure_id, version, effective_from, change_reason, snapshot_json, total_annual, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.StructureID, v.Version, v.EffectiveFrom.Format(dateLayout),
		v.ChangeReason, string(snapshotJSON), v.TotalAnnual.String(), now())
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fees.ErrVersionOrder
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &v, nil
}

// ResolveLatestVersion picks, among all versions for the class effective on
// or before the given date, the one with the maximum effective-from (ties
// broken by highest version).
func (s *Store) ResolveLatestVersion(ctx context.Context, classID fees.ClassID, onOrBefore time.Time) (*fees.FeeStructureVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT v.id, v.structure_id, v.version, v.effective_from, v.change_reason,
		       v.snapshot_json, v.total_annual
		FROM fee_structure_versions v
		JOIN fee_structures f ON f.id = v.structure_id
		WHERE f.class_id = ? AND v.effective_from <= ?
		ORDER BY v.effective_from DESC, v.version DESC
		LIMIT 1
	`, classID, onOrBefore.Format(dateLayout))

	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// StructureVersions returns a structure's full version chain, oldest first.
func (s *Store) StructureVersions(ctx context.Context, id fees.StructureID) ([]fees.FeeStructureVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, structure_id, version, effective_from, change_reason, snapshot_json, total_annual
		FROM fee_structure_versions
		WHERE structure_id = ?
		ORDER BY version ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []fees.FeeStructureVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*fees.FeeStructureVersion, error) {
	var (
		v             fees.FeeStructureVersion
		effectiveFrom string
		changeReason  sql.NullString
		snapshotJSON  string
		totalAnnual   string
	)
	err := row.Scan(&v.ID, &v.StructureID, &v.Version, &effectiveFrom,
		&changeReason, &snapshotJSON, &totalAnnual)
	if err != nil {
		return nil, err
	}

	v.EffectiveFrom, _ = time.Parse(dateLayout, effectiveFrom)
	v.ChangeReason = changeReason.String
	v.TotalAnnual = fees.MustParseDecimal(totalAnnual)
	if err := json.Unmarshal([]byte(snapshotJSON), &v.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &v, nil
}

// =============================================================================
// SCHOLARSHIPS (fees.ScholarshipStore + collaborator writes)
// =============================================================================

func (s *Store) SaveScholarshipDefinition(ctx context.Context, d fees.ScholarshipDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scholarship_definitions (id, name, type, value_type, value, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			value_type = excluded.value_type,
			value = excluded.value,
			is_active = excluded.is_active
	`, d.ID, d.Name, d.Type, d.ValueType, d.Value.String(), d.IsActive)
	return err
}

func (s *Store) AssignScholarship(ctx context.Context, a fees.ScholarshipAssignment) (*fees.ScholarshipAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var expiresAt sql.NullString
	if a.ExpiresAt != nil {
		expiresAt = sql.NullString{String: a.ExpiresAt.Format(dateLayout), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scholarship_assignments (id, scholarship_id, student_id, effective_from, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.ScholarshipID, a.StudentID, a.EffectiveFrom.Format(dateLayout), expiresAt, now())
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ActiveScholarships(ctx context.Context, studentID fees.StudentID, period fees.Month) ([]fees.ScholarshipAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Window rule: effective_from <= end(month) AND (no expiry OR expiry >= start(month)).
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.scholarship_id, a.student_id, a.effective_from, a.expires_at,
		       d.name, d.type, d.value_type, d.value, d.is_active
		FROM scholarship_assignments a
		JOIN scholarship_definitions d ON d.id = a.scholarship_id
		WHERE a.student_id = ?
		  AND a.effective_from <= ?
		  AND (a.expires_at IS NULL OR a.expires_at >= ?)
		ORDER BY a.effective_from ASC, a.id ASC
	`, studentID, period.End().Format(dateLayout), period.Start().Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []fees.ScholarshipAssignment
	for rows.Next() {
		var (
			a             fees.ScholarshipAssignment
			effectiveFrom string
			expiresAt     sql.NullString
			value         string
		)
		if err := rows.Scan(&a.ID, &a.ScholarshipID, &a.StudentID, &effectiveFrom, &expiresAt,
			&a.Definition.Name, &a.Definition.Type, &a.Definition.ValueType, &value, &a.Definition.IsActive); err != nil {
			return nil, err
		}
		a.Definition.ID = a.ScholarshipID
		a.Definition.Value = fees.MustParseDecimal(value)
		a.EffectiveFrom, _ = time.Parse(dateLayout, effectiveFrom)
		if expiresAt.Valid {
			t, _ := time.Parse(dateLayout, expiresAt.String)
			a.ExpiresAt = &t
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// =============================================================================
// CHARGES (fees.ChargeStore + collaborator writes)
// =============================================================================

func (s *Store) SaveChargeDefinition(ctx context.Context, d fees.ChargeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO charge_definitions (id, name, type, value_type, value, is_recurring, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			value_type = excluded.value_type,
			value = excluded.value,
			is_recurring = excluded.is_recurring,
			is_active = excluded.is_active
	`, d.ID, d.Name, d.Type, d.ValueType, d.Value.String(), d.IsRecurring, d.IsActive)
	return err
}

// CreateChargeAssignment enforces at most one assignment per
// (charge, student, month): an application-level pre-check first, with the
// unique index as the backstop under concurrency.
func (s *Store) CreateChargeAssignment(ctx context.Context, a fees.ChargeAssignment) (*fees.ChargeAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existingID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM charge_assignments
		WHERE charge_id = ? AND student_id = ? AND applied_month = ?
	`, a.ChargeID, a.StudentID, a.AppliedMonth.String()).Scan(&existingID)
	if err == nil {
		return nil, &fees.DuplicateChargeError{
			ChargeID: a.ChargeID, StudentID: a.StudentID, Month: a.AppliedMonth, ExistingID: existingID,
		}
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO charge_assignments (id, charge_id, student_id, applied_month, amount, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ChargeID, a.StudentID, a.AppliedMonth.String(), a.Amount.String(), a.Reason, now())
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &fees.DuplicateChargeError{
				ChargeID: a.ChargeID, StudentID: a.StudentID, Month: a.AppliedMonth,
			}
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) ChargesFor(ctx context.Context, studentID fees.StudentID, period fees.Month) ([]fees.ChargeAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.charge_id, a.student_id, a.applied_month, a.amount, a.reason,
		       d.name, d.type, d.value_type, d.value, d.is_recurring, d.is_active
		FROM charge_assignments a
		JOIN charge_definitions d ON d.id = a.charge_id
		WHERE a.student_id = ? AND a.applied_month = ?
		ORDER BY a.id ASC
	`, studentID, period.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []fees.ChargeAssignment
	for rows.Next() {
		var (
			a            fees.ChargeAssignment
			appliedMonth string
			amount       string
			reason       sql.NullString
			value        string
		)
		if err := rows.Scan(&a.ID, &a.ChargeID, &a.StudentID, &appliedMonth, &amount, &reason,
			&a.Definition.Name, &a.Definition.Type, &a.Definition.ValueType, &value,
			&a.Definition.IsRecurring, &a.Definition.IsActive); err != nil {
			return nil, err
		}
		a.Definition.ID = a.ChargeID
		a.Definition.Value = fees.MustParseDecimal(value)
		a.Amount = fees.MustParseDecimal(amount)
		a.Reason = reason.String
		if m, err := fees.ParseMonth(appliedMonth); err == nil {
			a.AppliedMonth = m
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// =============================================================================
// HISTORY LEDGER (fees.HistoryStore, append-only)
// =============================================================================

// Append persists one new history version. The unique version index turns
// concurrent duplicate appends into fees.ErrVersionConflict.
func (s *Store) Append(ctx context.Context, e fees.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	breakdownJSON, err := json.Marshal(e.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO student_fee_history
		(id, student_id, period_month, version, structure_version_id,
		 base_amount, scholarship_amount, extra_charges_amount, final_payable,
		 breakdown_json, created_at, created_by_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.StudentID, e.PeriodMonth.String(), e.Version, e.StructureVersionID,
		e.BaseAmount.String(), e.ScholarshipAmount.String(), e.ExtraChargesAmount.String(),
		e.FinalPayable.String(), string(breakdownJSON),
		e.CreatedAt.UTC().Format(time.RFC3339), nullString(e.CreatedByID))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &fees.VersionConflictError{
				StudentID: e.StudentID, Month: e.PeriodMonth, Version: e.Version,
			}
		}
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, studentID fees.StudentID, period fees.Month) (*fees.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, period_month, version, structure_version_id,
		       base_amount, scholarship_amount, extra_charges_amount, final_payable,
		       breakdown_json, created_at, created_by_id
		FROM student_fee_history
		WHERE student_id = ? AND period_month = ?
		ORDER BY version DESC
		LIMIT 1
	`, studentID, period.String())

	e, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) History(ctx context.Context, studentID fees.StudentID, from, to fees.Month, limit, offset int) (*fees.HistoryPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := &fees.HistoryPage{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM student_fee_history
		WHERE student_id = ? AND period_month >= ? AND period_month <= ?
	`, studentID, from.String(), to.String()).Scan(&page.Total)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, period_month, version, structure_version_id,
		       base_amount, scholarship_amount, extra_charges_amount, final_payable,
		       breakdown_json, created_at, created_by_id
		FROM student_fee_history
		WHERE student_id = ? AND period_month >= ? AND period_month <= ?
		ORDER BY period_month DESC, version DESC
		LIMIT ? OFFSET ?
	`, studentID, from.String(), to.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		page.Entries = append(page.Entries, *e)
	}
	return page, rows.Err()
}

// LatestPerStudent returns each computed student's highest version for the
// month, optionally restricted to one class.
func (s *Store) LatestPerStudent(ctx context.Context, period fees.Month, classID fees.ClassID) ([]fees.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.student_id, h.period_month, h.version, h.structure_version_id,
		       h.base_amount, h.scholarship_amount, h.extra_charges_amount, h.final_payable,
		       h.breakdown_json, h.created_at, h.created_by_id
		FROM student_fee_history h
		JOIN students st ON st.id = h.student_id
		WHERE h.period_month = ?
		  AND (? = '' OR st.class_id = ?)
		  AND h.version = (
			SELECT MAX(version) FROM student_fee_history
			WHERE student_id = h.student_id AND period_month = h.period_month
		  )
		ORDER BY h.student_id ASC
	`, period.String(), classID, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fees.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanHistory(row rowScanner) (*fees.HistoryEntry, error) {
	var (
		e             fees.HistoryEntry
		periodMonth   string
		base          string
		scholarship   string
		charges       string
		final         string
		breakdownJSON string
		createdAt     string
		createdBy     sql.NullString
	)
	err := row.Scan(&e.ID, &e.StudentID, &periodMonth, &e.Version, &e.StructureVersionID,
		&base, &scholarship, &charges, &final, &breakdownJSON, &createdAt, &createdBy)
	if err != nil {
		return nil, err
	}

	if m, err := fees.ParseMonth(periodMonth); err == nil {
		e.PeriodMonth = m
	}
	e.BaseAmount = fees.MustParseDecimal(base)
	e.ScholarshipAmount = fees.MustParseDecimal(scholarship)
	e.ExtraChargesAmount = fees.MustParseDecimal(charges)
	e.FinalPayable = fees.MustParseDecimal(final)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.CreatedByID = createdBy.String
	if err := json.Unmarshal([]byte(breakdownJSON), &e.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown: %w", err)
	}
	return &e, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). The history table is included
// here and ONLY here - nothing in the serving paths deletes from it.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"student_fee_history", "charge_assignments", "charge_definitions",
		"scholarship_assignments", "scholarship_definitions",
		"fee_structure_versions", "fee_structures", "students", "classes",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
