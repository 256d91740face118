// Package store provides an in-memory implementation of the fee engine's
// persistence interfaces, for tests and demos.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campus/fee-engine/fees"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type historyKey struct {
	StudentID fees.StudentID
	Month     string
}

type Memory struct {
	mu sync.RWMutex

	classes      map[fees.ClassID]fees.Class
	students     map[fees.StudentID]fees.Student
	structures   map[fees.StructureID]fees.FeeStructure
	versions     map[fees.StructureID][]fees.FeeStructureVersion
	scholarships map[fees.StudentID][]fees.ScholarshipAssignment
	charges      map[fees.StudentID][]fees.ChargeAssignment
	history      map[historyKey][]fees.HistoryEntry
}

func NewMemory() *Memory {
	return &Memory{
		classes:      make(map[fees.ClassID]fees.Class),
		students:     make(map[fees.StudentID]fees.Student),
		structures:   make(map[fees.StructureID]fees.FeeStructure),
		versions:     make(map[fees.StructureID][]fees.FeeStructureVersion),
		scholarships: make(map[fees.StudentID][]fees.ScholarshipAssignment),
		charges:      make(map[fees.StudentID][]fees.ChargeAssignment),
		history:      make(map[historyKey][]fees.HistoryEntry),
	}
}

// =============================================================================
// SEEDING (collaborator workflows in production)
// =============================================================================

func (m *Memory) AddClass(c fees.Class) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = c
}

func (m *Memory) AddStudent(s fees.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	if _, ok := m.classes[s.ClassID]; !ok {
		m.classes[s.ClassID] = fees.Class{ID: s.ClassID}
	}
}

func (m *Memory) SaveStructure(s fees.FeeStructure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structures[s.ID] = s
}

// AppendStructureVersion appends a new immutable version. Version 0 means
// "assign the next number". Enforces monotonic versions and non-decreasing
// effective-from per structure.
func (m *Memory) AppendStructureVersion(v fees.FeeStructureVersion) (fees.FeeStructureVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.versions[v.StructureID]
	next := 1
	if len(existing) > 0 {
		last := existing[len(existing)-1]
		next = last.Version + 1
		if v.EffectiveFrom.Before(last.EffectiveFrom) {
			return fees.FeeStructureVersion{}, fees.ErrVersionOrder
		}
	}
	if v.Version == 0 {
		v.Version = next
	} else if v.Version != next {
		return fees.FeeStructureVersion{}, fees.ErrVersionOrder
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	m.versions[v.StructureID] = append(existing, v)
	return v, nil
}

func (m *Memory) AssignScholarship(a fees.ScholarshipAssignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.scholarships[a.StudentID] = append(m.scholarships[a.StudentID], a)
}

// CreateChargeAssignment enforces the one-per-(charge, student, month)
// invariant before inserting.
func (m *Memory) CreateChargeAssignment(a fees.ChargeAssignment) (fees.ChargeAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.charges[a.StudentID] {
		if existing.ChargeID == a.ChargeID && existing.AppliedMonth.Equal(a.AppliedMonth) {
			return fees.ChargeAssignment{}, &fees.DuplicateChargeError{
				ChargeID:   a.ChargeID,
				StudentID:  a.StudentID,
				Month:      a.AppliedMonth,
				ExistingID: existing.ID,
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.charges[a.StudentID] = append(m.charges[a.StudentID], a)
	return a, nil
}

// =============================================================================
// fees.StructureStore
// =============================================================================

func (m *Memory) ResolveLatestVersion(_ context.Context, classID fees.ClassID, onOrBefore time.Time) (*fees.FeeStructureVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *fees.FeeStructureVersion
	for structureID, versions := range m.versions {
		if m.structures[structureID].ClassID != classID {
			continue
		}
		for i := range versions {
			v := versions[i]
			if v.EffectiveFrom.After(onOrBefore) {
				continue
			}
			if best == nil ||
				v.EffectiveFrom.After(best.EffectiveFrom) ||
				(v.EffectiveFrom.Equal(best.EffectiveFrom) && v.Version > best.Version) {
				copied := v
				best = &copied
			}
		}
	}
	return best, nil
}

func (m *Memory) Structure(_ context.Context, id fees.StructureID) (*fees.FeeStructure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.structures[id]
	if !ok {
		return nil, fees.ErrStructureNotFound
	}
	return &s, nil
}

// =============================================================================
// fees.ScholarshipStore / fees.ChargeStore
// =============================================================================

func (m *Memory) ActiveScholarships(_ context.Context, studentID fees.StudentID, period fees.Month) ([]fees.ScholarshipAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []fees.ScholarshipAssignment
	for _, a := range m.scholarships[studentID] {
		if a.ActiveIn(period) {
			active = append(active, a)
		}
	}
	return active, nil
}

func (m *Memory) ChargesFor(_ context.Context, studentID fees.StudentID, period fees.Month) ([]fees.ChargeAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var applied []fees.ChargeAssignment
	for _, a := range m.charges[studentID] {
		if a.AppliedMonth.Equal(period) {
			applied = append(applied, a)
		}
	}
	return applied, nil
}

// =============================================================================
// fees.StudentStore
// =============================================================================

func (m *Memory) Students(_ context.Context) ([]fees.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	students := make([]fees.Student, 0, len(m.students))
	for _, s := range m.students {
		students = append(students, s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (m *Memory) StudentsByClass(_ context.Context, classID fees.ClassID) ([]fees.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var students []fees.Student
	for _, s := range m.students {
		if s.ClassID == classID {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (m *Memory) ClassExists(_ context.Context, classID fees.ClassID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.classes[classID]
	return ok, nil
}

// =============================================================================
// fees.HistoryStore (append-only)
// =============================================================================

func (m *Memory) Append(_ context.Context, entry fees.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := historyKey{StudentID: entry.StudentID, Month: entry.PeriodMonth.String()}
	for _, existing := range m.history[k] {
		if existing.Version == entry.Version {
			return &fees.VersionConflictError{
				StudentID: entry.StudentID,
				Month:     entry.PeriodMonth,
				Version:   entry.Version,
			}
		}
	}
	m.history[k] = append(m.history[k], entry)
	return nil
}

func (m *Memory) Latest(_ context.Context, studentID fees.StudentID, period fees.Month) (*fees.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.history[historyKey{StudentID: studentID, Month: period.String()}]
	if len(entries) == 0 {
		return nil, nil
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Version > best.Version {
			best = e
		}
	}
	return &best, nil
}

func (m *Memory) History(_ context.Context, studentID fees.StudentID, from, to fees.Month, limit, offset int) (*fees.HistoryPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []fees.HistoryEntry
	for k, entries := range m.history {
		if k.StudentID != studentID {
			continue
		}
		for _, e := range entries {
			if e.PeriodMonth.Before(from) || e.PeriodMonth.After(to) {
				continue
			}
			matched = append(matched, e)
		}
	}
	// Newest first: by month desc, then version desc.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PeriodMonth.Equal(matched[j].PeriodMonth) {
			return matched[j].PeriodMonth.Before(matched[i].PeriodMonth)
		}
		return matched[i].Version > matched[j].Version
	})

	page := &fees.HistoryPage{Total: len(matched)}
	if offset >= len(matched) {
		return page, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page.Entries = matched[offset:end]
	return page, nil
}

func (m *Memory) LatestPerStudent(ctx context.Context, period fees.Month, classID fees.ClassID) ([]fees.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest []fees.HistoryEntry
	for id, s := range m.students {
		if classID != "" && s.ClassID != classID {
			continue
		}
		entries := m.history[historyKey{StudentID: id, Month: period.String()}]
		if len(entries) == 0 {
			continue
		}
		best := entries[0]
		for _, e := range entries[1:] {
			if e.Version > best.Version {
				best = e
			}
		}
		latest = append(latest, best)
	}
	sort.Slice(latest, func(i, j int) bool { return latest[i].StudentID < latest[j].StudentID })
	return latest, nil
}
