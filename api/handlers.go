/*
handlers.go - HTTP API handlers for the fee engine

PURPOSE:
  Exposes the computation engine and the history ledger via REST. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Computation:
    POST   /api/fees/compute                  Run the batch for a month

  Ledger reads:
    GET    /api/students/{id}/fees/{month}    Latest version for a month
    GET    /api/students/{id}/fees            Paginated history (from/to)
    GET    /api/fees/summary                  Bulk latest-per-student + totals

  Collaborator writes (fee administration workflows):
    POST   /api/classes, /api/students
    POST   /api/structures                    Structure metadata
    POST   /api/structures/{id}/versions      Append an immutable version
    GET    /api/structures/{id}/versions      Version chain
    POST   /api/scholarships                  Definition upsert
    POST   /api/scholarships/assignments      Time-bounded student link
    POST   /api/charges                       Definition upsert
    POST   /api/charges/assignments           Per-month application (409 on dup)

  Scenarios (dev/demo):
    GET    /api/scenarios
    POST   /api/scenarios/load
    POST   /api/scenarios/reset

ERROR HANDLING:
  Domain errors map onto HTTP status via their taxonomy:
  - fees.IsInvalidArgument -> 400
  - fees.IsNotFound        -> 404
  - fees.IsConflict        -> 409
  - anything else          -> 500 (raw store errors are never exposed)

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/campus/fee-engine/fees"
	"github.com/campus/fee-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *fees.Engine

	currentScenario string
}

// NewHandler wires a handler (and its engine) over the store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:  store,
		Engine: fees.NewEngine(store, store, store, store, store),
	}
}

// =============================================================================
// COMPUTATION
// =============================================================================

// Compute runs the batch fee computation for a month.
func (h *Handler) Compute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Engine.ComputeForMonth(r.Context(), fees.ComputeRequest{
		Month:           req.Month,
		ClassID:         fees.ClassID(req.ClassID),
		IncludeExisting: req.IncludeExisting,
		ActorID:         req.ActorID,
	})
	if err != nil {
		writeDomainError(w, "Computation rejected", err)
		return
	}

	resp := ComputeResponse{
		Count:     result.Count,
		Evaluated: result.Evaluated,
		Skipped:   result.Skipped,
		Unchanged: result.Unchanged,
		Failed:    result.Failed,
	}
	recordComputeMetrics(&resp)
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// LEDGER READS
// =============================================================================

// GetLatestFee returns the latest history version for a student+month.
func (h *Handler) GetLatestFee(w http.ResponseWriter, r *http.Request) {
	studentID := fees.StudentID(chi.URLParam(r, "id"))
	period, err := fees.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return
	}

	entry, err := h.Store.Latest(r.Context(), studentID, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read fee history", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "No fee history for student/month", nil)
		return
	}
	writeJSON(w, http.StatusOK, historyDTO(*entry))
}

// GetFeeHistory returns a student's paginated history for a month range.
func (h *Handler) GetFeeHistory(w http.ResponseWriter, r *http.Request) {
	studentID := fees.StudentID(chi.URLParam(r, "id"))

	from, err := fees.ParseMonth(queryDefault(r, "from", "0001-01"))
	if err != nil {
		writeDomainError(w, "Invalid from month", err)
		return
	}
	to, err := fees.ParseMonth(queryDefault(r, "to", "9999-12"))
	if err != nil {
		writeDomainError(w, "Invalid to month", err)
		return
	}
	limit, _ := strconv.Atoi(queryDefault(r, "limit", "50"))
	offset, _ := strconv.Atoi(queryDefault(r, "offset", "0"))

	page, err := h.Store.History(r.Context(), studentID, from, to, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read fee history", err)
		return
	}

	dtos := make([]HistoryEntryDTO, len(page.Entries))
	for i, e := range page.Entries {
		dtos[i] = historyDTO(e)
	}
	writeJSON(w, http.StatusOK, HistoryPageDTO{Entries: dtos, Total: page.Total, Limit: limit, Offset: offset})
}

// GetMonthSummary returns the latest version per student for a month with
// page aggregate totals, optionally restricted to a class.
func (h *Handler) GetMonthSummary(w http.ResponseWriter, r *http.Request) {
	period, err := fees.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return
	}
	classID := fees.ClassID(r.URL.Query().Get("class_id"))

	entries, err := h.Store.LatestPerStudent(r.Context(), period, classID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read fee summary", err)
		return
	}

	summary := MonthSummaryDTO{Month: period.String(), ClassID: string(classID)}
	totals := SummaryTotalsDTO{
		Base:         decimal.Zero,
		Scholarships: decimal.Zero,
		Charges:      decimal.Zero,
		Final:        decimal.Zero,
	}
	for _, e := range entries {
		summary.Students = append(summary.Students, historyDTO(e))
		totals.Base = totals.Base.Add(e.BaseAmount)
		totals.Scholarships = totals.Scholarships.Add(e.ScholarshipAmount)
		totals.Charges = totals.Charges.Add(e.ExtraChargesAmount)
		totals.Final = totals.Final.Add(e.FinalPayable)
	}
	summary.Totals = totals
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// COLLABORATOR WRITES
// =============================================================================

func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	if err := h.Store.SaveClass(r.Context(), fees.Class{ID: fees.ClassID(req.ID), Name: req.Name}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save class", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.ClassID == "" {
		writeError(w, http.StatusBadRequest, "id and class_id are required", nil)
		return
	}
	exists, err := h.Store.ClassExists(r.Context(), fees.ClassID(req.ClassID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check class", err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "Class not found", nil)
		return
	}
	student := fees.Student{ID: fees.StudentID(req.ID), ClassID: fees.ClassID(req.ClassID), Name: req.Name}
	if err := h.Store.SaveStudent(r.Context(), student); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save student", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) CreateStructure(w http.ResponseWriter, r *http.Request) {
	var req CreateStructureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.ClassID == "" {
		writeError(w, http.StatusBadRequest, "id and class_id are required", nil)
		return
	}
	status := fees.StructureStatus(req.Status)
	if status == "" {
		status = fees.StructureActive
	}
	structure := fees.FeeStructure{
		ID:           fees.StructureID(req.ID),
		ClassID:      fees.ClassID(req.ClassID),
		AcademicYear: req.AcademicYear,
		Name:         req.Name,
		Status:       status,
	}
	if err := h.Store.SaveStructure(r.Context(), structure); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save structure", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// AppendStructureVersion appends an immutable, dated snapshot to a structure.
func (h *Handler) AppendStructureVersion(w http.ResponseWriter, r *http.Request) {
	structureID := fees.StructureID(chi.URLParam(r, "id"))

	var req AppendVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveFrom, err := time.Parse("2006-01-02", req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}
	items, totalAnnual, err := parseItems(req.Items)
	if err != nil {
		writeDomainError(w, "Invalid items", err)
		return
	}

	version, err := h.Store.AppendStructureVersion(r.Context(), fees.FeeStructureVersion{
		StructureID:   structureID,
		EffectiveFrom: effectiveFrom,
		ChangeReason:  req.ChangeReason,
		Snapshot:      items,
		TotalAnnual:   totalAnnual,
	})
	if err != nil {
		writeDomainError(w, "Failed to append structure version", err)
		return
	}
	writeJSON(w, http.StatusCreated, versionDTO(*version))
}

// ListStructureVersions returns a structure's version chain.
func (h *Handler) ListStructureVersions(w http.ResponseWriter, r *http.Request) {
	structureID := fees.StructureID(chi.URLParam(r, "id"))

	versions, err := h.Store.StructureVersions(r.Context(), structureID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list versions", err)
		return
	}
	dtos := make([]StructureVersionDTO, len(versions))
	for i, v := range versions {
		dtos[i] = versionDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateScholarship(w http.ResponseWriter, r *http.Request) {
	var req CreateScholarshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	valueType := fees.ValueType(req.ValueType)
	value, err := parseValue(req.Value, valueType)
	if err != nil {
		writeDomainError(w, "Invalid scholarship value", err)
		return
	}
	def := fees.ScholarshipDefinition{
		ID:        fees.ScholarshipID(req.ID),
		Name:      req.Name,
		Type:      req.Type,
		ValueType: valueType,
		Value:     value,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	if err := h.Store.SaveScholarshipDefinition(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save scholarship", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) AssignScholarship(w http.ResponseWriter, r *http.Request) {
	var req AssignScholarshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	effectiveFrom, err := time.Parse("2006-01-02", req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}
	assignment := fees.ScholarshipAssignment{
		ScholarshipID: fees.ScholarshipID(req.ScholarshipID),
		StudentID:     fees.StudentID(req.StudentID),
		EffectiveFrom: effectiveFrom,
	}
	if req.ExpiresAt != nil {
		expires, err := time.Parse("2006-01-02", *req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expires_at (use YYYY-MM-DD)", err)
			return
		}
		if expires.Before(effectiveFrom) {
			writeError(w, http.StatusBadRequest, "expires_at precedes effective_from", nil)
			return
		}
		assignment.ExpiresAt = &expires
	}
	saved, err := h.Store.AssignScholarship(r.Context(), assignment)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to assign scholarship", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": saved.ID})
}

func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req CreateChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	valueType := fees.ValueType(req.ValueType)
	if valueType == "" {
		valueType = fees.ValueFixed
	}
	value, err := parseValue(req.Value, valueType)
	if err != nil {
		writeDomainError(w, "Invalid charge value", err)
		return
	}
	def := fees.ChargeDefinition{
		ID:          fees.ChargeID(req.ID),
		Name:        req.Name,
		Type:        req.Type,
		ValueType:   valueType,
		Value:       value,
		IsRecurring: req.IsRecurring,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.Store.SaveChargeDefinition(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// AssignCharge applies a charge to a student for one month. The amount is
// materialized now; later edits to the definition do not touch it.
func (h *Handler) AssignCharge(w http.ResponseWriter, r *http.Request) {
	var req AssignChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := fees.ParseMonth(req.Month)
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return
	}

	if req.Amount == "" {
		writeError(w, http.StatusBadRequest, "amount is required", nil)
		return
	}
	amount, err := parseValue(req.Amount, fees.ValueFixed)
	if err != nil {
		writeDomainError(w, "Invalid amount", err)
		return
	}

	saved, err := h.Store.CreateChargeAssignment(r.Context(), fees.ChargeAssignment{
		ChargeID:     fees.ChargeID(req.ChargeID),
		StudentID:    fees.StudentID(req.StudentID),
		AppliedMonth: period,
		Amount:       amount,
		Reason:       req.Reason,
	})
	if err != nil {
		writeDomainError(w, "Failed to assign charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": saved.ID})
}

// =============================================================================
// HELPERS
// =============================================================================

func versionDTO(v fees.FeeStructureVersion) StructureVersionDTO {
	return StructureVersionDTO{
		ID:            v.ID,
		StructureID:   string(v.StructureID),
		Version:       v.Version,
		EffectiveFrom: v.EffectiveFrom.Format("2006-01-02"),
		ChangeReason:  v.ChangeReason,
		Items:         v.Snapshot,
		TotalAnnual:   v.TotalAnnual,
	}
}

func parseItems(dtos []FeeItemDTO) ([]fees.FeeItem, decimal.Decimal, error) {
	if len(dtos) == 0 {
		return nil, decimal.Zero, &fees.ValidationError{Field: "items", Message: "at least one item is required"}
	}
	items := make([]fees.FeeItem, len(dtos))
	totalAnnual := decimal.Zero
	for i, dto := range dtos {
		amount, err := parseValue(dto.Amount, fees.ValueFixed)
		if err != nil {
			return nil, decimal.Zero, err
		}
		freq := fees.Frequency(dto.Frequency)
		switch freq {
		case fees.FreqMonthly, fees.FreqTerm, fees.FreqAnnual, fees.FreqOneTime:
		default:
			return nil, decimal.Zero, &fees.ValidationError{Field: "frequency", Message: "unknown frequency " + dto.Frequency}
		}
		items[i] = fees.FeeItem{
			Category:   dto.Category,
			Label:      dto.Label,
			Amount:     amount,
			Frequency:  freq,
			IsOptional: dto.IsOptional,
		}
		totalAnnual = totalAnnual.Add(annualized(amount, freq))
	}
	return items, totalAnnual, nil
}

func annualized(amount decimal.Decimal, freq fees.Frequency) decimal.Decimal {
	switch freq {
	case fees.FreqMonthly:
		return amount.Mul(decimal.NewFromInt(fees.MonthsPerYear))
	case fees.FreqTerm:
		return amount.Mul(decimal.NewFromInt(fees.TermsPerYear))
	default:
		return amount
	}
}

// parseValue validates a monetary/percentage input: well-formed decimal,
// non-negative, and (for percentages) at most 100.
func parseValue(s string, valueType fees.ValueType) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &fees.ValidationError{Field: "value", Message: "malformed decimal " + s}
	}
	if d.IsNegative() {
		return decimal.Zero, &fees.ValidationError{Field: "value", Message: "must not be negative"}
	}
	if valueType == fees.ValuePercentage && d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, &fees.ValidationError{Field: "value", Message: "percentage must not exceed 100"}
	}
	return d, nil
}

func queryDefault(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the fee error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case fees.IsInvalidArgument(err):
		writeError(w, http.StatusBadRequest, message, err)
	case fees.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case fees.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
