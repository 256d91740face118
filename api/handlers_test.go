/*
handlers_test.go - End-to-end tests for the HTTP API

Exercises the full stack: router -> handlers -> engine -> sqlite (:memory:).
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus/fee-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	router := NewRouter(NewHandler(store), []string{"http://localhost:5173"})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// seedSchool creates a class, two students, and a published fee structure
// (monthly 100 + annual 1200 => base 200/month) through the API.
func seedSchool(t *testing.T, server *httptest.Server) {
	t.Helper()

	resp := doJSON(t, server, http.MethodPost, "/api/classes/", CreateClassRequest{ID: "grade-1", Name: "Grade 1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, id := range []string{"stu-1", "stu-2"} {
		resp = doJSON(t, server, http.MethodPost, "/api/students/", CreateStudentRequest{ID: id, ClassID: "grade-1", Name: id})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/structures/", CreateStructureRequest{
		ID: "fs-1", ClassID: "grade-1", AcademicYear: "2025", Name: "Grade 1 Fees",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/api/structures/fs-1/versions", AppendVersionRequest{
		EffectiveFrom: "2025-01-01",
		ChangeReason:  "initial",
		Items: []FeeItemDTO{
			{Category: "tuition", Label: "Tuition", Amount: "100", Frequency: "MONTHLY"},
			{Category: "development", Label: "Development", Amount: "1200", Frequency: "ANNUAL"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// COMPUTE FLOW
// =============================================================================

func TestCompute_EndToEnd(t *testing.T) {
	// GIVEN: A seeded school
	// WHEN: Computing March and reading the ledger back
	// THEN: Both students get version 1 with final 200.00

	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: "2025-03"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[ComputeResponse](t, resp)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, 2, result.Evaluated)

	resp = doJSON(t, server, http.MethodGet, "/api/students/stu-1/fees/2025-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := decode[HistoryEntryDTO](t, resp)
	assert.Equal(t, 1, entry.Version)
	assert.Equal(t, "200", entry.FinalPayable.String())
	assert.Equal(t, "2025-03", entry.PeriodMonth)
}

func TestCompute_Idempotent(t *testing.T) {
	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: "2025-03"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: "2025-03"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[ComputeResponse](t, resp)
	assert.Equal(t, 0, second.Count)
	assert.Equal(t, 2, second.Unchanged)
}

func TestCompute_MalformedMonth(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: "March 2025"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompute_UnknownClass(t *testing.T) {
	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: "2025-03", ClassID: "grade-99"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// LEDGER READS
// =============================================================================

func TestGetLatestFee_NotComputedYet(t *testing.T) {
	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodGet, "/api/students/stu-1/fees/2025-03", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetFeeHistory_Paginated(t *testing.T) {
	server := newTestServer(t)
	seedSchool(t, server)

	for _, m := range []string{"2025-01", "2025-02", "2025-03"} {
		resp := doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: m})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := doJSON(t, server, http.MethodGet, "/api/students/stu-1/fees?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[HistoryPageDTO](t, resp)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "2025-03", page.Entries[0].PeriodMonth, "newest month first")

	resp = doJSON(t, server, http.MethodGet, "/api/students/stu-1/fees?from=2025-02&to=2025-02", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scoped := decode[HistoryPageDTO](t, resp)
	assert.Equal(t, 1, scoped.Total)
}

func TestGetMonthSummary_AggregatesTotals(t *testing.T) {
	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: "2025-03"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, server, http.MethodGet, "/api/fees/summary?month=2025-03&class_id=grade-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[MonthSummaryDTO](t, resp)
	assert.Len(t, summary.Students, 2)
	assert.Equal(t, "400", summary.Totals.Final.String())
}

// =============================================================================
// CHARGES AND RECOMPUTATION
// =============================================================================

func TestAssignCharge_DuplicateIs409(t *testing.T) {
	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/charges/", CreateChargeRequest{
		ID: "chg-lab", Name: "Lab Fee", Value: "15.50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assign := AssignChargeRequest{ChargeID: "chg-lab", StudentID: "stu-1", Month: "2025-03", Amount: "15.50"}
	resp = doJSON(t, server, http.MethodPost, "/api/charges/assignments", assign)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/api/charges/assignments", assign)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestChargeTriggersNewVersion(t *testing.T) {
	// GIVEN: March already computed
	// WHEN: A charge lands in March and March is recomputed
	// THEN: The student's ledger gains version 2 with the charge included

	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: "2025-03"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/api/charges/", CreateChargeRequest{
		ID: "chg-lab", Name: "Lab Fee", Value: "15.50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = doJSON(t, server, http.MethodPost, "/api/charges/assignments", AssignChargeRequest{
		ChargeID: "chg-lab", StudentID: "stu-1", Month: "2025-03", Amount: "15.50", Reason: "Broken beaker",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/api/fees/compute", ComputeRequest{Month: "2025-03"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[ComputeResponse](t, resp)
	assert.Equal(t, 1, result.Count, "only the charged student gets a new version")
	assert.Equal(t, 1, result.Unchanged)

	resp = doJSON(t, server, http.MethodGet, "/api/students/stu-1/fees/2025-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := decode[HistoryEntryDTO](t, resp)
	assert.Equal(t, 2, entry.Version)
	assert.Equal(t, "215.5", entry.FinalPayable.String())
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCreateScholarship_RejectsOverHundredPercent(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/api/scholarships/", CreateScholarshipRequest{
		ID: "sch-1", Name: "Too Generous", ValueType: "PERCENTAGE", Value: "120",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAppendVersion_RejectsNegativeAmount(t *testing.T) {
	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/structures/fs-1/versions", AppendVersionRequest{
		EffectiveFrom: "2025-06-01",
		Items:         []FeeItemDTO{{Category: "tuition", Label: "Tuition", Amount: "-5", Frequency: "MONTHLY"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAppendVersion_RejectsBackdatedRevision(t *testing.T) {
	server := newTestServer(t)
	seedSchool(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/structures/fs-1/versions", AppendVersionRequest{
		EffectiveFrom: "2024-09-01",
		Items:         []FeeItemDTO{{Category: "tuition", Label: "Tuition", Amount: "90", Frequency: "MONTHLY"}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenario_SmallSchool(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "small-school"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The mid-year revision applies from June; May keeps the old tuition.
	resp = doJSON(t, server, http.MethodGet, "/api/students/stu-amina/fees/2025-05", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	may := decode[HistoryEntryDTO](t, resp)

	resp = doJSON(t, server, http.MethodGet, "/api/students/stu-amina/fees/2025-06", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	june := decode[HistoryEntryDTO](t, resp)

	assert.True(t, june.FinalPayable.GreaterThan(may.FinalPayable),
		"expected June (%s) above May (%s)", june.FinalPayable, may.FinalPayable)
}

func TestScenario_Unknown(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Contains(t, body.Error, "Unknown scenario")
}
