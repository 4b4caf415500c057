package api_test

import (
	"net/http"
	"testing"

	"github.com/rongwang/leave-roster-server/internal/api/testutils"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveWeek(t *testing.T, testCtx *testutils.TestContext, leaveType models.LeaveType, week int, slots, baseline []string) models.SaveLeavesResponse {
	t.Helper()

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/leaves",
		models.SaveLeavesRequest{
			Year:  2025,
			Type:  leaveType,
			Weeks: []models.WeekSlots{{WeekNumber: week, Slots: slots, Baseline: baseline}},
		},
		testutils.ActorHeaders(),
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SaveLeavesResponse
	testutils.DecodeJSON(t, w, &resp)
	return resp
}

func TestSaveLeaves(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	// Test case 1: Create a week
	resp := saveWeek(t, testCtx, models.LeaveAnnual, 35, []string{"A"}, nil)
	assert.Equal(t, "success", resp.Status)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "created", resp.Results[0].Action)
	leaveID := resp.Results[0].LeaveID

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/leaves/"+leaveID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var weekResp models.LeaveWeekResponse
	testutils.DecodeJSON(t, w, &weekResp)
	assert.Equal(t, []string{"A", "", "", ""}, weekResp.Week.Slots)
	assert.Equal(t, "25–31 August", weekResp.Week.DateRange)

	// Test case 2: Re-saving the baseline is a no-op
	resp = saveWeek(t, testCtx, models.LeaveAnnual, 35, []string{"A"}, []string{"A", "", "", ""})
	assert.Equal(t, "unchanged", resp.Results[0].Action)

	// Test case 3: Missing actor
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/leaves",
		models.SaveLeavesRequest{Year: 2025, Type: models.LeaveAnnual, Weeks: []models.WeekSlots{{WeekNumber: 36, Slots: []string{"B"}}}},
		nil,
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 4: Invalid request (missing type)
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/leaves",
		map[string]any{"year": 2025, "weeks": []any{}},
		testutils.ActorHeaders(),
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp models.ErrorResponse
	testutils.DecodeJSON(t, w, &errResp)
	assert.Equal(t, "INVALID_ARGUMENT", errResp.Code)
}

func TestSaveLeaves_DoubleBookingReportsPerWeek(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	saveWeek(t, testCtx, models.LeaveAnnual, 35, []string{"A"}, nil)

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/availability?name=A&year=2025&week=35", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var avail models.AvailabilityResponse
	testutils.DecodeJSON(t, w, &avail)
	assert.False(t, avail.Available)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/leaves",
		models.SaveLeavesRequest{
			Year: 2025,
			Type: models.LeaveSummer,
			Weeks: []models.WeekSlots{
				{WeekNumber: 35, Slots: []string{"", "A"}},
				{WeekNumber: 36, Slots: []string{"B"}},
			},
		},
		testutils.ActorHeaders(),
	)
	assert.Equal(t, http.StatusMultiStatus, w.Code)

	var resp models.SaveLeavesResponse
	testutils.DecodeJSON(t, w, &resp)
	assert.Equal(t, "partial", resp.Status)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "failed", resp.Results[0].Action)
	assert.Equal(t, "created", resp.Results[1].Action)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/availability?year=2025", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListLeaveWeeks(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	saveWeek(t, testCtx, models.LeaveAnnual, 35, []string{"A"}, nil)
	saveWeek(t, testCtx, models.LeaveAnnual, 20, []string{"B"}, nil)
	saveWeek(t, testCtx, models.LeaveAnnual, 20, []string{""}, []string{"B"})

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/leaves?year=2025&type=annual", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.LeaveWeeksResponse
	testutils.DecodeJSON(t, w, &resp)
	require.Len(t, resp.Weeks, 1)
	assert.Equal(t, 35, resp.Weeks[0].WeekNumber)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/leaves?year=2025&type=annual&includeDeleted=true", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeJSON(t, w, &resp)
	require.Len(t, resp.Weeks, 2)
	assert.Equal(t, 20, resp.Weeks[0].WeekNumber)
	assert.True(t, resp.Weeks[0].Deleted)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/leaves?year=2025&type=winter", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproval(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	saveWeek(t, testCtx, models.LeaveSummer, 36, []string{"C", "D"}, nil)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/leaves/approval",
		models.ApprovalRequest{Year: 2025, WeekNumber: 36, Approved: true},
		testutils.ActorHeaders(),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/leaves?year=2025&type=annual", nil, nil)
	var resp models.LeaveWeeksResponse
	testutils.DecodeJSON(t, w, &resp)
	require.Len(t, resp.Weeks, 1)
	assert.Equal(t, []string{"C", "D", "", ""}, resp.Weeks[0].Slots)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/leaves/approval",
		models.ApprovalRequest{Year: 2025, WeekNumber: 12, Approved: true},
		testutils.ActorHeaders(),
	)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveAndDeleteLeaveWeek(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	resp := saveWeek(t, testCtx, models.LeaveAnnual, 35, []string{"A"}, nil)
	leaveID := resp.Results[0].LeaveID

	// Test case 1: Hard delete is always refused
	w := testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/leaves/"+leaveID, nil, testutils.ActorHeaders())
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Test case 2: Soft delete keeps the week retrievable
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/leaves/"+leaveID+"/remove", nil, testutils.ActorHeaders())
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/leaves/"+leaveID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var weekResp models.LeaveWeekResponse
	testutils.DecodeJSON(t, w, &weekResp)
	assert.True(t, weekResp.Week.Deleted)

	// Test case 3: Unknown week
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/leaves/non-existent-id", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Test case 4: Ledger of the week
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/leaves/"+leaveID+"/audit", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var auditResp models.AuditEntriesResponse
	testutils.DecodeJSON(t, w, &auditResp)
	assert.Equal(t, "leaves/"+leaveID, auditResp.Target)
	require.Len(t, auditResp.Entries, 2)
	assert.Equal(t, models.ChangeCreate, auditResp.Entries[0].ChangeType)
	assert.Equal(t, models.ChangeSoftDelete, auditResp.Entries[1].ChangeType)
	assert.Equal(t, testutils.TestActor, auditResp.Entries[1].ActorName)
}

func TestClientTimestampHeader(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	headers := testutils.ActorHeaders()
	headers["X-Client-Timestamp"] = "yesterday"
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/pilots", models.CreatePilotRequest{DisplayName: "Kari"}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	headers["X-Client-Timestamp"] = "2025-08-25T09:30:00+02:00"
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/pilots", models.CreatePilotRequest{DisplayName: "Kari"}, headers)
	require.Equal(t, http.StatusCreated, w.Code)

	var pilotResp models.PilotResponse
	testutils.DecodeJSON(t, w, &pilotResp)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/pilots/"+pilotResp.Pilot.ID+"/audit", nil, nil)
	var auditResp models.AuditEntriesResponse
	testutils.DecodeJSON(t, w, &auditResp)
	require.Len(t, auditResp.Entries, 1)
	require.NotNil(t, auditResp.Entries[0].ClientTimestamp)
	assert.Equal(t, "2025-08-25T07:30:00Z", auditResp.Entries[0].ClientTimestamp.Format("2006-01-02T15:04:05Z07:00"))
}
