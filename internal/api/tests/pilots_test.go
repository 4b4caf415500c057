package api_test

import (
	"net/http"
	"testing"

	"github.com/rongwang/leave-roster-server/internal/api/testutils"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPilots(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	// Test case 1: Create
	for _, name := range []string{"Ola", "berit", "Anders"} {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/pilots", models.CreatePilotRequest{DisplayName: name}, testutils.ActorHeaders())
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	// Test case 2: Missing name
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/pilots", map[string]any{}, testutils.ActorHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 3: List is sorted by name, ignoring case
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/pilots", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var pilotsResp models.PilotsResponse
	testutils.DecodeJSON(t, w, &pilotsResp)
	require.Len(t, pilotsResp.Pilots, 3)
	assert.Equal(t, "Anders", pilotsResp.Pilots[0].DisplayName)
	assert.Equal(t, "berit", pilotsResp.Pilots[1].DisplayName)
	assert.Equal(t, "Ola", pilotsResp.Pilots[2].DisplayName)

	// Test case 4: Deactivate and filter
	inactive := false
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPatch,
		"/api/pilots/"+pilotsResp.Pilots[1].ID,
		models.UpdatePilotRequest{Active: &inactive},
		testutils.ActorHeaders(),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	var pilotResp models.PilotResponse
	testutils.DecodeJSON(t, w, &pilotResp)
	assert.False(t, pilotResp.Pilot.Active)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/pilots?active=true", nil, nil)
	testutils.DecodeJSON(t, w, &pilotsResp)
	require.Len(t, pilotsResp.Pilots, 2)
	assert.Equal(t, "Anders", pilotsResp.Pilots[0].DisplayName)
	assert.Equal(t, "Ola", pilotsResp.Pilots[1].DisplayName)

	// Test case 5: Unknown pilot
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPatch,
		"/api/pilots/non-existent-id",
		models.UpdatePilotRequest{Active: &inactive},
		testutils.ActorHeaders(),
	)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Test case 6: Empty update
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/pilots/"+pilotsResp.Pilots[0].ID, map[string]any{}, testutils.ActorHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
