package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/leave-roster-server/internal/api"
	"github.com/rongwang/leave-roster-server/internal/i18n"
	"github.com/rongwang/leave-roster-server/internal/repository"
	"github.com/rongwang/leave-roster-server/internal/service"
	"github.com/rongwang/leave-roster-server/internal/utils"
	"github.com/stretchr/testify/require"
)

// TestAdminKey is the admin key provisioned for every test context
const TestAdminKey = "test-admin-key"

// TestActor is the actor name sent by ActorHeaders
const TestActor = "Test Pilot"

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository *repository.MemoryRepository
	Service    service.Service
}

// SetupTestContext creates a router backed by an in-memory repository with
// the admin key provisioned
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	repo := repository.NewMemoryRepository()
	svc := service.NewDefaultService(repo, service.Options{
		Locale:    i18n.English,
		RetryBase: time.Millisecond,
	})
	require.NoError(t, svc.SetAdminKey(context.Background(), TestAdminKey), "Failed to provision admin key")

	handler := api.NewHandler(svc, utils.NopLogger(), i18n.English)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.SetupRoutes(router)

	return &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
	}
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ActorHeaders returns headers naming the acting pilot
func ActorHeaders() map[string]string {
	return map[string]string{
		api.HeaderActorName: TestActor,
	}
}

// AdminHeaders returns headers carrying the given admin key
func AdminHeaders(key string) map[string]string {
	return map[string]string{
		api.HeaderAdminKey: key,
	}
}

// DecodeJSON unmarshals a recorded response body
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "Failed to decode response: %s", w.Body.String())
}
