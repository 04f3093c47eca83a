package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-admin/config"
	"github.com/ikkim/marketplace-admin/internal/app/controller"
	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/internal/app/repository"
	"github.com/ikkim/marketplace-admin/internal/app/service"
	"github.com/ikkim/marketplace-admin/internal/db"
	"github.com/ikkim/marketplace-admin/internal/middleware"
	"github.com/ikkim/marketplace-admin/internal/router"
	"github.com/ikkim/marketplace-admin/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const integrationSecret = "test-secret"

type TestServer struct {
	Router *gin.Engine
	DB     *gorm.DB
}

func setupIntegrationTest(t *testing.T) *TestServer {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	credRepo := repository.NewCredentialRepository(testDB)
	bizRepo := repository.NewBusinessRepository(testDB)
	verificationService := service.NewVerificationService(credRepo, bizRepo, service.VerificationConfig{PageSize: 10})
	verificationController := controller.NewVerificationController(verificationService, nil, nil, nil)
	authMiddleware := middleware.NewAuthMiddleware(integrationSecret)

	cfg := &config.Config{
		Server: config.ServerConfig{GinMode: gin.TestMode},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	return &TestServer{
		Router: router.NewRouter(verificationController, authMiddleware, cfg).Setup(),
		DB:     testDB,
	}
}

func token(t *testing.T, userID string, role model.UserRole) string {
	tok, err := util.GenerateAccessToken(userID, userID+"@example.com", string(role), integrationSecret, 15*time.Minute)
	require.NoError(t, err)
	return tok
}

func (ts *TestServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func TestCompleteReviewJourney(t *testing.T) {
	ts := setupIntegrationTest(t)

	// Seed a business with two pending credentials
	require.NoError(t, ts.DB.Create(&model.Business{ID: "biz-1", Name: "금빛 공방"}).Error)
	for _, id := range []string{"cred-1", "cred-2"} {
		number := "LIC-" + id
		require.NoError(t, ts.DB.Create(&model.Credential{
			ID:               id,
			BusinessID:       "biz-1",
			CredentialType:   model.CredentialTypeLicense,
			CredentialNumber: &number,
		}).Error)
	}

	adminToken := token(t, "admin-1", model.RoleAdmin)
	staffToken := token(t, "staff-1", model.RoleStaff)

	// 1. Anonymous access is rejected
	t.Log("Step 1: Anonymous queue access")
	w := ts.do(t, http.MethodGet, "/api/v1/admin/verifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 2. Staff can browse the queue
	t.Log("Step 2: Staff browses pending queue")
	w = ts.do(t, http.MethodGet, "/api/v1/admin/verifications", staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listResp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, float64(2), listResp["total_count"])

	// 3. Staff cannot decide
	t.Log("Step 3: Staff decision is forbidden")
	w = ts.do(t, http.MethodPost, "/api/v1/admin/verifications/cred-1/decision", staffToken, map[string]string{"outcome": "verified"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 4. Admin approves the first credential
	t.Log("Step 4: Admin approves credential")
	w = ts.do(t, http.MethodPost, "/api/v1/admin/verifications/cred-1/decision", adminToken, map[string]string{"outcome": "verified"})
	require.Equal(t, http.StatusOK, w.Code)

	var business model.Business
	require.NoError(t, ts.DB.First(&business, "id = ?", "biz-1").Error)
	assert.True(t, business.IsVerified)

	// 5. Admin rejects the second; business keeps its flag
	t.Log("Step 5: Admin rejects second credential")
	w = ts.do(t, http.MethodPost, "/api/v1/admin/verifications/cred-2/decision", adminToken, map[string]string{"outcome": "rejected"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, ts.DB.First(&business, "id = ?", "biz-1").Error)
	assert.True(t, business.IsVerified)

	// 6. Stats reflect both decisions
	t.Log("Step 6: Stats")
	w = ts.do(t, http.MethodGet, "/api/v1/admin/verifications/stats", staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, float64(0), stats["pending"])
	assert.Equal(t, float64(1), stats["verified"])
	assert.Equal(t, float64(1), stats["rejected"])

	// 7. Reversing a decision is refused
	t.Log("Step 7: Conflicting re-decision")
	w = ts.do(t, http.MethodPost, "/api/v1/admin/verifications/cred-2/decision", adminToken, map[string]string{"outcome": "verified"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// 8. Pending queue is now empty
	w = ts.do(t, http.MethodGet, "/api/v1/admin/verifications?status=pending", staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, float64(0), listResp["total_count"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts := setupIntegrationTest(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
