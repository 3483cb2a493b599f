package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/altynaay/fieldops/internal/app"
	iauth "github.com/altynaay/fieldops/internal/auth"
	"github.com/altynaay/fieldops/internal/database"
	"github.com/altynaay/fieldops/internal/database/testutil"
	"github.com/altynaay/fieldops/internal/notifications"
	"github.com/altynaay/fieldops/internal/services"
)

func newTestRouter(t *testing.T) (*gin.Engine, *services.UserService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "fieldops"})
	require.NoError(t, err)

	hub := notifications.NewHub()
	inbox, err := services.NewNotificationService(db, hub)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db, inbox)
	require.NoError(t, err)
	acts, err := services.NewActivityService(db, audit, inbox)
	require.NoError(t, err)
	users, err := services.NewUserService(db)
	require.NoError(t, err)
	staff, err := services.NewStaffService(db)
	require.NoError(t, err)
	rules, err := services.NewRuleEngine(db, hub, services.RuleDefaults{HighPriorityThreshold: 5})
	require.NoError(t, err)
	dashboard, err := services.NewDashboardService(db)
	require.NoError(t, err)
	suggest, err := services.NewSuggestionService(db)
	require.NoError(t, err)
	master, err := services.NewMasterDataService(db, audit)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true

	router, err := NewRouter(Dependencies{
		DB:        db,
		Config:    cfg,
		JWT:       jwtService,
		Hub:       hub,
		Users:     users,
		Staff:     staff,
		Acts:      acts,
		Audit:     audit,
		Inbox:     inbox,
		Rules:     rules,
		Dashboard: dashboard,
		Suggest:   suggest,
		Master:    master,
	})
	require.NoError(t, err)
	return router, users
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.AccessToken)
	return envelope.Data.AccessToken
}

func TestRouterRequiresAuthentication(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/activities", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/activities", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	router, _ := newTestRouter(t)

	token := loginAs(t, router, database.DefaultAdminUsername, database.DefaultAdminPassword)

	rec := doJSON(t, router, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"admin"`)
	require.Contains(t, rec.Body.String(), `"role":"admin"`)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": database.DefaultAdminUsername,
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivityLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	token := loginAs(t, router, database.DefaultAdminUsername, database.DefaultAdminPassword)

	rec := doJSON(t, router, http.MethodPost, "/api/activities", token, gin.H{
		"date":          time.Now().UTC().Format("2006-01-02"),
		"activity_type": "installation",
		"customer_name": "Acme",
		"address":       "12 Main St",
		"priority":      4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data services.ActivityDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)
	require.Equal(t, "pending", created.Data.Status)

	rec = doJSON(t, router, http.MethodGet, "/api/activities?search=Acme", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), created.Data.ID)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/activities/%s/done", created.Data.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"done"`)

	// Undo the completion through the audit trail.
	rec = doJSON(t, router, http.MethodGet, "/api/audit", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var audit struct {
		Data []services.AuditLogDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	require.NotEmpty(t, audit.Data)
	require.Equal(t, "mark_done", audit.Data[0].Action)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/audit/%s/undo", audit.Data[0].ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/activities/%s", created.Data.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestViewerCannotMutate(t *testing.T) {
	router, users := newTestRouter(t)

	_, err := users.Create(t.Context(), services.CreateUserInput{
		Username: "viewer",
		Password: "Secret@12345",
		Role:     "viewer",
	})
	require.NoError(t, err)

	token := loginAs(t, router, "viewer", "Secret@12345")

	rec := doJSON(t, router, http.MethodPost, "/api/activities", token, gin.H{
		"date":          time.Now().UTC().Format("2006-01-02"),
		"activity_type": "repair",
		"customer_name": "Acme",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/activities", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, "viewers keep read access")

	rec = doJSON(t, router, http.MethodGet, "/api/audit", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDashboardAndMasterDataOverHTTP(t *testing.T) {
	router, users := newTestRouter(t)
	token := loginAs(t, router, database.DefaultAdminUsername, database.DefaultAdminPassword)

	rec := doJSON(t, router, http.MethodPost, "/api/master-data", token, gin.H{
		"category": "activity_type",
		"value":    "repair",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/master-data?category=activity_type", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"value":"repair"`)

	rec = doJSON(t, router, http.MethodPost, "/api/activities", token, gin.H{
		"date":          time.Now().UTC().Format("2006-01-02"),
		"activity_type": "repair",
		"customer_name": "Acme",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/dashboard/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_today":1`)

	rec = doJSON(t, router, http.MethodGet, "/api/suggestions?field=customer_name&q=ac", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Acme")

	// Lookup writes are admin only.
	_, err := users.Create(t.Context(), services.CreateUserInput{
		Username: "lead",
		Password: "Secret@12345",
		Role:     "manager",
	})
	require.NoError(t, err)
	managerToken := loginAs(t, router, "lead", "Secret@12345")

	rec = doJSON(t, router, http.MethodPost, "/api/master-data", managerToken, gin.H{
		"category": "device",
		"value":    "router",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}
