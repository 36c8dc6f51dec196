package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/academy-hub/auth"
	"github.com/upb/academy-hub/identity"
	"github.com/upb/academy-hub/middleware"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/preferences"
	"github.com/upb/academy-hub/repositories"
	"github.com/upb/academy-hub/services"
	"github.com/upb/academy-hub/services/account"
	"github.com/upb/academy-hub/services/audit"
	"github.com/upb/academy-hub/services/providers"
	"github.com/upb/academy-hub/services/rules"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// sessions maps cookie values to claims
type sessions map[string]*identity.ParsedClaims

func (s sessions) VerifySessionCookie(_ context.Context, cookie string) (*identity.ParsedClaims, error) {
	if claims, ok := s[cookie]; ok {
		return claims, nil
	}
	return nil, identity.ErrInvalidToken
}

type profileMap map[string]*models.Profile

func (p profileMap) GetByUID(_ context.Context, uid string) (*models.Profile, error) {
	if profile, ok := p[uid]; ok {
		return profile, nil
	}
	return nil, fmt.Errorf("profile %s: %w", uid, repositories.ErrNotFound)
}

type MockPasswordUpdater struct {
	mock.Mock
}

func (m *MockPasswordUpdater) UpdatePassword(ctx context.Context, actorUID string, req account.UpdatePasswordRequest, meta audit.RequestMeta) error {
	return m.Called(ctx, actorUID, req, meta).Error(0)
}

type nopAuditor struct{}

func (nopAuditor) LogAccessDenied(string, models.Role, string, audit.RequestMeta) error { return nil }
func (nopAuditor) LogRulesGenerated(string, string, audit.RequestMeta) error { return nil }

// testSessions has one caller per role; "coach-profile" carries no role claim
func testSessions() (sessions, profileMap) {
	s := sessions{
		"admin":         {Subject: "admin-1", Role: models.RoleSuperAdmin},
		"admin-profile": {Subject: "admin-2"},
		"owner":         {Subject: "owner-1", Role: models.RoleOwner},
		"coach-profile": {Subject: "coach-1"},
	}
	p := profileMap{
		"admin-2": models.NewProfile("admin-2", "root@example.com", "", models.RoleSuperAdmin),
		"coach-1": models.NewProfile("coach-1", "coach@example.com", "", models.RoleCoach),
	}
	return s, p
}

// superAdminRouter mounts handler the way routes does
func superAdminRouter(path string, handler http.HandlerFunc) http.Handler {
	s, p := testSessions()
	logger := zap.NewNop()
	authMw := middleware.NewAuthMiddleware(auth.NewAuthenticator(s, p, logger), nopAuditor{}, logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(authMw.RequireSession)
		r.Use(authMw.RequireRole(models.RoleSuperAdmin))
		r.Post(path, handler)
	})
	return r
}

func doPost(h http.Handler, path, session, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func result(t *testing.T, w *httptest.ResponseRecorder) utils.ResultResponse {
	t.Helper()
	var resp utils.ResultResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

const updatePasswordPath = "/api/super-admin/update-password"

func TestUpdatePassword_Authorization(t *testing.T) {
	updater := new(MockPasswordUpdater)
	router := superAdminRouter(updatePasswordPath, NewAccountHandler(updater, nil, zap.NewNop()).HandleUpdatePassword)
	validBody := `{"targetUid":"coach-1","newPassword":"s3cret-pass"}`

	t.Run("no cookie", func(t *testing.T) {
		w := doPost(router, updatePasswordPath, "", validBody)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, utils.ResultResponse{Success: false, Message: "Not authenticated."}, result(t, w))
	})

	t.Run("invalid session", func(t *testing.T) {
		w := doPost(router, updatePasswordPath, "forged", validBody)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	for _, tc := range []struct{ session, body string }{
		{"owner", validBody},
		{"owner", `{}`},
		{"owner", `not json`},
		{"coach-profile", validBody},
	} {
		t.Run("forbidden for "+tc.session, func(t *testing.T) {
			w := doPost(router, updatePasswordPath, tc.session, tc.body)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.False(t, result(t, w).Success)
		})
	}

	updater.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdatePassword_BadRequest(t *testing.T) {
	svc := account.NewService(&repositories.Repositories{}, nil, nil, zap.NewNop())
	router := superAdminRouter(updatePasswordPath, NewAccountHandler(svc, nil, zap.NewNop()).HandleUpdatePassword)

	for name, body := range map[string]string{
		"malformed json":   `{"targetUid":`,
		"empty body":       ``,
		"missing password": `{"targetUid":"coach-1"}`,
		"missing target":   `{"newPassword":"s3cret-pass"}`,
		"blank target":     `{"targetUid":"   ","newPassword":"s3cret-pass"}`,
		"short password":   `{"targetUid":"coach-1","newPassword":"abc"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := doPost(router, updatePasswordPath, "admin", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := result(t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestUpdatePassword_Outcomes(t *testing.T) {
	req := account.UpdatePasswordRequest{TargetUID: "coach-1", NewPassword: "s3cret-pass"}

	t.Run("success via profile role", func(t *testing.T) {
		updater := new(MockPasswordUpdater)
		updater.On("UpdatePassword", mock.Anything, "admin-2", req, mock.Anything).Return(nil)
		router := superAdminRouter(updatePasswordPath, NewAccountHandler(updater, nil, zap.NewNop()).HandleUpdatePassword)

		w := doPost(router, updatePasswordPath, "admin-profile", `{"targetUid":"coach-1","newPassword":"s3cret-pass"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, utils.ResultResponse{
			Success: true,
			Message: "Password updated successfully for user coach-1.",
		}, result(t, w))
		updater.AssertExpectations(t)
	})

	t.Run("unknown target is a server error with the provider message", func(t *testing.T) {
		updater := new(MockPasswordUpdater)
		msg := "There is no user record corresponding to the provided identifier: coach-1"
		updater.On("UpdatePassword", mock.Anything, "admin-1", req, mock.Anything).
			Return(services.NewDomainError(services.ErrorTypeNotFound, msg, repositories.ErrNotFound))
		router := superAdminRouter(updatePasswordPath, NewAccountHandler(updater, nil, zap.NewNop()).HandleUpdatePassword)

		w := doPost(router, updatePasswordPath, "admin", `{"targetUid":"coach-1","newPassword":"s3cret-pass"}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, utils.ResultResponse{Success: false, Message: msg}, result(t, w))
	})

	t.Run("provider failure", func(t *testing.T) {
		updater := new(MockPasswordUpdater)
		updater.On("UpdatePassword", mock.Anything, "admin-1", req, mock.Anything).
			Return(services.WrapInternal("failed to update password", errors.New("connection reset")))
		router := superAdminRouter(updatePasswordPath, NewAccountHandler(updater, nil, zap.NewNop()).HandleUpdatePassword)

		w := doPost(router, updatePasswordPath, "admin", `{"targetUid":"coach-1","newPassword":"s3cret-pass"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.False(t, result(t, w).Success)
	})
}

// stubModel answers every completion with content, or fails with err
type stubModel struct {
	content string
	err     error
}

func (s stubModel) Name() string { return "stub" }

func (s stubModel) ChatCompletion(context.Context, *providers.ChatRequest) (*providers.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &providers.ChatResponse{Choices: []providers.Choice{{Message: providers.Message{Role: providers.RoleAssistant, Content: s.content}}}}, nil
}

const rulesPath = "/api/super-admin/security-rules"

func TestRulesHandler(t *testing.T) {
	logger := zap.NewNop()
	router := func(model providers.Provider) http.Handler {
		return superAdminRouter(rulesPath, NewRulesHandler(rules.NewService(model, "gpt-test", logger), nopAuditor{}, nil, logger).HandleGenerate)
	}

	t.Run("draft", func(t *testing.T) {
		w := doPost(router(stubModel{content: `{"rules":"allow read;","explanation":"read only"}`}), rulesPath, "admin", `{"description":"owners read their academy"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data rules.Draft `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "allow read;", resp.Data.Rules)
		assert.Equal(t, "read only", resp.Data.Explanation)
	})

	t.Run("missing description", func(t *testing.T) {
		w := doPost(router(stubModel{}), rulesPath, "admin", `{"description":""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("description too long", func(t *testing.T) {
		body := fmt.Sprintf(`{"description":%q}`, strings.Repeat("a", rules.MaxDescriptionLength+1))
		w := doPost(router(stubModel{}), rulesPath, "admin", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		w := doPost(router(stubModel{err: errors.New("upstream timeout")}), rulesPath, "admin", `{"description":"x"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("schema failure", func(t *testing.T) {
		w := doPost(router(stubModel{content: `{"rules":"allow read;"}`}), rulesPath, "admin", `{"description":"x"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)

		var resp utils.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("not configured", func(t *testing.T) {
		w := doPost(router(nil), rulesPath, "admin", `{"description":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("non super-admin", func(t *testing.T) {
		w := doPost(router(nil), rulesPath, "owner", `{"description":"x"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestPreferencesHandler(t *testing.T) {
	h := NewPreferencesHandler(false, nil, zap.NewNop())

	t.Run("default", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandleGetCurrency(w, httptest.NewRequest(http.MethodGet, "/api/preferences/currency", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data CurrencyResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "INR", string(resp.Data.Currency))
		assert.Len(t, resp.Data.Currencies, 5)
	})

	t.Run("set and read back", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandlePutCurrency(w, httptest.NewRequest(http.MethodPut, "/api/preferences/currency", strings.NewReader(`{"currency":"EUR"}`)))
		require.Equal(t, http.StatusOK, w.Code)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "academy.currency", cookies[0].Name)

		req := httptest.NewRequest(http.MethodGet, "/api/preferences/currency", nil)
		req.AddCookie(cookies[0])
		w = httptest.NewRecorder()
		h.HandleGetCurrency(w, req)
		assert.Contains(t, w.Body.String(), `"currency":"EUR"`)
	})

	t.Run("invalid currency is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandlePutCurrency(w, httptest.NewRequest(http.MethodPut, "/api/preferences/currency", strings.NewReader(`{"currency":"JPY"}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})
}

func TestPreferencesHandler_FileDefaults(t *testing.T) {
	defaults := preferences.NewFileStore(filepath.Join(t.TempDir(), "preferences.json"))
	require.NoError(t, defaults.SetCurrency(preferences.GBP))
	h := NewPreferencesHandler(false, defaults, zap.NewNop())

	get := func(cookie *http.Cookie) string {
		req := httptest.NewRequest(http.MethodGet, "/api/preferences/currency", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		h.HandleGetCurrency(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.String()
	}

	assert.Contains(t, get(nil), `"currency":"GBP"`)
	assert.Contains(t, get(&http.Cookie{Name: preferences.CurrencyKey, Value: "USD"}), `"currency":"USD"`)
	assert.Contains(t, get(&http.Cookie{Name: preferences.CurrencyKey, Value: "JPY"}), `"currency":"GBP"`)
}

func TestHandleDashboardShell(t *testing.T) {
	t.Run("shell for caller role", func(t *testing.T) {
		principal := &auth.Principal{Claims: &identity.ParsedClaims{Subject: "owner-1"}, Role: models.RoleOwner}
		req := httptest.NewRequest(http.MethodGet, "/owner/dashboard", nil)
		req = req.WithContext(middleware.WithPrincipal(req.Context(), principal))

		w := httptest.NewRecorder()
		HandleDashboardShell(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"title":"Academy Owner"`)
	})

	t.Run("without principal", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleDashboardShell(w, httptest.NewRequest(http.MethodGet, "/owner/dashboard", nil))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})
}
