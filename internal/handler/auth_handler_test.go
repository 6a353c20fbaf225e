package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

// ============================================================================
// Request validation tests — не требуют реального AuthService
// Handler возвращает 400 до вызова сервиса
// ============================================================================

func TestSignUp_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{} // nil services — OK для validation tests

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{
			name:       "empty body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing email",
			body:       map[string]string{"password": "Str0ng!Pass", "first_name": "Ivan", "last_name": "Petrov"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid email format",
			body:       map[string]string{"email": "not-an-email", "password": "Str0ng!Pass", "first_name": "Ivan", "last_name": "Petrov"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "password too short",
			body:       map[string]string{"email": "user@test.com", "password": "Sh0rt!", "first_name": "Ivan", "last_name": "Petrov"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing first name",
			body:       map[string]string{"email": "user@test.com", "password": "Str0ng!Pass", "last_name": "Petrov"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/auth/sign-up", tt.body)
			handler.SignUp(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Contains(t, resp["error"], "Invalid request data")
		})
	}
}

func TestSignIn_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty body", body: nil},
		{name: "missing email", body: map[string]string{"password": "something"}},
		{name: "missing password", body: map[string]string{"email": "user@test.com"}},
		{name: "invalid email", body: map[string]string{"email": "nope", "password": "something"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/auth/sign-in", tt.body)
			handler.SignIn(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, "validation_error", resp["error_type"])
		})
	}
}

func TestVerifyOTP_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty body", body: nil},
		{name: "missing code", body: map[string]string{}},
		{name: "code wrong length", body: map[string]string{"code": "123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/auth/otp/verify", tt.body)
			c.Set(ContextUserIDKey, uint(1))
			handler.VerifyOTP(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestVerifyEmail_MissingToken(t *testing.T) {
	handler := &AuthHandler{}

	c, w := newTestGinContext("GET", "/api/auth/verify-email", nil)
	handler.VerifyEmail(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "validation_error", resp["error_type"])
}

// ============================================================================
// Context-based tests — маршруты под RequireAuth без установленного контекста
// ============================================================================

func TestGenerateOTP_MissingUserID(t *testing.T) {
	handler := &AuthHandler{}

	c, w := newTestGinContext("POST", "/api/auth/otp/generate", nil)
	// user_id в контексте нет — RequireAuth не прошел бы
	handler.GenerateOTP(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "unauthorized", resp["error_type"])
}

func TestGetSession_MissingSession(t *testing.T) {
	handler := &AuthHandler{}

	c, w := newTestGinContext("GET", "/api/auth/session", nil)
	handler.GetSession(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetSession_ReturnsSessionInfoWithoutToken(t *testing.T) {
	handler := &AuthHandler{}

	session := &entity.Session{
		ID:     "11111111-1111-1111-1111-111111111111",
		Token:  "verysecrettoken",
		UserID: 1,
	}
	c, w := newTestGinContext("GET", "/api/auth/session", nil)
	c.Set(ContextSessionKey, session)

	handler.GetSession(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "verysecrettoken",
		"Сырой токен сессии никогда не попадает в тело ответа")
	resp := parseJSONResponse(t, w)
	assert.NotNil(t, resp["session"])
}

// ============================================================================
// Cookie contract
// ============================================================================

func TestSignOut_ClearsCookieWithoutSession(t *testing.T) {
	// Выход без куки — всё равно 200 и удаляющая Set-Cookie
	handler := &AuthHandler{}

	c, w := newTestGinContext("POST", "/api/auth/sign-out", nil)
	handler.SignOut(c)

	assert.Equal(t, http.StatusOK, w.Code)

	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, SessionCookieName+"=")
	assert.Contains(t, setCookie, "Max-Age=0", "Кука должна удаляться")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "Path=/")
	assert.Contains(t, setCookie, "SameSite=Lax")
}

func TestSetSessionCookie_Attributes(t *testing.T) {
	handler := &AuthHandler{cookieSecure: true}

	c, w := newTestGinContext("POST", "/api/auth/sign-in", nil)
	handler.setSessionCookie(c, "sometoken", 604800)

	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, SessionCookieName+"=sometoken")
	assert.Contains(t, setCookie, "Max-Age=604800")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "Secure")
	assert.Contains(t, setCookie, "SameSite=Lax")
	assert.Contains(t, setCookie, "Path=/")
}

// ============================================================================
// handleAuthError — тестирование маппинга ошибок
// ============================================================================

func TestHandleAuthError_ServiceErrors(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantErrorType string
	}{
		{
			name:          "invalid credentials",
			err:           service.ErrInvalidCredentials,
			wantStatus:    http.StatusUnauthorized,
			wantErrorType: "invalid_credentials",
		},
		{
			name:          "account locked",
			err:           fmt.Errorf("%w: try again in 30 minute(s)", service.ErrAccountLocked),
			wantStatus:    http.StatusTooManyRequests,
			wantErrorType: "account_locked",
		},
		{
			name:          "otp locked",
			err:           service.ErrOtpLocked,
			wantStatus:    http.StatusTooManyRequests,
			wantErrorType: "otp_locked",
		},
		{
			name:          "otp expired",
			err:           service.ErrOtpExpired,
			wantStatus:    http.StatusBadRequest,
			wantErrorType: "otp_expired",
		},
		{
			name:          "otp incorrect",
			err:           fmt.Errorf("%w: 2 attempt(s) remaining", service.ErrOtpIncorrect),
			wantStatus:    http.StatusBadRequest,
			wantErrorType: "otp_incorrect",
		},
		{
			name:          "invalid or expired token",
			err:           service.ErrInvalidOrExpiredToken,
			wantStatus:    http.StatusBadRequest,
			wantErrorType: "invalid_or_expired_token",
		},
		{
			name:          "weak password",
			err:           service.ErrWeakPassword,
			wantStatus:    http.StatusBadRequest,
			wantErrorType: "weak_password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/test", nil)
			handler.handleAuthError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, tt.wantErrorType, resp["error_type"])
		})
	}
}

func TestHandleAuthError_AppErrors(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantErrorType string
	}{
		{
			name:          "unauthorized",
			err:           apperrors.ErrUnauthorized,
			wantStatus:    http.StatusUnauthorized,
			wantErrorType: "unauthorized",
		},
		{
			name:          "forbidden",
			err:           apperrors.ErrForbidden,
			wantStatus:    http.StatusForbidden,
			wantErrorType: "forbidden",
		},
		{
			name:          "not found",
			err:           apperrors.ErrNotFound,
			wantStatus:    http.StatusNotFound,
			wantErrorType: "not_found",
		},
		{
			name:          "conflict",
			err:           apperrors.ErrConflict,
			wantStatus:    http.StatusConflict,
			wantErrorType: "conflict",
		},
		{
			name:          "validation error",
			err:           apperrors.ErrValidation,
			wantStatus:    http.StatusBadRequest,
			wantErrorType: "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/test", nil)
			handler.handleAuthError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, tt.wantErrorType, resp["error_type"])
		})
	}
}

func TestHandleAuthError_UnknownError(t *testing.T) {
	handler := &AuthHandler{}

	c, w := newTestGinContext("POST", "/test", nil)
	handler.handleAuthError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "internal_server_error", resp["error_type"])
}
