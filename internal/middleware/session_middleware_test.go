package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/handler"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ============================================================================
// Моки репозиториев для middleware-тестов
// ============================================================================

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(session *entity.Session) error {
	return m.Called(session).Error(0)
}

func (m *mockSessionRepo) GetByToken(token string) (*entity.Session, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Session), args.Error(1)
}

func (m *mockSessionRepo) ExtendExpiry(sessionID string, newExpiry time.Time) (bool, error) {
	args := m.Called(sessionID, newExpiry)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) UpdateClientInfo(sessionID string, ip, userAgent string) error {
	return m.Called(sessionID, ip, userAgent).Error(0)
}

func (m *mockSessionRepo) DeleteByToken(token string) error {
	return m.Called(token).Error(0)
}

func (m *mockSessionRepo) DeleteByID(sessionID string) error {
	return m.Called(sessionID).Error(0)
}

func (m *mockSessionRepo) DeleteExpired(now time.Time) (int64, error) {
	args := m.Called(now)
	return args.Get(0).(int64), args.Error(1)
}

type mockUserGetter struct {
	mock.Mock
}

func (m *mockUserGetter) Create(user *entity.User) error { return m.Called(user).Error(0) }

func (m *mockUserGetter) Delete(userID uint) error { return m.Called(userID).Error(0) }

func (m *mockUserGetter) GetByID(id uint) (*entity.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *mockUserGetter) GetByEmail(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *mockUserGetter) UpdateLastLogin(userID uint, ip string, at time.Time) error {
	return m.Called(userID, ip, at).Error(0)
}

func (m *mockUserGetter) RecordFailedLogin(email string, threshold int, lockWindow time.Duration) error {
	return m.Called(email, threshold, lockWindow).Error(0)
}

func (m *mockUserGetter) ClearLoginLock(userID uint) error { return m.Called(userID).Error(0) }

func (m *mockUserGetter) ClearExpiredLock(userID uint, now time.Time) (bool, error) {
	args := m.Called(userID, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserGetter) IssueOTP(userID uint, code string, expires time.Time) error {
	return m.Called(userID, code, expires).Error(0)
}

func (m *mockUserGetter) RecordFailedOtp(userID uint, threshold int, lockWindow time.Duration) (int, error) {
	args := m.Called(userID, threshold, lockWindow)
	return args.Int(0), args.Error(1)
}

func (m *mockUserGetter) ClearExpiredOtpLock(userID uint, now time.Time) (bool, error) {
	args := m.Called(userID, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserGetter) ConsumeOTP(userID uint, code string, now time.Time) (bool, error) {
	args := m.Called(userID, code, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserGetter) SetPasswordResetToken(userID uint, token string, expires time.Time) error {
	return m.Called(userID, token, expires).Error(0)
}

func (m *mockUserGetter) ClaimPasswordResetToken(token string, now time.Time) (*entity.User, error) {
	args := m.Called(token, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *mockUserGetter) SetEmailVerificationToken(userID uint, token string, expires time.Time) error {
	return m.Called(userID, token, expires).Error(0)
}

func (m *mockUserGetter) ConsumeEmailVerificationToken(token string, now time.Time) (bool, error) {
	args := m.Called(token, now)
	return args.Bool(0), args.Error(1)
}

type mockRoleRepo struct {
	mock.Mock
}

func (m *mockRoleRepo) GetByName(name string) (*entity.Role, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Role), args.Error(1)
}

func (m *mockRoleRepo) GetRolesForUser(userID uint) ([]entity.Role, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Role), args.Error(1)
}

func (m *mockRoleRepo) AssignRole(userID, roleID uint) error {
	return m.Called(userID, roleID).Error(0)
}

func (m *mockRoleRepo) Upsert(role *entity.Role) error { return m.Called(role).Error(0) }

// ============================================================================
// Хелперы
// ============================================================================

func newSessionService(t *testing.T, sessionRepo *mockSessionRepo, userRepo *mockUserGetter) *service.SessionService {
	t.Helper()
	svc, err := service.NewSessionService(sessionRepo, userRepo, 7*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)
	return svc
}

func performRequest(router *gin.Engine, method, path, cookie string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: handler.SessionCookieName, Value: cookie})
	}
	router.ServeHTTP(w, req)
	return w
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// ============================================================================
// RequireAuth
// ============================================================================

func TestRequireAuth_MissingCookie(t *testing.T) {
	m := NewSessionMiddleware(newSessionService(t, new(mockSessionRepo), new(mockUserGetter)), nil, false)

	router := gin.New()
	router.GET("/protected", m.RequireAuth(), okHandler)

	w := performRequest(router, "GET", "/protected", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session_missing")
}

func TestRequireAuth_UnknownToken(t *testing.T) {
	sessionRepo := new(mockSessionRepo)
	sessionRepo.On("GetByToken", "badtoken").Return(nil, apperrors.ErrNotFound)
	m := NewSessionMiddleware(newSessionService(t, sessionRepo, new(mockUserGetter)), nil, false)

	router := gin.New()
	router.GET("/protected", m.RequireAuth(), okHandler)

	w := performRequest(router, "GET", "/protected", "badtoken")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session_invalid")
}

func TestRequireAuth_ExpiredSessionDeletedAndCookieCleared(t *testing.T) {
	// Первый запрос после истечения: строка сессии лениво удаляется,
	// мертвая кука удаляется у клиента, ответ — тот же 401
	sessionRepo := new(mockSessionRepo)
	expired := &entity.Session{
		ID:        "00000000-0000-0000-0000-000000000001",
		Token:     "staletoken",
		UserID:    1,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	sessionRepo.On("GetByToken", "staletoken").Return(expired, nil)
	sessionRepo.On("DeleteByID", expired.ID).Return(nil)

	m := NewSessionMiddleware(newSessionService(t, sessionRepo, new(mockUserGetter)), nil, false)

	router := gin.New()
	router.GET("/protected", m.RequireAuth(), okHandler)

	w := performRequest(router, "GET", "/protected", "staletoken")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session_invalid")

	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, handler.SessionCookieName+"=")
	assert.Contains(t, setCookie, "Max-Age=0", "Мертвая кука должна удаляться")
	sessionRepo.AssertCalled(t, "DeleteByID", expired.ID)
	sessionRepo.AssertExpectations(t)
}

func TestRequireAuth_SetsContextAndSkipsRenewal(t *testing.T) {
	// Сессия далека от истечения: запрос проходит, ExtendExpiry не вызывается
	sessionRepo := new(mockSessionRepo)
	userRepo := new(mockUserGetter)
	session := &entity.Session{
		ID:        "11111111-1111-1111-1111-111111111111",
		Token:     "livetoken",
		UserID:    1,
		ExpiresAt: time.Now().Add(3 * 24 * time.Hour),
	}
	user := &entity.User{ID: 1, Email: "test@example.com", IsActive: true}
	sessionRepo.On("GetByToken", "livetoken").Return(session, nil)
	userRepo.On("GetByID", uint(1)).Return(user, nil)

	m := NewSessionMiddleware(newSessionService(t, sessionRepo, userRepo), nil, false)

	var gotUserID uint
	router := gin.New()
	router.GET("/protected", m.RequireAuth(), func(c *gin.Context) {
		v, _ := c.Get(handler.ContextUserIDKey)
		gotUserID, _ = v.(uint)
		okHandler(c)
	})

	w := performRequest(router, "GET", "/protected", "livetoken")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint(1), gotUserID)
	assert.Empty(t, w.Header().Get("Set-Cookie"), "Без продления кука не трогается")
	sessionRepo.AssertNotCalled(t, "ExtendExpiry", mock.Anything, mock.Anything)
}

func TestRequireAuth_RenewsNearExpiryAndRefreshesCookie(t *testing.T) {
	// Остаток жизни меньше суток: сессия продлевается, кука перевыставляется
	sessionRepo := new(mockSessionRepo)
	userRepo := new(mockUserGetter)
	session := &entity.Session{
		ID:        "22222222-2222-2222-2222-222222222222",
		Token:     "livetoken",
		UserID:    1,
		ExpiresAt: time.Now().Add(2 * time.Hour),
	}
	user := &entity.User{ID: 1, IsActive: true}
	sessionRepo.On("GetByToken", "livetoken").Return(session, nil)
	userRepo.On("GetByID", uint(1)).Return(user, nil)
	sessionRepo.On("ExtendExpiry", session.ID, mock.AnythingOfType("time.Time")).Return(true, nil)

	m := NewSessionMiddleware(newSessionService(t, sessionRepo, userRepo), nil, false)

	router := gin.New()
	router.GET("/protected", m.RequireAuth(), okHandler)

	w := performRequest(router, "GET", "/protected", "livetoken")

	assert.Equal(t, http.StatusOK, w.Code)
	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, handler.SessionCookieName+"=livetoken")
	assert.Contains(t, setCookie, "HttpOnly")
	sessionRepo.AssertExpectations(t)
}

func TestRequireAuth_RenewalFailureDoesNotBlock(t *testing.T) {
	sessionRepo := new(mockSessionRepo)
	userRepo := new(mockUserGetter)
	session := &entity.Session{
		ID:        "33333333-3333-3333-3333-333333333333",
		Token:     "livetoken",
		UserID:    1,
		ExpiresAt: time.Now().Add(2 * time.Hour),
	}
	sessionRepo.On("GetByToken", "livetoken").Return(session, nil)
	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1, IsActive: true}, nil)
	sessionRepo.On("ExtendExpiry", session.ID, mock.AnythingOfType("time.Time")).
		Return(false, assert.AnError)

	m := NewSessionMiddleware(newSessionService(t, sessionRepo, userRepo), nil, false)

	router := gin.New()
	router.GET("/protected", m.RequireAuth(), okHandler)

	w := performRequest(router, "GET", "/protected", "livetoken")

	assert.Equal(t, http.StatusOK, w.Code, "Ошибка продления не блокирует запрос")
}

func TestRequireAuth_EnrichesClientInfoOnChange(t *testing.T) {
	// IP и user agent запроса отличаются от сохраненных в сессии:
	// запись обогащается актуальными значениями
	sessionRepo := new(mockSessionRepo)
	userRepo := new(mockUserGetter)
	session := &entity.Session{
		ID:        "55555555-5555-5555-5555-555555555555",
		Token:     "livetoken",
		UserID:    1,
		ExpiresAt: time.Now().Add(3 * 24 * time.Hour),
		IPAddress: "203.0.113.10",
		UserAgent: "old-agent",
	}
	sessionRepo.On("GetByToken", "livetoken").Return(session, nil)
	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1, IsActive: true}, nil)
	sessionRepo.On("UpdateClientInfo", session.ID, "198.51.100.7", "new-agent").Return(nil)

	m := NewSessionMiddleware(newSessionService(t, sessionRepo, userRepo), nil, false)

	router := gin.New()
	router.GET("/protected", m.RequireAuth(), okHandler)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.RemoteAddr = "198.51.100.7:4711"
	req.Header.Set("User-Agent", "new-agent")
	req.AddCookie(&http.Cookie{Name: handler.SessionCookieName, Value: "livetoken"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	sessionRepo.AssertCalled(t, "UpdateClientInfo", session.ID, "198.51.100.7", "new-agent")
	sessionRepo.AssertExpectations(t)
}

func TestRequireAuth_DeactivatedAccount(t *testing.T) {
	sessionRepo := new(mockSessionRepo)
	userRepo := new(mockUserGetter)
	session := &entity.Session{
		ID:        "44444444-4444-4444-4444-444444444444",
		Token:     "livetoken",
		UserID:    1,
		ExpiresAt: time.Now().Add(3 * 24 * time.Hour),
	}
	sessionRepo.On("GetByToken", "livetoken").Return(session, nil)
	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1, IsActive: false}, nil)

	m := NewSessionMiddleware(newSessionService(t, sessionRepo, userRepo), nil, false)

	router := gin.New()
	router.GET("/protected", m.RequireAuth(), okHandler)

	w := performRequest(router, "GET", "/protected", "livetoken")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "account_deactivated")
}

// ============================================================================
// RequireEmailVerified / RequireRole / RequirePermission
// ============================================================================

// контекст с уже прошедшим RequireAuth
func authedRouter(m *SessionMiddleware, user *entity.User, mws ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	chain := []gin.HandlerFunc{func(c *gin.Context) {
		c.Set(handler.ContextUserIDKey, user.ID)
		c.Set(handler.ContextUserKey, user)
	}}
	chain = append(chain, mws...)
	chain = append(chain, okHandler)
	router.GET("/protected", chain...)
	return router
}

func TestRequireEmailVerified(t *testing.T) {
	m := NewSessionMiddleware(newSessionService(t, new(mockSessionRepo), new(mockUserGetter)), nil, false)

	verified := authedRouter(m, &entity.User{ID: 1, EmailVerified: true}, m.RequireEmailVerified())
	unverified := authedRouter(m, &entity.User{ID: 2, EmailVerified: false}, m.RequireEmailVerified())

	assert.Equal(t, http.StatusOK, performRequest(verified, "GET", "/protected", "").Code)

	w := performRequest(unverified, "GET", "/protected", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "email_not_verified")
}

func TestRequireRole(t *testing.T) {
	roleRepo := new(mockRoleRepo)
	roleRepo.On("GetRolesForUser", uint(1)).Return([]entity.Role{{ID: 1, Name: entity.RoleAdmin}}, nil)
	roleRepo.On("GetRolesForUser", uint(2)).Return([]entity.Role{{ID: 2, Name: entity.RoleUser}}, nil)

	m := NewSessionMiddleware(newSessionService(t, new(mockSessionRepo), new(mockUserGetter)), roleRepo, false)

	admin := authedRouter(m, &entity.User{ID: 1}, m.RequireRole(entity.RoleAdmin))
	regular := authedRouter(m, &entity.User{ID: 2}, m.RequireRole(entity.RoleAdmin))

	assert.Equal(t, http.StatusOK, performRequest(admin, "GET", "/protected", "").Code)
	assert.Equal(t, http.StatusForbidden, performRequest(regular, "GET", "/protected", "").Code)
}

func TestRequirePermission(t *testing.T) {
	roleRepo := new(mockRoleRepo)
	roleRepo.On("GetRolesForUser", uint(1)).Return([]entity.Role{
		{ID: 1, Name: entity.RoleAdmin, Permissions: entity.PermissionSet{"sessions": {"read", "delete"}}},
	}, nil)

	m := NewSessionMiddleware(newSessionService(t, new(mockSessionRepo), new(mockUserGetter)), roleRepo, false)

	allowed := authedRouter(m, &entity.User{ID: 1}, m.RequirePermission("sessions", "delete"))
	denied := authedRouter(m, &entity.User{ID: 1}, m.RequirePermission("roles", "write"))

	assert.Equal(t, http.StatusOK, performRequest(allowed, "GET", "/protected", "").Code)
	assert.Equal(t, http.StatusForbidden, performRequest(denied, "GET", "/protected", "").Code)
}

func TestRequireRole_NoRoleRepo(t *testing.T) {
	// Без сконфигурированного RoleRepository доступ по ролям закрыт
	m := NewSessionMiddleware(newSessionService(t, new(mockSessionRepo), new(mockUserGetter)), nil, false)

	router := authedRouter(m, &entity.User{ID: 1}, m.RequireRole(entity.RoleAdmin))

	assert.Equal(t, http.StatusForbidden, performRequest(router, "GET", "/protected", "").Code)
}
