package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/internal/service"
)

// SessionCookieName — имя HttpOnly куки с токеном сессии
const SessionCookieName = "auth.session_token"

// AuthHandler обрабатывает запросы, связанные с аутентификацией
type AuthHandler struct {
	authService    *service.AuthService
	sessionService *service.SessionService
	// Secure-флаг куки; включается в release режиме
	cookieSecure bool
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(authService *service.AuthService, sessionService *service.SessionService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionService: sessionService,
		cookieSecure:   cookieSecure,
	}
}

// Структуры запросов

// SignUpRequest представляет запрос на регистрацию
type SignUpRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8,max=128"`
	FirstName string `json:"first_name" binding:"required,min=1,max=100"`
	LastName  string `json:"last_name" binding:"required,min=1,max=100"`
	Phone     string `json:"phone" binding:"omitempty,max=30"`
}

// SignInRequest представляет запрос на вход
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// VerifyOTPRequest представляет запрос на проверку одноразового кода
type VerifyOTPRequest struct {
	Code string `json:"code" binding:"required,len=6"`
}

// ResetRequestRequest представляет запрос на выдачу токена сброса пароля
type ResetRequestRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest представляет запрос на сброс пароля по токену
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=128"`
}

// SignUp обрабатывает запрос на регистрацию
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	user, err := h.authService.SignUp(service.SignUpInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user.Public()})
}

// SignIn обрабатывает запрос на вход и устанавливает сессионную куку
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	result, err := h.authService.SignIn(req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setSessionCookie(c, result.Session.Token, int(h.sessionService.SessionDuration().Seconds()))

	c.JSON(http.StatusOK, gin.H{
		"user":    result.User,
		"session": result.Session.SessionInfo(),
	})
}

// SignOut удаляет сессию и чистит куку. Всегда отвечает 200:
// выход с уже мертвой сессией не является ошибкой.
func (h *AuthHandler) SignOut(c *gin.Context) {
	token, _ := c.Cookie(SessionCookieName)
	if token != "" {
		if err := h.authService.SignOut(token); err != nil {
			log.Printf("[AuthHandler] Ошибка удаления сессии при выходе: %v", err)
		}
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

// GetSession возвращает данные текущей сессии (маршрут под RequireAuth)
func (h *AuthHandler) GetSession(c *gin.Context) {
	session := CurrentSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session.SessionInfo()})
}

// VerifyEmail потребляет токен подтверждения email из query-параметра
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token is required", "error_type": "validation_error"})
		return
	}

	if err := h.authService.VerifyEmail(token); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email verified"})
}

// GenerateOTP выдает новый одноразовый код для текущего аккаунта.
// Выдача всегда успешна и перезаписывает предыдущий код.
func (h *AuthHandler) GenerateOTP(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
		return
	}

	if _, err := h.authService.GenerateOTP(userID); err != nil {
		h.handleAuthError(c, err)
		return
	}

	// Сам код в ответ не попадает, только канал доставки
	c.JSON(http.StatusOK, gin.H{"message": "Code sent"})
}

// VerifyOTP проверяет одноразовый код текущего аккаунта
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
		return
	}

	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	if err := h.authService.VerifyOTP(userID, req.Code); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Code verified"})
}

// RequestPasswordReset выдает токен сброса пароля. Всегда отвечает одним и
// тем же 200, существует email или нет: ответ не должен раскрывать
// существование аккаунта.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req ResetRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	if err := h.authService.RequestPasswordReset(req.Email); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			// Внутренние ошибки тоже прячем за 200, детали только в логах
			log.Printf("[AuthHandler] Ошибка запроса сброса пароля: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "If that email exists, a reset link has been sent"})
}

// ResetPassword потребляет токен сброса и устанавливает новый пароль
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	if err := h.authService.ResetPassword(req.Token, req.NewPassword); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// CleanupSessions вручную запускает очистку истекших сессий (админский маршрут)
func (h *AuthHandler) CleanupSessions(c *gin.Context) {
	deleted, err := h.sessionService.SweepExpired()
	if err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// setSessionCookie устанавливает HttpOnly куку с токеном сессии
func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleAuthError обрабатывает ошибки аутентификации и возвращает
// соответствующий статус и стабильный error_type
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	log.Printf("[AuthHandler] Auth Error: %v", err) // Логируем полную ошибку для отладки

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Неверные учетные данные", "error_type": "invalid_credentials"})
	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "error_type": "account_locked"})
	case errors.Is(err, service.ErrOtpLocked):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "error_type": "otp_locked"})
	case errors.Is(err, service.ErrOtpExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Код истек, запросите новый", "error_type": "otp_expired"})
	case errors.Is(err, service.ErrOtpIncorrect):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "otp_incorrect"})
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Недействительный или истекший токен", "error_type": "invalid_or_expired_token"})
	case errors.Is(err, service.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "weak_password"})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Ошибка аутентификации или неверные данные", "error_type": "unauthorized"})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Доступ запрещен", "error_type": "forbidden"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Запрашиваемый ресурс не найден", "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Аккаунт с таким email уже существует", "error_type": "conflict"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ошибка валидации данных", "error_type": "validation_error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Внутренняя ошибка сервера", "error_type": "internal_server_error"})
	}
}
