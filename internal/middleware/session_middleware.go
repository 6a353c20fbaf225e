package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	"github.com/yourusername/auth-api/internal/handler"
	"github.com/yourusername/auth-api/internal/service"
)

// SessionMiddleware обеспечивает аутентификацию по сессионной куке
// для защищенных маршрутов
type SessionMiddleware struct {
	sessionService *service.SessionService
	roleRepo       repository.RoleRepository
	cookieSecure   bool
}

// NewSessionMiddleware создает новый middleware сессионной аутентификации
func NewSessionMiddleware(sessionService *service.SessionService, roleRepo repository.RoleRepository, cookieSecure bool) *SessionMiddleware {
	return &SessionMiddleware{
		sessionService: sessionService,
		roleRepo:       roleRepo,
		cookieSecure:   cookieSecure,
	}
}

// RequireAuth проверяет сессионную куку и помещает аккаунт и сессию в контекст.
// После успешной проверки выполняется скользящее продление: если остаток
// жизни сессии меньше порога, срок выставляется заново и кука обновляется.
// Ошибка продления никогда не блокирует запрос.
func (m *SessionMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(handler.SessionCookieName)
		if err != nil || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "session_missing"})
			c.Abort()
			return
		}

		session, user, err := m.sessionService.Validate(token)
		if err != nil {
			// Неизвестный и истекший токен неразличимы в ответе;
			// мертвая кука при этом удаляется у клиента
			m.clearSessionCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session", "error_type": "session_invalid"})
			c.Abort()
			return
		}

		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is deactivated", "error_type": "account_deactivated"})
			c.Abort()
			return
		}

		c.Set(handler.ContextUserIDKey, user.ID)
		c.Set(handler.ContextUserKey, user)
		c.Set(handler.ContextSessionKey, session)

		// Обогащение сессии актуальными IP и user agent; не блокирует запрос
		if err := m.sessionService.RefreshClientInfo(session, c.ClientIP(), c.Request.UserAgent()); err != nil {
			log.Printf("[SessionMiddleware] Ошибка обновления данных клиента сессии %s: %v", session.ID, err)
		}

		renewed, err := m.sessionService.RenewIfNearExpiry(session)
		if err != nil {
			log.Printf("[SessionMiddleware] Ошибка продления сессии %s: %v", session.ID, err)
		} else if renewed {
			// Кука продлевается вместе с записью сессии
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     handler.SessionCookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   int(m.sessionService.SessionDuration().Seconds()),
				HttpOnly: true,
				Secure:   m.cookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		c.Next()
	}
}

// clearSessionCookie выставляет удаляющую Set-Cookie для сессионной куки
func (m *SessionMiddleware) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     handler.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireEmailVerified пропускает только аккаунты с подтвержденным email.
// Должен применяться ПОСЛЕ RequireAuth.
func (m *SessionMiddleware) RequireEmailVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
			c.Abort()
			return
		}
		if !user.EmailVerified {
			c.JSON(http.StatusForbidden, gin.H{"error": "Email verification required", "error_type": "email_not_verified"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole пропускает только аккаунты хотя бы с одной из перечисленных ролей.
// Должен применяться ПОСЛЕ RequireAuth.
func (m *SessionMiddleware) RequireRole(names ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, ok := m.loadRoles(c)
		if !ok {
			return
		}
		for _, role := range roles {
			for _, name := range names {
				if role.Name == name {
					c.Next()
					return
				}
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role", "error_type": "forbidden"})
		c.Abort()
	}
}

// RequirePermission пропускает только аккаунты, одна из ролей которых
// разрешает действие над ресурсом. Должен применяться ПОСЛЕ RequireAuth.
func (m *SessionMiddleware) RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, ok := m.loadRoles(c)
		if !ok {
			return
		}
		for _, role := range roles {
			if role.Allows(resource, action) {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions", "error_type": "forbidden"})
		c.Abort()
	}
}

// loadRoles возвращает роли текущего аккаунта; при отказе пишет ответ и
// прерывает цепочку (второе значение false)
func (m *SessionMiddleware) loadRoles(c *gin.Context) ([]entity.Role, bool) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
		c.Abort()
		return nil, false
	}
	if m.roleRepo == nil {
		log.Printf("[SessionMiddleware] RoleRepository не сконфигурирован, отказ для user_id=%d", user.ID)
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions", "error_type": "forbidden"})
		c.Abort()
		return nil, false
	}
	roles, err := m.roleRepo.GetRolesForUser(user.ID)
	if err != nil {
		log.Printf("[SessionMiddleware] Ошибка загрузки ролей для user_id=%d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
		c.Abort()
		return nil, false
	}
	return roles, true
}

func currentUser(c *gin.Context) *entity.User {
	v, exists := c.Get(handler.ContextUserKey)
	if !exists {
		return nil
	}
	user, ok := v.(*entity.User)
	if !ok {
		return nil
	}
	return user
}
