package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/domain/entity"
)

// Ключи контекста, устанавливаемые middleware.SessionMiddleware
const (
	ContextUserIDKey  = "user_id"
	ContextUserKey    = "user"
	ContextSessionKey = "session"
)

// CurrentUserID возвращает ID аутентифицированного аккаунта (0, если его нет)
func CurrentUserID(c *gin.Context) uint {
	v, exists := c.Get(ContextUserIDKey)
	if !exists {
		return 0
	}
	id, ok := v.(uint)
	if !ok {
		return 0
	}
	return id
}

// CurrentUser возвращает аутентифицированный аккаунт из контекста
func CurrentUser(c *gin.Context) *entity.User {
	v, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	user, ok := v.(*entity.User)
	if !ok {
		return nil
	}
	return user
}

// CurrentSession возвращает текущую сессию из контекста
func CurrentSession(c *gin.Context) *entity.Session {
	v, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil
	}
	session, ok := v.(*entity.Session)
	if !ok {
		return nil
	}
	return session
}
