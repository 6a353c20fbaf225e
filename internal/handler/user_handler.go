package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/service"
)

// UserHandler обрабатывает запросы, связанные с аккаунтами
type UserHandler struct {
	authService *service.AuthService
}

// NewUserHandler создает новый обработчик аккаунтов
func NewUserHandler(authService *service.AuthService) *UserHandler {
	return &UserHandler{
		authService: authService,
	}
}

// GetMe возвращает профиль текущего аккаунта с ролями
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
		return
	}

	profile, err := h.authService.GetUserProfile(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error getting profile", "error_type": "internal_server_error"})
		return
	}

	c.JSON(http.StatusOK, profile)
}
