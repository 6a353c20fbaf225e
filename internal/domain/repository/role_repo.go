package repository

import (
	"github.com/yourusername/auth-api/internal/domain/entity"
)

// RoleRepository определяет методы для работы с ролями и их назначениями
type RoleRepository interface {
	GetByName(name string) (*entity.Role, error)
	// GetRolesForUser возвращает все роли аккаунта (для проверки возможностей)
	GetRolesForUser(userID uint) ([]entity.Role, error)
	AssignRole(userID, roleID uint) error
	// Upsert создает роль или обновляет описание и permissions существующей (сидинг)
	Upsert(role *entity.Role) error
}
