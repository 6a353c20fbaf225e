package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// RoleRepo реализует repository.RoleRepository
type RoleRepo struct {
	db *gorm.DB
}

// NewRoleRepo создает новый репозиторий ролей
func NewRoleRepo(db *gorm.DB) *RoleRepo {
	return &RoleRepo{db: db}
}

// GetByName возвращает роль по имени
func (r *RoleRepo) GetByName(name string) (*entity.Role, error) {
	var role entity.Role
	err := r.db.Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// GetRolesForUser возвращает все роли аккаунта
func (r *RoleRepo) GetRolesForUser(userID uint) ([]entity.Role, error) {
	var roles []entity.Role
	err := r.db.
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ролей пользователя %d: %w", userID, err)
	}
	return roles, nil
}

// AssignRole назначает роль аккаунту (повторное назначение — no-op)
func (r *RoleRepo) AssignRole(userID, roleID uint) error {
	link := &entity.UserRole{UserID: userID, RoleID: roleID}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error
}

// Upsert создает роль или обновляет описание и permissions существующей
func (r *RoleRepo) Upsert(role *entity.Role) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "permissions", "updated_at"}),
	}).Create(role).Error
}
