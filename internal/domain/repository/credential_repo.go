package repository

import (
	"github.com/yourusername/auth-api/internal/domain/entity"
)

// CredentialRepository определяет методы для работы с учетными данными
type CredentialRepository interface {
	Create(cred *entity.Credential) error
	GetByUserAndProvider(userID uint, provider string) (*entity.Credential, error)
	// UpdatePasswordHash хеширует и перезаписывает пароль credential-записи
	UpdatePasswordHash(userID uint, provider, newPassword string) error
}
