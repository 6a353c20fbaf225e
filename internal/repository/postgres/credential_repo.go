package postgres

import (
	"errors"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// CredentialRepo реализует repository.CredentialRepository
type CredentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepo создает новый репозиторий учетных данных
func NewCredentialRepo(db *gorm.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Create создает новую credential-запись (пароль хешируется хуком BeforeSave)
func (r *CredentialRepo) Create(cred *entity.Credential) error {
	return r.db.Create(cred).Error
}

// GetByUserAndProvider возвращает credential-запись аккаунта для провайдера
func (r *CredentialRepo) GetByUserAndProvider(userID uint, provider string) (*entity.Credential, error) {
	var cred entity.Credential
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// UpdatePasswordHash безопасно перезаписывает пароль credential-записи.
// Хешируем здесь и пишем прямым SQL, чтобы обойти хук BeforeSave и
// исключить двойное хеширование.
func (r *CredentialRepo) UpdatePasswordHash(userID uint, provider, newPassword string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[CredentialRepo.UpdatePasswordHash] Ошибка при хешировании пароля: %v", err)
		return err
	}

	result := r.db.Exec(
		"UPDATE credentials SET password_hash = ?, updated_at = ? WHERE user_id = ? AND provider = ?",
		string(hashed), time.Now(), userID, provider,
	)
	if result.Error != nil {
		log.Printf("[CredentialRepo.UpdatePasswordHash] Ошибка при обновлении пароля user_id=%d: %v", userID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
