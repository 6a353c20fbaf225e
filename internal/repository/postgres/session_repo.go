package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// SessionRepo реализует repository.SessionRepository с использованием PostgreSQL и GORM
type SessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo создает новый репозиторий сессий и возвращает ошибку при проблемах
func NewSessionRepo(db *gorm.DB) (*SessionRepo, error) {
	if db == nil {
		return nil, fmt.Errorf("GORM DB instance is required for SessionRepo")
	}
	return &SessionRepo{db: db}, nil
}

// Create сохраняет новую сессию
func (r *SessionRepo) Create(session *entity.Session) error {
	result := r.db.Create(session)
	if result.Error != nil {
		return fmt.Errorf("ошибка создания сессии: %w", result.Error)
	}
	return nil
}

// GetByToken находит сессию по значению токена
func (r *SessionRepo) GetByToken(token string) (*entity.Session, error) {
	var session entity.Session
	result := r.db.Where("token = ?", token).First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сессии по токену: %w", result.Error)
	}
	return &session, nil
}

// ExtendExpiry продлевает срок сессии до newExpiry.
// Условие expires_at < newExpiry делает продление монотонным: конкурентные
// продления сходятся к большему значению и никогда не уменьшают срок.
func (r *SessionRepo) ExtendExpiry(sessionID string, newExpiry time.Time) (bool, error) {
	result := r.db.Model(&entity.Session{}).
		Where("id = ? AND expires_at < ?", sessionID, newExpiry).
		Updates(map[string]interface{}{
			"expires_at": newExpiry,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("ошибка продления сессии: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateClientInfo обновляет IP и user agent сессии
func (r *SessionRepo) UpdateClientInfo(sessionID string, ip, userAgent string) error {
	result := r.db.Model(&entity.Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"ip_address": ip,
			"user_agent": userAgent,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("ошибка обновления данных клиента сессии: %w", result.Error)
	}
	return nil
}

// DeleteByToken удаляет сессию по токену. Отсутствие строки не ошибка:
// выход из системы идемпотентен.
func (r *SessionRepo) DeleteByToken(token string) error {
	result := r.db.Where("token = ?", token).Delete(&entity.Session{})
	if result.Error != nil {
		return fmt.Errorf("ошибка удаления сессии: %w", result.Error)
	}
	return nil
}

// DeleteByID удаляет сессию по ID (ленивое удаление истекшей при обращении)
func (r *SessionRepo) DeleteByID(sessionID string) error {
	result := r.db.Where("id = ?", sessionID).Delete(&entity.Session{})
	if result.Error != nil {
		return fmt.Errorf("ошибка удаления сессии по ID: %w", result.Error)
	}
	return nil
}

// DeleteExpired удаляет все истекшие сессии одним bulk-запросом.
// Предикат проверяется самим DELETE: сессия, продленная конкурентным
// запросом после планирования очистки, удалена не будет.
func (r *SessionRepo) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at < ?", now).Delete(&entity.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка очистки истекших сессий: %w", result.Error)
	}
	return result.RowsAffected, nil
}
