package repository

import (
	"time"

	"github.com/yourusername/auth-api/internal/domain/entity"
)

// SessionRepository определяет методы для работы с сессиями
type SessionRepository interface {
	Create(session *entity.Session) error
	GetByToken(token string) (*entity.Session, error)

	// ExtendExpiry продлевает сессию до newExpiry. Условие expires_at < newExpiry
	// гарантирует монотонность: конкурентные продления не могут уменьшить срок.
	// Возвращает true, если строка была обновлена.
	ExtendExpiry(sessionID string, newExpiry time.Time) (bool, error)

	// UpdateClientInfo обогащает сессию актуальными IP и user agent
	UpdateClientInfo(sessionID string, ip, userAgent string) error

	// DeleteByToken удаляет сессию; отсутствие строки не является ошибкой (идемпотентно)
	DeleteByToken(token string) error
	DeleteByID(sessionID string) error

	// DeleteExpired удаляет все сессии с истекшим сроком одним bulk-запросом.
	// Предикат истечения вычисляется самим DELETE, без устаревших снимков в памяти.
	DeleteExpired(now time.Time) (int64, error)
}
