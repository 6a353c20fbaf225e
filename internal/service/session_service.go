package service

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// SessionService управляет жизненным циклом сессий: проверка токена,
// скользящее продление и удаление истекших записей.
type SessionService struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository

	sessionDuration  time.Duration
	renewalThreshold time.Duration
}

// NewSessionService создает новый сервис сессий и возвращает ошибку при проблемах
func NewSessionService(
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	sessionDuration time.Duration,
	renewalThreshold time.Duration,
) (*SessionService, error) {
	if sessionRepo == nil {
		return nil, fmt.Errorf("SessionRepository is required for SessionService")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for SessionService")
	}
	if sessionDuration <= 0 {
		sessionDuration = 7 * 24 * time.Hour
	}
	if renewalThreshold <= 0 {
		renewalThreshold = 24 * time.Hour
	}
	return &SessionService{
		sessionRepo:      sessionRepo,
		userRepo:         userRepo,
		sessionDuration:  sessionDuration,
		renewalThreshold: renewalThreshold,
	}, nil
}

// SessionDuration возвращает полное время жизни сессии
func (s *SessionService) SessionDuration() time.Duration {
	return s.sessionDuration
}

// Validate разрешает токен сессии в сессию и ее аккаунт.
// Неизвестный и истекший токен неразличимы для вызывающего;
// истекшая запись при этом лениво удаляется.
func (s *SessionService) Validate(token string) (*entity.Session, *entity.User, error) {
	if token == "" {
		return nil, nil, apperrors.ErrUnauthorized
	}

	session, err := s.sessionRepo.GetByToken(token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.IsExpired(time.Now()) {
		// Ленивое удаление: первое обращение после истечения убирает строку,
		// не дожидаясь фоновой очистки. Ошибка удаления не меняет отказ.
		if delErr := s.sessionRepo.DeleteByID(session.ID); delErr != nil {
			log.Printf("[SessionService] Ошибка ленивого удаления сессии %s: %v", session.ID, delErr)
		}
		return nil, nil, apperrors.ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(session.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("failed to load session user: %w", err)
	}

	return session, user, nil
}

// RenewIfNearExpiry продлевает сессию до полного срока, если остаток ее
// жизни меньше порога продления. Возвращает true, если срок был продлен.
// Продление монотонно: конкурирующие запросы не укорачивают сессию.
func (s *SessionService) RenewIfNearExpiry(session *entity.Session) (bool, error) {
	now := time.Now()
	if session.RemainingLifetime(now) >= s.renewalThreshold {
		return false, nil
	}

	newExpiry := now.Add(s.sessionDuration)
	extended, err := s.sessionRepo.ExtendExpiry(session.ID, newExpiry)
	if err != nil {
		return false, fmt.Errorf("failed to extend session: %w", err)
	}
	if extended {
		session.ExpiresAt = newExpiry
	}
	return extended, nil
}

// RefreshClientInfo записывает актуальные IP и user agent в сессию,
// если они отличаются от сохраненных. Обогащение не критично для запроса.
func (s *SessionService) RefreshClientInfo(session *entity.Session, ip, userAgent string) error {
	if ip == session.IPAddress && userAgent == session.UserAgent {
		return nil
	}
	if err := s.sessionRepo.UpdateClientInfo(session.ID, ip, userAgent); err != nil {
		return fmt.Errorf("failed to update session client info: %w", err)
	}
	session.IPAddress = ip
	session.UserAgent = userAgent
	return nil
}

// Revoke удаляет сессию по токену. Идемпотентен.
func (s *SessionService) Revoke(token string) error {
	if token == "" {
		return nil
	}
	return s.sessionRepo.DeleteByToken(token)
}

// SweepExpired удаляет все истекшие сессии и возвращает их количество
func (s *SessionService) SweepExpired() (int64, error) {
	deleted, err := s.sessionRepo.DeleteExpired(time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	if deleted > 0 {
		log.Printf("[SessionService] Удалено %d истекших сессий", deleted)
	}
	return deleted, nil
}

// StartSweeper запускает фоновую периодическую очистку истекших сессий.
// Остановка — закрытием канала stop.
func (s *SessionService) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Printf("[SessionService] Очистка сессий запущена с интервалом %s", interval)
		for {
			select {
			case <-ticker.C:
				if _, err := s.SweepExpired(); err != nil {
					log.Printf("[SessionService] Ошибка очистки сессий: %v", err)
				}
			case <-stop:
				log.Printf("[SessionService] Очистка сессий остановлена")
				return
			}
		}
	}()
}
