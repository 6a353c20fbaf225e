package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// UserRepo реализует repository.UserRepository
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый репозиторий аккаунтов
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create создает новый аккаунт
func (r *UserRepo) Create(user *entity.User) error {
	return r.db.Create(user).Error
}

// Delete безвозвратно удаляет аккаунт (компенсация неудачной регистрации).
// Связанные credentials и сессии уходят по ON DELETE CASCADE.
func (r *UserRepo) Delete(userID uint) error {
	result := r.db.Delete(&entity.User{}, userID)
	if result.Error != nil {
		return fmt.Errorf("ошибка удаления аккаунта: %w", result.Error)
	}
	return nil
}

// GetByID возвращает аккаунт по ID
func (r *UserRepo) GetByID(id uint) (*entity.User, error) {
	var user entity.User
	err := r.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail возвращает аккаунт по email
func (r *UserRepo) GetByEmail(email string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin обновляет поля аудита последнего входа
func (r *UserRepo) UpdateLastLogin(userID uint, ip string, at time.Time) error {
	return r.db.Model(&entity.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login":    at,
			"last_login_ip": ip,
			"updated_at":    at,
		}).Error
}

// RecordFailedLogin атомарно инкрементирует счетчик неудачных входов.
// Инкремент и установка lock_until при достижении порога выполняются одним
// UPDATE: два конкурентных вызова дают 5 -> 6, а не дважды 4 -> 5.
// Несуществующий email — no-op без ошибки (защита от перебора аккаунтов).
func (r *UserRepo) RecordFailedLogin(email string, threshold int, lockWindow time.Duration) error {
	now := time.Now()
	result := r.db.Exec(
		`UPDATE users
		 SET login_attempts = login_attempts + 1,
		     lock_until = CASE WHEN login_attempts + 1 >= ? THEN ? ELSE lock_until END,
		     updated_at = ?
		 WHERE email = ?`,
		threshold, now.Add(lockWindow), now, email,
	)
	if result.Error != nil {
		return fmt.Errorf("ошибка записи неудачной попытки входа: %w", result.Error)
	}
	// RowsAffected == 0 означает несуществующий email — молчаливый no-op
	return nil
}

// ClearLoginLock безусловно сбрасывает счетчик и блокировку входа
func (r *UserRepo) ClearLoginLock(userID uint) error {
	return r.db.Model(&entity.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"login_attempts": 0,
			"lock_until":     nil,
		}).Error
}

// ClearExpiredLock выполняет ленивую разблокировку: переход применяется,
// только если окно блокировки действительно истекло на момент UPDATE
func (r *UserRepo) ClearExpiredLock(userID uint, now time.Time) (bool, error) {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND lock_until IS NOT NULL AND lock_until <= ?", userID, now).
		Updates(map[string]interface{}{
			"login_attempts": 0,
			"lock_until":     nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("ошибка снятия истекшей блокировки: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IssueOTP перезаписывает ожидающий OTP код и обнуляет состояние попыток.
// Любая выдача инвалидирует предыдущий код (не более одного живого кода).
func (r *UserRepo) IssueOTP(userID uint, code string, expires time.Time) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"otp_code":         code,
			"otp_expires":      expires,
			"otp_attempts":     0,
			"otp_locked":       false,
			"otp_locked_until": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("ошибка выдачи OTP: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RecordFailedOtp атомарно инкрементирует счетчик попыток OTP.
// При достижении порога тем же UPDATE включается блокировка и очищается код,
// чтобы заблокированный атакующий не продолжал перебор выданного кода.
// RETURNING отдает значение счетчика после инкремента: параллельные неудачи
// видят каждый свое значение, а не общий снимок до записи.
func (r *UserRepo) RecordFailedOtp(userID uint, threshold int, lockWindow time.Duration) (int, error) {
	now := time.Now()
	var attempts int
	result := r.db.Raw(
		`UPDATE users
		 SET otp_attempts = otp_attempts + 1,
		     otp_locked = CASE WHEN otp_attempts + 1 >= ? THEN TRUE ELSE otp_locked END,
		     otp_locked_until = CASE WHEN otp_attempts + 1 >= ? THEN ? ELSE otp_locked_until END,
		     otp_code = CASE WHEN otp_attempts + 1 >= ? THEN NULL ELSE otp_code END,
		     updated_at = ?
		 WHERE id = ?
		 RETURNING otp_attempts`,
		threshold, threshold, now.Add(lockWindow), threshold, now, userID,
	).Scan(&attempts)
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка записи неудачной попытки OTP: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, apperrors.ErrNotFound
	}
	return attempts, nil
}

// ClearExpiredOtpLock — ленивая разблокировка OTP
func (r *UserRepo) ClearExpiredOtpLock(userID uint, now time.Time) (bool, error) {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND otp_locked = TRUE AND otp_locked_until IS NOT NULL AND otp_locked_until <= ?", userID, now).
		Updates(map[string]interface{}{
			"otp_locked":       false,
			"otp_locked_until": nil,
			"otp_attempts":     0,
		})
	if result.Error != nil {
		return false, fmt.Errorf("ошибка снятия истекшей блокировки OTP: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ConsumeOTP атомарно потребляет OTP код: сверка значения, проверка срока и
// очистка состояния — один условный UPDATE. Повторное потребление того же
// кода (включая конкурентное) не пройдет условие otp_code = ?.
func (r *UserRepo) ConsumeOTP(userID uint, code string, now time.Time) (bool, error) {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND otp_code = ? AND otp_expires IS NOT NULL AND otp_expires > ?", userID, code, now).
		Updates(map[string]interface{}{
			"otp_code":         nil,
			"otp_expires":      nil,
			"otp_attempts":     0,
			"otp_locked":       false,
			"otp_locked_until": nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("ошибка потребления OTP: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetPasswordResetToken перезаписывает токен сброса пароля (single-live-token)
func (r *UserRepo) SetPasswordResetToken(userID uint, token string, expires time.Time) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_reset_token":   token,
			"password_reset_expires": expires,
		})
	if result.Error != nil {
		return fmt.Errorf("ошибка сохранения токена сброса пароля: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ClaimPasswordResetToken атомарно забирает живой токен сброса.
// Сам claim — условный UPDATE: из двух конкурентных запросов с одним токеном
// условие password_reset_token = ? выполнится ровно у одного.
// Вместе с токеном сбрасывается блокировка входа: успешный сброс пароля —
// подтверждение владения аккаунтом.
func (r *UserRepo) ClaimPasswordResetToken(token string, now time.Time) (*entity.User, error) {
	var user entity.User
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("password_reset_token = ?", token).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		result := tx.Model(&entity.User{}).
			Where("id = ? AND password_reset_token = ? AND password_reset_expires IS NOT NULL AND password_reset_expires > ?",
				user.ID, token, now).
			Updates(map[string]interface{}{
				"password_reset_token":   nil,
				"password_reset_expires": nil,
				"login_attempts":         0,
				"lock_until":             nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Истек или уже потреблен (в том числе конкурентным запросом)
			return apperrors.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка потребления токена сброса пароля: %w", err)
	}
	return &user, nil
}

// SetEmailVerificationToken перезаписывает токен подтверждения email
func (r *UserRepo) SetEmailVerificationToken(userID uint, token string, expires time.Time) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"email_verification_token":   token,
			"email_verification_expires": expires,
		})
	if result.Error != nil {
		return fmt.Errorf("ошибка сохранения токена подтверждения email: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ConsumeEmailVerificationToken одним условным UPDATE помечает email
// подтвержденным и очищает токен: проверка и эффект неразделимы
func (r *UserRepo) ConsumeEmailVerificationToken(token string, now time.Time) (bool, error) {
	result := r.db.Model(&entity.User{}).
		Where("email_verification_token = ? AND email_verification_expires IS NOT NULL AND email_verification_expires > ?",
			token, now).
		Updates(map[string]interface{}{
			"email_verified":             true,
			"email_verification_token":   nil,
			"email_verification_expires": nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("ошибка потребления токена подтверждения email: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
