package service

import (
	"fmt"
	"time"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
)

// AttemptLedger ведет учет неудачных попыток входа и OTP и окон блокировки.
// Вся арифметика счетчиков делегирована атомарным условным UPDATE репозитория;
// ledger задает пороги и окна и делает ленивую разблокировку явным переходом,
// который можно проверить в тестах отдельно от чтения.
type AttemptLedger struct {
	userRepo repository.UserRepository

	loginThreshold  int
	loginLockWindow time.Duration
	otpThreshold    int
	otpLockWindow   time.Duration
}

// NewAttemptLedger создает новый ledger попыток и возвращает ошибку при проблемах
func NewAttemptLedger(
	userRepo repository.UserRepository,
	loginThreshold int,
	loginLockWindow time.Duration,
	otpThreshold int,
	otpLockWindow time.Duration,
) (*AttemptLedger, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AttemptLedger")
	}
	if loginThreshold <= 0 || otpThreshold <= 0 {
		return nil, fmt.Errorf("attempt thresholds must be positive")
	}
	return &AttemptLedger{
		userRepo:        userRepo,
		loginThreshold:  loginThreshold,
		loginLockWindow: loginLockWindow,
		otpThreshold:    otpThreshold,
		otpLockWindow:   otpLockWindow,
	}, nil
}

// OtpThreshold возвращает порог блокировки OTP
func (l *AttemptLedger) OtpThreshold() int {
	return l.otpThreshold
}

// OtpLockWindow возвращает окно блокировки OTP
func (l *AttemptLedger) OtpLockWindow() time.Duration {
	return l.otpLockWindow
}

// RecordFailedLogin фиксирует неудачную попытку входа.
// Несуществующий email — молчаливый no-op.
func (l *AttemptLedger) RecordFailedLogin(email string) error {
	return l.userRepo.RecordFailedLogin(email, l.loginThreshold, l.loginLockWindow)
}

// EvaluateLoginLock возвращает, заблокирован ли вход для аккаунта, и остаток окна.
// Если окно блокировки истекло, выполняется явный переход разблокировки:
// lock_until очищается и login_attempts обнуляется (ленивая разблокировка).
func (l *AttemptLedger) EvaluateLoginLock(user *entity.User) (bool, time.Duration, error) {
	now := time.Now()
	if user.IsLocked(now) {
		return true, user.LockUntil.Sub(now), nil
	}
	if user.LockExpired(now) {
		if _, err := l.userRepo.ClearExpiredLock(user.ID, now); err != nil {
			return false, 0, fmt.Errorf("failed to clear expired lock: %w", err)
		}
		user.LockUntil = nil
		user.LoginAttempts = 0
	}
	return false, 0, nil
}

// ResetLoginAttempts безусловно сбрасывает счетчик и блокировку
// (успешный вход)
func (l *AttemptLedger) ResetLoginAttempts(userID uint) error {
	return l.userRepo.ClearLoginLock(userID)
}

// RecordFailedOtp фиксирует неудачную попытку OTP и возвращает значение
// счетчика после инкремента. При достижении порога репозиторий тем же
// UPDATE включает блокировку и очищает ожидающий код.
func (l *AttemptLedger) RecordFailedOtp(userID uint) (int, error) {
	return l.userRepo.RecordFailedOtp(userID, l.otpThreshold, l.otpLockWindow)
}

// EvaluateOtpLock возвращает, заблокирована ли проверка OTP, и остаток окна.
// Истекшая блокировка снимается явным переходом, как и для входа.
func (l *AttemptLedger) EvaluateOtpLock(user *entity.User) (bool, time.Duration, error) {
	now := time.Now()
	if user.IsOtpLocked(now) {
		return true, user.OtpLockedUntil.Sub(now), nil
	}
	if user.OtpLocked {
		if _, err := l.userRepo.ClearExpiredOtpLock(user.ID, now); err != nil {
			return false, 0, fmt.Errorf("failed to clear expired otp lock: %w", err)
		}
		user.OtpLocked = false
		user.OtpLockedUntil = nil
		user.OtpAttempts = 0
	}
	return false, 0, nil
}
