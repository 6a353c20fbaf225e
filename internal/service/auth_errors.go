package service

import "errors"

// Auth flow specific errors used by handlers for stable error_type mapping.
var (
	// ErrInvalidCredentials намеренно общая: один и тот же sentinel и текст
	// для несуществующего email и неверного пароля (защита от перебора).
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrAccountLocked сообщает только остаток окна блокировки,
	// никогда — количество попыток.
	ErrAccountLocked = errors.New("account_locked")

	// ErrInvalidOrExpiredToken единообразна для истекшего, подделанного и
	// уже потребленного токена.
	ErrInvalidOrExpiredToken = errors.New("invalid_or_expired_token")

	ErrOtpExpired   = errors.New("otp_expired")
	ErrOtpIncorrect = errors.New("otp_incorrect")
	ErrOtpLocked    = errors.New("otp_locked")

	ErrWeakPassword = errors.New("weak_password")
)
