package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// TokenIssuer выдает непрозрачные токены и OTP коды.
// Инварианты single-live-token и сброса счетчиков обеспечиваются
// репозиторием при сохранении выданного значения, не здесь.
type TokenIssuer struct{}

// NewTokenIssuer создает новый генератор токенов
func NewTokenIssuer() TokenIssuer {
	return TokenIssuer{}
}

// Token возвращает непрозрачный токен с 256 битами энтропии в hex-кодировке.
// Используется для сессий, токенов сброса пароля и подтверждения email.
func (TokenIssuer) Token() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// OTPCode возвращает 6-значный код, равномерно распределенный на
// [100000, 999999]. Низкая энтропия кода намеренна: безопасность OTP
// держится на коротком TTL и блокировке по попыткам.
func (TokenIssuer) OTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
