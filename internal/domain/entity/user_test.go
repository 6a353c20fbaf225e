package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_IsLocked(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * time.Minute)
	past := now.Add(-10 * time.Minute)

	assert.False(t, (&User{}).IsLocked(now), "Без lock_until блокировки нет")
	assert.True(t, (&User{LockUntil: &future}).IsLocked(now))
	assert.False(t, (&User{LockUntil: &past}).IsLocked(now), "Истекшее окно не блокирует")
}

func TestUser_LockExpired(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * time.Minute)
	past := now.Add(-10 * time.Minute)

	assert.False(t, (&User{}).LockExpired(now), "Нет окна — нечему истекать")
	assert.False(t, (&User{LockUntil: &future}).LockExpired(now))
	assert.True(t, (&User{LockUntil: &past}).LockExpired(now))
}

func TestUser_IsOtpLocked(t *testing.T) {
	now := time.Now()
	future := now.Add(20 * time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, (&User{}).IsOtpLocked(now))
	assert.True(t, (&User{OtpLocked: true, OtpLockedUntil: &future}).IsOtpLocked(now))
	assert.False(t, (&User{OtpLocked: true, OtpLockedUntil: &past}).IsOtpLocked(now),
		"Истекшая блокировка OTP не активна")
	// Флаг без метки времени не считается активной блокировкой
	assert.False(t, (&User{OtpLocked: true}).IsOtpLocked(now))
}

func TestUser_OtpLockRemaining(t *testing.T) {
	now := time.Now()
	until := now.Add(15 * time.Minute)

	user := &User{OtpLocked: true, OtpLockedUntil: &until}
	assert.Equal(t, 15*time.Minute, user.OtpLockRemaining(now))
	assert.Zero(t, (&User{}).OtpLockRemaining(now))
}

func TestUser_HasLiveOtp(t *testing.T) {
	now := time.Now()
	code := "123456"
	future := now.Add(3 * time.Minute)
	past := now.Add(-time.Second)

	assert.False(t, (&User{}).HasLiveOtp(now), "Код не выдавался")
	assert.True(t, (&User{OtpCode: &code, OtpExpires: &future}).HasLiveOtp(now))
	assert.False(t, (&User{OtpCode: &code, OtpExpires: &past}).HasLiveOtp(now), "Код истек")
}

func TestUser_Public_RedactsSensitiveFields(t *testing.T) {
	// Arrange: аккаунт со всеми чувствительными полями
	now := time.Now()
	code := "123456"
	token := "secrettoken"
	user := &User{
		ID:                     1,
		Email:                  "test@example.com",
		FirstName:              "Ivan",
		LastName:               "Petrov",
		EmailVerified:          true,
		LoginAttempts:          4,
		LockUntil:              &now,
		OtpCode:                &code,
		PasswordResetToken:     &token,
		EmailVerificationToken: &token,
		LastLoginIP:            "203.0.113.10",
	}

	// Act: сериализуем публичную проекцию
	data, err := json.Marshal(user.Public())
	require.NoError(t, err)
	serialized := string(data)

	// Assert: ничего чувствительного в JSON
	assert.Contains(t, serialized, "test@example.com")
	assert.NotContains(t, serialized, "123456", "OTP код не должен утекать")
	assert.NotContains(t, serialized, "secrettoken", "Токены не должны утекать")
	assert.NotContains(t, serialized, "203.0.113.10", "IP последнего входа не отдается клиенту")
	assert.NotContains(t, serialized, "attempts", "Счетчики попыток не отдаются клиенту")
}
