package entity

import (
	"time"
)

// User представляет аккаунт в системе.
// Поля счетчиков попыток и блокировок обновляются только атомарными
// условными UPDATE на уровне репозитория, не через Save всей структуры.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Email         string     `gorm:"size:100;not null;uniqueIndex" json:"email"`
	FirstName     string     `gorm:"size:100;not null;default:''" json:"first_name"`
	LastName      string     `gorm:"size:100;not null;default:''" json:"last_name"`
	Phone         string     `gorm:"size:30;not null;default:''" json:"phone,omitempty"`
	IsActive      bool       `gorm:"not null;default:true" json:"is_active"`
	EmailVerified bool       `gorm:"not null;default:false" json:"email_verified"`

	// Счетчик неудачных входов и окно блокировки.
	// Инвариант: либо LoginAttempts < порога, либо LockUntil установлен.
	LoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockUntil     *time.Time `gorm:"type:timestamp" json:"-"`

	// Аудит последнего входа
	LastLogin   *time.Time `gorm:"type:timestamp" json:"last_login,omitempty"`
	LastLoginIP string     `gorm:"size:50;not null;default:''" json:"-"`

	// Состояние OTP. OtpCode != nil влечет OtpExpires != nil.
	// При блокировке OTP код очищается, чтобы не оставлять поверхность для перебора.
	OtpCode        *string    `gorm:"size:6" json:"-"`
	OtpExpires     *time.Time `gorm:"type:timestamp" json:"-"`
	OtpAttempts    int        `gorm:"not null;default:0" json:"-"`
	OtpLocked      bool       `gorm:"not null;default:false" json:"-"`
	OtpLockedUntil *time.Time `gorm:"type:timestamp" json:"-"`

	// Одноразовые токены: не более одного живого токена каждого вида на аккаунт.
	PasswordResetToken       *string    `gorm:"size:64;uniqueIndex" json:"-"`
	PasswordResetExpires     *time.Time `gorm:"type:timestamp" json:"-"`
	EmailVerificationToken   *string    `gorm:"size:64;uniqueIndex" json:"-"`
	EmailVerificationExpires *time.Time `gorm:"type:timestamp" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// IsLocked возвращает true, если аккаунт заблокирован на момент now.
// Чистая проверка без побочных эффектов: ленивую разблокировку выполняет
// AttemptLedger отдельным явным переходом.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// LockExpired возвращает true, если окно блокировки было установлено и уже истекло
func (u *User) LockExpired(now time.Time) bool {
	return u.LockUntil != nil && !u.LockUntil.After(now)
}

// IsOtpLocked возвращает true, если проверка OTP заблокирована на момент now
func (u *User) IsOtpLocked(now time.Time) bool {
	return u.OtpLocked && u.OtpLockedUntil != nil && u.OtpLockedUntil.After(now)
}

// OtpLockRemaining возвращает остаток окна блокировки OTP (0, если не заблокирован)
func (u *User) OtpLockRemaining(now time.Time) time.Duration {
	if !u.IsOtpLocked(now) {
		return 0
	}
	return u.OtpLockedUntil.Sub(now)
}

// HasLiveOtp возвращает true, если есть выданный и не истекший OTP код
func (u *User) HasLiveOtp(now time.Time) bool {
	return u.OtpCode != nil && u.OtpExpires != nil && u.OtpExpires.After(now)
}

// PublicUser содержит поля аккаунта, безопасные для выдачи клиенту.
// Токены, счетчики попыток и хеши сюда не попадают.
type PublicUser struct {
	ID            uint       `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Phone         string     `json:"phone,omitempty"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Public возвращает публичную проекцию аккаунта
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Phone:         u.Phone,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
	}
}
