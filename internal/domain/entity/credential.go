package entity

import (
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ProviderPassword — единственный поддерживаемый provider учетных данных.
const ProviderPassword = "password"

// Credential хранит хеш пароля, связанный с аккаунтом 1:1 по провайдеру.
// Сам User хеш не содержит.
type Credential struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index;uniqueIndex:idx_credentials_user_provider" json:"user_id"`
	Provider     string    `gorm:"size:30;not null;default:'password';uniqueIndex:idx_credentials_user_provider" json:"provider"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Credential) TableName() string {
	return "credentials"
}

// BeforeSave хеширует пароль перед сохранением, только если он не является bcrypt-хешем
func (c *Credential) BeforeSave(tx *gorm.DB) error {
	// Хешируем только если значение:
	// 1. Не пустое
	// 2. Не является уже bcrypt-хешем (начинается с "$2a$", "$2b$" или "$2y$")
	if len(c.PasswordHash) > 0 && !strings.HasPrefix(c.PasswordHash, "$2a$") &&
		!strings.HasPrefix(c.PasswordHash, "$2b$") && !strings.HasPrefix(c.PasswordHash, "$2y$") {
		hashed, err := bcrypt.GenerateFromPassword([]byte(c.PasswordHash), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[Credential.BeforeSave] Ошибка при хешировании пароля для user_id=%d: %v", c.UserID, err)
			return err
		}
		c.PasswordHash = string(hashed)
	}
	return nil
}

// CheckPassword проверяет, соответствует ли переданный пароль хешу
func (c *Credential) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password))
	return err == nil
}
