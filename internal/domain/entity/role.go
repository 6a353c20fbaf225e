package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PermissionSet отображает ресурс на множество разрешенных действий.
// Авторизация — чистый запрос принадлежности (resource, action) к множеству,
// независимый от представления в хранилище.
type PermissionSet map[string][]string

// Allows возвращает true, если набор разрешает действие над ресурсом
func (p PermissionSet) Allows(resource, action string) bool {
	actions, ok := p[resource]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// Value сериализует набор разрешений в JSONB
func (p PermissionSet) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan десериализует набор разрешений из JSONB
func (p *PermissionSet) Scan(value interface{}) error {
	if value == nil {
		*p = PermissionSet{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported permissions column type %T", value)
	}
	return json.Unmarshal(data, p)
}

// Предопределенные имена ролей
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Role представляет роль с явным набором возможностей
type Role struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Name        string        `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Description string        `gorm:"size:255;not null;default:''" json:"description"`
	Permissions PermissionSet `gorm:"type:jsonb;not null;default:'{}'" json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Role) TableName() string {
	return "roles"
}

// Allows возвращает true, если роль разрешает действие над ресурсом
func (r *Role) Allows(resource, action string) bool {
	return r.Permissions.Allows(resource, action)
}

// UserRole связывает аккаунт с ролью
type UserRole struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index;uniqueIndex:idx_user_roles_pair" json:"user_id"`
	RoleID    uint      `gorm:"not null;index;uniqueIndex:idx_user_roles_pair" json:"role_id"`
	Role      Role      `gorm:"foreignKey:RoleID" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (UserRole) TableName() string {
	return "user_roles"
}
