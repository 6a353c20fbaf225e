package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется при отсутствующей или недействительной сессии.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда у пользователя недостаточно прав для действия
	// (неактивный аккаунт, отсутствующая роль или permission).
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, повторная
	// регистрация уже существующего email).
	ErrConflict = errors.New("resource state conflict")

	// ErrInternal используется для непредвиденных ошибок хранилища и инфраструктуры.
	// Детали остаются в логах сервера и не возвращаются клиенту.
	ErrInternal = errors.New("internal error")
)
