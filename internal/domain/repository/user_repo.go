package repository

import (
	"time"

	"github.com/yourusername/auth-api/internal/domain/entity"
)

// UserRepository определяет методы для работы с аккаунтами.
//
// Все переходы состояния (счетчики попыток, блокировки, выдача и потребление
// токенов) выражены как атомарные условные UPDATE одной строки: паттерн
// "прочитал-изменил-записал" здесь недопустим, два конкурентных неудачных
// входа обязаны дать attempts 5 -> 6, а не дважды 4 -> 5.
type UserRepository interface {
	Create(user *entity.User) error

	// Delete безвозвратно удаляет аккаунт. Используется как компенсация,
	// когда создание credential после создания аккаунта не удалось:
	// иначе email остается занят строкой, войти в которую невозможно.
	Delete(userID uint) error

	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	UpdateLastLogin(userID uint, ip string, at time.Time) error

	// RecordFailedLogin атомарно инкрементирует счетчик неудачных входов и
	// устанавливает lock_until = now + lockWindow, когда счетчик достигает
	// threshold. Несуществующий email — молчаливый no-op (nil), чтобы не
	// раскрывать существование аккаунта.
	RecordFailedLogin(email string, threshold int, lockWindow time.Duration) error

	// ClearLoginLock безусловно сбрасывает счетчик входов и блокировку
	// (успешный вход или успешный сброс пароля).
	ClearLoginLock(userID uint) error

	// ClearExpiredLock выполняет ленивую разблокировку: одним условным UPDATE
	// очищает lock_until и обнуляет login_attempts, только если окно истекло.
	// Возвращает true, если переход состоялся.
	ClearExpiredLock(userID uint, now time.Time) (bool, error)

	// IssueOTP перезаписывает ожидающий OTP код (single-live-token) и
	// обнуляет счетчик попыток и блокировку OTP.
	IssueOTP(userID uint, code string, expires time.Time) error

	// RecordFailedOtp атомарно инкрементирует счетчик попыток OTP; при
	// достижении threshold тем же UPDATE включает блокировку на lockWindow и
	// очищает код (заблокированный атакующий не должен продолжать перебор
	// уже выданного кода). Возвращает значение счетчика после инкремента:
	// остаток попыток считается от него, а не от снимка в памяти.
	RecordFailedOtp(userID uint, threshold int, lockWindow time.Duration) (int, error)

	// ClearExpiredOtpLock — ленивая разблокировка OTP, аналогично ClearExpiredLock.
	ClearExpiredOtpLock(userID uint, now time.Time) (bool, error)

	// ConsumeOTP атомарно потребляет код: проверка совпадения и срока и
	// очистка всего OTP состояния — один UPDATE. Из двух гонящихся запросов
	// с одним кодом успеет ровно один. Возвращает true при успехе.
	ConsumeOTP(userID uint, code string, now time.Time) (bool, error)

	SetPasswordResetToken(userID uint, token string, expires time.Time) error

	// ClaimPasswordResetToken атомарно забирает живой токен сброса: очищает
	// токен, срок и состояние блокировки входа одним условным UPDATE и
	// возвращает владельца. ErrNotFound — токен не найден, истек или уже
	// потреблен (в том числе конкурентным запросом).
	ClaimPasswordResetToken(token string, now time.Time) (*entity.User, error)

	SetEmailVerificationToken(userID uint, token string, expires time.Time) error

	// ConsumeEmailVerificationToken одним UPDATE устанавливает
	// email_verified = true и очищает токен со сроком. Возвращает true,
	// если живой токен был найден и потреблен.
	ConsumeEmailVerificationToken(token string, now time.Time) (bool, error)
}
