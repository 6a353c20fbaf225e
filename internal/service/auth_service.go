package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// AuthPolicy содержит времена жизни выдаваемых сессий и токенов
type AuthPolicy struct {
	SessionDuration      time.Duration
	OTPTTL               time.Duration
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration
}

// AuthService — машина состояний аккаунта: регистрация, вход/выход,
// подтверждение email, OTP и сброс пароля. Счетчики и блокировки ведет
// AttemptLedger, случайные значения выдает TokenIssuer.
type AuthService struct {
	userRepo     repository.UserRepository
	credRepo     repository.CredentialRepository
	sessionRepo  repository.SessionRepository
	roleRepo     repository.RoleRepository
	cacheRepo    repository.CacheRepository
	ledger       *AttemptLedger
	issuer       TokenIssuer
	emailService EmailService

	policy AuthPolicy

	// Базовые URL для ссылок в письмах (подтверждение email, сброс пароля)
	verifyMailURL    string
	resetPasswordURL string

	// Пауза между повторными запросами сброса пароля для одного email
	resetRequestCooldown time.Duration
}

// NewAuthService создает новый сервис аутентификации и возвращает ошибку при проблемах
func NewAuthService(
	userRepo repository.UserRepository,
	credRepo repository.CredentialRepository,
	sessionRepo repository.SessionRepository,
	roleRepo repository.RoleRepository,
	cacheRepo repository.CacheRepository,
	ledger *AttemptLedger,
	emailService EmailService,
	policy AuthPolicy,
) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if credRepo == nil {
		return nil, fmt.Errorf("CredentialRepository is required for AuthService")
	}
	if sessionRepo == nil {
		return nil, fmt.Errorf("SessionRepository is required for AuthService")
	}
	if ledger == nil {
		return nil, fmt.Errorf("AttemptLedger is required for AuthService")
	}
	if emailService == nil {
		emailService = &NoopEmailService{}
	}
	// roleRepo и cacheRepo опциональны: без ролей профиль отдается без них,
	// без кеша пропускается cooldown повторных запросов сброса

	if policy.SessionDuration <= 0 {
		policy.SessionDuration = 7 * 24 * time.Hour
	}
	if policy.OTPTTL <= 0 {
		policy.OTPTTL = 5 * time.Minute
	}
	if policy.ResetTokenTTL <= 0 {
		policy.ResetTokenTTL = 10 * time.Minute
	}
	if policy.VerificationTokenTTL <= 0 {
		policy.VerificationTokenTTL = 24 * time.Hour
	}

	return &AuthService{
		userRepo:             userRepo,
		credRepo:             credRepo,
		sessionRepo:          sessionRepo,
		roleRepo:             roleRepo,
		cacheRepo:            cacheRepo,
		ledger:               ledger,
		issuer:               NewTokenIssuer(),
		emailService:         emailService,
		policy:               policy,
		resetRequestCooldown: 60 * time.Second,
	}, nil
}

// SetEmailLinks задает базовые URL для ссылок в письмах
func (s *AuthService) SetEmailLinks(verifyMailURL, resetPasswordURL string) {
	s.verifyMailURL = verifyMailURL
	s.resetPasswordURL = resetPasswordURL
}

// SignUpInput содержит все данные для регистрации
type SignUpInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// SignUp регистрирует новый аккаунт: создает User и Credential, выдает токен
// подтверждения email (24ч) и отправляет письмо, не блокируя ответ на
// результате доставки.
func (s *AuthService) SignUp(input SignUpInput) (*entity.User, error) {
	input.Email = normalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if input.Email == "" || input.FirstName == "" || input.LastName == "" {
		return nil, fmt.Errorf("%w: email, first_name and last_name are required", apperrors.ErrValidation)
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	// Проверяем, существует ли аккаунт с таким email
	_, err := s.userRepo.GetByEmail(input.Email)
	if err == nil {
		return nil, fmt.Errorf("%w: user with this email already exists", apperrors.ErrConflict)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	user := &entity.User{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     strings.TrimSpace(input.Phone),
		IsActive:  true,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	cred := &entity.Credential{
		UserID:       user.ID,
		Provider:     entity.ProviderPassword,
		PasswordHash: input.Password, // хешируется хуком BeforeSave
	}
	if err := s.credRepo.Create(cred); err != nil {
		// Компенсация: аккаунт без credential — сирота, навсегда занимающий
		// email. Удаляем его, чтобы повторная регистрация прошла.
		if delErr := s.userRepo.Delete(user.ID); delErr != nil {
			log.Printf("[AuthService] Ошибка компенсирующего удаления аккаунта ID=%d: %v", user.ID, delErr)
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	// Назначаем роль по умолчанию; ее отсутствие не валит регистрацию
	if s.roleRepo != nil {
		if role, roleErr := s.roleRepo.GetByName(entity.RoleUser); roleErr != nil {
			log.Printf("[AuthService] Роль по умолчанию не найдена: %v", roleErr)
		} else if assignErr := s.roleRepo.AssignRole(user.ID, role.ID); assignErr != nil {
			log.Printf("[AuthService] Ошибка назначения роли для ID=%d: %v", user.ID, assignErr)
		}
	}

	// Выдаем токен подтверждения email; письмо уходит в фоне
	token, err := s.issuer.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification token: %w", err)
	}
	expires := time.Now().Add(s.policy.VerificationTokenTTL)
	if err := s.userRepo.SetEmailVerificationToken(user.ID, token, expires); err != nil {
		return nil, fmt.Errorf("failed to store verification token: %w", err)
	}
	s.sendVerificationEmailAsync(user, token)

	log.Printf("[AuthService] Аккаунт ID=%d (%s) зарегистрирован", user.ID, user.Email)
	return user, nil
}

// SignInResult содержит данные успешного входа
type SignInResult struct {
	User    *entity.PublicUser
	Session *entity.Session
}

// SignIn аутентифицирует аккаунт по email и паролю и выдает новую сессию.
// Несуществующий email и неверный пароль дают один и тот же результат:
// запись неудачной попытки + ErrInvalidCredentials.
func (s *AuthService) SignIn(email, password, ip, userAgent string) (*SignInResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// No-op для несуществующего email, ответ неотличим от неверного пароля
			if recErr := s.ledger.RecordFailedLogin(email); recErr != nil {
				log.Printf("[AuthService] Ошибка записи неудачной попытки для %s: %v", email, recErr)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	locked, remaining, err := s.ledger.EvaluateLoginLock(user)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, fmt.Errorf("%w: try again in %d minute(s)", ErrAccountLocked, minutesCeil(remaining))
	}

	cred, err := s.credRepo.GetByUserAndProvider(user.ID, entity.ProviderPassword)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if err != nil || !cred.CheckPassword(password) {
		if recErr := s.ledger.RecordFailedLogin(email); recErr != nil {
			log.Printf("[AuthService] Ошибка записи неудачной попытки для ID=%d: %v", user.ID, recErr)
		}
		return nil, ErrInvalidCredentials
	}

	// Успешный вход: безусловный сброс счетчика и блокировки
	if err := s.ledger.ResetLoginAttempts(user.ID); err != nil {
		log.Printf("[AuthService] Ошибка сброса счетчика попыток для ID=%d: %v", user.ID, err)
	}

	session, err := s.createSession(user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.userRepo.UpdateLastLogin(user.ID, ip, now); err != nil {
		log.Printf("[AuthService] Ошибка обновления last_login для ID=%d: %v", user.ID, err)
	}
	user.LastLogin = &now

	log.Printf("[AuthService] Аккаунт ID=%d (%s) успешно вошел в систему", user.ID, user.Email)
	return &SignInResult{User: user.Public(), Session: session}, nil
}

// createSession выдает новую сессию с непрозрачным токеном
func (s *AuthService) createSession(userID uint, ip, userAgent string) (*entity.Session, error) {
	token, err := s.issuer.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}
	session := entity.NewSession(
		uuid.NewString(),
		token,
		userID,
		ip,
		userAgent,
		time.Now().Add(s.policy.SessionDuration),
	)
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// SignOut удаляет сессию по токену. Идемпотентен: отсутствие сессии не ошибка.
func (s *AuthService) SignOut(sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	return s.sessionRepo.DeleteByToken(sessionToken)
}

// VerifyEmail потребляет токен подтверждения email.
// Проверка и установка email_verified атомарны на уровне репозитория.
func (s *AuthService) VerifyEmail(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", apperrors.ErrValidation)
	}
	ok, err := s.userRepo.ConsumeEmailVerificationToken(token, time.Now())
	if err != nil {
		return fmt.Errorf("failed to consume verification token: %w", err)
	}
	if !ok {
		return ErrInvalidOrExpiredToken
	}
	return nil
}

// GenerateOTP выдает новый 6-значный код, перезаписывая ожидающий.
// Выдача сбрасывает счетчик попыток и блокировку OTP. Возвращает код
// для доставки внешним каналом; ошибка доставки не откатывает выдачу.
func (s *AuthService) GenerateOTP(userID uint) (string, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", err
	}

	code, err := s.issuer.OTPCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	if err := s.userRepo.IssueOTP(user.ID, code, time.Now().Add(s.policy.OTPTTL)); err != nil {
		return "", err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.emailService.SendOTPCode(ctx, user.Email, code); err != nil {
			log.Printf("[AuthService] Ошибка отправки OTP для ID=%d: %v", user.ID, err)
		}
	}()

	return code, nil
}

// VerifyOTP проверяет код. Совпадение потребляет код ровно один раз;
// повторная проверка того же кода вернет ErrOtpExpired. Пятая подряд
// неудачная попытка блокирует OTP и очищает ожидающий код.
func (s *AuthService) VerifyOTP(userID uint, candidate string) error {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return fmt.Errorf("%w: otp code is required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	locked, remaining, err := s.ledger.EvaluateOtpLock(user)
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("%w: locked for %d more minute(s)", ErrOtpLocked, minutesCeil(remaining))
	}

	if !user.HasLiveOtp(time.Now()) {
		return ErrOtpExpired
	}

	ok, err := s.userRepo.ConsumeOTP(user.ID, candidate, time.Now())
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	if ok {
		return nil
	}

	// Неверный код: инкремент и, при достижении порога, блокировка.
	// Остаток попыток считается от значения счетчика после инкремента,
	// а не от снимка аккаунта в памяти: параллельные неудачи его устаревают.
	attempts, err := s.ledger.RecordFailedOtp(user.ID)
	if err != nil {
		log.Printf("[AuthService] Ошибка записи неудачной попытки OTP для ID=%d: %v", user.ID, err)
		attempts = user.OtpAttempts + 1
	}
	attemptsLeft := s.ledger.OtpThreshold() - attempts
	if attemptsLeft <= 0 {
		return fmt.Errorf("%w: too many attempts, locked for %d minute(s)",
			ErrOtpLocked, minutesCeil(s.ledger.OtpLockWindow()))
	}
	return fmt.Errorf("%w: %d attempt(s) remaining", ErrOtpIncorrect, attemptsLeft)
}

// RequestPasswordReset выдает токен сброса пароля (10 мин), если аккаунт
// существует. Для несуществующего email возвращает ErrNotFound — обработчик
// обязан проглотить его и ответить тем же успехом, что и для существующего.
func (s *AuthService) RequestPasswordReset(email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return err
	}

	// Cooldown между повторными запросами для одного email
	if s.cacheRepo != nil {
		set, err := s.cacheRepo.SetNX("pwreset:cooldown:"+email, 1, s.resetRequestCooldown)
		if err != nil {
			log.Printf("[AuthService] Ошибка проверки cooldown сброса для %s: %v", email, err)
		} else if !set {
			log.Printf("[AuthService] Повторный запрос сброса для %s проигнорирован (cooldown)", email)
			return nil
		}
	}

	token, err := s.issuer.Token()
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}
	expires := time.Now().Add(s.policy.ResetTokenTTL)
	if err := s.userRepo.SetPasswordResetToken(user.ID, token, expires); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		link := s.resetPasswordURL + token
		key := fmt.Sprintf("pwreset:%d:%s", user.ID, token[:8])
		if err := s.emailService.SendPasswordResetEmail(ctx, user.Email, link, key); err != nil {
			log.Printf("[AuthService] Ошибка отправки письма сброса для ID=%d: %v", user.ID, err)
		}
	}()

	return nil
}

// ResetPassword потребляет токен сброса и перезаписывает пароль.
// Политика сложности пароля та же, что при регистрации. Успешный сброс
// снимает блокировку входа: владение токеном — подтверждение владения аккаунтом.
func (s *AuthService) ResetPassword(token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", apperrors.ErrValidation)
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.userRepo.ClaimPasswordResetToken(token, time.Now())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to claim reset token: %w", err)
	}

	if err := s.credRepo.UpdatePasswordHash(user.ID, entity.ProviderPassword, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	log.Printf("[AuthService] Пароль аккаунта ID=%d сброшен по токену", user.ID)
	return nil
}

// UserProfile содержит публичные данные аккаунта и его роли
type UserProfile struct {
	*entity.PublicUser
	Roles []entity.Role `json:"roles,omitempty"`
}

// GetUserProfile возвращает профиль аккаунта с ролями
func (s *AuthService) GetUserProfile(userID uint) (*UserProfile, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	profile := &UserProfile{PublicUser: user.Public()}
	if s.roleRepo != nil {
		roles, err := s.roleRepo.GetRolesForUser(userID)
		if err != nil {
			log.Printf("[AuthService] Ошибка получения ролей для ID=%d: %v", userID, err)
		} else {
			profile.Roles = roles
		}
	}
	return profile, nil
}

func (s *AuthService) sendVerificationEmailAsync(user *entity.User, token string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		link := s.verifyMailURL + token
		key := fmt.Sprintf("verify:%d:%s", user.ID, token[:8])
		if err := s.emailService.SendVerificationEmail(ctx, user.Email, link, key); err != nil {
			log.Printf("[AuthService] Ошибка отправки письма подтверждения для ID=%d: %v", user.ID, err)
		}
	}()
}

// normalizeEmail приводит email к канонической форме
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validatePassword проверяет политику пароля: длина не менее 8 и наличие
// заглавной, строчной буквы, цифры и спецсимвола
func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrWeakPassword)
	}
	if len(password) > 128 {
		return fmt.Errorf("%w: password must be at most 128 characters", ErrWeakPassword)
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return fmt.Errorf("%w: password must contain upper, lower, digit and special characters", ErrWeakPassword)
	}
	return nil
}

// minutesCeil округляет длительность вверх до целых минут
func minutesCeil(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
