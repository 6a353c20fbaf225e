package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Email    EmailConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MaxRetries: Максимальное количество попыток переподключения. По умолчанию 0 (без ретраев).
	MaxRetries int `mapstructure:"max_retries"`
}

// AuthConfig содержит все настраиваемые параметры политики безопасности аккаунтов.
// Все значения должны приходить из окружения/файла, жестко зашитых порогов нет.
type AuthConfig struct {
	// Сессии
	SessionDurationDays   int `mapstructure:"session_duration_days"`
	RenewalThresholdHours int `mapstructure:"renewal_threshold_hours"`
	SweepIntervalMinutes  int `mapstructure:"sweep_interval_minutes"`

	// Блокировка входа
	LoginMaxAttempts    int `mapstructure:"login_max_attempts"`
	LoginLockoutMinutes int `mapstructure:"login_lockout_minutes"`

	// OTP
	OTPMaxAttempts    int `mapstructure:"otp_max_attempts"`
	OTPLockoutMinutes int `mapstructure:"otp_lockout_minutes"`
	OTPTTLMinutes     int `mapstructure:"otp_ttl_minutes"`

	// Одноразовые токены
	ResetTokenTTLMinutes      int `mapstructure:"reset_token_ttl_minutes"`
	VerificationTokenTTLHours int `mapstructure:"verification_token_ttl_hours"`
}

// EmailConfig содержит настройки исходящей почты (Resend)
type EmailConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	ResendAPIKey     string `mapstructure:"resend_api_key"`
	From             string `mapstructure:"from"`
	VerifyMailURL    string `mapstructure:"verify_mail_url"`
	ResetPasswordURL string `mapstructure:"reset_password_url"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// SessionDuration возвращает время жизни сессии
func (a *AuthConfig) SessionDuration() time.Duration {
	return time.Duration(a.SessionDurationDays) * 24 * time.Hour
}

// RenewalThreshold возвращает порог скользящего продления сессии
func (a *AuthConfig) RenewalThreshold() time.Duration {
	return time.Duration(a.RenewalThresholdHours) * time.Hour
}

// LoginLockoutWindow возвращает окно блокировки входа
func (a *AuthConfig) LoginLockoutWindow() time.Duration {
	return time.Duration(a.LoginLockoutMinutes) * time.Minute
}

// OTPLockoutWindow возвращает окно блокировки OTP
func (a *AuthConfig) OTPLockoutWindow() time.Duration {
	return time.Duration(a.OTPLockoutMinutes) * time.Minute
}

// OTPTTL возвращает время жизни OTP кода
func (a *AuthConfig) OTPTTL() time.Duration {
	return time.Duration(a.OTPTTLMinutes) * time.Minute
}

// ResetTokenTTL возвращает время жизни токена сброса пароля
func (a *AuthConfig) ResetTokenTTL() time.Duration {
	return time.Duration(a.ResetTokenTTLMinutes) * time.Minute
}

// VerificationTokenTTL возвращает время жизни токена подтверждения email
func (a *AuthConfig) VerificationTokenTTL() time.Duration {
	return time.Duration(a.VerificationTokenTTLHours) * time.Hour
}

// SweepInterval возвращает интервал фоновой очистки истекших сессий
func (a *AuthConfig) SweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalMinutes) * time.Minute
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// 1. Значения по умолчанию для политик безопасности
	vip.SetDefault("auth.session_duration_days", 7)
	vip.SetDefault("auth.renewal_threshold_hours", 24)
	vip.SetDefault("auth.sweep_interval_minutes", 60)
	vip.SetDefault("auth.login_max_attempts", 5)
	vip.SetDefault("auth.login_lockout_minutes", 30)
	vip.SetDefault("auth.otp_max_attempts", 5)
	vip.SetDefault("auth.otp_lockout_minutes", 30)
	vip.SetDefault("auth.otp_ttl_minutes", 5)
	vip.SetDefault("auth.reset_token_ttl_minutes", 10)
	vip.SetDefault("auth.verification_token_ttl_hours", 24)
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readtimeout", 10)
	vip.SetDefault("server.writetimeout", 10)

	// 2. Привязываем переменные окружения ЯВНО
	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Привязка для секции Redis
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")

	// Привязка для секции Auth
	vip.BindEnv("auth.session_duration_days", "SESSION_DURATION_DAYS")
	vip.BindEnv("auth.renewal_threshold_hours", "SESSION_RENEWAL_THRESHOLD_HOURS")
	vip.BindEnv("auth.sweep_interval_minutes", "SESSION_SWEEP_INTERVAL_MINUTES")
	vip.BindEnv("auth.login_max_attempts", "LOGIN_MAX_ATTEMPTS")
	vip.BindEnv("auth.login_lockout_minutes", "LOGIN_LOCKOUT_MINUTES")
	vip.BindEnv("auth.otp_max_attempts", "OTP_MAX_ATTEMPTS")
	vip.BindEnv("auth.otp_lockout_minutes", "OTP_LOCKOUT_MINUTES")
	vip.BindEnv("auth.otp_ttl_minutes", "OTP_TTL_MINUTES")
	vip.BindEnv("auth.reset_token_ttl_minutes", "RESET_TOKEN_TTL_MINUTES")
	vip.BindEnv("auth.verification_token_ttl_hours", "VERIFICATION_TOKEN_TTL_HOURS")

	// Привязка для секции Email
	vip.BindEnv("email.enabled", "EMAIL_ENABLED")
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")
	vip.BindEnv("email.verify_mail_url", "VERIFY_MAIL_URL")
	vip.BindEnv("email.reset_password_url", "RESET_PASSWORD_URL")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")

	// 3. Файл конфигурации (не страшно, если его нет, т.к. есть BindEnv)
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 4. Анмаршалим конфигурацию (Viper объединит значения из файла и env vars)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Логирование конфигурации (только вне release режима)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Session Duration Days: %d", cfg.Auth.SessionDurationDays)
		log.Printf("Renewal Threshold Hours: %d", cfg.Auth.RenewalThresholdHours)
		log.Printf("Login Max Attempts: %d", cfg.Auth.LoginMaxAttempts)
		log.Printf("OTP Max Attempts: %d", cfg.Auth.OTPMaxAttempts)
		log.Printf("Email Enabled: %t", cfg.Email.Enabled)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	// 6. Проверка обязательных параметров
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Auth.LoginMaxAttempts <= 0 || cfg.Auth.OTPMaxAttempts <= 0 {
		return nil, fmt.Errorf("login/otp attempt thresholds must be positive")
	}
	if cfg.Auth.SessionDurationDays <= 0 {
		return nil, fmt.Errorf("session duration must be positive")
	}
	if cfg.Email.Enabled {
		if cfg.Email.ResendAPIKey == "" || cfg.Email.From == "" {
			return nil, fmt.Errorf("email is enabled but RESEND_API_KEY or EMAIL_FROM is missing")
		}
	}

	return &cfg, nil
}
