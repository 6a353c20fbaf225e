package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/config"
	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/handler"
	"github.com/yourusername/auth-api/internal/middleware"
	pgRepo "github.com/yourusername/auth-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/auth-api/internal/repository/redis"
	"github.com/yourusername/auth-api/internal/service"
	"github.com/yourusername/auth-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	credRepo := pgRepo.NewCredentialRepo(db)
	roleRepo := pgRepo.NewRoleRepo(db)

	sessionRepo, err := pgRepo.NewSessionRepo(db)
	if err != nil {
		log.Printf("Failed to initialize SessionRepo: %v", err)
		os.Exit(1)
	}

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Сидируем предопределенные роли
	if err := seedRoles(roleRepo); err != nil {
		log.Printf("Failed to seed roles: %v", err)
		os.Exit(1)
	}

	// Исходящая почта: Resend или noop, если отключена
	var emailService service.EmailService
	if cfg.Email.Enabled {
		resendService, emailErr := service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From)
		if emailErr != nil {
			log.Printf("Failed to initialize email service: %v", emailErr)
			os.Exit(1)
		}
		emailService = resendService
		log.Println("Email-сервис Resend инициализирован")
	} else {
		emailService = &service.NoopEmailService{}
		log.Println("Исходящая почта отключена, используется noop email-сервис")
	}

	// Инициализируем сервисы
	ledger, err := service.NewAttemptLedger(
		userRepo,
		cfg.Auth.LoginMaxAttempts,
		cfg.Auth.LoginLockoutWindow(),
		cfg.Auth.OTPMaxAttempts,
		cfg.Auth.OTPLockoutWindow(),
	)
	if err != nil {
		log.Printf("Failed to initialize AttemptLedger: %v", err)
		os.Exit(1)
	}

	authService, err := service.NewAuthService(
		userRepo, credRepo, sessionRepo, roleRepo, cacheRepo,
		ledger, emailService,
		service.AuthPolicy{
			SessionDuration:      cfg.Auth.SessionDuration(),
			OTPTTL:               cfg.Auth.OTPTTL(),
			ResetTokenTTL:        cfg.Auth.ResetTokenTTL(),
			VerificationTokenTTL: cfg.Auth.VerificationTokenTTL(),
		},
	)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}
	authService.SetEmailLinks(cfg.Email.VerifyMailURL, cfg.Email.ResetPasswordURL)

	sessionService, err := service.NewSessionService(
		sessionRepo, userRepo,
		cfg.Auth.SessionDuration(),
		cfg.Auth.RenewalThreshold(),
	)
	if err != nil {
		log.Printf("Failed to initialize SessionService: %v", err)
		os.Exit(1)
	}

	// Фоновая очистка истекших сессий
	stopSweeper := make(chan struct{})
	sessionService.StartSweeper(cfg.Auth.SweepInterval(), stopSweeper)

	isProduction := gin.Mode() == gin.ReleaseMode

	// Инициализируем обработчики и middleware
	authHandler := handler.NewAuthHandler(authService, sessionService, isProduction)
	userHandler := handler.NewUserHandler(authService)
	sessionMiddleware := middleware.NewSessionMiddleware(sessionService, roleRepo, isProduction)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Инициализируем роутер Gin
	router := gin.Default()

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	// (ClientIP участвует в rate limiting и аудите входов)
	if isProduction {
		// Production: не доверять прокси-заголовкам.
		// Если используется load balancer, замените nil на его IP
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		// Development: доверяем localhost
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS: credentials обязательны, сессия живет в куке
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(rateLimiter.Limit(middleware.DefaultAuthRateLimitConfig()))
		{
			// Строгий лимит на точки, принимающие пароль
			strict := rateLimiter.Limit(middleware.StrictAuthRateLimitConfig())
			authGroup.POST("/sign-up", strict, authHandler.SignUp)
			authGroup.POST("/sign-in", strict, authHandler.SignIn)
			authGroup.POST("/sign-out", authHandler.SignOut)

			authGroup.GET("/verify-email", authHandler.VerifyEmail)
			authGroup.POST("/password/reset-request", authHandler.RequestPasswordReset)
			authGroup.POST("/password/reset", strict, authHandler.ResetPassword)

			// Маршруты, требующие живой сессии
			authedAuth := authGroup.Group("/")
			authedAuth.Use(sessionMiddleware.RequireAuth())
			{
				authedAuth.GET("/session", authHandler.GetSession)
				authedAuth.POST("/otp/generate", authHandler.GenerateOTP)
				authedAuth.POST("/otp/verify", authHandler.VerifyOTP)
			}
		}

		// Аккаунты
		users := api.Group("/users")
		users.Use(sessionMiddleware.RequireAuth())
		{
			users.GET("/me", userHandler.GetMe)
		}

		// Администрирование
		admin := api.Group("/admin")
		admin.Use(sessionMiddleware.RequireAuth(), sessionMiddleware.RequireRole(entity.RoleAdmin))
		{
			admin.POST("/cleanup-sessions", authHandler.CleanupSessions)
		}
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// Ожидаем сигнал остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Останавливаем фоновые горутины
	close(stopSweeper)

	// Graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing redis client: %v", err)
	}

	log.Println("Server exited properly")
}

// seedRoles создает предопределенные роли или обновляет их permissions.
// Повторный запуск безопасен: Upsert по имени роли.
func seedRoles(roleRepo *pgRepo.RoleRepo) error {
	roles := []*entity.Role{
		{
			Name:        entity.RoleAdmin,
			Description: "Полный доступ к аккаунтам, сессиям и ролям",
			Permissions: entity.PermissionSet{
				"users":    {"read", "write", "delete"},
				"sessions": {"read", "delete"},
				"roles":    {"read", "write"},
			},
		},
		{
			Name:        entity.RoleUser,
			Description: "Роль по умолчанию для новых аккаунтов",
			Permissions: entity.PermissionSet{
				"users": {"read"},
			},
		},
	}

	for _, role := range roles {
		if err := roleRepo.Upsert(role); err != nil {
			return err
		}
	}
	log.Printf("Сидирование ролей завершено (%d ролей)", len(roles))
	return nil
}
