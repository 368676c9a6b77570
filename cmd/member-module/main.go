// Точка входа Member Module — членство ACBF RSA и приглашения администраторов.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует Keycloak, Redis (блокировки) и RabbitMQ (письма), создаёт
// сервисный слой и API handlers, запускает topologymetrics и
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/acbfrsa/member-module/internal/api/handlers"
	"github.com/bigkaa/acbfrsa/member-module/internal/api/middleware"
	"github.com/bigkaa/acbfrsa/member-module/internal/api/openapi"
	"github.com/bigkaa/acbfrsa/member-module/internal/config"
	"github.com/bigkaa/acbfrsa/member-module/internal/database"
	"github.com/bigkaa/acbfrsa/member-module/internal/keycloak"
	"github.com/bigkaa/acbfrsa/member-module/internal/lock"
	"github.com/bigkaa/acbfrsa/member-module/internal/notify"
	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
	"github.com/bigkaa/acbfrsa/member-module/internal/server"
	"github.com/bigkaa/acbfrsa/member-module/internal/service"
)

func main() {
	// 0. Локальная разработка: переменные из .env (в кластере файла нет)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Не удалось прочитать .env", slog.String("error", err.Error()))
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Member Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if cfg.SuperAdminEmail == "" {
		logger.Warn("MM_SUPER_ADMIN_EMAIL не задан, легаси-заявки администраторов рассматривать некому")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент с кастомным CA (для Keycloak Admin API)
	var httpClientCA *http.Client
	if cfg.CACertPath != "" {
		httpClientCA, err = buildHTTPClientWithCA(cfg.CACertPath)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата", slog.String("path", cfg.CACertPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.CACertPath))
	}

	// 6. Keycloak Admin API клиент
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClientCA, // nil — стандартный пул CA
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 7. Блокировки принятия приглашений: Redis или локальные (одна реплика)
	var locker lock.Locker = lock.NewLocalLocker()
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = lock.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("Redis недоступен, используются локальные блокировки",
				slog.String("error", err.Error()),
			)
		} else {
			defer redisClient.Close()
			locker = lock.NewRedisLocker(redisClient, "member-module:lock:")
			logger.Info("Распределённые блокировки через Redis", slog.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Warn("MM_REDIS_ADDR не задан, блокировки действуют только внутри процесса")
	}

	// 8. Очередь писем: RabbitMQ или только лог
	var publisher notify.Publisher = notify.NewLogPublisher(logger)
	var amqpPublisher *notify.AMQPPublisher
	if cfg.AMQPURL != "" {
		amqpPublisher, err = notify.NewAMQPPublisher(cfg.AMQPURL, cfg.EmailQueue, logger)
		if err != nil {
			logger.Warn("RabbitMQ недоступен, письма только логируются",
				slog.String("error", err.Error()),
			)
		} else {
			defer amqpPublisher.Close()
			publisher = amqpPublisher
		}
	}

	// 9. Repositories
	profileRepo := repository.NewUserProfileRepository(pool)
	applicationRepo := repository.NewMembershipApplicationRepository(pool)
	invitationRepo := repository.NewAdminInvitationRepository(pool)
	approvedAdminRepo := repository.NewApprovedAdminRepository(pool)
	adminApplicationRepo := repository.NewAdminApplicationRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	feed := repository.NewPgListener(pool, logger)

	// 10. Services
	roleCache := service.NewRoleCache(cfg.RoleCacheSize, cfg.RoleCacheTTL)

	profilesSvc := service.NewProfileService(
		profileRepo, applicationRepo, approvedAdminRepo, auditRepo,
		feed, roleCache,
		logger,
	)
	invitationsSvc := service.NewInvitationService(
		invitationRepo, approvedAdminRepo, auditRepo,
		profilesSvc, kcClient, locker, publisher, feed,
		service.InvitationConfig{
			DefaultTTL:        cfg.InvitationTTL,
			MinPasswordLength: cfg.MinPasswordLength,
			LockTTL:           cfg.AcceptLockTTL,
			PublicBaseURL:     cfg.PublicBaseURL,
		},
		logger,
	)
	membersSvc := service.NewMemberService(
		profileRepo, applicationRepo, auditRepo,
		roleCache, publisher, feed,
		cfg.EnrichConcurrency,
		logger,
	)
	adminAppsSvc := service.NewAdminApplicationService(
		adminApplicationRepo, approvedAdminRepo, profileRepo, auditRepo,
		roleCache, cfg.SuperAdminEmail,
		logger,
	)
	usersSvc := service.NewUserService(
		kcClient, profilesSvc,
		cfg.RoleAdminGroups, cfg.RoleSuperAdminGroups,
		logger,
	)
	idpSvc := service.NewIDPService(kcClient, cfg.KeycloakURL, cfg.KeycloakRealm, logger)

	// 11. Readiness checkers
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.KeycloakReadinessTimeout)
	if err != nil {
		logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	checks := map[string]handlers.ReadinessChecker{
		"postgresql": database.NewReadinessChecker(pool, cfg.DBReadinessTimeout),
		"keycloak":   kcChecker,
	}
	if redisClient != nil {
		checks["redis"] = lock.NewReadinessChecker(redisClient, 2*time.Second)
	}
	if amqpPublisher != nil {
		checks["rabbitmq"] = amqpPublisher
	}

	// 12. API handler
	apiHandler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(checks),
		profilesSvc,
		invitationsSvc,
		membersSvc,
		adminAppsSvc,
		usersSvc,
		idpSvc,
		logger,
	)

	// 13. JWT middleware: итоговая роль = max(Keycloak, профиль, допуск)
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.CACertPath,
		cfg.JWTIssuer,
		profilesSvc,
		cfg.RoleAdminGroups,
		cfg.RoleSuperAdminGroups,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 14. Валидация запросов по встроенной OpenAPI спецификации
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI спецификации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validate, err := middleware.RequestValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:             "member-module",
		Group:                 cfg.DephealthGroup,
		DB:                    pgDB,
		PgConnURL:             cfg.DatabaseURL(),
		KeycloakJWKSURL:       cfg.JWTJWKSURL,
		KeycloakTLSSkipVerify: cfg.CACertPath == "",
		CheckInterval:         cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 16. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth, validate)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 17. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Member Module остановлен")
}

// buildHTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func buildHTTPClientWithCA(caCertPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}
