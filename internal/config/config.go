// Пакет config — загрузка и валидация конфигурации Member Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Member Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Публичный URL сайта (для ссылок в письмах)
	PublicBaseURL string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Размер пула. Каждая live-подписка (SSE) держит своё соединение под LISTEN
	DBMaxConns int
	// Число попыток подключения при старте (PostgreSQL может подниматься позже сервиса)
	DBConnectAttempts int
	// Таймаут ping в readiness-проверке
	DBReadinessTimeout time.Duration

	// --- Keycloak ---

	// URL Keycloak (например, https://auth.acbfrsa.co.za)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для доступа к Keycloak Admin API
	KeycloakClientID string
	// Client Secret для доступа к Keycloak Admin API
	KeycloakClientSecret string
	// Путь к CA-сертификату для TLS-соединений с Keycloak (опционально)
	CACertPath string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Допустимое отклонение часов при проверке JWT
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут проверки готовности Keycloak
	KeycloakReadinessTimeout time.Duration

	// --- Роли ---

	// Группы Keycloak, дающие роль admin (через запятую)
	RoleAdminGroups []string
	// Группы Keycloak, дающие роль super_admin (через запятую)
	RoleSuperAdminGroups []string
	// Email единственного супер-администратора (легаси-заявки)
	SuperAdminEmail string
	// Размер и TTL кэша вычисленных ролей
	RoleCacheSize int
	RoleCacheTTL  time.Duration

	// --- Приглашения ---

	// Срок действия приглашения по умолчанию
	InvitationTTL time.Duration
	// Минимальная длина пароля при принятии приглашения
	MinPasswordLength int
	// TTL блокировки принятия одного токена
	AcceptLockTTL time.Duration

	// --- Redis (блокировки, опционально) ---

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- RabbitMQ (почтовые задания, опционально) ---

	AMQPURL    string
	EmailQueue string

	// --- Мониторинг ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Группа в метриках topologymetrics
	DephealthGroup string
	// Максимум параллельных чтений заявок при обогащении списка
	EnrichConcurrency int

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// MM_PORT — порт HTTP-сервера (по умолчанию 8010)
	cfg.Port, err = getEnvInt("MM_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("MM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("MM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.PublicBaseURL = strings.TrimRight(getEnvDefault("MM_PUBLIC_BASE_URL", "https://acbfrsa.co.za"), "/")

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("MM_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("MM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("MM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("MM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("MM_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("MM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	if cfg.DBMaxConns, err = getEnvInt("MM_DB_MAX_CONNS", 20); err != nil {
		return nil, fmt.Errorf("MM_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 4 || cfg.DBMaxConns > 500 {
		return nil, fmt.Errorf("MM_DB_MAX_CONNS: значение %d вне допустимого диапазона 4-500", cfg.DBMaxConns)
	}
	if cfg.DBConnectAttempts, err = getEnvInt("MM_DB_CONNECT_ATTEMPTS", 5); err != nil {
		return nil, fmt.Errorf("MM_DB_CONNECT_ATTEMPTS: %w", err)
	}
	if cfg.DBConnectAttempts < 1 {
		return nil, fmt.Errorf("MM_DB_CONNECT_ATTEMPTS: должно быть не меньше 1")
	}
	if cfg.DBReadinessTimeout, err = getEnvDuration("MM_DB_READINESS_TIMEOUT", 3*time.Second); err != nil {
		return nil, fmt.Errorf("MM_DB_READINESS_TIMEOUT: %w", err)
	}

	// --- Keycloak ---

	if cfg.KeycloakURL, err = getEnvRequired("MM_KEYCLOAK_URL"); err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")
	cfg.KeycloakRealm = getEnvDefault("MM_KEYCLOAK_REALM", "acbfrsa")
	if cfg.KeycloakClientID, err = getEnvRequired("MM_KEYCLOAK_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.KeycloakClientSecret, err = getEnvRequired("MM_KEYCLOAK_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	cfg.CACertPath = getEnvDefault("MM_CA_CERT_PATH", "")

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("MM_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))
	cfg.JWTJWKSURL = getEnvDefault("MM_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	if cfg.JWTLeeway, err = getEnvDuration("MM_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("MM_JWT_LEEWAY: %w", err)
	}
	if cfg.JWKSClientTimeout, err = getEnvDuration("MM_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("MM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("MM_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("MM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.KeycloakReadinessTimeout, err = getEnvDuration("MM_KEYCLOAK_READINESS_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("MM_KEYCLOAK_READINESS_TIMEOUT: %w", err)
	}

	// --- Роли ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("MM_ROLE_ADMIN_GROUPS", "acbf-admins"))
	cfg.RoleSuperAdminGroups = parseCSV(getEnvDefault("MM_ROLE_SUPER_ADMIN_GROUPS", "acbf-owners"))

	cfg.SuperAdminEmail = strings.ToLower(strings.TrimSpace(getEnvDefault("MM_SUPER_ADMIN_EMAIL", "admin@acbfrsa.co.za")))
	if !strings.Contains(cfg.SuperAdminEmail, "@") {
		return nil, fmt.Errorf("MM_SUPER_ADMIN_EMAIL: некорректный email %q", cfg.SuperAdminEmail)
	}

	if cfg.RoleCacheSize, err = getEnvInt("MM_ROLE_CACHE_SIZE", 1024); err != nil {
		return nil, fmt.Errorf("MM_ROLE_CACHE_SIZE: %w", err)
	}
	if cfg.RoleCacheSize < 1 {
		return nil, fmt.Errorf("MM_ROLE_CACHE_SIZE: значение %d должно быть положительным", cfg.RoleCacheSize)
	}
	if cfg.RoleCacheTTL, err = getEnvDuration("MM_ROLE_CACHE_TTL", time.Minute); err != nil {
		return nil, fmt.Errorf("MM_ROLE_CACHE_TTL: %w", err)
	}

	// --- Приглашения ---

	if cfg.InvitationTTL, err = getEnvDuration("MM_INVITATION_TTL", 168*time.Hour); err != nil {
		return nil, fmt.Errorf("MM_INVITATION_TTL: %w", err)
	}
	if cfg.InvitationTTL <= 0 {
		return nil, fmt.Errorf("MM_INVITATION_TTL: значение %s должно быть положительным", cfg.InvitationTTL)
	}
	if cfg.MinPasswordLength, err = getEnvInt("MM_MIN_PASSWORD_LENGTH", 6); err != nil {
		return nil, fmt.Errorf("MM_MIN_PASSWORD_LENGTH: %w", err)
	}
	if cfg.MinPasswordLength < 6 {
		return nil, fmt.Errorf("MM_MIN_PASSWORD_LENGTH: значение %d меньше 6", cfg.MinPasswordLength)
	}
	if cfg.AcceptLockTTL, err = getEnvDuration("MM_ACCEPT_LOCK_TTL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("MM_ACCEPT_LOCK_TTL: %w", err)
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("MM_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("MM_REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getEnvInt("MM_REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("MM_REDIS_DB: %w", err)
	}

	// --- RabbitMQ ---

	cfg.AMQPURL = getEnvDefault("MM_AMQP_URL", "")
	cfg.EmailQueue = getEnvDefault("MM_EMAIL_QUEUE", "email_jobs")

	// --- Мониторинг ---

	if cfg.DephealthCheckInterval, err = getEnvDuration("MM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("MM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("MM_DEPHEALTH_GROUP", "acbfrsa")
	if cfg.EnrichConcurrency, err = getEnvInt("MM_ENRICH_CONCURRENCY", 8); err != nil {
		return nil, fmt.Errorf("MM_ENRICH_CONCURRENCY: %w", err)
	}
	if cfg.EnrichConcurrency < 1 || cfg.EnrichConcurrency > 64 {
		return nil, fmt.Errorf("MM_ENRICH_CONCURRENCY: значение %d вне допустимого диапазона 1-64", cfg.EnrichConcurrency)
	}

	// --- Graceful shutdown ---

	if cfg.ShutdownTimeout, err = getEnvDuration("MM_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("MM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.User(c.DBUser),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
