// Пакет database — пул PostgreSQL (pgxpool), миграции схемы членства
// (golang-migrate, embedded SQL) и readiness-проверка.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/acbfrsa/member-module/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Пауза между попытками подключения растёт вдвое, но не выше maxRetryDelay.
var (
	firstRetryDelay = 500 * time.Millisecond
	maxRetryDelay   = 8 * time.Second
)

// Connect создаёт пул и дожидается PostgreSQL: до cfg.DBConnectAttempts
// попыток ping с экспоненциальной паузой.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns) //nolint:gosec // диапазон проверен в config.Load
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := waitReady(ctx, pool, cfg.DBConnectAttempts, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", cfg.DBMaxConns),
	)
	return pool, nil
}

// pinger — часть pgxpool.Pool, нужная для ожидания готовности.
type pinger interface {
	Ping(ctx context.Context) error
}

func waitReady(ctx context.Context, db pinger, attempts int, logger *slog.Logger) error {
	delay := firstRetryDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = db.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		logger.Warn("PostgreSQL недоступен, повтор",
			slog.Int("attempt", attempt),
			slog.Int("of", attempts),
			slog.Duration("retry_in", delay),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("ожидание PostgreSQL прервано: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
	return fmt.Errorf("ошибка подключения к PostgreSQL после %d попыток: %w", attempts, lastErr)
}

// Migrate применяет embedded-миграции через golang-migrate (драйвер pgx5).
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()
	m.Log = migrateLogger{logger: logger.With(slog.String("component", "migrate"))}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Схема БД актуальна",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// migrateLogger направляет сообщения golang-migrate в slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}

// ReadinessChecker — ping PostgreSQL для /health/ready.
type ReadinessChecker struct {
	db      pinger
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку готовности; timeout <= 0 — 3 секунды.
func NewReadinessChecker(pool *pgxpool.Pool, timeout time.Duration) *ReadinessChecker {
	return newReadinessChecker(pool, timeout)
}

func newReadinessChecker(db pinger, timeout time.Duration) *ReadinessChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ReadinessChecker{db: db, timeout: timeout}
}

// CheckReady возвращает "ok" или "fail" с описанием.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
