package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/acbfrsa/member-module/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
// Возвращает конфиг и функцию для очистки.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("acbfrsa_test"),
		postgres.WithUsername("acbfrsa"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Создаём конфиг с минимальными значениями
	t.Setenv("MM_DB_HOST", host)
	t.Setenv("MM_DB_PORT", port.Port())
	t.Setenv("MM_DB_NAME", "acbfrsa_test")
	t.Setenv("MM_DB_USER", "acbfrsa")
	t.Setenv("MM_DB_PASSWORD", "test-password")
	t.Setenv("MM_DB_SSL_MODE", "disable")
	t.Setenv("MM_KEYCLOAK_URL", "http://localhost:8080")
	t.Setenv("MM_KEYCLOAK_CLIENT_ID", "test")
	t.Setenv("MM_KEYCLOAK_CLIENT_SECRET", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	return cfg
}

// TestConnect проверяет подключение к PostgreSQL через pgxpool.
func TestConnect(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	// Проверяем ping
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pool.Ping() вернул ошибку: %v", err)
	}
}

// TestMigrate проверяет применение миграций.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}

	// Повторное применение — должно быть без ошибки (ErrNoChange)
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	// Проверяем, что таблицы созданы
	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	tables := []string{
		"user_profiles",
		"membership_applications",
		"admin_invitations",
		"approved_admins",
		"admin_applications",
		"audit_events",
	}

	for _, table := range tables {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	// Проверяем триггер уведомлений на профилях
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("pool.Acquire() вернул ошибку: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN user_profiles"); err != nil {
		t.Fatalf("LISTEN вернул ошибку: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO user_profiles (uid, email, name) VALUES ('u-1', 'a@b.c', 'A')`); err != nil {
		t.Fatalf("INSERT вернул ошибку: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := conn.Conn().WaitForNotification(waitCtx)
	if err != nil {
		t.Fatalf("Уведомление не получено: %v", err)
	}
	if n.Channel != "user_profiles" || n.Payload != "u-1" {
		t.Errorf("Уведомление = %s/%s, ожидали user_profiles/u-1", n.Channel, n.Payload)
	}
}

// TestReadinessChecker проверяет ReadinessChecker.
func TestReadinessChecker(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	checker := NewReadinessChecker(pool, cfg.DBReadinessTimeout)

	// Проверяем готовность — должен вернуть "ok"
	status, msg := checker.CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() status = %q, message = %q; ожидали status = %q",
			status, msg, "ok")
	}
}

// flakyDB отвечает ошибкой на первые failures вызовов Ping.
type flakyDB struct {
	failures int
	calls    int
}

func (f *flakyDB) Ping(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shortRetries(t *testing.T) {
	t.Helper()
	first, maxDelay := firstRetryDelay, maxRetryDelay
	firstRetryDelay, maxRetryDelay = time.Millisecond, 2*time.Millisecond
	t.Cleanup(func() { firstRetryDelay, maxRetryDelay = first, maxDelay })
}

func TestWaitReady(t *testing.T) {
	shortRetries(t)

	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{"сразу доступна", 0, 3, false, 1},
		{"поднялась со второй попытки", 1, 3, false, 2},
		{"поднялась на последней попытке", 2, 3, false, 3},
		{"попытки исчерпаны", 5, 3, true, 3},
		{"одна попытка без повторов", 1, 1, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &flakyDB{failures: tt.failures}
			err := waitReady(context.Background(), db, tt.attempts, quietLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("waitReady() ошибка = %v, хотели ошибку: %v", err, tt.wantErr)
			}
			if db.calls != tt.wantCalls {
				t.Errorf("вызовов Ping = %d, хотели %d", db.calls, tt.wantCalls)
			}
		})
	}
}

func TestWaitReady_ContextCancelled(t *testing.T) {
	first := firstRetryDelay
	firstRetryDelay = time.Hour
	t.Cleanup(func() { firstRetryDelay = first })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitReady(ctx, &flakyDB{failures: 10}, 5, quietLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("хотели context.Canceled, получили %v", err)
	}
}

func TestReadinessChecker_Fail(t *testing.T) {
	checker := newReadinessChecker(&flakyDB{failures: 1}, 0)
	if checker.timeout != 3*time.Second {
		t.Errorf("таймаут по умолчанию = %v, ожидается 3s", checker.timeout)
	}

	if status, _ := checker.CheckReady(); status != "fail" {
		t.Errorf("status = %q, ожидается fail", status)
	}
	if status, _ := checker.CheckReady(); status != "ok" {
		t.Errorf("после восстановления status = %q, ожидается ok", status)
	}
}
