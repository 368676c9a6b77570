package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestLocalLocker_AcquireRelease(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "invite:abc", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() ошибка: %v", err)
	}

	// Повторный захват — занято
	if _, err := l.Acquire(ctx, "invite:abc", time.Minute); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("повторный Acquire() = %v, хотели ErrAlreadyLocked", err)
	}

	// Другой ключ — свободен
	unlockOther, err := l.Acquire(ctx, "invite:def", time.Minute)
	if err != nil {
		t.Fatalf("Acquire(другой ключ) ошибка: %v", err)
	}
	_ = unlockOther(ctx)

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock() ошибка: %v", err)
	}
	if _, err := l.Acquire(ctx, "invite:abc", time.Minute); err != nil {
		t.Errorf("Acquire() после освобождения: %v", err)
	}
}

func TestLocalLocker_Expiry(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	staleUnlock, err := l.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("Acquire() ошибка: %v", err)
	}

	// После истечения TTL ключ свободен
	now = now.Add(2 * time.Second)
	if _, err := l.Acquire(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Acquire() после TTL: %v", err)
	}

	// Старый владелец не снимает чужую блокировку
	_ = staleUnlock(ctx)
	if _, err := l.Acquire(ctx, "k", time.Minute); !errors.Is(err, ErrAlreadyLocked) {
		t.Errorf("Acquire() = %v, хотели ErrAlreadyLocked", err)
	}
}

// setupRedis запускает Redis в контейнере (только с TEST_INTEGRATION).
func setupRedis(t *testing.T) string {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
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
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}
	return host + ":" + port.Port()
}

func TestRedisLocker(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	client, err := OpenRedis(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("OpenRedis() ошибка: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client, "mm:lock:")

	unlock, err := l.Acquire(ctx, "invite:abc", 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire() ошибка: %v", err)
	}
	if _, err := l.Acquire(ctx, "invite:abc", 5*time.Second); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("повторный Acquire() = %v, хотели ErrAlreadyLocked", err)
	}

	ttl, err := client.PTTL(ctx, "mm:lock:invite:abc").Result()
	if err != nil || ttl <= 0 {
		t.Errorf("PTTL = %v, %v; ожидался положительный TTL", ttl, err)
	}

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock() ошибка: %v", err)
	}
	if _, err := l.Acquire(ctx, "invite:abc", 5*time.Second); err != nil {
		t.Errorf("Acquire() после освобождения: %v", err)
	}
}

func TestOpenRedis_EmptyAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), "", "", 0); err == nil {
		t.Error("OpenRedis(\"\") не вернул ошибку")
	}
}
