package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript удаляет ключ, только если значение совпадает с владельцем.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// OpenRedis создаёт клиента Redis и проверяет подключение через PING.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("не задан адрес Redis")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}
	return c, nil
}

// RedisLocker — распределённые блокировки на SET NX PX.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker создаёт блокировщик. Ключи получают префикс prefix.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire захватывает ключ на ttl. Занятый ключ — ErrAlreadyLocked.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	fullKey := l.prefix + key
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка захвата блокировки: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyLocked
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, owner).Err(); err != nil {
			return fmt.Errorf("ошибка освобождения блокировки: %w", err)
		}
		return nil
	}, nil
}

// ReadinessChecker проверяет доступность Redis для /health/ready.
type ReadinessChecker struct {
	client  *redis.Client
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку Redis.
func NewReadinessChecker(client *redis.Client, timeout time.Duration) *ReadinessChecker {
	return &ReadinessChecker{client: client, timeout: timeout}
}

// CheckReady выполняет PING. Недоступность Redis — degraded: приём приглашений
// продолжает работать за счёт условного перевода статуса в БД.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return "degraded", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "Redis доступен"
}
