// Пакет lock — короткие именованные блокировки с TTL.
// Используются для сериализации принятия одного приглашения
// несколькими экземплярами сервиса.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyLocked — ключ уже заблокирован другим владельцем.
var ErrAlreadyLocked = errors.New("блокировка уже захвачена")

// UnlockFunc освобождает захваченную блокировку.
type UnlockFunc func(ctx context.Context) error

// Locker — захват блокировки по ключу на время ttl.
// Если ключ занят — ErrAlreadyLocked, ожидания нет.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// LocalLocker — блокировки в памяти процесса.
// Применяется, когда Redis не настроен (один экземпляр сервиса).
type LocalLocker struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]localEntry
}

type localEntry struct {
	owner     string
	expiresAt time.Time
}

// NewLocalLocker создаёт блокировщик в памяти.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		now:   time.Now,
		locks: make(map[string]localEntry),
	}
}

// Acquire захватывает ключ. Просроченная блокировка считается свободной.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.locks[key]; ok && now.Before(e.expiresAt) {
		return nil, ErrAlreadyLocked
	}

	owner := uuid.NewString()
	l.locks[key] = localEntry{owner: owner, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Снимаем только свою блокировку: после истечения TTL ключ мог перейти другому
		if e, ok := l.locks[key]; ok && e.owner == owner {
			delete(l.locks, key)
		}
		return nil
	}, nil
}
