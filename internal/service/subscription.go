package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
)

// Subscription — live-представление: текущее состояние сразу после открытия
// и полное новое состояние после каждого изменения в БД.
// Подписку обязательно закрывать через Close: она удерживает соединение с БД.
type Subscription[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Updates возвращает канал состояний. Канал закрывается после Close,
// отмены родительского контекста или потери соединения.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Close завершает подписку и ждёт освобождения соединения.
// Повторный вызов безопасен.
func (s *Subscription[T]) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// subscribe открывает подписку на каналы feed.
// load читает текущее состояние; match отбрасывает нерелевантные уведомления (nil — все).
// Ошибка первичного чтения возвращается вызывающему, последующие — логируются.
func subscribe[T any](
	parent context.Context,
	feed repository.ChangeFeed,
	kind string,
	channels []string,
	match func(repository.Notification) bool,
	load func(ctx context.Context) (T, error),
	logger *slog.Logger,
) (*Subscription[T], error) {
	ctx, cancel := context.WithCancel(parent)

	notes, err := feed.Listen(ctx, channels...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("открытие подписки %s: %w", kind, err)
	}

	initial, err := load(ctx)
	if err != nil {
		cancel()
		for range notes {
		}
		return nil, fmt.Errorf("начальное состояние подписки %s: %w", kind, err)
	}

	s := &Subscription[T]{
		updates: make(chan T),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	activeSubscriptions.WithLabelValues(kind).Inc()

	go func() {
		defer close(s.done)
		defer close(s.updates)
		defer activeSubscriptions.WithLabelValues(kind).Dec()
		// Ждём, пока источник освободит соединение и закроет канал
		defer func() {
			cancel()
			for range notes {
			}
		}()

		if !send(ctx, s.updates, initial) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notes:
				if !ok {
					logger.Warn("Источник уведомлений закрыт", slog.String("kind", kind))
					return
				}
				if match != nil && !match(n) {
					continue
				}
				state, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("Ошибка обновления подписки",
						slog.String("kind", kind),
						slog.String("error", err.Error()),
					)
					continue
				}
				if !send(ctx, s.updates, state) {
					return
				}
			}
		}
	}()

	return s, nil
}

func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
