package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Каналы уведомлений об изменениях (совпадают с именами таблиц,
// см. триггер notify_row_change в миграциях). Payload — ключ строки.
const (
	ChannelUserProfiles           = "user_profiles"
	ChannelMembershipApplications = "membership_applications"
	ChannelAdminInvitations       = "admin_invitations"
)

// Notification — уведомление об изменении строки.
type Notification struct {
	Channel string
	Payload string
}

// ChangeFeed — источник уведомлений об изменениях.
type ChangeFeed interface {
	// Listen подписывается на каналы. Канал результата закрывается
	// после отмены ctx или при потере соединения.
	Listen(ctx context.Context, channels ...string) (<-chan Notification, error)
}

// PgListener — ChangeFeed поверх PostgreSQL LISTEN/NOTIFY.
// Каждая подписка удерживает отдельное соединение из пула
// и возвращает его после завершения.
type PgListener struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgListener создаёт источник уведомлений на базе пула.
func NewPgListener(pool *pgxpool.Pool, logger *slog.Logger) *PgListener {
	return &PgListener{
		pool:   pool,
		logger: logger.With(slog.String("component", "pg_listener")),
	}
}

// Listen захватывает соединение, выполняет LISTEN для каждого канала
// и запускает горутину чтения уведомлений.
func (l *PgListener) Listen(ctx context.Context, channels ...string) (<-chan Notification, error) {
	if len(channels) == 0 {
		return nil, errors.New("не указаны каналы уведомлений")
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения соединения для LISTEN: %w", err)
	}

	for _, ch := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			conn.Release()
			return nil, fmt.Errorf("ошибка LISTEN %s: %w", ch, err)
		}
	}

	out := make(chan Notification, 16)
	go l.loop(ctx, conn, out)

	l.logger.Debug("Подписка на уведомления открыта", slog.Any("channels", channels))
	return out, nil
}

func (l *PgListener) loop(ctx context.Context, conn *pgxpool.Conn, out chan<- Notification) {
	defer close(out)
	defer l.release(conn)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("Ошибка ожидания уведомления", slog.String("error", err.Error()))
			}
			return
		}

		select {
		case out <- Notification{Channel: n.Channel, Payload: n.Payload}:
		case <-ctx.Done():
			return
		}
	}
}

// release снимает подписки и возвращает соединение в пул.
// Если UNLISTEN не прошёл, соединение закрывается, чтобы пул его не переиспользовал.
func (l *PgListener) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		l.logger.Debug("UNLISTEN не выполнен, соединение закрывается",
			slog.String("error", err.Error()),
		)
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
	l.logger.Debug("Подписка на уведомления закрыта")
}
