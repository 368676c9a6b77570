// Пакет notify — публикация почтовых заданий.
// Письма отправляет отдельный воркер, сервис только ставит задания в очередь.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Типы почтовых заданий.
const (
	// JobAdminInvitation — письмо со ссылкой на принятие приглашения.
	JobAdminInvitation = "admin_invitation"
	// JobMemberDecision — письмо о решении по заявке на членство.
	JobMemberDecision = "member_decision"
)

// EmailJob — задание на отправку письма.
type EmailJob struct {
	Type      string            `json:"type"`
	To        string            `json:"to"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Publisher ставит почтовое задание в очередь.
type Publisher interface {
	Publish(ctx context.Context, job EmailJob) error
}

// LogPublisher — Publisher без брокера: задания только логируются.
// Используется, если MM_AMQP_URL не задан.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher создаёт логирующий Publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With(slog.String("component", "email_log_publisher"))}
}

// Publish записывает задание в лог.
func (p *LogPublisher) Publish(_ context.Context, job EmailJob) error {
	p.logger.Info("Почтовое задание (брокер не настроен)",
		slog.String("type", job.Type),
		slog.String("to", job.To),
	)
	return nil
}
