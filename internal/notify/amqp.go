package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher публикует задания в durable-очередь RabbitMQ
// через exchange по умолчанию (routing key = имя очереди).
type AMQPPublisher struct {
	conn   *amqp.Connection
	queue  string
	logger *slog.Logger

	// amqp.Channel не рассчитан на конкурентную публикацию
	mu  sync.Mutex
	chn *amqp.Channel
}

// NewAMQPPublisher подключается к брокеру, открывает канал и объявляет очередь.
func NewAMQPPublisher(url, queue string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
	}

	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ошибка открытия канала RabbitMQ: %w", err)
	}

	if _, err := chn.QueueDeclare(
		queue, // имя очереди
		true,  // durable
		false, // удалять при отсутствии потребителей
		false, // exclusive
		false, // no-wait
		nil,   // аргументы
	); err != nil {
		_ = chn.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("ошибка объявления очереди %s: %w", queue, err)
	}

	return &AMQPPublisher{
		conn:   conn,
		chn:    chn,
		queue:  queue,
		logger: logger.With(slog.String("component", "email_amqp_publisher")),
	}, nil
}

// Publish сериализует задание в JSON и публикует persistent-сообщение.
func (p *AMQPPublisher) Publish(ctx context.Context, job EmailJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("ошибка сериализации задания: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.chn.PublishWithContext(ctx,
		"",      // exchange по умолчанию
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    job.CreatedAt,
			Type:         job.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("ошибка публикации задания %s: %w", job.Type, err)
	}

	p.logger.Debug("Почтовое задание опубликовано",
		slog.String("type", job.Type),
		slog.String("queue", p.queue),
	)
	return nil
}

// CheckReady проверяет, что соединение с брокером открыто.
// Письма отправляются по принципу best-effort, поэтому закрытое соединение — degraded.
// Реализует handlers.ReadinessChecker.
func (p *AMQPPublisher) CheckReady() (string, string) {
	if p.conn.IsClosed() {
		return "degraded", "соединение с RabbitMQ закрыто"
	}
	return "ok", "соединение с RabbitMQ активно"
}

// Close закрывает канал и соединение.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.chn.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
