package service

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики бизнес-операций.
var (
	invitationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_invitations_total",
		Help: "Количество событий жизненного цикла приглашений администраторов.",
	}, []string{"event"})

	memberDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_member_decisions_total",
		Help: "Количество решений по заявкам на членство.",
	}, []string{"decision"})

	bestEffortFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_best_effort_failures_total",
		Help: "Количество неудачных вторичных записей, не прерывающих основную операцию.",
	}, []string{"operation"})

	activeSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mm_active_subscriptions",
		Help: "Количество открытых live-подписок.",
	}, []string{"kind"})
)

// bestEffort логирует и считает сбой вторичной записи. Ошибка дальше не передаётся.
func bestEffort(logger *slog.Logger, operation string, err error, attrs ...any) {
	if err == nil {
		return
	}
	bestEffortFailuresTotal.WithLabelValues(operation).Inc()
	args := append([]any{slog.String("operation", operation), slog.String("error", err.Error())}, attrs...)
	logger.Warn("Вторичная запись не выполнена", args...)
}
