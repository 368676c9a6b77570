// events.go — доставка live-подписок клиенту через Server-Sent Events.
// Каждое событие содержит полное текущее состояние, а не разницу.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// sseHeartbeat — интервал комментариев-пингов, удерживающих соединение через прокси.
var sseHeartbeat = 25 * time.Second

// streamEvents пишет в ответ состояния из updates, пока клиент подключён,
// канал открыт и stop не закрыт. convert преобразует состояние в JSON-представление.
// Формат: event: <name>\ndata: {json}\n\n
func streamEvents[T any](
	w http.ResponseWriter,
	r *http.Request,
	logger *slog.Logger,
	stop <-chan struct{},
	event string,
	updates <-chan T,
	convert func(T) any,
) {
	// Настраиваем заголовки SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// ResponseController находит http.Flusher через Unwrap() обёрток middleware
	rc := http.NewResponseController(w)
	// WriteTimeout сервера не распространяется на долгоживущий поток
	_ = rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Error("SSE не поддерживается", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("SSE клиент отключён", slog.String("event", event))
			return
		case <-stop:
			fmt.Fprint(w, "event: end\ndata: {}\n\n")
			_ = rc.Flush()
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		case state, ok := <-updates:
			if !ok {
				// Подписка закрыта (потеря соединения с БД): клиент переподключится
				fmt.Fprint(w, "event: end\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			data, err := json.Marshal(convert(state))
			if err != nil {
				logger.Error("Ошибка сериализации SSE-события",
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}
