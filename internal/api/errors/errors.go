// Пакет errors — ошибки HTTP API Member Module.
// Тело любой ошибки: {"error": {"code": "...", "message": "..."}}.
package errors

import (
	"encoding/json"
	"net/http"
)

// Problem — класс ошибки API: HTTP-статус и машиночитаемый код из OpenAPI контракта.
type Problem struct {
	Status int
	Code   string
}

// Классы ошибок, которые возвращает API.
var (
	Validation   = Problem{http.StatusBadRequest, "VALIDATION_ERROR"}
	Unauthorized = Problem{http.StatusUnauthorized, "UNAUTHORIZED"}
	Forbidden    = Problem{http.StatusForbidden, "FORBIDDEN"}
	NotFound     = Problem{http.StatusNotFound, "NOT_FOUND"}
	// Conflict — состояние не допускает операцию (профиль существует, приглашение использовано)
	Conflict = Problem{http.StatusConflict, "CONFLICT"}
	// InvitationExpired — тот же 409, но клиенту нужен отдельный код для текста «ссылка устарела»
	InvitationExpired = Problem{http.StatusConflict, "INVITATION_EXPIRED"}
	IDPUnavailable    = Problem{http.StatusBadGateway, "IDP_UNAVAILABLE"}
	Internal          = Problem{http.StatusInternalServerError, "INTERNAL_ERROR"}
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write отправляет ошибку клиенту. Сериализация строковых полей не может завершиться ошибкой.
func (p Problem) Write(w http.ResponseWriter, message string) {
	body, _ := json.Marshal(errorBody{Error: errorDetail{Code: p.Code, Message: message}})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(p.Status)
	_, _ = w.Write(append(body, '\n'))
}
