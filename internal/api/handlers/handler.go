// handler.go — основной обработчик HTTP API Member Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	apierrors "github.com/bigkaa/acbfrsa/member-module/internal/api/errors"
	"github.com/bigkaa/acbfrsa/member-module/internal/api/middleware"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/service"
)

// maxBodyBytes — предельный размер тела JSON-запроса.
const maxBodyBytes = 1 << 20

// Profiles — операции с профилями, используемые API.
type Profiles interface {
	CreateUserProfile(ctx context.Context, uid string, in service.ProfileInput) (*model.UserProfile, error)
	GetUserProfile(ctx context.Context, uid string) (*model.UserProfile, error)
	SubscribeToUserProfile(ctx context.Context, uid string) (*service.Subscription[*model.UserProfile], error)
	UpdateUserRole(ctx context.Context, uid, role string, upd model.ProfileUpdates, changedBy string) (*model.UserProfile, error)
}

// Invitations — операции с приглашениями администраторов.
type Invitations interface {
	CreateAdminInvitation(ctx context.Context, inviter model.Identity, in service.InvitationInput) (*model.AdminInvitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*model.AdminInvitation, error)
	AcceptInvitation(ctx context.Context, in service.AcceptInput) (*service.AcceptResult, error)
	CancelInvitation(ctx context.Context, actor model.Identity, id, reason string) (*model.AdminInvitation, error)
	ListInvitations(ctx context.Context) ([]*model.AdminInvitation, error)
	GetPendingInvitations(ctx context.Context) ([]*model.AdminInvitation, error)
	SubscribePendingInvitations(ctx context.Context) (*service.Subscription[[]*model.AdminInvitation], error)
}

// Members — очередь участников и заявки на членство.
type Members interface {
	GetPendingMembers(ctx context.Context) ([]*model.PendingMember, error)
	SubscribePendingMembers(ctx context.Context) (*service.Subscription[[]*model.PendingMember], error)
	ApproveMember(ctx context.Context, memberID string, opts service.ApprovalOptions) (*model.UserProfile, error)
	RejectMember(ctx context.Context, memberID, reason string, opts service.ApprovalOptions) (*model.UserProfile, error)
	SubmitApplication(ctx context.Context, in service.ApplicationInput) (*model.MembershipApplication, error)
	ListApplications(ctx context.Context, status string) ([]*model.MembershipApplication, error)
}

// AdminApplications — легаси-заявки на права администратора.
type AdminApplications interface {
	ApplyForAdminAccess(ctx context.Context, caller model.Identity, name, reason string) (*model.AdminApplication, error)
	ApproveAdminApplication(ctx context.Context, caller model.Identity, id string) (*model.AdminApplication, error)
	DenyAdminApplication(ctx context.Context, caller model.Identity, id, reason string) (*model.AdminApplication, error)
	RemoveAdmin(ctx context.Context, caller model.Identity, email string) error
	ListAdminApplications(ctx context.Context, caller model.Identity, status string) ([]*model.AdminApplication, error)
	ListApprovedAdmins(ctx context.Context, caller model.Identity) ([]*model.ApprovedAdminRecord, error)
}

// Users — пользователи Keycloak.
type Users interface {
	GetUser(ctx context.Context, id string) (*model.UserView, error)
}

// IDPStatus — статус Identity Provider.
type IDPStatus interface {
	GetStatus(ctx context.Context) *service.IDPStatus
}

// APIHandler — основной обработчик API Member Module.
type APIHandler struct {
	health      *HealthHandler
	profiles    Profiles
	invitations Invitations
	members     Members
	adminApps   AdminApplications
	users       Users
	idp         IDPStatus
	logger      *slog.Logger

	// closing закрывается при остановке сервера и завершает SSE-потоки
	closing   chan struct{}
	closeOnce sync.Once
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	profiles Profiles,
	invitations Invitations,
	members Members,
	adminApps AdminApplications,
	users Users,
	idp IDPStatus,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		profiles:    profiles,
		invitations: invitations,
		members:     members,
		adminApps:   adminApps,
		users:       users,
		idp:         idp,
		logger:      logger.With(slog.String("component", "api_handler")),
		closing:     make(chan struct{}),
	}
}

// CloseStreams завершает все открытые SSE-потоки. Повторный вызов безопасен.
func (h *APIHandler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// HealthLive — liveness-проверка (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness-проверка (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
// Тело сериализуется до отправки заголовков: при ошибке клиент получает 500, а не пустой 200.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("Ошибка сериализации JSON-ответа", slog.String("error", err.Error()))
		apierrors.Internal.Write(w, "Ошибка сериализации ответа")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// decodeJSON читает тело запроса в dst. Пустое тело допустимо, если optional.
// При ошибке ответ уже записан и возвращается false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		apierrors.Validation.Write(w, "Некорректный JSON в теле запроса: "+err.Error())
		return false
	}
	return true
}

// requireClaims возвращает claims аутентифицированного пользователя.
// Если claims нет — пишет 401 и возвращает nil.
func requireClaims(w http.ResponseWriter, r *http.Request) *middleware.AuthClaims {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || claims.Subject == "" {
		apierrors.Unauthorized.Write(w, "Отсутствуют claims в контексте")
		return nil
	}
	return claims
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и скрываются за 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidRole):
		apierrors.Validation.Write(w, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthorized.Write(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden.Write(w, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrInvitationNotFound):
		apierrors.NotFound.Write(w, err.Error())
	case errors.Is(err, service.ErrInvitationExpired):
		apierrors.InvitationExpired.Write(w, err.Error())
	case errors.Is(err, service.ErrInvitationUsed),
		errors.Is(err, service.ErrInvitationNotPending),
		errors.Is(err, service.ErrInvitationBusy),
		errors.Is(err, service.ErrProfileExists),
		errors.Is(err, service.ErrApplicationPending),
		errors.Is(err, service.ErrAlreadyAdmin):
		apierrors.Conflict.Write(w, err.Error())
	case errors.Is(err, service.ErrIDPUnavailable):
		apierrors.IDPUnavailable.Write(w, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.Internal.Write(w, "Внутренняя ошибка сервера")
	}
}
