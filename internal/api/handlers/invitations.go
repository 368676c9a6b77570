// invitations.go — обработчики /api/v1/invitations.
// Публичные: просмотр по токену и принятие. Остальные — для admin.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/acbfrsa/member-module/internal/api/errors"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/token"
	"github.com/bigkaa/acbfrsa/member-module/internal/service"
)

// GetInvitationByToken — GET /api/v1/invitations/{token}.
// Доступ: публично. Неизвестный или некорректный токен — 404.
func (h *APIHandler) GetInvitationByToken(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitations.GetInvitationByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, r, err, "get_invitation_by_token")
		return
	}
	if inv == nil {
		apierrors.NotFound.Write(w, service.ErrInvitationNotFound.Error())
		return
	}

	expired, _ := token.IsExpired(inv.ExpiresAt, time.Now())
	writeJSON(w, http.StatusOK, publicInvitationResponse{
		Email:         emailPtr(inv.Email),
		InviteeName:   inv.InviteeName,
		InvitedByName: inv.InvitedByName,
		Note:          inv.Note,
		Status:        inv.Status,
		ExpiresAt:     inv.ExpiresAt,
		Expired:       expired,
	})
}

// AcceptInvitation — POST /api/v1/invitations/accept.
// Доступ: публично (токен — единственный ключ).
func (h *APIHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.invitations.AcceptInvitation(r.Context(), service.AcceptInput{
		Token:    req.Token,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "accept_invitation")
		return
	}

	writeJSON(w, http.StatusOK, acceptInvitationResponse{
		Invitation: toInvitationResponse(result.Invitation),
		Profile:    toProfileResponse(result.Profile),
	})
}

// ListInvitations — GET /api/v1/invitations.
// Доступ: admin.
func (h *APIHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	list, err := h.invitations.ListInvitations(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "list_invitations")
		return
	}
	writeJSON(w, http.StatusOK, toInvitationList(list))
}

// CreateInvitation — POST /api/v1/invitations.
// Доступ: admin. Ответ содержит токен, чтобы ссылку можно было передать вручную.
func (h *APIHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req createInvitationRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	in := service.InvitationInput{
		Email: string(req.Email),
		Name:  req.Name,
		Note:  req.Note,
	}
	if req.TTLHours != nil {
		in.TTL = time.Duration(*req.TTLHours) * time.Hour
	}

	inv, err := h.invitations.CreateAdminInvitation(r.Context(), claims.Identity(), in)
	if err != nil {
		h.writeServiceError(w, r, err, "create_invitation")
		return
	}

	resp := toInvitationResponse(inv)
	resp.Token = inv.Token
	writeJSON(w, http.StatusCreated, resp)
}

// PendingInvitations — GET /api/v1/invitations/pending.
// Доступ: admin. Только приглашения, которые ещё можно принять.
func (h *APIHandler) PendingInvitations(w http.ResponseWriter, r *http.Request) {
	list, err := h.invitations.GetPendingInvitations(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "pending_invitations")
		return
	}
	writeJSON(w, http.StatusOK, toInvitationList(list))
}

// InvitationEvents — GET /api/v1/invitations/events (SSE).
// Доступ: admin. Событие "invitations" со списком ожидающих приглашений.
func (h *APIHandler) InvitationEvents(w http.ResponseWriter, r *http.Request) {
	sub, err := h.invitations.SubscribePendingInvitations(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "subscribe_invitations")
		return
	}
	defer sub.Close()

	streamEvents(w, r, h.logger, h.closing, "invitations", sub.Updates(), func(list []*model.AdminInvitation) any {
		return toInvitationList(list)
	})
}

// CancelInvitation — POST /api/v1/invitations/{id}/cancel.
// Доступ: admin.
func (h *APIHandler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req reasonRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	inv, err := h.invitations.CancelInvitation(r.Context(), claims.Identity(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err, "cancel_invitation")
		return
	}
	writeJSON(w, http.StatusOK, toInvitationResponse(inv))
}
