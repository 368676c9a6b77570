// members.go — обработчики очереди участников и заявок на членство.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/acbfrsa/member-module/internal/api/errors"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/rbac"
	"github.com/bigkaa/acbfrsa/member-module/internal/service"
)

// PendingMembers — GET /api/v1/members/pending.
// Доступ: admin.
func (h *APIHandler) PendingMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.members.GetPendingMembers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "pending_members")
		return
	}
	writeJSON(w, http.StatusOK, toPendingMembers(list))
}

// MemberEvents — GET /api/v1/members/events (SSE).
// Доступ: admin. Событие "members" с полной очередью на рассмотрении.
func (h *APIHandler) MemberEvents(w http.ResponseWriter, r *http.Request) {
	sub, err := h.members.SubscribePendingMembers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "subscribe_members")
		return
	}
	defer sub.Close()

	streamEvents(w, r, h.logger, h.closing, "members", sub.Updates(), func(list []*model.PendingMember) any {
		return toPendingMembers(list)
	})
}

// ApproveMember — POST /api/v1/members/{id}/approve.
// Доступ: admin. Необязательные updates сливаются в профиль.
func (h *APIHandler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req decisionRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	uid := chi.URLParam(r, "id")
	if !h.canDecideMember(w, r, claims.EffectiveRole, uid, "approve_member") {
		return
	}

	p, err := h.members.ApproveMember(r.Context(), uid, service.ApprovalOptions{
		ActorUID: claims.Subject,
		Updates:  req.Updates.toModel(),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "approve_member")
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// RejectMember — POST /api/v1/members/{id}/reject.
// Доступ: admin.
func (h *APIHandler) RejectMember(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req decisionRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	uid := chi.URLParam(r, "id")
	if !h.canDecideMember(w, r, claims.EffectiveRole, uid, "reject_member") {
		return
	}

	p, err := h.members.RejectMember(r.Context(), uid, req.Reason, service.ApprovalOptions{
		ActorUID: claims.Subject,
		Updates:  req.Updates.toModel(),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "reject_member")
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// canDecideMember проверяет, что роль профиля ниже роли администратора:
// одобрение выдаёт сохранённую роль, отклонение закрывает доступ, правило то же, что при смене роли.
// Отсутствующий профиль пропускается, 404 вернёт сервис.
func (h *APIHandler) canDecideMember(w http.ResponseWriter, r *http.Request, actorRole, uid, op string) bool {
	target, err := h.profiles.GetUserProfile(r.Context(), uid)
	if err != nil {
		h.writeServiceError(w, r, err, op)
		return false
	}
	if target != nil && !rbac.CanManageRole(actorRole, target.Role) {
		apierrors.Forbidden.Write(w, "Недостаточно прав для управления этой ролью")
		return false
	}
	return true
}

// SubmitMembershipApplication — POST /api/v1/membership-applications.
// Доступ: публично (форма на сайте).
func (h *APIHandler) SubmitMembershipApplication(w http.ResponseWriter, r *http.Request) {
	var req membershipApplicationRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	app, err := h.members.SubmitApplication(r.Context(), service.ApplicationInput{
		Name:         req.Name,
		Email:        string(req.Email),
		Phone:        req.Phone,
		BusinessName: req.BusinessName,
		BusinessType: req.BusinessType,
		Message:      req.Message,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "submit_application")
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// ListMembershipApplications — GET /api/v1/membership-applications?status=.
// Доступ: admin.
func (h *APIHandler) ListMembershipApplications(w http.ResponseWriter, r *http.Request) {
	list, err := h.members.ListApplications(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, r, err, "list_applications")
		return
	}

	out := make([]*applicationResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toApplicationResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}
