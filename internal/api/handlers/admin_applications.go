// admin_applications.go — легаси-заявки на права администратора и выданные допуски.
// Просмотр и решения доступны только владельцу (email super-admin из конфигурации),
// проверка выполняется в сервисном слое.
package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/acbfrsa/member-module/internal/api/errors"
)

// ApplyForAdmin — POST /api/v1/admin-applications.
// Доступ: любой аутентифицированный пользователь с email.
func (h *APIHandler) ApplyForAdmin(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req adminApplicationRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	app, err := h.adminApps.ApplyForAdminAccess(r.Context(), claims.Identity(), req.Name, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err, "apply_for_admin")
		return
	}
	writeJSON(w, http.StatusCreated, toAdminApplicationResponse(app))
}

// ListAdminApplications — GET /api/v1/admin-applications?status=.
func (h *APIHandler) ListAdminApplications(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	list, err := h.adminApps.ListAdminApplications(r.Context(), claims.Identity(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, r, err, "list_admin_applications")
		return
	}

	out := make([]adminApplicationResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAdminApplicationResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// ApproveAdminApplication — POST /api/v1/admin-applications/{id}/approve.
func (h *APIHandler) ApproveAdminApplication(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	app, err := h.adminApps.ApproveAdminApplication(r.Context(), claims.Identity(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "approve_admin_application")
		return
	}
	writeJSON(w, http.StatusOK, toAdminApplicationResponse(app))
}

// DenyAdminApplication — POST /api/v1/admin-applications/{id}/deny.
func (h *APIHandler) DenyAdminApplication(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req reasonRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	app, err := h.adminApps.DenyAdminApplication(r.Context(), claims.Identity(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err, "deny_admin_application")
		return
	}
	writeJSON(w, http.StatusOK, toAdminApplicationResponse(app))
}

// ListApprovedAdmins — GET /api/v1/approved-admins.
func (h *APIHandler) ListApprovedAdmins(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	list, err := h.adminApps.ListApprovedAdmins(r.Context(), claims.Identity())
	if err != nil {
		h.writeServiceError(w, r, err, "list_approved_admins")
		return
	}

	out := make([]approvedAdminResponse, 0, len(list))
	for _, rec := range list {
		out = append(out, approvedAdminResponse{
			Email:      emailPtr(rec.Email),
			Name:       rec.Name,
			ApprovedBy: rec.ApprovedBy,
			ApprovedAt: rec.ApprovedAt,
			Status:     rec.Status,
			RevokedAt:  rec.RevokedAt,
			RevokedBy:  rec.RevokedBy,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RemoveAdmin — DELETE /api/v1/approved-admins/{email}.
// Отзывает допуск; роль профиля не меняется.
func (h *APIHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		apierrors.Validation.Write(w, "Некорректный email в пути")
		return
	}

	if err := h.adminApps.RemoveAdmin(r.Context(), claims.Identity(), email); err != nil {
		h.writeServiceError(w, r, err, "remove_admin")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
