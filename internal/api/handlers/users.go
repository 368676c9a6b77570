// users.go — обработчики /api/v1/users: просмотр пользователя и смена роли.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/acbfrsa/member-module/internal/api/errors"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/rbac"
	"github.com/bigkaa/acbfrsa/member-module/internal/service"
)

// GetUser — GET /api/v1/users/{id}.
// Доступ: admin.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "get_user")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// UpdateUserRole — PUT /api/v1/users/{id}/role.
// Доступ: admin. Вызывающий должен быть строго старше и текущей, и новой роли:
// admin управляет только member, super_admin — member и admin.
func (h *APIHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req updateRoleRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	newRole, ok := rbac.NormalizeRole(req.Role)
	if !ok {
		apierrors.Validation.Write(w, service.ErrInvalidRole.Error())
		return
	}

	uid := chi.URLParam(r, "id")
	if uid == claims.Subject {
		apierrors.Forbidden.Write(w, "Нельзя изменить собственную роль")
		return
	}

	current, err := h.profiles.GetUserProfile(r.Context(), uid)
	if err != nil {
		h.writeServiceError(w, r, err, "update_user_role")
		return
	}
	if current == nil {
		apierrors.NotFound.Write(w, "Профиль пользователя не найден")
		return
	}

	if !rbac.CanManageRole(claims.EffectiveRole, current.Role) || !rbac.CanManageRole(claims.EffectiveRole, newRole) {
		apierrors.Forbidden.Write(w, "Недостаточно прав для управления этой ролью")
		return
	}

	updated, err := h.profiles.UpdateUserRole(r.Context(), uid, newRole, req.profileUpdatesRequest.toModel(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, r, err, "update_user_role")
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(updated))
}
