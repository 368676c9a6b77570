// me.go — обработчики /api/v1/me: текущий пользователь и его профиль.
package handlers

import (
	"net/http"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/service"
)

// GetMe — GET /api/v1/me.
// Данные из JWT claims, итоговая роль и профиль (null, если профиля нет).
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	profile, err := h.profiles.GetUserProfile(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, r, err, "get_me")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UID:           claims.Subject,
		Username:      claims.PreferredUsername,
		Email:         emailPtr(claims.Email),
		Name:          claims.Identity().Name,
		Groups:        claims.Groups,
		IdpRole:       claims.IdpRole,
		EffectiveRole: claims.EffectiveRole,
		Profile:       toProfileResponse(profile),
	})
}

// CreateMyProfile — POST /api/v1/me/profile.
// Создаёт профиль участника (member, pending) для текущего пользователя.
// Email берётся из JWT, роль и статус из запроса не принимаются.
func (h *APIHandler) CreateMyProfile(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req createProfileRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	profile, err := h.profiles.CreateUserProfile(r.Context(), claims.Subject, service.ProfileInput{
		Email:               claims.Email,
		Name:                displayName(req.Name, claims.Identity().Name),
		Phone:               req.Phone,
		MemberApplicationID: req.MemberApplicationID,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "create_profile")
		return
	}

	writeJSON(w, http.StatusCreated, toProfileResponse(profile))
}

// MyProfileEvents — GET /api/v1/me/events (SSE).
// Событие "profile" с текущим профилем при подключении и после каждого изменения.
func (h *APIHandler) MyProfileEvents(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	sub, err := h.profiles.SubscribeToUserProfile(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, r, err, "subscribe_profile")
		return
	}
	defer sub.Close()

	streamEvents(w, r, h.logger, h.closing, "profile", sub.Updates(), func(p *model.UserProfile) any {
		return toProfileResponse(p)
	})
}
