// dto.go — JSON-представления доменных моделей для HTTP API.
package handlers

import (
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
)

// emailPtr возвращает email для JSON или nil для пустой строки.
func emailPtr(s string) *openapi_types.Email {
	if s == "" {
		return nil
	}
	e := openapi_types.Email(s)
	return &e
}

// --- Запросы ---

type profileUpdatesRequest struct {
	Name  *string              `json:"name,omitempty"`
	Email *openapi_types.Email `json:"email,omitempty"`
	Phone *string              `json:"phone,omitempty"`
}

func (u *profileUpdatesRequest) toModel() model.ProfileUpdates {
	if u == nil {
		return model.ProfileUpdates{}
	}
	upd := model.ProfileUpdates{Name: u.Name, Phone: u.Phone}
	if u.Email != nil {
		e := string(*u.Email)
		upd.Email = &e
	}
	return upd
}

type createProfileRequest struct {
	Name                string  `json:"name,omitempty"`
	Phone               *string `json:"phone,omitempty"`
	MemberApplicationID *string `json:"member_application_id,omitempty"`
}

type createInvitationRequest struct {
	Email    openapi_types.Email `json:"email"`
	Name     string              `json:"name,omitempty"`
	Note     string              `json:"note,omitempty"`
	TTLHours *int                `json:"ttl_hours,omitempty"`
}

type acceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"` //nolint:gosec // G117: пароль передаётся только в IdP
	Name     string `json:"name,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type decisionRequest struct {
	Reason  string                 `json:"reason,omitempty"`
	Updates *profileUpdatesRequest `json:"updates,omitempty"`
}

type membershipApplicationRequest struct {
	Name         string              `json:"name"`
	Email        openapi_types.Email `json:"email"`
	Phone        string              `json:"phone,omitempty"`
	BusinessName string              `json:"business_name,omitempty"`
	BusinessType string              `json:"business_type,omitempty"`
	Message      string              `json:"message,omitempty"`
}

type adminApplicationRequest struct {
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
	profileUpdatesRequest
}

// --- Ответы ---

type profileResponse struct {
	UID                 string               `json:"uid"`
	Role                string               `json:"role"`
	Status              string               `json:"status"`
	Email               *openapi_types.Email `json:"email,omitempty"`
	Name                string               `json:"name,omitempty"`
	Phone               *string              `json:"phone,omitempty"`
	MemberApplicationID *string              `json:"member_application_id,omitempty"`
	ApprovedAt          *time.Time           `json:"approved_at,omitempty"`
	ApprovedBy          *string              `json:"approved_by,omitempty"`
	RejectedAt          *time.Time           `json:"rejected_at,omitempty"`
	RejectedBy          *string              `json:"rejected_by,omitempty"`
	RejectionReason     *string              `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// toProfileResponse возвращает nil для отсутствующего профиля.
func toProfileResponse(p *model.UserProfile) *profileResponse {
	if p == nil {
		return nil
	}
	return &profileResponse{
		UID:                 p.UID,
		Role:                p.Role,
		Status:              p.Status,
		Email:               emailPtr(p.Email),
		Name:                p.Name,
		Phone:               p.Phone,
		MemberApplicationID: p.MemberApplicationID,
		ApprovedAt:          p.ApprovedAt,
		ApprovedBy:          p.ApprovedBy,
		RejectedAt:          p.RejectedAt,
		RejectedBy:          p.RejectedBy,
		RejectionReason:     p.RejectionReason,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

type meResponse struct {
	UID           string               `json:"uid"`
	Username      string               `json:"username,omitempty"`
	Email         *openapi_types.Email `json:"email,omitempty"`
	Name          string               `json:"name,omitempty"`
	Groups        []string             `json:"groups,omitempty"`
	IdpRole       string               `json:"idp_role,omitempty"`
	EffectiveRole string               `json:"effective_role,omitempty"`
	Profile       *profileResponse     `json:"profile"`
}

type invitationResponse struct {
	ID                 string               `json:"id"`
	Email              *openapi_types.Email `json:"email,omitempty"`
	InvitedBy          string               `json:"invited_by"`
	InvitedByName      string               `json:"invited_by_name,omitempty"`
	InviteeName        string               `json:"invitee_name,omitempty"`
	Note               string               `json:"note,omitempty"`
	Status             string               `json:"status"`
	ExpiresAt          time.Time            `json:"expires_at"`
	CreatedAt          time.Time            `json:"created_at"`
	AcceptedAt         *time.Time           `json:"accepted_at,omitempty"`
	AcceptedBy         *string              `json:"accepted_by,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	CancelledBy        *string              `json:"cancelled_by,omitempty"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
	// Token заполняется только в ответе на создание
	Token string `json:"token,omitempty"`
}

func toInvitationResponse(inv *model.AdminInvitation) invitationResponse {
	return invitationResponse{
		ID:                 inv.ID,
		Email:              emailPtr(inv.Email),
		InvitedBy:          inv.InvitedBy,
		InvitedByName:      inv.InvitedByName,
		InviteeName:        inv.InviteeName,
		Note:               inv.Note,
		Status:             inv.Status,
		ExpiresAt:          inv.ExpiresAt,
		CreatedAt:          inv.CreatedAt,
		AcceptedAt:         inv.AcceptedAt,
		AcceptedBy:         inv.AcceptedBy,
		CancelledAt:        inv.CancelledAt,
		CancelledBy:        inv.CancelledBy,
		CancellationReason: inv.CancellationReason,
	}
}

func toInvitationList(list []*model.AdminInvitation) []invitationResponse {
	out := make([]invitationResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvitationResponse(inv))
	}
	return out
}

// publicInvitationResponse — приглашение для страницы принятия (без аудита).
type publicInvitationResponse struct {
	Email         *openapi_types.Email `json:"email,omitempty"`
	InviteeName   string               `json:"invitee_name,omitempty"`
	InvitedByName string               `json:"invited_by_name,omitempty"`
	Note          string               `json:"note,omitempty"`
	Status        string               `json:"status"`
	ExpiresAt     time.Time            `json:"expires_at"`
	Expired       bool                 `json:"expired"`
}

type acceptInvitationResponse struct {
	Invitation invitationResponse `json:"invitation"`
	Profile    *profileResponse   `json:"profile"`
}

type applicationResponse struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	Email            *openapi_types.Email `json:"email,omitempty"`
	Phone            string               `json:"phone,omitempty"`
	BusinessName     string               `json:"business_name,omitempty"`
	BusinessType     string               `json:"business_type,omitempty"`
	Message          string               `json:"message,omitempty"`
	Status           string               `json:"status"`
	UserID           *string              `json:"user_id,omitempty"`
	AccountCreated   bool                 `json:"account_created"`
	AccountCreatedAt *time.Time           `json:"account_created_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

func toApplicationResponse(a *model.MembershipApplication) *applicationResponse {
	if a == nil {
		return nil
	}
	return &applicationResponse{
		ID:               a.ID,
		Name:             a.Name,
		Email:            emailPtr(a.Email),
		Phone:            a.Phone,
		BusinessName:     a.BusinessName,
		BusinessType:     a.BusinessType,
		Message:          a.Message,
		Status:           a.Status,
		UserID:           a.UserID,
		AccountCreated:   a.AccountCreated,
		AccountCreatedAt: a.AccountCreatedAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type pendingMemberResponse struct {
	Profile     *profileResponse     `json:"profile"`
	Application *applicationResponse `json:"application,omitempty"`
}

func toPendingMembers(list []*model.PendingMember) []pendingMemberResponse {
	out := make([]pendingMemberResponse, 0, len(list))
	for _, m := range list {
		out = append(out, pendingMemberResponse{
			Profile:     toProfileResponse(m.Profile),
			Application: toApplicationResponse(m.Application),
		})
	}
	return out
}

type adminApplicationResponse struct {
	ID           string               `json:"id"`
	UID          string               `json:"uid"`
	Email        *openapi_types.Email `json:"email,omitempty"`
	Name         string               `json:"name,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	Status       string               `json:"status"`
	ApprovedBy   *string              `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time           `json:"approved_at,omitempty"`
	DeniedBy     *string              `json:"denied_by,omitempty"`
	DeniedAt     *time.Time           `json:"denied_at,omitempty"`
	DenialReason *string              `json:"denial_reason,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

func toAdminApplicationResponse(a *model.AdminApplication) adminApplicationResponse {
	return adminApplicationResponse{
		ID:           a.ID,
		UID:          a.UID,
		Email:        emailPtr(a.Email),
		Name:         a.Name,
		Reason:       a.Reason,
		Status:       a.Status,
		ApprovedBy:   a.ApprovedBy,
		ApprovedAt:   a.ApprovedAt,
		DeniedBy:     a.DeniedBy,
		DeniedAt:     a.DeniedAt,
		DenialReason: a.DenialReason,
		CreatedAt:    a.CreatedAt,
	}
}

type approvedAdminResponse struct {
	Email      *openapi_types.Email `json:"email,omitempty"`
	Name       string               `json:"name,omitempty"`
	ApprovedBy string               `json:"approved_by"`
	ApprovedAt time.Time            `json:"approved_at"`
	Status     string               `json:"status"`
	RevokedAt  *time.Time           `json:"revoked_at,omitempty"`
	RevokedBy  *string              `json:"revoked_by,omitempty"`
}

type userResponse struct {
	ID            string               `json:"id"`
	Username      string               `json:"username"`
	Email         *openapi_types.Email `json:"email,omitempty"`
	FirstName     string               `json:"first_name,omitempty"`
	LastName      string               `json:"last_name,omitempty"`
	Enabled       bool                 `json:"enabled"`
	CreatedAt     *time.Time           `json:"created_at,omitempty"`
	Groups        []string             `json:"groups,omitempty"`
	IdpRole       string               `json:"idp_role,omitempty"`
	EffectiveRole string               `json:"effective_role,omitempty"`
	Profile       *profileResponse     `json:"profile"`
}

func toUserResponse(u *model.UserView) userResponse {
	resp := userResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         emailPtr(u.Email),
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Enabled:       u.Enabled,
		Groups:        u.Groups,
		IdpRole:       u.IdpRole,
		EffectiveRole: u.EffectiveRole,
		Profile:       toProfileResponse(u.Profile),
	}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		resp.CreatedAt = &created
	}
	return resp
}

type idpStatusResponse struct {
	Connected    bool    `json:"connected"`
	Realm        string  `json:"realm"`
	RealmEnabled bool    `json:"realm_enabled"`
	KeycloakURL  *string `json:"keycloak_url,omitempty"`
	Error        *string `json:"error,omitempty"`
}

// displayName — имя из запроса или, если оно пустое, из claims.
func displayName(requested, fallback string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	return fallback
}
