package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/acbfrsa/member-module/internal/api/middleware"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/service"
)

var errNotStubbed = errors.New("не реализовано в тесте")

type stubProfiles struct {
	profiles map[string]*model.UserProfile
	created  *service.ProfileInput
	createFn func(uid string, in service.ProfileInput) (*model.UserProfile, error)
	updated  []string
}

func (s *stubProfiles) CreateUserProfile(_ context.Context, uid string, in service.ProfileInput) (*model.UserProfile, error) {
	s.created = &in
	if s.createFn != nil {
		return s.createFn(uid, in)
	}
	return &model.UserProfile{UID: uid, Role: "member", Status: "pending", Email: in.Email, Name: in.Name}, nil
}

func (s *stubProfiles) GetUserProfile(_ context.Context, uid string) (*model.UserProfile, error) {
	return s.profiles[uid], nil
}

func (s *stubProfiles) SubscribeToUserProfile(context.Context, string) (*service.Subscription[*model.UserProfile], error) {
	return nil, errNotStubbed
}

func (s *stubProfiles) UpdateUserRole(
	_ context.Context, uid, role string, upd model.ProfileUpdates, _ string,
) (*model.UserProfile, error) {
	s.updated = append(s.updated, uid+"="+role)
	p := &model.UserProfile{UID: uid, Role: role, Status: "approved"}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	return p, nil
}

type stubInvitations struct {
	byToken   *model.AdminInvitation
	acceptErr error
	createIn  *service.InvitationInput
	cancelErr error

	// cancelEmail — email отменённого приглашения (пусто — у записи нет email)
	cancelEmail string
}

func (s *stubInvitations) CreateAdminInvitation(
	_ context.Context, inviter model.Identity, in service.InvitationInput,
) (*model.AdminInvitation, error) {
	s.createIn = &in
	return &model.AdminInvitation{
		ID: "inv-1", Email: in.Email, InvitedBy: inviter.UID, Token: "abc123",
		Status: model.InvitationPending,
	}, nil
}

func (s *stubInvitations) GetInvitationByToken(context.Context, string) (*model.AdminInvitation, error) {
	return s.byToken, nil
}

func (s *stubInvitations) AcceptInvitation(_ context.Context, in service.AcceptInput) (*service.AcceptResult, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	return &service.AcceptResult{
		Invitation: &model.AdminInvitation{ID: "inv-1", Email: "new-admin@x.test", Status: model.InvitationAccepted},
		Profile:    &model.UserProfile{UID: "new-admin", Role: "admin", Status: "approved"},
	}, nil
}

func (s *stubInvitations) CancelInvitation(_ context.Context, _ model.Identity, id, reason string) (*model.AdminInvitation, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &model.AdminInvitation{ID: id, Email: s.cancelEmail, Status: model.InvitationCancelled, CancellationReason: &reason}, nil
}

func (s *stubInvitations) ListInvitations(context.Context) ([]*model.AdminInvitation, error) {
	return nil, nil
}

func (s *stubInvitations) GetPendingInvitations(context.Context) ([]*model.AdminInvitation, error) {
	return nil, nil
}

func (s *stubInvitations) SubscribePendingInvitations(context.Context) (*service.Subscription[[]*model.AdminInvitation], error) {
	return nil, errNotStubbed
}

type stubMembers struct {
	approveOpts *service.ApprovalOptions
	rejectOpts  *service.ApprovalOptions
	listErr     error
}

func (s *stubMembers) GetPendingMembers(context.Context) ([]*model.PendingMember, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return []*model.PendingMember{{Profile: &model.UserProfile{UID: "u-1", Role: "member", Status: "pending"}}}, nil
}

func (s *stubMembers) SubscribePendingMembers(context.Context) (*service.Subscription[[]*model.PendingMember], error) {
	return nil, errNotStubbed
}

func (s *stubMembers) ApproveMember(_ context.Context, id string, opts service.ApprovalOptions) (*model.UserProfile, error) {
	if id == "ghost" {
		return nil, service.ErrNotFound
	}
	s.approveOpts = &opts
	return &model.UserProfile{UID: id, Role: "member", Status: "approved", ApprovedBy: &opts.ActorUID}, nil
}

func (s *stubMembers) RejectMember(_ context.Context, id, reason string, opts service.ApprovalOptions) (*model.UserProfile, error) {
	s.rejectOpts = &opts
	return &model.UserProfile{UID: id, Status: "rejected", RejectionReason: &reason, RejectedBy: &opts.ActorUID}, nil
}

func (s *stubMembers) SubmitApplication(_ context.Context, in service.ApplicationInput) (*model.MembershipApplication, error) {
	return &model.MembershipApplication{ID: "app-1", Name: in.Name, Email: in.Email, Status: "pending"}, nil
}

func (s *stubMembers) ListApplications(_ context.Context, status string) ([]*model.MembershipApplication, error) {
	if status == "bogus" {
		return nil, service.ErrValidation
	}
	return nil, nil
}

type stubAdminApps struct {
	removed string
}

func (s *stubAdminApps) ApplyForAdminAccess(_ context.Context, caller model.Identity, name, reason string) (*model.AdminApplication, error) {
	return &model.AdminApplication{ID: "aa-1", UID: caller.UID, Email: caller.Email, Name: name, Reason: reason, Status: "pending"}, nil
}

func (s *stubAdminApps) ApproveAdminApplication(context.Context, model.Identity, string) (*model.AdminApplication, error) {
	return nil, service.ErrForbidden
}

func (s *stubAdminApps) DenyAdminApplication(context.Context, model.Identity, string, string) (*model.AdminApplication, error) {
	return nil, service.ErrForbidden
}

func (s *stubAdminApps) RemoveAdmin(_ context.Context, _ model.Identity, email string) error {
	s.removed = email
	return nil
}

func (s *stubAdminApps) ListAdminApplications(context.Context, model.Identity, string) ([]*model.AdminApplication, error) {
	return nil, nil
}

func (s *stubAdminApps) ListApprovedAdmins(context.Context, model.Identity) ([]*model.ApprovedAdminRecord, error) {
	return []*model.ApprovedAdminRecord{{Email: "a@x.test", Status: model.AdminRecordApproved}}, nil
}

type stubUsers struct{}

func (stubUsers) GetUser(_ context.Context, id string) (*model.UserView, error) {
	if id == "missing" {
		return nil, service.ErrNotFound
	}
	if id == "kc-down" {
		return nil, service.ErrIDPUnavailable
	}
	return &model.UserView{ID: id, Username: "thabo", Email: "thabo@x.test", EffectiveRole: "member"}, nil
}

type stubIDP struct{}

func (stubIDP) GetStatus(context.Context) *service.IDPStatus {
	return &service.IDPStatus{Connected: true, Realm: "acbfrsa", RealmEnabled: true, KeycloakURL: "https://kc.test"}
}

// testHandler собирает APIHandler на заглушках.
type testHandler struct {
	*APIHandler
	profiles    *stubProfiles
	invitations *stubInvitations
	members     *stubMembers
	adminApps   *stubAdminApps
}

func newTestHandler() *testHandler {
	th := &testHandler{
		profiles:    &stubProfiles{profiles: map[string]*model.UserProfile{}},
		invitations: &stubInvitations{},
		members:     &stubMembers{},
		adminApps:   &stubAdminApps{},
	}
	th.APIHandler = NewAPIHandler(
		NewHealthHandler(nil),
		th.profiles, th.invitations, th.members, th.adminApps,
		stubUsers{}, stubIDP{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return th
}

// serve выполняет запрос через chi-маршрут pattern (для URL-параметров).
func serve(method, pattern string, h http.HandlerFunc, target, body string, claims *middleware.AuthClaims) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if claims != nil {
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func adminClaims() *middleware.AuthClaims {
	return &middleware.AuthClaims{
		Subject: "admin-1", Email: "admin@acbfrsa.test", PreferredUsername: "admin",
		IdpRole: "admin", EffectiveRole: "admin",
	}
}

func superAdminClaims() *middleware.AuthClaims {
	return &middleware.AuthClaims{
		Subject: "owner-1", Email: "owner@acbfrsa.test", PreferredUsername: "owner",
		IdpRole: "super_admin", EffectiveRole: "super_admin",
	}
}
