package service

import (
	"testing"
	"time"

	"github.com/bigkaa/acbfrsa/member-module/internal/lock"
)

const testSuperAdminEmail = "owner@acbfrsa.test"

// testEnv — набор сервисов поверх in-memory зависимостей.
type testEnv struct {
	feed        *fakeFeed
	profileRepo *fakeProfiles
	appRepo     *fakeApplications
	invRepo     *fakeInvitations
	adminRepo   *fakeAdmins
	adminApps   *fakeAdminApplications
	auditRepo   *fakeAudit
	idp         *fakeIDP
	publisher   *fakePublisher
	locker      *lock.LocalLocker
	roles       *RoleCache

	profiles    *ProfileService
	invitations *InvitationService
	members     *MemberService
	adminSvc    *AdminApplicationService
	users       *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{feed: newFakeFeed()}
	e.profileRepo = newFakeProfiles(e.feed)
	e.appRepo = newFakeApplications(e.feed)
	e.invRepo = newFakeInvitations(e.feed)
	e.adminRepo = newFakeAdmins()
	e.adminApps = newFakeAdminApplications()
	e.auditRepo = &fakeAudit{}
	e.idp = newFakeIDP()
	e.publisher = &fakePublisher{}
	e.locker = lock.NewLocalLocker()
	e.roles = NewRoleCache(128, time.Minute)

	logger := testLogger()
	e.profiles = NewProfileService(e.profileRepo, e.appRepo, e.adminRepo, e.auditRepo, e.feed, e.roles, logger)
	e.invitations = NewInvitationService(e.invRepo, e.adminRepo, e.auditRepo, e.profiles, e.idp,
		e.locker, e.publisher, e.feed, InvitationConfig{
			DefaultTTL:        168 * time.Hour,
			MinPasswordLength: 6,
			LockTTL:           30 * time.Second,
			PublicBaseURL:     "https://acbfrsa.test",
		}, logger)
	e.members = NewMemberService(e.profileRepo, e.appRepo, e.auditRepo, e.roles, e.publisher, e.feed, 4, logger)
	e.adminSvc = NewAdminApplicationService(e.adminApps, e.adminRepo, e.profileRepo, e.auditRepo,
		e.roles, testSuperAdminEmail, logger)
	e.users = NewUserService(e.idp, e.profiles, []string{"acbf-admins"}, []string{"acbf-owners"}, logger)
	return e
}
