// fakes_test.go — in-memory реализации репозиториев и внешних зависимостей для unit-тестов.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/keycloak"
	"github.com/bigkaa/acbfrsa/member-module/internal/notify"
	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// errBadUUID имитирует отказ PostgreSQL (22P02) на не-UUID в колонке id:
// это не ErrNotFound, а «сырая» ошибка драйвера.
var errBadUUID = errors.New(`ERROR: invalid input syntax for type uuid (SQLSTATE 22P02)`)

func checkUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errBadUUID
	}
	return nil
}

// --- user_profiles ---

type fakeProfiles struct {
	mu      sync.Mutex
	items   map[string]*model.UserProfile
	getErr  error
	feed    *fakeFeed
	listErr error
}

func newFakeProfiles(feed *fakeFeed) *fakeProfiles {
	return &fakeProfiles{items: map[string]*model.UserProfile{}, feed: feed}
}

func (f *fakeProfiles) Create(_ context.Context, p *model.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[p.UID]; ok {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	f.items[p.UID] = &cp
	f.feed.notify(repository.ChannelUserProfiles, p.UID)
	return nil
}

func (f *fakeProfiles) GetByUID(_ context.Context, uid string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.items[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) update(uid string, upd model.ProfileUpdates, fn func(p *model.UserProfile)) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Email != nil {
		p.Email = *upd.Email
	}
	if upd.Phone != nil {
		p.Phone = upd.Phone
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	f.feed.notify(repository.ChannelUserProfiles, uid)
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) UpdateRole(_ context.Context, uid, role string, upd model.ProfileUpdates) (*model.UserProfile, error) {
	return f.update(uid, upd, func(p *model.UserProfile) { p.Role = role })
}

func (f *fakeProfiles) Approve(_ context.Context, uid, by string, upd model.ProfileUpdates) (*model.UserProfile, error) {
	return f.update(uid, upd, func(p *model.UserProfile) {
		now := time.Now().UTC()
		p.Status = model.StatusApproved
		p.ApprovedAt, p.ApprovedBy = &now, &by
	})
}

func (f *fakeProfiles) Reject(_ context.Context, uid, by, reason string, upd model.ProfileUpdates) (*model.UserProfile, error) {
	return f.update(uid, upd, func(p *model.UserProfile) {
		now := time.Now().UTC()
		p.Status = model.StatusRejected
		p.RejectedAt, p.RejectedBy = &now, &by
		if reason != "" {
			p.RejectionReason = &reason
		}
	})
}

func (f *fakeProfiles) ListByRoleStatus(_ context.Context, role, status string) ([]*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var result []*model.UserProfile
	for _, p := range f.items {
		if p.Role == role && p.Status == status {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UID < result[j].UID })
	return result, nil
}

// --- membership_applications ---

type fakeApplications struct {
	mu        sync.Mutex
	items     map[string]*model.MembershipApplication
	failIDs   map[string]bool
	updateErr error
	feed      *fakeFeed
}

func newFakeApplications(feed *fakeFeed) *fakeApplications {
	return &fakeApplications{
		items:   map[string]*model.MembershipApplication{},
		failIDs: map[string]bool{},
		feed:    feed,
	}
}

func (f *fakeApplications) Create(_ context.Context, a *model.MembershipApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[a.ID]; ok {
		return repository.ErrConflict
	}
	cp := *a
	f.items[a.ID] = &cp
	f.feed.notify(repository.ChannelMembershipApplications, a.ID)
	return nil
}

func (f *fakeApplications) GetByID(_ context.Context, id string) (*model.MembershipApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return nil, errors.New("чтение заявки недоступно")
	}
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeApplications) List(_ context.Context, status *string) ([]*model.MembershipApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.MembershipApplication
	for _, a := range f.items {
		if status == nil || a.Status == *status {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeApplications) UpdateStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Status = status
	f.feed.notify(repository.ChannelMembershipApplications, id)
	return nil
}

func (f *fakeApplications) LinkUser(_ context.Context, id, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	a.UserID, a.AccountCreated, a.AccountCreatedAt = &uid, true, &now
	return nil
}

// --- admin_invitations ---

type fakeInvitations struct {
	mu    sync.Mutex
	items map[string]*model.AdminInvitation
	order []string
	feed  *fakeFeed
}

func newFakeInvitations(feed *fakeFeed) *fakeInvitations {
	return &fakeInvitations{items: map[string]*model.AdminInvitation{}, feed: feed}
}

func (f *fakeInvitations) Create(_ context.Context, inv *model.AdminInvitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.Token == inv.Token {
			return repository.ErrConflict
		}
	}
	inv.CreatedAt = time.Now().UTC()
	cp := *inv
	f.items[inv.ID] = &cp
	f.order = append(f.order, inv.ID)
	f.feed.notify(repository.ChannelAdminInvitations, inv.ID)
	return nil
}

func (f *fakeInvitations) GetByID(_ context.Context, id string) (*model.AdminInvitation, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvitations) GetByToken(_ context.Context, tok string) (*model.AdminInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.items {
		if inv.Token == tok {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeInvitations) List(_ context.Context, status *string) ([]*model.AdminInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.AdminInvitation
	for i := len(f.order) - 1; i >= 0; i-- {
		inv := f.items[f.order[i]]
		if status == nil || inv.Status == *status {
			cp := *inv
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeInvitations) transition(id string, fn func(inv *model.AdminInvitation)) (*model.AdminInvitation, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if inv.Status != model.InvitationPending {
		return nil, repository.ErrConflict
	}
	fn(inv)
	f.feed.notify(repository.ChannelAdminInvitations, id)
	cp := *inv
	return &cp, nil
}

func (f *fakeInvitations) MarkAccepted(_ context.Context, id, by string) (*model.AdminInvitation, error) {
	return f.transition(id, func(inv *model.AdminInvitation) {
		now := time.Now().UTC()
		inv.Status = model.InvitationAccepted
		inv.AcceptedAt, inv.AcceptedBy = &now, &by
	})
}

func (f *fakeInvitations) Cancel(_ context.Context, id, by, reason string) (*model.AdminInvitation, error) {
	return f.transition(id, func(inv *model.AdminInvitation) {
		now := time.Now().UTC()
		inv.Status = model.InvitationCancelled
		inv.CancelledAt, inv.CancelledBy = &now, &by
		if reason != "" {
			inv.CancellationReason = &reason
		}
	})
}

// --- approved_admins ---

type fakeAdmins struct {
	mu        sync.Mutex
	items     map[string]*model.ApprovedAdminRecord
	upsertErr error
	getErr    error
}

func newFakeAdmins() *fakeAdmins {
	return &fakeAdmins{items: map[string]*model.ApprovedAdminRecord{}}
}

func (f *fakeAdmins) Upsert(_ context.Context, rec *model.ApprovedAdminRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *rec
	cp.Status = model.AdminRecordApproved
	cp.ApprovedAt = time.Now().UTC()
	cp.RevokedAt, cp.RevokedBy = nil, nil
	f.items[rec.Email] = &cp
	return nil
}

func (f *fakeAdmins) GetByEmail(_ context.Context, email string) (*model.ApprovedAdminRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.items[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeAdmins) Revoke(_ context.Context, email, by string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.items[email]
	if !ok || rec.Status != model.AdminRecordApproved {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	rec.Status, rec.RevokedAt, rec.RevokedBy = model.AdminRecordRevoked, &now, &by
	return nil
}

func (f *fakeAdmins) List(_ context.Context) ([]*model.ApprovedAdminRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.ApprovedAdminRecord
	for _, rec := range f.items {
		cp := *rec
		result = append(result, &cp)
	}
	return result, nil
}

// --- admin_applications ---

type fakeAdminApplications struct {
	mu    sync.Mutex
	items map[string]*model.AdminApplication
}

func newFakeAdminApplications() *fakeAdminApplications {
	return &fakeAdminApplications{items: map[string]*model.AdminApplication{}}
}

func (f *fakeAdminApplications) Create(_ context.Context, a *model.AdminApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.items[a.ID] = &cp
	return nil
}

func (f *fakeAdminApplications) GetByID(_ context.Context, id string) (*model.AdminApplication, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAdminApplications) List(_ context.Context, status *string) ([]*model.AdminApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.AdminApplication
	for _, a := range f.items {
		if status == nil || a.Status == *status {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeAdminApplications) HasPending(_ context.Context, uid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.items {
		if a.UID == uid && a.Status == model.AdminApplicationPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAdminApplications) decide(id string, fn func(a *model.AdminApplication)) (*model.AdminApplication, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	fn(a)
	cp := *a
	return &cp, nil
}

func (f *fakeAdminApplications) Approve(_ context.Context, id, by string) (*model.AdminApplication, error) {
	return f.decide(id, func(a *model.AdminApplication) {
		now := time.Now().UTC()
		a.Status, a.ApprovedBy, a.ApprovedAt = model.AdminApplicationApproved, &by, &now
	})
}

func (f *fakeAdminApplications) Deny(_ context.Context, id, by, reason string) (*model.AdminApplication, error) {
	return f.decide(id, func(a *model.AdminApplication) {
		now := time.Now().UTC()
		a.Status, a.DeniedBy, a.DeniedAt = model.AdminApplicationDenied, &by, &now
		if reason != "" {
			a.DenialReason = &reason
		}
	})
}

// --- audit ---

type fakeAudit struct {
	mu     sync.Mutex
	events []*model.AuditEvent
	err    error
}

func (f *fakeAudit) Append(_ context.Context, e *model.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAudit) ListByTarget(_ context.Context, targetID string) ([]*model.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.AuditEvent
	for _, e := range f.events {
		if e.TargetID == targetID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]string, len(f.events))
	for i, e := range f.events {
		result[i] = e.Action
	}
	return result
}

// --- change feed ---

// fakeFeed — ChangeFeed в памяти: notify рассылает уведомление всем активным слушателям.
type fakeFeed struct {
	mu        sync.Mutex
	listeners map[int]*fakeListener
	nextID    int
	listenErr error
}

type fakeListener struct {
	channels map[string]bool
	out      chan repository.Notification
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{listeners: map[int]*fakeListener{}}
}

func (f *fakeFeed) Listen(ctx context.Context, channels ...string) (<-chan repository.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	l := &fakeListener{channels: map[string]bool{}, out: make(chan repository.Notification, 64)}
	for _, ch := range channels {
		l.channels[ch] = true
	}
	id := f.nextID
	f.nextID++
	f.listeners[id] = l

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
		close(l.out)
	}()
	return l.out, nil
}

func (f *fakeFeed) notify(channel, payload string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listeners {
		if l.channels[channel] {
			select {
			case l.out <- repository.Notification{Channel: channel, Payload: payload}:
			default:
			}
		}
	}
}

func (f *fakeFeed) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// --- Keycloak ---

type fakeIDP struct {
	mu         sync.Mutex
	users      map[string]*keycloak.KeycloakUser
	passwords  map[string]string
	groups     map[string][]keycloak.KeycloakGroup
	createErr  error
	createHook func()
	seq        int
}

func newFakeIDP() *fakeIDP {
	return &fakeIDP{
		users:     map[string]*keycloak.KeycloakUser{},
		passwords: map[string]string{},
		groups:    map[string][]keycloak.KeycloakGroup{},
	}
}

func (f *fakeIDP) CreateUser(_ context.Context, reg keycloak.UserRegistration) (string, error) {
	if f.createHook != nil {
		f.createHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, reg.Email) {
			return "", keycloak.ErrUserExists
		}
	}
	f.seq++
	id := "kc-" + string(rune('a'+f.seq-1))
	f.users[id] = &keycloak.KeycloakUser{ID: id, Username: reg.Email, Email: reg.Email, FirstName: reg.Name, Enabled: true}
	f.passwords[id] = reg.Password
	return id, nil
}

func (f *fakeIDP) FindUserByEmail(_ context.Context, email string) (*keycloak.KeycloakUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, keycloak.ErrNotFound
}

func (f *fakeIDP) ResetPassword(_ context.Context, userID, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return keycloak.ErrNotFound
	}
	f.passwords[userID] = password
	return nil
}

func (f *fakeIDP) GetUser(_ context.Context, id string) (*keycloak.KeycloakUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, keycloak.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeIDP) GetUserGroups(_ context.Context, userID string) ([]keycloak.KeycloakGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups[userID], nil
}

func registration(email, password string) keycloak.UserRegistration {
	return keycloak.UserRegistration{Email: email, Password: password}
}

func (f *fakeIDP) userCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// --- notify ---

type fakePublisher struct {
	mu   sync.Mutex
	jobs []notify.EmailJob
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, job notify.EmailJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakePublisher) published() []notify.EmailJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.EmailJob(nil), f.jobs...)
}
