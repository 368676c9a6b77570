// invitations.go — приглашения администраторов: создание, принятие, отмена.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/rbac"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/token"
	"github.com/bigkaa/acbfrsa/member-module/internal/keycloak"
	"github.com/bigkaa/acbfrsa/member-module/internal/lock"
	"github.com/bigkaa/acbfrsa/member-module/internal/notify"
	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
)

// IdentityProvider — регистрация пользователей во внешнем IdP (Keycloak).
type IdentityProvider interface {
	CreateUser(ctx context.Context, reg keycloak.UserRegistration) (string, error)
	FindUserByEmail(ctx context.Context, email string) (*keycloak.KeycloakUser, error)
	ResetPassword(ctx context.Context, userID, password string) error
}

// InvitationConfig — параметры жизненного цикла приглашений.
type InvitationConfig struct {
	// DefaultTTL — срок действия, если он не указан при создании
	DefaultTTL time.Duration
	// MinPasswordLength — минимальная длина пароля при принятии
	MinPasswordLength int
	// LockTTL — время удержания блокировки принятия
	LockTTL time.Duration
	// PublicBaseURL — адрес сайта для ссылки в письме
	PublicBaseURL string
}

// InvitationInput — данные нового приглашения.
type InvitationInput struct {
	Email string
	Name  string
	Note  string
	// TTL — срок действия (0 — значение по умолчанию)
	TTL time.Duration
}

// AcceptInput — данные для принятия приглашения.
type AcceptInput struct {
	Token    string
	Password string //nolint:gosec // G117: пароль передаётся только в IdP
	Name     string
}

// AcceptResult — результат принятия приглашения.
type AcceptResult struct {
	Invitation *model.AdminInvitation
	Profile    *model.UserProfile
}

// InvitationService — приглашения администраторов.
type InvitationService struct {
	invitations repository.AdminInvitationRepository
	admins      repository.ApprovedAdminRepository
	profiles    *ProfileService
	idp         IdentityProvider
	locker      lock.Locker
	publisher   notify.Publisher
	feed        repository.ChangeFeed
	audit       *auditor
	cfg         InvitationConfig
	now         func() time.Time
	logger      *slog.Logger
}

// NewInvitationService создаёт сервис приглашений.
func NewInvitationService(
	invitations repository.AdminInvitationRepository,
	admins repository.ApprovedAdminRepository,
	auditRepo repository.AuditRepository,
	profiles *ProfileService,
	idp IdentityProvider,
	locker lock.Locker,
	publisher notify.Publisher,
	feed repository.ChangeFeed,
	cfg InvitationConfig,
	logger *slog.Logger,
) *InvitationService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = token.DefaultTTL
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 6
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	l := logger.With(slog.String("component", "invitation_service"))
	return &InvitationService{
		invitations: invitations,
		admins:      admins,
		profiles:    profiles,
		idp:         idp,
		locker:      locker,
		publisher:   publisher,
		feed:        feed,
		audit:       newAuditor(auditRepo, l),
		cfg:         cfg,
		now:         time.Now,
		logger:      l,
	}
}

// CreateAdminInvitation создаёт приглашение в статусе pending.
// Повторные приглашения на тот же email допускаются.
func (s *InvitationService) CreateAdminInvitation(
	ctx context.Context, inviter model.Identity, in InvitationInput,
) (*model.AdminInvitation, error) {
	inviterEmail := normalizeEmail(inviter.Email)
	if inviter.UID == "" || inviterEmail == "" {
		return nil, fmt.Errorf("%w: у приглашающего нет email", ErrUnauthenticated)
	}

	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: некорректный email приглашённого", ErrValidation)
	}

	ttl := in.TTL
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}
	expiresAt, err := token.ExpiryDate(token.ExpiryOptions{TTL: ttl, From: s.now()})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	tok, err := token.Generate(token.DefaultByteLength)
	if err != nil {
		return nil, fmt.Errorf("генерация токена: %w", err)
	}

	inviterName := strings.TrimSpace(inviter.Name)
	if inviterName == "" {
		inviterName = inviterEmail
	}

	inv := &model.AdminInvitation{
		ID:            uuid.NewString(),
		Email:         email,
		InvitedBy:     inviter.UID,
		InvitedByName: inviterName,
		InviteeName:   strings.TrimSpace(in.Name),
		Note:          strings.TrimSpace(in.Note),
		Token:         tok,
		Status:        model.InvitationPending,
		ExpiresAt:     expiresAt.UTC(),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("создание приглашения: %w", err)
	}

	invitationsTotal.WithLabelValues("created").Inc()
	s.audit.record(ctx, inviter.UID, model.AuditInvitationCreated, inv.ID, map[string]any{"email": email})

	bestEffort(s.logger, "publish_invitation_email", s.publisher.Publish(ctx, notify.EmailJob{
		Type: notify.JobAdminInvitation,
		To:   email,
		Data: map[string]string{
			"invite_url":   s.acceptURL(tok),
			"invited_by":   inviterName,
			"invitee_name": inv.InviteeName,
			"note":         inv.Note,
			"expires_at":   inv.ExpiresAt.Format(time.RFC3339),
		},
		CreatedAt: s.now().UTC(),
	}), slog.String("invitation_id", inv.ID))

	s.logger.Info("Приглашение создано",
		slog.String("invitation_id", inv.ID),
		slog.String("email", email),
		slog.String("invited_by", inviter.UID),
		slog.Time("expires_at", inv.ExpiresAt),
	)
	return inv, nil
}

// GetInvitationByToken ищет приглашение по токену.
// Токен некорректного формата отбрасывается без обращения к БД.
// Возвращает nil, если приглашения нет.
func (s *InvitationService) GetInvitationByToken(ctx context.Context, raw string) (*model.AdminInvitation, error) {
	tok, ok := normalizeToken(raw)
	if !ok {
		return nil, nil
	}

	inv, err := s.invitations.GetByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("поиск приглашения: %w", err)
	}
	return inv, nil
}

// AcceptInvitation принимает приглашение: регистрирует пользователя в IdP,
// создаёт профиль admin/approved и переводит приглашение в accepted.
// Принятие одного токена сериализуется блокировкой.
func (s *InvitationService) AcceptInvitation(ctx context.Context, in AcceptInput) (*AcceptResult, error) {
	tok, ok := normalizeToken(in.Token)
	if !ok {
		return nil, fmt.Errorf("%w: некорректный токен приглашения", ErrValidation)
	}
	if len(in.Password) < s.cfg.MinPasswordLength {
		return nil, fmt.Errorf("%w: пароль короче %d символов", ErrValidation, s.cfg.MinPasswordLength)
	}

	unlock, err := s.locker.Acquire(ctx, "invitation:"+tok, s.cfg.LockTTL)
	switch {
	case errors.Is(err, lock.ErrAlreadyLocked):
		return nil, ErrInvitationBusy
	case err != nil:
		// Без блокировки остаётся условный переход pending → accepted в БД
		bestEffort(s.logger, "accept_lock", err)
	default:
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
			defer cancel()
			bestEffort(s.logger, "accept_unlock", unlock(releaseCtx))
		}()
	}

	inv, err := s.invitations.GetByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("поиск приглашения: %w", err)
	}
	if !inv.IsPending() {
		return nil, ErrInvitationUsed
	}
	expired, err := token.IsExpired(inv.ExpiresAt, s.now())
	if err != nil {
		return nil, fmt.Errorf("проверка срока приглашения: %w", err)
	}
	if expired {
		invitationsTotal.WithLabelValues("expired").Inc()
		return nil, ErrInvitationExpired
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = inv.InviteeName
	}

	uid, profile, err := s.registerAdmin(ctx, inv, name, in.Password)
	if err != nil {
		return nil, err
	}

	accepted, err := s.invitations.MarkAccepted(ctx, inv.ID, uid)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrInvitationUsed
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("отметка принятия приглашения: %w", err)
	}

	bestEffort(s.logger, "approved_admin_record", s.admins.Upsert(ctx, &model.ApprovedAdminRecord{
		Email:      inv.Email,
		Name:       name,
		ApprovedBy: inv.InvitedBy,
	}), slog.String("email", inv.Email))
	s.profiles.roles.Invalidate(uid)

	invitationsTotal.WithLabelValues("accepted").Inc()
	s.audit.record(ctx, uid, model.AuditInvitationAccepted, inv.ID, map[string]any{
		"email":      inv.Email,
		"invited_by": inv.InvitedBy,
	})

	s.logger.Info("Приглашение принято",
		slog.String("invitation_id", inv.ID),
		slog.String("uid", uid),
		slog.String("email", inv.Email),
	)
	return &AcceptResult{Invitation: accepted, Profile: profile}, nil
}

// registerAdmin регистрирует пользователя в IdP и создаёт профиль администратора.
//
// Если пользователь с этим email уже есть в IdP (прошлое принятие прервалось
// после регистрации), пароль переустанавливается и принятие продолжается:
// профиля нет — он создаётся; профиль администратора уже есть — используется он.
// Любой другой существующий профиль — ErrProfileExists.
func (s *InvitationService) registerAdmin(
	ctx context.Context, inv *model.AdminInvitation, name, password string,
) (string, *model.UserProfile, error) {
	uid, err := s.idp.CreateUser(ctx, keycloak.UserRegistration{
		Email:    inv.Email,
		Password: password,
		Name:     name,
	})
	if err == nil {
		profile, err := s.createAdminProfile(ctx, uid, inv, name)
		return uid, profile, err
	}
	if !errors.Is(err, keycloak.ErrUserExists) {
		return "", nil, fmt.Errorf("%w: регистрация пользователя: %v", ErrIDPUnavailable, err)
	}

	user, err := s.idp.FindUserByEmail(ctx, inv.Email)
	if err != nil {
		return "", nil, fmt.Errorf("%w: поиск пользователя: %v", ErrIDPUnavailable, err)
	}
	existing, err := s.profiles.GetUserProfile(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}
	if existing != nil && !(rbac.HasAtLeastRole(existing.Role, rbac.RoleAdmin) && existing.Status == model.StatusApproved) {
		return "", nil, ErrProfileExists
	}
	if err := s.idp.ResetPassword(ctx, user.ID, password); err != nil {
		return "", nil, fmt.Errorf("%w: установка пароля: %v", ErrIDPUnavailable, err)
	}

	s.logger.Warn("Пользователь уже зарегистрирован в IdP, принятие продолжается",
		slog.String("invitation_id", inv.ID),
		slog.String("uid", user.ID),
		slog.Bool("profile_exists", existing != nil),
	)

	if existing != nil {
		return user.ID, existing, nil
	}
	profile, err := s.createAdminProfile(ctx, user.ID, inv, name)
	return user.ID, profile, err
}

func (s *InvitationService) createAdminProfile(
	ctx context.Context, uid string, inv *model.AdminInvitation, name string,
) (*model.UserProfile, error) {
	invitedBy := inv.InvitedBy
	return s.profiles.CreateUserProfile(ctx, uid, ProfileInput{
		Email:      inv.Email,
		Name:       name,
		Role:       rbac.RoleAdmin,
		Status:     model.StatusApproved,
		ApprovedBy: &invitedBy,
	})
}

// CancelInvitation отменяет ожидающее приглашение.
// Принятое или уже отменённое приглашение — ErrInvitationNotPending.
func (s *InvitationService) CancelInvitation(
	ctx context.Context, actor model.Identity, id, reason string,
) (*model.AdminInvitation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id приглашения обязателен", ErrValidation)
	}
	// Идентификаторы приглашений — UUID, другой формат заведомо не существует
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvitationNotFound
	}

	inv, err := s.invitations.Cancel(ctx, id, actor.UID, strings.TrimSpace(reason))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrInvitationNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrInvitationNotPending
		}
		return nil, fmt.Errorf("отмена приглашения: %w", err)
	}

	invitationsTotal.WithLabelValues("cancelled").Inc()
	s.audit.record(ctx, actor.UID, model.AuditInvitationCancelled, inv.ID, map[string]any{"reason": reason})

	s.logger.Info("Приглашение отменено",
		slog.String("invitation_id", inv.ID),
		slog.String("cancelled_by", actor.UID),
	)
	return inv, nil
}

// ListInvitations возвращает все приглашения (новые первыми).
func (s *InvitationService) ListInvitations(ctx context.Context) ([]*model.AdminInvitation, error) {
	list, err := s.invitations.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("список приглашений: %w", err)
	}
	return list, nil
}

// GetPendingInvitations возвращает приглашения, которые ещё можно принять:
// статус pending и срок не истёк. Срок проверяется здесь, а не в запросе к БД.
func (s *InvitationService) GetPendingInvitations(ctx context.Context) ([]*model.AdminInvitation, error) {
	list, err := s.ListInvitations(ctx)
	if err != nil {
		return nil, err
	}
	return filterPending(list, s.now()), nil
}

// SubscribePendingInvitations открывает live-подписку на ожидающие приглашения.
func (s *InvitationService) SubscribePendingInvitations(ctx context.Context) (*Subscription[[]*model.AdminInvitation], error) {
	return subscribe(ctx, s.feed, "pending_invitations",
		[]string{repository.ChannelAdminInvitations},
		nil,
		s.GetPendingInvitations,
		s.logger,
	)
}

func filterPending(list []*model.AdminInvitation, now time.Time) []*model.AdminInvitation {
	result := make([]*model.AdminInvitation, 0, len(list))
	for _, inv := range list {
		if !inv.IsPending() {
			continue
		}
		if expired, err := token.IsExpired(inv.ExpiresAt, now); err != nil || expired {
			continue
		}
		result = append(result, inv)
	}
	return result
}

func (s *InvitationService) acceptURL(tok string) string {
	return s.cfg.PublicBaseURL + "/admin/accept-invitation?token=" + url.QueryEscape(tok)
}

// normalizeToken обрезает пробелы, проверяет формат и приводит токен к нижнему регистру.
func normalizeToken(raw string) (string, bool) {
	tok := strings.TrimSpace(raw)
	if !token.Validate(tok, token.ValidateOptions{}) {
		return "", false
	}
	return strings.ToLower(tok), true
}
