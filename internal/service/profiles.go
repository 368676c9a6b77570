// Пакет service — бизнес-логика Member Module.
// profiles.go — профили пользователей и вычисление итоговой роли.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/rbac"
	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
)

// ProfileInput — данные для создания профиля.
type ProfileInput struct {
	Email string
	Name  string
	Phone *string
	// Role — роль (пусто — member). Невалидная роль — ErrInvalidRole.
	Role string
	// Status — статус (пусто — pending).
	Status string
	// ApprovedBy — кто одобрил (для профилей, создаваемых сразу в approved)
	ApprovedBy *string
	// MemberApplicationID — заявка на членство, к которой привязывается профиль
	MemberApplicationID *string
}

// ProfileService — доступ к профилям пользователей.
type ProfileService struct {
	profiles     repository.UserProfileRepository
	applications repository.MembershipApplicationRepository
	admins       repository.ApprovedAdminRepository
	feed         repository.ChangeFeed
	roles        *RoleCache
	audit        *auditor
	logger       *slog.Logger
}

// NewProfileService создаёт сервис профилей.
func NewProfileService(
	profiles repository.UserProfileRepository,
	applications repository.MembershipApplicationRepository,
	admins repository.ApprovedAdminRepository,
	auditRepo repository.AuditRepository,
	feed repository.ChangeFeed,
	roles *RoleCache,
	logger *slog.Logger,
) *ProfileService {
	l := logger.With(slog.String("component", "profile_service"))
	return &ProfileService{
		profiles:     profiles,
		applications: applications,
		admins:       admins,
		feed:         feed,
		roles:        roles,
		audit:        newAuditor(auditRepo, l),
		logger:       l,
	}
}

// CreateUserProfile создаёт профиль. Существующий профиль не перезаписывается:
// повторный вызов для того же uid возвращает ErrProfileExists.
func (s *ProfileService) CreateUserProfile(ctx context.Context, uid string, in ProfileInput) (*model.UserProfile, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrValidation)
	}

	role := rbac.RoleMember
	if in.Role != "" {
		normalized, ok := rbac.NormalizeRole(in.Role)
		if !ok {
			return nil, ErrInvalidRole
		}
		role = normalized
	}

	status := in.Status
	switch status {
	case "":
		status = model.StatusPending
	case model.StatusPending, model.StatusApproved, model.StatusRejected:
	default:
		return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, status)
	}

	p := &model.UserProfile{
		UID:                 uid,
		Role:                role,
		Status:              status,
		Email:               normalizeEmail(in.Email),
		Name:                strings.TrimSpace(in.Name),
		Phone:               in.Phone,
		MemberApplicationID: in.MemberApplicationID,
	}
	if status == model.StatusApproved {
		now := time.Now().UTC()
		p.ApprovedAt = &now
		p.ApprovedBy = in.ApprovedBy
	}

	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrProfileExists
		}
		return nil, fmt.Errorf("создание профиля: %w", err)
	}
	s.roles.Invalidate(uid)

	if p.MemberApplicationID != nil && *p.MemberApplicationID != "" {
		bestEffort(s.logger, "link_application",
			s.applications.LinkUser(ctx, *p.MemberApplicationID, uid),
			slog.String("uid", uid),
			slog.String("application_id", *p.MemberApplicationID),
		)
	}

	s.logger.Info("Профиль создан",
		slog.String("uid", uid),
		slog.String("role", p.Role),
		slog.String("status", p.Status),
	)
	return p, nil
}

// GetUserProfile возвращает профиль или nil, если его нет.
func (s *ProfileService) GetUserProfile(ctx context.Context, uid string) (*model.UserProfile, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrValidation)
	}

	p, err := s.profiles.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("получение профиля: %w", err)
	}
	return p, nil
}

// SubscribeToUserProfile открывает live-подписку на профиль (nil — профиля нет).
func (s *ProfileService) SubscribeToUserProfile(ctx context.Context, uid string) (*Subscription[*model.UserProfile], error) {
	if strings.TrimSpace(uid) == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrValidation)
	}

	return subscribe(ctx, s.feed, "user_profile",
		[]string{repository.ChannelUserProfiles},
		func(n repository.Notification) bool { return n.Payload == uid },
		func(ctx context.Context) (*model.UserProfile, error) {
			return s.GetUserProfile(ctx, uid)
		},
		s.logger,
	)
}

// UpdateUserRole меняет роль и сливает дополнительные поля профиля.
// Права вызывающего здесь не проверяются — это делает HTTP-слой.
func (s *ProfileService) UpdateUserRole(
	ctx context.Context, uid, role string, upd model.ProfileUpdates, changedBy string,
) (*model.UserProfile, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrValidation)
	}
	normalized, ok := rbac.NormalizeRole(role)
	if !ok {
		return nil, ErrInvalidRole
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		upd.Email = &email
	}

	p, err := s.profiles.UpdateRole(ctx, uid, normalized, upd)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("обновление роли: %w", err)
	}
	s.roles.Invalidate(uid)

	s.audit.record(ctx, changedBy, model.AuditRoleChanged, uid, map[string]any{"role": normalized})
	s.logger.Info("Роль пользователя изменена",
		slog.String("uid", uid),
		slog.String("role", normalized),
		slog.String("changed_by", changedBy),
	)
	return p, nil
}

// ResolveRole вычисляет итоговую роль аутентифицированного пользователя:
// максимум из роли Keycloak (idpRole), роли профиля и admin при действующем допуске.
// Пустая строка — роли нет. Ошибки чтения БД не прерывают запрос: используется idpRole.
func (s *ProfileService) ResolveRole(ctx context.Context, id model.Identity, idpRole string) string {
	stored, ok := s.roles.Get(id.UID)
	if !ok {
		var err error
		stored, err = s.storedRole(ctx, id)
		if err != nil {
			s.logger.Warn("Не удалось вычислить роль из БД, используется роль Keycloak",
				slog.String("uid", id.UID),
				slog.String("error", err.Error()),
			)
			return rbac.EffectiveRole(idpRole)
		}
		s.roles.Set(id.UID, stored)
	}
	return rbac.EffectiveRole(idpRole, stored)
}

// storedRole — роль по данным БД (без учёта Keycloak).
func (s *ProfileService) storedRole(ctx context.Context, id model.Identity) (string, error) {
	var profileRole string
	p, err := s.profiles.GetByUID(ctx, id.UID)
	switch {
	case err == nil:
		// Отклонённый профиль прав не даёт
		if p.Status != model.StatusRejected {
			profileRole = p.Role
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return "", fmt.Errorf("получение профиля: %w", err)
	}

	var recordRole string
	if email := normalizeEmail(id.Email); email != "" {
		rec, err := s.admins.GetByEmail(ctx, email)
		switch {
		case err == nil:
			if rec.Status == model.AdminRecordApproved {
				recordRole = rbac.RoleAdmin
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return "", fmt.Errorf("получение допуска администратора: %w", err)
		}
	}

	return rbac.EffectiveRole(profileRole, recordRole), nil
}

// normalizeEmail приводит email к нижнему регистру без пробелов.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
