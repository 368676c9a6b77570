// admin_applications.go — устаревший поток заявок на права администратора.
// Решения принимает только владелец (super-admin email из конфигурации).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/rbac"
	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
)

// AdminApplicationService — заявки на права администратора и реестр допусков.
type AdminApplicationService struct {
	applications    repository.AdminApplicationRepository
	admins          repository.ApprovedAdminRepository
	profiles        repository.UserProfileRepository
	roles           *RoleCache
	audit           *auditor
	superAdminEmail string
	logger          *slog.Logger
}

// NewAdminApplicationService создаёт сервис заявок администраторов.
func NewAdminApplicationService(
	applications repository.AdminApplicationRepository,
	admins repository.ApprovedAdminRepository,
	profiles repository.UserProfileRepository,
	auditRepo repository.AuditRepository,
	roles *RoleCache,
	superAdminEmail string,
	logger *slog.Logger,
) *AdminApplicationService {
	l := logger.With(slog.String("component", "admin_application_service"))
	return &AdminApplicationService{
		applications:    applications,
		admins:          admins,
		profiles:        profiles,
		roles:           roles,
		audit:           newAuditor(auditRepo, l),
		superAdminEmail: normalizeEmail(superAdminEmail),
		logger:          l,
	}
}

// IsSuperAdmin — является ли вызывающий владельцем.
func (s *AdminApplicationService) IsSuperAdmin(caller model.Identity) bool {
	return s.superAdminEmail != "" && normalizeEmail(caller.Email) == s.superAdminEmail
}

// ApplyForAdminAccess подаёт заявку от имени вызывающего.
func (s *AdminApplicationService) ApplyForAdminAccess(
	ctx context.Context, caller model.Identity, name, reason string,
) (*model.AdminApplication, error) {
	email := normalizeEmail(caller.Email)
	if caller.UID == "" || email == "" {
		return nil, ErrUnauthenticated
	}

	pending, err := s.applications.HasPending(ctx, caller.UID)
	if err != nil {
		return nil, fmt.Errorf("проверка заявок: %w", err)
	}
	if pending {
		return nil, ErrApplicationPending
	}

	isAdmin, err := s.isAdmin(ctx, caller.UID, email)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		return nil, ErrAlreadyAdmin
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = caller.Name
	}
	app := &model.AdminApplication{
		ID:     uuid.NewString(),
		UID:    caller.UID,
		Email:  email,
		Name:   name,
		Reason: strings.TrimSpace(reason),
		Status: model.AdminApplicationPending,
	}
	if err := s.applications.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrApplicationPending
		}
		return nil, fmt.Errorf("создание заявки администратора: %w", err)
	}

	s.logger.Info("Заявка на права администратора подана",
		slog.String("application_id", app.ID),
		slog.String("uid", caller.UID),
	)
	return app, nil
}

// isAdmin проверяет действующий допуск по email и роль профиля.
func (s *AdminApplicationService) isAdmin(ctx context.Context, uid, email string) (bool, error) {
	rec, err := s.admins.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if rec.Status == model.AdminRecordApproved {
			return true, nil
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return false, fmt.Errorf("получение допуска администратора: %w", err)
	}

	p, err := s.profiles.GetByUID(ctx, uid)
	switch {
	case err == nil:
		return p.Status != model.StatusRejected && rbac.HasAtLeastRole(p.Role, rbac.RoleAdmin), nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("получение профиля: %w", err)
	}
}

// ApproveAdminApplication одобряет заявку и вносит email в реестр допусков.
func (s *AdminApplicationService) ApproveAdminApplication(
	ctx context.Context, caller model.Identity, id string,
) (*model.AdminApplication, error) {
	if !s.IsSuperAdmin(caller) {
		return nil, ErrForbidden
	}
	if !validApplicationID(id) {
		return nil, ErrNotFound
	}

	app, err := s.applications.Approve(ctx, id, caller.UID)
	if err != nil {
		return nil, mapApplicationErr(err, "одобрение заявки администратора")
	}

	bestEffort(s.logger, "approved_admin_record", s.admins.Upsert(ctx, &model.ApprovedAdminRecord{
		Email:      app.Email,
		Name:       app.Name,
		ApprovedBy: caller.UID,
	}), slog.String("email", app.Email))
	s.roles.Invalidate(app.UID)

	s.audit.record(ctx, caller.UID, model.AuditAdminApproved, app.ID, map[string]any{"email": app.Email})
	s.logger.Info("Заявка на права администратора одобрена",
		slog.String("application_id", app.ID),
		slog.String("email", app.Email),
	)
	return app, nil
}

// DenyAdminApplication отклоняет заявку.
func (s *AdminApplicationService) DenyAdminApplication(
	ctx context.Context, caller model.Identity, id, reason string,
) (*model.AdminApplication, error) {
	if !s.IsSuperAdmin(caller) {
		return nil, ErrForbidden
	}
	if !validApplicationID(id) {
		return nil, ErrNotFound
	}

	app, err := s.applications.Deny(ctx, id, caller.UID, strings.TrimSpace(reason))
	if err != nil {
		return nil, mapApplicationErr(err, "отклонение заявки администратора")
	}

	s.audit.record(ctx, caller.UID, model.AuditAdminDenied, app.ID, map[string]any{"reason": reason})
	s.logger.Info("Заявка на права администратора отклонена",
		slog.String("application_id", app.ID),
	)
	return app, nil
}

// RemoveAdmin отзывает допуск администратора по email.
// Роль в профиле не меняется. Отозвать допуск владельца нельзя.
func (s *AdminApplicationService) RemoveAdmin(ctx context.Context, caller model.Identity, email string) error {
	if !s.IsSuperAdmin(caller) {
		return ErrForbidden
	}
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email обязателен", ErrValidation)
	}
	if email == s.superAdminEmail {
		return fmt.Errorf("%w: нельзя отозвать допуск владельца", ErrForbidden)
	}

	if err := s.admins.Revoke(ctx, email, caller.UID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("отзыв допуска: %w", err)
	}
	// Допуск привязан к email, uid неизвестен
	s.roles.Purge()

	s.audit.record(ctx, caller.UID, model.AuditAdminRemoved, email, nil)
	s.logger.Info("Допуск администратора отозван", slog.String("email", email))
	return nil
}

// ListAdminApplications возвращает заявки. Пустой status — все.
func (s *AdminApplicationService) ListAdminApplications(
	ctx context.Context, caller model.Identity, status string,
) ([]*model.AdminApplication, error) {
	if !s.IsSuperAdmin(caller) {
		return nil, ErrForbidden
	}

	var filter *string
	switch status {
	case "":
	case model.AdminApplicationPending, model.AdminApplicationApproved, model.AdminApplicationDenied:
		filter = &status
	default:
		return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, status)
	}

	list, err := s.applications.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("список заявок администратора: %w", err)
	}
	return list, nil
}

// ListApprovedAdmins возвращает реестр допусков.
func (s *AdminApplicationService) ListApprovedAdmins(
	ctx context.Context, caller model.Identity,
) ([]*model.ApprovedAdminRecord, error) {
	if !s.IsSuperAdmin(caller) {
		return nil, ErrForbidden
	}

	list, err := s.admins.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список допусков: %w", err)
	}
	return list, nil
}

// validApplicationID — идентификаторы заявок выдаются как UUID.
func validApplicationID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func mapApplicationErr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
