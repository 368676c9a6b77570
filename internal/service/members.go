// members.go — рассмотрение заявок на членство.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/rbac"
	"github.com/bigkaa/acbfrsa/member-module/internal/notify"
	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
)

// ApprovalOptions — параметры решения по участнику.
type ApprovalOptions struct {
	// ActorUID — кто принял решение
	ActorUID string
	// Updates — дополнительные поля профиля, сливаемые в той же записи
	Updates model.ProfileUpdates
}

// ApplicationInput — данные заявки на членство.
type ApplicationInput struct {
	Name         string
	Email        string
	Phone        string
	BusinessName string
	BusinessType string
	Message      string
}

// MemberService — очередь ожидающих участников и решения по ним.
type MemberService struct {
	profiles     repository.UserProfileRepository
	applications repository.MembershipApplicationRepository
	roles        *RoleCache
	publisher    notify.Publisher
	feed         repository.ChangeFeed
	audit        *auditor
	concurrency  int
	logger       *slog.Logger
}

// NewMemberService создаёт сервис участников.
// concurrency ограничивает число параллельных чтений заявок при обогащении очереди.
func NewMemberService(
	profiles repository.UserProfileRepository,
	applications repository.MembershipApplicationRepository,
	auditRepo repository.AuditRepository,
	roles *RoleCache,
	publisher notify.Publisher,
	feed repository.ChangeFeed,
	concurrency int,
	logger *slog.Logger,
) *MemberService {
	if concurrency < 1 {
		concurrency = 1
	}
	l := logger.With(slog.String("component", "member_service"))
	return &MemberService{
		profiles:     profiles,
		applications: applications,
		roles:        roles,
		publisher:    publisher,
		feed:         feed,
		audit:        newAuditor(auditRepo, l),
		concurrency:  concurrency,
		logger:       l,
	}
}

// GetPendingMembers возвращает участников (role=member, status=pending) вместе с заявками.
// Если заявку прочитать не удалось, участник возвращается без неё.
func (s *MemberService) GetPendingMembers(ctx context.Context) ([]*model.PendingMember, error) {
	list, err := s.profiles.ListByRoleStatus(ctx, rbac.RoleMember, model.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("список ожидающих участников: %w", err)
	}

	result := make([]*model.PendingMember, len(list))
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, p := range list {
		result[i] = &model.PendingMember{Profile: p}
		if p.MemberApplicationID == nil || *p.MemberApplicationID == "" {
			continue
		}
		appID := *p.MemberApplicationID
		g.Go(func() error {
			app, err := s.applications.GetByID(ctx, appID)
			if err != nil {
				bestEffort(s.logger, "enrich_application", err,
					slog.String("uid", p.UID),
					slog.String("application_id", appID),
				)
				return nil
			}
			result[i].Application = app
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// SubscribePendingMembers открывает live-подписку на очередь ожидающих участников.
// Очередь перечитывается при изменении профилей и заявок.
func (s *MemberService) SubscribePendingMembers(ctx context.Context) (*Subscription[[]*model.PendingMember], error) {
	return subscribe(ctx, s.feed, "pending_members",
		[]string{repository.ChannelUserProfiles, repository.ChannelMembershipApplications},
		nil,
		s.GetPendingMembers,
		s.logger,
	)
}

// ApproveMember одобряет участника. Статус связанной заявки обновляется по принципу best-effort.
func (s *MemberService) ApproveMember(ctx context.Context, memberID string, opts ApprovalOptions) (*model.UserProfile, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, fmt.Errorf("%w: id участника обязателен", ErrValidation)
	}
	normalizeUpdates(&opts.Updates)

	p, err := s.profiles.Approve(ctx, memberID, opts.ActorUID, opts.Updates)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("одобрение участника: %w", err)
	}

	s.afterDecision(ctx, p, model.StatusApproved, opts.ActorUID, nil)
	return p, nil
}

// RejectMember отклоняет участника с необязательной причиной.
func (s *MemberService) RejectMember(
	ctx context.Context, memberID, reason string, opts ApprovalOptions,
) (*model.UserProfile, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, fmt.Errorf("%w: id участника обязателен", ErrValidation)
	}
	normalizeUpdates(&opts.Updates)
	reason = strings.TrimSpace(reason)

	p, err := s.profiles.Reject(ctx, memberID, opts.ActorUID, reason, opts.Updates)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("отклонение участника: %w", err)
	}

	s.afterDecision(ctx, p, model.StatusRejected, opts.ActorUID, map[string]any{"reason": reason})
	return p, nil
}

// afterDecision — вторичные записи после решения: заявка, аудит, письмо.
func (s *MemberService) afterDecision(
	ctx context.Context, p *model.UserProfile, decision, actorUID string, meta map[string]any,
) {
	s.roles.Invalidate(p.UID)

	if p.MemberApplicationID != nil && *p.MemberApplicationID != "" {
		bestEffort(s.logger, "mirror_application_status",
			s.applications.UpdateStatus(ctx, *p.MemberApplicationID, decision),
			slog.String("uid", p.UID),
			slog.String("application_id", *p.MemberApplicationID),
		)
	}

	action := model.AuditMemberApproved
	if decision == model.StatusRejected {
		action = model.AuditMemberRejected
	}
	memberDecisionsTotal.WithLabelValues(decision).Inc()
	s.audit.record(ctx, actorUID, action, p.UID, meta)

	if p.Email != "" {
		data := map[string]string{"decision": decision, "name": p.Name}
		if p.RejectionReason != nil {
			data["reason"] = *p.RejectionReason
		}
		bestEffort(s.logger, "publish_decision_email", s.publisher.Publish(ctx, notify.EmailJob{
			Type:      notify.JobMemberDecision,
			To:        p.Email,
			Data:      data,
			CreatedAt: time.Now().UTC(),
		}), slog.String("uid", p.UID))
	}

	s.logger.Info("Решение по участнику принято",
		slog.String("uid", p.UID),
		slog.String("decision", decision),
		slog.String("actor", actorUID),
	)
}

// SubmitApplication сохраняет заявку на членство в статусе pending.
func (s *MemberService) SubmitApplication(ctx context.Context, in ApplicationInput) (*model.MembershipApplication, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: имя обязательно", ErrValidation)
	}
	email := normalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: некорректный email", ErrValidation)
	}

	app := &model.MembershipApplication{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		BusinessName: strings.TrimSpace(in.BusinessName),
		BusinessType: strings.TrimSpace(in.BusinessType),
		Message:      strings.TrimSpace(in.Message),
		Status:       model.StatusPending,
	}
	if err := s.applications.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("создание заявки: %w", err)
	}

	s.logger.Info("Заявка на членство получена",
		slog.String("application_id", app.ID),
		slog.String("email", email),
	)
	return app, nil
}

// ListApplications возвращает заявки на членство. Пустой status — все заявки.
func (s *MemberService) ListApplications(ctx context.Context, status string) ([]*model.MembershipApplication, error) {
	var filter *string
	switch status {
	case "":
	case model.StatusPending, model.StatusApproved, model.StatusRejected:
		filter = &status
	default:
		return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, status)
	}

	list, err := s.applications.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("список заявок: %w", err)
	}
	return list, nil
}

func normalizeUpdates(upd *model.ProfileUpdates) {
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		upd.Email = &email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		upd.Name = &name
	}
}
