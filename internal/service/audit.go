package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
)

// auditor пишет события аудита по принципу best-effort.
type auditor struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

func newAuditor(repo repository.AuditRepository, logger *slog.Logger) *auditor {
	return &auditor{repo: repo, logger: logger}
}

func (a *auditor) record(ctx context.Context, actorUID, action, targetID string, meta map[string]any) {
	if a == nil || a.repo == nil {
		return
	}
	e := &model.AuditEvent{
		ID:       uuid.NewString(),
		ActorUID: actorUID,
		Action:   action,
		TargetID: targetID,
		Metadata: meta,
	}
	bestEffort(a.logger, "audit", a.repo.Append(ctx, e),
		slog.String("action", action),
		slog.String("target_id", targetID),
	)
}
