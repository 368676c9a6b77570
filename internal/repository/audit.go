package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
)

// AuditRepository — журнал аудита (только добавление).
type AuditRepository interface {
	Append(ctx context.Context, e *model.AuditEvent) error
	ListByTarget(ctx context.Context, targetID string) ([]*model.AuditEvent, error)
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, e *model.AuditEvent) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("ошибка сериализации metadata: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO audit_events (id, actor_uid, action, target_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		e.ID, e.ActorUID, e.Action, e.TargetID, raw,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи события аудита: %w", err)
	}
	return nil
}

func (r *auditRepo) ListByTarget(ctx context.Context, targetID string) ([]*model.AuditEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, actor_uid, action, target_id, metadata, created_at
		FROM audit_events
		WHERE target_id = $1
		ORDER BY created_at`, targetID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения событий аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditEvent
	for rows.Next() {
		e := &model.AuditEvent{}
		var raw []byte
		if err := rows.Scan(&e.ID, &e.ActorUID, &e.Action, &e.TargetID, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события аудита: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("ошибка разбора metadata: %w", err)
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
