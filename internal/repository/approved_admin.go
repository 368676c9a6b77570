package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
)

// ApprovedAdminRepository — интерфейс доступа к таблице approved_admins.
type ApprovedAdminRepository interface {
	// Upsert создаёт или восстанавливает запись о допуске по email.
	Upsert(ctx context.Context, rec *model.ApprovedAdminRecord) error
	// GetByEmail возвращает запись по email или ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*model.ApprovedAdminRecord, error)
	// Revoke помечает запись отозванной. Нет записи — ErrNotFound.
	Revoke(ctx context.Context, email, revokedBy string) error
	// List возвращает все записи.
	List(ctx context.Context) ([]*model.ApprovedAdminRecord, error)
}

// approvedAdminRepo — реализация ApprovedAdminRepository.
type approvedAdminRepo struct {
	db DBTX
}

// NewApprovedAdminRepository создаёт репозиторий допусков администраторов.
func NewApprovedAdminRepository(db DBTX) ApprovedAdminRepository {
	return &approvedAdminRepo{db: db}
}

const approvedAdminColumns = `email, name, approved_by, approved_at, status, revoked_at, revoked_by`

func scanApprovedAdmin(row rowScanner) (*model.ApprovedAdminRecord, error) {
	rec := &model.ApprovedAdminRecord{}
	if err := row.Scan(
		&rec.Email, &rec.Name, &rec.ApprovedBy, &rec.ApprovedAt, &rec.Status,
		&rec.RevokedAt, &rec.RevokedBy,
	); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *approvedAdminRepo) Upsert(ctx context.Context, rec *model.ApprovedAdminRecord) error {
	query := `
		INSERT INTO approved_admins (email, name, approved_by, approved_at, status)
		VALUES ($1, $2, $3, now(), 'approved')
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			approved_by = EXCLUDED.approved_by,
			approved_at = now(),
			status = 'approved',
			revoked_at = NULL,
			revoked_by = NULL
		RETURNING approved_at, status`

	err := r.db.QueryRow(ctx, query, rec.Email, rec.Name, rec.ApprovedBy).
		Scan(&rec.ApprovedAt, &rec.Status)
	if err != nil {
		return fmt.Errorf("ошибка upsert допуска администратора: %w", err)
	}
	rec.RevokedAt = nil
	rec.RevokedBy = nil
	return nil
}

func (r *approvedAdminRepo) GetByEmail(ctx context.Context, email string) (*model.ApprovedAdminRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM approved_admins WHERE email = $1`, approvedAdminColumns)

	rec, err := scanApprovedAdmin(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения допуска администратора: %w", err)
	}
	return rec, nil
}

func (r *approvedAdminRepo) Revoke(ctx context.Context, email, revokedBy string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE approved_admins
		SET status = 'revoked', revoked_at = now(), revoked_by = $2
		WHERE email = $1`, email, revokedBy)
	if err != nil {
		return fmt.Errorf("ошибка отзыва допуска администратора: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *approvedAdminRepo) List(ctx context.Context) ([]*model.ApprovedAdminRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM approved_admins ORDER BY approved_at DESC`, approvedAdminColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка администраторов: %w", err)
	}
	defer rows.Close()

	var result []*model.ApprovedAdminRecord
	for rows.Next() {
		rec, err := scanApprovedAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования допуска: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
