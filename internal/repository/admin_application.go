package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
)

// AdminApplicationRepository — интерфейс доступа к легаси-таблице admin_applications.
type AdminApplicationRepository interface {
	Create(ctx context.Context, a *model.AdminApplication) error
	GetByID(ctx context.Context, id string) (*model.AdminApplication, error)
	List(ctx context.Context, status *string) ([]*model.AdminApplication, error)
	// HasPending — есть ли у пользователя заявка в статусе pending.
	HasPending(ctx context.Context, uid string) (bool, error)
	Approve(ctx context.Context, id, approvedBy string) (*model.AdminApplication, error)
	Deny(ctx context.Context, id, deniedBy, reason string) (*model.AdminApplication, error)
}

type adminApplicationRepo struct {
	db DBTX
}

// NewAdminApplicationRepository создаёт репозиторий легаси-заявок.
func NewAdminApplicationRepository(db DBTX) AdminApplicationRepository {
	return &adminApplicationRepo{db: db}
}

const adminApplicationColumns = `id, uid, email, name, reason, status,
	approved_by, approved_at, denied_by, denied_at, denial_reason, created_at`

func scanAdminApplication(row rowScanner) (*model.AdminApplication, error) {
	a := &model.AdminApplication{}
	if err := row.Scan(
		&a.ID, &a.UID, &a.Email, &a.Name, &a.Reason, &a.Status,
		&a.ApprovedBy, &a.ApprovedAt, &a.DeniedBy, &a.DeniedAt, &a.DenialReason, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *adminApplicationRepo) Create(ctx context.Context, a *model.AdminApplication) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO admin_applications (id, uid, email, name, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		a.ID, a.UID, a.Email, a.Name, a.Reason, a.Status,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: заявка %s уже существует", ErrConflict, a.ID)
		}
		return fmt.Errorf("ошибка создания заявки администратора: %w", err)
	}
	return nil
}

func (r *adminApplicationRepo) GetByID(ctx context.Context, id string) (*model.AdminApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM admin_applications WHERE id = $1`, adminApplicationColumns)

	a, err := scanAdminApplication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки администратора: %w", err)
	}
	return a, nil
}

func (r *adminApplicationRepo) List(ctx context.Context, status *string) ([]*model.AdminApplication, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM admin_applications
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC`, adminApplicationColumns)

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок администраторов: %w", err)
	}
	defer rows.Close()

	var result []*model.AdminApplication
	for rows.Next() {
		a, err := scanAdminApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки администратора: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *adminApplicationRepo) HasPending(ctx context.Context, uid string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM admin_applications WHERE uid = $1 AND status = 'pending'
		)`, uid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки заявок администратора: %w", err)
	}
	return exists, nil
}

func (r *adminApplicationRepo) Approve(ctx context.Context, id, approvedBy string) (*model.AdminApplication, error) {
	query := fmt.Sprintf(`
		UPDATE admin_applications
		SET status = 'approved', approved_by = $2, approved_at = now()
		WHERE id = $1
		RETURNING %s`, adminApplicationColumns)

	a, err := scanAdminApplication(r.db.QueryRow(ctx, query, id, approvedBy))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка одобрения заявки администратора: %w", err)
	}
	return a, nil
}

func (r *adminApplicationRepo) Deny(ctx context.Context, id, deniedBy, reason string) (*model.AdminApplication, error) {
	query := fmt.Sprintf(`
		UPDATE admin_applications
		SET status = 'denied', denied_by = $2, denied_at = now(), denial_reason = $3
		WHERE id = $1
		RETURNING %s`, adminApplicationColumns)

	a, err := scanAdminApplication(r.db.QueryRow(ctx, query, id, deniedBy, reason))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка отклонения заявки администратора: %w", err)
	}
	return a, nil
}
