package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
)

// MembershipApplicationRepository — интерфейс доступа к таблице membership_applications.
type MembershipApplicationRepository interface {
	// Create сохраняет заявку, поданную через форму сайта.
	Create(ctx context.Context, a *model.MembershipApplication) error
	// GetByID возвращает заявку по ID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.MembershipApplication, error)
	// List возвращает заявки, опционально отфильтрованные по статусу.
	List(ctx context.Context, status *string) ([]*model.MembershipApplication, error)
	// UpdateStatus меняет статус заявки.
	UpdateStatus(ctx context.Context, id, status string) error
	// LinkUser связывает заявку с созданным профилем.
	LinkUser(ctx context.Context, id, uid string) error
}

// membershipApplicationRepo — реализация MembershipApplicationRepository.
type membershipApplicationRepo struct {
	db DBTX
}

// NewMembershipApplicationRepository создаёт репозиторий заявок на членство.
func NewMembershipApplicationRepository(db DBTX) MembershipApplicationRepository {
	return &membershipApplicationRepo{db: db}
}

const applicationColumns = `id, name, email, phone, business_name, business_type, message,
	status, user_id, account_created, account_created_at, created_at, updated_at`

func scanApplication(row rowScanner) (*model.MembershipApplication, error) {
	a := &model.MembershipApplication{}
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.BusinessName, &a.BusinessType, &a.Message,
		&a.Status, &a.UserID, &a.AccountCreated, &a.AccountCreatedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *membershipApplicationRepo) Create(ctx context.Context, a *model.MembershipApplication) error {
	query := `
		INSERT INTO membership_applications (id, name, email, phone, business_name,
			business_type, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.Name, a.Email, a.Phone, a.BusinessName, a.BusinessType, a.Message, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: заявка %s уже существует", ErrConflict, a.ID)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *membershipApplicationRepo) GetByID(ctx context.Context, id string) (*model.MembershipApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM membership_applications WHERE id = $1`, applicationColumns)

	a, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return a, nil
}

func (r *membershipApplicationRepo) List(ctx context.Context, status *string) ([]*model.MembershipApplication, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM membership_applications
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC`, applicationColumns)

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.MembershipApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *membershipApplicationRepo) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE membership_applications
		SET status = $2, updated_at = now()
		WHERE id = $1`, id, status)
	if err != nil {
		if isInvalidID(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления статуса заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *membershipApplicationRepo) LinkUser(ctx context.Context, id, uid string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE membership_applications
		SET user_id = $2, account_created = true, account_created_at = now(), updated_at = now()
		WHERE id = $1`, id, uid)
	if err != nil {
		if isInvalidID(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка привязки заявки к профилю: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
