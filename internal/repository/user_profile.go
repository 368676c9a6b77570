package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
)

// UserProfileRepository — интерфейс доступа к таблице user_profiles.
// Профили не удаляются: удаление выполняется внешним инструментом.
type UserProfileRepository interface {
	// Create создаёт профиль. Если профиль с таким uid уже есть — ErrConflict.
	Create(ctx context.Context, p *model.UserProfile) error
	// GetByUID возвращает профиль по uid или ErrNotFound.
	GetByUID(ctx context.Context, uid string) (*model.UserProfile, error)
	// UpdateRole меняет роль, сливает дополнительные поля и обновляет updated_at.
	UpdateRole(ctx context.Context, uid, role string, upd model.ProfileUpdates) (*model.UserProfile, error)
	// Approve переводит профиль в approved и очищает поля отклонения.
	Approve(ctx context.Context, uid, approvedBy string, upd model.ProfileUpdates) (*model.UserProfile, error)
	// Reject переводит профиль в rejected и очищает поля одобрения.
	Reject(ctx context.Context, uid, rejectedBy, reason string, upd model.ProfileUpdates) (*model.UserProfile, error)
	// ListByRoleStatus возвращает профили с заданными ролью и статусом.
	ListByRoleStatus(ctx context.Context, role, status string) ([]*model.UserProfile, error)
}

// userProfileRepo — реализация UserProfileRepository.
type userProfileRepo struct {
	db DBTX
}

// NewUserProfileRepository создаёт репозиторий профилей.
func NewUserProfileRepository(db DBTX) UserProfileRepository {
	return &userProfileRepo{db: db}
}

const profileColumns = `uid, role, status, email, name, phone, member_application_id,
	approved_at, approved_by, rejected_at, rejected_by, rejection_reason,
	created_at, updated_at`

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	err := row.Scan(
		&p.UID, &p.Role, &p.Status, &p.Email, &p.Name, &p.Phone, &p.MemberApplicationID,
		&p.ApprovedAt, &p.ApprovedBy, &p.RejectedAt, &p.RejectedBy, &p.RejectionReason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *userProfileRepo) Create(ctx context.Context, p *model.UserProfile) error {
	query := `
		INSERT INTO user_profiles (uid, role, status, email, name, phone, member_application_id,
			approved_at, approved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.UID, p.Role, p.Status, p.Email, p.Name, p.Phone, p.MemberApplicationID,
		p.ApprovedAt, p.ApprovedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: профиль %s уже существует", ErrConflict, p.UID)
		}
		return fmt.Errorf("ошибка создания профиля: %w", err)
	}
	return nil
}

func (r *userProfileRepo) GetByUID(ctx context.Context, uid string) (*model.UserProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_profiles WHERE uid = $1`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return p, nil
}

func (r *userProfileRepo) UpdateRole(ctx context.Context, uid, role string, upd model.ProfileUpdates) (*model.UserProfile, error) {
	query := fmt.Sprintf(`
		UPDATE user_profiles
		SET role = $2,
			name = COALESCE($3, name),
			email = COALESCE($4, email),
			phone = COALESCE($5, phone),
			updated_at = now()
		WHERE uid = $1
		RETURNING %s`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, uid, role, upd.Name, upd.Email, upd.Phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления роли: %w", err)
	}
	return p, nil
}

func (r *userProfileRepo) Approve(ctx context.Context, uid, approvedBy string, upd model.ProfileUpdates) (*model.UserProfile, error) {
	query := fmt.Sprintf(`
		UPDATE user_profiles
		SET status = 'approved',
			approved_at = now(),
			approved_by = $2,
			rejected_at = NULL,
			rejected_by = NULL,
			rejection_reason = NULL,
			name = COALESCE($3, name),
			email = COALESCE($4, email),
			phone = COALESCE($5, phone),
			updated_at = now()
		WHERE uid = $1
		RETURNING %s`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, uid, approvedBy, upd.Name, upd.Email, upd.Phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка одобрения профиля: %w", err)
	}
	return p, nil
}

func (r *userProfileRepo) Reject(ctx context.Context, uid, rejectedBy, reason string, upd model.ProfileUpdates) (*model.UserProfile, error) {
	query := fmt.Sprintf(`
		UPDATE user_profiles
		SET status = 'rejected',
			rejected_at = now(),
			rejected_by = $2,
			rejection_reason = $3,
			approved_at = NULL,
			approved_by = NULL,
			name = COALESCE($4, name),
			email = COALESCE($5, email),
			phone = COALESCE($6, phone),
			updated_at = now()
		WHERE uid = $1
		RETURNING %s`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, uid, rejectedBy, reason, upd.Name, upd.Email, upd.Phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка отклонения профиля: %w", err)
	}
	return p, nil
}

func (r *userProfileRepo) ListByRoleStatus(ctx context.Context, role, status string) ([]*model.UserProfile, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_profiles
		WHERE role = $1 AND status = $2
		ORDER BY created_at DESC`, profileColumns)

	rows, err := r.db.Query(ctx, query, role, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка профилей: %w", err)
	}
	defer rows.Close()

	var result []*model.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования профиля: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
