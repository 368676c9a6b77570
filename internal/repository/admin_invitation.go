package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
)

// AdminInvitationRepository — интерфейс доступа к таблице admin_invitations.
//
// Переходы статусов выполняются условным UPDATE (WHERE status = 'pending'),
// поэтому из двух конкурентных переходов побеждает ровно один.
type AdminInvitationRepository interface {
	// Create сохраняет новое приглашение. Дубликат токена — ErrConflict.
	Create(ctx context.Context, inv *model.AdminInvitation) error
	// GetByID возвращает приглашение по ID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.AdminInvitation, error)
	// GetByToken возвращает приглашение по токену или ErrNotFound.
	GetByToken(ctx context.Context, token string) (*model.AdminInvitation, error)
	// List возвращает приглашения, опционально отфильтрованные по статусу.
	List(ctx context.Context, status *string) ([]*model.AdminInvitation, error)
	// MarkAccepted переводит pending-приглашение в accepted.
	// ErrNotFound — приглашения нет, ErrConflict — оно уже не pending.
	MarkAccepted(ctx context.Context, id, acceptedBy string) (*model.AdminInvitation, error)
	// Cancel переводит pending-приглашение в cancelled.
	// ErrNotFound — приглашения нет, ErrConflict — оно уже не pending.
	Cancel(ctx context.Context, id, cancelledBy, reason string) (*model.AdminInvitation, error)
}

// adminInvitationRepo — реализация AdminInvitationRepository.
type adminInvitationRepo struct {
	db DBTX
}

// NewAdminInvitationRepository создаёт репозиторий приглашений.
func NewAdminInvitationRepository(db DBTX) AdminInvitationRepository {
	return &adminInvitationRepo{db: db}
}

const invitationColumns = `id, email, invited_by, invited_by_name, invitee_name, note, token,
	status, expires_at, created_at, accepted_at, accepted_by,
	cancelled_at, cancelled_by, cancellation_reason`

func scanInvitation(row rowScanner) (*model.AdminInvitation, error) {
	inv := &model.AdminInvitation{}
	err := row.Scan(
		&inv.ID, &inv.Email, &inv.InvitedBy, &inv.InvitedByName, &inv.InviteeName, &inv.Note,
		&inv.Token, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.AcceptedAt, &inv.AcceptedBy,
		&inv.CancelledAt, &inv.CancelledBy, &inv.CancellationReason,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *adminInvitationRepo) Create(ctx context.Context, inv *model.AdminInvitation) error {
	query := `
		INSERT INTO admin_invitations (id, email, invited_by, invited_by_name, invitee_name,
			note, token, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		inv.ID, inv.Email, inv.InvitedBy, inv.InvitedByName, inv.InviteeName,
		inv.Note, inv.Token, inv.Status, inv.ExpiresAt,
	).Scan(&inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: токен приглашения уже используется", ErrConflict)
		}
		return fmt.Errorf("ошибка создания приглашения: %w", err)
	}
	return nil
}

func (r *adminInvitationRepo) GetByID(ctx context.Context, id string) (*model.AdminInvitation, error) {
	query := fmt.Sprintf(`SELECT %s FROM admin_invitations WHERE id = $1`, invitationColumns)
	return r.getOne(ctx, query, id)
}

func (r *adminInvitationRepo) GetByToken(ctx context.Context, token string) (*model.AdminInvitation, error) {
	query := fmt.Sprintf(`SELECT %s FROM admin_invitations WHERE token = $1 LIMIT 1`, invitationColumns)
	return r.getOne(ctx, query, token)
}

func (r *adminInvitationRepo) getOne(ctx context.Context, query string, arg any) (*model.AdminInvitation, error) {
	inv, err := scanInvitation(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения приглашения: %w", err)
	}
	return inv, nil
}

func (r *adminInvitationRepo) List(ctx context.Context, status *string) ([]*model.AdminInvitation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM admin_invitations
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC`, invitationColumns)

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка приглашений: %w", err)
	}
	defer rows.Close()

	var result []*model.AdminInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования приглашения: %w", err)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (r *adminInvitationRepo) MarkAccepted(ctx context.Context, id, acceptedBy string) (*model.AdminInvitation, error) {
	query := fmt.Sprintf(`
		UPDATE admin_invitations
		SET status = 'accepted', accepted_at = now(), accepted_by = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING %s`, invitationColumns)

	inv, err := scanInvitation(r.db.QueryRow(ctx, query, id, acceptedBy))
	if err != nil {
		if isInvalidID(err) {
			return nil, ErrNotFound
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionFailure(ctx, id)
		}
		return nil, fmt.Errorf("ошибка принятия приглашения: %w", err)
	}
	return inv, nil
}

func (r *adminInvitationRepo) Cancel(ctx context.Context, id, cancelledBy, reason string) (*model.AdminInvitation, error) {
	query := fmt.Sprintf(`
		UPDATE admin_invitations
		SET status = 'cancelled', cancelled_at = now(), cancelled_by = $2, cancellation_reason = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING %s`, invitationColumns)

	inv, err := scanInvitation(r.db.QueryRow(ctx, query, id, cancelledBy, reason))
	if err != nil {
		if isInvalidID(err) {
			return nil, ErrNotFound
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionFailure(ctx, id)
		}
		return nil, fmt.Errorf("ошибка отмены приглашения: %w", err)
	}
	return inv, nil
}

// transitionFailure различает «приглашения нет» и «приглашение уже не pending».
func (r *adminInvitationRepo) transitionFailure(ctx context.Context, id string) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM admin_invitations WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if isMissing(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка проверки статуса приглашения: %w", err)
	}
	return fmt.Errorf("%w: приглашение в статусе %s", ErrConflict, status)
}
