package model

import "time"

// Статусы приглашения администратора.
const (
	InvitationPending   = "pending"
	InvitationAccepted  = "accepted"
	InvitationCancelled = "cancelled"
)

// AdminInvitation — приглашение администратора с ограниченным сроком действия.
// Хранится в таблице admin_invitations.
// Переходы: pending → accepted, pending → cancelled. Оба конечных статуса терминальные.
type AdminInvitation struct {
	// ID — UUID приглашения
	ID string
	// Email — адрес приглашённого (нижний регистр, без пробелов)
	Email string
	// InvitedBy — UID пригласившего
	InvitedBy string
	// InvitedByName — имя пригласившего (для письма)
	InvitedByName string
	// InviteeName — имя приглашённого (опционально)
	InviteeName string
	// Note — сопроводительный текст (опционально)
	Note string
	// Token — уникальный hex-токен, единственный ключ для принятия
	Token string
	// Status — pending, accepted, cancelled
	Status string
	// ExpiresAt — момент истечения (граница включительно)
	ExpiresAt time.Time
	// CreatedAt — время создания
	CreatedAt time.Time

	AcceptedAt *time.Time
	AcceptedBy *string

	CancelledAt        *time.Time
	CancelledBy        *string
	CancellationReason *string
}

// IsPending — true, если приглашение ожидает принятия.
func (i *AdminInvitation) IsPending() bool {
	return i.Status == InvitationPending
}

// Статусы записи о допуске администратора.
const (
	AdminRecordApproved = "approved"
	AdminRecordRevoked  = "revoked"
)

// ApprovedAdminRecord — вторичный индекс выданных прав администратора, ключ — email.
// Ведётся по принципу best-effort; его отсутствие не отнимает роль профиля.
type ApprovedAdminRecord struct {
	Email      string
	Name       string
	ApprovedBy string
	ApprovedAt time.Time
	// Status — approved, revoked
	Status    string
	RevokedAt *time.Time
	RevokedBy *string
}

// Статусы легаси-заявки на права администратора.
const (
	AdminApplicationPending  = "pending"
	AdminApplicationApproved = "approved"
	AdminApplicationDenied   = "denied"
)

// AdminApplication — легаси-заявка «хочу стать администратором».
// Заменена приглашениями, оставлена для обратной совместимости.
type AdminApplication struct {
	ID     string
	UID    string
	Email  string
	Name   string
	Reason string
	Status string

	ApprovedBy *string
	ApprovedAt *time.Time

	DeniedBy     *string
	DeniedAt     *time.Time
	DenialReason *string

	CreatedAt time.Time
}
