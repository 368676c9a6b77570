package model

import "time"

// Действия, попадающие в журнал аудита.
const (
	AuditInvitationCreated   = "INVITATION_CREATED"
	AuditInvitationAccepted  = "INVITATION_ACCEPTED"
	AuditInvitationCancelled = "INVITATION_CANCELLED"
	AuditMemberApproved      = "MEMBER_APPROVED"
	AuditMemberRejected      = "MEMBER_REJECTED"
	AuditRoleChanged         = "ROLE_CHANGED"
	AuditAdminApproved       = "ADMIN_APPLICATION_APPROVED"
	AuditAdminDenied         = "ADMIN_APPLICATION_DENIED"
	AuditAdminRemoved        = "ADMIN_REMOVED"
)

// AuditEvent — запись журнала аудита (append-only).
type AuditEvent struct {
	ID       string
	ActorUID string
	Action   string
	// TargetID — идентификатор затронутого документа (uid, id приглашения, email)
	TargetID  string
	Metadata  map[string]any
	CreatedAt time.Time
}
