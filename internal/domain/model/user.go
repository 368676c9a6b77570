// Пакет model — доменные модели Member Module.
package model

import "time"

// Статусы профиля пользователя (и заявки на членство).
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// UserProfile — профиль пользователя сайта.
// Хранится в таблице user_profiles, ключ — Keycloak user ID (sub).
type UserProfile struct {
	// UID — Keycloak user ID (sub)
	UID string
	// Role — роль (member, admin, super_admin), не бывает пустой после создания
	Role string
	// Status — статус (pending, approved, rejected)
	Status string
	// Email — адрес электронной почты
	Email string
	// Name — отображаемое имя
	Name string
	// Phone — телефон (опционально)
	Phone *string
	// MemberApplicationID — ссылка на заявку на членство (опционально)
	MemberApplicationID *string

	// ApprovedAt, ApprovedBy — аудит одобрения
	ApprovedAt *time.Time
	ApprovedBy *string
	// RejectedAt, RejectedBy, RejectionReason — аудит отклонения
	RejectedAt      *time.Time
	RejectedBy      *string
	RejectionReason *string

	// CreatedAt, UpdatedAt — назначаются сервером БД
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfileUpdates — дополнительные поля, сливаемые в запись профиля.
// nil-поля не изменяются.
type ProfileUpdates struct {
	Name  *string
	Email *string
	Phone *string
}

// IsEmpty — true, если обновлять нечего.
func (u ProfileUpdates) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil
}

// Identity — аутентифицированный субъект запроса (из Keycloak JWT).
type Identity struct {
	// UID — sub из JWT
	UID string
	// Email — email из JWT
	Email string
	// Name — отображаемое имя (preferred_username, если name не задан)
	Name string
	// Role — итоговая роль (пустая строка — нет роли)
	Role string
}

// PendingMember — профиль на рассмотрении вместе с заявкой на членство.
type PendingMember struct {
	Profile     *UserProfile
	Application *MembershipApplication // nil, если заявки нет или её не удалось прочитать
}

// UserView — пользователь Keycloak, дополненный профилем и итоговой ролью.
type UserView struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Enabled   bool
	CreatedAt time.Time
	// Groups — группы Keycloak (nil, если их не удалось получить)
	Groups []string
	// IdpRole — роль, вычисленная из групп Keycloak
	IdpRole string
	// Profile — профиль в БД (nil, если его нет)
	Profile *UserProfile
	// EffectiveRole — максимум из IdpRole и ролей в БД
	EffectiveRole string
}
