package model

import "time"

// MembershipApplication — заявка на членство, поданная через форму сайта.
// Хранится в таблице membership_applications.
type MembershipApplication struct {
	// ID — UUID заявки
	ID string
	// Поля, заполненные заявителем
	Name         string
	Email        string
	Phone        string
	BusinessName string
	BusinessType string
	Message      string
	// Status — pending, approved, rejected (зеркалирует статус профиля)
	Status string
	// UserID — профиль, связанный с заявкой (после создания аккаунта)
	UserID *string
	// AccountCreated, AccountCreatedAt — отметка о создании аккаунта
	AccountCreated   bool
	AccountCreatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
