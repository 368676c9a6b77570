// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidRole — некорректная роль.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — member, admin, super_admin")
	// ErrProfileExists — профиль для этого пользователя уже существует.
	ErrProfileExists = errors.New("профиль пользователя уже существует")

	// ErrInvitationNotFound — приглашение не найдено или уже использовано.
	ErrInvitationNotFound = errors.New("приглашение не найдено или уже использовано")
	// ErrInvitationUsed — приглашение уже принято или отменено.
	ErrInvitationUsed = errors.New("приглашение уже использовано или отменено")
	// ErrInvitationExpired — срок действия приглашения истёк.
	ErrInvitationExpired = errors.New("срок действия приглашения истёк, запросите новое")
	// ErrInvitationNotPending — операция допустима только для ожидающего приглашения.
	ErrInvitationNotPending = errors.New("приглашение не в статусе pending")
	// ErrInvitationBusy — приглашение принимается в параллельном запросе.
	ErrInvitationBusy = errors.New("приглашение уже обрабатывается, повторите позже")

	// ErrUnauthenticated — вызывающий не аутентифицирован или без email.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("недостаточно прав")

	// ErrApplicationPending — у пользователя уже есть заявка на рассмотрении.
	ErrApplicationPending = errors.New("заявка уже находится на рассмотрении")
	// ErrAlreadyAdmin — пользователь уже администратор.
	ErrAlreadyAdmin = errors.New("пользователь уже является администратором")

	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
)
