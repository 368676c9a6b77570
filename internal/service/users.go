// users.go — карточка пользователя: Keycloak + профиль в БД.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/acbfrsa/member-module/internal/domain/model"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/rbac"
	"github.com/bigkaa/acbfrsa/member-module/internal/keycloak"
)

// UserDirectory — чтение пользователей из Keycloak.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*keycloak.KeycloakUser, error)
	GetUserGroups(ctx context.Context, userID string) ([]keycloak.KeycloakGroup, error)
}

// UserService — сервис карточек пользователей.
// Keycloak — основной источник, профиль и роль берутся из БД.
type UserService struct {
	directory        UserDirectory
	profiles         *ProfileService
	adminGroups      []string
	superAdminGroups []string
	logger           *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(
	directory UserDirectory,
	profiles *ProfileService,
	adminGroups, superAdminGroups []string,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		directory:        directory,
		profiles:         profiles,
		adminGroups:      adminGroups,
		superAdminGroups: superAdminGroups,
		logger:           logger.With(slog.String("component", "user_service")),
	}
}

// GetUser возвращает пользователя по Keycloak ID.
// Если группы прочитать не удалось, роль считается только по БД.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.UserView, error) {
	kcUser, err := s.directory.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, keycloak.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: получение пользователя: %v", ErrIDPUnavailable, err)
	}

	view := basicUser(kcUser)

	kcGroups, err := s.directory.GetUserGroups(ctx, kcUser.ID)
	if err != nil {
		s.logger.Warn("Ошибка получения групп, используем данные БД",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	} else {
		view.Groups = make([]string, len(kcGroups))
		for i, g := range kcGroups {
			view.Groups[i] = g.Name
		}
		view.IdpRole = rbac.MapGroupsToRole(view.Groups, s.adminGroups, s.superAdminGroups)
	}

	profile, err := s.profiles.GetUserProfile(ctx, kcUser.ID)
	if err != nil {
		return nil, err
	}
	view.Profile = profile

	view.EffectiveRole = s.profiles.ResolveRole(ctx, model.Identity{
		UID:   kcUser.ID,
		Email: kcUser.Email,
	}, view.IdpRole)

	return view, nil
}

// basicUser создаёт UserView только из данных Keycloak.
func basicUser(kcUser *keycloak.KeycloakUser) *model.UserView {
	return &model.UserView{
		ID:        kcUser.ID,
		Username:  kcUser.Username,
		Email:     kcUser.Email,
		FirstName: kcUser.FirstName,
		LastName:  kcUser.LastName,
		Enabled:   kcUser.Enabled,
		CreatedAt: kcUser.CreatedAtTime(),
	}
}
