// idp.go — сервис статуса Identity Provider (Keycloak).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/acbfrsa/member-module/internal/keycloak"
)

// RealmReader — чтение информации о realm.
type RealmReader interface {
	RealmInfo(ctx context.Context) (*keycloak.RealmRepresentation, error)
}

// IDPService — сервис статуса Identity Provider.
type IDPService struct {
	realms      RealmReader
	keycloakURL string
	realm       string
	logger      *slog.Logger
}

// IDPStatus — статус подключения к Keycloak.
type IDPStatus struct {
	Connected    bool
	Realm        string
	RealmEnabled bool
	KeycloakURL  string
	Error        *string
}

// NewIDPService создаёт сервис статуса IdP.
func NewIDPService(realms RealmReader, keycloakURL, realm string, logger *slog.Logger) *IDPService {
	return &IDPService{
		realms:      realms,
		keycloakURL: keycloakURL,
		realm:       realm,
		logger:      logger.With(slog.String("component", "idp_service")),
	}
}

// GetStatus возвращает статус подключения к Keycloak.
func (s *IDPService) GetStatus(ctx context.Context) *IDPStatus {
	status := &IDPStatus{
		Realm:       s.realm,
		KeycloakURL: s.keycloakURL,
	}

	info, err := s.realms.RealmInfo(ctx)
	if err != nil {
		errMsg := fmt.Sprintf("Keycloak недоступен: %v", err)
		status.Error = &errMsg
		s.logger.Warn("Keycloak недоступен", slog.String("error", err.Error()))
		return status
	}

	status.Connected = true
	status.RealmEnabled = info.Enabled
	return status
}
