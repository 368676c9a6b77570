// idp.go — обработчик /api/v1/idp/status.
package handlers

import "net/http"

// GetIdpStatus — GET /api/v1/idp/status.
// Статус подключения к Keycloak. Доступ: super_admin.
func (h *APIHandler) GetIdpStatus(w http.ResponseWriter, r *http.Request) {
	status := h.idp.GetStatus(r.Context())

	resp := idpStatusResponse{
		Connected:    status.Connected,
		Realm:        status.Realm,
		RealmEnabled: status.RealmEnabled,
		Error:        status.Error,
	}
	if status.KeycloakURL != "" {
		resp.KeycloakURL = &status.KeycloakURL
	}

	writeJSON(w, http.StatusOK, resp)
}
