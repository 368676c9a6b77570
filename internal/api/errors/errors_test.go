package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProblem_Write(t *testing.T) {
	tests := []struct {
		problem    Problem
		wantStatus int
		wantCode   string
	}{
		{Validation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{Unauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{Forbidden, http.StatusForbidden, "FORBIDDEN"},
		{NotFound, http.StatusNotFound, "NOT_FOUND"},
		{Conflict, http.StatusConflict, "CONFLICT"},
		{InvitationExpired, http.StatusConflict, "INVITATION_EXPIRED"},
		{IDPUnavailable, http.StatusBadGateway, "IDP_UNAVAILABLE"},
		{Internal, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.problem.Write(rec, "описание «ошибки»")

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("тело не JSON: %v", err)
			}
			if body.Error.Code != tt.wantCode || body.Error.Message != "описание «ошибки»" {
				t.Errorf("тело = %+v", body)
			}
		})
	}
}
