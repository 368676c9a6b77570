package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticChecker struct {
	status, message string
}

func (c staticChecker) CheckReady() (string, string) { return c.status, c.message }

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	var resp healthLiveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Service != "member-module" || resp.Status != "ok" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]ReadinessChecker
		status int
		want   string
	}{
		{
			name: "всё доступно",
			checks: map[string]ReadinessChecker{
				"postgresql": staticChecker{"ok", ""},
				"keycloak":   staticChecker{"ok", ""},
			},
			status: http.StatusOK, want: "ok",
		},
		{
			name: "redis недоступен",
			checks: map[string]ReadinessChecker{
				"postgresql": staticChecker{"ok", ""},
				"redis":      staticChecker{"degraded", "timeout"},
			},
			status: http.StatusOK, want: "degraded",
		},
		{
			name: "postgres недоступен",
			checks: map[string]ReadinessChecker{
				"postgresql": staticChecker{"fail", "connection refused"},
				"redis":      staticChecker{"degraded", ""},
			},
			status: http.StatusServiceUnavailable, want: "fail",
		},
		{
			name:   "не инициализирован",
			checks: map[string]ReadinessChecker{"keycloak": nil},
			status: http.StatusServiceUnavailable, want: "fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checks).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.status {
				t.Errorf("статус = %d, хотели %d", rec.Code, tt.status)
			}
			var resp healthReadyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.want {
				t.Errorf("итог = %q, хотели %q", resp.Status, tt.want)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("проверок в ответе %d, хотели %d", len(resp.Checks), len(tt.checks))
			}
		})
	}
}
