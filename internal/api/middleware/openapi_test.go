package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/flagadmin/internal/api/openapi"
)

func newTestValidator(t *testing.T) *RequestValidator {
	t.Helper()
	doc, err := openapi.Load(context.Background())
	if err != nil {
		t.Fatalf("openapi.Load() ошибка: %v", err)
	}
	v, err := NewRequestValidator(doc)
	if err != nil {
		t.Fatalf("NewRequestValidator() ошибка: %v", err)
	}
	return v
}

func TestRequestValidator(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{
			name:       "корректное создание группы",
			method:     http.MethodPost,
			path:       "/api/v1/groups",
			body:       `{"name":"developers","mappingsSSO":["kc-dev"],"rootRole":2,"users":[{"id":"u1"}]}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "rootRole строкой",
			method:     http.MethodPost,
			path:       "/api/v1/groups",
			body:       `{"name":"developers","rootRole":"admin"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "неизвестное поле",
			method:     http.MethodPut,
			path:       "/api/v1/groups/0b5c7e0e-5b44-4c38-9d0e-3f0b8f6ad1a1",
			body:       `{"name":"developers","owner":"bob"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "пустое тело",
			method:     http.MethodPost,
			path:       "/api/v1/groups",
			body:       "",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "roleId не число",
			method:     http.MethodPost,
			path:       "/api/v1/projects/web/groups/g1/roles/abc",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "корректный roleId",
			method:     http.MethodPost,
			path:       "/api/v1/projects/web/groups/g1/roles/4",
			wantStatus: http.StatusOK,
		},
		{
			name:       "limit больше максимума",
			method:     http.MethodGet,
			path:       "/api/v1/users?limit=5000",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "неизвестный тип события",
			method:     http.MethodGet,
			path:       "/api/v1/events?type=flag-created",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "внешние группы без списка",
			method:     http.MethodPost,
			path:       "/api/v1/users/u1/external-groups",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "путь вне контракта",
			method:     http.MethodGet,
			path:       "/health/live",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody string
			handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, _ := io.ReadAll(r.Body)
				gotBody = string(data)
				w.WriteHeader(http.StatusOK)
			}))

			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидался %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}

			if tt.wantStatus == http.StatusBadRequest {
				var resp struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("тело ошибки не JSON: %v", err)
				}
				if resp.Error.Code != "VALIDATION_ERROR" {
					t.Errorf("code = %s, ожидался VALIDATION_ERROR", resp.Error.Code)
				}
			}
			// Тело остаётся доступным обработчику после проверки
			if tt.wantStatus == http.StatusOK && tt.body != "" && gotBody != tt.body {
				t.Errorf("обработчик получил тело %q", gotBody)
			}
		})
	}
}
