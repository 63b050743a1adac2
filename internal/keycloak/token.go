package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenRefreshMargin — токен обновляется, если до истечения осталось меньше.
const tokenRefreshMargin = 30 * time.Second

// tokenSource выдаёт service account token (Client Credentials flow).
// Параллельные вызовы при истёкшем токене выполняют один запрос.
type tokenSource struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Token возвращает действующий access token.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Until(ts.expiresAt) > tokenRefreshMargin {
		return ts.token, nil
	}

	resp, err := ts.request(ctx)
	if err != nil {
		return "", err
	}
	ts.token = resp.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)

	ts.logger.Debug("Keycloak токен обновлён", slog.Time("expires_at", ts.expiresAt))
	return ts.token, nil
}

func (ts *tokenSource) request(ctx context.Context) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Keycloak вернул статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("Keycloak вернул пустой access_token")
	}
	return &token, nil
}
