// client.go — клиент Keycloak Admin REST API (только чтение).
// Service account token получается через Client Credentials flow и переиспользуется
// до истечения (с запасом tokenRefreshMargin).
// Операции: ListUsers, CountUsers, GetUser, GetUserGroups, RealmInfo.
package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNotFound — ресурс отсутствует в Keycloak (HTTP 404).
var ErrNotFound = errors.New("ресурс Keycloak не найден")

// groupsPageSize — размер страницы /users/{id}/groups.
// Keycloak без max отдаёт не более 100 групп.
const groupsPageSize = 100

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flag_admin_keycloak_requests_total",
		Help: "Запросы к Keycloak Admin API",
	}, []string{"operation", "result"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flag_admin_keycloak_request_duration_seconds",
		Help:    "Длительность запросов к Keycloak Admin API",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Client — клиент Keycloak Admin REST API одного realm.
type Client struct {
	adminURL   string
	realm      string
	httpClient *http.Client
	tokens     *tokenSource
	logger     *slog.Logger
}

// New создаёт клиент Keycloak.
// httpClient может содержать TLS конфигурацию; nil — клиент по умолчанию с таймаутом 30s.
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	logger = logger.With(slog.String("component", "keycloak_client"))

	return &Client{
		adminURL:   fmt.Sprintf("%s/admin/realms/%s", baseURL, realm),
		realm:      realm,
		httpClient: httpClient,
		tokens: &tokenSource{
			endpoint:     fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", baseURL, realm),
			clientID:     clientID,
			clientSecret: clientSecret,
			httpClient:   httpClient,
			logger:       logger,
		},
		logger: logger,
	}
}

// getJSON выполняет авторизованный GET к Admin API и декодирует ответ.
// op — имя операции для метрик и текста ошибки.
func getJSON[T any](ctx context.Context, c *Client, op, path string) (T, error) {
	var result T

	start := time.Now()
	err := c.get(ctx, path, &result)
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		requestsTotal.WithLabelValues(op, "ok").Inc()
	case errors.Is(err, ErrNotFound):
		requestsTotal.WithLabelValues(op, "not_found").Inc()
	default:
		requestsTotal.WithLabelValues(op, "error").Inc()
	}
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("получение токена: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.adminURL+path, nil)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("Keycloak API вернул статус %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("декодирование ответа Keycloak: %w", err)
	}
	return nil
}

// ListUsers возвращает страницу пользователей realm.
// query — строка поиска (по username, email, firstName, lastName); пустая — все.
func (c *Client) ListUsers(ctx context.Context, query string, first, max int) ([]KeycloakUser, error) {
	params := url.Values{
		"first": {strconv.Itoa(first)},
		"max":   {strconv.Itoa(max)},
	}
	if query != "" {
		params.Set("search", query)
	}
	return getJSON[[]KeycloakUser](ctx, c, "ListUsers", "/users?"+params.Encode())
}

// CountUsers возвращает количество пользователей в realm.
func (c *Client) CountUsers(ctx context.Context) (int, error) {
	return getJSON[int](ctx, c, "CountUsers", "/users/count")
}

// GetUser возвращает пользователя по Keycloak ID.
func (c *Client) GetUser(ctx context.Context, id string) (*KeycloakUser, error) {
	user, err := getJSON[KeycloakUser](ctx, c, "GetUser", "/users/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserGroups возвращает все группы пользователя, запрашивая их страницами.
func (c *Client) GetUserGroups(ctx context.Context, userID string) ([]KeycloakGroup, error) {
	base := "/users/" + url.PathEscape(userID) + "/groups"
	groups := make([]KeycloakGroup, 0)

	for first := 0; ; first += groupsPageSize {
		page, err := getJSON[[]KeycloakGroup](ctx, c, "GetUserGroups",
			fmt.Sprintf("%s?first=%d&max=%d", base, first, groupsPageSize))
		if err != nil {
			return nil, err
		}
		groups = append(groups, page...)
		if len(page) < groupsPageSize {
			return groups, nil
		}
	}
}

// RealmInfo возвращает информацию о realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	realm, err := getJSON[RealmRepresentation](ctx, c, "RealmInfo", "")
	if err != nil {
		return nil, err
	}
	return &realm, nil
}

// CheckReady проверяет доступность realm. Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	realm, err := c.RealmInfo(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}
	if !realm.Enabled {
		return "degraded", fmt.Sprintf("Realm %s отключён", realm.Realm)
	}
	return "ok", fmt.Sprintf("Realm %s доступен", realm.Realm)
}
