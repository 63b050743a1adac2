package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"FA_DB_HOST":                "localhost",
		"FA_DB_NAME":                "flagadmin",
		"FA_DB_USER":                "flagadmin",
		"FA_DB_PASSWORD":            "secret",
		"FA_KEYCLOAK_URL":           "https://keycloak.kryukov.lan/",
		"FA_KEYCLOAK_CLIENT_ID":     "flag-admin",
		"FA_KEYCLOAK_CLIENT_SECRET": "kc-secret",
	}
}

// clearEnvs сбрасывает обязательные переменные, унаследованные от окружения.
func clearEnvs() {
	for k := range minimalEnvs() {
		os.Unsetenv(k)
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8000 {
		t.Errorf("Port = %d, ожидается 8000", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.KeycloakURL != "https://keycloak.kryukov.lan" {
		t.Errorf("KeycloakURL = %q, trailing slash должен быть удалён", cfg.KeycloakURL)
	}
	if cfg.KeycloakRealm != "flagadmin" {
		t.Errorf("KeycloakRealm = %q, ожидается flagadmin", cfg.KeycloakRealm)
	}
	if !cfg.GroupSyncEnabled {
		t.Error("GroupSyncEnabled = false, ожидается true")
	}
	if cfg.GroupSyncInterval != 15*time.Minute {
		t.Errorf("GroupSyncInterval = %v, ожидается 15m", cfg.GroupSyncInterval)
	}
	if cfg.GroupSyncPageSize != 100 {
		t.Errorf("GroupSyncPageSize = %d, ожидается 100", cfg.GroupSyncPageSize)
	}
	if cfg.GroupSyncActor != "keycloak-sync" {
		t.Errorf("GroupSyncActor = %q, ожидается keycloak-sync", cfg.GroupSyncActor)
	}
	if cfg.RoleCacheSize != 64 || cfg.RoleCacheTTL != 5*time.Minute {
		t.Errorf("RoleCache = %d/%v, ожидается 64/5m", cfg.RoleCacheSize, cfg.RoleCacheTTL)
	}
	if cfg.JWTLeeway != 30*time.Second {
		t.Errorf("JWTLeeway = %v, ожидается 30s", cfg.JWTLeeway)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
	if len(cfg.RoleAdminGroups) != 1 || cfg.RoleAdminGroups[0] != "flagadmin-admins" {
		t.Errorf("RoleAdminGroups = %v, ожидается [flagadmin-admins]", cfg.RoleAdminGroups)
	}
}

func TestLoad_JWTAutoDerive(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	expectedIssuer := "https://keycloak.kryukov.lan/realms/flagadmin"
	if cfg.JWTIssuer != expectedIssuer {
		t.Errorf("JWTIssuer = %q, ожидается %q", cfg.JWTIssuer, expectedIssuer)
	}

	expectedJWKS := "https://keycloak.kryukov.lan/realms/flagadmin/protocol/openid-connect/certs"
	if cfg.JWTJWKSURL != expectedJWKS {
		t.Errorf("JWTJWKSURL = %q, ожидается %q", cfg.JWTJWKSURL, expectedJWKS)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["FA_PORT"] = "9090"
	envs["FA_LOG_LEVEL"] = "debug"
	envs["FA_LOG_FORMAT"] = "text"
	envs["FA_DB_SSL_MODE"] = "require"
	envs["FA_GROUP_SYNC_ENABLED"] = "false"
	envs["FA_GROUP_SYNC_INTERVAL"] = "5m"
	envs["FA_GROUP_SYNC_PAGE_SIZE"] = "250"
	envs["FA_GROUP_SYNC_ACTOR"] = "sso"
	envs["FA_ROLE_ADMIN_GROUPS"] = "admins, super-admins"
	envs["FA_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("DBSSLMode = %q, ожидается require", cfg.DBSSLMode)
	}
	if cfg.GroupSyncEnabled {
		t.Error("GroupSyncEnabled = true, ожидается false")
	}
	if cfg.GroupSyncInterval != 5*time.Minute {
		t.Errorf("GroupSyncInterval = %v, ожидается 5m", cfg.GroupSyncInterval)
	}
	if cfg.GroupSyncPageSize != 250 {
		t.Errorf("GroupSyncPageSize = %d, ожидается 250", cfg.GroupSyncPageSize)
	}
	if cfg.GroupSyncActor != "sso" {
		t.Errorf("GroupSyncActor = %q, ожидается sso", cfg.GroupSyncActor)
	}
	if len(cfg.RoleAdminGroups) != 2 || cfg.RoleAdminGroups[1] != "super-admins" {
		t.Errorf("RoleAdminGroups = %v, ожидается [admins super-admins]", cfg.RoleAdminGroups)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	requiredVars := []string{
		"FA_DB_HOST", "FA_DB_NAME", "FA_DB_USER", "FA_DB_PASSWORD",
		"FA_KEYCLOAK_URL", "FA_KEYCLOAK_CLIENT_ID", "FA_KEYCLOAK_CLIENT_SECRET",
	}

	for _, missing := range requiredVars {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, missing)
			clearEnvs()
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"порт не число", "FA_PORT", "abc"},
		{"порт вне диапазона", "FA_PORT", "70000"},
		{"неизвестный уровень логов", "FA_LOG_LEVEL", "trace"},
		{"неизвестный формат логов", "FA_LOG_FORMAT", "xml"},
		{"неизвестный sslmode", "FA_DB_SSL_MODE", "prefer"},
		{"некорректный интервал", "FA_GROUP_SYNC_INTERVAL", "5 minutes"},
		{"нулевой интервал", "FA_GROUP_SYNC_INTERVAL", "0s"},
		{"слишком большая страница", "FA_GROUP_SYNC_PAGE_SIZE", "5000"},
		{"некорректный bool", "FA_GROUP_SYNC_ENABLED", "maybe"},
		{"нулевой размер кэша ролей", "FA_ROLE_CACHE_SIZE", "0"},
		{"некорректный TTL кэша ролей", "FA_ROLE_CACHE_TTL", "1 hour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			clearEnvs()
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() не вернул ошибку для %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , b ,, c ", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		got := parseCSV(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("parseCSV(%q) = %v, ожидается %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseCSV(%q)[%d] = %q, ожидается %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5432, DBName: "flags", DBUser: "u", DBPassword: "p", DBSSLMode: "disable",
	}
	want := "host=db port=5432 dbname=flags user=u password=p sslmode=disable"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}
	if got := cfg.DatabaseURL(); got != "postgres://db:5432/flags" {
		t.Errorf("DatabaseURL() = %q", got)
	}
}
