// Точка входа flag-admin — административный backend групп и ролей feature-flag сервиса.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт Keycloak-клиент, сервисный слой и API handlers,
// запускает фоновую синхронизацию групп, topologymetrics
// и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/flagadmin/internal/api/handlers"
	"github.com/bigkaa/flagadmin/internal/api/middleware"
	"github.com/bigkaa/flagadmin/internal/api/openapi"
	"github.com/bigkaa/flagadmin/internal/config"
	"github.com/bigkaa/flagadmin/internal/database"
	"github.com/bigkaa/flagadmin/internal/keycloak"
	"github.com/bigkaa/flagadmin/internal/repository"
	"github.com/bigkaa/flagadmin/internal/server"
	"github.com/bigkaa/flagadmin/internal/service"
)

func main() {
	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("flag-admin запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FA_DEPHEALTH_GROUP") == "" {
		logger.Warn("FA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Миграции БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// *sql.DB поверх пула для topologymetrics: проверка идёт через те же соединения
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Keycloak Admin API клиент
	httpClient, err := middleware.HTTPClient(cfg.CACertPath, 30*time.Second)
	if err != nil {
		logger.Error("Ошибка загрузки CA-сертификата",
			slog.String("path", cfg.CACertPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClient,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 6. Repositories
	groupRepo := repository.NewGroupRepository(pool)
	accountRepo := repository.NewAccountRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	roleRepo := service.NewCachedRoleRepository(
		repository.NewRoleRepository(pool), cfg.RoleCacheSize, cfg.RoleCacheTTL,
	)
	syncStateRepo := repository.NewSyncStateRepository(pool)

	// 7. Services
	groupSvc := service.NewGroupService(groupRepo, accountRepo, eventRepo, roleRepo, logger)
	groupSyncSvc := service.NewExternalGroupSyncService(
		kcClient, groupSvc, accountRepo, syncStateRepo,
		cfg.GroupSyncActor, cfg.GroupSyncPageSize, cfg.GroupSyncInterval,
		logger,
	)
	idpSvc := service.NewIDPService(
		kcClient, syncStateRepo, groupSyncSvc,
		cfg.KeycloakURL, cfg.KeycloakRealm,
		logger,
	)
	accountSvc := service.NewAccountService(accountRepo, eventRepo, logger)

	// 8. OpenAPI-контракт и валидатор запросов
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.NewRequestValidator(doc)
	if err != nil {
		logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.CACertPath,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.RoleReadonlyGroups,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 10. Фоновая синхронизация групп
	if cfg.GroupSyncEnabled {
		groupSyncSvc.Start(ctx)
	} else {
		logger.Info("Периодическая синхронизация групп отключена (FA_GROUP_SYNC_ENABLED=false)")
	}

	// 11. topologymetrics: PostgreSQL и Keycloak
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "flag-admin",
		Group:           cfg.DephealthGroup,
		PgConnURL:       cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, pgDB, logger, nil)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	}

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, server.Options{
		API:         handlers.NewAPIHandler(groupSvc, idpSvc, accountSvc, logger),
		Health:      handlers.NewHealthHandler(database.NewReadinessChecker(pool), kcClient),
		OpenAPISpec: openapi.Spec,
		JWTAuth:     jwtAuth,
		Validator:   validator,
	})
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	groupSyncSvc.Stop()

	logger.Info("flag-admin остановлен")
}
