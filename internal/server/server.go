// Пакет server — HTTP-сервер flag-admin с graceful shutdown.
// Без TLS: TLS termination выполняет ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/flagadmin/internal/api/handlers"
	"github.com/bigkaa/flagadmin/internal/api/middleware"
	"github.com/bigkaa/flagadmin/internal/config"
)

// Пути без JWT: probes и метрики опрашиваются Kubernetes и Prometheus напрямую,
// контракт API публичен.
var publicPrefixes = []string{"/health/", "/metrics", "/api/v1/openapi.yaml"}

// Server — HTTP-сервер flag-admin.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Options — компоненты, из которых собирается router.
type Options struct {
	API    *handlers.APIHandler
	Health *handlers.HealthHandler
	// OpenAPISpec отдаётся на GET /api/v1/openapi.yaml
	OpenAPISpec []byte
	// JWTAuth может быть nil (запуск без аутентификации в тестах)
	JWTAuth *middleware.JWTAuth
	// Validator может быть nil
	Validator *middleware.RequestValidator
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, opts),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает цепочку middleware и маршруты.
// Порядок: метрики, журнал запросов, JWT, валидация по OpenAPI.
func NewRouter(logger *slog.Logger, opts Options) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	if opts.JWTAuth != nil {
		router.Use(jwtAuthWithExclusions(opts.JWTAuth, publicPrefixes...))
	}
	if opts.Validator != nil {
		router.Use(opts.Validator.Middleware())
	}

	if opts.Health != nil {
		opts.Health.Routes(router)
	}
	if opts.API != nil {
		opts.API.Routes(router, opts.OpenAPISpec)
	}

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская пути
// с указанными префиксами.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает SIGINT или SIGTERM, затем выполняет graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
