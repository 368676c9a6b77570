// Пакет server — HTTP-сервер Member Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/acbfrsa/member-module/internal/api/handlers"
	"github.com/bigkaa/acbfrsa/member-module/internal/api/middleware"
	"github.com/bigkaa/acbfrsa/member-module/internal/api/openapi"
	"github.com/bigkaa/acbfrsa/member-module/internal/config"
	"github.com/bigkaa/acbfrsa/member-module/internal/domain/rbac"
)

// Server — HTTP-сервер Member Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth).
// validate — валидация запросов по OpenAPI (может быть nil).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	validate func(http.Handler) http.Handler,
) *Server {
	var auth func(http.Handler) http.Handler
	if jwtAuth != nil {
		auth = jwtAuth.Middleware()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, handler, auth, validate),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SSE-потоки не завершаются сами, Shutdown закрывает их явно
	srv.RegisterOnShutdown(handler.CloseStreams)

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API.
// Health и metrics проверяются Kubernetes напрямую, без API Gateway и без JWT.
// Страница принятия приглашения и форма заявки на членство публичны.
func NewRouter(
	logger *slog.Logger,
	h *handlers.APIHandler,
	auth func(http.Handler) http.Handler,
	validate func(http.Handler) http.Handler,
) chi.Router {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		if validate != nil {
			r.Use(validate)
		}

		// Публичные маршруты
		r.Get("/openapi.yaml", openapi.SpecHandler())
		r.Get("/invitations/{token}", h.GetInvitationByToken)
		r.Post("/invitations/accept", h.AcceptInvitation)
		r.Post("/membership-applications", h.SubmitMembershipApplication)

		// Любой аутентифицированный пользователь
		r.Group(func(r chi.Router) {
			if auth != nil {
				r.Use(auth)
			}

			r.Get("/me", h.GetMe)
			r.Post("/me/profile", h.CreateMyProfile)
			r.Get("/me/events", h.MyProfileEvents)

			// Легаси-заявки: владелец проверяется по email в сервисе
			r.Post("/admin-applications", h.ApplyForAdmin)
			r.Get("/admin-applications", h.ListAdminApplications)
			r.Post("/admin-applications/{id}/approve", h.ApproveAdminApplication)
			r.Post("/admin-applications/{id}/deny", h.DenyAdminApplication)
			r.Get("/approved-admins", h.ListApprovedAdmins)
			r.Delete("/approved-admins/{email}", h.RemoveAdmin)

			// admin и выше
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(rbac.RoleAdmin))

				r.Get("/invitations", h.ListInvitations)
				r.Post("/invitations", h.CreateInvitation)
				r.Get("/invitations/pending", h.PendingInvitations)
				r.Get("/invitations/events", h.InvitationEvents)
				r.Post("/invitations/{id}/cancel", h.CancelInvitation)

				r.Get("/members/pending", h.PendingMembers)
				r.Get("/members/events", h.MemberEvents)
				r.Post("/members/{id}/approve", h.ApproveMember)
				r.Post("/members/{id}/reject", h.RejectMember)

				r.Get("/membership-applications", h.ListMembershipApplications)

				r.Get("/users/{id}", h.GetUser)
				r.Put("/users/{id}/role", h.UpdateUserRole)
			})

			r.With(middleware.RequireRole(rbac.RoleSuperAdmin)).Get("/idp/status", h.GetIdpStatus)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
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

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
