// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the wiring layer: it decides which URL patterns map to which
// handlers, which middleware runs where, and how the process starts and
// stops. Dependencies arrive ready-made in an *app.App; the server only
// connects them to HTTP and owns the background sweeper.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/streakme/internal/app"
	"github.com/sakif/streakme/internal/auth"
	"github.com/sakif/streakme/internal/handler"
	"github.com/sakif/streakme/internal/middleware"
	"github.com/sakif/streakme/internal/worker"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	app     *app.App
	logger  *slog.Logger
	events  *handler.EventsHandler
	sweeper *worker.Sweeper
}

// New builds the router over a. The server does not own a; close it
// after Start returns.
func New(a *app.App) *Server {
	s := &Server{
		router: chi.NewRouter(),
		app:    a,
		logger: a.Logger,
		events: handler.NewEventsHandler(a.Live, handler.DefaultKeepAlive, a.Logger),
		sweeper: worker.NewSweeper(a.Streaks, a.Dates,
			a.Config.SweepInterval, a.Logger.With(slog.String("component", "sweeper"))),
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz
//	POST   /auth/register | /auth/verify | /auth/login | /auth/logout
//	POST   /auth/password/forgot | /auth/password/reset
//	GET    /auth/github, /auth/github/callback          (when configured)
//	GET    /api/me
//	GET    /api/streaks                 POST /api/streaks
//	GET    /api/streaks/{id}            PATCH, DELETE /api/streaks/{id}
//	POST   /api/streaks/{id}/check-in   POST /api/streaks/{id}/break
//	GET    /api/streaks/{id}/days       GET  /api/streaks/{id}/badge
//	GET    /api/badges
//	GET    /api/streaks/events, /api/streaks/{id}/events, /api/badges/events  (SSE)
//
// MIDDLEWARE ORDER MATTERS. Global, in order: request id, real IP,
// request logging, panic recovery. Everything except the event streams
// also gets the configured request timeout.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	a := s.app
	authHandler := handler.NewAuthHandler(a.Auth, a.GitHub, a.Tokens.TTL(), s.logger)
	streakHandler := handler.NewStreakHandler(a.Streaks, a.Dates, s.logger)
	badgeHandler := handler.NewBadgeHandler(a.Badges, s.logger)

	timeout := a.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(timeout))
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/verify", authHandler.HandleVerify)
		r.Post("/login", authHandler.HandleLogin)
		r.With(auth.OptionalAuth(a.Tokens)).Post("/logout", authHandler.HandleLogout)
		r.Post("/password/forgot", authHandler.HandleForgotPassword)
		r.Post("/password/reset", authHandler.HandleResetPassword)
		if a.GitHub != nil {
			r.Get("/github", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(a.Tokens))

		r.Get("/streaks/events", s.events.HandleStreaks)
		r.Get("/streaks/{id}/events", s.events.HandleStreak)
		r.Get("/badges/events", s.events.HandleBadges)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(timeout))
			r.Get("/me", authHandler.HandleMe)

			r.Get("/streaks", streakHandler.HandleList)
			r.Post("/streaks", streakHandler.HandleCreate)
			r.Get("/streaks/{id}", streakHandler.HandleGet)
			r.Patch("/streaks/{id}", streakHandler.HandleUpdate)
			r.Delete("/streaks/{id}", streakHandler.HandleDelete)
			r.Post("/streaks/{id}/check-in", streakHandler.HandleCheckIn)
			r.Post("/streaks/{id}/break", streakHandler.HandleBreak)
			r.Get("/streaks/{id}/days", streakHandler.HandleDays)
			r.Get("/streaks/{id}/badge", badgeHandler.HandleGetForStreak)

			r.Get("/badges", badgeHandler.HandleList)
		})
	})
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections and end open event streams
//  2. Wait up to shutdownTimeout for in-flight requests
//  3. Stop the sweeper
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.app.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second, // event streams clear their own deadline
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(s.events.Shutdown)

	s.sweeper.Start()
	defer s.sweeper.Stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.app.Config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.app.Config.Port)),
			slog.String("driver", s.app.Config.DBDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
