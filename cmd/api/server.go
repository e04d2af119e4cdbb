package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/lifecycle"
	"github.com/MariamAlaa-8/realstate-backend/notification/inbox"
	"github.com/MariamAlaa-8/realstate-backend/sale"
	"github.com/MariamAlaa-8/realstate-backend/settlement"
)

// Server exposes the registry over HTTP.
type Server struct {
	authService *auth.Service
	contracts   *lifecycle.Controller
	sales       *sale.Manager
	settlement  *settlement.Engine
	inbox       *inbox.Service

	logger  *slog.Logger
	metrics http.Handler
	// purgeAfter is the default idle period for the admin purge endpoint.
	purgeAfter time.Duration
}

// Routes builds the chi router. Everything under /api except account
// registration and activation requires a bearer token of an active account.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/activate", s.handleActivate)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/users/me", s.handleMe)

			r.Route("/contracts", func(r chi.Router) {
				r.Get("/", s.handleMyContracts)
				r.Post("/", s.handleSubmitContract)
				r.Get("/market", s.handleMarket)
				r.Get("/number/{number}", s.handleContractByNumber)
				r.Get("/{contractID}", s.handleContract)
				r.Post("/{contractID}/list", s.handleListForSale)
				r.Post("/{contractID}/sale", s.handleInitiateSale)
				r.Delete("/{contractID}/sale", s.handleCancelSale)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", s.handleMyTransactions)
				r.Get("/{transactionID}", s.handleTransaction)
				r.Post("/{transactionID}/pay", s.handlePay)
				r.Post("/{transactionID}/confirm", s.handleConfirm)
				r.Post("/{transactionID}/reject", s.handleRejectPayment)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.handleNotifications)
				r.Get("/unread-count", s.handleUnreadCount)
				r.Post("/read-all", s.handleMarkAllRead)
				r.Post("/{notificationID}/read", s.handleMarkRead)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/contracts/pending", s.handlePendingContracts)
				r.Post("/contracts/{contractID}/approve", s.handleApprove)
				r.Post("/contracts/{contractID}/reject", s.handleReject)
				r.Get("/notifications", s.handleAllNotifications)
				r.Post("/notifications", s.handleSendNotification)
				r.Delete("/notifications/{notificationID}", s.handleDeleteNotification)
				r.Post("/users/purge", s.handlePurgeUsers)
			})
		})
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	return <-errCh
}
