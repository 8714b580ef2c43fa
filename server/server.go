// Package server exposes the settlement engine over HTTP. Callers
// authenticate by attaching an actor address and signature as request
// headers; the engine's verifier decides whether the pair is acceptable.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/susuprotocol/rosca/metrics"
)

const (
	// HeaderActor carries the address the caller claims to act as.
	HeaderActor = "X-Rosca-Actor"
	// HeaderSignature carries the hex-encoded proof over the actor address.
	HeaderSignature = "X-Rosca-Signature"
)

type Server struct {
	log     *slog.Logger
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	return s, nil
}

// Handler returns the root handler, mostly useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestIDMiddleware)
	s.router.Use(s.logMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderActor, HeaderSignature},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleHealthz)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())

	limiter := NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(metrics.Middleware)
		r.Use(RateLimitMiddleware(limiter))

		r.Route("/protocol", func(r chi.Router) {
			r.Post("/initialize", s.handleInitialize)
			r.Post("/fee", s.handleSetProtocolFee)
			r.Post("/heartbeat", s.handleAdminAction)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/emergency-withdraw", s.handleEmergencyWithdraw)
			r.Get("/", s.handleGetProtocol)
			r.Get("/balances/{user}", s.handleUserBalance)
		})

		r.Route("/circles", func(r chi.Router) {
			r.Post("/", s.handleCreateCircle)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCircle)
				r.Get("/queue", s.handleGetPayoutQueue)
				r.Get("/cycle", s.handleGetCycleInfo)
				r.Get("/payouts", s.handleGetPayoutStatus)

				r.Post("/join", s.handleJoinCircle)
				r.Post("/finalize", s.handleFinalizeCircle)
				r.Post("/contribute", s.handleContribute)
				r.Post("/payout", s.handleProcessPayout)
				r.Post("/rollover", s.handleRolloverGroup)
				r.Post("/insurance", s.handleTriggerInsurance)
				r.Post("/kick", s.handleKickMember)
				r.Post("/swap", s.handleSwapMember)
				r.Post("/swap-admin", s.handleSwapMemberByAdmin)
				r.Post("/eject", s.handleEjectMember)
				r.Post("/withdraw", s.handleWithdrawProRata)

				r.Post("/dissolution/propose", s.handleProposeDissolution)
				r.Post("/dissolution/vote", s.handleVoteDissolve)
				r.Post("/penalty/propose", s.handleProposePenaltyChange)
				r.Post("/penalty/vote", s.handleVotePenaltyChange)
			})
		})
	})
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("server: http server error causing shutdown", "error", err, "address", s.cfg.ListenAddr)
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write health response", "error", err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write json response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		metrics.OperationErrorsTotal.WithLabelValues(rc.RoutePattern()).Inc()
	}
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
		s.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", ww.Header().Get("X-Request-Id"),
		)
	})
}
