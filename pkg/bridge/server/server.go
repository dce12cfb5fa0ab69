// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the bridge: it wires the registries, the session
// layer, the invocation router, the description generator and the admin
// facet into one HTTP surface and owns the process lifecycle.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/admin"
	"github.com/stacklok/toolgate/pkg/bridge/auth"
	"github.com/stacklok/toolgate/pkg/bridge/config"
	"github.com/stacklok/toolgate/pkg/bridge/describe"
	"github.com/stacklok/toolgate/pkg/bridge/router"
	"github.com/stacklok/toolgate/pkg/bridge/session"
	"github.com/stacklok/toolgate/pkg/bridge/tenant"
	"github.com/stacklok/toolgate/pkg/bridge/workers"
	"github.com/stacklok/toolgate/pkg/logger"
	"github.com/stacklok/toolgate/pkg/telemetry"
)

const (
	// readHeaderTimeout prevents slowloris attacks by limiting time to
	// read request headers.
	readHeaderTimeout = 10 * time.Second

	// idleTimeout is the keep-alive idle limit. Write timeouts stay
	// unset: tool invocations block up to their own deadline and the
	// admin log stream is open-ended.
	idleTimeout = 120 * time.Second
)

// Server is the assembled bridge.
type Server struct {
	cfg     *config.Config
	version string

	tenants   *tenant.Registry
	workers   *workers.Registry
	sessions  *session.Manager
	router    *router.DefaultRouter
	auth      *auth.Authenticator
	generator *describe.Generator
	facet     *admin.Facet

	httpSrv *http.Server
}

// New builds a server from validated configuration. Construction fails only
// on configuration problems (ErrInvalidConfig).
func New(cfg *config.Config, version string) (*Server, error) {
	adminToken := cfg.Server.Admin.AdminToken
	if adminToken == "" {
		adminToken = randomToken()
		// Shown once so an operator can log in; never logged again.
		logger.Infof("no admin token configured, generated one for this run: %s", adminToken)
	}

	tenants, err := tenant.NewRegistry(cfg.Server.APISpaces, adminToken)
	if err != nil {
		return nil, err
	}

	workerReg := workers.NewRegistry()
	sessions := session.NewManager(tenants, workerReg)
	rt := router.NewDefaultRouter(tenants, workerReg, sessions)
	sessions.SetInvocationSink(rt)

	publicURL := cfg.Server.HTTP.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	}

	generator := describe.NewGenerator(workerReg, version, publicURL)
	sessions.OnChange(generator.Invalidate)

	s := &Server{
		cfg:       cfg,
		version:   version,
		tenants:   tenants,
		workers:   workerReg,
		sessions:  sessions,
		router:    rt,
		auth:      auth.NewAuthenticator(tenants, adminToken),
		generator: generator,
		facet:     admin.NewFacet(tenants, workerReg, adminToken, publicURL),
	}

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	return s, nil
}

// routes builds the full HTTP surface.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		corsMiddleware,
		recoverMiddleware,
	)

	r.Get("/health", s.health)
	r.Handle("/metrics", telemetry.Handler())

	// Worker session endpoint.
	r.Get("/ws", s.sessions.HandleUpgrade)

	// Tenant API.
	r.Route("/api/tools", func(r chi.Router) {
		r.Use(s.auth.RequireTenant)
		r.Post("/{name}", s.invokeTool)
	})

	// Public description routes keyed by tenant hash.
	r.Get("/openapi/{tenantHash}/json", s.description("json"))
	r.Get("/openapi/{tenantHash}/yaml", s.description("yaml"))

	// Admin facet.
	r.Get("/login", s.facet.LoginForm)
	r.Post("/login", s.facet.Login)
	r.Get("/logout", s.facet.Logout)
	r.Group(func(r chi.Router) {
		r.Use(s.facet.RequireAdmin)
		r.Get("/admin", s.facet.Dashboard)
		r.Get("/api/admin/stats", s.facet.Stats)
		r.Get("/logs/events", s.facet.LogEvents)
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully:
// the listener stops accepting, all worker sessions close with a normal
// close reason, and every pending invocation fails with ErrServerShutdown.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpSrv.Addr, err)
	}
	logger.Infof("toolgate %s serving on http://%s (%d tenants)",
		s.version, listener.Addr(), len(s.tenants.List()))

	s.httpSrv.BaseContext = func(net.Listener) context.Context { return ctx }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

func (s *Server) shutdown() {
	logger.Info("shutting down")

	// In-flight handlers get a short grace window to finish their error
	// responses before the listener is force-closed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGrace)
	defer cancel()

	s.sessions.Shutdown(shutdownCtx, bridge.ErrServerShutdown)
	s.router.Drain()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("forcing listener close: %v", err)
		_ = s.httpSrv.Close()
	}
}

// randomToken generates a 64-hex-character token, comfortably above the
// configured minimum length.
func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logger.Panicf("reading random bytes: %v", err)
	}
	return hex.EncodeToString(buf)
}
