// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package admin implements the token-gated admin facet: the login cookie
// flow, the dashboard, the stats endpoint and the live log stream.
package admin

import (
	"crypto/subtle"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/tenant"
	"github.com/stacklok/toolgate/pkg/bridge/workers"
	"github.com/stacklok/toolgate/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

// cookieName is the admin session cookie.
const cookieName = "adminSession"

// cookieMaxAge is how long an admin session lasts.
const cookieMaxAge = 24 * time.Hour

// Facet serves the admin surface. The session cookie value is derived from
// the admin token, so restarting the process (or rotating the token)
// invalidates every session.
type Facet struct {
	tenants    *tenant.Registry
	workers    *workers.Registry
	adminToken string
	publicURL  string
	startedAt  time.Time

	templates *template.Template
}

// NewFacet creates the admin facet.
func NewFacet(tr *tenant.Registry, wr *workers.Registry, adminToken, publicURL string) *Facet {
	return &Facet{
		tenants:    tr,
		workers:    wr,
		adminToken: adminToken,
		publicURL:  publicURL,
		startedAt:  time.Now(),
		templates:  template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
}

// cookieValue derives the expected session cookie value:
// the first 16 hex characters of SHA-256 of the admin token.
func (f *Facet) cookieValue() string {
	return bridge.TokenHash(f.adminToken)
}

// hasAdminCookie reports whether the request carries a valid admin session.
func (f *Facet) hasAdminCookie(r *http.Request) bool {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(f.cookieValue())) == 1
}

// RequireAdmin gates a handler behind the admin session cookie. Browsers
// are redirected to the login form; API calls get a JSON 401.
func (f *Facet) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.hasAdminCookie(r) {
			if wantsHTML(r) {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"admin session required","code":"ADMIN_AUTH_REQUIRED"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginForm renders the login page (GET /login).
func (f *Facet) LoginForm(w http.ResponseWriter, _ *http.Request) {
	f.renderLogin(w, "")
}

// Login handles the submitted login form (POST /login). The token
// comparison is constant-time; on success the session cookie is set and the
// browser is redirected to the dashboard.
func (f *Facet) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		f.renderLoginStatus(w, http.StatusBadRequest, "Malformed form submission.")
		return
	}

	submitted := r.PostFormValue("adminToken")
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(f.adminToken)) != 1 {
		logger.Warn("admin login rejected")
		f.renderLoginStatus(w, http.StatusForbidden, "Invalid admin token.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    f.cookieValue(),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	logger.Info("admin login accepted")
	http.Redirect(w, r, "/admin", http.StatusFound)
}

// Logout clears the session cookie (GET /logout).
func (f *Facet) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (f *Facet) renderLogin(w http.ResponseWriter, banner string) {
	f.renderLoginStatus(w, http.StatusOK, banner)
}

func (f *Facet) renderLoginStatus(w http.ResponseWriter, status int, banner string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := f.templates.ExecuteTemplate(w, "login.html", map[string]any{"Error": banner}); err != nil {
		logger.Errorf("rendering login page: %v", err)
	}
}

func wantsHTML(r *http.Request) bool {
	// The JSON endpoints under the admin gate all live below /api/ or
	// stream events; everything else is a browser page.
	switch r.Header.Get("Accept") {
	case "text/event-stream", "application/json":
		return false
	}
	return r.URL.Path == "/admin"
}
