package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cardrec/internal/adapters/email"
	"cardrec/internal/adapters/http/middleware"
	"cardrec/internal/adapters/http/perf"
	viewStore "cardrec/internal/adapters/storage/view"
	"cardrec/internal/application/orchestrators"
	"cardrec/internal/config"
)

// Backend is the set of backend calls the shell actions need.
type Backend interface {
	orchestrators.BackendForCheckSession
	orchestrators.BackendForLogin
	orchestrators.BackendForRegister
	orchestrators.BackendForLogout
	orchestrators.BackendForRecommend
}

// Deps holds everything the HTTP layer talks to.
type Deps struct {
	Views     viewStore.Store
	Backend   Backend
	Sender    email.Sender
	Collector *perf.Collector
	Keys      config.Keys
	Config    config.Config
}

// Global view store (set by NewMux)
var views viewStore.Store

// Global backend client (set by NewMux)
var backendAPI Backend

// Global email sender (set by NewMux)
var emailSender email.Sender

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// timeNow is a variable for testability.
var timeNow = time.Now

// NewMux wires HTTP handlers for the app. ctx bounds background work started
// for the mux, such as the rate limiter's sweeper.
func NewMux(ctx context.Context, d Deps) http.Handler {
	views = d.Views
	backendAPI = d.Backend
	emailSender = d.Sender
	perfCollector = d.Collector
	if emailSender == nil {
		emailSender = email.NewNoopSender()
	}

	cfg := d.Config
	if cfg.Backend.Timeout > 0 {
		staleLoadingAfter = cfg.Backend.Timeout + saveTimeout
	}
	limiter := middleware.NewRateLimiter(ctx, cfg.Security.RateLimit, cfg.Security.RateBurst)
	viewCookie := middleware.NewViewCookie(d.Keys.CookieHash, d.Keys.CookieBlock, cfg.Security.SecureCookies, cfg.Store.ViewTTL)

	r := chi.NewRouter()
	// Timing -> Recoverer -> SecurityHeaders -> RateLimit -> routes
	r.Use(middleware.Timing(d.Collector, 0))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RateLimit(limiter))

	r.Handle("/static/*", staticHandler())
	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.Debug {
		r.Get("/debug/perf", handlePerf)
	}

	// Browser routes: every request carries a view ID, every POST a CSRF token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.View(viewCookie))
		r.Use(middleware.CSRF(d.Keys.CSRF, cfg.Security.SecureCookies, nil))

		r.Get("/", handleShell)
		r.Get("/api/view", handleViewJSON)
		r.Post("/login", handleLogin)
		r.Post("/register", handleRegister)
		r.Post("/auth/view", handleAuthView)
		r.Post("/logout", handleLogout)
		r.Post("/recommend", handleRecommend)
		r.Post("/recommend/email", handleEmailRecommendation)
	})

	return r
}
