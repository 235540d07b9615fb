package http

import (
	"context"
	"net/http"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/application"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handler is the HTTP adapter entrypoint for session use-cases.
type Handler struct {
	service *application.Service
	cookie  CookieConfig
	ready   func(ctx context.Context) error
	origins []string
	proxied bool
}

// Options tune transport concerns that the application layer does not see.
type Options struct {
	Cookie CookieConfig
	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready          func(ctx context.Context) error
	AllowedOrigins []string
	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers.
	TrustProxy bool
}

// NewHandler constructs an HTTP handler bound to application service.
func NewHandler(service *application.Service, opts Options) *Handler {
	cookie := opts.Cookie
	if cookie.Name == "" {
		cookie.Name = defaultRefreshCookieName
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = 7 * 24 * time.Hour
	}
	return &Handler{
		service: service,
		cookie:  cookie,
		ready:   opts.Ready,
		origins: opts.AllowedOrigins,
		proxied: opts.TrustProxy,
	}
}

// NewRouter registers the auth routes and middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	if handler.proxied {
		r.Use(middleware.RealIP)
	}
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   handler.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
	})
	r.Get("/swagger/", handler.swaggerUI)
	r.Get("/swagger/openapi.yaml", handler.swaggerSpec)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/token", handler.refresh)
		r.Post("/logout", handler.logout)
		r.Post("/password-reset", handler.passwordResetRequest)
		r.Post("/password-reset/reset", handler.passwordReset)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Get("/user", handler.getUser)
			r.Patch("/user", handler.updateUser)
			r.Get("/sessions", handler.listSessions)
			r.Delete("/sessions", handler.revokeAllSessions)
		})
	})

	return r
}
