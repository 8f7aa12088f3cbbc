package http

import (
	"net/http"

	"github.com/campus-identity/internal/config"
	"github.com/campus-identity/internal/domain"
	"github.com/campus-identity/internal/transport/http/handler"
	appmiddleware "github.com/campus-identity/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewCredentialRateLimiter allows 5 requests/second with a burst of 10 per
// client on the public credential endpoints.
func NewCredentialRateLimiter() *appmiddleware.RateLimiter {
	return appmiddleware.NewRateLimiter(rate.Limit(5), 10)
}

// NewRouter builds and returns the application router. When deps.RateLimiter
// is nil a default one is created and stored back on deps; closing it stays
// with whoever owns deps.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if deps.RateLimiter == nil {
		deps.RateLimiter = NewCredentialRateLimiter()
	}

	healthH := handler.NewHealthHandler()
	resetH := handler.NewPasswordResetHandler(deps.Reset, deps.ResetTokens)
	signupH := handler.NewSignupHandler(deps.Accounts)
	sessionH := handler.NewSessionHandler(deps.Sessions)
	dirH := handler.NewDirectoryHandler(deps.Directory)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.Limit)
			r.Post("/password-reset/initiate", resetH.Initiate)
			r.Post("/password-reset/verify", resetH.Verify)
			r.Post("/password-reset/verify-code", resetH.VerifyCode)
			r.Post("/password-reset/set-password", resetH.SetPassword)
			r.Post("/signup", signupH.Signup)
			r.Post("/sessions/login", sessionH.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))

			r.Get("/me", sessionH.Me)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))
				r.Get("/directory/{loginId}", dirH.Get)
			})
		})
	})

	return r
}
