package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/userdir-be/internal/api/handlers"
	"github.com/isdelr/userdir-be/internal/auth"
	"github.com/isdelr/userdir-be/internal/ratelimit"
	"github.com/isdelr/userdir-be/internal/services"
	"github.com/isdelr/userdir-be/internal/websocket"
)

const maxBodyBytes = 1 << 20

// Options configures the router.
type Options struct {
	AdminToken     string
	AllowedOrigins []string
	// StaticDir is served with an index.html fallback when it exists.
	StaticDir string
	// RegisterLimiter throttles registrations; nil disables it.
	RegisterLimiter ratelimit.Limiter
}

// NewRouter creates and configures a new Chi router.
func NewRouter(opts Options, hub *websocket.Hub, userService services.UserServiceProvider, eventService services.EventServiceProvider) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders...)

	allowCredentials := true
	for _, origin := range opts.AllowedOrigins {
		if origin == "*" {
			// Browsers refuse credentials with a wildcard origin.
			allowCredentials = false
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.AdminTokenHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	userHandler := handlers.NewUserHandler(userService)
	eventHandler := handlers.NewEventHandler(eventService)
	wsHandler := handlers.NewWebSocketHandler(hub)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodyBytes))

		r.Get("/health", healthHandler.Get)
		r.With(ratelimit.Middleware(opts.RegisterLimiter)).Post("/register", userHandler.Register)

		// Admin endpoints
		r.Group(func(r chi.Router) {
			r.Use(auth.AdminMiddleware(opts.AdminToken))
			r.Get("/users", userHandler.List)
			r.Get("/users/stream", wsHandler.Serve)
			r.Get("/events", eventHandler.GetRecent)
		})
	})

	if static := handlers.NewStaticHandler(opts.StaticDir); static != nil {
		log.Info().Str("dir", opts.StaticDir).Msg("Serving static frontend")
		r.Get("/*", static.ServeHTTP)
	}

	return r
}

var securityHeaders = []func(http.Handler) http.Handler{
	middleware.SetHeader("X-Content-Type-Options", "nosniff"),
	middleware.SetHeader("X-Frame-Options", "SAMEORIGIN"),
	middleware.SetHeader("Referrer-Policy", "no-referrer"),
	middleware.SetHeader("X-DNS-Prefetch-Control", "off"),
	middleware.SetHeader("Cross-Origin-Opener-Policy", "same-origin"),
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
