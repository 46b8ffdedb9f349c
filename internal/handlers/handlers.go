package handlers

import (
	"net/http"
	"time"

	"devfeed/internal/config"
	"devfeed/internal/content"
	"devfeed/internal/engine"
	appmw "devfeed/internal/middleware"
	"devfeed/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds all server dependencies, including the engine
type Server struct {
	Engine         *engine.Engine
	Generator      *content.Generator
	Auth           *appmw.Authenticator
	AILimiter      *appmw.UserRateLimiter
	Metrics        *utils.MetricsCollector
	StoreName      string
	Feed           config.FeedConfig
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	cfg *config.Config,
	eng *engine.Engine,
	generator *content.Generator,
	metrics *utils.MetricsCollector,
	storeName string,
) *Server {
	return &Server{
		Engine:         eng,
		Generator:      generator,
		Auth:           appmw.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		AILimiter:      appmw.NewUserRateLimiter(cfg.AI.RatePerMinute),
		Metrics:        metrics,
		StoreName:      storeName,
		Feed:           cfg.Feed,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appmw.CORSMiddleware(appmw.DefaultCORSConfig(s.AllowedOrigins)))

	r.Get("/health", s.HandleHealth())
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/status", s.HandleStatus())
		r.Get("/users/{username}", s.HandleGetUser())
		r.Get("/posts/{postID}/comments", s.HandleListComments())

		r.Group(func(r chi.Router) {
			r.Use(s.Auth.Authenticate)

			r.Post("/auth/create-profile", s.HandleCreateProfile())
			r.Get("/auth/profile", s.HandleGetProfile())

			r.Put("/users/profile", s.HandleUpdateProfile())
			r.Post("/users/{username}/follow", s.HandleFollow())
			r.Get("/users/{username}/following", s.HandleFollowing())

			r.Post("/posts", s.HandleCreatePost())
			r.Get("/posts/feed", s.HandleFeed())
			r.Post("/posts/{postID}/like", s.HandleToggleLike())
			r.Post("/posts/{postID}/comments", s.HandleAddComment())

			r.Post("/reputation/retier", s.HandleRetier())

			r.Route("/ai", func(r chi.Router) {
				r.Use(s.AILimiter.Limit)
				r.Post("/generate-post", s.HandleGeneratePost())
				r.Post("/generate-hashtags", s.HandleGenerateHashtags())
				r.Post("/suggest-image-prompts", s.HandleSuggestImagePrompts())
			})
		})
	})
	return r
}
