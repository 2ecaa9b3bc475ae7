package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/metrics"
)

// RouterConfig wires middleware around the Server.
type RouterConfig struct {
	Auth AuthConfig
	// LoginPath enables the page gate when set.
	LoginPath string
	Logger    *zap.Logger
}

// NewRouter mounts the Server's handlers with the standard middleware stack.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(JSONRecoverer(log))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEvent(log))
	r.Use(metrics.Middleware())
	if cfg.LoginPath != "" {
		r.Use(PageGate(cfg.LoginPath))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", s.Info)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))
		r.Post("/bookmark/create", s.CreateBookmark)
		r.Get("/bookmark/search", s.SearchBookmarks)
		r.Post("/chat", s.Chat)
	})

	return r
}
