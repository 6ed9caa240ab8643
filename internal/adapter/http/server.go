package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// maxNotificationBytes caps POST /invoke bodies.
const maxNotificationBytes = 1 << 20

// Invoker handles one object-created notification.
type Invoker interface {
	HandleNotification(ctx context.Context, payload []byte) (domain.Ack, error)
}

// Server exposes health, readiness, metrics, and invocation HTTP endpoints.
type Server struct {
	httpServer *http.Server
	invoker    Invoker
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// POST /invoke routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, invoker Invoker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Conversions run inside the /invoke request.
			WriteTimeout: 15 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		invoker: invoker,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /invoke", s.handleInvoke)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return
	}

	ack, err := s.invoker.HandleNotification(r.Context(), payload)
	if err != nil {
		s.logger.Error("invocation failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, ack)
}
