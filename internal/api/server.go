package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/flatbeddb/flatbed/core/docstore"
	"github.com/flatbeddb/flatbed/internal/logging"
)

// Server serves the document store over HTTP.
type Server struct {
	store  *docstore.Store
	cfg    Config
	router *httprouter.Router
}

// NewServer wires routes onto the given document store.
func NewServer(store *docstore.Store, cfg Config) *Server {
	s := &Server{
		store:  store,
		cfg:    cfg,
		router: httprouter.New(),
	}

	s.router.GET("/health", s.handleHealth)
	s.router.POST("/v1/docs/*collection", s.handlePut)
	s.router.GET("/v1/docs/*collection", s.handleGet)
	s.router.PATCH("/v1/docs/*collection", s.handleUpdate)
	s.router.DELETE("/v1/docs/*collection", s.handleDelete)

	return s
}

// Handler returns the fully wrapped HTTP handler: request IDs, access
// logging, security headers, CORS, then authentication, then routing.
func (s *Server) Handler() http.Handler {
	h := AuthMiddleware(s.cfg.Auth, s.router)
	h = CORSMiddleware(s.cfg.CORS, h)
	h = SecurityHeadersMiddleware(h)
	return logging.CombinedMiddleware(h)
}

// ListenAndServe runs the server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.ServerStartup("api", "http", s.cfg.Addr, "db", s.cfg.DBPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
