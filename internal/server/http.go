package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const shutdownTimeout = 5 * time.Second

type streamableHandler struct {
	http.Handler
}

func (streamableHandler) Routes() []string { return []string{"/mcp"} }

// HealthHandler answers with the server name and version.
func HealthHandler(version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "name": Name, "version": version})
	})
}

// NewHTTPHandler serves srv over the streamable HTTP transport at /mcp, plus /health.
func NewHTTPHandler(srv *mcp.Server, version string, logger *log.Logger) http.Handler {
	router := NewRouter()
	router.Use(RequestLogger(logger))
	router.Handle(http.MethodGet, "/health", HealthHandler(version))
	router.Mount(streamableHandler{mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)})
	return router
}

// ListenAndServe serves handler on addr until ctx ends, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	httpServer := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", "addr", addr, "endpoint", "/mcp")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	}
}
