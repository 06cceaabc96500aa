package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/loupe-re/loupe/loupe/decomp/v1/decompv1connect"
)

// Handler returns the HTTP handler serving the decompiler service and a
// plain /health endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	path, handler := decompv1connect.NewDecompilerServiceHandler(s)
	mux.Handle(path, handler)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK\n")
	})

	// h2c lets gRPC clients reach the engine over cleartext HTTP/2.
	return h2c.NewHandler(mux, &http2.Server{})
}

// HTTPServer hosts a Server on a TCP listener.
type HTTPServer struct {
	httpServer *http.Server
	listener   net.Listener
	logger     zerolog.Logger
}

// Listen binds addr and prepares the HTTP server. Use ":0" style addresses
// to pick a free port and read it back with Addr.
func (s *Server) Listen(addr string) (*HTTPServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &HTTPServer{
		httpServer: &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		listener: lis,
		logger:   s.logger,
	}, nil
}

// Addr returns the bound listener address.
func (h *HTTPServer) Addr() string {
	return h.listener.Addr().String()
}

// Serve blocks serving requests until Shutdown is called.
func (h *HTTPServer) Serve() error {
	h.logger.Info().Str("addr", h.Addr()).Msg("Decompiler engine listening")
	if err := h.httpServer.Serve(h.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("engine server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	h.logger.Info().Msg("Stopping decompiler engine")
	return h.httpServer.Shutdown(ctx)
}
