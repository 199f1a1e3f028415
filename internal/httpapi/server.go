package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/CZERTAINLY/Atelier/internal/model"
)

// Server wraps http.Server with the configured timeouts.
type Server struct {
	server *http.Server
}

func NewServer(cfg model.HTTP, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout.Std(30 * time.Second),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout.Std(60 * time.Second),
			IdleTimeout:       cfg.IdleTimeout.Std(60 * time.Second),
		},
	}
}

// Serve accepts connections on ln until Shutdown. A graceful stop returns nil.
func (s *Server) Serve(ln net.Listener) error {
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
