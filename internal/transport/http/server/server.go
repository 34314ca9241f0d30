package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server is the admin HTTP listener.
type Server struct {
	addr string
	srv  *http.Server
	lg   zerolog.Logger
}

func NewServer(addr string, h http.Handler, lg zerolog.Logger) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		lg: lg.With().Str("component", "admin_http").Logger(),
	}
}

// Start blocks until the server stops. A cancelled ctx triggers a shutdown.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	s.lg.Info().Str("addr", s.addr).Msg("admin http listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	s.lg.Info().Msg("admin http shutting down")
	return s.srv.Shutdown(ctx)
}
