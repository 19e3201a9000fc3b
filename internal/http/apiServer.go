package http

import (
	"context"
	"log"
	"net/http"
	"sync"
)

// APIServer wraps an http.Server around the backend handler so the
// demo binary can start and stop it cleanly.
type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(handler http.Handler, addr string) *APIServer {
	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
