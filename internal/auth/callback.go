package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CallbackResult contains the outcome of the authorization-code redirect:
// either a code and state on success, or the provider's error string.
type CallbackResult struct {
	// Code is the authorization code received from the identity provider.
	Code string
	// State echoes the state parameter sent in the authorization request.
	State string
	// Error contains the provider's error code if the flow failed.
	Error string
}

// CallbackServer is the local HTTP listener that captures the hosted UI's
// redirect back to the CLI during login. It accepts exactly one callback
// per Start.
type CallbackServer struct {
	server     *http.Server
	port       int
	resultChan chan *CallbackResult
	errorChan  chan error

	mu      sync.Mutex
	addr    string
	running bool
}

// NewCallbackServer creates a callback server listening on the given
// localhost port.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		port:       port,
		resultChan: make(chan *CallbackResult, 1),
		errorChan:  make(chan error, 1),
	}
}

// Start begins listening for the redirect. It fails when the port is
// already taken, which usually means another login is in progress.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("callback server is already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", s.port))
	if err != nil {
		return fmt.Errorf("port %d unavailable for login callback: %w", s.port, err)
	}

	s.addr = listener.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	go func() {
		if errServe := s.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			s.errorChan <- fmt.Errorf("callback server failed: %w", errServe)
		}
	}()

	return nil
}

// Addr returns the listen address once started.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts down the callback server.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	log.Debug("stopping login callback server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	return err
}

// WaitForResult blocks until the redirect arrives, the server fails, or the
// context is done.
func (s *CallbackServer) WaitForResult(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result := &CallbackResult{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.Error != "" || result.Code == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, "<html><body><h2>Login failed</h2><p>You can close this window and retry from the terminal.</p></body></html>")
	} else {
		_, _ = fmt.Fprint(w, "<html><body><h2>Login complete</h2><p>You can close this window and return to the terminal.</p></body></html>")
	}

	select {
	case s.resultChan <- result:
	default:
		// A second callback for the same flow is dropped.
		log.Warn("duplicate login callback ignored")
	}
}
