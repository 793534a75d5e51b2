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

// callbackPath is the fixed path the identity provider redirects back to.
const callbackPath = "/auth/callback/"

// CallbackServer is the local HTTP server standing in for the browser
// origin during login: it receives the identity provider's redirect and
// hands the raw callback URL to the flow for consumption.
type CallbackServer struct {
	server     *http.Server
	port       int
	resultChan chan string
	errorChan  chan error
	mu         sync.Mutex
	running    bool
}

// NewCallbackServer creates a callback server for the given port.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		port:       port,
		resultChan: make(chan string, 1),
		errorChan:  make(chan error, 1),
	}
}

// Start begins listening for the login callback.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("callback server is already running")
	}
	if !s.isPortAvailable() {
		return fmt.Errorf("port %d is already in use", s.port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, s.handleCallback)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errorChan <- fmt.Errorf("callback server failed to start: %w", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
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

// WaitForCallback blocks until the provider redirects back, the server
// fails, or the timeout elapses. It returns the raw callback URL.
func (s *CallbackServer) WaitForCallback(timeout time.Duration) (string, error) {
	select {
	case callbackURL := <-s.resultChan:
		return callbackURL, nil
	case err := <-s.errorChan:
		return "", err
	case <-time.After(timeout):
		return "", fmt.Errorf("timeout waiting for login callback")
	}
}

// handleCallback captures the redirect. Navigations without a code or error
// parameter are not login callbacks and are ignored.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("code") == "" && query.Get("error") == "" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, callbackPageHTML)

	select {
	case s.resultChan <- r.URL.String():
	default:
	}
}

func (s *CallbackServer) isPortAvailable() bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

const callbackPageHTML = `<!DOCTYPE html>
<html>
<head><title>JustLog</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>Sign-in complete</h2>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`
