package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Server serves the JSON-RPC API over HTTP.
type Server struct {
	handler   *Handler
	authToken string
	srv       *http.Server
}

// NewServer builds a server around the given handler. If authToken is
// non-empty, every request must carry it as a Bearer token.
func NewServer(handler *Handler, port int, authToken string) *Server {
	s := &Server{handler: handler, authToken: authToken}

	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.serveRPC)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving requests until the server is shut down.
func (s *Server) Start() error {
	log.Printf("[rpc] listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, errResponse(nil, CodeInvalidRequest, "POST required"))
		return
	}
	if s.authToken != "" {
		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, errResponse(nil, CodeUnauthorized, "unauthorized"))
			return
		}
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, "malformed JSON"))
		return
	}

	writeJSON(w, s.handler.Dispatch(req))
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[rpc] write response: %v", err)
	}
}
