// Package testutil provides shared test fixtures: a stub evaluation service
// implementing the wire contract, and a small HTTP request helper.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/TimurManjosov/goflagbag/internal/evaluation"
)

// EvalService is a canned evaluation service for tests. It serves the flags
// configured per environment key, optionally assigns a server-side visitor
// key, and records every request body it sees.
type EvalService struct {
	Server *httptest.Server

	mu        sync.Mutex
	flags     map[string]evaluation.Flags
	assignKey string
	bodies    []evaluation.RequestBody
}

// NewEvalService starts a stub service, closed automatically when the test
// ends.
func NewEvalService(t *testing.T) *EvalService {
	t.Helper()
	s := &EvalService{flags: make(map[string]evaluation.Flags)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *EvalService) handle(w http.ResponseWriter, r *http.Request) {
	envKey := strings.TrimPrefix(r.URL.Path, "/")

	var body evaluation.RequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.bodies = append(s.bodies, body)
	flags, ok := s.flags[envKey]
	assignKey := s.assignKey
	s.mu.Unlock()

	if !ok {
		http.Error(w, "unknown environment", http.StatusNotFound)
		return
	}

	resp := evaluation.ResponseBody{Flags: flags}
	if assignKey != "" {
		resp.Visitor = &evaluation.Visitor{Key: assignKey}
	} else if body.VisitorKey != "" {
		resp.Visitor = &evaluation.Visitor{Key: body.VisitorKey}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// URL returns the service base URL.
func (s *EvalService) URL() string { return s.Server.URL }

// SetFlags configures the flags served for an environment key.
func (s *EvalService) SetFlags(envKey string, flags evaluation.Flags) {
	s.mu.Lock()
	s.flags[envKey] = flags
	s.mu.Unlock()
}

// AssignVisitorKey makes every response carry the given server-assigned key
// instead of echoing the request's.
func (s *EvalService) AssignVisitorKey(key string) {
	s.mu.Lock()
	s.assignKey = key
	s.mu.Unlock()
}

// RequestCount returns how many evaluation requests were received.
func (s *EvalService) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

// LastBody returns the most recent request body, or false when none arrived.
func (s *EvalService) LastBody() (evaluation.RequestBody, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bodies) == 0 {
		return evaluation.RequestBody{}, false
	}
	return s.bodies[len(s.bodies)-1], true
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
