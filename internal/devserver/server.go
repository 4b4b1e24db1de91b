package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagbag/internal/evaluation"
	"github.com/TimurManjosov/goflagbag/internal/telemetry"
)

// Server serves the evaluation wire contract from the current snapshot.
type Server struct {
	log            zerolog.Logger
	snap           *Holder
	rateLimitPerIP int
}

// NewServer creates a server. rateLimitPerIP of 0 disables rate limiting.
func NewServer(log zerolog.Logger, snap *Holder, rateLimitPerIP int) *Server {
	return &Server{log: log, snap: snap, rateLimitPerIP: rateLimitPerIP}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(telemetry.Middleware)
	if s.rateLimitPerIP > 0 {
		r.Use(httprate.LimitByIP(s.rateLimitPerIP, time.Minute))
	}

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// rules snapshot (ETag)
	r.Get("/v1/rules", func(w http.ResponseWriter, req *http.Request) {
		snap := s.snap.Load()
		if inm := req.Header.Get("If-None-Match"); inm != "" && inm == snap.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", snap.ETag)
		writeJSON(w, http.StatusOK, snap)
	})

	// the contract the SDK talks to
	r.Post("/{envKey}", s.handleEvaluate)

	return r
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	envKey := chi.URLParam(r, "envKey")

	var body evaluation.RequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	flags, ok := s.snap.Load().Environments[envKey]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown environment")
		return
	}

	visitorKey := body.VisitorKey
	if visitorKey == "" {
		visitorKey = uuid.NewString()
	}

	s.log.Debug().
		Str("env_key", envKey).
		Str("visitor_key", visitorKey).
		Bool("static", body.Static).
		Msg("evaluation served")

	writeJSON(w, http.StatusOK, evaluation.ResponseBody{
		Flags:   flags,
		Visitor: &evaluation.Visitor{Key: visitorKey},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
	})
}
