package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"storm-importance/internal/imagery"

	"github.com/rs/zerolog/log"
)

// Server exposes a Scorer over HTTP for RemoteScorer clients.
type Server struct {
	scorer       Scorer
	scoreTimeout time.Duration
	server       *http.Server
}

// ModelInfo describes the served model.
type ModelInfo struct {
	Predictors []string `json:"predictor_names,omitempty"`
	Rows       int      `json:"num_rows,omitempty"`
	Columns    int      `json:"num_columns,omitempty"`
}

// NewServer creates an HTTP server for scorer listening on port.
func NewServer(scorer Scorer, port int, scoreTimeout time.Duration) *Server {
	if scoreTimeout <= 0 {
		scoreTimeout = 30 * time.Second
	}
	s := &Server{
		scorer:       scorer,
		scoreTimeout: scoreTimeout,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      scoreTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routes served by s.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/score", s.handleScore)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/model/info", s.handleModelInfo)
	return mux
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting scoring server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, scoreResp{Error: "method not allowed"})
		return
	}

	start := time.Now()

	var batch imagery.ExampleSet
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, scoreResp{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if err := batch.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, scoreResp{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.scoreTimeout)
	defer cancel()

	probs, err := s.scorer.Score(ctx, &batch)
	if err != nil {
		log.Error().Err(err).Msg("scoring failed")
		writeJSON(w, http.StatusInternalServerError, scoreResp{Error: fmt.Sprintf("scoring failed: %v", err)})
		return
	}

	log.Debug().
		Int("examples", batch.NumExamples()).
		Dur("latency", time.Since(start)).
		Msg("Scored batch")
	writeJSON(w, http.StatusOK, scoreResp{Probabilities: probs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info := ModelInfo{}
	if names, ok := PredictorNamesOf(s.scorer); ok {
		info.Predictors = names
	}
	if m, ok := s.scorer.(*LogisticModel); ok {
		info.Rows, info.Columns = m.Rows, m.Columns
	}
	writeJSON(w, http.StatusOK, info)
}
