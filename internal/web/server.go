// Package web exposes the engine over HTTP: plan status JSON, an SSE
// execution stream, Prometheus metrics, and the manual ATH override and
// resume controls.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	engine "github.com/bitage/bitage/internal"
	"github.com/bitage/bitage/internal/domain"
)

const streamPollInterval = 2 * time.Second

type executionReader interface {
	RecordsAfter(index uint64) ([]domain.ExecutionRecord, uint64, error)
}

// Server serves plan status for UI display without side effects.
type Server struct {
	addr    string
	engine  *engine.Engine
	records executionReader
	logger  *zap.Logger
}

// NewServer creates a status server.
func NewServer(logger *zap.Logger, addr string, eng *engine.Engine, records executionReader) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, engine: eng, records: records, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/plans", s.handlePlans)
	mux.HandleFunc("/plans/", s.handlePlan)
	mux.HandleFunc("/executions/stream", s.handleExecutionStream)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	type planMeta struct {
		ID      string              `json:"id"`
		Name    string              `json:"name"`
		Pair    string              `json:"pair"`
		Kind    domain.StrategyKind `json:"kind"`
		Enabled bool                `json:"enabled"`
	}

	plans := s.engine.Plans()
	out := make([]planMeta, 0, len(plans))
	for _, p := range plans {
		out = append(out, planMeta{
			ID:      p.ID,
			Name:    p.Name,
			Pair:    p.Pair.String(),
			Kind:    p.Kind,
			Enabled: p.Enabled,
		})
	}
	writeJSON(w, out)
}

// handlePlan routes /plans/{id}, /plans/{id}/status, /plans/{id}/ath and
// /plans/{id}/resume.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/plans/"), "/")
	planID, op := rest, ""
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		planID, op = rest[:idx], rest[idx+1:]
	}
	if planID == "" {
		http.NotFound(w, r)
		return
	}

	switch op {
	case "", "status":
		status, err := s.engine.Status(planID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, status)
	case "ath":
		s.handleOverrideATH(w, r, planID)
	case "resume":
		s.handleResume(w, r, planID)
	default:
		http.NotFound(w, r)
	}
}

// handleOverrideATH records a manual all-time high for the plan's pair.
func (s *Server) handleOverrideATH(w http.ResponseWriter, r *http.Request, planID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		High string `json:"high"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	high, err := decimal.NewFromString(body.High)
	if err != nil {
		http.Error(w, "high must be a decimal string", http.StatusBadRequest)
		return
	}

	state, err := s.engine.OverrideATH(planID, high, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, state)
}

// handleResume clears a plan's pause set by an invalid state detection.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, planID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.engine.Resume(planID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecutionStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat so proxies keep the connection open
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(streamPollInterval)
	defer pollTicker.Stop()

	var lastIndex uint64
	send := func() error {
		recs, current, err := s.records.RecordsAfter(lastIndex)
		if err != nil {
			return err
		}
		lastIndex = current
		for i := range recs {
			payload, err := json.Marshal(&recs[i])
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return err
			}
		}
		if len(recs) > 0 {
			flusher.Flush()
		}
		return nil
	}

	if err := send(); err != nil {
		s.logger.Debug("execution stream ended", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-pollTicker.C:
			if err := send(); err != nil {
				s.logger.Debug("execution stream ended", zap.Error(err))
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
