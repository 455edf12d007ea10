// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package master

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gridwork/cluster/internal/job"
	"github.com/gridwork/cluster/pkg/logging"
	"github.com/gridwork/cluster/pkg/metrics"
	"github.com/gridwork/cluster/pkg/middleware"
	"github.com/gridwork/cluster/pkg/streaming"
)

// jobSummary is the admin-facing rendering of a job's progress.
type jobSummary struct {
	ID           string `json:"id"`
	PendingCount int    `json:"pending_count"`
	UnitCount    int    `json:"unit_count"`
	FinalResult  string `json:"final_result,omitempty"`
}

func summarize(j *job.Job) jobSummary {
	return jobSummary{ID: j.ID, PendingCount: j.PendingCount, UnitCount: len(j.TaskUnits), FinalResult: j.FinalResult}
}

// Server exposes the master's job table over HTTP and pushes job/task-
// unit state changes to admin WebSocket clients.
type Server struct {
	master *Master
	log    logging.Logger
	coll   metrics.Collector
	router *mux.Router
}

// ServerOption configures a Server at construction.
type ServerOption func(*Server)

// WithServerMetrics records every admin request/response through coll
// and exposes its aggregate via GET /metrics.
func WithServerMetrics(coll metrics.Collector) ServerOption {
	return func(s *Server) { s.coll = coll }
}

// NewServer builds the admin HTTP surface over master.
func NewServer(master *Master, log logging.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = logging.NoOpLogger{}
	}

	s := &Server{master: master, log: log, coll: metrics.NoOpCollector{}, router: mux.NewRouter()}
	for _, opt := range opts {
		opt(s)
	}

	chain := middleware.Chain(
		middleware.WithRequestID(),
		middleware.WithRecover(log),
		middleware.WithLogging(log),
		middleware.WithMetrics(s.coll),
	)

	ws := streaming.NewWebSocketServer(master)

	s.router.Handle("/jobs", chain(http.HandlerFunc(s.handleListJobs))).Methods(http.MethodGet)
	s.router.Handle("/jobs", chain(http.HandlerFunc(s.handleSubmitJob))).Methods(http.MethodPost)
	s.router.Handle("/jobs/{id}", chain(http.HandlerFunc(s.handleGetJob))).Methods(http.MethodGet)
	s.router.Handle("/jobs/{id}/report", chain(http.HandlerFunc(s.handleJobReport))).Methods(http.MethodGet)
	s.router.Handle("/metrics", chain(http.HandlerFunc(s.handleMetrics))).Methods(http.MethodGet)
	s.router.Handle("/metrics", chain(http.HandlerFunc(s.handleResetMetrics))).Methods(http.MethodDelete)
	s.router.HandleFunc("/ws", ws.HandleWebSocket)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.master.Jobs()
	summaries := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, summarize(j))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, ok := s.master.Job(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summarize(j))
}

// handleJobReport renders a human-readable progress report, title-
// casing each task unit's state for display.
func (s *Server) handleJobReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, ok := s.master.Job(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	titleCaser := cases.Title(language.English)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Job %s: %d/%d units pending\n", j.ID, j.PendingCount, len(j.TaskUnits))
	for unitID, tu := range j.TaskUnits {
		fmt.Fprintf(w, "  %s: %s\n", unitID, titleCaser.String(string(tu.State)))
	}
	if j.FinalResult != "" {
		fmt.Fprintf(w, "Result: %s\n", j.FinalResult)
	}
}

// handleMetrics reports the admin surface's own request/response
// counters, the same Stats shape the messenger's metrics feed into.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coll.GetStats())
}

// handleResetMetrics zeroes every counter, for operators restarting a
// measurement window without restarting the master.
func (s *Server) handleResetMetrics(w http.ResponseWriter, r *http.Request) {
	s.coll.Reset()
	w.WriteHeader(http.StatusNoContent)
}

type submitJobRequest struct {
	InputData string `json:"input_data"`
	Processor string `json:"processor"`
	Splitter  string `json:"splitter"`
	Combiner  string `json:"combiner"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Splitter == "" {
		req.Splitter = "lines"
	}
	if req.Combiner == "" {
		req.Combiner = "sum"
	}

	j := job.NewJob(req.InputData, req.Processor, req.Splitter, req.Combiner)
	if err := s.master.SubmitJob(j); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, summarize(j))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
