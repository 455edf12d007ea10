// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package master implements the coordinator role: it accepts jobs,
// splits them into task units via the envelope registry, schedules
// each unit onto the least-loaded known worker, and reacts to STATUS
// and TaskUnitResult messages arriving over the messenger to track
// worker liveness and drive jobs to completion.
package master

import (
	"context"
	"fmt"
	"net"
	"sync"

	clustercontext "github.com/gridwork/cluster/pkg/context"

	"github.com/gridwork/cluster/internal/envelope"
	"github.com/gridwork/cluster/internal/job"
	"github.com/gridwork/cluster/internal/messenger"
	"github.com/gridwork/cluster/internal/protocol"
	"github.com/gridwork/cluster/internal/scheduler"
	clustererrors "github.com/gridwork/cluster/pkg/errors"
	"github.com/gridwork/cluster/pkg/logging"
	"github.com/gridwork/cluster/pkg/metrics"
)

// workerInfo is what the master knows about one associated worker.
type workerInfo struct {
	index    int
	hostname string
	state    job.NodeState
}

// Master owns the job table, the worker table, and the scheduler, and
// drives both from messages arriving over a Messenger.
type Master struct {
	msgr     *messenger.Messenger
	sched    *scheduler.MinMakespan
	registry *envelope.Registry
	log      logging.Logger
	coll     metrics.Collector

	mu            sync.RWMutex
	jobs          map[string]*job.Job
	unitJob       map[string]string
	workers       map[string]*workerInfo
	workerByIndex map[int]string

	wg sync.WaitGroup
}

// Option configures a Master at construction.
type Option func(*Master)

// WithLogger overrides the master's logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Master) { m.log = l }
}

// WithMetrics overrides the master's metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(m *Master) { m.coll = c }
}

// New creates a Master that sends and receives through msgr, resolving
// processor/splitter/combiner names against registry.
func New(msgr *messenger.Messenger, registry *envelope.Registry, opts ...Option) *Master {
	m := &Master{
		msgr:          msgr,
		sched:         scheduler.New(),
		registry:      registry,
		log:           logging.NoOpLogger{},
		coll:          metrics.NoOpCollector{},
		jobs:          make(map[string]*job.Job),
		unitJob:       make(map[string]string),
		workers:       make(map[string]*workerInfo),
		workerByIndex: make(map[int]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SubmitJob splits j using its registered splitter, records its units,
// and dispatches each to the least-loaded worker. It fails with
// ErrNoWorkers if no worker has associated yet.
func (m *Master) SubmitJob(j *job.Job) error {
	splitter, err := m.registry.Splitter(j.SplitterName)
	if err != nil {
		return fmt.Errorf("master: submit %s: %w", j.ID, err)
	}

	units := splitter.Split(j.InputData, j.ProcessorName)

	m.mu.Lock()
	m.jobs[j.ID] = j
	for _, tu := range units {
		tu.JobID = j.ID
		j.AddTaskUnit(tu)
		m.unitJob[tu.ID] = j.ID
	}
	m.mu.Unlock()

	m.log.Info("job submitted", "job_id", j.ID, "units", len(units))

	for _, tu := range units {
		if err := m.dispatch(tu); err != nil {
			return err
		}
	}
	return nil
}

// dispatch assigns tu to the least-loaded worker and sends it.
func (m *Master) dispatch(tu *job.TaskUnit) error {
	workerIdx, err := m.sched.Schedule(tu.ID, tu.Size)
	if err != nil {
		return clustererrors.NewNoWorkersError(tu.JobID)
	}

	m.mu.RLock()
	hostname := m.workerByIndex[workerIdx]
	m.mu.RUnlock()

	tu.State = job.StatePending
	if _, err := m.msgr.SendTaskUnit(tu, hostname, false); err != nil {
		return fmt.Errorf("master: dispatch %s to %s: %w", tu.ID, hostname, err)
	}

	m.log.Debug("dispatched task unit", "task_unit_id", tu.ID, "worker", hostname)
	return nil
}

// Serve receives and routes messages until ctx is cancelled.
func (m *Master) Serve(ctx context.Context) error {
	recvCtx, cancel := clustercontext.WithTimeout(ctx, clustercontext.OpReceive, clustercontext.DefaultTimeoutConfig())
	defer cancel()

	for {
		msg, err := m.msgr.Receive(recvCtx)
		if err != nil {
			return err
		}
		m.handle(msg)
	}
}

func (m *Master) handle(msg *messenger.InboundMessage) {
	switch msg.Type {
	case protocol.TypeStatus:
		m.handleStatus(msg)
	case protocol.TypeTaskUnitResult:
		m.handleResult(msg)
	case protocol.TypeJob:
		m.handleJob(msg)
	default:
		m.log.Warn("master: unhandled message type", "type", msg.Type.String(), "from", msg.From.String())
	}
}

func (m *Master) handleStatus(msg *messenger.InboundMessage) {
	state, err := envelope.UnmarshalStatus(msg.Data)
	if err != nil {
		m.log.Warn("dropping malformed status", "error", err.Error(), "from", msg.From.String())
		return
	}

	hostname := workerKey(msg.From)

	m.mu.Lock()
	info, exists := m.workers[hostname]
	switch {
	case exists:
		info.state = state
	case state == job.NodeUp:
		idx := m.sched.AddMachine(1)
		info = &workerInfo{index: idx, hostname: hostname, state: state}
		m.workers[hostname] = info
		m.workerByIndex[idx] = hostname
		m.msgr.RegisterDestination(hostname, msg.From)
	}
	registered := !exists && state == job.NodeUp
	m.mu.Unlock()

	switch {
	case registered:
		m.log.Info("worker associated", "worker", hostname, "state", state.String())
	case !exists:
		m.log.Warn("dropping status from unassociated sender", "worker", hostname, "state", state.String())
	}
}

func (m *Master) handleJob(msg *messenger.InboundMessage) {
	j, err := envelope.UnmarshalJob(msg.Data)
	if err != nil {
		m.log.Warn("dropping malformed job", "error", err.Error(), "from", msg.From.String())
		return
	}
	if err := m.SubmitJob(j); err != nil {
		m.log.Warn("failed to submit received job", "job_id", j.ID, "error", err.Error())
	}
}

func (m *Master) handleResult(msg *messenger.InboundMessage) {
	id, jobID, state, result, err := envelope.UnmarshalTaskUnitResult(msg.Data)
	if err != nil {
		m.log.Warn("dropping malformed task unit result", "error", err.Error(), "from", msg.From.String())
		return
	}

	m.mu.Lock()
	j, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("result for unknown job", "job_id", jobID, "task_unit_id", id)
		return
	}

	done, recorded := j.RecordResult(id, state, result)
	tu := j.TaskUnits[id]
	m.mu.Unlock()

	if !recorded {
		m.log.Warn("result for unknown task unit", "job_id", jobID, "task_unit_id", id)
		return
	}

	if state == job.StateFailed && tu.RetriesRemaining > 0 {
		if err := m.dispatch(tu); err != nil {
			m.log.Warn("failed to reschedule task unit", "task_unit_id", id, "error", err.Error())
		}
		return
	}

	if done {
		m.finalizeJob(j)
	}
}

// finalizeJob runs the job's combiner over every completed unit's
// result and records the combined artifact.
func (m *Master) finalizeJob(j *job.Job) {
	combiner, err := m.registry.NewCombiner(j.CombinerName)
	if err != nil {
		m.log.Warn("no combiner for completed job", "job_id", j.ID, "error", err.Error())
		return
	}

	m.mu.Lock()
	for _, tu := range j.TaskUnits {
		if tu.State == job.StateCompleted {
			combiner.AddResult(tu.Result)
		}
	}
	m.mu.Unlock()

	result, err := combiner.Combine()
	if err != nil {
		m.log.Warn("combine failed", "job_id", j.ID, "error", err.Error())
		return
	}

	m.mu.Lock()
	j.FinalResult = result
	m.mu.Unlock()

	m.log.Info("job completed", "job_id", j.ID, "result", result)
}

// Job returns the job with the given id, if known.
func (m *Master) Job(id string) (*job.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	return j, ok
}

// Jobs returns every known job.
func (m *Master) Jobs() []*job.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

func workerKey(addr *net.UDPAddr) string {
	return fmt.Sprintf("%s:%d", addr.IP.String(), addr.Port)
}
