// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package worker implements the execution role: load the local node's
// master list, associate with each by retrying a tracked STATUS(UP)
// send until acknowledged, then run an execution loop that resolves
// each incoming task unit's processor through the envelope registry
// and returns its result.
package worker

import (
	"context"
	"fmt"
	"net"
	"time"

	clustercontext "github.com/gridwork/cluster/pkg/context"

	"github.com/gridwork/cluster/internal/envelope"
	"github.com/gridwork/cluster/internal/job"
	"github.com/gridwork/cluster/internal/messenger"
	"github.com/gridwork/cluster/internal/protocol"
	"github.com/gridwork/cluster/pkg/config"
	clustererrors "github.com/gridwork/cluster/pkg/errors"
	"github.com/gridwork/cluster/pkg/logging"
	"github.com/gridwork/cluster/pkg/metrics"
	"github.com/gridwork/cluster/pkg/retry"
)

// associationRetryDelay is how long the association loop waits between
// a failed STATUS send and the next attempt.
const associationRetryDelay = 10 * time.Second

// ackWaitTimeout bounds how long a single association attempt waits
// for its STATUS message to be acknowledged before retrying.
const ackWaitTimeout = 5 * time.Second

// Worker runs the association handshake with a set of masters and
// executes task units it is handed.
type Worker struct {
	msgr     *messenger.Messenger
	registry *envelope.Registry
	hostname string
	log      logging.Logger
	coll     metrics.Collector
	timeouts *clustercontext.TimeoutConfig
}

// Option configures a Worker at construction.
type Option func(*Worker)

// WithLogger overrides the worker's logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// WithMetrics overrides the worker's metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(w *Worker) { w.coll = c }
}

// New creates a Worker identified as hostname, sending and receiving
// through msgr and resolving processor names against registry.
func New(msgr *messenger.Messenger, registry *envelope.Registry, hostname string, opts ...Option) *Worker {
	timeouts := clustercontext.DefaultTimeoutConfig()
	timeouts.Send = ackWaitTimeout

	w := &Worker{
		msgr:     msgr,
		registry: registry,
		hostname: hostname,
		log:      logging.NoOpLogger{},
		coll:     metrics.NoOpCollector{},
		timeouts: timeouts,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Associate registers every master entry as a send destination and
// retries a tracked STATUS(UP) to each until it is acknowledged or ctx
// is cancelled. A master only registers an unseen sender as a worker
// on a STATUS carrying UP, so the handshake must report that state.
func (w *Worker) Associate(ctx context.Context, masters []config.MasterEntry) error {
	if len(masters) == 0 {
		return fmt.Errorf("worker: no masters configured")
	}

	backoff := retry.NewConstantBackoff(associationRetryDelay, 0)

	for _, master := range masters {
		addr := &net.UDPAddr{IP: net.ParseIP(master.IP), Port: master.Port}
		w.msgr.RegisterDestination(master.Hostname, addr)

		master := master
		err := retryForever(ctx, backoff, func() error {
			return w.associateOnce(ctx, master.Hostname)
		})
		if err != nil {
			return fmt.Errorf("worker: associating with %s: %w", master.Hostname, err)
		}
	}
	return nil
}

func (w *Worker) associateOnce(ctx context.Context, masterHostname string) error {
	tracker, err := w.msgr.SendStatus(job.NodeUp, masterHostname, true)
	if err != nil {
		return err
	}
	defer tracker.Release()

	waitCtx, cancel := clustercontext.WithTimeout(ctx, clustercontext.OpSend, w.timeouts)
	defer cancel()

	if err := tracker.WaitAcked(waitCtx); err != nil {
		return clustercontext.WrapContextError(err, "associate:"+masterHostname, w.timeouts.Send)
	}

	w.log.Info("associated with master", "master", masterHostname)
	return nil
}

// retryForever retries fn with backoff's cadence until it succeeds or
// ctx is cancelled, treating a MaxAttempts-exhausted backoff as "try
// again anyway" since association must eventually succeed.
func retryForever(ctx context.Context, backoff *retry.ConstantBackoff, fn func() error) error {
	attempt := 0
	for {
		if err := fn(); err == nil {
			return nil
		}

		delay, ok := backoff.NextDelay(attempt)
		if !ok {
			delay = backoff.Delay
		}
		attempt++

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run executes incoming task units until ctx is cancelled, resolving
// each unit's processor through the registry and returning its result
// to the sender.
func (w *Worker) Run(ctx context.Context) error {
	recvCtx, cancel := clustercontext.WithTimeout(ctx, clustercontext.OpReceive, w.timeouts)
	defer cancel()

	for {
		msg, err := w.msgr.Receive(recvCtx)
		if err != nil {
			return err
		}
		if msg.Type != protocol.TypeTaskUnit {
			w.log.Warn("worker: unexpected message type", "type", msg.Type.String())
			continue
		}
		w.handleTaskUnit(msg)
	}
}

func (w *Worker) handleTaskUnit(msg *messenger.InboundMessage) {
	tu, err := envelope.UnmarshalTaskUnit(msg.Data)
	if err != nil {
		w.log.Warn("dropping malformed task unit", "error", err.Error())
		return
	}

	processor, err := w.registry.Processor(tu.ProcessorName)
	if err != nil {
		w.log.Warn("no processor registered", "processor", tu.ProcessorName, "task_unit_id", tu.ID)
		processor = func(string) (interface{}, error) {
			return nil, clustererrors.NewClusterError(clustererrors.ErrorCodeProcessorFailed, "no such processor")
		}
	}

	tu.Run(processor)
	w.log.Debug("ran task unit", "task_unit_id", tu.ID, "state", string(tu.State))

	hostname := workerKeyFromAddr(msg.From)
	w.msgr.RegisterDestination(hostname, msg.From)
	if _, err := w.msgr.SendTaskUnitResult(tu, hostname, false); err != nil {
		w.log.Warn("failed to return task unit result", "task_unit_id", tu.ID, "error", err.Error())
	}
}

func workerKeyFromAddr(addr *net.UDPAddr) string {
	return fmt.Sprintf("%s:%d", addr.IP.String(), addr.Port)
}
