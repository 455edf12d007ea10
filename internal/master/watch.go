// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package master

import (
	"context"
	"fmt"

	"github.com/gridwork/cluster/pkg/watch"
)

// jobStateSnapshot returns "job:<job_id>" -> combined job state and one
// "task:<task_unit_id>" -> unit state per task unit, the keyed snapshot
// a watch.Poller diffs between ticks.
func (m *Master) jobStateSnapshot(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]string, len(m.jobs))
	for id, j := range m.jobs {
		state := "RUNNING"
		if j.PendingCount <= 0 {
			state = "DONE"
		}
		snapshot[fmt.Sprintf("job:%s", id)] = state

		for unitID, tu := range j.TaskUnits {
			snapshot[fmt.Sprintf("task:%s", unitID)] = string(tu.State)
		}
	}
	return snapshot, nil
}

// Watch implements pkg/streaming.EventSource by wrapping a watch.Poller
// around the job table's keyed snapshot, so admin WebSocket clients see
// a "new"/"state_change"/"removed" event stream instead of polling.
func (m *Master) Watch(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error) {
	poller := watch.NewPoller(m.jobStateSnapshot)
	return poller.Watch(ctx, opts)
}
