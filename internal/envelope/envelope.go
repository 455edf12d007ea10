// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gridwork/cluster/internal/job"
	clustererrors "github.com/gridwork/cluster/pkg/errors"
)

// JobClass and the other *Class constants name the "class" field of
// each typed envelope, matching original_source/serialize.py's
// self-describing {class, attrs} shape.
const (
	JobClass            = "cluster.Job"
	TaskUnitClass        = "cluster.TaskUnit"
	TaskUnitResultClass  = "cluster.TaskUnitResult"
)

// JobAttrs are the attrs carried by a Job envelope.
type JobAttrs struct {
	JobID     string      `json:"job_id"`
	InputData string      `json:"input_data"`
	Processor string      `json:"processor"`
	Splitter  string      `json:"splitter"`
	Combiner  string      `json:"combiner"`
}

// JobEnvelope is the self-describing wire shape for a Job.
type JobEnvelope struct {
	Class string   `json:"class"`
	Attrs JobAttrs `json:"attrs"`
}

// MarshalJob serializes j into a JobEnvelope. job_id is taken from j.ID
// if already computed; otherwise the receiver recomputes and validates.
func MarshalJob(j *job.Job) ([]byte, error) {
	env := JobEnvelope{
		Class: JobClass,
		Attrs: JobAttrs{
			JobID:     j.ID,
			InputData: j.InputData,
			Processor: j.ProcessorName,
			Splitter:  j.SplitterName,
			Combiner:  j.CombinerName,
		},
	}
	return json.Marshal(env)
}

// UnmarshalJob deserializes a JobEnvelope and recomputes job_id,
// rejecting an envelope whose declared id does not match its content.
func UnmarshalJob(data []byte) (*job.Job, error) {
	var env JobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("envelope: malformed job envelope: %w", err)
	}

	j := job.NewJob(env.Attrs.InputData, env.Attrs.Processor, env.Attrs.Splitter, env.Attrs.Combiner)
	if env.Attrs.JobID != "" && env.Attrs.JobID != j.ID {
		return nil, fmt.Errorf("envelope: job_id mismatch: declared %q, computed %q", env.Attrs.JobID, j.ID)
	}

	return j, nil
}

// TaskUnitAttrs are the attrs carried by a TaskUnit envelope sent
// master to worker.
type TaskUnitAttrs struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id"`
	Data      string `json:"data"`
	Retries   int    `json:"retries"`
	Processor string `json:"processor"`
}

// TaskUnitEnvelope is the self-describing wire shape for a TaskUnit
// sent master→worker, carrying only an explicit attribute allow-list.
type TaskUnitEnvelope struct {
	Class string        `json:"class"`
	Attrs TaskUnitAttrs `json:"attrs"`
}

// MarshalTaskUnit serializes tu into a TaskUnitEnvelope using the
// master→worker attribute allow-list {id, job_id, data, retries,
// processor}.
func MarshalTaskUnit(tu *job.TaskUnit) ([]byte, error) {
	env := TaskUnitEnvelope{
		Class: TaskUnitClass,
		Attrs: TaskUnitAttrs{
			ID:        tu.ID,
			JobID:     tu.JobID,
			Data:      tu.Data,
			Retries:   tu.RetriesRemaining,
			Processor: tu.ProcessorName,
		},
	}
	return json.Marshal(env)
}

// UnmarshalTaskUnit deserializes a TaskUnitEnvelope into a TaskUnit in
// the PENDING state, matching the worker's receipt-time transition.
func UnmarshalTaskUnit(data []byte) (*job.TaskUnit, error) {
	var env TaskUnitEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("envelope: malformed task unit envelope: %w", err)
	}

	tu := &job.TaskUnit{
		ID:               env.Attrs.ID,
		JobID:            env.Attrs.JobID,
		Data:             env.Attrs.Data,
		ProcessorName:    env.Attrs.Processor,
		RetriesRemaining: env.Attrs.Retries,
		State:            job.StatePending,
	}
	return tu, nil
}

// TaskUnitResultAttrs are the attrs carried by a TaskUnit result
// envelope sent worker to master.
type TaskUnitResultAttrs struct {
	ID     string      `json:"id"`
	JobID  string      `json:"job_id"`
	State  string      `json:"state"`
	Result interface{} `json:"result"`
}

// TaskUnitResultEnvelope is the self-describing wire shape for a
// completed (or failed/bailed) TaskUnit sent worker→master.
type TaskUnitResultEnvelope struct {
	Class string              `json:"class"`
	Attrs TaskUnitResultAttrs `json:"attrs"`
}

// MarshalTaskUnitResult serializes tu's result-bearing subset for
// return to the master.
func MarshalTaskUnitResult(tu *job.TaskUnit) ([]byte, error) {
	env := TaskUnitResultEnvelope{
		Class: TaskUnitResultClass,
		Attrs: TaskUnitResultAttrs{
			ID:     tu.ID,
			JobID:  tu.JobID,
			State:  string(tu.State),
			Result: tu.Result,
		},
	}
	return json.Marshal(env)
}

// UnmarshalTaskUnitResult deserializes a TaskUnitResultEnvelope.
func UnmarshalTaskUnitResult(data []byte) (id, jobID string, state job.State, result interface{}, err error) {
	var env TaskUnitResultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", "", "", nil, fmt.Errorf("envelope: malformed task unit result envelope: %w", err)
	}
	return env.Attrs.ID, env.Attrs.JobID, job.State(env.Attrs.State), env.Attrs.Result, nil
}

// MarshalStatus encodes a node status as a utf-8 decimal string.
func MarshalStatus(status job.NodeState) []byte {
	return []byte(strconv.Itoa(int(status)))
}

// UnmarshalStatus decodes a status payload back into a NodeState,
// failing with UnknownStatus if the value falls outside the defined
// enum; the caller logs and drops the message rather than treating
// this as fatal.
func UnmarshalStatus(payload []byte) (job.NodeState, error) {
	raw, err := strconv.Atoi(string(payload))
	if err != nil {
		return 0, fmt.Errorf("envelope: malformed status payload: %w", err)
	}

	state := job.NodeState(raw)
	if !state.IsValid() {
		return 0, clustererrors.NewUnknownStatusError(byte(raw))
	}
	return state, nil
}
