// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Job is a user submission: input data plus the named processor,
// splitter, and combiner that operate on it.
type Job struct {
	ID            string
	InputData     string
	ProcessorName string
	SplitterName  string
	CombinerName  string
	TaskUnits     map[string]*TaskUnit
	PendingCount  int

	// FinalResult holds the combiner's output once every unit has
	// reached a terminal state, matching original_source/job.py's
	// Combiner.combine writing a result file once a job completes.
	FinalResult string
}

// NewJob creates a job with its id computed from the content of
// InputData and the three registered names.
func NewJob(inputData, processorName, splitterName, combinerName string) *Job {
	return &Job{
		ID:            ComputeJobID(inputData, processorName, splitterName, combinerName),
		InputData:     inputData,
		ProcessorName: processorName,
		SplitterName:  splitterName,
		CombinerName:  combinerName,
		TaskUnits:     make(map[string]*TaskUnit),
	}
}

// ComputeJobID is the MD5 hex digest over input data and the three
// registered names, standing in for "processor/splitter/combiner
// source" per the named-registry substitution.
func ComputeJobID(inputData, processorName, splitterName, combinerName string) string {
	sum := md5.Sum([]byte(inputData + processorName + splitterName + combinerName))
	return hex.EncodeToString(sum[:])
}

// AddTaskUnit records a newly split unit under the job and increments
// PendingCount.
func (j *Job) AddTaskUnit(tu *TaskUnit) {
	j.TaskUnits[tu.ID] = tu
	j.PendingCount++
}

// RecordResult updates the matching unit's state and result and
// decrements PendingCount when the unit reaches a terminal state for
// the first time. It reports whether the job has no pending units left.
func (j *Job) RecordResult(unitID string, state State, result interface{}) (done bool, ok bool) {
	tu, exists := j.TaskUnits[unitID]
	if !exists {
		return false, false
	}

	wasTerminal := tu.IsTerminal()
	tu.State = state
	tu.Result = result

	if tu.IsTerminal() && !wasTerminal {
		j.PendingCount--
	}

	return j.PendingCount <= 0, true
}

// Splitter consumes a job's input data and the processor it should
// stamp on each yielded unit, producing the task units to schedule.
type Splitter interface {
	Split(inputData, processorName string) []*TaskUnit
}

// DefaultSplitter splits input data on newline boundaries, one unit per
// line, matching original_source/job.py's Splitter.split.
type DefaultSplitter struct{}

// Split implements Splitter.
func (DefaultSplitter) Split(inputData, processorName string) []*TaskUnit {
	lines := strings.Split(inputData, "\n")
	units := make([]*TaskUnit, 0, len(lines))
	for _, line := range lines {
		units = append(units, NewTaskUnit("", line, processorName, 0))
	}
	return units
}

// Combiner reduces a job's completed unit results into a final
// artifact.
type Combiner interface {
	AddResult(result interface{})
	Combine() (string, error)
}

// DefaultCombiner sums numeric results and renders the sum as text,
// matching original_source/job.py's Combiner.combine.
type DefaultCombiner struct {
	results []interface{}
}

// AddResult implements Combiner.
func (c *DefaultCombiner) AddResult(result interface{}) {
	c.results = append(c.results, result)
}

// Combine implements Combiner. Each result is coerced to a float64 via
// fmt.Sprint/strconv so that results arriving as json.Number, int, or
// float all sum correctly.
func (c *DefaultCombiner) Combine() (string, error) {
	var sum float64
	for _, r := range c.results {
		v, err := toFloat64(r)
		if err != nil {
			return "", fmt.Errorf("default combiner: %w", err)
		}
		sum += v
	}

	if sum == float64(int64(sum)) {
		return strconv.FormatInt(int64(sum), 10), nil
	}
	return strconv.FormatFloat(sum, 'f', -1, 64), nil
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return strconv.ParseFloat(fmt.Sprint(v), 64)
	}
}
