// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package envelope implements the content-addressed serialization layer:
// a self-describing {class, attrs} envelope carrying a Job or TaskUnit,
// and a named-callable registry that substitutes for dynamic evaluation
// of transported source text. A processor, splitter, or combiner is
// identified on the wire by a registered name agreed within one
// deployment; a worker with no prior knowledge of a specific job can
// still execute it, since it only needs the registry, deployed once
// rather than per-job.
package envelope

import (
	"fmt"
	"sync"

	"github.com/gridwork/cluster/internal/job"
)

// Registry holds every processor, splitter, and combiner this
// deployment knows by name. Every worker and master process links the
// same registry package so that a name resolves identically cluster-
// wide.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]job.Processor
	splitters  map[string]job.Splitter
	combiners  map[string]func() job.Combiner
}

// NewRegistry creates an empty registry pre-seeded with the default
// newline splitter and sum combiner under the names "lines" and "sum".
func NewRegistry() *Registry {
	r := &Registry{
		processors: make(map[string]job.Processor),
		splitters:  make(map[string]job.Splitter),
		combiners:  make(map[string]func() job.Combiner),
	}
	r.RegisterSplitter("lines", job.DefaultSplitter{})
	r.RegisterCombinerFactory("sum", func() job.Combiner { return &job.DefaultCombiner{} })
	return r
}

// RegisterProcessor associates name with a processor function.
func (r *Registry) RegisterProcessor(name string, p job.Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = p
}

// Processor resolves name to a registered processor.
func (r *Registry) Processor(name string) (job.Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("envelope: no processor registered under name %q", name)
	}
	return p, nil
}

// RegisterSplitter associates name with a splitter.
func (r *Registry) RegisterSplitter(name string, s job.Splitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.splitters[name] = s
}

// Splitter resolves name to a registered splitter.
func (r *Registry) Splitter(name string) (job.Splitter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.splitters[name]
	if !ok {
		return nil, fmt.Errorf("envelope: no splitter registered under name %q", name)
	}
	return s, nil
}

// RegisterCombinerFactory associates name with a constructor for a
// fresh Combiner instance, since a combiner accumulates per-job state
// and must not be shared across concurrent jobs.
func (r *Registry) RegisterCombinerFactory(name string, factory func() job.Combiner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.combiners[name] = factory
}

// NewCombiner constructs a fresh Combiner instance registered under name.
func (r *Registry) NewCombiner(name string) (job.Combiner, error) {
	r.mu.RLock()
	factory, ok := r.combiners[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("envelope: no combiner registered under name %q", name)
	}
	return factory(), nil
}
