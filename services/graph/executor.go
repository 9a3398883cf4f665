package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"prio/pipeline/models/constants"
	"prio/pipeline/models/pipeline"

	"golang.org/x/sync/semaphore"
)

type (
	// Registry tracks live per-stage state for one run; the progress
	// endpoint reads from it while the run executes.
	Registry struct {
		mux    sync.RWMutex
		order  []string
		states map[string]constants.StageState
		notes  map[string]string
	}

	stageOutcome struct {
		stage  string
		result *StageResult
		err    error
	}
)

func newRegistry(order []string) *Registry {
	states := map[string]constants.StageState{}
	for _, name := range order {
		states[name] = pipeline.Queued
	}
	return &Registry{order: order, states: states, notes: map[string]string{}}
}

func (r *Registry) set(stage string, state constants.StageState, note string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.states[stage] = state
	if note != "" {
		r.notes[stage] = note
	}
}

func (r *Registry) get(stage string) constants.StageState {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.states[stage]
}

// Snapshot returns per-stage statuses in registration order
func (r *Registry) Snapshot() []pipeline.StageStatus {
	r.mux.RLock()
	defer r.mux.RUnlock()

	statuses := make([]pipeline.StageStatus, 0, len(r.order))
	for _, name := range r.order {
		statuses = append(statuses, pipeline.StageStatus{
			Stage:   name,
			State:   r.states[name],
			Message: r.notes[name],
		})
	}
	return statuses
}

// Run executes the graph for one run: stages launch as soon as every
// input artifact is completed, independent stages run concurrently up
// to the given worker limit, and a stage failure skips all transitive
// dependents while letting already-running independent branches
// finish. The run is reported failed if any stage failed or was
// skipped.
//
// externalArtifacts seeds the artifact table with the run's static
// inputs (artifact name -> path); every name must have been declared
// with RegisterExternal.
func (g *Graph) Run(ctx context.Context, externalArtifacts map[string]string, workers int64, registry *Registry) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = newRegistry(g.order)
	}
	if workers < 1 {
		workers = 1
	}

	result := &Result{
		States:    map[string]constants.StageState{},
		Errors:    map[string]error{},
		Artifacts: map[string]string{},
	}
	for name, path := range externalArtifacts {
		if !g.externals[name] {
			return nil, fmt.Errorf("artifact '%s' was provided but never declared external", name)
		}
		result.Artifacts[name] = path
	}

	var (
		artifactsMux sync.Mutex
		sem          = semaphore.NewWeighted(workers)
		outcomes     = make(chan stageOutcome)
		launched     = map[string]bool{}
		inFlight     = 0
	)

	launchReady := func() {
		for _, name := range g.order {
			if launched[name] || registry.get(name) != pipeline.Queued {
				continue
			}

			stage := g.stages[name]
			inputs, satisfied := g.collectInputs(stage, result, &artifactsMux)
			if !satisfied {
				continue
			}

			launched[name] = true
			inFlight++
			registry.set(name, pipeline.Running, "")

			go func(stage *Stage, inputs map[string]string) {
				if err := sem.Acquire(ctx, 1); err != nil {
					outcomes <- stageOutcome{stage: stage.Name, err: err}
					return
				}
				defer sem.Release(1)

				fmt.Printf("[%s] - Running stage '%s'..\n", time.Now(), stage.Name)
				stageResult, err := stage.Execute(ctx, inputs)
				outcomes <- stageOutcome{stage: stage.Name, result: stageResult, err: err}
			}(stage, inputs)
		}
	}

	launchReady()

	for inFlight > 0 {
		outcome := <-outcomes
		inFlight--

		if outcome.err != nil {
			fmt.Printf("[%s] - Stage '%s' failed: %v\n", time.Now(), outcome.stage, outcome.err)
			registry.set(outcome.stage, pipeline.Error, outcome.err.Error())
			result.Errors[outcome.stage] = outcome.err
			g.skipDependents(outcome.stage, registry, result)
		} else {
			note := ""
			if outcome.result != nil && outcome.result.Fallback != nil {
				note = outcome.result.Fallback.String()
				result.Fallbacks = append(result.Fallbacks, outcome.result.Fallback)
				fmt.Printf("[%s] - %s\n", time.Now(), note)
			}
			registry.set(outcome.stage, pipeline.Done, note)

			if outcome.result != nil {
				artifactsMux.Lock()
				for name, path := range outcome.result.Outputs {
					result.Artifacts[name] = path
				}
				artifactsMux.Unlock()
			}
		}

		launchReady()
	}

	for _, name := range g.order {
		state := registry.get(name)
		result.States[name] = state
		if state != pipeline.Done {
			result.Failed = true
		}
	}

	return result, nil
}

func (g *Graph) collectInputs(stage *Stage, result *Result, artifactsMux *sync.Mutex) (map[string]string, bool) {
	artifactsMux.Lock()
	defer artifactsMux.Unlock()

	inputs := map[string]string{}
	for _, input := range stage.Inputs {
		path, ok := result.Artifacts[input]
		if !ok {
			return nil, false
		}
		inputs[input] = path
	}
	return inputs, true
}

// skipDependents marks every transitive consumer of a failed stage's
// outputs as skipped so it never launches
func (g *Graph) skipDependents(failed string, registry *Registry, result *Result) {
	queue := []string{failed}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, dependent := range g.dependentsOf(current) {
			if registry.get(dependent) != pipeline.Queued {
				continue
			}
			registry.set(dependent, pipeline.Skipped, fmt.Sprintf("upstream stage '%s' failed", failed))
			result.Errors[dependent] = &pipeline.StageSkipped{Stage: dependent, Upstream: failed}
			queue = append(queue, dependent)
		}
	}
}

// NewRegistry exposes a registry ahead of Run so callers (e.g. the
// progress endpoint) can observe stage states while the run executes
func (g *Graph) NewRegistry() *Registry {
	return newRegistry(g.order)
}

// FirstError surfaces one clear failure to report to the operator:
// the earliest registered stage that failed outright (skips are a
// consequence, not a cause)
func (r *Result) FirstError(order []string) error {
	for _, name := range order {
		err, ok := r.Errors[name]
		if !ok {
			continue
		}
		if _, skipped := err.(*pipeline.StageSkipped); skipped {
			continue
		}
		return fmt.Errorf("stage '%s' failed: %w", name, err)
	}
	for _, name := range order {
		if err, ok := r.Errors[name]; ok {
			return err
		}
	}
	return nil
}

// StageOrder returns stage names in registration order
func (g *Graph) StageOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
