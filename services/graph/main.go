package graph

import (
	"context"
	"fmt"
	"sort"

	"prio/pipeline/models/constants"
	"prio/pipeline/models/pipeline"
)

type (
	// StageResult carries a stage's produced artifacts (name ->
	// on-disk path) and, when the stage recognized a degenerate
	// input and took its documented substitute behavior, the
	// fallback record.
	StageResult struct {
		Outputs  map[string]string
		Fallback *pipeline.ContentFallback
	}

	// Executor is the execution contract of one stage. Inputs arrive
	// as artifact name -> completed on-disk path; a stage never
	// observes an input before its producer finished.
	Executor func(ctx context.Context, inputs map[string]string) (*StageResult, error)

	Stage struct {
		Name    string
		Inputs  []string
		Outputs []string
		Execute Executor
	}

	// Graph is a DAG of named stages. Edges are derived from
	// artifact names (a stage consuming "x" depends on the stage
	// producing "x"), never wired explicitly, so the graph can be
	// statically validated before anything runs.
	Graph struct {
		stages    map[string]*Stage
		order     []string
		externals map[string]bool
		producers map[string]string
	}

	// Result is the aggregate outcome of one run of the graph.
	Result struct {
		Failed    bool
		States    map[string]constants.StageState
		Errors    map[string]error
		Artifacts map[string]string
		Fallbacks []*pipeline.ContentFallback
	}
)

func NewStageGraph() *Graph {
	return &Graph{
		stages:    map[string]*Stage{},
		externals: map[string]bool{},
		producers: map[string]string{},
	}
}

// RegisterExternal declares an artifact that no stage produces (a
// static input handed in at run time)
func (g *Graph) RegisterExternal(names ...string) {
	for _, name := range names {
		g.externals[name] = true
	}
}

func (g *Graph) Register(stage Stage) error {
	if _, exists := g.stages[stage.Name]; exists {
		return fmt.Errorf("stage '%s' is already registered", stage.Name)
	}
	for _, output := range stage.Outputs {
		if producer, exists := g.producers[output]; exists {
			return fmt.Errorf("artifact '%s' is produced by both '%s' and '%s'", output, producer, stage.Name)
		}
		if g.externals[output] {
			return fmt.Errorf("artifact '%s' is declared external but produced by '%s'", output, stage.Name)
		}
	}

	g.stages[stage.Name] = &stage
	g.order = append(g.order, stage.Name)
	for _, output := range stage.Outputs {
		g.producers[output] = stage.Name
	}
	return nil
}

// Validate confirms every declared input has exactly one producer (or
// is external) and that the dependency graph is acyclic. Run refuses
// to start on an unvalidated or invalid graph.
func (g *Graph) Validate() error {
	for _, name := range g.order {
		stage := g.stages[name]
		for _, input := range stage.Inputs {
			if g.externals[input] {
				continue
			}
			if _, ok := g.producers[input]; !ok {
				return fmt.Errorf("stage '%s' consumes artifact '%s' which no stage produces", name, input)
			}
		}
	}

	// Kahn's algorithm; anything left un-ordered participates in a cycle
	indegree := map[string]int{}
	for _, name := range g.order {
		indegree[name] = len(g.dependenciesOf(name))
	}

	var ready []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	ordered := 0
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		ordered++

		for _, dependent := range g.dependentsOf(current) {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if ordered != len(g.order) {
		var cycleMembers []string
		for _, name := range g.order {
			if indegree[name] > 0 {
				cycleMembers = append(cycleMembers, name)
			}
		}
		sort.Strings(cycleMembers)
		return fmt.Errorf("stage graph contains a cycle involving: %v", cycleMembers)
	}

	return nil
}

// dependenciesOf lists the distinct stages producing the given
// stage's inputs
func (g *Graph) dependenciesOf(name string) []string {
	seen := map[string]bool{}
	var deps []string
	for _, input := range g.stages[name].Inputs {
		producer, ok := g.producers[input]
		if !ok || producer == name || seen[producer] {
			continue
		}
		seen[producer] = true
		deps = append(deps, producer)
	}
	return deps
}

func (g *Graph) dependentsOf(name string) []string {
	produced := map[string]bool{}
	for _, output := range g.stages[name].Outputs {
		produced[output] = true
	}

	var dependents []string
	for _, candidate := range g.order {
		if candidate == name {
			continue
		}
		for _, input := range g.stages[candidate].Inputs {
			if produced[input] {
				dependents = append(dependents, candidate)
				break
			}
		}
	}
	return dependents
}
