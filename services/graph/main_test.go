package graph

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"prio/pipeline/models/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopStage(name string, inputs []string, outputs []string) Stage {
	return Stage{
		Name:    name,
		Inputs:  inputs,
		Outputs: outputs,
		Execute: func(_ context.Context, _ map[string]string) (*StageResult, error) {
			produced := map[string]string{}
			for _, output := range outputs {
				produced[output] = "/tmp/" + output
			}
			return &StageResult{Outputs: produced}, nil
		},
	}
}

func TestGraphValidation(t *testing.T) {
	t.Run("rejects two producers for one artifact", func(t *testing.T) {
		g := NewStageGraph()
		require.Nil(t, g.Register(noopStage("a", nil, []string{"x"})))

		err := g.Register(noopStage("b", nil, []string{"x"}))
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "'x'")
	})

	t.Run("rejects an input with no producer", func(t *testing.T) {
		g := NewStageGraph()
		require.Nil(t, g.Register(noopStage("a", []string{"never-produced"}, []string{"x"})))

		err := g.Validate()
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "never-produced")
	})

	t.Run("declared externals satisfy inputs", func(t *testing.T) {
		g := NewStageGraph()
		g.RegisterExternal("input.vcf")
		require.Nil(t, g.Register(noopStage("a", []string{"input.vcf"}, []string{"x"})))

		assert.Nil(t, g.Validate())
	})

	t.Run("rejects a cyclic dependency", func(t *testing.T) {
		g := NewStageGraph()
		require.Nil(t, g.Register(noopStage("a", []string{"z"}, []string{"x"})))
		require.Nil(t, g.Register(noopStage("b", []string{"x"}, []string{"y"})))
		require.Nil(t, g.Register(noopStage("c", []string{"y"}, []string{"z"})))

		err := g.Validate()
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "cycle")
		assert.Contains(t, err.Error(), "a")
		assert.Contains(t, err.Error(), "b")
		assert.Contains(t, err.Error(), "c")
	})
}

func TestGraphRun(t *testing.T) {
	t.Run("executes stages in dependency order", func(t *testing.T) {
		var mux sync.Mutex
		var executionOrder []string

		recordingStage := func(name string, inputs []string, outputs []string) Stage {
			stage := noopStage(name, inputs, outputs)
			inner := stage.Execute
			stage.Execute = func(ctx context.Context, in map[string]string) (*StageResult, error) {
				mux.Lock()
				executionOrder = append(executionOrder, name)
				mux.Unlock()
				return inner(ctx, in)
			}
			return stage
		}

		g := NewStageGraph()
		require.Nil(t, g.Register(recordingStage("first", nil, []string{"x"})))
		require.Nil(t, g.Register(recordingStage("second", []string{"x"}, []string{"y"})))
		require.Nil(t, g.Register(recordingStage("third", []string{"y"}, []string{"z"})))

		result, err := g.Run(context.Background(), nil, 4, nil)
		require.Nil(t, err)

		assert.False(t, result.Failed)
		assert.Equal(t, []string{"first", "second", "third"}, executionOrder)
		assert.Equal(t, "/tmp/z", result.Artifacts["z"])
	})

	t.Run("a stage only sees completed inputs", func(t *testing.T) {
		g := NewStageGraph()

		producer := noopStage("producer", nil, []string{"x"})
		inner := producer.Execute
		producer.Execute = func(ctx context.Context, in map[string]string) (*StageResult, error) {
			time.Sleep(20 * time.Millisecond)
			return inner(ctx, in)
		}
		require.Nil(t, g.Register(producer))

		var observed map[string]string
		consumer := Stage{
			Name:   "consumer",
			Inputs: []string{"x"},
			Execute: func(_ context.Context, in map[string]string) (*StageResult, error) {
				observed = in
				return &StageResult{}, nil
			},
		}
		require.Nil(t, g.Register(consumer))

		_, err := g.Run(context.Background(), nil, 4, nil)
		require.Nil(t, err)
		assert.Equal(t, "/tmp/x", observed["x"])
	})

	t.Run("a failure skips dependents but independent branches finish", func(t *testing.T) {
		g := NewStageGraph()

		require.Nil(t, g.Register(noopStage("root", nil, []string{"x"})))

		failing := Stage{
			Name:   "failing",
			Inputs: []string{"x"},
			Outputs: []string{
				"y",
			},
			Execute: func(_ context.Context, _ map[string]string) (*StageResult, error) {
				return nil, fmt.Errorf("tool exploded")
			},
		}
		require.Nil(t, g.Register(failing))
		require.Nil(t, g.Register(noopStage("dependent", []string{"y"}, []string{"z"})))
		require.Nil(t, g.Register(noopStage("transitive", []string{"z"}, []string{"w"})))

		independentRan := false
		independent := Stage{
			Name:   "independent",
			Inputs: []string{"x"},
			Execute: func(_ context.Context, _ map[string]string) (*StageResult, error) {
				independentRan = true
				return &StageResult{}, nil
			},
		}
		require.Nil(t, g.Register(independent))

		result, err := g.Run(context.Background(), nil, 4, nil)
		require.Nil(t, err)

		assert.True(t, result.Failed)
		assert.True(t, independentRan)
		assert.Equal(t, pipeline.Error, result.States["failing"])
		assert.Equal(t, pipeline.Skipped, result.States["dependent"])
		assert.Equal(t, pipeline.Skipped, result.States["transitive"])
		assert.Equal(t, pipeline.Done, result.States["independent"])

		firstError := result.FirstError(g.StageOrder())
		require.NotNil(t, firstError)
		assert.Contains(t, firstError.Error(), "failing")
		assert.Contains(t, firstError.Error(), "tool exploded")
	})

	t.Run("undeclared external artifacts are rejected", func(t *testing.T) {
		g := NewStageGraph()
		require.Nil(t, g.Register(noopStage("a", nil, []string{"x"})))

		_, err := g.Run(context.Background(), map[string]string{"surprise": "/tmp/surprise"}, 1, nil)
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "surprise")
	})

	t.Run("fallbacks surface on the result", func(t *testing.T) {
		g := NewStageGraph()
		stage := Stage{
			Name:    "guarded",
			Outputs: []string{"x"},
			Execute: func(_ context.Context, _ map[string]string) (*StageResult, error) {
				return &StageResult{
					Outputs:  map[string]string{"x": "/tmp/x"},
					Fallback: &pipeline.ContentFallback{Stage: "guarded", Reason: "degenerate input"},
				}, nil
			},
		}
		require.Nil(t, g.Register(stage))

		result, err := g.Run(context.Background(), nil, 1, nil)
		require.Nil(t, err)
		require.Len(t, result.Fallbacks, 1)
		assert.Equal(t, "degenerate input", result.Fallbacks[0].Reason)
		assert.False(t, result.Failed)
	})
}

func TestRegistrySnapshot(t *testing.T) {
	g := NewStageGraph()
	require.Nil(t, g.Register(noopStage("a", nil, []string{"x"})))
	require.Nil(t, g.Register(noopStage("b", []string{"x"}, nil)))

	registry := g.NewRegistry()
	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].Stage)
	assert.Equal(t, pipeline.Queued, snapshot[0].State)

	_, err := g.Run(context.Background(), nil, 2, registry)
	require.Nil(t, err)

	for _, status := range registry.Snapshot() {
		assert.Equal(t, pipeline.Done, status.State)
	}
}
