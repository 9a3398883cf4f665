package workflows

import (
	"context"
	"fmt"
	"io"
	"time"

	"prio/pipeline/models/constants"
	"prio/pipeline/models/pipeline"
	"prio/pipeline/services/graph"
)

func (p *PipelineService) executePredict(ctx context.Context, inputs map[string]string) (*graph.StageResult, error) {
	toolOutputs, err := p.Adapter.Invoke(ctx, p.Tools.Predict, map[string]interface{}{
		"features":   inputs["features.tsv"],
		"similarity": inputs["pheno-similarity.tsv"],
	})
	if err != nil {
		return nil, err
	}

	predictionsPath, err := p.adoptToolOutput("predict", toolOutputs, "predictions.tsv", "predictions.tsv")
	if err != nil {
		return nil, err
	}
	confidencePath, err := p.adoptToolOutput("predict", toolOutputs, "confidence.tsv", "confidence.tsv")
	if err != nil {
		return nil, err
	}

	return &graph.StageResult{Outputs: map[string]string{
		"predictions.tsv": predictionsPath,
		"confidence.tsv":  confidencePath,
	}}, nil
}

// executePublish copies the run's user-facing artifacts into the
// results directory, organized by category, and records what went
// where in a manifest
func (p *PipelineService) executePublish(_ context.Context, inputs map[string]string) (*graph.StageResult, error) {
	published := map[string]string{}

	categories := []struct {
		artifact string
		stage    string
		category constants.ArtifactCategory
	}{
		{"filtered.vcf", "quality-filter", pipeline.CategoryVcf},
		{"annotated.vcf.gz", "scatter-score", pipeline.CategoryVcf},
		{"phrank-genes.tsv", "phrank-score", pipeline.CategoryScoring},
		{"pheno-similarity.tsv", "phrank-score", pipeline.CategoryScoring},
		{"features.tsv", "scatter-score", pipeline.CategoryScoring},
		{"predictions.tsv", "predict", pipeline.CategoryPrediction},
		{"confidence.tsv", "predict", pipeline.CategoryPrediction},
	}

	for _, entry := range categories {
		ref := p.ref(entry.stage, entry.artifact)
		destination, err := p.Store.Publish(ref, entry.category)
		if err != nil {
			return nil, fmt.Errorf("failed to publish '%s': %w", entry.artifact, err)
		}
		published[entry.artifact] = destination
	}

	manifestRef := p.ref("publish", "publish.manifest")
	if _, err := p.Store.Put(manifestRef, func(w io.Writer) error {
		fmt.Fprintf(w, "# published %s\n", time.Now())
		for _, entry := range categories {
			fmt.Fprintf(w, "%s\t%s\t%s\n", entry.category, entry.artifact, published[entry.artifact])
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &graph.StageResult{Outputs: map[string]string{
		"publish.manifest": p.Store.Path(manifestRef),
	}}, nil
}
