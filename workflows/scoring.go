package workflows

import (
	"context"

	"prio/pipeline/services/artifacts"
	"prio/pipeline/services/graph"
	"prio/pipeline/services/scatter"
)

/*
	The two independent scoring branches, and the per-chromosome
	scatter/gather fan-out they feed.
*/

func (p *PipelineService) executePhrankScore(ctx context.Context, inputs map[string]string) (*graph.StageResult, error) {
	toolOutputs, err := p.Adapter.Invoke(ctx, p.Tools.Phrank, map[string]interface{}{
		"hpo": inputs["input.hpo"],
		"vcf": inputs["filtered.vcf"],
	})
	if err != nil {
		return nil, err
	}

	genesPath, err := p.adoptToolOutput("phrank-score", toolOutputs, "phrank-genes.tsv", "phrank-genes.tsv")
	if err != nil {
		return nil, err
	}
	similarityPath, err := p.adoptToolOutput("phrank-score", toolOutputs, "pheno-similarity.tsv", "pheno-similarity.tsv")
	if err != nil {
		return nil, err
	}

	return &graph.StageResult{Outputs: map[string]string{
		"phrank-genes.tsv":     genesPath,
		"pheno-similarity.tsv": similarityPath,
	}}, nil
}

func (p *PipelineService) executeFrequencyExclude(ctx context.Context, inputs map[string]string) (*graph.StageResult, error) {
	toolOutputs, err := p.Adapter.Invoke(ctx, p.Tools.FrequencyExclude, map[string]interface{}{
		"vcf": inputs["filtered.vcf"],
	})
	if err != nil {
		return nil, err
	}

	outputPath, err := p.adoptToolOutput("frequency-exclude", toolOutputs, "rare.vcf", "rare.vcf")
	if err != nil {
		return nil, err
	}
	return &graph.StageResult{Outputs: map[string]string{"rare.vcf": outputPath}}, nil
}

// executeScatterScore splits the rare-variant VCF into one shard per
// chromosome present in it, runs annotation + feature scoring on each
// shard independently and in parallel, and merges the per-shard
// outputs: the tabular features with the header emitted once, the
// compressed annotated VCF by seeded gzip-member concatenation. Both
// merges emit shards in ascending chromosome order regardless of the
// order shards finished in.
func (p *PipelineService) executeScatterScore(ctx context.Context, inputs map[string]string) (*graph.StageResult, error) {
	const stage = "scatter-score"

	set, err := p.Controller.Scatter(p.Params.RunId, stage, inputs["rare.vcf"])
	if err != nil {
		return nil, err
	}

	// one scatter, two gathers: the workers report the tabular
	// output through the primary set and the compressed output
	// through a parallel set over the same shards
	compressedSet := scatter.NewShardSet(stage, set.Shards())

	err = p.Controller.Process(ctx, set, func(ctx context.Context, shard scatter.Shard) (string, error) {
		toolOutputs, err := p.Adapter.Invoke(ctx, p.Tools.ShardScore, map[string]interface{}{
			"shard":     shard.Path,
			"reference": inputs["reference.sequence"],
			"phrank":    inputs["phrank-genes.tsv"],
		})
		if err != nil {
			return "", err
		}

		featuresRef := artifacts.ArtifactRef{
			RunId: p.Params.RunId, Stage: stage, Output: "features.tsv", ShardKey: shard.Key}
		if _, err := p.Store.PutFile(featuresRef, toolOutputs["features.tsv"]); err != nil {
			return "", err
		}

		compressedRef := artifacts.ArtifactRef{
			RunId: p.Params.RunId, Stage: stage, Output: "annotated.vcf.gz", ShardKey: shard.Key}
		if _, err := p.Store.PutFile(compressedRef, toolOutputs["annotated.vcf.gz"]); err != nil {
			return "", err
		}
		if err := compressedSet.Complete(shard.Key, p.Store.Path(compressedRef)); err != nil {
			return "", err
		}

		return p.Store.Path(featuresRef), nil
	})
	if err != nil {
		return nil, err
	}

	featuresPath, err := p.Controller.GatherHeaderOnce(set, p.ref(stage, "features.tsv"))
	if err != nil {
		return nil, err
	}
	compressedPath, err := p.Controller.GatherCompressed(compressedSet, p.ref(stage, "annotated.vcf.gz"))
	if err != nil {
		return nil, err
	}

	return &graph.StageResult{Outputs: map[string]string{
		"features.tsv":     featuresPath,
		"annotated.vcf.gz": compressedPath,
	}}, nil
}
