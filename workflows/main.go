package workflows

import (
	"context"
	"fmt"
	"time"

	"prio/pipeline/models"
	"prio/pipeline/models/constants"
	"prio/pipeline/models/pipeline"
	"prio/pipeline/services/artifacts"
	"prio/pipeline/services/graph"
	"prio/pipeline/services/reference"
	"prio/pipeline/services/scatter"
	"prio/pipeline/services/tools"
	"prio/pipeline/services/validation"

	referenceVersion "prio/pipeline/models/constants/reference-version"

	"github.com/google/uuid"
)

type (
	// PipelineService owns one pipeline run end to end: parameter
	// validation, stage graph construction, execution, and the
	// publication of the final artifacts.
	PipelineService struct {
		Config         *models.Config
		Store          *artifacts.Store
		Adapter        *tools.Adapter
		ReferenceCache *reference.Cache
		Controller     *scatter.Controller
		Tools          Toolchain

		Params   *models.RunParams
		Version  constants.ReferenceVersion
		Renames  models.ChromosomeRenames
		Request  *pipeline.RunRequest
		Graph    *graph.Graph
		Registry *graph.Registry
	}
)

func NewPipelineService(
	cfg *models.Config,
	store *artifacts.Store,
	adapter *tools.Adapter,
	referenceCache *reference.Cache,
	controller *scatter.Controller,
) *PipelineService {
	return &PipelineService{
		Config:         cfg,
		Store:          store,
		Adapter:        adapter,
		ReferenceCache: referenceCache,
		Controller:     controller,
		Tools:          DefaultToolchain(uint64(cfg.Pipeline.ToolRetryAttempts)),
	}
}

// Prepare decodes and validates the run parameter bag. On any
// violation the run is rejected before a single stage starts.
func (p *PipelineService) Prepare(bag map[string]interface{}) []*pipeline.ValidationError {
	params, err := models.DecodeRunParams(bag)
	if err != nil {
		return []*pipeline.ValidationError{{Param: "(parameter bag)", Reason: err.Error()}}
	}

	violations := validation.ValidateRunParams(params)
	if len(violations) > 0 {
		return violations
	}

	if params.RenameTablePath != "" {
		renames, err := models.LoadChromosomeRenames(params.RenameTablePath)
		if err != nil {
			return []*pipeline.ValidationError{{Param: "rename_table", Reason: err.Error()}}
		}
		p.Renames = renames
	}

	if params.RunId == "" {
		params.RunId = uuid.NewString()
	}
	if params.OutputDirectory != "" {
		p.Store.ResultsDir = params.OutputDirectory
	}

	p.Params = params
	p.Version = referenceVersion.CastToReferenceVersion(params.ReferenceVersion)
	p.Request = &pipeline.RunRequest{
		Id:               uuid.MustParse(normalizeRunId(params.RunId)),
		InputVcf:         params.InputVcf,
		ReferenceVersion: params.ReferenceVersion,
		State:            pipeline.Queued,
		CreatedAt:        time.Now().String(),
	}

	return nil
}

// normalizeRunId keeps operator-supplied run ids while still minting
// a stable uuid for the monitoring surface
func normalizeRunId(runId string) string {
	if _, err := uuid.Parse(runId); err == nil {
		return runId
	}
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(runId)).String()
}

// BuildGraph registers every pipeline stage. Edges are derived from
// the artifact names each stage consumes and produces.
func (p *PipelineService) BuildGraph() (*graph.Graph, error) {
	g := graph.NewStageGraph()
	g.RegisterExternal("input.vcf", "input.hpo")

	stages := []graph.Stage{
		{
			Name:    "reference-build",
			Outputs: []string{"reference.sequence"},
			Execute: p.executeReferenceBuild,
		},
		{
			Name:    "vcf-ingest",
			Inputs:  []string{"input.vcf"},
			Outputs: []string{"ingested.vcf"},
			Execute: p.executeVcfIngest,
		},
		{
			Name:    "normalize",
			Inputs:  []string{"ingested.vcf", "reference.sequence"},
			Outputs: []string{"normalized.vcf"},
			Execute: p.executeNormalize,
		},
		{
			Name:    "genotype-call",
			Inputs:  []string{"normalized.vcf", "reference.sequence"},
			Outputs: []string{"genotyped.vcf"},
			Execute: p.executeGenotypeCall,
		},
		{
			Name:    "chromosome-restrict",
			Inputs:  []string{"genotyped.vcf"},
			Outputs: []string{"restricted.vcf"},
			Execute: p.executeChromosomeRestrict,
		},
		{
			Name:    "id-annotate",
			Inputs:  []string{"restricted.vcf"},
			Outputs: []string{"ids.vcf"},
			Execute: p.executeIdAnnotate,
		},
		{
			Name:    "quality-filter",
			Inputs:  []string{"ids.vcf"},
			Outputs: []string{"filtered.vcf"},
			Execute: p.executeQualityFilter,
		},
		{
			Name:    "phrank-score",
			Inputs:  []string{"filtered.vcf", "input.hpo"},
			Outputs: []string{"phrank-genes.tsv", "pheno-similarity.tsv"},
			Execute: p.executePhrankScore,
		},
		{
			Name:    "frequency-exclude",
			Inputs:  []string{"filtered.vcf"},
			Outputs: []string{"rare.vcf"},
			Execute: p.executeFrequencyExclude,
		},
		{
			Name:    "scatter-score",
			Inputs:  []string{"rare.vcf", "reference.sequence", "phrank-genes.tsv"},
			Outputs: []string{"features.tsv", "annotated.vcf.gz"},
			Execute: p.executeScatterScore,
		},
		{
			Name:    "predict",
			Inputs:  []string{"features.tsv", "pheno-similarity.tsv"},
			Outputs: []string{"predictions.tsv", "confidence.tsv"},
			Execute: p.executePredict,
		},
		{
			Name: "publish",
			Inputs: []string{
				"filtered.vcf", "annotated.vcf.gz",
				"phrank-genes.tsv", "pheno-similarity.tsv", "features.tsv",
				"predictions.tsv", "confidence.tsv",
			},
			Outputs: []string{"publish.manifest"},
			Execute: p.executePublish,
		},
	}

	for _, stage := range stages {
		if err := g.Register(stage); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	return g, nil
}

// Run executes the full pipeline for the prepared parameters. It
// returns nil only when every stage completed and the final
// prediction artifacts were published.
func (p *PipelineService) Run(ctx context.Context) error {
	if p.Params == nil {
		return fmt.Errorf("run parameters were not prepared")
	}

	g, err := p.BuildGraph()
	if err != nil {
		return fmt.Errorf("stage graph rejected: %w", err)
	}
	p.Graph = g
	p.Registry = g.NewRegistry()

	p.Request.State = pipeline.Running
	p.Request.UpdatedAt = time.Now().String()

	fmt.Printf("[%s] - Starting run %s (reference version '%s')..\n",
		time.Now(), p.Params.RunId, p.Version)

	result, err := g.Run(ctx, map[string]string{
		"input.vcf": p.Params.InputVcf,
		"input.hpo": p.Params.InputHpo,
	}, int64(p.Config.Pipeline.StageConcurrencyLevel), p.Registry)
	if err != nil {
		p.Request.State = pipeline.Error
		return err
	}

	if result.Failed {
		p.Request.State = pipeline.Error
		firstError := result.FirstError(g.StageOrder())
		p.Request.Message = firstError.Error()
		p.Request.UpdatedAt = time.Now().String()
		return firstError
	}

	p.Request.State = pipeline.Done
	p.Request.UpdatedAt = time.Now().String()

	for _, fallback := range result.Fallbacks {
		fmt.Printf("[%s] - Note: %s\n", time.Now(), fallback)
	}
	fmt.Printf("[%s] - Run %s completed; results published under %s\n",
		time.Now(), p.Params.RunId, p.Store.ResultsDir)

	return nil
}

// ref is shorthand for a run-scoped artifact reference
func (p *PipelineService) ref(stage string, output string) artifacts.ArtifactRef {
	return artifacts.ArtifactRef{RunId: p.Params.RunId, Stage: stage, Output: output}
}
