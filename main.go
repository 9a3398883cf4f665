package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"prio/pipeline/contexts"
	"prio/pipeline/models"
	"prio/pipeline/mvc"
	"prio/pipeline/services/artifacts"
	"prio/pipeline/services/reference"
	"prio/pipeline/services/sanitation"
	"prio/pipeline/services/scatter"
	"prio/pipeline/services/tools"
	"prio/pipeline/workflows"

	"github.com/kelseyhightower/envconfig"
	"github.com/labstack/echo"
)

func main() {
	// Gather environment variables
	var cfg models.Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	fmt.Printf("Using : \n"+

		"\tDebug : %t \n\n"+

		"\tWork Directory : %s \n"+
		"\tResults Directory : %s \n"+
		"\tStage Concurrency Level : %d\n"+
		"\tShard Processing Concurrency Level : %d\n"+
		"\tTool Retry Attempts : %d\n"+
		"\tTool Output Tail Lines : %d\n\n"+

		"\tReference Index Url : %s\n"+
		"\tReference Fetcher : %s\n\n"+

		"\tSanitation Enabled : %t\n",

		cfg.Debug,
		cfg.Pipeline.WorkDir,
		cfg.Pipeline.ResultsDir,
		cfg.Pipeline.StageConcurrencyLevel,
		cfg.Pipeline.ShardProcessingConcurrencyLevel,
		cfg.Pipeline.ToolRetryAttempts,
		cfg.Pipeline.ToolOutputTailLines,
		cfg.Reference.IndexUrl,
		cfg.Reference.Fetcher,
		cfg.Sanitation.Enabled)
	// --

	// Service Connections:
	// -- artifact store, tool adapter, reference cache, scatter/gather
	store := artifacts.NewArtifactStore(&cfg)
	adapter := tools.NewToolAdapter(&cfg)
	referenceCache := reference.NewReferenceCache(store, reference.NewToolBuilder(adapter, &cfg))
	controller := scatter.NewScatterGatherController(store, &cfg)

	// -- background workspace sweeper
	if cfg.Sanitation.Enabled {
		sanitation.NewSanitationService(&cfg)
	}

	pipelineService := workflows.NewPipelineService(&cfg, store, adapter, referenceCache, controller)

	// The run parameter bag comes in through the environment; the
	// surrounding wrapper owns flag parsing and usage text.
	parameterBag := map[string]interface{}{
		"input_vcf":           os.Getenv("PRIO_INPUT_VCF"),
		"input_hpo":           os.Getenv("PRIO_INPUT_HPO"),
		"reference_directory": os.Getenv("PRIO_REFERENCE_DIR"),
		"reference_version":   os.Getenv("PRIO_REFERENCE_VERSION"),
		"run_id":              os.Getenv("PRIO_RUN_ID"),
		"output_directory":    os.Getenv("PRIO_OUTPUT_DIR"),
		"rename_table":        os.Getenv("PRIO_RENAME_TABLE"),
	}

	if violations := pipelineService.Prepare(parameterBag); len(violations) > 0 {
		for _, violation := range violations {
			fmt.Printf("Validation failed - %s\n", violation.Error())
		}
		os.Exit(2)
	}

	// optional monitoring surface while the run executes
	if cfg.Api.Port != "" {
		go func() {
			e := echo.New()

			// inject the live run state into each request
			wrap := func(handler func(*contexts.PrioContext) error) echo.HandlerFunc {
				return func(c echo.Context) error {
					return handler(&contexts.PrioContext{
						Context:    c,
						Config:     &cfg,
						RunRequest: pipelineService.Request,
						Registry:   pipelineService.Registry,
					})
				}
			}

			e.GET("/service-info", wrap(mvc.GetServiceInfo))
			e.GET("/runs/:id/progress", wrap(mvc.GetRunProgress))

			e.Start(":" + cfg.Api.Port)
		}()
	}

	if err := pipelineService.Run(context.Background()); err != nil {
		fmt.Printf("[%s] - Run failed : %v\n", time.Now(), err)
		os.Exit(1)
	}

	os.Exit(0)
}
