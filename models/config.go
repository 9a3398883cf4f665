package models

type Config struct {
	Debug bool `envconfig:"PRIO_DEBUG" default:"false"`

	Api struct {
		Port string `envconfig:"PRIO_API_INTERNAL_PORT"`
	}
	Pipeline struct {
		WorkDir                         string `envconfig:"PRIO_WORK_DIR" default:"/tmp/prio/work"`
		ResultsDir                      string `envconfig:"PRIO_RESULTS_DIR" default:"/tmp/prio/results"`
		StageConcurrencyLevel           int    `envconfig:"PRIO_STAGE_CONCURRENCY_LEVEL" default:"4"`
		ShardProcessingConcurrencyLevel int    `envconfig:"PRIO_SHARD_PROCESSING_CONCURRENCY_LEVEL" default:"8"`
		ToolRetryAttempts               int    `envconfig:"PRIO_TOOL_RETRY_ATTEMPTS" default:"0"`
		ToolOutputTailLines             int    `envconfig:"PRIO_TOOL_OUTPUT_TAIL_LINES" default:"20"`
	}
	Reference struct {
		IndexUrl string `envconfig:"PRIO_REFERENCE_INDEX_URL"`
		Fetcher  string `envconfig:"PRIO_REFERENCE_FETCHER" default:"reference-fetch"`
	}
	Sanitation struct {
		Enabled            bool `envconfig:"PRIO_SANITATION_ENABLED" default:"false"`
		RetentionHours     int  `envconfig:"PRIO_SANITATION_RETENTION_HOURS" default:"72"`
		SweepIntervalHours int  `envconfig:"PRIO_SANITATION_SWEEP_INTERVAL_HOURS" default:"24"`
	}
}
