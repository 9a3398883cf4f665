package contexts

import (
	"prio/pipeline/models"
	"prio/pipeline/models/pipeline"
	"prio/pipeline/services/graph"

	"github.com/labstack/echo"
)

type (
	// "Helper" Context to pass into routes that need
	//  the live run state and other variables
	PrioContext struct {
		echo.Context
		Config     *models.Config
		RunRequest *pipeline.RunRequest
		Registry   *graph.Registry
	}
)
