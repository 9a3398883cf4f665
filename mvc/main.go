package mvc

import (
	"net/http"

	"prio/pipeline/contexts"
	"prio/pipeline/models/pipeline"
)

/*
	Read-only monitoring surface served while a pipeline run is
	executing. The pipeline itself never depends on these routes.
*/

func GetServiceInfo(gc *contexts.PrioContext) error {
	return gc.JSON(http.StatusOK, map[string]interface{}{
		"name":        "prio",
		"description": "Genomic variant annotation and scoring pipeline.",
		"version":     "1.0.0",
	})
}

func GetRunProgress(gc *contexts.PrioContext) error {
	if gc.RunRequest == nil || gc.Registry == nil {
		return gc.JSON(http.StatusNotFound, map[string]string{
			"message": "no run in progress",
		})
	}

	requestedId := gc.Param("id")
	if requestedId != "" && requestedId != gc.RunRequest.Id.String() {
		return gc.JSON(http.StatusNotFound, map[string]string{
			"message": "unknown run id : " + requestedId,
		})
	}

	return gc.JSON(http.StatusOK, pipeline.RunProgressResponseDTO{
		Id:     gc.RunRequest.Id,
		State:  gc.RunRequest.State,
		Stages: gc.Registry.Snapshot(),
	})
}
