package pipeline

import (
	"prio/pipeline/models/constants"

	"github.com/google/uuid"
)

const (
	Queued  constants.StageState = "Queued"
	Running constants.StageState = "Running"
	Done    constants.StageState = "Done"
	Error   constants.StageState = "Error"
	Skipped constants.StageState = "Skipped"
)

const (
	CategoryVcf        constants.ArtifactCategory = "vcf"
	CategoryScoring    constants.ArtifactCategory = "scoring"
	CategoryPrediction constants.ArtifactCategory = "prediction"
)

type RunRequest struct {
	Id               uuid.UUID            `json:"id"`
	InputVcf         string               `json:"inputVcf"`
	ReferenceVersion string               `json:"referenceVersion"`
	State            constants.StageState `json:"state"`
	Message          string               `json:"message"`
	CreatedAt        string               `json:"createdAt"`
	UpdatedAt        string               `json:"updatedAt"`
}

type StageStatus struct {
	Stage   string               `json:"stage"`
	State   constants.StageState `json:"state"`
	Message string               `json:"message,omitempty"`
}

type RunProgressResponseDTO struct {
	Id     uuid.UUID            `json:"id"`
	State  constants.StageState `json:"state"`
	Stages []StageStatus        `json:"stages"`
}
