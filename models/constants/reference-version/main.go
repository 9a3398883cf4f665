package referenceVersion

import (
	"prio/pipeline/models/constants"
	"strings"
)

const (
	Unknown constants.ReferenceVersion = "Unknown"

	Hg19 constants.ReferenceVersion = "hg19"
	Hg38 constants.ReferenceVersion = "hg38"
)

func CastToReferenceVersion(text string) constants.ReferenceVersion {
	switch strings.ToLower(text) {
	case "hg19":
		return Hg19
	case "hg38":
		return Hg38
	default:
		return Unknown
	}
}

func IsKnownReferenceVersion(text string) bool {
	// attempt to cast to referenceVersion and
	// return if unknown referenceVersion
	return CastToReferenceVersion(text) != Unknown
}
