package constants

/*
	Defines a set of base level
	constants and enums to be used
	throughout the pipeline and it's
	associated services.
*/
type ReferenceVersion string

type StageState string

type ArtifactCategory string

// the fixed columns every well-formed VCF carries, lowercased,
// in declaration order (sample columns follow these)
var VcfHeaders = []string{"chrom", "pos", "id", "ref", "alt", "qual", "filter", "info", "format"}
