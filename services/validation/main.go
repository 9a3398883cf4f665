package validation

import (
	"fmt"
	"os"
	"strings"

	"prio/pipeline/models"
	"prio/pipeline/models/pipeline"

	referenceVersion "prio/pipeline/models/constants/reference-version"
)

var (
	validVcfExtensions       = []string{".vcf", ".vcf.gz"}
	validPhenotypeExtensions = []string{".hpo", ".txt"}
)

// ValidateRunParams checks every required run parameter and returns
// the complete list of violations (no short-circuiting) so the
// operator gets full diagnostics in one pass. The pipeline must not
// start any stage when this list is non-empty.
func ValidateRunParams(params *models.RunParams) []*pipeline.ValidationError {
	var violations []*pipeline.ValidationError

	// input_vcf : present, on disk, .vcf / .vcf.gz
	if params.InputVcf == "" {
		violations = append(violations, &pipeline.ValidationError{
			Param: "input_vcf", Reason: "missing required parameter"})
	} else if !hasAnySuffix(params.InputVcf, validVcfExtensions) {
		violations = append(violations, &pipeline.ValidationError{
			Param:  "input_vcf",
			Reason: fmt.Sprintf("expected one of extensions %v, got '%s'", validVcfExtensions, params.InputVcf)})
	} else if err := mustBeFile(params.InputVcf); err != nil {
		violations = append(violations, &pipeline.ValidationError{
			Param: "input_vcf", Reason: err.Error()})
	}

	// input_hpo : present, on disk, .hpo / .txt
	if params.InputHpo == "" {
		violations = append(violations, &pipeline.ValidationError{
			Param: "input_hpo", Reason: "missing required parameter"})
	} else if !hasAnySuffix(params.InputHpo, validPhenotypeExtensions) {
		violations = append(violations, &pipeline.ValidationError{
			Param:  "input_hpo",
			Reason: fmt.Sprintf("expected one of extensions %v, got '%s'", validPhenotypeExtensions, params.InputHpo)})
	} else if err := mustBeFile(params.InputHpo); err != nil {
		violations = append(violations, &pipeline.ValidationError{
			Param: "input_hpo", Reason: err.Error()})
	}

	// reference_directory : present, a directory (not a file)
	if params.ReferenceDirectory == "" {
		violations = append(violations, &pipeline.ValidationError{
			Param: "reference_directory", Reason: "missing required parameter"})
	} else if info, err := os.Stat(params.ReferenceDirectory); err != nil {
		violations = append(violations, &pipeline.ValidationError{
			Param: "reference_directory", Reason: fmt.Sprintf("path does not exist: %s", params.ReferenceDirectory)})
	} else if !info.IsDir() {
		violations = append(violations, &pipeline.ValidationError{
			Param: "reference_directory", Reason: fmt.Sprintf("not a directory: %s", params.ReferenceDirectory)})
	}

	// reference_version : closed enum
	if params.ReferenceVersion == "" {
		violations = append(violations, &pipeline.ValidationError{
			Param: "reference_version", Reason: "missing required parameter"})
	} else if !referenceVersion.IsKnownReferenceVersion(params.ReferenceVersion) {
		violations = append(violations, &pipeline.ValidationError{
			Param:  "reference_version",
			Reason: fmt.Sprintf("expected one of [hg19 hg38], got '%s'", params.ReferenceVersion)})
	}

	return violations
}

func hasAnySuffix(path string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(strings.ToLower(path), suffix) {
			return true
		}
	}
	return false
}

func mustBeFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("expected a file, got a directory: %s", path)
	}
	return nil
}
