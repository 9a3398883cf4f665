package models

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

// RunParams is the explicit, validated per-run configuration handed to
// every stage invocation (no stage reads ambient/global state).
type RunParams struct {
	InputVcf           string `mapstructure:"input_vcf"`
	InputHpo           string `mapstructure:"input_hpo"`
	ReferenceDirectory string `mapstructure:"reference_directory"`
	ReferenceVersion   string `mapstructure:"reference_version"`
	RunId              string `mapstructure:"run_id"`
	OutputDirectory    string `mapstructure:"output_directory"`
	RenameTablePath    string `mapstructure:"rename_table"`
}

// DecodeRunParams casts a generic parameter bag (as received from the
// process boundary) into a typed RunParams
func DecodeRunParams(bag map[string]interface{}) (*RunParams, error) {
	var params RunParams
	if err := mapstructure.Decode(bag, &params); err != nil {
		return nil, fmt.Errorf("failed to decode run parameters: %w", err)
	}
	return &params, nil
}

// ChromosomeRenames maps source contig names (e.g. "chr1", "MT") to the
// pipeline's canonical chromosome identifiers. Consumed by the
// normalization stage ahead of the chromosome restriction.
type ChromosomeRenames map[string]string

func LoadChromosomeRenames(path string) (ChromosomeRenames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rename table %s: %w", path, err)
	}
	defer f.Close()

	renames := ChromosomeRenames{}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&renames); err != nil {
		return nil, fmt.Errorf("failed to parse rename table %s: %w", path, err)
	}

	return renames, nil
}
