package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prio/pipeline/models"
)

/*
	Shared fixtures for the pipeline test suites: minimal VCF / HPO
	inputs and executable stand-ins for the external collaborators.
*/

// TestConfig returns a Config rooted in the test's temp space
func TestConfig(t *testing.T) *models.Config {
	t.Helper()

	var cfg models.Config
	cfg.Pipeline.WorkDir = filepath.Join(t.TempDir(), "work")
	cfg.Pipeline.ResultsDir = filepath.Join(t.TempDir(), "results")
	cfg.Pipeline.StageConcurrencyLevel = 4
	cfg.Pipeline.ShardProcessingConcurrencyLevel = 4
	cfg.Pipeline.ToolOutputTailLines = 20

	return &cfg
}

// VcfHeaderLines is the minimal header block shared by the fixture
// VCFs (meta lines plus the column header row)
func VcfHeaderLines() []string {
	return []string{
		"##fileformat=VCFv4.2",
		"##source=prio-test-fixture",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tSAMPLE01",
	}
}

// VcfRecord renders one data row with the given chromosome, position
// and FILTER value
func VcfRecord(chrom string, pos int, filter string) string {
	return strings.Join([]string{
		chrom, fmt.Sprint(pos), ".", "A", "G", "50", filter, "DP=10", "GT", "0/1",
	}, "\t")
}

// WriteVcf writes header lines followed by records to path
func WriteVcf(t *testing.T, path string, records []string) string {
	t.Helper()

	var lines []string
	lines = append(lines, VcfHeaderLines()...)
	lines = append(lines, records...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// WriteHpo writes a minimal phenotype term list
func WriteHpo(t *testing.T, path string) string {
	t.Helper()

	content := "HP:0001250\nHP:0004322\n"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// WriteScript drops an executable shell script into dir; used to
// stand in for external tools under test
func WriteScript(t *testing.T, dir string, name string, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	content := "#!/bin/sh\nset -e\n" + body + "\n"
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}
