package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

/*
	The pipeline's error taxonomy. Every failure surfaced to the
	operator names the stage or parameter it originated from --
	nothing is reported as a bare exit code.
*/

var ErrNotFound = errors.New("artifact not found")

// ValidationError reports one unusable run parameter. A run with any
// validation errors never starts a stage.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter '%s': %s", e.Param, e.Reason)
}

// ReferenceBuildError is fatal for the run; reference fetch/build
// failures are not retried at this layer.
type ReferenceBuildError struct {
	Version string
	Step    string
	Err     error
}

func (e *ReferenceBuildError) Error() string {
	return fmt.Sprintf("reference build for '%s' failed at %s: %v", e.Version, e.Step, e.Err)
}

func (e *ReferenceBuildError) Unwrap() error { return e.Err }

// ToolFailure carries the exit code and the tail of the combined
// output of a failed external tool invocation.
type ToolFailure struct {
	Stage      string
	Command    string
	ExitCode   int
	OutputTail []string
}

func (e *ToolFailure) Error() string {
	return fmt.Sprintf("stage '%s': tool '%s' exited with code %d\n%s",
		e.Stage, e.Command, e.ExitCode, strings.Join(e.OutputTail, "\n"))
}

// ShardFailure means a gather was attempted while one or more shards
// of its scatter had not completed.
type ShardFailure struct {
	Stage       string
	MissingKeys []string
}

func (e *ShardFailure) Error() string {
	return fmt.Sprintf("stage '%s': shard(s) did not complete: %s",
		e.Stage, strings.Join(e.MissingKeys, ", "))
}

// StageSkipped marks a stage that never ran because an upstream
// producer failed.
type StageSkipped struct {
	Stage    string
	Upstream string
}

func (e *StageSkipped) Error() string {
	return fmt.Sprintf("stage '%s' skipped: upstream stage '%s' failed", e.Stage, e.Upstream)
}

// ContentFallback is not an error: it records that a stage recognized
// a degenerate input shape and took its documented substitute
// behavior instead of invoking (or keeping the output of) its tool.
type ContentFallback struct {
	Stage  string
	Reason string
}

func (f *ContentFallback) String() string {
	return fmt.Sprintf("stage '%s' fell back: %s", f.Stage, f.Reason)
}
