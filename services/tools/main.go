package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"prio/pipeline/models"
	"prio/pipeline/models/pipeline"
	"prio/pipeline/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/fasttemplate"
)

type (
	// Invocation is the fixed command contract of one external
	// collaborator: a command name, an argument template rendered
	// from artifact paths and run parameters, and the output files
	// it is expected to leave behind in the working directory on a
	// zero exit.
	Invocation struct {
		Stage        string
		Command      string
		ArgsTemplate []string
		Outputs      []string
		// StdoutTo, when set, captures the tool's stdout as the
		// named declared output instead of a file the tool writes
		StdoutTo      string
		RetryAttempts uint64
	}

	// Adapter runs external tools in isolated working directories.
	// It does not interpret tool-specific semantics; stage-level
	// fallback decisions live with the stages themselves.
	Adapter struct {
		ScratchDir    string
		TailLineCount int
	}
)

func NewToolAdapter(cfg *models.Config) *Adapter {
	return &Adapter{
		ScratchDir:    filepath.Join(cfg.Pipeline.WorkDir, "scratch"),
		TailLineCount: cfg.Pipeline.ToolOutputTailLines,
	}
}

// Invoke renders the invocation's argument template against the given
// bindings (artifact paths, run parameters), executes the command in a
// fresh working directory, and collects the declared outputs.
// A nonzero exit maps to a *pipeline.ToolFailure carrying the exit
// code and the last few lines of combined output; any retrying of
// flaky tools happens here and nowhere else.
func (a *Adapter) Invoke(ctx context.Context, inv Invocation, bindings map[string]interface{}) (map[string]string, error) {
	if err := os.MkdirAll(a.ScratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	workDir, err := os.MkdirTemp(a.ScratchDir, fmt.Sprintf(".tmp-%s-*", inv.Stage))
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory for stage '%s': %w", inv.Stage, err)
	}

	args := make([]string, 0, len(inv.ArgsTemplate))
	for _, argTemplate := range inv.ArgsTemplate {
		args = append(args, fasttemplate.ExecuteString(argTemplate, "{", "}", bindings))
	}

	var outputs map[string]string
	operation := func() error {
		var runErr error
		outputs, runErr = a.runOnce(ctx, inv, args, workDir)
		return runErr
	}

	if inv.RetryAttempts > 0 {
		err = backoff.Retry(operation,
			backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), inv.RetryAttempts), ctx))
	} else {
		err = operation()
	}
	if err != nil {
		return nil, err
	}

	return outputs, nil
}

func (a *Adapter) runOnce(ctx context.Context, inv Invocation, args []string, workDir string) (map[string]string, error) {
	cmd := exec.CommandContext(ctx, inv.Command, args...)
	cmd.Dir = workDir

	combinedOutput := &bytes.Buffer{}
	cmd.Stderr = combinedOutput

	var stdoutPath string
	if inv.StdoutTo != "" {
		// tool writes its result to stdout; capture to a file in
		// the working directory alongside any other outputs
		stdoutPath = filepath.Join(workDir, inv.StdoutTo)
		stdoutFile, err := os.Create(stdoutPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout capture for stage '%s': %w", inv.Stage, err)
		}
		defer stdoutFile.Close()
		cmd.Stdout = stdoutFile
	} else {
		cmd.Stdout = combinedOutput
	}

	runErr := cmd.Run()
	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, &pipeline.ToolFailure{
			Stage:      inv.Stage,
			Command:    inv.Command,
			ExitCode:   exitCode,
			OutputTail: a.tail(combinedOutput),
		}
	}

	// a clean exit must still account for every declared output;
	// a missing one is treated as a tool failure, not a pass
	outputs := map[string]string{}
	for _, outputName := range inv.Outputs {
		outputPath := filepath.Join(workDir, outputName)
		if outputName == inv.StdoutTo {
			outputPath = stdoutPath
		}
		if _, statErr := os.Stat(outputPath); statErr != nil {
			return nil, &pipeline.ToolFailure{
				Stage:      inv.Stage,
				Command:    inv.Command,
				ExitCode:   0,
				OutputTail: append(a.tail(combinedOutput), fmt.Sprintf("declared output '%s' was not produced", outputName)),
			}
		}
		outputs[outputName] = outputPath
	}

	return outputs, nil
}

func (a *Adapter) tail(combinedOutput *bytes.Buffer) []string {
	tail := &utils.TailLines{N: a.TailLineCount}
	scanner := bufio.NewScanner(bytes.NewReader(combinedOutput.Bytes()))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			tail.Add(line)
		}
	}
	return tail.Lines()
}
