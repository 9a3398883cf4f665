package tools

import (
	"context"
	"os"
	"testing"

	"prio/pipeline/models/pipeline"
	"prio/pipeline/tests/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolAdapter(t *testing.T) {
	cfg := common.TestConfig(t)
	adapter := NewToolAdapter(cfg)
	scriptDir := t.TempDir()

	t.Run("collects declared outputs on a clean exit", func(t *testing.T) {
		script := common.WriteScript(t, scriptDir, "make-output", `printf 'row-1\nrow-2\n' > "$1"`)

		outputs, err := adapter.Invoke(context.Background(), Invocation{
			Stage:        "quality-filter",
			Command:      script,
			ArgsTemplate: []string{"filtered.vcf"},
			Outputs:      []string{"filtered.vcf"},
		}, nil)
		require.Nil(t, err)

		content, err := os.ReadFile(outputs["filtered.vcf"])
		require.Nil(t, err)
		assert.Equal(t, "row-1\nrow-2\n", string(content))
	})

	t.Run("renders argument templates from bindings", func(t *testing.T) {
		script := common.WriteScript(t, scriptDir, "echo-args", `printf '%s %s\n' "$1" "$2" > rendered.txt`)

		outputs, err := adapter.Invoke(context.Background(), Invocation{
			Stage:        "id-annotate",
			Command:      script,
			ArgsTemplate: []string{"--vcf={vcf}", "--ref={reference}"},
			Outputs:      []string{"rendered.txt"},
		}, map[string]interface{}{
			"vcf":       "/data/in.vcf",
			"reference": "/ref/reference.fa",
		})
		require.Nil(t, err)

		content, err := os.ReadFile(outputs["rendered.txt"])
		require.Nil(t, err)
		assert.Equal(t, "--vcf=/data/in.vcf --ref=/ref/reference.fa\n", string(content))
	})

	t.Run("captures stdout as a declared output", func(t *testing.T) {
		script := common.WriteScript(t, scriptDir, "stdout-tool", `printf 'scored\n'`)

		outputs, err := adapter.Invoke(context.Background(), Invocation{
			Stage:        "phrank-score",
			Command:      script,
			ArgsTemplate: []string{},
			Outputs:      []string{"scores.tsv"},
			StdoutTo:     "scores.tsv",
		}, nil)
		require.Nil(t, err)

		content, err := os.ReadFile(outputs["scores.tsv"])
		require.Nil(t, err)
		assert.Equal(t, "scored\n", string(content))
	})

	t.Run("a nonzero exit surfaces the code and the output tail", func(t *testing.T) {
		script := common.WriteScript(t, scriptDir, "fail-tool",
			`printf 'opening input\nmalformed record at line 7\n' >&2`+"\nexit 3")

		_, err := adapter.Invoke(context.Background(), Invocation{
			Stage:        "normalize",
			Command:      script,
			ArgsTemplate: []string{},
		}, nil)
		require.NotNil(t, err)

		var failure *pipeline.ToolFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "normalize", failure.Stage)
		assert.Equal(t, 3, failure.ExitCode)
		assert.Contains(t, failure.OutputTail, "malformed record at line 7")
	})

	t.Run("a clean exit without the declared output is still a failure", func(t *testing.T) {
		script := common.WriteScript(t, scriptDir, "liar-tool", `true`)

		_, err := adapter.Invoke(context.Background(), Invocation{
			Stage:        "genotype-call",
			Command:      script,
			ArgsTemplate: []string{},
			Outputs:      []string{"calls.vcf"},
		}, nil)
		require.NotNil(t, err)

		var failure *pipeline.ToolFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, 0, failure.ExitCode)
		assert.Contains(t, failure.OutputTail, "declared output 'calls.vcf' was not produced")
	})

	t.Run("the output tail keeps only the last lines", func(t *testing.T) {
		cfg := common.TestConfig(t)
		cfg.Pipeline.ToolOutputTailLines = 2
		shortTail := NewToolAdapter(cfg)

		script := common.WriteScript(t, scriptDir, "chatty-tool",
			`printf 'line-1\nline-2\nline-3\nline-4\n' >&2`+"\nexit 1")

		_, err := shortTail.Invoke(context.Background(), Invocation{
			Stage:        "normalize",
			Command:      script,
			ArgsTemplate: []string{},
		}, nil)
		require.NotNil(t, err)

		var failure *pipeline.ToolFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, []string{"line-3", "line-4"}, failure.OutputTail)
	})

	t.Run("retries rerun a flaky tool to success", func(t *testing.T) {
		marker := scriptDir + "/flaky.marker"
		script := common.WriteScript(t, scriptDir, "flaky-tool",
			`if [ ! -f `+marker+` ]; then touch `+marker+`; exit 1; fi`+"\ntouch ready.txt")

		outputs, err := adapter.Invoke(context.Background(), Invocation{
			Stage:         "frequency-exclude",
			Command:       script,
			ArgsTemplate:  []string{},
			Outputs:       []string{"ready.txt"},
			RetryAttempts: 2,
		}, nil)
		require.Nil(t, err)
		assert.FileExists(t, outputs["ready.txt"])
	})
}
