package sanitation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"prio/pipeline/tests/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep(t *testing.T) {
	cfg := common.TestConfig(t)
	ss := &SanitationService{Config: cfg}

	mkdir := func(parts ...string) string {
		path := filepath.Join(append([]string{cfg.Pipeline.WorkDir}, parts...)...)
		require.Nil(t, os.MkdirAll(path, 0755))
		return path
	}

	staleScratch := mkdir("scratch", ".tmp-normalize-123")
	staleReference := mkdir("reference", ".tmp-hg38-456")
	staleRun := mkdir("runs", "old-run")
	freshScratch := mkdir("scratch", ".tmp-normalize-789")
	freshRun := mkdir("runs", "current-run")
	cachedReference := mkdir("reference", "hg38")

	// age the stale entries past the retention cutoff
	old := time.Now().Add(-48 * time.Hour)
	for _, path := range []string{staleScratch, staleReference, staleRun} {
		require.Nil(t, os.Chtimes(path, old, old))
	}

	removed := ss.Sweep(24 * time.Hour)
	assert.Equal(t, 3, removed)

	assert.NoDirExists(t, staleScratch)
	assert.NoDirExists(t, staleReference)
	assert.NoDirExists(t, staleRun)
	assert.DirExists(t, freshScratch)
	assert.DirExists(t, freshRun)
	assert.DirExists(t, cachedReference)
}
