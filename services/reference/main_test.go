package reference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"prio/pipeline/models/constants"
	"prio/pipeline/models/pipeline"
	"prio/pipeline/services/artifacts"
	"prio/pipeline/tests/common"

	referenceVersion "prio/pipeline/models/constants/reference-version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBuilder stands in for the expensive fetch-and-index
// pipeline and counts how often it actually runs
type countingBuilder struct {
	builds int32
	fail   bool
}

func (b *countingBuilder) Build(_ context.Context, version constants.ReferenceVersion, destDir string) error {
	atomic.AddInt32(&b.builds, 1)
	if b.fail {
		return fmt.Errorf("fetch refused")
	}

	for _, name := range []string{"reference.fa", "reference.fa.fai", "reference.dict"} {
		if err := os.WriteFile(filepath.Join(destDir, name), []byte(string(version)+"\n"), 0644); err != nil {
			return err
		}
	}
	return nil
}

func TestReferenceCache(t *testing.T) {
	t.Run("builds once and serves from cache afterwards", func(t *testing.T) {
		store := artifacts.NewArtifactStore(common.TestConfig(t))
		builder := &countingBuilder{}
		cache := NewReferenceCache(store, builder)

		first, err := cache.GetOrBuild(context.Background(), referenceVersion.Hg38)
		require.Nil(t, err)

		second, err := cache.GetOrBuild(context.Background(), referenceVersion.Hg38)
		require.Nil(t, err)

		assert.Equal(t, int32(1), atomic.LoadInt32(&builder.builds))
		assert.Equal(t, first.SequencePath, second.SequencePath)
		assert.FileExists(t, first.IndexPath)
		assert.FileExists(t, first.DictionaryPath)
	})

	t.Run("a durable build survives a fresh cache instance", func(t *testing.T) {
		cfg := common.TestConfig(t)
		store := artifacts.NewArtifactStore(cfg)

		warmBuilder := &countingBuilder{}
		_, err := NewReferenceCache(store, warmBuilder).GetOrBuild(context.Background(), referenceVersion.Hg19)
		require.Nil(t, err)

		coldBuilder := &countingBuilder{}
		_, err = NewReferenceCache(store, coldBuilder).GetOrBuild(context.Background(), referenceVersion.Hg19)
		require.Nil(t, err)

		assert.Equal(t, int32(0), atomic.LoadInt32(&coldBuilder.builds))
	})

	t.Run("distinct versions build independently", func(t *testing.T) {
		store := artifacts.NewArtifactStore(common.TestConfig(t))
		builder := &countingBuilder{}
		cache := NewReferenceCache(store, builder)

		hg19, err := cache.GetOrBuild(context.Background(), referenceVersion.Hg19)
		require.Nil(t, err)
		hg38, err := cache.GetOrBuild(context.Background(), referenceVersion.Hg38)
		require.Nil(t, err)

		assert.Equal(t, int32(2), atomic.LoadInt32(&builder.builds))
		assert.NotEqual(t, hg19.SequencePath, hg38.SequencePath)
	})

	t.Run("concurrent callers trigger at most one build", func(t *testing.T) {
		store := artifacts.NewArtifactStore(common.TestConfig(t))
		builder := &countingBuilder{}
		cache := NewReferenceCache(store, builder)

		var wg sync.WaitGroup
		results := make([]*Build, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				build, err := cache.GetOrBuild(context.Background(), referenceVersion.Hg38)
				assert.Nil(t, err)
				results[i] = build
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&builder.builds))
		for _, build := range results {
			require.NotNil(t, build)
			assert.Equal(t, results[0].SequencePath, build.SequencePath)
		}
	})

	t.Run("a failed build is fatal and leaves no cached copy", func(t *testing.T) {
		store := artifacts.NewArtifactStore(common.TestConfig(t))
		cache := NewReferenceCache(store, &countingBuilder{fail: true})

		_, err := cache.GetOrBuild(context.Background(), referenceVersion.Hg38)
		require.NotNil(t, err)

		var buildErr *pipeline.ReferenceBuildError
		assert.ErrorAs(t, err, &buildErr)
		assert.Equal(t, "hg38", buildErr.Version)

		// the failure must not have published a partial directory
		_, statErr := os.Stat(store.ReferenceRoot(referenceVersion.Hg38))
		assert.True(t, os.IsNotExist(statErr))
	})
}
