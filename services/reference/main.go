package reference

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"prio/pipeline/models"
	"prio/pipeline/models/constants"
	"prio/pipeline/models/constants/chromosome"
	"prio/pipeline/models/pipeline"
	"prio/pipeline/services/artifacts"
	"prio/pipeline/services/tools"

	"github.com/Jeffail/gabs"
)

const completeMarkerFileName = "reference.ok"

type (
	// Build is the cached reference artifact set for one version:
	// the canonical-chromosome sequence, its index, and its dictionary
	Build struct {
		Version        constants.ReferenceVersion
		SequencePath   string
		IndexPath      string
		DictionaryPath string
	}

	// Builder produces a reference build into destDir. It is a
	// separate interface so the expensive fetch-and-index pipeline
	// can be swapped out under test.
	Builder interface {
		Build(ctx context.Context, version constants.ReferenceVersion, destDir string) error
	}

	// Cache memoizes reference builds by version. The version key is
	// the sole cache key (reference builds have no upstream
	// artifacts); a valid cached copy is never rebuilt, and
	// concurrent requests for the same version trigger at most one
	// build -- later callers block on the first builder's result.
	Cache struct {
		Store   *artifacts.Store
		Builder Builder

		versionLocksMux sync.Mutex
		versionLocks    map[constants.ReferenceVersion]*sync.Mutex
	}
)

func NewReferenceCache(store *artifacts.Store, builder Builder) *Cache {
	return &Cache{
		Store:        store,
		Builder:      builder,
		versionLocks: map[constants.ReferenceVersion]*sync.Mutex{},
	}
}

// GetOrBuild returns the reference build for the given version,
// executing the fetch-and-index pipeline exactly once per version.
// Any fetch or build failure is fatal for the calling run and is not
// retried at this layer.
func (c *Cache) GetOrBuild(ctx context.Context, version constants.ReferenceVersion) (*Build, error) {
	lock := c.lockFor(version)
	lock.Lock()
	defer lock.Unlock()

	root := c.Store.ReferenceRoot(version)
	if build, ok := c.cachedBuild(version, root); ok {
		return build, nil
	}

	fmt.Printf("[%s] - No cached reference build for '%s'; building..\n", time.Now(), version)

	// build into a temp sibling directory, then publish with a
	// rename so a concurrent process never sees a partial build
	parent := filepath.Dir(root)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, &pipeline.ReferenceBuildError{Version: string(version), Step: "prepare", Err: err}
	}
	tmpDir, err := os.MkdirTemp(parent, fmt.Sprintf(".tmp-%s-*", version))
	if err != nil {
		return nil, &pipeline.ReferenceBuildError{Version: string(version), Step: "prepare", Err: err}
	}
	defer os.RemoveAll(tmpDir)

	if err := c.Builder.Build(ctx, version, tmpDir); err != nil {
		return nil, &pipeline.ReferenceBuildError{Version: string(version), Step: "build", Err: err}
	}

	// completion marker is written last, inside the temp directory,
	// so the published directory is complete by construction
	markerPath := filepath.Join(tmpDir, completeMarkerFileName)
	if err := ioutil.WriteFile(markerPath, []byte(time.Now().String()+"\n"), 0644); err != nil {
		return nil, &pipeline.ReferenceBuildError{Version: string(version), Step: "publish", Err: err}
	}
	if err := os.Rename(tmpDir, root); err != nil {
		return nil, &pipeline.ReferenceBuildError{Version: string(version), Step: "publish", Err: err}
	}

	build, ok := c.cachedBuild(version, root)
	if !ok {
		return nil, &pipeline.ReferenceBuildError{
			Version: string(version), Step: "publish",
			Err: fmt.Errorf("build completed but expected files are missing under %s", root)}
	}

	fmt.Printf("[%s] - Reference build for '%s' published to %s\n", time.Now(), version, root)
	return build, nil
}

func (c *Cache) lockFor(version constants.ReferenceVersion) *sync.Mutex {
	c.versionLocksMux.Lock()
	defer c.versionLocksMux.Unlock()

	if _, ok := c.versionLocks[version]; !ok {
		c.versionLocks[version] = &sync.Mutex{}
	}
	return c.versionLocks[version]
}

func (c *Cache) cachedBuild(version constants.ReferenceVersion, root string) (*Build, bool) {
	build := &Build{
		Version:        version,
		SequencePath:   filepath.Join(root, "reference.fa"),
		IndexPath:      filepath.Join(root, "reference.fa.fai"),
		DictionaryPath: filepath.Join(root, "reference.dict"),
	}

	for _, required := range []string{
		filepath.Join(root, completeMarkerFileName),
		build.SequencePath,
		build.IndexPath,
		build.DictionaryPath,
	} {
		if _, err := os.Stat(required); err != nil {
			return nil, false
		}
	}

	return build, true
}

type (
	// ToolBuilder is the production Builder: it resolves the
	// sequence source for a version from the (JSON) reference index
	// manifest, downloads it, restricts it to the reference
	// chromosome set, and has the companion index and dictionary
	// built by external tools.
	ToolBuilder struct {
		Adapter        *tools.Adapter
		IndexUrl       string
		FetcherCommand string
	}
)

func NewToolBuilder(adapter *tools.Adapter, cfg *models.Config) *ToolBuilder {
	return &ToolBuilder{
		Adapter:        adapter,
		IndexUrl:       cfg.Reference.IndexUrl,
		FetcherCommand: cfg.Reference.Fetcher,
	}
}

func (b *ToolBuilder) Build(ctx context.Context, version constants.ReferenceVersion, destDir string) error {
	sequenceSource := string(version)
	if b.IndexUrl != "" {
		resolved, err := b.resolveSequenceUrl(version)
		if err != nil {
			return err
		}
		sequenceSource = resolved
	}

	// fetch + restrict to {1..22, X, Y, M} in one fetcher pass
	fetched, err := b.Adapter.Invoke(ctx, tools.Invocation{
		Stage:   "reference-fetch",
		Command: b.FetcherCommand,
		ArgsTemplate: []string{
			"--source", "{source}",
			"--chromosomes", "{chromosomes}",
			"--out", "reference.fa",
		},
		Outputs: []string{"reference.fa"},
	}, map[string]interface{}{
		"source":      sequenceSource,
		"chromosomes": strings.Join(chromosome.ReferenceChromosomes(), ","),
	})
	if err != nil {
		return err
	}
	sequencePath := filepath.Join(destDir, "reference.fa")
	if err := os.Rename(fetched["reference.fa"], sequencePath); err != nil {
		return err
	}

	// companion index
	if _, err := b.Adapter.Invoke(ctx, tools.Invocation{
		Stage:        "reference-index",
		Command:      "samtools",
		ArgsTemplate: []string{"faidx", "{sequence}"},
	}, map[string]interface{}{"sequence": sequencePath}); err != nil {
		return err
	}

	// companion dictionary
	if _, err := b.Adapter.Invoke(ctx, tools.Invocation{
		Stage:   "reference-dict",
		Command: "samtools",
		ArgsTemplate: []string{
			"dict", "{sequence}", "-o", "{dictionary}",
		},
	}, map[string]interface{}{
		"sequence":   sequencePath,
		"dictionary": filepath.Join(destDir, "reference.dict"),
	}); err != nil {
		return err
	}

	return nil
}

// resolveSequenceUrl pulls the reference index manifest and extracts
// the sequence URL for the requested version
func (b *ToolBuilder) resolveSequenceUrl(version constants.ReferenceVersion) (string, error) {
	response, err := http.Get(b.IndexUrl)
	if err != nil {
		return "", fmt.Errorf("failed to fetch reference index manifest: %w", err)
	}
	defer response.Body.Close()

	body, err := ioutil.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read reference index manifest: %w", err)
	}

	jsonParsed, err := gabs.ParseJSON(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse reference index manifest: %w", err)
	}

	urlValue, ok := jsonParsed.Path(fmt.Sprintf("builds.%s.url", version)).Data().(string)
	if !ok || urlValue == "" {
		return "", fmt.Errorf("reference index manifest has no entry for version '%s'", version)
	}

	return urlValue, nil
}
