package scatter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"prio/pipeline/models"
	"prio/pipeline/models/constants/chromosome"
	"prio/pipeline/services/artifacts"
	"prio/pipeline/utils"

	"github.com/ahmetb/go-linq"
	"golang.org/x/sync/errgroup"
)

type (
	// Shard is one chromosome-partitioned unit of work
	Shard struct {
		Key  string
		Path string
	}

	// ShardSet is the tracked collection of one scatter's work items
	// and their completion status, so gather can assert completeness
	// before merging anything.
	ShardSet struct {
		Stage string

		mux     sync.Mutex
		shards  []Shard
		results map[string]string
	}

	Controller struct {
		Store            *artifacts.Store
		ShardConcurrency int
	}
)

func NewScatterGatherController(store *artifacts.Store, cfg *models.Config) *Controller {
	return &Controller{
		Store:            store,
		ShardConcurrency: cfg.Pipeline.ShardProcessingConcurrencyLevel,
	}
}

// Scatter splits a VCF artifact into one shard per chromosome present
// in it. The chromosome list is discovered from the file's content,
// never assumed; every shard carries the full header so downstream
// tools can consume it as a standalone VCF. The allowed-chromosome
// set was enforced upstream exactly once -- a non-canonical contig
// surviving to this point is a pipeline bug and fails the scatter.
func (c *Controller) Scatter(runId string, stage string, vcfPath string) (*ShardSet, error) {
	scanner, closeVcf, err := utils.OpenVcfScanner(vcfPath)
	if err != nil {
		return nil, err
	}
	defer closeVcf()

	var headerLines []string
	rowsByChromosome := map[string][]string{}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			headerLines = append(headerLines, line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		chrom := chromosome.Normalize(strings.SplitN(line, "\t", 2)[0])
		if !chromosome.IsCanonicalChromosome(chrom) {
			return nil, fmt.Errorf("stage '%s': non-canonical chromosome '%s' reached scatter; "+
				"the restriction stage should have removed it", stage, chrom)
		}
		rowsByChromosome[chrom] = append(rowsByChromosome[chrom], line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stage '%s': failed to scan %s: %w", stage, vcfPath, err)
	}

	// ascending canonical chromosome order, regardless of the order
	// rows appeared in the file
	var keys []string
	linq.From(rowsByChromosome).SelectT(func(kv linq.KeyValue) string {
		return kv.Key.(string)
	}).OrderByT(func(key string) int {
		return chromosome.Rank(key)
	}).ToSlice(&keys)

	set := &ShardSet{Stage: stage, results: map[string]string{}}
	for _, key := range keys {
		ref := artifacts.ArtifactRef{RunId: runId, Stage: stage, Output: "shard.vcf", ShardKey: key}
		rows := rowsByChromosome[key]

		if _, err := c.Store.Put(ref, func(w io.Writer) error {
			for _, headerLine := range headerLines {
				if _, err := fmt.Fprintln(w, headerLine); err != nil {
					return err
				}
			}
			for _, row := range rows {
				if _, err := fmt.Fprintln(w, row); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return nil, err
		}

		set.shards = append(set.shards, Shard{Key: key, Path: c.Store.Path(ref)})
	}

	fmt.Printf("[%s] - Stage '%s' scattered %s into %d shard(s): %v\n",
		time.Now(), stage, vcfPath, len(keys), keys)

	return set, nil
}

// NewShardSet builds a tracked set over an existing shard list; used
// when one scatter's workers feed more than one gather (e.g. a
// tabular and a compressed output per shard)
func NewShardSet(stage string, shards []Shard) *ShardSet {
	set := &ShardSet{Stage: stage, results: map[string]string{}}
	set.shards = append(set.shards, shards...)
	return set
}

// Shards returns the work items in ascending chromosome order
func (s *ShardSet) Shards() []Shard {
	out := make([]Shard, len(s.shards))
	copy(out, s.shards)
	return out
}

func (s *ShardSet) Keys() []string {
	keys := make([]string, 0, len(s.shards))
	for _, shard := range s.shards {
		keys = append(keys, shard.Key)
	}
	return keys
}

// Complete records the finished output for one shard key
func (s *ShardSet) Complete(key string, outputPath string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if !utils.StringInSlice(key, s.Keys()) {
		return fmt.Errorf("stage '%s': completion reported for unknown shard key '%s'", s.Stage, key)
	}

	s.results[key] = outputPath
	return nil
}

// MissingKeys lists shard keys without a completed result, in
// ascending chromosome order
func (s *ShardSet) MissingKeys() []string {
	s.mux.Lock()
	defer s.mux.Unlock()

	var missing []string
	for _, shard := range s.shards {
		if _, ok := s.results[shard.Key]; !ok {
			missing = append(missing, shard.Key)
		}
	}
	return missing
}

func (s *ShardSet) resultFor(key string) (string, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	path, ok := s.results[key]
	return path, ok
}

// Process applies the worker to every shard independently and in
// parallel (bounded by the controller's shard concurrency level),
// recording each completion in the set. The first worker error is
// returned; workers already running are left to finish.
func (c *Controller) Process(ctx context.Context, set *ShardSet, worker func(ctx context.Context, shard Shard) (string, error)) error {
	eg := &errgroup.Group{}
	eg.SetLimit(c.ShardConcurrency)

	for _, shard := range set.Shards() {
		shard := shard
		eg.Go(func() error {
			outputPath, err := worker(ctx, shard)
			if err != nil {
				return fmt.Errorf("shard '%s': %w", shard.Key, err)
			}
			return set.Complete(shard.Key, outputPath)
		})
	}

	return eg.Wait()
}
