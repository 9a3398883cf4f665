package scatter

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"prio/pipeline/models/pipeline"
	"prio/pipeline/services/artifacts"
	"prio/pipeline/utils"
)

/*
	The two merge strategies gather supports. Both refuse to merge
	until every shard of the scatter has completed, and both emit
	data rows in ascending chromosome order regardless of the order
	shards finished in.

	The header of a shard file is its leading run of '#'-prefixed
	lines (VCF style); when a shard has none, its single first line
	is taken as the header row (plain tabular style). Every shard of
	one gather is expected to carry an identical header.
*/

// GatherHeaderOnce concatenates tabular shard outputs with the shared
// header emitted exactly once
func (c *Controller) GatherHeaderOnce(set *ShardSet, dest artifacts.ArtifactRef) (string, error) {
	orderedPaths, err := c.completedInOrder(set)
	if err != nil {
		return "", err
	}

	if _, err := c.Store.Put(dest, func(w io.Writer) error {
		for shardIndex, shardPath := range orderedPaths {
			if err := writeShardRows(w, shardPath, shardIndex == 0); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return "", err
	}

	fmt.Printf("[%s] - Stage '%s' gathered %d shard(s) into %s\n",
		time.Now(), set.Stage, len(orderedPaths), dest)

	return c.Store.Path(dest), nil
}

// GatherCompressed merges compressed tabular shard outputs: the first
// shard's full compressed stream seeds the result, and each later
// shard contributes its header-stripped data rows re-compressed as an
// appended gzip member.
func (c *Controller) GatherCompressed(set *ShardSet, dest artifacts.ArtifactRef) (string, error) {
	orderedPaths, err := c.completedInOrder(set)
	if err != nil {
		return "", err
	}

	if _, err := c.Store.Put(dest, func(w io.Writer) error {
		seed, err := os.Open(orderedPaths[0])
		if err != nil {
			return fmt.Errorf("failed to open seed shard %s: %w", orderedPaths[0], err)
		}
		if _, err := io.Copy(w, seed); err != nil {
			seed.Close()
			return err
		}
		seed.Close()

		for _, shardPath := range orderedPaths[1:] {
			gzipMember := gzip.NewWriter(w)
			if err := writeShardRows(gzipMember, shardPath, false); err != nil {
				gzipMember.Close()
				return err
			}
			if err := gzipMember.Close(); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return "", err
	}

	return c.Store.Path(dest), nil
}

// completedInOrder asserts every shard completed and returns the
// completed output paths in ascending chromosome order
func (c *Controller) completedInOrder(set *ShardSet) ([]string, error) {
	if missing := set.MissingKeys(); len(missing) > 0 {
		return nil, &pipeline.ShardFailure{Stage: set.Stage, MissingKeys: missing}
	}
	if len(set.shards) == 0 {
		return nil, fmt.Errorf("stage '%s': nothing to gather, scatter produced no shards", set.Stage)
	}

	paths := make([]string, 0, len(set.shards))
	for _, shard := range set.Shards() {
		path, _ := set.resultFor(shard.Key)
		paths = append(paths, path)
	}
	return paths, nil
}

// writeShardRows streams one shard's rows into w, emitting the header
// only when requested
func writeShardRows(w io.Writer, shardPath string, includeHeader bool) error {
	scanner, closeShard, err := utils.OpenVcfScanner(shardPath)
	if err != nil {
		return err
	}
	defer closeShard()

	firstLine := true
	hashStyleHeader := false
	inLeadingHeader := true
	for scanner.Scan() {
		line := scanner.Text()

		if firstLine {
			hashStyleHeader = strings.HasPrefix(line, "#")
		}

		isHeader := false
		if hashStyleHeader {
			if inLeadingHeader && strings.HasPrefix(line, "#") {
				isHeader = true
			} else {
				inLeadingHeader = false
			}
		} else if firstLine {
			isHeader = true
		}
		firstLine = false

		if !isHeader || includeHeader {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
