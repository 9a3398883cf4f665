package artifacts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"prio/pipeline/models"
	"prio/pipeline/models/constants"
	"prio/pipeline/models/pipeline"
	"prio/pipeline/utils"
)

type (
	// ArtifactRef identifies one immutable pipeline output:
	// (run, producing stage, output name, optional shard key)
	ArtifactRef struct {
		RunId    string
		Stage    string
		Output   string
		ShardKey string
	}

	// Store is the filesystem-backed artifact store. All per-run
	// artifacts live under a run-scoped namespace; the reference
	// build is the sole exception, namespaced by reference version
	// so it can be shared across runs.
	Store struct {
		WorkDir    string
		ResultsDir string
	}
)

func (r ArtifactRef) FileName() string {
	if r.ShardKey != "" {
		return fmt.Sprintf("%s.%s", r.Output, r.ShardKey)
	}
	return r.Output
}

func (r ArtifactRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.RunId, r.Stage, r.FileName())
}

func NewArtifactStore(cfg *models.Config) *Store {
	return &Store{
		WorkDir:    cfg.Pipeline.WorkDir,
		ResultsDir: cfg.Pipeline.ResultsDir,
	}
}

// Path computes where an artifact lives (or will live) on disk,
// whether or not it exists yet
func (s *Store) Path(ref ArtifactRef) string {
	return filepath.Join(s.WorkDir, "runs", ref.RunId, ref.Stage, ref.FileName())
}

// ReferenceRoot is the version-scoped namespace shared across runs
func (s *Store) ReferenceRoot(version constants.ReferenceVersion) string {
	return filepath.Join(s.WorkDir, "reference", string(version))
}

// Put writes an artifact atomically (temp-then-rename) so a
// downstream consumer never observes a half-written file
func (s *Store) Put(ref ArtifactRef, write func(w io.Writer) error) (ArtifactRef, error) {
	if err := utils.AtomicWriteFile(s.Path(ref), write); err != nil {
		return ref, fmt.Errorf("failed to store artifact %s: %w", ref, err)
	}
	return ref, nil
}

// PutFile adopts an existing file (e.g. an external tool's declared
// output) as an artifact
func (s *Store) PutFile(ref ArtifactRef, srcPath string) (ArtifactRef, error) {
	if err := utils.CopyFile(srcPath, s.Path(ref)); err != nil {
		return ref, fmt.Errorf("failed to store artifact %s from %s: %w", ref, srcPath, err)
	}
	return ref, nil
}

// Get resolves an artifact reference to its on-disk path, or
// pipeline.ErrNotFound if it was never completed
func (s *Store) Get(ref ArtifactRef) (string, error) {
	path := s.Path(ref)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", pipeline.ErrNotFound, ref)
		}
		return "", err
	}
	return path, nil
}

func (s *Store) Exists(ref ArtifactRef) bool {
	_, err := s.Get(ref)
	return err == nil
}

// Publish copies a completed artifact into the user-facing results
// directory, organized by artifact category (vcf/, scoring/, prediction/)
func (s *Store) Publish(ref ArtifactRef, category constants.ArtifactCategory) (string, error) {
	srcPath, err := s.Get(ref)
	if err != nil {
		return "", err
	}

	destPath := filepath.Join(s.ResultsDir, string(category), filepath.Base(srcPath))
	if err := utils.CopyFile(srcPath, destPath); err != nil {
		return "", fmt.Errorf("failed to publish artifact %s: %w", ref, err)
	}

	return destPath, nil
}

// RunRoot is the scratch namespace owned by one run; sanitation
// removes it after the retention window
func (s *Store) RunRoot(runId string) string {
	return filepath.Join(s.WorkDir, "runs", runId)
}
