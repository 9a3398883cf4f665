package sanitation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron"

	"prio/pipeline/models"
)

type (
	SanitationService struct {
		Initialized bool
		Config      *models.Config
	}
)

func NewSanitationService(cfg *models.Config) *SanitationService {
	ss := &SanitationService{
		Initialized: false,
		Config:      cfg,
	}

	ss.Init()

	return ss
}

func (ss *SanitationService) Init() {
	// initialization if necessary
	if !ss.Initialized {
		// - spin up a go routine that will periodically
		//   run through a series of steps to ensure
		//   the system is "sanitary" ; in a filesystem
		//   context, that means removing
		//   - orphaned tool scratch directories left behind
		//     by crashed runs
		//   - run workspaces older than the retention window
		//     (published results are never touched)
		go func() {
			// setup cron job
			s := gocron.NewScheduler(time.UTC)

			s.Every(ss.Config.Sanitation.SweepIntervalHours).Hours().Do(func() {
				fmt.Printf("[%s] - Running workspace cleanup..\n", time.Now())

				retention := time.Duration(ss.Config.Sanitation.RetentionHours) * time.Hour
				removed := ss.Sweep(retention)

				fmt.Printf("[%s] - Workspace cleanup removed %d item(s)..\n", time.Now(), removed)
			})

			s.StartBlocking()
		}()

		ss.Initialized = true
	}
}

// Sweep removes temp droppings and expired run workspaces under the
// configured work directory; returns the number of items removed
func (ss *SanitationService) Sweep(retention time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-retention)

	// orphaned temp directories/files anywhere under the work dir
	// (tool scratch, interrupted atomic writes, abandoned reference
	// builds). anything prefixed ".tmp-" older than the cutoff goes
	for _, parent := range []string{
		filepath.Join(ss.Config.Pipeline.WorkDir, "scratch"),
		filepath.Join(ss.Config.Pipeline.WorkDir, "reference"),
	} {
		entries, err := os.ReadDir(parent)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), ".tmp-") {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(parent, entry.Name())); err == nil {
				removed++
			}
		}
	}

	// expired run workspaces
	runsRoot := filepath.Join(ss.Config.Pipeline.WorkDir, "runs")
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		return removed
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(runsRoot, entry.Name())); err == nil {
			removed++
		}
	}

	return removed
}
