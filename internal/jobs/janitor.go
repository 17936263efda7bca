// Package jobs runs periodic maintenance next to the HTTP server.
package jobs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-genart-backend/internal/repo"
	"github.com/tbourn/go-genart-backend/internal/services"
)

// DefaultSchedule runs the janitor every ten minutes (cron with seconds).
const DefaultSchedule = "0 */10 * * * *"

// Janitor removes stale per-request scratch directories and expired
// idempotency keys.
type Janitor struct {
	cron       *cron.Cron
	db         *gorm.DB
	workDir    string
	scratchTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewJanitor builds a Janitor. A nil db skips idempotency cleanup.
func NewJanitor(db *gorm.DB, workDir string, scratchTTL time.Duration, log zerolog.Logger) *Janitor {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Janitor{
		cron:       cron.New(cron.WithSeconds()),
		db:         db,
		workDir:    workDir,
		scratchTTL: scratchTTL,
		log:        log,
		now:        time.Now,
	}
}

// Start schedules the sweep and starts the cron runner.
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once running sweeps
// have finished.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := j.SweepScratch()
	if err != nil {
		j.log.Error().Err(err).Msg("scratch sweep failed")
	}
	expired, err := j.SweepIdempotency(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("idempotency sweep failed")
	}
	j.log.Debug().Int("scratch_removed", removed).Int64("idempotency_removed", expired).Msg("janitor sweep")
}

// SweepScratch deletes scratch directories under workDir older than the TTL.
// Directories of in-flight requests are younger than the TTL and are kept.
func (j *Janitor) SweepScratch() (int, error) {
	matches, err := filepath.Glob(filepath.Join(j.workDir, services.ScratchPattern))
	if err != nil {
		return 0, err
	}
	cutoff := j.now().Add(-j.scratchTTL)
	removed := 0
	for _, dir := range matches {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() || fi.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			j.log.Warn().Err(err).Str("dir", dir).Msg("remove scratch dir")
			continue
		}
		removed++
	}
	return removed, nil
}

// SweepIdempotency deletes idempotency keys past their expiry.
func (j *Janitor) SweepIdempotency(ctx context.Context) (int64, error) {
	if j.db == nil {
		return 0, nil
	}
	return repo.DeleteExpiredIdempotency(ctx, j.db, j.now().UTC())
}
