package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swistrip/pkg/bids"
)

// Summary counts the sessions of a batch run
type Summary struct {
	RunID     string
	Processed int
	Skipped   int
	Failed    int

	// Failures maps "sub/ses" to the error message
	Failures map[string]string
}

// Batch processes every session of the BIDS dataset at root. Sessions that
// fail are logged and counted; only discovery errors and cancellation stop
// the run.
func (r *Runner) Batch(ctx context.Context, root string) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("runID", runID))

	sessions, skipped, err := bids.Discover(root, bids.Options{
		SwiSuffix: r.cfg.Dataset.SwiSuffix,
		Limit:     r.cfg.Dataset.Limit,
	})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:    runID,
		Skipped:  len(skipped),
		Failures: map[string]string{},
	}
	for _, s := range skipped {
		logger.Warn("Skipping session",
			zap.String("subject", s.Subject),
			zap.String("session", s.Session),
			zap.String("reason", s.Reason))
	}
	logger.Info("Starting batch",
		zap.String("root", root),
		zap.Int("sessions", len(sessions)),
		zap.Int("jobs", r.cfg.Dataset.Jobs))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	jobs := r.cfg.Dataset.Jobs
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)

	for _, s := range sessions {
		s := s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			sessionLog := logger.With(zap.String("subject", s.Subject), zap.String("session", s.Session))
			sessionLog.Info("Processing session")

			in := Input{
				SWI:    s.SWI,
				FLAIR:  s.FLAIR,
				Prefix: s.Output(""),
			}
			_, err := r.runSession(gctx, in, sessionLog, runID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				sessionLog.Error("Session failed", zap.Error(err))
				summary.Failed++
				summary.Failures[s.ID()] = err.Error()
				return nil
			}
			summary.Processed++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	logger.Info("Batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)))
	return summary, nil
}
