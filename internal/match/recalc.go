package match

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecalculateAll fans the funnel out across every profile with a bounded
// worker pool. Profiles are independent units: one profile's failure
// rolls back only that profile and the run continues. An error is
// returned only when no profile succeeds.
func (e *Engine) RecalculateAll(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 4
	}
	profiles, err := e.store.ListProfiles(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		e.logger.Warn("no profiles to recalculate")
		return nil
	}

	var succeeded, failed atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i := range profiles {
		profile := profiles[i]
		group.Go(func() error {
			if err := e.Recalculate(groupCtx, profile.OrgID); err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				failed.Add(1)
				e.logger.Error("profile recalculation failed",
					zap.String("org", profile.OrgID.String()),
					zap.String("name", profile.Name),
					zap.Error(err))
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	e.logger.Info("recalculation complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()))
	if succeeded.Load() == 0 && failed.Load() > 0 {
		return fmt.Errorf("recalculation failed for all %d profiles", failed.Load())
	}
	return nil
}
