package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/tenantbill/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepLockPrefix = "tenantbill:sweep:"

type claimFunc func(ctx context.Context, tx *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error)

// claimBatch selects the next keyset page of candidates in a short
// transaction. Row locks are released on commit; each candidate is re-locked
// by the lifecycle operation that processes it.
func (s *Scheduler) claimBatch(ctx context.Context, resource string, claim claimFunc, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ids []snowflake.ID
	schedMetrics := obsmetrics.Scheduler()
	lockStart := time.Now()
	err := s.db.WithContext(claimCtx).Transaction(func(tx *gorm.DB) error {
		var err error
		ids, err = claim(claimCtx, tx, afterID, limit)
		return err
	})
	schedMetrics.ObserveDBLockWait(resource, time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// acquireSweepLock returns a release func and false when another replica holds
// the sweep. Without a configured locker every replica may sweep.
func (s *Scheduler) acquireSweepLock(ctx context.Context, job string, ttl time.Duration) (func(), bool, error) {
	if !s.locker.Enabled() {
		return func() {}, true, nil
	}
	key := sweepLockPrefix + job
	token, ok, err := s.locker.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release_failed",
				zap.String("job", job),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return release, true, nil
}
