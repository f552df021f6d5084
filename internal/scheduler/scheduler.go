package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/tenantbill/internal/authorization"
	"github.com/smallbiznis/tenantbill/internal/clock"
	"github.com/smallbiznis/tenantbill/internal/config"
	"github.com/smallbiznis/tenantbill/internal/lock"
	obsmetrics "github.com/smallbiznis/tenantbill/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/tenantbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobAutoRenewal = "auto_renewal"
	JobExpiration  = "expiration"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Repo            subscriptiondomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	AuthzSvc        authorization.Service

	Locker  *lock.Locker                `optional:"true"`
	Billing *config.BillingConfigHolder `optional:"true"`
	Config  Config                      `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	repo            subscriptiondomain.Repository
	subscriptionSvc subscriptiondomain.Service
	authzSvc        authorization.Service
	locker          *lock.Locker
	billing         *config.BillingConfigHolder
}

// Report summarizes one sweep run. Deferred is set when another replica held
// the sweep lock and nothing was attempted.
type Report struct {
	Job       string
	RunID     string
	Processed int
	Skipped   int
	Failed    int
	Deferred  bool
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.SubscriptionSvc == nil || p.AuthzSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		repo:            p.Repo,
		subscriptionSvc: p.SubscriptionSvc,
		authzSvc:        p.AuthzSvc,
		locker:          p.Locker,
		billing:         p.Billing,
	}, nil
}

func (s *Scheduler) currentConfig() Config {
	if s.billing == nil {
		return s.cfg
	}
	return fromSweeps(s.billing.Get().Sweeps, s.cfg)
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout: unfinished rows are picked up next run
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled sweep once, renewals first.
func (s *Scheduler) RunOnce(parent context.Context) error {
	cfg := s.currentConfig()
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) (Report, error)
	}{
		{JobAutoRenewal, s.RunAutoRenewalSweep},
		{JobExpiration, s.RunExpirationSweep},
	}
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		run := job.Run
		err = errors.Join(err, s.runJob(parent, job.Name, cfg.BatchSize, cfg.JobTimeout, func(ctx context.Context) error {
			_, err := run(ctx)
			return err
		}))
	}
	return err
}

// RunForever fires the sweeps on their cron schedules until ctx is done.
// Schedules are read once; other sweep settings follow config reloads.
func (s *Scheduler) RunForever(ctx context.Context) {
	cfg := s.currentConfig()
	logger := cronLogger{log: s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		cron.WithLogger(logger),
	)

	schedules := []struct {
		job  string
		spec string
		run  func(context.Context) (Report, error)
	}{
		{JobAutoRenewal, cfg.RenewalSchedule, s.RunAutoRenewalSweep},
		{JobExpiration, cfg.ExpirationSchedule, s.RunExpirationSweep},
	}
	for _, sch := range schedules {
		if !s.isJobEnabled(sch.job) {
			continue
		}
		job, run := sch.job, sch.run
		if _, err := c.AddFunc(sch.spec, func() {
			current := s.currentConfig()
			if err := s.runJob(ctx, job, current.BatchSize, current.JobTimeout, func(ctx context.Context) error {
				_, err := run(ctx)
				return err
			}); err != nil {
				s.log.Warn("scheduler run failed", zap.String("job", job), zap.Error(err))
			}
		}); err != nil {
			s.log.Error("invalid sweep schedule", zap.String("job", job), zap.String("spec", sch.spec), zap.Error(err))
		}
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// RunAutoRenewalSweep renews every auto-renewing active subscription whose
// renewal date falls within the renewal window.
func (s *Scheduler) RunAutoRenewalSweep(ctx context.Context) (Report, error) {
	cutoff := s.clock.Now().Add(subscriptiondomain.RenewalWindow)
	return s.runSweep(ctx, sweepSpec{
		job:      JobAutoRenewal,
		resource: obsmetrics.LockResourceRenewalCandidates,
		action:   authorization.ActionSubscriptionAutoRenew,
		outcome:  obsmetrics.SweepOutcomeRenewed,
		claim: func(ctx context.Context, tx *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
			return s.repo.ClaimRenewalCandidates(ctx, tx, cutoff, afterID, limit)
		},
		apply: s.subscriptionSvc.AutoRenew,
	})
}

// RunExpirationSweep expires active subscriptions whose period has ended.
func (s *Scheduler) RunExpirationSweep(ctx context.Context) (Report, error) {
	now := s.clock.Now()
	return s.runSweep(ctx, sweepSpec{
		job:      JobExpiration,
		resource: obsmetrics.LockResourceExpirationCandidates,
		action:   authorization.ActionSubscriptionExpire,
		outcome:  obsmetrics.SweepOutcomeExpired,
		claim: func(ctx context.Context, tx *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
			return s.repo.ClaimExpirationCandidates(ctx, tx, now, afterID, limit)
		},
		apply: s.subscriptionSvc.Expire,
	})
}

type sweepSpec struct {
	job      string
	resource string
	action   string
	outcome  string
	claim    claimFunc
	apply    func(ctx context.Context, id snowflake.ID) (subscriptiondomain.SweepResult, error)
}

func (s *Scheduler) runSweep(parent context.Context, spec sweepSpec) (Report, error) {
	cfg := s.currentConfig()
	ctx, run, owner := s.ensureJobRun(parent, spec.job, cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	release, acquired, err := s.acquireSweepLock(ctx, spec.job, cfg.LockTTL)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.lock.failed", spec.job, 0, err)
		return run.report(), err
	}
	if !acquired {
		schedMetrics.IncBatchDeferred(spec.job, obsmetrics.SchedulerBatchDeferredReasonSweepLockHeld)
		s.logger(ctx).Info("scheduler.job.deferred",
			zap.String("job", spec.job),
			zap.String("run_id", run.runID),
			zap.String("reason", obsmetrics.SchedulerBatchDeferredReasonSweepLockHeld),
		)
		report := run.report()
		report.Deferred = true
		return report, nil
	}
	defer release()

	if err := s.authorizeSystem(ctx, spec.action); err != nil {
		s.logSchedulerError(ctx, run, "scheduler.authorize.failed", spec.job, 0, err)
		return run.report(), err
	}

	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return run.report(), err
		}

		ids, err := s.claimBatch(ctx, spec.resource, spec.claim, afterID, cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.batch.claim_failed", spec.job, 0, err)
			return run.report(), err
		}
		if len(ids) == 0 {
			break
		}
		schedMetrics.AddBatchProcessed(spec.job, spec.resource, len(ids))

		for _, id := range ids {
			s.logSubscriptionClaimed(ctx, spec.job, id)
			result, err := spec.apply(ctx, id)
			if err != nil {
				schedMetrics.IncSweepOutcome(spec.job, obsmetrics.SweepOutcomeFailed)
				s.logSchedulerError(ctx, run, "scheduler.subscription.process_failed", spec.job, id, err)
				continue
			}
			if !result.Applied {
				run.IncSkipped()
				schedMetrics.IncSweepOutcome(spec.job, obsmetrics.SweepOutcomeSkipped)
				continue
			}
			run.AddProcessed(1)
			schedMetrics.IncSweepOutcome(spec.job, spec.outcome)
		}

		afterID = ids[len(ids)-1]
		if len(ids) < cfg.BatchSize {
			break
		}
	}

	return run.report(), nil
}

func (s *Scheduler) authorizeSystem(ctx context.Context, action string) error {
	return s.authzSvc.Authorize(ctx, authorization.ActorSystem, "", "", authorization.ObjectSubscription, action)
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron."+msg, append(keysAndValues, "error", err)...)
}
