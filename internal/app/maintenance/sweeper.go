package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/campushq/rolegate/internal/cache"
	"github.com/campushq/rolegate/internal/services"
	"github.com/campushq/rolegate/pkg/logger"
)

const (
	defaultExpirySpec    = "@hourly"
	defaultRetentionSpec = "@daily"
	defaultCacheSpec     = "@every 10m"
)

// Sweeper coordinates background maintenance: expiring lapsed assignments and
// requests, enforcing audit retention, and pruning stale cache entries. Any
// nil dependency results in the corresponding job being skipped.
type Sweeper struct {
	roles   *services.RoleChangeService
	audit   *services.RoleAuditService
	store   cache.Store
	cron    *cron.Cron
	log     *zap.Logger
	enabled bool

	expirySchedule    string
	retentionSchedule string
	cacheSchedule     string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithExpirySchedule overrides the cron specification for assignment and
// request expiry.
func WithExpirySchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.expirySchedule = spec
		}
	}
}

// WithRetentionSchedule overrides the cron specification for audit retention.
func WithRetentionSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.retentionSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache pruning.
func WithCacheSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.cacheSchedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults.
func NewSweeper(roles *services.RoleChangeService, audit *services.RoleAuditService, store cache.Store, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		roles:             roles,
		audit:             audit,
		store:             store,
		expirySchedule:    defaultExpirySpec,
		retentionSchedule: defaultRetentionSpec,
		cacheSchedule:     defaultCacheSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	sweeper.enabled = sweeper.roles != nil || sweeper.audit != nil || sweeper.store != nil

	return sweeper
}

// Start registers the jobs with the cron scheduler and launches it if at
// least one job is enabled.
func (s *Sweeper) Start() error {
	if !s.enabled {
		return nil
	}

	if s.roles != nil {
		if _, err := s.cron.AddFunc(s.expirySchedule, func() {
			if err := s.sweepExpiries(context.Background()); err != nil {
				s.log.Warn("expiry sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.audit != nil {
		if _, err := s.cron.AddFunc(s.retentionSchedule, func() {
			if err := s.sweepRetention(context.Background()); err != nil {
				s.log.Warn("audit retention sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.store != nil {
		if _, err := s.cron.AddFunc(s.cacheSchedule, func() {
			if err := s.store.PruneExpired(context.Background()); err != nil {
				s.log.Warn("cache prune failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially.
// Primarily used in tests and during graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.roles != nil {
		errs = multierr.Append(errs, s.sweepExpiries(ctx))
	}
	if s.audit != nil {
		errs = multierr.Append(errs, s.sweepRetention(ctx))
	}
	if s.store != nil {
		errs = multierr.Append(errs, s.store.PruneExpired(ctx))
	}

	return errs
}

func (s *Sweeper) sweepExpiries(ctx context.Context) error {
	assignments, err := s.roles.ExpireAssignments(ctx)
	if err != nil {
		return err
	}
	requests, err := s.roles.ExpirePendingRequests(ctx)
	if err != nil {
		return err
	}
	if assignments > 0 || requests > 0 {
		s.log.Info("expiry sweep completed",
			zap.Int("assignments", assignments),
			zap.Int("requests", requests),
		)
	}
	return nil
}

func (s *Sweeper) sweepRetention(ctx context.Context) error {
	cutoff := s.audit.RetentionCutoff()
	if cutoff.IsZero() {
		return nil
	}
	pruned, err := s.audit.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if pruned > 0 {
		s.log.Info("audit retention enforced", zap.Int64("pruned", pruned))
	}
	return nil
}
