package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/altynaay/fieldops/internal/backup"
	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/logger"
	"github.com/altynaay/fieldops/pkg/metrics"
)

const (
	defaultBackupSpec = "@daily"
	defaultRuleSpec   = "@every 5m"
)

// Scheduler coordinates the periodic background jobs: backup rotation and
// notification rule evaluation. Job failures are logged and counted, never
// propagated; a bad tick must not take the scheduler down.
type Scheduler struct {
	backups *backup.Service
	rules   *services.RuleEngine
	cron    *cron.Cron
	log     *zap.Logger
	enabled bool

	backupSchedule string
	ruleSchedule   string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithBackupSchedule overrides the cron specification for backup rotation.
func WithBackupSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.backupSchedule = spec
		}
	}
}

// WithRuleSchedule overrides the cron specification for rule evaluation.
func WithRuleSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.ruleSchedule = spec
		}
	}
}

// WithRuleInterval sets the rule evaluation cadence from a duration.
func WithRuleInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.ruleSchedule = "@every " + interval.String()
		}
	}
}

// WithBackupInterval sets the backup rotation cadence from a duration.
func WithBackupInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.backupSchedule = "@every " + interval.String()
		}
	}
}

// New constructs a Scheduler. A nil dependency disables the corresponding job.
func New(backups *backup.Service, rules *services.RuleEngine, opts ...Option) *Scheduler {
	s := &Scheduler{
		backups:        backups,
		rules:          rules,
		backupSchedule: defaultBackupSpec,
		ruleSchedule:   defaultRuleSpec,
		log:            logger.WithModule("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	s.enabled = s.backups != nil || s.rules != nil
	return s
}

// Start registers the enabled jobs and launches the scheduler.
func (s *Scheduler) Start() error {
	if !s.enabled {
		return nil
	}

	if s.backups != nil {
		if _, err := s.cron.AddFunc(s.backupSchedule, func() {
			s.runBackup(context.Background())
		}); err != nil {
			return err
		}
	}

	if s.rules != nil {
		if _, err := s.cron.AddFunc(s.ruleSchedule, func() {
			s.runRules(context.Background())
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("backup_schedule", s.backupSchedule),
		zap.String("rule_schedule", s.ruleSchedule))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every enabled job sequentially, collecting their errors.
// Used by tests and by the manual trigger endpoints.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if s.backups != nil {
		errs = multierr.Append(errs, s.runBackup(ctx))
	}
	if s.rules != nil {
		errs = multierr.Append(errs, s.runRules(ctx))
	}
	return errs
}

func (s *Scheduler) runBackup(ctx context.Context) error {
	info, err := s.backups.Rotate(ctx)
	if err != nil {
		metrics.SchedulerTicks.WithLabelValues("backup", "error").Inc()
		s.log.Warn("backup rotation failed", zap.Error(err))
		return err
	}
	metrics.SchedulerTicks.WithLabelValues("backup", "ok").Inc()
	s.log.Debug("backup rotation finished", zap.String("name", info.Name))
	return nil
}

func (s *Scheduler) runRules(ctx context.Context) error {
	created, err := s.rules.RunOnce(ctx)
	if err != nil {
		metrics.SchedulerTicks.WithLabelValues("rules", "error").Inc()
		s.log.Warn("rule evaluation failed", zap.Error(err))
		return err
	}
	metrics.SchedulerTicks.WithLabelValues("rules", "ok").Inc()
	if created > 0 {
		s.log.Debug("rule evaluation finished", zap.Int("created", created))
	}
	return nil
}
