// Package housekeeping runs periodic maintenance for the auth server.
package housekeeping

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule purges expired verification tokens once an hour.
const DefaultSchedule = "@hourly"

// Purger deletes expired verification tokens. *portalauth.Engine
// implements it.
type Purger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// Scheduler drives a [Purger] on a cron schedule. A tick that fires while
// the previous purge is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	purger  Purger
	logger  logrus.FieldLogger
	timeout time.Duration
	// mu serialises RunOnce calls made outside the schedule.
	mu sync.Mutex
}

// New parses schedule (standard five-field cron or a descriptor such as
// "@hourly") and registers the purge job. Each run is bounded by timeout.
func New(purger Purger, schedule string, timeout time.Duration, logger logrus.FieldLogger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	log := logger.WithField("component", "housekeeping")
	clog := cronLogger{log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		purger:  purger,
		logger:  log,
		timeout: timeout,
	}

	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("schedule token purge %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("token purge failed")
	}
}

// RunOnce purges immediately and returns the number of rows removed.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.purger.PurgeExpiredTokens(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.WithField("purged", n).Info("expired verification tokens purged")
	return n, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running purge, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own logging through logrus. Its scheduling chatter
// goes to Debug; skipped runs are worth a warning.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	entry := l.logger.WithFields(cronFields(keysAndValues))
	if msg == "skip" {
		entry.Warn("token purge skipped, previous run still in progress")
		return
	}
	entry.Debug("cron " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(cronFields(keysAndValues)).WithError(err).Error("cron " + msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
