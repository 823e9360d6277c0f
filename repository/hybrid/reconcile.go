package hybrid

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/pkg/logger"
)

// Start schedules reconciliation every Config.ReconcileInterval. Cycles run with ctx and
// never overlap; a slow cycle pushes back the next one.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	cronLog := logger.Cron(s.logger)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	c.Schedule(cron.Every(s.cfg.ReconcileInterval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Reconcile(ctx); err != nil {
			s.logger.Warn("session reconciliation incomplete", zap.Error(err))
		}
	}))
	c.Start()
	s.cron = c

	s.logger.Info("session reconciliation started", zap.Duration("interval", s.cfg.ReconcileInterval))
}

// Stop halts reconciliation and waits for a running cycle until ctx is done.
func (s *Store) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("session reconciliation stopped")
}

// Reconcile runs one cycle: every cached session past its expiry is marked expired in the
// database and evicted from the cache. It returns how many sessions were evicted.
//
// When marking fails and the write cannot be buffered, the cache entry is kept so the next
// cycle retries it.
func (s *Store) Reconcile(ctx context.Context) (int, error) {
	now := s.now()

	var (
		scanned int
		expired []*domain.Session
	)
	scanErr := s.cache.Scan(ctx, func(session *domain.Session) error {
		scanned++
		if session.IsExpired(now) {
			expired = append(expired, session)
		}
		return nil
	})
	if scanErr != nil {
		s.cacheFailure(ctx, "reconcile_scan", scanErr)
	}

	evicted := 0
	for _, session := range expired {
		err := s.durable.MarkExpired(ctx, session.ID, now)
		if err != nil && !domain.IsNotFound(err) {
			s.databaseFailure(ctx, "mark_expired", err, zap.String("session_id", session.ID))
			deferred := s.deferWrite(ctx, domain.PendingOperation{
				Kind:      domain.PendingMarkExpired,
				SessionID: session.ID,
				At:        now,
			})
			if !deferred {
				s.metrics.Reconcile("retry")
				continue
			}
		}

		if err := s.cache.DeleteByToken(ctx, session.Token); err != nil {
			s.cacheFailure(ctx, "reconcile_evict", err, zap.String("session_id", session.ID))
			s.metrics.Reconcile("retry")
			continue
		}
		evicted++
		s.metrics.Reconcile("expired")
	}

	s.logger.Debug("session reconciliation finished",
		zap.Int("scanned", scanned),
		zap.Int("expired", len(expired)),
		zap.Int("evicted", evicted),
	)
	return evicted, scanErr
}
