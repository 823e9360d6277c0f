package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/internal/infrastructure/buffer"
	"github.com/fastygo/sessions/internal/infrastructure/metrics"
	"github.com/fastygo/sessions/pkg/logger"
	"github.com/fastygo/sessions/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the buffer is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	// MaxAge bounds how long a write may wait; older items are purged unapplied.
	MaxAge time.Duration
}

// BufferProcessor replays buffered session writes against Postgres.
type BufferProcessor struct {
	store    *buffer.Store
	monitor  ConnectionHealth
	sessions repository.SessionStore
	metrics  *metrics.Sessions
	logger   *zap.Logger
	cfg      ProcessorConfig

	mu   sync.Mutex
	cron *cron.Cron
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	sessions repository.SessionStore,
	m *metrics.Sessions,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BufferProcessor{
		store:    store,
		monitor:  monitor,
		sessions: sessions,
		metrics:  m,
		logger:   logger.Named("buffer"),
		cfg:      cfg,
	}
}

// Start schedules a drain every Interval.
func (bp *BufferProcessor) Start(ctx context.Context) {
	if bp == nil || bp.store == nil {
		return
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.cron != nil {
		return
	}

	cronLog := logger.Cron(bp.logger)
	bp.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	bp.cron.Schedule(cron.Every(bp.cfg.Interval), cron.FuncJob(func() {
		drainCtx, cancel := context.WithTimeout(ctx, bp.cfg.Interval)
		defer cancel()
		if _, err := bp.Drain(drainCtx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	}))
	bp.cron.Start()
	bp.logger.Info("buffer processor started", zap.Duration("interval", bp.cfg.Interval))
}

// Stop gracefully stops the scheduler.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil {
		return
	}
	bp.mu.Lock()
	c := bp.cron
	bp.cron = nil
	bp.mu.Unlock()
	if c == nil {
		return
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("buffer processor stopped")
}

// Drain replays one batch synchronously, in enqueue order, and returns how many writes were
// applied. It stops early when Postgres turns out to be unreachable or a write has to be retried.
func (bp *BufferProcessor) Drain(ctx context.Context) (int, error) {
	if bp == nil || bp.store == nil {
		return 0, nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping buffer drain (offline)")
		return 0, nil
	}

	if purged, err := bp.store.Purge(time.Now().Add(-bp.cfg.MaxAge)); err != nil {
		bp.logger.Warn("buffer purge failed", zap.Error(err))
	} else if purged > 0 {
		bp.logger.Warn("purged stale buffered writes", zap.Int("count", purged))
	}

	items, err := bp.store.Peek(bp.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, item := range items {
		err := bp.processItem(ctx, item)
		switch {
		case err == nil:
			applied++
			bp.metrics.Replay(item.Operation, "applied")
			if err := bp.store.Ack(item); err != nil {
				bp.logger.Warn("failed to purge processed buffer item", zap.Error(err))
			}
		case domain.IsDomainError(err, domain.ErrCodeUnavailable):
			bp.logger.Debug("postgres unavailable, pausing drain", zap.Error(err))
			bp.updateDepth()
			return applied, nil
		default:
			bp.logger.Error("failed to process buffer item",
				zap.String("item_id", item.ID),
				zap.String("operation", item.Operation),
				zap.Error(err))
			if !bp.reject(item, err) {
				// Later writes may depend on this one.
				bp.updateDepth()
				return applied, nil
			}
		}
	}
	bp.updateDepth()
	return applied, nil
}

// Enqueue persists a pending write for the next drain.
func (bp *BufferProcessor) Enqueue(item buffer.Item) error {
	if bp == nil || bp.store == nil {
		return fmt.Errorf("buffer processor not configured")
	}
	if err := bp.store.Enqueue(item); err != nil {
		return err
	}
	bp.updateDepth()
	return nil
}

// Size returns the number of buffered items.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Len()
	if err != nil {
		return 0
	}
	return size
}

// reject drops items that can never apply and keeps the rest queued until MaxRetries.
// It reports whether the item was dropped.
func (bp *BufferProcessor) reject(item buffer.Item, cause error) bool {
	permanent := domain.IsDomainError(cause, domain.ErrCodeInvalid) ||
		domain.IsDomainError(cause, domain.ErrCodeCorrupt)
	if permanent || item.Retries+1 >= bp.cfg.MaxRetries {
		bp.logger.Warn("dropping buffer item", zap.String("item_id", item.ID), zap.Int("retries", item.Retries))
		bp.metrics.Replay(item.Operation, "dropped")
		if err := bp.store.Ack(item); err != nil {
			bp.logger.Warn("failed to remove buffer item", zap.Error(err))
		}
		return true
	}
	bp.metrics.Replay(item.Operation, "retry")
	if err := bp.store.Retry(item); err != nil {
		bp.logger.Error("failed to requeue buffer item", zap.Error(err))
	}
	return false
}

func (bp *BufferProcessor) processItem(ctx context.Context, item buffer.Item) error {
	op, err := item.SessionOperation()
	if err != nil {
		return err
	}

	switch op.Kind {
	case domain.PendingDeleteSession:
		return bp.sessions.DeleteByToken(ctx, op.Token)
	case domain.PendingDeleteUser:
		return bp.sessions.DeleteByUserID(ctx, op.UserID)
	case domain.PendingUpdateSession:
		if op.Patch == nil {
			return domain.ErrInvalidPayload
		}
		_, err = bp.sessions.Update(ctx, op.SessionID, *op.Patch)
	case domain.PendingMarkExpired:
		err = bp.sessions.MarkExpired(ctx, op.SessionID, op.At)
	default:
		return domain.NewError(domain.ErrCodeInvalid, "unsupported operation "+op.Kind)
	}
	// A session deleted in the meantime needs no further writes.
	if domain.IsNotFound(err) {
		return nil
	}
	return err
}

func (bp *BufferProcessor) updateDepth() {
	if n, err := bp.store.Len(); err == nil {
		bp.metrics.Depth(n)
	}
}
