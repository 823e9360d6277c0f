package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/sessions/internal/infrastructure/metrics"
)

// PingFunc probes one dependency.
type PingFunc func(ctx context.Context) error

// BufferSizer reports the depth of the operation buffer.
type BufferSizer interface {
	Len() (int, error)
}

// Probes lists what the monitor checks. Nil probes report the dependency as down.
type Probes struct {
	Postgres PingFunc
	Redis    PingFunc
	Buffer   BufferSizer
}

// Monitor keeps a periodically refreshed view of tier reachability.
type Monitor struct {
	probes  Probes
	metrics *metrics.Sessions

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

func New(probes Probes, m *metrics.Sessions, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probes:   probes,
		metrics:  m,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger.Named("monitor"),
	}
}

// Start probes once synchronously, then keeps probing in the background.
func (m *Monitor) Start() {
	m.Refresh()
	go m.loop()
}

// Stop halts probing. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether Postgres answered the last probe. Buffered writes target
// Postgres only, so Redis does not factor in.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.PostgreSQL
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every probe now and publishes the result.
func (m *Monitor) Refresh() {
	bufferOK, bufferSize := m.checkBuffer()
	status := Status{
		PostgreSQL: m.ping(m.probes.Postgres, 3*time.Second),
		Redis:      m.ping(m.probes.Redis, 2*time.Second),
		Buffer:     bufferOK,
		BufferSize: bufferSize,
		LastCheck:  time.Now(),
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	m.metrics.Health(metrics.TierDatabase, status.PostgreSQL)
	m.metrics.Health(metrics.TierCache, status.Redis)
	m.metrics.Depth(status.BufferSize)

	if !previous.LastCheck.IsZero() {
		if previous.PostgreSQL != status.PostgreSQL {
			m.logger.Info("postgres reachability changed", zap.Bool("online", status.PostgreSQL))
		}
		if previous.Redis != status.Redis {
			m.logger.Info("redis reachability changed", zap.Bool("online", status.Redis))
		}
	}
}

func (m *Monitor) ping(probe PingFunc, timeout time.Duration) bool {
	if probe == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return probe(ctx) == nil
}

func (m *Monitor) checkBuffer() (bool, int) {
	if m.probes.Buffer == nil {
		return false, 0
	}
	size, err := m.probes.Buffer.Len()
	if err != nil {
		m.logger.Warn("buffer size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
