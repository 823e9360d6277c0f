package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/fastygo/sessions/internal/infrastructure/metrics"
)

type fixedSizer int

func (s fixedSizer) Len() (int, error) { return int(s), nil }

func TestMonitor_Refresh(t *testing.T) {
	var pgDown atomic.Bool
	m := metrics.NewSessions(prometheus.NewRegistry())
	mon := New(Probes{
		Postgres: func(context.Context) error {
			if pgDown.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
		Redis:  func(context.Context) error { return errors.New("timeout") },
		Buffer: fixedSizer(4),
	}, m, time.Hour, zaptest.NewLogger(t))

	mon.Refresh()
	status := mon.GetStatus()
	assert.True(t, status.PostgreSQL)
	assert.False(t, status.Redis)
	assert.True(t, status.Buffer)
	assert.Equal(t, 4, status.BufferSize)
	assert.True(t, mon.IsOnline(), "redis outage must not block buffer replay")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TierUp.WithLabelValues(metrics.TierCache)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BufferDepth))

	pgDown.Store(true)
	mon.Refresh()
	assert.False(t, mon.IsOnline())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TierUp.WithLabelValues(metrics.TierDatabase)))
}

func TestMonitor_NilProbesAreDown(t *testing.T) {
	mon := New(Probes{}, nil, time.Hour, nil)
	mon.Start()
	defer mon.Stop()

	status := mon.GetStatus()
	assert.False(t, status.PostgreSQL)
	assert.False(t, status.Redis)
	assert.False(t, status.Buffer)
	assert.False(t, status.LastCheck.IsZero())
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	mon := New(Probes{}, nil, time.Millisecond, nil)
	mon.Start()
	mon.Stop()
	mon.Stop()

	select {
	case <-mon.doneCh:
	case <-time.After(time.Second):
		t.Fatal("monitor loop did not exit")
	}
}

func TestStatus_State(t *testing.T) {
	assert.Equal(t, StateOK, Status{PostgreSQL: true, Redis: true}.State())
	assert.Equal(t, StateDegraded, Status{PostgreSQL: true}.State())
	assert.Equal(t, StateDown, Status{Redis: true}.State())
}
