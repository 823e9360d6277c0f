package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManager_ShutdownRunsHooksInReverse(t *testing.T) {
	m := New(context.Background(), time.Second, zaptest.NewLogger(t))
	var order []string
	for _, name := range []string{"postgres", "redis", "sessions", "http"} {
		name := name
		m.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"http", "sessions", "redis", "postgres"}, order)
	assert.Error(t, m.Context().Err())
}

func TestManager_ShutdownJoinsErrorsAndRunsOnce(t *testing.T) {
	m := New(context.Background(), time.Second, zaptest.NewLogger(t))
	boom := errors.New("boom")
	calls := 0
	m.Register("a", func(context.Context) error { calls++; return boom })
	m.Register("b", func(context.Context) error { calls++; return nil })

	err := m.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.Shutdown(context.Background()), boom)
	assert.Equal(t, 2, calls)
}

func TestManager_ShutdownHonoursTimeout(t *testing.T) {
	m := New(context.Background(), 20*time.Millisecond, nil)
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, m.Shutdown(context.Background()), context.DeadlineExceeded)
}

func TestManager_GoCancelsOnFailure(t *testing.T) {
	m := New(context.Background(), time.Second, nil)
	m.Go("server", func() error { return errors.New("listen: address in use") })

	select {
	case <-m.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("root context was not cancelled")
	}
}
