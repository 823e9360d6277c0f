package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fastygo/sessions/internal/config"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 4}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 4, client.Options().PoolSize)
	assert.NoError(t, Ping(context.Background(), client))
}

func TestNewClient_UnreachableIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := NewClient(context.Background(), config.RedisConfig{URL: "redis://" + addr}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	assert.Error(t, Ping(context.Background(), client))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedisConfig{URL: "http://nope"}, nil)
	assert.Error(t, err)
}
