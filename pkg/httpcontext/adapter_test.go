package httpcontext

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/sessions/pkg/logger"
)

func newRequestCtx() *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&fasthttp.Request{}, &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 4242}, nil)
	return ctx
}

func TestAdapter_AttachPropagatesRequestID(t *testing.T) {
	ctx := newRequestCtx()
	ctx.Request.Header.Set("X-Request-ID", "req-1")

	stdCtx, cancel := NewAdapter(time.Second, false).Attach(ctx)
	defer cancel()

	assert.Equal(t, "req-1", appLogger.RequestID(stdCtx))
	assert.Equal(t, "req-1", string(ctx.Response.Header.Peek("X-Request-ID")))
	_, hasDeadline := stdCtx.Deadline()
	assert.True(t, hasDeadline)
}

func TestAdapter_AttachGeneratesRequestID(t *testing.T) {
	ctx := newRequestCtx()
	stdCtx, cancel := NewAdapter(0, false).Attach(ctx)
	defer cancel()
	assert.NotEmpty(t, appLogger.RequestID(stdCtx))
}

func TestAdapter_ClientIP(t *testing.T) {
	ctx := newRequestCtx()
	ctx.Request.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")

	direct := NewAdapter(time.Second, false).ClientIP(ctx)
	require.NotNil(t, direct)
	assert.Equal(t, "192.0.2.10", *direct)

	proxied := NewAdapter(time.Second, true).ClientIP(ctx)
	require.NotNil(t, proxied)
	assert.Equal(t, "198.51.100.1", *proxied)
}

func TestUserAgent(t *testing.T) {
	ctx := newRequestCtx()
	assert.Nil(t, UserAgent(ctx))

	ctx.Request.Header.SetUserAgent("curl/8.0")
	ua := UserAgent(ctx)
	require.NotNil(t, ua)
	assert.Equal(t, "curl/8.0", *ua)
}

func TestBearerToken(t *testing.T) {
	ctx := newRequestCtx()
	assert.Empty(t, BearerToken(ctx))

	ctx.Request.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", BearerToken(ctx))

	ctx.Request.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Empty(t, BearerToken(ctx))
}
