package httpcontext

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/sessions/pkg/logger"
)

// Adapter converts fasthttp.RequestCtx into a stdlib context with deadlines and metadata.
type Adapter struct {
	timeout      time.Duration
	trustProxies bool
}

// NewAdapter constructs a new Adapter using the provided timeout. When trustProxies is set,
// the client address is taken from X-Forwarded-For.
func NewAdapter(timeout time.Duration, trustProxies bool) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		timeout:      timeout,
		trustProxies: trustProxies,
	}
}

// Attach creates a context with timeout derived from the adapter and tags it with the request id.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := getRequestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)
	ctx.Response.Header.Set("X-Request-ID", reqID)

	return stdCtx, cancel
}

// ClientIP returns the caller address, or nil when unknown.
func (a *Adapter) ClientIP(ctx *fasthttp.RequestCtx) *string {
	if a != nil && a.trustProxies {
		if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return stringPtr(ip.String())
			}
		}
	}
	if ip := ctx.RemoteIP(); ip != nil && !ip.IsUnspecified() {
		return stringPtr(ip.String())
	}
	return nil
}

// UserAgent returns the User-Agent header, or nil when absent.
func UserAgent(ctx *fasthttp.RequestCtx) *string {
	if ua := strings.TrimSpace(string(ctx.Request.Header.UserAgent())); ua != "" {
		return stringPtr(ua)
	}
	return nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func getRequestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if header := string(ctx.Request.Header.Peek("X-Request-ID")); strings.TrimSpace(header) != "" {
		return header
	}
	return uuid.NewString()
}

func stringPtr(s string) *string {
	return &s
}
