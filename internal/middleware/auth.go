package middleware

import (
	"context"
	"encoding/json"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/sessions/api/transport"
	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/pkg/httpcontext"
	"github.com/fastygo/sessions/pkg/logger"
	authUC "github.com/fastygo/sessions/usecase/auth"
)

const principalKey = "session_principal"

// Authenticator resolves a bearer token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*authUC.Principal, error)
}

// SessionAuth rejects requests without a live session and stores the principal on the request.
func SessionAuth(auth Authenticator, adapter *httpcontext.Adapter, log *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			raw := httpcontext.BearerToken(ctx)
			if raw == "" {
				reject(ctx, fasthttp.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing bearer token")
				return
			}

			stdCtx, cancel := adapter.Attach(ctx)
			principal, err := auth.Authenticate(stdCtx, raw)
			cancel()
			if err != nil {
				switch {
				case domain.IsDomainError(err, domain.ErrCodeForbidden):
					reject(ctx, fasthttp.StatusForbidden, domain.ErrCodeForbidden, "account disabled")
				case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
					log.Debug("session rejected", logger.Token(raw), zap.Error(err))
					reject(ctx, fasthttp.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid session")
				default:
					log.Error("session lookup failed", zap.Error(err))
					reject(ctx, fasthttp.StatusInternalServerError, domain.ErrCodeInternal, "internal error")
				}
				return
			}

			ctx.SetUserValue(principalKey, principal)
			next(ctx)
		}
	}
}

// RequireRole must run after SessionAuth.
func RequireRole(role string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			principal := PrincipalFrom(ctx)
			if principal == nil || principal.User == nil {
				reject(ctx, fasthttp.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid session")
				return
			}
			if principal.User.Role != role {
				reject(ctx, fasthttp.StatusForbidden, domain.ErrCodeForbidden, "insufficient role")
				return
			}
			next(ctx)
		}
	}
}

// PrincipalFrom returns the principal stored by SessionAuth, or nil.
func PrincipalFrom(ctx *fasthttp.RequestCtx) *authUC.Principal {
	principal, _ := ctx.UserValue(principalKey).(*authUC.Principal)
	return principal
}

func reject(ctx *fasthttp.RequestCtx, status int, code domain.ErrorCode, message string) {
	body, _ := json.Marshal(transport.NewError(string(code), message, nil))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
