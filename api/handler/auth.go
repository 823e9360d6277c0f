package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/sessions/api/transport"
	"github.com/fastygo/sessions/internal/middleware"
	"github.com/fastygo/sessions/pkg/httpcontext"
	authUC "github.com/fastygo/sessions/usecase/auth"
)

// maxTTL caps client-requested session lifetimes.
const maxTTL = 30 * 24 * time.Hour

type AuthHandler struct {
	baseHandler
	uc *authUC.UseCase
}

func NewAuthHandler(uc *authUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Open a session
// @Tags auth
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(ctx *fasthttp.RequestCtx) {
	var req transport.LoginRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.UserID == "" || req.TTL < 0 {
		h.respondInvalid(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	session, err := h.uc.Login(stdCtx, authUC.LoginInput{
		UserID:    req.UserID,
		TTL:       ttlFromRequest(req.TTL),
		IPAddress: h.adapter.ClientIP(ctx),
		UserAgent: httpcontext.UserAgent(ctx),
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, transport.NewSessionResponse(session, true))
}

// @Summary Rotate the current session token and extend its expiry
// @Tags auth
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(ctx *fasthttp.RequestCtx) {
	var req transport.RefreshRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil || req.TTL < 0 {
			h.respondInvalid(ctx)
			return
		}
	}

	principal := middleware.PrincipalFrom(ctx)
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	session, err := h.uc.Refresh(stdCtx, principal.Session, ttlFromRequest(req.TTL))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.NewSessionResponse(session, true))
}

// @Summary Revoke the current session
// @Tags auth
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(ctx *fasthttp.RequestCtx) {
	principal := middleware.PrincipalFrom(ctx)
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	h.uc.Logout(stdCtx, principal.Session.Token)
	ctx.SetStatusCode(http.StatusNoContent)
}

// @Summary Revoke every session of the caller
// @Tags auth
// @Router /api/v1/auth/logout-all [post]
func (h *AuthHandler) LogoutAll(ctx *fasthttp.RequestCtx) {
	principal := middleware.PrincipalFrom(ctx)
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	h.uc.LogoutAll(stdCtx, principal.User.ID)
	ctx.SetStatusCode(http.StatusNoContent)
}

// ttlFromRequest returns zero (use the default) when the client did not ask for a TTL.
func ttlFromRequest(ttlSeconds int) time.Duration {
	if ttlSeconds <= 0 {
		return 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl > maxTTL {
		return maxTTL
	}
	return ttl
}
