package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/sessions/api/transport"
	"github.com/fastygo/sessions/internal/middleware"
	"github.com/fastygo/sessions/pkg/httpcontext"
	authUC "github.com/fastygo/sessions/usecase/auth"
)

type SessionHandler struct {
	baseHandler
	uc *authUC.UseCase
}

func NewSessionHandler(uc *authUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List the caller's sessions
// @Tags sessions
// @Router /api/v1/sessions [get]
func (h *SessionHandler) List(ctx *fasthttp.RequestCtx) {
	principal := middleware.PrincipalFrom(ctx)
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	sessions := h.uc.ListSessions(stdCtx, principal.User.ID)
	h.respondSuccess(ctx, http.StatusOK, transport.NewSessionList(sessions, principal.Session.ID))
}

// @Summary List a user's sessions
// @Tags admin
// @Router /api/v1/admin/users/{id}/sessions [get]
func (h *SessionHandler) ListForUser(ctx *fasthttp.RequestCtx) {
	userID, ok := ctx.UserValue("id").(string)
	if !ok || userID == "" {
		h.respondInvalid(ctx)
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	sessions := h.uc.ListSessions(stdCtx, userID)
	h.respondSuccess(ctx, http.StatusOK, transport.NewSessionList(sessions, ""))
}

// @Summary Revoke all sessions of a user
// @Tags admin
// @Router /api/v1/admin/users/{id}/sessions [delete]
func (h *SessionHandler) RevokeForUser(ctx *fasthttp.RequestCtx) {
	userID, ok := ctx.UserValue("id").(string)
	if !ok || userID == "" {
		h.respondInvalid(ctx)
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	h.uc.LogoutAll(stdCtx, userID)
	h.logger.Info("sessions revoked by admin",
		zap.String("user_id", userID),
		zap.String("admin_id", middleware.PrincipalFrom(ctx).User.ID),
	)
	ctx.SetStatusCode(http.StatusNoContent)
}
