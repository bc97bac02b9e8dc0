package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/jobchat/internal/middleware"
	"github.com/mbeoliero/jobchat/internal/service"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/response"
)

// SessionKicker closes push channel connections opened with a token
type SessionKicker interface {
	KickToken(ctx context.Context, userId, token string) int
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *service.AuthService
	kicker      SessionKicker
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService, kicker SessionKicker) *AuthHandler {
	return &AuthHandler{authService: authService, kicker: kicker}
}

// Register handles user registration
func (h *AuthHandler) Register(ctx context.Context, c *app.RequestContext) {
	var req service.RegisterRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	userInfo, err := h.authService.Register(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, userInfo)
}

// Login handles user login
func (h *AuthHandler) Login(ctx context.Context, c *app.RequestContext) {
	var req service.LoginRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	resp, err := h.authService.Login(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, resp)
}

// Logout revokes the caller's token and drops its push connections
func (h *AuthHandler) Logout(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	token := middleware.GetToken(c)
	if userId == "" || token == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	if err := h.authService.Logout(ctx, userId, middleware.GetPlatformId(c), token); err != nil {
		response.Error(ctx, c, err)
		return
	}

	kicked := 0
	if h.kicker != nil {
		kicked = h.kicker.KickToken(ctx, userId, token)
	}
	log.CtxDebug(ctx, "logout closed connections: user_id=%s, kicked=%d", userId, kicked)

	response.Success(ctx, c, nil)
}
