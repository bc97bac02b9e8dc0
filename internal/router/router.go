package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"github.com/mbeoliero/jobchat/internal/config"
	"github.com/mbeoliero/jobchat/internal/gateway"
	"github.com/mbeoliero/jobchat/internal/handler"
	"github.com/mbeoliero/jobchat/internal/middleware"
)

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, verifier middleware.TokenVerifier, wsServer *gateway.WsServer) {
	allowedOrigins := cfg.Server.AllowedOrigins

	h.Use(middleware.CORS(allowedOrigins))

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]interface{}{
			"status":       "ok",
			"online_users": wsServer.GetOnlineUserCount(),
			"online_conns": wsServer.GetOnlineConnCount(),
		})
	})

	auth := middleware.JWTAuth(verifier)

	// Auth routes
	authGroup := h.Group("/auth")
	{
		authGroup.POST("/register", handlers.Auth.Register)
		authGroup.POST("/login", handlers.Auth.Login)
		authGroup.POST("/logout", auth, handlers.Auth.Logout)
	}

	userGroup := h.Group("/user", auth)
	{
		userGroup.GET("/info", handlers.User.GetUserInfo)
		userGroup.GET("/info/:user_id", handlers.User.GetUserInfoById)
		userGroup.POST("/infos", handlers.User.GetUserInfos)
	}

	convGroup := h.Group("/conversation", auth)
	{
		convGroup.POST("/resolve", handlers.Conversation.Resolve)
		convGroup.GET("/info", handlers.Conversation.GetConversation)
		convGroup.GET("/previews", handlers.Conversation.GetPreviews)
	}

	msgGroup := h.Group("/msg", auth)
	{
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.GET("/list", handlers.Message.ListMessages)
		msgGroup.POST("/mark_read", handlers.Message.MarkRead)
	}

	notifGroup := h.Group("/notification")
	{
		notifGroup.GET("/list", auth, handlers.Notification.ListNotifications)
		notifGroup.POST("/mark_all_read", auth, handlers.Notification.MarkAllRead)
		// Server-to-server, called by the portal backend
		notifGroup.POST("/create", middleware.PublisherAuth(cfg.Notification.PublisherToken), handlers.Notification.CreateNotification)
	}

	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins.
// Requests without an Origin header come from non-browser clients.
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin == "" {
		return true
	}
	return middleware.OriginAllowed(origin, allowedOrigins)
}

// Handlers holds all HTTP handlers
type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
	Notification *handler.NotificationHandler
}
