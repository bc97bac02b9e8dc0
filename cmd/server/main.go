package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/jobchat/internal/config"
	"github.com/mbeoliero/jobchat/internal/gateway"
	"github.com/mbeoliero/jobchat/internal/handler"
	"github.com/mbeoliero/jobchat/internal/metrics"
	"github.com/mbeoliero/jobchat/internal/repository"
	"github.com/mbeoliero/jobchat/internal/router"
	"github.com/mbeoliero/jobchat/internal/service"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/idgen"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s", cfg.Server.Mode)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	gen, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to create id generator: %v", err)
		panic(err)
	}
	idgen.SetDefaultGenerator(gen)

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	// Initialize services
	authService := service.NewAuthService(repos.User, cfg, repos.Redis)
	userService := service.NewUserService(repos.User)
	convService := service.NewConversationService(repos)
	msgService := service.NewMessageService(repos)
	notifService := service.NewNotificationService(repos)

	wsServer := gateway.NewWsServer(cfg, repos.Redis, authService, convService)
	msgService.SetPublisher(wsServer)
	notifService.SetPublisher(wsServer)

	wsServer.Run(ctx)
	log.CtxInfo(ctx, "push gateway started")

	go metrics.Serve(ctx, cfg.Server.MetricsPort)

	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(authService, wsServer),
		User:         handler.NewUserHandler(userService),
		Message:      handler.NewMessageHandler(msgService),
		Conversation: handler.NewConversationHandler(convService),
		Notification: handler.NewNotificationHandler(notifService),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)

	router.SetupRouter(h, cfg, handlers, authService, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")
	cancel()

	if err := h.Shutdown(context.Background()); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped")
}
