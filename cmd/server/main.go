package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wager-service/internal/api"
	"wager-service/internal/config"
	"wager-service/internal/repo"
	"wager-service/internal/service"
	"wager-service/internal/ws"
	"wager-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	config.LoadConfig(*configPath)
	logger.InitLogger(config.GlobalConfig.Server.Mode)
	defer logger.Log.Sync()

	gin.SetMode(config.GlobalConfig.Server.Mode)

	repo.InitDB()
	repo.InitRedis()

	hub := ws.NewHub()
	container := service.NewContainer(repo.DB, repo.RDB, hub)

	ctx := context.Background()
	if err := container.Start(ctx); err != nil {
		logger.Log.Fatal("service start failed", zap.Error(err))
	}

	router := api.SetupRouter(container, hub)
	srv := &http.Server{
		Addr:    ":" + config.GlobalConfig.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Log.Info("server listening", zap.String("port", config.GlobalConfig.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")

	container.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("server shutdown", zap.Error(err))
	}
	logger.Log.Info("server stopped")
}
