package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hibiken/asynq"

	"sharedrop/internal/api"
	"sharedrop/internal/config"
	"sharedrop/internal/database"
	"sharedrop/internal/logging"
	"sharedrop/internal/repository/postgres"
	"sharedrop/internal/service"
	"sharedrop/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New()
	logger.Println("配置加载完成，开始启动服务")

	ctx := context.Background()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Fatalf("连接数据库失败: %v", err)
	}
	defer db.Close()

	store, err := s3.New(ctx, s3.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
		PutTTL:    cfg.PresignPutTTL,
		GetTTL:    cfg.PresignGetTTL,
	})
	if err != nil {
		logger.Fatalf("初始化对象存储失败: %v", err)
	}

	repo := postgres.NewFileRepository(db)
	fileService := service.NewFileService(repo, store, logger, service.Options{
		KeyPrefix:          cfg.S3KeyPrefix,
		DefaultExpiresDays: cfg.DefaultExpiresDays,
		MaxExpiresDays:     cfg.MaxExpiresDays,
	})
	fileHandler := api.NewFileHandler(fileService, logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()
	eventsHandler := api.NewEventsHandler(asynqClient, logger)

	router := api.NewRouter(cfg, fileHandler, eventsHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      router,
	}

	logger.Printf("服务监听端口 :%s\n", cfg.HTTPPort)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("监听失败: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("优雅关闭失败: %v", err)
	}

	logger.Println("服务已停止")
}
