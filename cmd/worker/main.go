package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"sharedrop/internal/config"
	"sharedrop/internal/database"
	"sharedrop/internal/logging"
	"sharedrop/internal/repository/postgres"
	"sharedrop/internal/service"
	"sharedrop/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New()
	logger.Println("配置加载完成，开始启动 worker")

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Fatalf("连接数据库失败: %v", err)
	}
	defer db.Close()

	repo := postgres.NewFileRepository(db)
	ingestor := service.NewIngestor(repo, logger, cfg.S3KeyPrefix)
	processor := worker.NewProcessor(ingestor)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(processor.Handler()); err != nil {
		logger.Printf("worker 已停止: %v", err)
		os.Exit(1)
	}

	logger.Println("worker 已停止")
}
