package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/internal/handler"
	"fintrack/internal/job"
	"fintrack/internal/service"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and background jobs",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, store, err := bootstrap()
	if err != nil {
		return err
	}

	locker, redisClient, err := newLocker(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := newProducer(cfg)
	if err != nil {
		return err
	}
	defer producer.Close()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 后台任务和 HTTP 共用同一个 locker
	recurring := service.NewRecurringService(store, locker, cfg)

	outboxSender := job.NewOutboxSender(store.Outbox(), producer, cfg.Business.MaxRetryCount)
	go outboxSender.Start(ctx)

	autoResetJob := job.NewAutoResetJob(recurring, cfg.Business.SweepInterval())
	go autoResetJob.Start(ctx)

	auditJob := job.NewAuditJob(recurring, cfg.Business.AuditInterval())
	go auditJob.Start(ctx)

	router := handler.SetupRouter(handler.NewHandler(store, locker, cfg), cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
	return nil
}
