package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"globaleaks/backend/internal/config"
	"globaleaks/backend/internal/health"
	"globaleaks/backend/internal/logger"
	"globaleaks/backend/internal/mail"
	"globaleaks/backend/internal/middleware"
	"globaleaks/backend/internal/monitoring"
	"globaleaks/backend/internal/reporter"
)

// main 启动运维端点（健康检查与指标），并安装全局 panic 报告钩子。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.StartLogging(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting globaleaks backend",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_file", cfg.Log.File),
		zap.Bool("reporter_enabled", cfg.Reporter.Enabled),
	)

	metrics := monitoring.NewMetrics()
	sender := mail.NewSender(mail.OptionsFromConfig(cfg.SMTP), log.Named("mail"), metrics)
	rep := reporter.New(cfg.Reporter, cfg.SMTP, sender, log.Named("reporter"), metrics)
	defer rep.Close()

	// 全局 panic 钩子：报告后重新 panic
	defer rep.Recover()

	if err := run(cfg, log, metrics, rep); err != nil {
		log.Err(err, "server stopped with error")
	}
}

func run(cfg *config.Config, log *logger.Publisher, metrics *monitoring.Metrics, rep *reporter.Reporter) error {
	healthChecker := health.NewChecker(cfg)
	mm := middleware.NewMonitoringMiddleware(metrics, rep, log.Named("http"))

	router := gin.New()
	router.Use(mm.HTTPMetrics(), mm.PanicRecovery())

	// 健康检查处理器（用于 Kubernetes 等）
	router.GET("/health/live", gin.WrapH(healthChecker.LiveHandler()))
	router.GET("/health/ready", gin.WrapH(healthChecker.ReadyHandler()))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	started := time.Now()

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// 运行时间指标 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				metrics.UpdateSystemUptime(time.Since(started))
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Err(err, "HTTP server shutdown failed")
		}
		if err := rep.Flush(shutdownCtx); err != nil {
			log.Err(err, "pending exception reports not flushed")
		}
		return nil
	})

	return group.Wait()
}
