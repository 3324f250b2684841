package health

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/heptiolabs/healthcheck"

	"globaleaks/backend/internal/config"
)

// 默认阈值
const (
	DefaultGoroutineThreshold = 10000
	DefaultDialTimeout        = 3 * time.Second
)

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
}

// NewChecker 根据配置创建健康检查器
//
// 存活检查：goroutine 数量。
// 就绪检查：SMTP 服务器可连接（配置了 smtp.host 时），
// 日志目录可写（配置了 log.file 时）。
func NewChecker(cfg *config.Config) *Checker {
	c := &Checker{
		health: healthcheck.NewHandler(),
	}

	c.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(DefaultGoroutineThreshold))

	if cfg.SMTP.Host != "" {
		c.health.AddReadinessCheck("smtp", healthcheck.TCPDialCheck(cfg.SMTP.Addr(), DefaultDialTimeout))
	}

	if cfg.Log.File != "" {
		c.health.AddReadinessCheck("logdir", LogDirWritableCheck(filepath.Dir(cfg.Log.File)))
	}

	return c
}

// AddReadinessCheck 添加额外的就绪检查
func (c *Checker) AddReadinessCheck(name string, check healthcheck.Check) {
	c.health.AddReadinessCheck(name, check)
}

// Handler 返回同时提供 /live 与 /ready 的处理器
func (c *Checker) Handler() http.Handler {
	return c.health
}

// LiveHandler 存活检查处理器
func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(c.health.LiveEndpoint)
}

// ReadyHandler 就绪检查处理器
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(c.health.ReadyEndpoint)
}

// LogDirWritableCheck 检查目录可写
func LogDirWritableCheck(dir string) healthcheck.Check {
	return func() error {
		f, err := os.CreateTemp(dir, ".healthcheck-*")
		if err != nil {
			return fmt.Errorf("log directory not writable: %w", err)
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	}
}
