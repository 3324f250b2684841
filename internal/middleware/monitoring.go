package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"globaleaks/backend/internal/logger"
	"globaleaks/backend/internal/monitoring"
)

// PanicReporter 接收恢复后的 panic，reporter.Reporter 实现了该接口
type PanicReporter interface {
	Report(value any, values map[string]any)
}

// MonitoringMiddleware 监控中间件
type MonitoringMiddleware struct {
	metrics  *monitoring.Metrics
	reporter PanicReporter
	log      *logger.Publisher
}

// NewMonitoringMiddleware 创建监控中间件
func NewMonitoringMiddleware(metrics *monitoring.Metrics, reporter PanicReporter, log *logger.Publisher) *MonitoringMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &MonitoringMiddleware{
		metrics:  metrics,
		reporter: reporter,
		log:      log,
	}
}

// HTTPMetrics HTTP 指标中间件
func (mm *MonitoringMiddleware) HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		mm.metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}

// PanicRecovery Panic 恢复中间件
//
// 恢复处理函数中的 panic，交给异常报告器并返回 500。
func (mm *MonitoringMiddleware) PanicRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				mm.metrics.RecordPanic()

				// 记录错误日志
				mm.log.Err(fmt.Errorf("%v", err), "Panic recovered",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("ip", c.ClientIP()),
				)

				if mm.reporter != nil {
					mm.reporter.Report(err, map[string]any{
						"method": c.Request.Method,
						"path":   c.Request.URL.Path,
						"ip":     c.ClientIP(),
					})
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
