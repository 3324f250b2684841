package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// 结果标签取值
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultDropped   = "dropped"
	ResultDuplicate = "duplicate"
)

// Metrics 监控指标
//
// 所有 Record/Update 方法在 nil 接收者上调用时不做任何事，
// 组件可以在没有监控的情况下运行。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮件发送指标
	MailSendTotal    *prometheus.CounterVec
	MailSendDuration prometheus.Histogram

	// 异常报告指标
	ExceptionReportsTotal *prometheus.CounterVec
	PanicsTotal           prometheus.Counter

	// 文件摘要指标
	ChecksumBytesTotal prometheus.Counter

	// 系统指标
	SystemUptime prometheus.Gauge
}

// NewMetrics 在独立的注册表上创建监控指标
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glbackend_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glbackend_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MailSendTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glbackend_mail_send_total",
				Help: "Total number of outbound mail delivery attempts",
			},
			[]string{"result"},
		),

		MailSendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "glbackend_mail_send_duration_seconds",
				Help:    "Outbound mail delivery duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		ExceptionReportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glbackend_exception_reports_total",
				Help: "Total number of exception reports by outcome",
			},
			[]string{"result"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "glbackend_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		ChecksumBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "glbackend_checksum_bytes_total",
				Help: "Total number of bytes hashed by file checksums",
			},
		),

		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "glbackend_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordMailSend 记录一次邮件投递
func (m *Metrics) RecordMailSend(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.MailSendTotal.WithLabelValues(result).Inc()
	m.MailSendDuration.Observe(duration.Seconds())
}

// RecordExceptionReport 记录异常报告结果
func (m *Metrics) RecordExceptionReport(result string) {
	if m == nil {
		return
	}
	m.ExceptionReportsTotal.WithLabelValues(result).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordChecksumBytes 记录已计算摘要的字节数
func (m *Metrics) RecordChecksumBytes(n int64) {
	if m == nil {
		return
	}
	m.ChecksumBytesTotal.Add(float64(n))
}

// ChecksumBytes 返回已计算摘要的字节总数
func (m *Metrics) ChecksumBytes() float64 {
	if m == nil {
		return 0
	}
	var pb dto.Metric
	if err := m.ChecksumBytesTotal.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	if m == nil {
		return
	}
	m.SystemUptime.Set(uptime.Seconds())
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus 指标处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
