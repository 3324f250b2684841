// Package reporter 将未处理的 panic 与错误格式化后通过邮件发给运维人员。
//
// 报告是“发出即忘”的：投递失败只会被记录，不会传回调用方。
package reporter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"globaleaks/backend/internal/cache"
	"globaleaks/backend/internal/config"
	"globaleaks/backend/internal/logger"
	"globaleaks/backend/internal/mail"
	"globaleaks/backend/internal/monitoring"
)

// 报告结果标签
const (
	resultDisabled = "disabled"
)

// maxFingerprints 去重窗口内记录的最大异常数
const maxFingerprints = 1024

// MailSender 异步邮件发送接口，mail.Sender 实现了该接口
type MailSender interface {
	Send(ctx context.Context, env mail.Envelope) *mail.Pending
}

// Reporter 异常邮件报告器
type Reporter struct {
	cfg     config.ReporterConfig
	smtp    config.SMTPConfig
	sender  MailSender
	log     *logger.Publisher
	metrics *monitoring.Metrics
	limiter *rate.Limiter
	seen    *cache.LocalCache // nil 表示不去重

	mu       sync.Mutex
	inflight int
	idle     chan struct{} // inflight 归零时关闭
}

// New 创建报告器
//
// 收件人、发件人与 SMTP 凭据全部来自配置。
func New(cfg config.ReporterConfig, smtpCfg config.SMTPConfig, sender MailSender, log *logger.Publisher, metrics *monitoring.Metrics) *Reporter {
	if log == nil {
		log = logger.Nop()
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Every(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	r := &Reporter{
		cfg:     cfg,
		smtp:    smtpCfg,
		sender:  sender,
		log:     log,
		metrics: metrics,
		limiter: rate.NewLimiter(limit, burst),
	}
	if cfg.DedupWindow > 0 {
		r.seen = cache.NewLocalCache(maxFingerprints, cfg.DedupWindow)
	}
	return r
}

// Close 释放去重缓存，不等待进行中的投递
func (r *Reporter) Close() {
	if r.seen != nil {
		r.seen.Close()
	}
}

// Report 报告一个错误或 panic 值，不等待投递结果
//
// values 随报告一起输出，用于记录出错位置的上下文。
func (r *Reporter) Report(value any, values map[string]any) {
	r.dispatch(Capture(value, 1, values))
}

// Recover 用作 defer 的全局 panic 钩子
//
//	defer rep.Recover()
//
// 捕获 panic 后发送报告，最多等待 FlushTimeout，然后重新 panic。
func (r *Reporter) Recover() {
	v := recover()
	if v == nil {
		return
	}

	r.metrics.RecordPanic()
	pending := r.dispatch(Capture(v, 1, nil))
	if pending != nil && r.cfg.FlushTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FlushTimeout)
		_ = r.Flush(ctx)
		cancel()
	}

	panic(v)
}

// Flush 等待所有进行中的报告投递完成
//
// 可以与 Report 并发调用；Flush 之后发起的投递不在等待范围内。
func (r *Reporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	if r.inflight == 0 {
		r.mu.Unlock()
		return nil
	}
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reporter) begin() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inflight == 0 {
		r.idle = make(chan struct{})
	}
	r.inflight++
}

func (r *Reporter) end() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inflight--
	if r.inflight == 0 {
		close(r.idle)
	}
}

// dispatch 发送报告，未发送时返回 nil
func (r *Reporter) dispatch(rep Report) *mail.Pending {
	body := Format(rep)

	if !r.cfg.Enabled || r.sender == nil {
		r.log.Info("exception report (mail disabled)", zap.String("report", body))
		r.metrics.RecordExceptionReport(resultDisabled)
		return nil
	}

	if r.seen != nil && !r.seen.Add(Fingerprint(rep), rep.Time, 0) {
		r.log.Debug("duplicate exception report suppressed",
			zap.String("type", rep.Type),
			zap.String("description", rep.Description),
		)
		r.metrics.RecordExceptionReport(monitoring.ResultDuplicate)
		return nil
	}

	if !r.limiter.Allow() {
		r.log.Debug("exception report dropped by rate limit",
			zap.String("type", rep.Type),
			zap.String("description", rep.Description),
		)
		r.metrics.RecordExceptionReport(monitoring.ResultDropped)
		return nil
	}

	msg := Compose(r.cfg.From, r.cfg.To, r.cfg.Subject, rep)
	env := mail.EnvelopeFromConfig(r.smtp, r.cfg.From, r.cfg.To, msg.Bytes())

	r.begin()
	ctx, cancel := r.sendContext()
	pending := r.sender.Send(ctx, env)

	go func() {
		defer r.end()
		defer cancel()

		if err := pending.Wait(ctx); err != nil {
			r.log.Err(err, "exception report delivery failed", zap.String("to", r.cfg.To))
			r.metrics.RecordExceptionReport(monitoring.ResultFailure)
			return
		}
		r.log.Info("exception report sent", zap.String("to", r.cfg.To), zap.String("type", rep.Type))
		r.metrics.RecordExceptionReport(monitoring.ResultSuccess)
	}()

	return pending
}

// Fingerprint 标识同一位置抛出的同一异常
//
// 由类型、描述与最内层栈帧计算，不包含时间与附加值。
func Fingerprint(rep Report) string {
	h := sha256.New()
	h.Write([]byte(rep.Type))
	h.Write([]byte{0})
	h.Write([]byte(rep.Description))
	if n := len(rep.Frames); n > 0 {
		innermost := rep.Frames[n-1]
		fmt.Fprintf(h, "\x00%s:%d", innermost.File, innermost.Line)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Reporter) sendContext() (context.Context, context.CancelFunc) {
	if r.smtp.Timeout > 0 {
		return context.WithTimeout(context.Background(), r.smtp.Timeout)
	}
	return context.WithCancel(context.Background())
}
