// Package mail 通过加密的 SMTP 会话投递邮件。
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"globaleaks/backend/internal/config"
	"globaleaks/backend/internal/logger"
	"globaleaks/backend/internal/monitoring"
)

// DefaultPort 未指定端口时使用的 SMTP 端口
const DefaultPort = 25

// ErrDeliveryFailed 邮件投递失败，原始错误保留在错误链中
var ErrDeliveryFailed = errors.New("mail delivery failed")

// Envelope 一次投递所需的全部信息，每次发送时构造
type Envelope struct {
	Username string
	Secret   string
	From     string
	To       string
	Message  []byte
	Host     string
	Port     int
}

func (e Envelope) addr() string {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// Options 发送器选项
type Options struct {
	Security           string      // config.SecurityTLS / SecurityStartTLS / SecurityNone
	LocalName          string      // EHLO 主机名，默认 localhost；starttls 模式下忽略
	InsecureSkipVerify bool        // 跳过证书校验
	TLSConfig          *tls.Config // 自定义 TLS 配置（测试或私有 CA）
}

// OptionsFromConfig 从 SMTP 配置构造发送器选项
func OptionsFromConfig(cfg config.SMTPConfig) Options {
	return Options{
		Security:           cfg.Security,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
}

// EnvelopeFromConfig 使用 SMTP 配置中的服务器与凭据构造信封
func EnvelopeFromConfig(cfg config.SMTPConfig, from, to string, message []byte) Envelope {
	if from == "" {
		from = cfg.From
	}
	return Envelope{
		Username: cfg.Username,
		Secret:   cfg.Password,
		From:     from,
		To:       to,
		Message:  message,
		Host:     cfg.Host,
		Port:     cfg.Port,
	}
}

// Sender SMTP 发送器
//
// 每次 Send 建立一个新连接，只尝试一次，不重试。
type Sender struct {
	opts    Options
	log     *logger.Publisher
	metrics *monitoring.Metrics
}

// NewSender 创建发送器，log 与 metrics 可以为 nil
func NewSender(opts Options, log *logger.Publisher, metrics *monitoring.Metrics) *Sender {
	if opts.Security == "" {
		opts.Security = config.SecurityTLS
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sender{
		opts:    opts,
		log:     log,
		metrics: metrics,
	}
}

// Pending 一次异步投递的结果
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) complete(err error) {
	p.err = err
	close(p.done)
}

// Done 投递完成（成功或失败）时关闭
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err 返回投递结果，完成前返回 nil
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait 等待投递完成或 ctx 结束
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send 异步投递邮件，立即返回 Pending
//
// ctx 结束时连接会被关闭，投递以失败告终。
func (s *Sender) Send(ctx context.Context, env Envelope) *Pending {
	p := newPending()
	go func() {
		start := time.Now()
		err := s.deliver(ctx, env)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
			s.log.Debug("mail delivery failed",
				zap.String("host", env.addr()),
				zap.String("to", env.To),
				zap.Error(err),
			)
		} else {
			s.log.Debug("mail delivered",
				zap.String("host", env.addr()),
				zap.String("to", env.To),
			)
		}
		s.metrics.RecordMailSend(err, time.Since(start))
		p.complete(err)
	}()
	return p
}

// SendMail 同步投递邮件
func (s *Sender) SendMail(ctx context.Context, env Envelope) error {
	return s.Send(ctx, env).Wait(ctx)
}

func (s *Sender) deliver(ctx context.Context, env Envelope) error {
	if env.Host == "" {
		return errors.New("smtp host is empty")
	}

	conn, err := s.dial(ctx, env)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	c, err := s.newClient(conn, env.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if env.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", env.Username, env.Secret)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.SendMail(env.From, []string{env.To}, bytes.NewReader(env.Message)); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	return c.Quit()
}

// newClient 建立 SMTP 会话，starttls 模式下在认证前升级连接
func (s *Sender) newClient(conn net.Conn, host string) (*gosmtp.Client, error) {
	if s.opts.Security == config.SecurityStartTLS {
		c, err := gosmtp.NewClientStartTLS(conn, s.tlsConfig(host))
		if err != nil {
			return nil, fmt.Errorf("starttls: %w", err)
		}
		return c, nil
	}

	c := gosmtp.NewClient(conn)
	if s.opts.LocalName != "" {
		if err := c.Hello(s.opts.LocalName); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("hello: %w", err)
		}
	}
	return c, nil
}

func (s *Sender) dial(ctx context.Context, env Envelope) (net.Conn, error) {
	dialer := &net.Dialer{}
	if s.opts.Security == config.SecurityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.tlsConfig(env.Host)}
		conn, err := tlsDialer.DialContext(ctx, "tcp", env.addr())
		if err != nil {
			return nil, fmt.Errorf("dial tls %s: %w", env.addr(), err)
		}
		return conn, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", env.addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", env.addr(), err)
	}
	return conn, nil
}

// tlsConfig 协商现代 TLS 版本（最低 TLS 1.2）
func (s *Sender) tlsConfig(host string) *tls.Config {
	var cfg *tls.Config
	if s.opts.TLSConfig != nil {
		cfg = s.opts.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	if cfg.MinVersion < tls.VersionTLS12 {
		cfg.MinVersion = tls.VersionTLS12
	}
	if s.opts.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
