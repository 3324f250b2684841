// Package mailtest 提供用于测试的进程内 SMTP 服务器。
package mailtest

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// Delivery 服务器收到的一封邮件
type Delivery struct {
	Username string
	From     string
	To       []string
	Data     []byte
}

// Mode 服务器的传输安全模式
type Mode int

const (
	ModePlain       Mode = iota // 明文，不提供 STARTTLS
	ModeStartTLS                // 明文连接，提供 STARTTLS
	ModeImplicitTLS             // 连接建立即进行 TLS 握手
)

// Server 进程内 SMTP 服务器，只接受 PLAIN 认证
type Server struct {
	Host string
	Port int

	certPool *x509.CertPool

	username string
	password string

	mu         sync.Mutex
	deliveries []Delivery
	received   chan Delivery

	server *gosmtp.Server
}

// NewServer 启动明文服务器，username 为空时不要求认证
//
// 服务器在测试结束时自动关闭。
func NewServer(t testing.TB, username, password string) *Server {
	t.Helper()
	return NewTLSServer(t, ModePlain, username, password)
}

// NewTLSServer 按 mode 启动服务器，证书由 httptest 提供，对 127.0.0.1 有效
func NewTLSServer(t testing.TB, mode Mode, username, password string) *Server {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mailtest: listen: %v", err)
	}

	s := &Server{
		username: username,
		password: password,
		received: make(chan Delivery, 16),
	}

	srv := gosmtp.NewServer(&backend{server: s})
	srv.Domain = "mailtest.local"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	s.server = srv

	addr := l.Addr().(*net.TCPAddr)
	s.Host = addr.IP.String()
	s.Port = addr.Port

	if mode != ModePlain {
		tlsConfig, pool := testCertificate()
		s.certPool = pool
		srv.TLSConfig = tlsConfig
		if mode == ModeImplicitTLS {
			l = tls.NewListener(l, tlsConfig)
		}
	}

	go func() {
		_ = srv.Serve(l)
	}()
	t.Cleanup(func() {
		_ = srv.Close()
	})

	return s
}

// ClientTLSConfig 返回信任测试证书的客户端 TLS 配置，明文服务器返回 nil
func (s *Server) ClientTLSConfig() *tls.Config {
	if s.certPool == nil {
		return nil
	}
	return &tls.Config{RootCAs: s.certPool}
}

// testCertificate 借用 httptest 内置的 127.0.0.1 证书
func testCertificate() (*tls.Config, *x509.CertPool) {
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	defer ts.Close()

	pool := x509.NewCertPool()
	pool.AddCert(ts.Certificate())

	return &tls.Config{
		Certificates: ts.TLS.Certificates,
		MinVersion:   tls.VersionTLS12,
	}, pool
}

// Deliveries 返回已收到的邮件
func (s *Server) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

// Received 每收到一封邮件发送一次
func (s *Server) Received() <-chan Delivery {
	return s.received
}

func (s *Server) record(d Delivery) {
	s.mu.Lock()
	s.deliveries = append(s.deliveries, d)
	s.mu.Unlock()

	select {
	case s.received <- d:
	default:
	}
}

type backend struct {
	server *Server
}

func (b *backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{server: b.server}, nil
}

type session struct {
	server   *Server
	username string
	from     string
	to       []string
}

var errAuthRequired = &gosmtp.SMTPError{
	Code:         530,
	EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
	Message:      "authentication required",
}

var errBadCredentials = &gosmtp.SMTPError{
	Code:         535,
	EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
	Message:      "authentication credentials invalid",
}

func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, errors.New("unsupported mechanism")
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.server.username || password != s.server.password {
			return errBadCredentials
		}
		s.username = username
		return nil
	}), nil
}

func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.server.username != "" && s.username == "" {
		return errAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.server.record(Delivery{
		Username: s.username,
		From:     s.from,
		To:       append([]string(nil), s.to...),
		Data:     data,
	})
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}
