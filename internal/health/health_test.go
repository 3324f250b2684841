package health

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globaleaks/backend/internal/config"
)

func serve(h http.Handler) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec.Code
}

func TestChecker(t *testing.T) {
	t.Run("无外部依赖时就绪", func(t *testing.T) {
		c := NewChecker(&config.Config{})

		assert.Equal(t, http.StatusOK, serve(c.LiveHandler()))
		assert.Equal(t, http.StatusOK, serve(c.ReadyHandler()))
	})

	t.Run("SMTP 可连接", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer l.Close()

		addr := l.Addr().(*net.TCPAddr)
		cfg := &config.Config{SMTP: config.SMTPConfig{Host: "127.0.0.1", Port: addr.Port}}

		c := NewChecker(cfg)
		assert.Equal(t, http.StatusOK, serve(c.ReadyHandler()))
	})

	t.Run("SMTP 不可连接", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := l.Addr().(*net.TCPAddr)
		require.NoError(t, l.Close())

		cfg := &config.Config{SMTP: config.SMTPConfig{Host: "127.0.0.1", Port: addr.Port}}

		c := NewChecker(cfg)
		assert.Equal(t, http.StatusServiceUnavailable, serve(c.ReadyHandler()))
		assert.Equal(t, http.StatusOK, serve(c.LiveHandler()))
	})

	t.Run("额外就绪检查", func(t *testing.T) {
		c := NewChecker(&config.Config{})
		c.AddReadinessCheck("broken", func() error { return errors.New("down") })

		assert.Equal(t, http.StatusServiceUnavailable, serve(c.ReadyHandler()))
	})
}

func TestLogDirWritableCheck(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, LogDirWritableCheck(dir)())
	assert.Error(t, LogDirWritableCheck(filepath.Join(dir, "missing"))())

	cfg := &config.Config{Log: config.LogConfig{File: filepath.Join(dir, "backend.log")}}
	assert.Equal(t, http.StatusOK, serve(NewChecker(cfg).ReadyHandler()))
}
