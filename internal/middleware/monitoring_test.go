package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"globaleaks/backend/internal/logger"
	"globaleaks/backend/internal/monitoring"
)

// MockReporter 模拟异常报告器
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(value any, values map[string]any) {
	m.Called(value, values)
}

func newRouter(metrics *monitoring.Metrics, reporter PanicReporter, log *logger.Publisher) *gin.Engine {
	gin.SetMode(gin.TestMode)

	mm := NewMonitoringMiddleware(metrics, reporter, log)
	router := gin.New()
	router.Use(mm.HTTPMetrics(), mm.PanicRecovery())
	router.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("handler exploded")
	})
	return router
}

func TestPanicRecovery(t *testing.T) {
	metrics := monitoring.NewMetrics()
	reporter := new(MockReporter)
	reporter.On("Report", "handler exploded", mock.MatchedBy(func(values map[string]any) bool {
		return values["method"] == http.MethodGet && values["path"] == "/panic"
	})).Once()

	core, logs := observer.New(zapcore.DebugLevel)
	router := newRouter(metrics, reporter, logger.NewPublisher(zap.New(core)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	entries := logs.FilterMessage("Panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "handler exploded", entries[0].ContextMap()["error"])
	assert.Equal(t, "/panic", entries[0].ContextMap()["path"])

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PanicsTotal))
	reporter.AssertExpectations(t)
}

func TestHTTPMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	reporter := new(MockReporter)
	router := newRouter(metrics, reporter, nil)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/ok", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	reporter.AssertNotCalled(t, "Report", mock.Anything, mock.Anything)
}
