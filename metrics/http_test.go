package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/coord/xerrors"
)

// captureSeries 记录每次调用的标签
type captureSeries struct {
	mu      sync.Mutex
	records [][]Label
}

func (c *captureSeries) record(labels []Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, append([]Label(nil), labels...))
}

func (c *captureSeries) Inc(_ context.Context, labels ...Label)               { c.record(labels) }
func (c *captureSeries) Add(_ context.Context, _ float64, labels ...Label)    { c.record(labels) }
func (c *captureSeries) Record(_ context.Context, _ float64, labels ...Label) { c.record(labels) }

func labelMap(labels []Label) map[string]string {
	out := make(map[string]string, len(labels))
	for _, l := range labels {
		out[l.Key] = l.Value
	}
	return out
}

func newCaptureRouter(t *testing.T, skip ...string) (*gin.Engine, *captureSeries) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	requests, duration := &captureSeries{}, &captureSeries{}
	h := &HTTPServerMetrics{service: "coord-diag", requests: requests, duration: duration}

	router := gin.New()
	router.Use(h.GinMiddleware(skip...))
	router.GET("/locks/samples", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router, requests
}

func serve(router http.Handler, target string) int {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w.Code
}

// TestGinMiddlewareRouteTemplate 测试 route 标签取路由模板而不是原始 URL
func TestGinMiddlewareRouteTemplate(t *testing.T) {
	router, requests := newCaptureRouter(t)

	assert.Equal(t, http.StatusOK, serve(router, "/locks/samples?all=true"))
	require.Len(t, requests.records, 1)
	assert.Equal(t, map[string]string{
		LabelService:     "coord-diag",
		LabelMethod:      http.MethodGet,
		LabelRoute:       "/locks/samples",
		LabelStatusClass: "2xx",
		LabelOutcome:     OutcomeSuccess,
	}, labelMap(requests.records[0]))
}

// TestGinMiddlewareUnknownRoute 测试未命中路由时收敛为 unknown
func TestGinMiddlewareUnknownRoute(t *testing.T) {
	router, requests := newCaptureRouter(t)

	assert.Equal(t, http.StatusNotFound, serve(router, "/locks/orders/42"))
	require.Len(t, requests.records, 1)
	labels := labelMap(requests.records[0])
	assert.Equal(t, UnknownRoute, labels[LabelRoute])
	assert.Equal(t, OutcomeError, labels[LabelOutcome])
}

// TestGinMiddlewareSkip 测试跳过的路由不计数，未命中路由不受 skip 影响
func TestGinMiddlewareSkip(t *testing.T) {
	router, requests := newCaptureRouter(t, "/metrics", "")

	serve(router, "/metrics")
	assert.Empty(t, requests.records)

	serve(router, "/missing")
	serve(router, "/locks/samples")
	assert.Len(t, requests.records, 2)
}

// TestNewHTTPServerMetricsValidation 测试参数校验
func TestNewHTTPServerMetricsValidation(t *testing.T) {
	_, err := NewHTTPServerMetrics(nil, "coord-diag")
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))

	_, err = NewHTTPServerMetrics(Discard(), " ")
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))

	h, err := NewHTTPServerMetrics(Discard(), "coord-diag")
	require.NoError(t, err)
	h.Observe(context.Background(), "", "", http.StatusOK, 0)

	var nilMetrics *HTTPServerMetrics
	nilMetrics.Observe(context.Background(), http.MethodGet, "/x", http.StatusOK, 0)
}

// TestHTTPServerMetricsExport 测试经由 Prometheus 导出后的标签
func TestHTTPServerMetricsExport(t *testing.T) {
	m, err := New(NewDevDefaultConfig("http-test"))
	require.NoError(t, err)
	defer shutdown(t, m)

	h, err := NewHTTPServerMetrics(m, "coord-diag")
	require.NoError(t, err)
	h.Observe(context.Background(), "get", "/locks/threads", http.StatusOK, 0)

	body := scrape(t, m)
	assert.Contains(t, body, MetricHTTPServerRequests)
	assert.Contains(t, body, `route="/locks/threads"`)
	assert.Contains(t, body, `method="GET"`)
}
