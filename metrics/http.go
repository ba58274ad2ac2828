package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/coord/xerrors"
)

// HTTP 服务端指标名
const (
	MetricHTTPServerRequests = "http_server_requests_total"
	MetricHTTPServerDuration = "http_server_request_duration_seconds"
)

// HTTP 服务端标签
const (
	LabelService     = "service"
	LabelMethod      = "method"
	LabelRoute       = "route"
	LabelStatusClass = "status_class"

	// UnknownRoute 未命中路由时的 route 取值，原始 URL 不进入标签
	UnknownRoute = "unknown"
)

// 诊断接口只读内存，桶集中在毫秒级
var httpDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}

// HTTPServerMetrics 进程内诊断类 HTTP 服务的请求数与耗时
//
// route 标签取 gin 的路由模板（如 /locks/samples），不会随锁路径或查询
// 参数膨胀。
type HTTPServerMetrics struct {
	service  string
	requests Counter
	duration Histogram
}

// NewHTTPServerMetrics 在 m 上创建请求计数器与耗时直方图
func NewHTTPServerMetrics(m Meter, service string) (*HTTPServerMetrics, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "meter is nil")
	}
	service = strings.TrimSpace(service)
	if service == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "service is empty")
	}

	requests, err := m.Counter(MetricHTTPServerRequests, "Total number of HTTP requests.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request counter")
	}
	duration, err := m.Histogram(MetricHTTPServerDuration, "HTTP request duration in seconds.",
		WithUnit("s"), WithBuckets(httpDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request duration histogram")
	}

	return &HTTPServerMetrics{service: service, requests: requests, duration: duration}, nil
}

// Observe 记录一次请求
func (h *HTTPServerMetrics) Observe(ctx context.Context, method, route string, status int, d time.Duration) {
	if h == nil {
		return
	}
	if method == "" {
		method = http.MethodGet
	}
	if route == "" {
		route = UnknownRoute
	}

	labels := []Label{
		L(LabelService, h.service),
		L(LabelMethod, strings.ToUpper(method)),
		L(LabelRoute, route),
		L(LabelStatusClass, HTTPStatusClass(status)),
		L(LabelOutcome, HTTPOutcome(status)),
	}
	h.requests.Inc(ctx, labels...)
	h.duration.Record(ctx, d.Seconds(), labels...)
}

// GinMiddleware 记录每个请求，skip 中的路由模板不记录
//
// 典型用法是跳过 Prometheus 抓取的 /metrics，否则每次抓取都会给自己计数。
func (h *HTTPServerMetrics) GinMiddleware(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok && route != "" {
			return
		}
		h.Observe(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// HTTPStatusClass 1xx 到 5xx，其他取值为 unknown
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HTTPOutcome 2xx 与 3xx 记为成功
func HTTPOutcome(status int) string {
	if status >= 200 && status < 400 {
		return OutcomeSuccess
	}
	return OutcomeError
}
