// Package diag 以 HTTP 暴露 dlock 注册表的只读视图。
//
// 路由：
//   - GET /locks/metrics  每个路径的累计计数与 gauge，?path= 过滤
//   - GET /locks/samples  失败、超时与慢加锁样本，?path= 过滤，?stack=false 去掉调用栈
//   - GET /locks/threads  各 goroutine 的加锁栈，?all=true 包含空栈
//   - GET /locks/config   当前的统计配置
//   - GET /metrics        Prometheus 文本格式的累计计数
//
// 请求头 Accept: application/msgpack 时以 MessagePack 编码，否则为 JSON。
// 所有接口都只读，不会清零 Reporter 使用的 interval 计数。
package diag

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/dlock"
	"github.com/ceyewan/coord/metrics"
	"github.com/ceyewan/coord/trace"
	"github.com/ceyewan/coord/xerrors"
)

// scrapePath Prometheus 抓取地址，不计入 HTTP 指标也不产生 span
const scrapePath = "/metrics"

// Server 诊断 HTTP 服务
type Server struct {
	cfg    Config
	stats  *dlock.Stats
	logger clog.Logger
	engine *gin.Engine
	server *http.Server
}

// New 创建诊断服务，cfg 为 nil 时使用默认配置，stats 为 nil 时使用 dlock.Global()
func New(cfg *Config, stats *dlock.Stats, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.setDefaults()
	if stats == nil {
		stats = dlock.Global()
	}
	o := applyOptions(opts...)

	registry := prometheus.NewRegistry()
	if err := registry.Register(dlock.NewCollector(stats)); err != nil {
		return nil, xerrors.Wrap(err, "register lock collector")
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if c.EnableTracing {
		engine.Use(trace.GinMiddleware(c.ServiceName, scrapePath))
	}
	if o.meter != nil {
		httpMetrics, err := metrics.NewHTTPServerMetrics(o.meter, c.ServiceName)
		if err != nil {
			return nil, xerrors.Wrap(err, "create http server metrics")
		}
		engine.Use(httpMetrics.GinMiddleware(scrapePath))
	}

	s := &Server{
		cfg:    c,
		stats:  stats,
		logger: o.logger,
		engine: engine,
	}

	locks := engine.Group("/locks")
	locks.GET("/metrics", s.handleMetrics)
	locks.GET("/samples", s.handleSamples)
	locks.GET("/threads", s.handleThreads)
	locks.GET("/config", s.handleConfig)
	engine.GET(scrapePath, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return s, nil
}

// Handler 返回路由，便于挂载到已有的 HTTP 服务上
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 在后台监听 cfg.Addr，Addr 为空时什么也不做
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return nil
	}
	if s.server != nil {
		return xerrors.New("diag: server already started")
	}
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("starting diag server", clog.String("addr", s.cfg.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("diag server error", clog.Error(err))
		}
	}()
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleMetrics(c *gin.Context) {
	render(c, pathMetrics(s.stats, c.Query("path")))
}

func (s *Server) handleSamples(c *gin.Context) {
	render(c, samples(s.stats, c.Query("path"), boolQuery(c, "stack", true)))
}

func (s *Server) handleThreads(c *gin.Context) {
	render(c, threads(s.stats, boolQuery(c, "all", false), boolQuery(c, "stack", true)))
}

func (s *Server) handleConfig(c *gin.Context) {
	render(c, s.stats.Config())
}

func render(c *gin.Context, value any) {
	enc := negotiate(c.GetHeader("Accept"))
	body, err := enc.Marshal(value)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, enc.ContentType(), body)
}

func boolQuery(c *gin.Context, key string, def bool) bool {
	v, ok := c.GetQuery(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
