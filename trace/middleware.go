package trace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// GinMiddleware 为每个请求创建服务端 span，skip 中的 URL 路径不产生 span
func GinMiddleware(serviceName string, skip ...string) gin.HandlerFunc {
	if len(skip) == 0 {
		return otelgin.Middleware(serviceName)
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		_, ok := skipped[r.URL.Path]
		return !ok
	}))
}
