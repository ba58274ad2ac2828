package diag

// Config 诊断服务配置
//
//	diag:
//	  addr: ":6060"
//	  service_name: "lockstats"
//	  enable_tracing: true
type Config struct {
	// Addr 监听地址，为空时只提供 Handler，不监听端口
	Addr string `mapstructure:"addr"`

	// ServiceName 用于 otelgin span 与 HTTP 指标的 service 标签
	ServiceName string `mapstructure:"service_name"`

	// EnableTracing 为每个请求创建 span
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:        ":6060",
		ServiceName: "coord-diag",
	}
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "coord-diag"
	}
}
