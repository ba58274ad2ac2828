package trace

// Config 链路追踪配置
//
//	trace:
//	  enabled: true
//	  service_name: "coord-lockstats"
//	  endpoint: "localhost:4317"
//	  sampler: 1.0
//	  batcher: "batch"
//	  insecure: true
type Config struct {
	// Enabled 为 false 时不导出，span 只在进程内生成，日志仍能带上 trace_id
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	// Endpoint OTLP gRPC 接收端，如 Tempo/Jaeger，仅 Enabled 时需要
	Endpoint string `mapstructure:"endpoint"`
	// Sampler 采样率，取值 [0, 1]
	Sampler float64 `mapstructure:"sampler"`
	// Batcher "batch"（默认）或 "simple"
	Batcher  string `mapstructure:"batcher"`
	Insecure bool   `mapstructure:"insecure"`
}

// DefaultConfig 返回不导出的默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}
