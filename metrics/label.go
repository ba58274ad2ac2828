package metrics

// Label 指标标签
//
// 标签值应相对稳定，避免用户 ID、请求 ID 之类的高基数值。
// 锁路径作为标签时，路径集合应当是有限的。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数
//
//	counter.Inc(ctx, metrics.L("path", "/orders"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

// 通用的结果标签
const (
	LabelOutcome   = "outcome"
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
