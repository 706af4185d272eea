package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 进程内私有 Registry；仅在 --metrics-file 时导出为 Prometheus 文本格式。
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}
// - reports_total{result}
var (
	registry = prometheus.NewRegistry()

	opTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "op_total",
		Help: "Component operations by stage and result",
	}, []string{"comp", "stage", "result"})

	errorTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "error_total",
		Help: "Component errors by classified code",
	}, []string{"comp", "code"})

	opDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "op_duration_ms",
		Help:    "Stage duration in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"comp", "stage"})

	reportsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "reports_total",
		Help: "Classified reports by verdict",
	}, []string{"result"})
)

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) { opTotal.WithLabelValues(comp, stage, result).Inc() }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { errorTotal.WithLabelValues(comp, code).Inc() }

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// AddReports 累加判定计数。
func AddReports(safe, unsafe int) {
	reportsTotal.WithLabelValues("safe").Add(float64(safe))
	reportsTotal.WithLabelValues("unsafe").Add(float64(unsafe))
}

// Gatherer 暴露私有 Registry。
func Gatherer() prometheus.Gatherer { return registry }

// WriteMetrics 以文本格式原子写出全部指标。
func WriteMetrics(path string) error { return prometheus.WriteToTextfile(path, registry) }
