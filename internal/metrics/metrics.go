package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "leakloom"

// Metrics 汇总一次运行（或 serve 进程）的计数器。
// nil *Metrics 是合法的：所有记录方法都是 no-op。
type Metrics struct {
	Documents     *prometheus.CounterVec
	URLsCollected prometheus.Counter
	Suggestions   *prometheus.CounterVec
	Verifications *prometheus.CounterVec
	Patterns      prometheus.Gauge
	HTTPDuration  *prometheus.HistogramVec
}

// New 创建指标并注册到 reg。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Fetched input documents by kind and result.",
		}, []string{"kind", "result"}),
		URLsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_collected_total",
			Help:      "Media URLs handed to the pattern engine.",
		}),
		Suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Synthesized candidate URLs by rule.",
		}, []string{"rule"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Candidate verification outcomes by state.",
		}, []string{"state"}),
		Patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patterns",
			Help:      "Pattern groups found by the most recent analysis.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Outbound HTTP request duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		m.Documents,
		m.URLsCollected,
		m.Suggestions,
		m.Verifications,
		m.Patterns,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Document(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Documents.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Collected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.URLsCollected.Add(float64(n))
}

func (m *Metrics) Suggested(rule string) {
	if m == nil {
		return
	}
	m.Suggestions.WithLabelValues(rule).Inc()
}

func (m *Metrics) Verified(state string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(state).Inc()
}

func (m *Metrics) SetPatterns(n int) {
	if m == nil {
		return
	}
	m.Patterns.Set(float64(n))
}

// ObserveHTTP 记录一次请求耗时；code=0 表示传输层失败。
func (m *Metrics) ObserveHTTP(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	c := "error"
	if code > 0 {
		c = strconv.Itoa(code)
	}
	m.HTTPDuration.WithLabelValues(method, c).Observe(d.Seconds())
}

// WriteTextfile 把 g 的当前快照写成 node_exporter textfile 格式。
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
