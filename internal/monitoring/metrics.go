package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 卡密指标
	KeysGenerated  prometheus.Counter
	KeysDeleted    prometheus.Counter
	KeysFrozen     prometheus.Counter
	ResellerIssues prometheus.Counter

	// 激活/校验指标
	ActivationsTotal *prometheus.CounterVec // result: bound / revalidated / mismatch / rejected

	// 账户指标
	UsersRegistered prometheus.Counter
	LoginsTotal     *prometheus.CounterVec // result: success / failure / banned
	SessionsKicked  prometheus.Counter

	// 系统指标
	Panics prometheus.Counter
}

// NewMetrics 注册并返回全部指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "astreon_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "astreon_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		KeysGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "astreon_keys_generated_total",
			Help: "License keys generated",
		}),
		KeysDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "astreon_keys_deleted_total",
			Help: "License keys deleted",
		}),
		KeysFrozen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "astreon_keys_frozen_total",
			Help: "License keys frozen",
		}),
		ResellerIssues: promauto.NewCounter(prometheus.CounterOpts{
			Name: "astreon_reseller_issues_total",
			Help: "Keys issued by resellers against balance",
		}),

		ActivationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "astreon_activations_total",
			Help: "Client key validations by result",
		}, []string{"result"}),

		UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "astreon_users_registered_total",
			Help: "Accounts registered",
		}),
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "astreon_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		SessionsKicked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "astreon_sessions_kicked_total",
			Help: "Sessions revoked by token version bump",
		}),

		Panics: promauto.NewCounter(prometheus.CounterOpts{
			Name: "astreon_panics_total",
			Help: "Recovered panics",
		}),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordActivation 记录一次卡密校验结果
func (m *Metrics) RecordActivation(result string) {
	m.ActivationsTotal.WithLabelValues(result).Inc()
}

// RecordLogin 记录一次登录尝试结果
func (m *Metrics) RecordLogin(result string) {
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
