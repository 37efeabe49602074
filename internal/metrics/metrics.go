// Package metrics はゲートウェイのPrometheusメトリクスを提供する
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "route_gateway"

// UnmatchedRoute はルートに解決できなかったリクエストの route ラベル
const UnmatchedRoute = "unmatched"

// Metrics はゲートウェイのメトリクス
// nil の Metrics に対する呼び出しは何もしない
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	routes    prometheus.Gauge
	refreshes *prometheus.CounterVec
}

// New はメトリクスを作成し reg に登録する
// reg が nil の場合は prometheus.DefaultRegisterer を使う
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "", "requests_total"),
			Help: "Total number of proxied requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prometheus.BuildFQName(namespace, "", "request_duration_seconds"),
			Help:    "Duration of proxied requests by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		routes: factory.NewGauge(prometheus.GaugeOpts{
			Name: prometheus.BuildFQName(namespace, "", "routes"),
			Help: "Number of routes in the active route table.",
		}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "", "route_refreshes_total"),
			Help: "Total number of route table refreshes by result.",
		}, []string{"result"}),
	}
}

// ObserveRequest は1リクエストの結果を記録する
// route が空の場合は UnmatchedRoute として記録する
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = UnmatchedRoute
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveRefresh はルートテーブルの再読み込み結果を記録する
// 失敗した場合は以前のテーブルが使われ続けるので、ルート数は更新しない
func (m *Metrics) ObserveRefresh(routes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.refreshes.WithLabelValues("failure").Inc()
		return
	}
	m.refreshes.WithLabelValues("success").Inc()
	m.routes.Set(float64(routes))
}

// Handler は g のメトリクスを公開するハンドラを返す
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
