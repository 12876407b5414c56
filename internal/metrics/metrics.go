// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー・リアルタイム配信・ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
	RecordRealtimeEvent(topic string)
	RecordRealtimeConnection(delta int)
	RecordCommentCreated()
	RecordNewsImported(count int)
	RecordSessionsCleaned(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests        *prometheus.CounterVec
	httpLatency         prometheus.Histogram
	realtimeEvents      *prometheus.CounterVec
	realtimeConnections prometheus.Gauge
	commentsCreated     prometheus.Counter
	newsImported        prometheus.Counter
	sessionsCleaned     prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "craftboard_http_requests_total",
			Help: "HTTPリクエストの合計数（メソッド・ステータスコード別）",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "craftboard_http_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "craftboard_realtime_events_total",
			Help: "リアルタイム配信イベントの合計数（トピック種別別）",
		}, []string{"topic_kind"}),
		realtimeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "craftboard_realtime_connections",
			Help: "現在のWebSocket接続数",
		}),
		commentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "craftboard_comments_created_total",
			Help: "作成されたコメントの合計数",
		}),
		newsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "craftboard_news_imported_total",
			Help: "ニュースフィードから取り込まれたお知らせの合計数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "craftboard_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.realtimeEvents,
		c.realtimeConnections,
		c.commentsCreated,
		c.newsImported,
		c.sessionsCleaned,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの完了を記録する。
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordRealtimeEvent はリアルタイムイベントの配信を記録する。
// topicはcomments:{id}形式のためカーディナリティを抑えるべく種別のみを記録する。
func (c *Collector) RecordRealtimeEvent(topic string) {
	kind := topic
	if strings.HasPrefix(topic, "comments:") {
		kind = "comments"
	}
	c.realtimeEvents.WithLabelValues(kind).Inc()
}

// RecordRealtimeConnection はWebSocket接続数の増減を記録する。
func (c *Collector) RecordRealtimeConnection(delta int) {
	c.realtimeConnections.Add(float64(delta))
}

// RecordCommentCreated はコメント作成を記録する。
func (c *Collector) RecordCommentCreated() {
	c.commentsCreated.Inc()
}

// RecordNewsImported は取り込まれたお知らせ数を記録する。
func (c *Collector) RecordNewsImported(count int) {
	c.newsImported.Add(float64(count))
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
