// Package metrics は Prometheus メトリクスの収集と公開を提供する
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collector はボットの動作メトリクスを収集する
type Collector struct {
	commands       *prometheus.CounterVec
	logins         prometheus.Counter
	loginFailures  prometheus.Counter
	actionFailures *prometheus.CounterVec
	statusQueries  prometheus.Counter
	commandLatency prometheus.Histogram
}

// NewCollector は新しい Collector を生成し、レジストリに登録する
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aternos_agent_commands_total",
			Help: "Command invocations by command name",
		}, []string{"command"}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aternos_agent_logins_total",
			Help: "Successful provider logins",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aternos_agent_login_failures_total",
			Help: "Failed provider logins",
		}),
		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aternos_agent_action_failures_total",
			Help: "Provider-side start/stop failures by action",
		}, []string{"action"}),
		statusQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aternos_agent_status_queries_total",
			Help: "Status API queries",
		}),
		commandLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aternos_agent_command_latency_seconds",
			Help:    "Command handling latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.commands,
		c.logins,
		c.loginFailures,
		c.actionFailures,
		c.statusQueries,
		c.commandLatency,
	)

	return c
}

// RecordCommand はコマンド実行を記録する
func (c *Collector) RecordCommand(name string, duration time.Duration) {
	c.commands.WithLabelValues(name).Inc()
	c.commandLatency.Observe(duration.Seconds())
}

// RecordLogin はログイン結果を記録する
func (c *Collector) RecordLogin(success bool) {
	if success {
		c.logins.Inc()
	} else {
		c.loginFailures.Inc()
	}
}

// RecordActionFailure はプロバイダー側の start/stop 失敗を記録する
func (c *Collector) RecordActionFailure(action string) {
	c.actionFailures.WithLabelValues(action).Inc()
}

// RecordStatusQuery はステータス照会を記録する
func (c *Collector) RecordStatusQuery() {
	c.statusQueries.Inc()
}

// Server は /metrics と /healthz を公開する HTTP サーバー
type Server struct {
	srv *http.Server
}

// NewServer はメトリクスサーバーを作成する
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start はサーバーを起動する（ブロックしない）
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}

// Stop はサーバーを停止する
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
