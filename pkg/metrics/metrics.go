// Package metrics exports controller activity to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/pwmlink/pkg/l0/firmware"
	"github.com/robotalks/pwmlink/pkg/l0/link"
	"github.com/robotalks/pwmlink/pkg/l0/pwm"
)

const namespace = "pwmlink"

// NewRegistry creates a Registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LinkMetrics implements firmware.Notifier.
type LinkMetrics struct {
	Frames       *prometheus.CounterVec // labels: ack
	FailSafe     prometheus.Counter
	Recovered    prometheus.Counter
	Resyncs      prometheus.Counter
	Synchronized prometheus.Gauge
	Failed       prometheus.Gauge
	Setpoint     *prometheus.GaugeVec // labels: channel
	Output       *prometheus.GaugeVec // labels: output
}

// NewLinkMetrics registers and returns the metrics.
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	m := &LinkMetrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Dispatched frames by acknowledgement.",
		}, []string{"ack"}),
		FailSafe: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fail_safe_total",
			Help:      "Times the communication fail-safe tripped.",
		}),
		Recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fail_safe_recovered_total",
			Help:      "Times the fail-safe was cleared by the escape sequence.",
		}),
		Resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resync_total",
			Help:      "Escape sequences received outside the fail-safe.",
		}),
		Synchronized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synchronized",
			Help:      "1 when the link is synchronized.",
		}),
		Failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fail_safe_active",
			Help:      "1 while actuators are held neutral by the fail-safe.",
		}),
		Setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_compare_value",
			Help:      "Pending compare register value per channel.",
		}, []string{"channel"}),
		Output: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "digital_output",
			Help:      "Discrete output state.",
		}, []string{"output"}),
	}
	reg.MustRegister(m.Frames, m.FailSafe, m.Recovered, m.Resyncs, m.Synchronized, m.Failed, m.Setpoint, m.Output)
	m.Synchronized.Set(1)
	for ch := 1; ch <= pwm.Channels; ch++ {
		m.Setpoint.WithLabelValues(strconv.Itoa(ch)).Set(float64(pwm.MinimumPulse))
	}
	return m
}

// Notify implements firmware.Notifier.
func (m *LinkMetrics) Notify(_ context.Context, ev firmware.Event) {
	s := ev.Status
	synced := s.State == link.Synchronized
	switch ev.Kind {
	case firmware.EventFrameAccepted, firmware.EventChecksumError:
		m.Frames.WithLabelValues(ackLabel(ev.Ack)).Inc()
	case firmware.EventSyncError:
		// the status may be taken before the receiver falls back to searching.
		m.Frames.WithLabelValues(ackLabel(ev.Ack)).Inc()
		synced = false
	case firmware.EventFailSafe:
		m.FailSafe.Inc()
		synced = false
	case firmware.EventRecovered:
		m.Recovered.Inc()
	case firmware.EventResynced:
		m.Resyncs.Inc()
	}
	m.Synchronized.Set(boolValue(synced))
	m.Failed.Set(boolValue(s.Failed))
	for i, v := range s.Engine.Pending {
		m.Setpoint.WithLabelValues(strconv.Itoa(i + 1)).Set(float64(v))
	}
	m.Output.WithLabelValues(pwm.OutputA.String()).Set(boolValue(s.Engine.OutputA))
	m.Output.WithLabelValues(pwm.OutputB.String()).Set(boolValue(s.Engine.OutputB))
}

// ackLabel is the value of the ack label.
func ackLabel(ack link.Ack) string {
	switch ack {
	case link.AckAccepted:
		return "accepted"
	case link.AckChecksum:
		return "checksum_error"
	case link.AckNotSynced:
		return "not_synced"
	}
	return "unknown"
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Server serves HTTP until the context is done.
type Server struct {
	Addr    string
	Handler http.Handler
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler)
	srv := &http.Server{Addr: s.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		glog.Infof("metrics on http://%s/metrics", s.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	return nil
}
