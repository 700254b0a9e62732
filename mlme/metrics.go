package mlme

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the facade's Prometheus counters.
type Metrics struct {
	FramesRx        *prometheus.CounterVec
	FramesTx        *prometheus.CounterVec
	FramesDropped   prometheus.Counter
	ScansStarted    prometheus.Counter
	ScansRejected   *prometheus.CounterVec
	ConnectAttempts prometheus.Counter
	ConnectResults  *prometheus.CounterVec
	AutoDeauths     prometheus.Counter
}

// NewMetrics builds the counter set and registers it. A nil registerer
// leaves the counters unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesRx: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlme_frames_received_total",
				Help: "802.11 frames received, by frame class.",
			},
			[]string{"class"},
		),
		FramesTx: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlme_frames_transmitted_total",
				Help: "802.11 frames transmitted, by frame class.",
			},
			[]string{"class"},
		),
		FramesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mlme_frames_dropped_total",
				Help: "Inbound frames dropped as malformed or unexpected.",
			},
		),
		ScansStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mlme_scans_started_total",
				Help: "Scan sessions started.",
			},
		),
		ScansRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlme_scans_rejected_total",
				Help: "Scan requests rejected, by result code.",
			},
			[]string{"code"},
		),
		ConnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mlme_connect_attempts_total",
				Help: "Connect requests accepted from the SME.",
			},
		),
		ConnectResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlme_connect_results_total",
				Help: "Connect attempt outcomes, by result code.",
			},
			[]string{"result"},
		),
		AutoDeauths: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mlme_auto_deauth_total",
				Help: "Local deauthentications after BSS loss.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.FramesRx, m.FramesTx, m.FramesDropped,
			m.ScansStarted, m.ScansRejected,
			m.ConnectAttempts, m.ConnectResults, m.AutoDeauths,
		)
	}
	return m
}
