package mlme

import (
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boxwifi/mlme/device/devicetest"
	"github.com/boxwifi/mlme/sme"
)

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	// Vec counters appear only once a label combination is observed;
	// the four plain counters gather immediately.
	assert.GreaterOrEqual(t, len(families), 4)

	// A second registration on the same registry must collide.
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestMetricsCountConnectLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	dev := devicetest.New()
	sched := &fakeScheduler{}
	snd := &fakeSender{}
	m := New(Config{}, dev, snd, sched, zap.NewNop(), reg)

	require.NoError(t, m.HandleSMEMessage(&sme.ConnectRequest{BSS: testBSS(), AuthType: sme.AuthTypeOpenSystem}))
	m.HandleFrame(apAuthFrame(layers.Dot11AlgorithmOpen, 2, layers.Dot11StatusSuccess, nil), rxOnChannel(6))
	m.HandleFrame(apAssocResponse(t, 42, layers.Dot11StatusSuccess), rxOnChannel(6))
	require.True(t, m.Client().Associated())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.ConnectAttempts))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.metrics.ConnectResults.WithLabelValues(sme.ConnectSuccess.String())))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.metrics.FramesRx.WithLabelValues("mgmt")))

	// Garbage on the air counts as dropped.
	m.HandleFrame([]byte{0x00}, rxOnChannel(6))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.FramesDropped))
}

func TestMetricsCountScanRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	dev := devicetest.New()
	m := New(Config{}, dev, &fakeSender{}, &fakeScheduler{}, zap.NewNop(), reg)

	require.NoError(t, m.HandleSMEMessage(&sme.ScanRequest{TxnID: 1, Channels: []uint8{1}}))
	require.NoError(t, m.HandleSMEMessage(&sme.ScanRequest{TxnID: 2, Channels: []uint8{6}}))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.ScansStarted))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.metrics.ScansRejected.WithLabelValues(sme.ScanBusy.String())))
}
