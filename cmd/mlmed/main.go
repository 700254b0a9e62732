//go:build linux
// +build linux

// Command mlmed runs the client-mode MLME against one nl80211 station
// interface. All protocol work happens on a single event loop; the
// driver event pump, the timer wheel and the embedded SME policy feed
// it through channels.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/mdlayher/wifi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/boxwifi/mlme/device/nl80211"
	"github.com/boxwifi/mlme/mlme"
)

// mgmtSubtypes are the frame-control byte values registered for
// delivery to userspace.
var mgmtSubtypes = []layers.Dot11Type{
	layers.Dot11TypeMgmtAuthentication,
	layers.Dot11TypeMgmtAssociationResp,
	layers.Dot11TypeMgmtReassociationResp,
	layers.Dot11TypeMgmtProbeResp,
	layers.Dot11TypeMgmtBeacon,
	layers.Dot11TypeMgmtDisassociation,
	layers.Dot11TypeMgmtDeauthentication,
	layers.Dot11TypeMgmtAction,
}

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	v, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ifname := v.GetString("interface")
	if ifname == "" {
		ifname, err = discoverInterface()
		if err != nil {
			logger.Fatal("no station interface", zap.Error(err))
		}
		logger.Info("discovered station interface", zap.String("interface", ifname))
	}

	dev, err := nl80211.Dial(nl80211.Config{
		Interface: ifname,
		Logger:    logger.Named("nl80211"),
	})
	if err != nil {
		logger.Fatal("nl80211 dial failed", zap.Error(err))
	}
	defer dev.Close()

	var frameTypes []uint16
	for _, t := range mgmtSubtypes {
		frameTypes = append(frameTypes, uint16(byte(t)<<2))
	}
	if err := dev.RegisterMgmtFrames(frameTypes); err != nil {
		logger.Fatal("management frame registration failed", zap.Error(err))
	}
	if err := dev.JoinEventGroups(); err != nil {
		logger.Fatal("multicast join failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	if addr := v.GetString("metrics.listen"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
		logger.Info("metrics listening", zap.String("addr", addr))
	}

	sched := newScheduler()
	pol := newPolicy(v.GetString("network.ssid"), scanChannels(v), logger.Named("policy"))
	m := mlme.New(mlme.Config{
		BeaconLossTimeout: uint32(v.GetInt("mlme.beacon_loss_timeout")),
		SignalReportTicks: uint32(v.GetInt("mlme.signal_report_ticks")),
		ConnectTimeoutBI:  uint32(v.GetInt("mlme.connect_timeout_bi")),
	}, dev, pol, sched, logger.Named("mlme"), reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("mlmed starting",
		zap.String("interface", ifname),
		zap.String("mac", m.Capabilities().MACAddr.String()))

	pol.Start()
	run(ctx, m, dev, sched, pol, logger)
	logger.Info("mlmed stopped")
}

// run is the single event loop: every MLME entry point is called from
// here and nowhere else.
func run(ctx context.Context, m *mlme.MLME, dev *nl80211.Client, sched *scheduler, pol *policy, logger *zap.Logger) {
	events := dev.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *nl80211.FrameEvent:
				m.HandleFrame(e.Frame, e.Info)
			case *nl80211.ScanDoneEvent:
				if !e.Aborted {
					results, err := dev.ScanResults()
					if err != nil {
						logger.Warn("scan result dump failed", zap.Error(err))
					}
					for _, b := range results {
						if desc, ok := bssDescription(b); ok {
							m.AddScanResult(desc)
						}
					}
				}
				m.HandleHWScanComplete(e.Aborted)
			}
		case ft := <-sched.C():
			m.HandleTimeout(ft.id, ft.ev)
		case req := <-pol.Requests():
			if err := m.HandleSMEMessage(req); err != nil {
				logger.Warn("sme request rejected", zap.Error(err))
			}
		}
	}
}

// discoverInterface picks the first nl80211 station interface.
func discoverInterface() (string, error) {
	c, err := wifi.New()
	if err != nil {
		return "", err
	}
	defer c.Close()
	ifis, err := c.Interfaces()
	if err != nil {
		return "", err
	}
	for _, ifi := range ifis {
		if ifi.Type == wifi.InterfaceTypeStation && ifi.Name != "" {
			return ifi.Name, nil
		}
	}
	return "", fmt.Errorf("no station interface found")
}
