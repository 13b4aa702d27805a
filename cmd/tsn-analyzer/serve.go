package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"TSNSpectra/internal/api"
	"TSNSpectra/internal/capture"
	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/manager"
	"TSNSpectra/internal/logging"
	"TSNSpectra/internal/metrics"
	"TSNSpectra/internal/model"
	"TSNSpectra/internal/probe"
	"TSNSpectra/internal/query"
	"TSNSpectra/internal/report"
	"TSNSpectra/internal/rpc"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		sourceKind string
		history    int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Measure continuously and serve the reports over HTTP and gRPC",
		Long: `serve runs back-to-back measurement sessions of capture.duration each, fed
either by a live interface or by probes publishing over NATS, and serves the
most recent reports over HTTP (with Prometheus metrics) and gRPC.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, map[string]string{
				"capture.interface": "iface",
				"capture.vlan_id":   "vlan",
				"capture.duration":  "duration",
				"probe.nats_url":    "nats",
				"probe.subject":     "subject",
				"api.listen_addr":   "http",
				"grpc.listen_addr":  "grpc",
			})
			if err != nil {
				return err
			}
			if config.MustDuration(cfg.Capture.Duration) <= 0 {
				return fmt.Errorf("serve needs a positive capture duration")
			}
			cfg.Transmit.Enabled = false

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src, cleanup, err := openSource(sourceKind, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			store := report.NewStore(history)
			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			reportMetrics := metrics.NewReportMetrics(registry)

			querier, err := historyQuerier(cfg, logger)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				router := api.NewRouter(store, querier, registry, logging.Component(logger, "api"))
				return api.NewServer(cfg.API.ListenAddr, router, logging.Component(logger, "api")).Run(gctx)
			})
			g.Go(func() error {
				lis, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
				if err != nil {
					return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.ListenAddr, err)
				}
				log := logging.Component(logger, "rpc")
				return rpc.Serve(gctx, lis, rpc.NewService(store, log), log)
			})
			g.Go(func() error {
				return measureLoop(gctx, cfg, src, registry, logger,
					manager.WithWriters(store), manager.WithMetrics(reportMetrics))
			})
			return g.Wait()
		},
	}

	f := cmd.Flags()
	f.StringVar(&sourceKind, "source", "live", "Observation source (live, nats)")
	f.IntVar(&history, "history", 32, "Number of reports kept in memory")
	f.String("iface", "", "Interface to capture from (live source)")
	f.Int("vlan", 0, "Only capture this VLAN ID (0 matches any)")
	f.String("duration", "10s", "Length of each measurement session")
	f.String("nats", "", "NATS server URL (nats source)")
	f.String("subject", "", "NATS subject probes publish to")
	f.String("http", ":8080", "HTTP listen address")
	f.String("grpc", ":9090", "gRPC listen address")
	return cmd
}

// measureLoop runs sessions until ctx ends. Each session's store statistics
// are exported while it runs.
func measureLoop(ctx context.Context, cfg *config.Config, src capture.Source, registry *prometheus.Registry, logger *logrus.Logger, opts ...manager.Option) error {
	period := config.MustDuration(cfg.Capture.Duration)
	for ctx.Err() == nil {
		id := uuid.NewString()
		sessionCtx, cancel := context.WithTimeout(ctx, period)
		r, err := runSession(sessionCtx, cfg, id, src, logger, append(opts, withSessionCollector(registry))...)
		cancel()
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"session": id, "classes": len(r.Classes)}).Info("Session analysed")
	}
	return nil
}

// withSessionCollector registers the live session's collector, replacing the
// previous session's.
func withSessionCollector(registry *prometheus.Registry) manager.Option {
	return func(m *manager.Manager) {
		c := metrics.NewSessionCollector(m.Session())
		registry.Unregister(c)
		registry.MustRegister(c)
	}
}

// openSource creates the observation source serve feeds its sessions from.
func openSource(kind string, cfg *config.Config, logger *logrus.Logger) (capture.Source, func(), error) {
	switch kind {
	case "live":
		src, err := capture.NewLiveSource(cfg.Capture, nil, logging.Component(logger, "capture"))
		return src, func() {}, err
	case "nats":
		sub, err := probe.NewSubscriber(cfg.Probe, logging.Component(logger, "subscriber"))
		if err != nil {
			return nil, nil, err
		}
		relay := make(chan model.Observation, cfg.Session.InputBuffer)
		if err := sub.Start(probe.Feed(relay)); err != nil {
			sub.Close()
			return nil, nil, err
		}
		return capture.NewChannelSource(relay), sub.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q, use live or nats", kind)
	}
}

// historyQuerier returns a querier over the first enabled ClickHouse writer,
// or nil when reports are not stored in ClickHouse.
func historyQuerier(cfg *config.Config, logger *logrus.Logger) (query.Querier, error) {
	for _, def := range cfg.Writers {
		if def.Enabled && def.Type == "clickhouse" {
			logger.Info("Found enabled ClickHouse writer, serving report history.")
			q, err := query.NewClickHouseQuerier(def.ClickHouse)
			if err != nil {
				return nil, fmt.Errorf("failed to create history querier: %w", err)
			}
			return q, nil
		}
	}
	return nil, nil
}
