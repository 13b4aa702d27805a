package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"TSNSpectra/internal/capture"
	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/manager"
	"TSNSpectra/internal/logging"
	"TSNSpectra/internal/model"
	"TSNSpectra/internal/probe"
	"TSNSpectra/internal/report"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configFile string
	v          = config.NewViper()
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "tsn-probe",
		Short:        "Capture observations on one host and analyse them on another over NATS",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().String("nats", "", "NATS server URL")
	rootCmd.PersistentFlags().String("subject", "", "NATS subject")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error)")
	for key, name := range map[string]string{
		"probe.nats_url": "nats",
		"probe.subject":  "subject",
		"log.level":      "log-level",
	} {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(newPubCmd(), newSubCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(configFile); err != nil {
			return nil, nil, err
		}
	}
	if err := config.Overlay(cfg, v); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newPubCmd() *cobra.Command {
	var iface, probeID string
	cmd := &cobra.Command{
		Use:   "pub",
		Short: "Capture VLAN traffic and publish observation batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if iface != "" {
				cfg.Capture.Interface = iface
			}
			if probeID == "" {
				probeID, _ = os.Hostname()
			}

			pub, err := probe.NewPublisher(cfg.Probe, probeID, logging.Component(logger, "publisher"))
			if err != nil {
				return err
			}
			defer pub.Close()

			src, err := capture.NewLiveSource(cfg.Capture, nil, logging.Component(logger, "capture"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			observations := make(chan model.Observation, cfg.Session.InputBuffer)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer close(observations)
				return src.Run(gctx, observations)
			})
			g.Go(func() error {
				return pub.Run(gctx, observations)
			})
			logger.Infof("Publishing observations from %s to '%s'", cfg.Capture.Interface, cfg.Probe.Subject)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&iface, "iface", "", "Interface to capture from")
	cmd.Flags().StringVar(&probeID, "id", "", "Probe identifier (defaults to the host name)")
	return cmd
}

func newSubCmd() *cobra.Command {
	var (
		duration string
		format   string
	)
	cmd := &cobra.Command{
		Use:   "sub",
		Short: "Collect published observations for one session and print the analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := config.ParseDuration(duration)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}

			sub, err := probe.NewSubscriber(cfg.Probe, logging.Component(logger, "subscriber"))
			if err != nil {
				return err
			}
			defer sub.Close()
			relay := make(chan model.Observation, cfg.Session.InputBuffer)
			if err := sub.Start(probe.Feed(relay)); err != nil {
				return fmt.Errorf("subscriber failed to start: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			id := uuid.NewString()
			m, err := manager.NewManager(cfg, id, logging.Component(logger, "session"))
			if err != nil {
				return err
			}
			defer m.Close()

			m.Start()
			if err := capture.NewChannelSource(relay).Run(ctx, m.Input()); err != nil {
				return err
			}
			if err := m.Stop(); err != nil {
				logger.WithError(err).Warn("Some writers failed")
			}
			logger.WithFields(logrus.Fields{
				"received": sub.Received(),
				"lost":     sub.Lost(),
			}).Info("Session closed")
			return report.Render(os.Stdout, m.Report(), format)
		},
	}
	cmd.Flags().StringVar(&duration, "duration", "10s", "How long to collect (0 runs until interrupted)")
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "Output format (table, json, yaml)")
	return cmd
}
