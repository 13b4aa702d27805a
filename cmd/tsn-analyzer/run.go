package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"TSNSpectra/internal/capture"
	"TSNSpectra/internal/config"
	"TSNSpectra/internal/logging"
	"TSNSpectra/internal/report"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture live traffic for one session and print the inferred shaper configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, map[string]string{
				"capture.interface":    "iface",
				"capture.vlan_id":      "vlan",
				"capture.filter":       "filter",
				"capture.duration":     "duration",
				"capture.record_path":  "record",
				"transmit.enabled":     "transmit",
				"transmit.interface":   "tx-iface",
				"transmit.dst_mac":     "dst-mac",
				"transmit.pps":         "pps",
				"transmit.duration":    "tx-duration",
				"transmit.classes":     "classes",
				"transmit.waiter":      "waiter",
				"transmit.start_delay": "tx-delay",
			})
			if err != nil {
				return err
			}
			if cfg.Transmit.Interface == "" {
				cfg.Transmit.Interface = cfg.Capture.Interface
			}

			var recorder *capture.Recorder
			if cfg.Capture.RecordPath != "" {
				recorder, err = capture.NewRecorder(cfg.Capture.RecordPath, uint32(cfg.Capture.SnapLen), logging.Component(logger, "recorder"))
				if err != nil {
					return err
				}
				defer recorder.Close()
			}
			src, err := capture.NewLiveSource(cfg.Capture, recorder, logging.Component(logger, "capture"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if d := config.MustDuration(cfg.Capture.Duration); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			id := uuid.NewString()
			logger.WithField("session", id).Infof("Capturing on %s for %s", cfg.Capture.Interface, cfg.Capture.Duration)
			r, err := runSession(ctx, cfg, id, src, logger)
			if r != nil {
				if rerr := report.Render(os.Stdout, r, format); rerr != nil {
					return rerr
				}
			}
			return err
		},
	}

	f := cmd.Flags()
	f.String("iface", "", "Interface to capture from")
	f.Int("vlan", 0, "Only capture this VLAN ID (0 matches any)")
	f.String("filter", "", "Extra BPF expression")
	f.String("duration", "10s", "Capture duration (0 runs until interrupted)")
	f.String("record", "", "Also write captured frames to this pcap file")
	f.Bool("transmit", false, "Send test traffic while capturing")
	f.String("tx-iface", "", "Interface to transmit on (defaults to --iface)")
	f.String("dst-mac", "", "Destination MAC of test frames")
	f.Int("pps", 1000, "Test traffic rate in packets per second")
	f.String("tx-duration", "10s", "Transmit duration")
	f.IntSlice("classes", nil, "Traffic classes to transmit, round-robin")
	f.String("waiter", "busy", "Transmit pacing (busy, sleep)")
	f.String("tx-delay", "100ms", "Wait this long after capture starts before transmitting")
	f.StringVar(&format, "format", report.FormatTable, "Output format (table, json, yaml)")
	return cmd
}

func newPcapCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "pcap <file>",
		Short: "Analyse a recorded pcap or pcapng file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, map[string]string{
				"capture.vlan_id": "vlan",
			})
			if err != nil {
				return err
			}
			cfg.Transmit.Enabled = false

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src := capture.NewFileSource(args[0], cfg.Capture.VLANID, logging.Component(logger, "capture"))
			r, err := runSession(ctx, cfg, uuid.NewString(), src, logger)
			if err != nil {
				return fmt.Errorf("failed to analyse %s: %w", args[0], err)
			}
			return report.Render(os.Stdout, r, format)
		},
	}
	cmd.Flags().Int("vlan", 0, "Only analyse frames of this VLAN ID (0 matches any)")
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "Output format (table, json, yaml)")
	return cmd
}
