package main

import (
	"context"
	"fmt"

	"TSNSpectra/internal/capture"
	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/manager"
	"TSNSpectra/internal/logging"
	"TSNSpectra/internal/model"
	"TSNSpectra/internal/transmit"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// runSession ingests src into a new session until src is exhausted or ctx
// ends, optionally transmitting test traffic alongside, and returns the
// analysed report. Writers run as part of the manager's shutdown.
func runSession(ctx context.Context, cfg *config.Config, id string, src capture.Source, logger *logrus.Logger, opts ...manager.Option) (*model.Report, error) {
	log := logging.Component(logger, "session")
	m, err := manager.NewManager(cfg, id, log, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.WithError(err).Warn("Failed to close writers")
		}
	}()

	m.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return src.Run(gctx, m.Input())
	})
	if cfg.Transmit.Enabled {
		g.Go(func() error {
			return runTransmit(gctx, cfg.Transmit, m, logging.Component(logger, "transmit"))
		})
	}
	runErr := g.Wait()

	// Analyse what was collected even when a collaborator failed.
	stopErr := m.Stop()
	if runErr != nil {
		return m.Report(), fmt.Errorf("session %s: %w", id, runErr)
	}
	if stopErr != nil {
		log.WithError(stopErr).Warn("Some writers failed")
	}
	return m.Report(), nil
}

func runTransmit(ctx context.Context, cfg config.TransmitConfig, rec model.TxRecorder, log *logrus.Entry) error {
	frames, err := transmit.FramesFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to build frames: %w", err)
	}
	waiter, err := transmit.NewWaiter(cfg.Waiter)
	if err != nil {
		return err
	}
	handle, err := transmit.OpenSender(cfg.Interface)
	if err != nil {
		return err
	}
	defer handle.Close()

	tx := transmit.New(handle, waiter, rec, log)
	tx.SetStartDelay(config.MustDuration(cfg.StartDelay))
	_, err = tx.Run(ctx, frames, cfg.PPS, config.MustDuration(cfg.Duration))
	return err
}
