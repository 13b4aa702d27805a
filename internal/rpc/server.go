package rpc

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Serve runs a gRPC server for svc on lis until ctx is cancelled.
func Serve(ctx context.Context, lis net.Listener, svc AnalyzerServer, log *logrus.Entry) error {
	s := grpc.NewServer()
	RegisterAnalyzerServer(s, svc)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("gRPC server starting on %s", lis.Addr())
		errCh <- s.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve gRPC: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("gRPC server shutting down...")
		s.GracefulStop()
		return nil
	}
}
