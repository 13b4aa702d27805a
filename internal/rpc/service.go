// Package rpc exposes analysis results over gRPC.
package rpc

import (
	"context"
	"errors"

	"TSNSpectra/internal/analyzer"
	"TSNSpectra/internal/engine/tas"
	"TSNSpectra/internal/model"
	"TSNSpectra/internal/report"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const serviceName = "tsnspectra.v1.Analyzer"

type HealthCheckRequest struct{}

type HealthCheckResponse struct {
	Status string `json:"status"`
}

// ReportRequest selects a session; an empty SessionID means the latest one.
type ReportRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// AnalyzerServer is the server API of the Analyzer service.
type AnalyzerServer interface {
	HealthCheck(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error)
	GetReport(context.Context, *ReportRequest) (*model.Report, error)
	GetGCL(context.Context, *ReportRequest) (*tas.Document, error)
}

// RegisterAnalyzerServer attaches srv to s.
func RegisterAnalyzerServer(s grpc.ServiceRegistrar, srv AnalyzerServer) {
	s.RegisterService(&analyzerServiceDesc, srv)
}

var analyzerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
		{MethodName: "GetReport", Handler: getReportHandler},
		{MethodName: "GetGCL", Handler: getGCLHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tsnspectra/v1/analyzer",
}

func healthCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HealthCheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/HealthCheck"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).HealthCheck(ctx, req.(*HealthCheckRequest))
	})
}

func getReportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReportRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).GetReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetReport"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).GetReport(ctx, req.(*ReportRequest))
	})
}

func getGCLHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReportRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).GetGCL(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetGCL"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).GetGCL(ctx, req.(*ReportRequest))
	})
}

// Service serves reports held in a report store.
type Service struct {
	store *report.Store
	log   *logrus.Entry
}

// NewService creates the Analyzer service over store.
func NewService(store *report.Store, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: store, log: log}
}

func (s *Service) HealthCheck(ctx context.Context, _ *HealthCheckRequest) (*HealthCheckResponse, error) {
	s.log.Debug("Received HealthCheck request")
	return &HealthCheckResponse{Status: "ok"}, nil
}

func (s *Service) GetReport(ctx context.Context, req *ReportRequest) (*model.Report, error) {
	s.log.WithField("session", req.SessionID).Debug("Received GetReport request")
	return s.lookup(req.SessionID)
}

func (s *Service) GetGCL(ctx context.Context, req *ReportRequest) (*tas.Document, error) {
	s.log.WithField("session", req.SessionID).Debug("Received GetGCL request")
	r, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, err
	}
	doc, err := analyzer.Document(r)
	switch {
	case errors.Is(err, model.ErrNoPeriodicity):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	return doc, nil
}

func (s *Service) lookup(id string) (*model.Report, error) {
	if id == "" {
		r, ok := s.store.Latest()
		if !ok {
			return nil, status.Error(codes.NotFound, "no report available yet")
		}
		return r, nil
	}
	r, ok := s.store.Get(id)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "session %s not found", id)
	}
	return r, nil
}
