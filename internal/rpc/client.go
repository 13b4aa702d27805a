package rpc

import (
	"context"
	"fmt"

	"TSNSpectra/internal/engine/tas"
	"TSNSpectra/internal/model"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the Analyzer service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	out := new(HealthCheckResponse)
	if err := c.invoke(ctx, "HealthCheck", &HealthCheckRequest{}, out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// GetReport fetches the report of sessionID, or the latest one when empty.
func (c *Client) GetReport(ctx context.Context, sessionID string) (*model.Report, error) {
	out := new(model.Report)
	if err := c.invoke(ctx, "GetReport", &ReportRequest{SessionID: sessionID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetGCL fetches the gate control list document of a session.
func (c *Client) GetGCL(ctx context.Context, sessionID string) (*tas.Document, error) {
	out := new(tas.Document)
	if err := c.invoke(ctx, "GetGCL", &ReportRequest{SessionID: sessionID}, out); err != nil {
		return nil, err
	}
	return out, nil
}
