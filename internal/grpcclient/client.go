package grpcclient

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
	"github.com/GriffinCanCode/oneshot/internal/resilience"
	"github.com/GriffinCanCode/oneshot/internal/trace"
)

// Client wraps the health client with retry and a circuit breaker.
type Client struct {
	conn    *grpc.ClientConn
	Health  healthpb.HealthClient
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// New creates a client for addr. Extra options are appended to the defaults.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(trace.StreamClientInterceptor()),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnavailable, "dial %s", addr)
	}

	return &Client{
		conn:    conn,
		Health:  healthpb.NewHealthClient(conn),
		breaker: resilience.New(resilience.ProbeConfig()),
		retry:   resilience.DefaultRetryConfig(),
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Check returns the serving status of service ("" for the whole server).
// Transient failures are retried; repeated failures open the breaker.
func (c *Client) Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	ctx, span := trace.StartSpan(ctx, "health_check")
	defer span.End()
	span.SetAttr("service", service)

	var resp *healthpb.HealthCheckResponse
	err := resilience.Retry(ctx, c.retry, func() error {
		var err error
		resp, err = resilience.ExecuteWithResult(c.breaker, func() (*healthpb.HealthCheckResponse, error) {
			cctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
			defer cancel()
			return c.Health.Check(cctx, &healthpb.HealthCheckRequest{Service: service})
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.FromGRPCError(err)
	}
	return resp, nil
}

// Watch streams status changes of service to onStatus until ctx ends or the
// server closes the stream.
func (c *Client) Watch(ctx context.Context, service string, onStatus func(*healthpb.HealthCheckResponse)) error {
	stream, err := c.Health.Watch(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperrors.FromGRPCError(err)
		}
		onStatus(resp)
	}
}
