package clients

import (
	"context"
	"fmt"
	"time"

	spyv1 "github.com/certusone/wormhole/node/pkg/proto/spy/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// SpyClient streams signed VAAs from a guardian spy.
type SpyClient struct {
	conn   *grpc.ClientConn
	client spyv1.SpyRPCServiceClient
	logger *zap.Logger

	maxRetries int
	retryDelay time.Duration
}

func NewSpyClient(logger *zap.Logger, endpoint string) (*SpyClient, error) {
	c := &SpyClient{
		logger:     logger.With(zap.String("component", "SpyClient")),
		maxRetries: 5,
		retryDelay: 2 * time.Second,
	}

	c.logger.Info("Connecting to spy service", zap.String("endpoint", endpoint))
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to spy: %w", err)
	}

	c.conn = conn
	c.client = spyv1.NewSpyRPCServiceClient(conn)
	return c, nil
}

func (c *SpyClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// SubscribeSignedVAA opens a stream of all signed VAAs, retrying while the
// spy is unreachable.
func (c *SpyClient) SubscribeSignedVAA(ctx context.Context) (spyv1.SpyRPCService_SubscribeSignedVAAClient, error) {
	c.logger.Debug("Subscribing to signed VAAs")

	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		var stream spyv1.SpyRPCService_SubscribeSignedVAAClient
		stream, err = c.client.SubscribeSignedVAA(ctx, &spyv1.SubscribeSignedVAARequest{}, grpc.WaitForReady(true))
		if err == nil {
			return stream, nil
		}
		if attempt == c.maxRetries {
			break
		}

		c.logger.Warn("Subscribe attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
			zap.Duration("retryIn", c.retryDelay))
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("failed to subscribe after %d attempts: %w", c.maxRetries, err)
}
