package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	spyv1 "github.com/certusone/wormhole/node/pkg/proto/spy/v1"
	"go.uber.org/zap"
)

// VAASource streams signed VAAs; clients.SpyClient is the production source.
type VAASource interface {
	SubscribeSignedVAA(ctx context.Context) (spyv1.SpyRPCService_SubscribeSignedVAAClient, error)
	Close()
}

type Relayer struct {
	source       VAASource
	vaaProcessor VAAProcessor
	logger       *zap.Logger
	retryDelay   time.Duration
}

func NewRelayer(logger *zap.Logger, source VAASource, processor VAAProcessor) *Relayer {
	return &Relayer{
		logger:       logger.With(zap.String("component", "Relayer")),
		source:       source,
		vaaProcessor: processor,
		retryDelay:   5 * time.Second,
	}
}

// Close cleans up resources used by the relayer
func (r *Relayer) Close() {
	if r.source != nil {
		r.source.Close()
	}
}

// Start processes VAAs from the source until ctx is cancelled. Each VAA is
// processed in its own goroutine; Start waits for them before returning.
func (r *Relayer) Start(ctx context.Context) error {
	var wg sync.WaitGroup

	stream, err := r.source.SubscribeSignedVAA(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to VAA stream: %w", err)
	}

	r.logger.Info("Listening for VAAs")

	processingCtx, cancelProcessing := context.WithCancel(context.Background())
	defer cancelProcessing()

	shutdown := func() {
		cancelProcessing()
		r.logger.Info("Waiting for all VAA processing to complete")
		wg.Wait()
	}

	for {
		resp, err := stream.Recv()
		if ctx.Err() != nil {
			r.logger.Info("Shutting down relayer")
			shutdown()
			r.logger.Info("Shutdown complete")
			return nil
		}
		if err != nil {
			r.logger.Warn("Stream error, resubscribing", zap.Error(err), zap.Duration("retryIn", r.retryDelay))
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				shutdown()
				return nil
			}
			stream, err = r.source.SubscribeSignedVAA(ctx)
			if err != nil {
				shutdown()
				return fmt.Errorf("subscribe to VAA stream after retry: %w", err)
			}
			continue
		}

		wg.Add(1)
		go func(vaaBytes []byte) {
			defer wg.Done()
			r.processVAA(processingCtx, vaaBytes)
		}(resp.VaaBytes)
	}
}

func (r *Relayer) processVAA(ctx context.Context, vaaBytes []byte) {
	if ctx.Err() != nil {
		r.logger.Debug("Processing cancelled for VAA")
		return
	}

	vaaData, err := NewVAAData(vaaBytes)
	if err != nil {
		r.logger.Error("Failed to parse VAA", zap.Error(err))
		return
	}
	LogVAAFull(r.logger, vaaData.VAA, vaaBytes)

	if _, err := r.vaaProcessor.ProcessVAA(ctx, *vaaData); err != nil {
		r.logger.Error("Error processing VAA", zap.Stringer("message_id", vaaData.ID), zap.Error(err))
	}
}
