package internal

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/core"
	"github.com/wormhole-demo/attestor/internal/submitter"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

type VAAProcessor interface {
	// ProcessVAA attests the VAA and returns the hash of the forwarding
	// transaction, or "" when nothing was forwarded.
	ProcessVAA(ctx context.Context, vaaData VAAData) (string, error)
}

// Attestor is the part of the core the processor drives.
type Attestor interface {
	SubmitVAA(ctx context.Context, raw []byte, now uint32) (*core.SubmitResult, error)
	Now() uint32
}

type VAAProcessorConfig struct {
	// SourceChains limits processing to these emitter chains (empty = all).
	SourceChains []vaa.ChainID
	// EmitterAddress limits processing to one emitter (empty = all).
	EmitterAddress string
	// ForwardTimeout bounds one forwarding transaction.
	ForwardTimeout time.Duration
}

type DefaultVAAProcessor struct {
	config    VAAProcessorConfig
	emitter   *vaa.Address
	logger    *zap.Logger
	attestor  Attestor
	submitter submitter.VAASubmitter
}

// NewDefaultVAAProcessor returns a processor that commits VAAs through
// attestor. When sub is not nil, newly committed VAAs are forwarded to it.
func NewDefaultVAAProcessor(logger *zap.Logger, config VAAProcessorConfig, attestor Attestor, sub submitter.VAASubmitter) (*DefaultVAAProcessor, error) {
	p := &DefaultVAAProcessor{
		config:    config,
		logger:    logger.With(zap.String("component", "DefaultVAAProcessor")),
		attestor:  attestor,
		submitter: sub,
	}
	if config.EmitterAddress != "" {
		addr, err := vaa.AddressFromHex(config.EmitterAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid emitter filter: %w", err)
		}
		p.emitter = &addr
	}
	if p.config.ForwardTimeout == 0 {
		p.config.ForwardTimeout = 60 * time.Second
	}
	return p, nil
}

func (p *DefaultVAAProcessor) ProcessVAA(ctx context.Context, vaaData VAAData) (string, error) {
	logger := p.logger.With(zap.Stringer("message_id", vaaData.ID))
	logger.Debug("VAA details",
		zap.Stringer("emitterChain", vaaData.ID.EmitterChain),
		zap.Time("timestamp", vaaData.VAA.Time()),
		zap.Int("payloadLength", len(vaaData.VAA.Payload)),
	)

	if len(p.config.SourceChains) > 0 && !slices.Contains(p.config.SourceChains, vaaData.ID.EmitterChain) {
		logger.Debug("Skipping VAA (not from configured chain)")
		return "", nil
	}
	if p.emitter != nil && vaaData.ID.EmitterAddress != *p.emitter {
		logger.Debug("Skipping VAA (not from configured emitter)",
			zap.String("emitter", vaaData.EmitterHex()),
			zap.Stringer("expectedEmitter", *p.emitter))
		return "", nil
	}
	logPayload(logger, vaaData.VAA)

	res, err := p.attestor.SubmitVAA(ctx, vaaData.RawBytes, p.attestor.Now())
	if err != nil {
		return "", fmt.Errorf("attest %s: %w", vaaData.ID, err)
	}
	if res.Replayed {
		logger.Debug("VAA already committed")
		return "", nil
	}
	if g := res.Governance; g != nil {
		logger.Info("Governance VAA executed",
			zap.String("module", g.Module),
			zap.String("action", g.Action),
			zap.Any("attributes", g.Attributes))
	} else {
		logger.Info("VAA committed", zap.Binary("digest", res.VAA.Digest[:]))
	}

	if p.submitter == nil {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.ForwardTimeout)
	defer cancel()

	txHash, err := p.submitter.SubmitVAA(ctx, vaaData.RawBytes)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("Forwarding cancelled or timed out", zap.Error(ctx.Err()))
			return "", fmt.Errorf("forwarding interrupted: %w", ctx.Err())
		}
		return "", fmt.Errorf("forwarding failed: %w", err)
	}

	logger.Info("VAA forwarded", zap.String("txHash", txHash))
	return txHash, nil
}
