package governance

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

// Record describes an executed governance action.
type Record struct {
	Module     string
	Action     string
	Attributes map[string]string
}

type handlerFunc func(ctx context.Context, v *vaa.VAA, a Action, now uint32) (map[string]string, error)

// Dispatcher executes the governance actions of one module.
type Dispatcher struct {
	logger *zap.Logger
	module string
	tag    [32]byte
	chain  vaa.ChainID
	handle handlerFunc
}

func newDispatcher(logger *zap.Logger, module string, chain vaa.ChainID, handle handlerFunc) *Dispatcher {
	return &Dispatcher{
		logger: logger.With(zap.String("component", "Governance"), zap.String("module", module)),
		module: module,
		tag:    ModuleTag(module),
		chain:  chain,
		handle: handle,
	}
}

func (d *Dispatcher) Module() string {
	return d.module
}

// Dispatch checks that v is a governance VAA addressed to this module and
// chain, then decodes and applies its action. Envelope mismatches fail before
// the action payload is decoded.
func (d *Dispatcher) Dispatch(ctx context.Context, v *vaa.VAA, now uint32) (*Record, error) {
	if !vaa.IsGovernance(v.EmitterChain, v.EmitterAddress) {
		return nil, fmt.Errorf("%w: %s/%s is not the governance emitter", coreerrors.ErrUnknownEmitter, v.EmitterChain, v.EmitterAddress)
	}
	p, err := ParsePacket(v.Payload)
	if err != nil {
		return nil, err
	}
	if p.Module != d.tag {
		return nil, fmt.Errorf("%w: got %q, want %q", coreerrors.ErrInvalidGovernanceModule, ModuleName(p.Module), d.module)
	}
	if p.Chain != vaa.ChainIDUnset && p.Chain != d.chain {
		return nil, fmt.Errorf("%w: packet targets %s, this is %s", coreerrors.ErrInvalidGovernanceChain, p.Chain, d.chain)
	}

	action, err := DecodeAction(d.module, p.Action, p.Payload)
	if err != nil {
		return nil, err
	}
	attrs, err := d.handle(ctx, v, action, now)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", d.module, action.Name(), err)
	}
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs["target_chain"] = strconv.FormatUint(uint64(p.Chain), 10)
	attrs["sequence"] = strconv.FormatUint(v.Sequence, 10)

	d.logger.Info("Executed governance action",
		zap.String("action", action.Name()),
		zap.Uint64("sequence", v.Sequence),
		zap.Any("attributes", attrs),
	)
	return &Record{Module: d.module, Action: action.Name(), Attributes: attrs}, nil
}

// Router sends each governance VAA to the dispatcher of its module.
type Router struct {
	byTag map[[32]byte]*Dispatcher
}

func NewRouter(dispatchers ...*Dispatcher) *Router {
	r := &Router{byTag: make(map[[32]byte]*Dispatcher, len(dispatchers))}
	for _, d := range dispatchers {
		r.byTag[d.tag] = d
	}
	return r
}

func (r *Router) Dispatch(ctx context.Context, v *vaa.VAA, now uint32) (*Record, error) {
	if !vaa.IsGovernance(v.EmitterChain, v.EmitterAddress) {
		return nil, fmt.Errorf("%w: %s/%s is not the governance emitter", coreerrors.ErrUnknownEmitter, v.EmitterChain, v.EmitterAddress)
	}
	p, err := ParsePacket(v.Payload)
	if err != nil {
		return nil, err
	}
	d, ok := r.byTag[p.Module]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %q", coreerrors.ErrInvalidGovernanceModule, ModuleName(p.Module))
	}
	return d.Dispatch(ctx, v, now)
}
