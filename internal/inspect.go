package internal

import (
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/governance"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

// Inspection is a printable description of a VAA.
type Inspection struct {
	Version          uint8                `json:"version"`
	GuardianSetIndex uint32               `json:"guardianSetIndex"`
	Signatures       []InspectedSignature `json:"signatures"`
	Timestamp        time.Time            `json:"timestamp"`
	Nonce            uint32               `json:"nonce"`
	EmitterChain     uint16               `json:"emitterChain"`
	EmitterChainName string               `json:"emitterChainName"`
	EmitterAddress   string               `json:"emitterAddress"`
	Sequence         uint64               `json:"sequence"`
	ConsistencyLevel uint8                `json:"consistencyLevel"`
	MessageID        string               `json:"messageId"`
	Digest           string               `json:"digest"`
	Payload          string               `json:"payload"`
	Governance       *InspectedGovernance `json:"governance,omitempty"`
}

type InspectedSignature struct {
	Index     uint8  `json:"index"`
	Signature string `json:"signature"`
}

type InspectedGovernance struct {
	Module      string `json:"module"`
	Action      string `json:"action"`
	TargetChain uint16 `json:"targetChain"`
	// Error is set when the action payload does not decode.
	Error string `json:"error,omitempty"`
}

// Inspect decodes raw without verifying its signatures.
func Inspect(raw []byte) (*Inspection, error) {
	v, err := vaa.Parse(raw)
	if err != nil {
		return nil, err
	}
	body, err := vaa.SplitBody(raw)
	if err != nil {
		return nil, err
	}
	digest := vaa.Digest(body)

	out := &Inspection{
		Version:          v.Version,
		GuardianSetIndex: v.GuardianSetIndex,
		Signatures:       make([]InspectedSignature, len(v.Signatures)),
		Timestamp:        v.Time().UTC(),
		Nonce:            v.Nonce,
		EmitterChain:     uint16(v.EmitterChain),
		EmitterChainName: v.EmitterChain.String(),
		EmitterAddress:   v.EmitterAddress.String(),
		Sequence:         v.Sequence,
		ConsistencyLevel: v.ConsistencyLevel,
		MessageID:        v.MessageID().String(),
		Digest:           hex.EncodeToString(digest[:]),
		Payload:          hex.EncodeToString(v.Payload),
	}
	for i, s := range v.Signatures {
		out.Signatures[i] = InspectedSignature{Index: s.Index, Signature: hex.EncodeToString(s.RSV())}
	}
	if vaa.IsGovernance(v.EmitterChain, v.EmitterAddress) {
		out.Governance = inspectGovernance(v.Payload)
	}
	return out, nil
}

func inspectGovernance(payload []byte) *InspectedGovernance {
	p, err := governance.ParsePacket(payload)
	if err != nil {
		return &InspectedGovernance{Error: err.Error()}
	}
	g := &InspectedGovernance{
		Module:      governance.ModuleName(p.Module),
		Action:      fmt.Sprintf("%d", p.Action),
		TargetChain: uint16(p.Chain),
	}
	action, err := governance.DecodeAction(g.Module, p.Action, p.Payload)
	if err != nil {
		g.Error = err.Error()
		return g
	}
	g.Action = action.Name()
	return g
}

// LogVAAFull logs every field of v at debug level.
func LogVAAFull(logger *zap.Logger, v *vaa.VAA, raw []byte) {
	logger.Debug("Full VAA details",
		zap.Uint8("version", v.Version),
		zap.Uint32("guardianSetIndex", v.GuardianSetIndex),
		zap.Int("signatureCount", len(v.Signatures)),
		zap.Time("timestamp", v.Time()),
		zap.Uint32("nonce", v.Nonce),
		zap.Uint64("sequence", v.Sequence),
		zap.Uint8("consistencyLevel", v.ConsistencyLevel),
		zap.Stringer("emitterChain", v.EmitterChain),
		zap.Stringer("emitterAddress", v.EmitterAddress),
		zap.Int("payloadLength", len(v.Payload)),
		zap.Int("rawBytesLength", len(raw)),
	)
	for i, sig := range v.Signatures {
		logger.Debug("VAA signature",
			zap.Int("position", i),
			zap.Uint8("guardianIndex", sig.Index),
			zap.String("signature", hex.EncodeToString(sig.RSV())),
		)
	}
}

// logPayload logs the payload of v at debug level, decoding governance packets.
func logPayload(logger *zap.Logger, v *vaa.VAA) {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	if vaa.IsGovernance(v.EmitterChain, v.EmitterAddress) {
		g := inspectGovernance(v.Payload)
		logger.Debug("Governance payload",
			zap.String("module", g.Module),
			zap.String("action", g.Action),
			zap.Uint16("targetChain", g.TargetChain),
			zap.String("decodeError", g.Error))
		return
	}
	logger.Debug("VAA payload", zap.String("payloadHex", hex.EncodeToString(v.Payload)))
}
