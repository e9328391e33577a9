// Package governance decodes governance VAAs and applies their actions.
package governance

import (
	"bytes"
	"fmt"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/vaa"
	"github.com/wormhole-demo/attestor/internal/wire"
)

// Module names as they appear, NUL padded, in governance packets.
const (
	ModuleCore             = "Core"
	ModuleTokenBridge      = "TokenBridge"
	ModuleGlobalAccountant = "GlobalAccountant"
)

// ModuleTag returns the 32-byte module field for name: the ASCII bytes right
// aligned and left padded with NUL, as deployed contracts expect.
func ModuleTag(name string) [32]byte {
	var tag [32]byte
	if len(name) > len(tag) {
		name = name[:len(tag)]
	}
	copy(tag[len(tag)-len(name):], name)
	return tag
}

// ModuleName strips the NUL padding of a module tag.
func ModuleName(tag [32]byte) string {
	return string(bytes.TrimLeft(tag[:], "\x00"))
}

type packetHeader struct {
	Module [32]byte
	Action uint8
	Chain  vaa.ChainID
}

// Packet is the decoded payload of a governance VAA. Payload holds the
// action specific bytes that follow the target chain.
type Packet struct {
	Module  [32]byte
	Action  uint8
	Chain   vaa.ChainID
	Payload []byte
}

// ParsePacket decodes module | action | target chain | payload.
func ParsePacket(payload []byte) (*Packet, error) {
	var h packetHeader
	rest, err := wire.UnmarshalPrefix(payload, &h)
	if err != nil {
		return nil, coreerrors.WireData(err, "decode governance packet")
	}
	return &Packet{
		Module:  h.Module,
		Action:  h.Action,
		Chain:   h.Chain,
		Payload: append([]byte(nil), rest...),
	}, nil
}

func (p *Packet) Marshal() ([]byte, error) {
	e := wire.NewEncoder(nil)
	if err := e.Encode(packetHeader{Module: p.Module, Action: p.Action, Chain: p.Chain}); err != nil {
		return nil, err
	}
	e.WriteRaw(p.Payload)
	return e.Bytes(), nil
}

// NewPacket encodes action for module targeting chain.
func NewPacket(module string, chain vaa.ChainID, action Action) (*Packet, error) {
	if action.Module() != module {
		return nil, fmt.Errorf("action %s belongs to module %s, not %s", action.Name(), action.Module(), module)
	}
	payload, err := wire.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", action.Name(), err)
	}
	return &Packet{
		Module:  ModuleTag(module),
		Action:  action.ActionID(),
		Chain:   chain,
		Payload: payload,
	}, nil
}
