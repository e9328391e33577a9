package internal

import (
	"encoding/hex"

	"github.com/wormhole-demo/attestor/internal/vaa"
)

// VAAData is a VAA received from the spy, decoded once for filtering and logging.
type VAAData struct {
	VAA      *vaa.VAA
	RawBytes []byte
	ID       vaa.MessageID
}

// NewVAAData decodes raw. The signatures are not checked here.
func NewVAAData(raw []byte) (*VAAData, error) {
	v, err := vaa.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &VAAData{VAA: v, RawBytes: raw, ID: v.MessageID()}, nil
}

// EmitterHex is the 64 character hex form of the emitter address.
func (d *VAAData) EmitterHex() string {
	return hex.EncodeToString(d.ID.EmitterAddress[:])
}
