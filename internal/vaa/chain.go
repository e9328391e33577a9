package vaa

import (
	"fmt"
	"strconv"

	sdkvaa "github.com/wormhole-foundation/wormhole/sdk/vaa"
)

const (
	// ChainIDUnset is the governance wildcard: an action targeting chain 0 applies everywhere.
	ChainIDUnset  ChainID = 0
	ChainIDSolana ChainID = 1
)

// GovernanceChain and GovernanceEmitter identify the distinguished emitter of governance VAAs.
var (
	GovernanceChain   = ChainIDSolana
	GovernanceEmitter = Address{31: 4}
)

// IsGovernance reports whether chain and emitter are the governance emitter.
func IsGovernance(chain ChainID, emitter Address) bool {
	return chain == GovernanceChain && emitter == GovernanceEmitter
}

// String returns the well-known chain name, falling back to the number.
func (c ChainID) String() string {
	return sdkvaa.ChainID(c).String()
}

// ParseChainID accepts a chain name known to the wormhole SDK ("ethereum")
// or a decimal chain number ("2").
func ParseChainID(s string) (ChainID, error) {
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return ChainID(n), nil
	}
	c, err := sdkvaa.ChainIDFromString(s)
	if err != nil {
		return 0, fmt.Errorf("unknown chain %q: %w", s, err)
	}
	return ChainID(c), nil
}
