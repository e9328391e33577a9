// Package guardianset tracks the guardian sets whose signatures the core accepts.
package guardianset

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/wire"
)

// MaxGuardians is the largest set a VAA header can address with a u8 index.
const MaxGuardians = wire.MaxSequenceLen

type GuardianSet struct {
	Index          uint32
	Keys           []common.Address
	CreationTime   uint32
	ExpirationTime uint32
}

// Quorum returns the number of signatures required out of n guardians.
func Quorum(n int) int {
	return (n*2)/3 + 1
}

func (s *GuardianSet) Quorum() int {
	return Quorum(len(s.Keys))
}

// IsActive reports whether the set may still sign at now.
// An ExpirationTime of 0 never expires.
func (s *GuardianSet) IsActive(now uint32) bool {
	return s.ExpirationTime == 0 || now <= s.ExpirationTime
}

// KeyIndex returns the position of addr in the set, or -1.
func (s *GuardianSet) KeyIndex(addr common.Address) int {
	for i, k := range s.Keys {
		if k == addr {
			return i
		}
	}
	return -1
}

func validateKeys(keys []common.Address) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: no guardian keys", coreerrors.ErrInvalidGuardianSet)
	}
	if len(keys) > MaxGuardians {
		return fmt.Errorf("%w: %d keys exceeds %d", coreerrors.ErrInvalidGuardianSet, len(keys), MaxGuardians)
	}
	seen := make(map[common.Address]struct{}, len(keys))
	for i, k := range keys {
		if k == (common.Address{}) {
			return fmt.Errorf("%w: key %d is the zero address", coreerrors.ErrInvalidGuardianSet, i)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: duplicate key %s", coreerrors.ErrInvalidGuardianSet, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Network selects deployment specific behaviour.
type Network uint8

const (
	Devnet Network = iota
	Testnet
	Mainnet
)

func (n Network) String() string {
	switch n {
	case Devnet:
		return "devnet"
	case Testnet:
		return "testnet"
	case Mainnet:
		return "mainnet"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(s) {
	case "devnet", "dev", "localnet":
		return Devnet, nil
	case "testnet":
		return Testnet, nil
	case "mainnet":
		return Mainnet, nil
	default:
		return 0, fmt.Errorf("unknown network %q (want mainnet, testnet or devnet)", s)
	}
}

// IsPermanentlyInactive is a deployment-history exception, not protocol logic:
// guardian set 0 on mainnet was retired before expiration times were recorded,
// so it is never accepted whatever its stored ExpirationTime says.
func IsPermanentlyInactive(network Network, index uint32) bool {
	return network == Mainnet && index == 0
}
