package governance

import (
	"fmt"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/wire"
)

// Action is one decoded governance action.
type Action interface {
	Module() string
	ActionID() uint8
	Name() string
}

// Core module actions.
const (
	ActionContractUpgrade    uint8 = 1
	ActionGuardianSetUpgrade uint8 = 2
	ActionSetMessageFee      uint8 = 3
	ActionTransferFees       uint8 = 4
)

// TokenBridge module actions.
const (
	ActionRegisterChain   uint8 = 1
	ActionUpgradeContract uint8 = 2
)

// GlobalAccountant module actions.
const (
	ActionModifyBalance uint8 = 1
)

type ContractUpgrade struct {
	NewContract [32]byte
}

type GuardianSetUpgrade struct {
	NewIndex uint32
	Keys     [][20]byte
}

// SetMessageFee carries a big-endian uint256 fee.
type SetMessageFee struct {
	Fee [32]byte
}

type TransferFees struct {
	Amount    [32]byte
	Recipient [32]byte
}

type RegisterChain struct {
	EmitterChain   uint16
	EmitterAddress [32]byte
}

type UpgradeContract struct {
	NewContract [32]byte
}

type ModifyBalance struct {
	Sequence     uint64
	ChainID      uint16
	TokenChain   uint16
	TokenAddress [32]byte
	Kind         ModificationKind
	Amount       [32]byte
	Reason       string
}

// ModificationKind is the direction of a balance modification.
type ModificationKind interface {
	wire.Variant
	isModificationKind()
}

type (
	ModificationAdd      struct{}
	ModificationSubtract struct{}
)

func (ModificationAdd) WireTag() uint8      { return 1 }
func (ModificationSubtract) WireTag() uint8 { return 2 }

func (ModificationAdd) isModificationKind()      {}
func (ModificationSubtract) isModificationKind() {}

func init() {
	wire.RegisterEnum[ModificationKind](ModificationAdd{}, ModificationSubtract{})
}

func (*ContractUpgrade) Module() string    { return ModuleCore }
func (*GuardianSetUpgrade) Module() string { return ModuleCore }
func (*SetMessageFee) Module() string      { return ModuleCore }
func (*TransferFees) Module() string       { return ModuleCore }
func (*RegisterChain) Module() string      { return ModuleTokenBridge }
func (*UpgradeContract) Module() string    { return ModuleTokenBridge }
func (*ModifyBalance) Module() string      { return ModuleGlobalAccountant }

func (*ContractUpgrade) ActionID() uint8    { return ActionContractUpgrade }
func (*GuardianSetUpgrade) ActionID() uint8 { return ActionGuardianSetUpgrade }
func (*SetMessageFee) ActionID() uint8      { return ActionSetMessageFee }
func (*TransferFees) ActionID() uint8       { return ActionTransferFees }
func (*RegisterChain) ActionID() uint8      { return ActionRegisterChain }
func (*UpgradeContract) ActionID() uint8    { return ActionUpgradeContract }
func (*ModifyBalance) ActionID() uint8      { return ActionModifyBalance }

func (*ContractUpgrade) Name() string    { return "ContractUpgrade" }
func (*GuardianSetUpgrade) Name() string { return "GuardianSetUpgrade" }
func (*SetMessageFee) Name() string      { return "SetMessageFee" }
func (*TransferFees) Name() string       { return "TransferFees" }
func (*RegisterChain) Name() string      { return "RegisterChain" }
func (*UpgradeContract) Name() string    { return "UpgradeContract" }
func (*ModifyBalance) Name() string      { return "ModifyBalance" }

// DecodeAction selects the action of module by its id and decodes payload into it.
// Ids a module does not define fail with ErrUnsupportedGovernanceAction before
// the payload is looked at.
func DecodeAction(module string, id uint8, payload []byte) (Action, error) {
	var a Action
	switch module {
	case ModuleCore:
		switch id {
		case ActionContractUpgrade:
			a = &ContractUpgrade{}
		case ActionGuardianSetUpgrade:
			a = &GuardianSetUpgrade{}
		case ActionSetMessageFee:
			a = &SetMessageFee{}
		case ActionTransferFees:
			a = &TransferFees{}
		default:
			return nil, fmt.Errorf("%w: %s action %d", coreerrors.ErrUnsupportedGovernanceAction, module, id)
		}
	case ModuleTokenBridge:
		switch id {
		case ActionRegisterChain:
			a = &RegisterChain{}
		case ActionUpgradeContract:
			a = &UpgradeContract{}
		default:
			return nil, fmt.Errorf("%w: %s action %d", coreerrors.ErrUnsupportedGovernanceAction, module, id)
		}
	case ModuleGlobalAccountant:
		switch id {
		case ActionModifyBalance:
			a = &ModifyBalance{}
		default:
			return nil, fmt.Errorf("%w: %s action %d", coreerrors.ErrUnsupportedGovernanceAction, module, id)
		}
	default:
		return nil, fmt.Errorf("%w: %q", coreerrors.ErrInvalidGovernanceModule, module)
	}

	if err := wire.Unmarshal(payload, a); err != nil {
		return nil, coreerrors.WireData(err, "decode "+a.Name())
	}
	return a, nil
}
