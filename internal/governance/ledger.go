package governance

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

const (
	messageFeeKey         = "Core-message-fee"
	feeTransferKeyPrefix  = "Core-fees-transferred-"
	contractKeyPrefix     = "Contract-"
	balanceKeyPrefix      = "Accountant-balance-"
	modificationKeyPrefix = "Accountant-modification-"
)

// Ledger is the governed state that is not a guardian set or an emitter:
// fees, contract addresses and accounted balances.
type Ledger struct {
	store kvstore.Store
}

func NewLedger(store kvstore.Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) getUint256(ctx context.Context, key []byte) (*uint256.Int, error) {
	raw, err := l.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", key, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: stored amount has %d bytes", coreerrors.ErrInvalidWireData, len(raw))
	}
	return new(uint256.Int).SetBytes32(raw), nil
}

func (l *Ledger) putUint256(ctx context.Context, key []byte, v *uint256.Int) error {
	b := v.Bytes32()
	if err := l.store.Put(ctx, key, b[:]); err != nil {
		return fmt.Errorf("failed to store %q: %w", key, err)
	}
	return nil
}

// MessageFee returns the fee set by governance, zero by default.
func (l *Ledger) MessageFee(ctx context.Context) (*uint256.Int, error) {
	return l.getUint256(ctx, []byte(messageFeeKey))
}

func (l *Ledger) SetMessageFee(ctx context.Context, fee *uint256.Int) error {
	return l.putUint256(ctx, []byte(messageFeeKey), fee)
}

// FeesTransferred returns the total fees transferred to recipient.
func (l *Ledger) FeesTransferred(ctx context.Context, recipient vaa.Address) (*uint256.Int, error) {
	return l.getUint256(ctx, append([]byte(feeTransferKeyPrefix), recipient[:]...))
}

// AddFeeTransfer adds amount to the running total of recipient.
func (l *Ledger) AddFeeTransfer(ctx context.Context, recipient vaa.Address, amount *uint256.Int) (*uint256.Int, error) {
	key := append([]byte(feeTransferKeyPrefix), recipient[:]...)
	total, err := l.getUint256(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, overflow := total.AddOverflow(total, amount); overflow {
		return nil, fmt.Errorf("%w: fees transferred to %s", coreerrors.ErrBalanceOverflow, recipient)
	}
	return total, l.putUint256(ctx, key, total)
}

// Contract returns the contract address governance last upgraded module to.
func (l *Ledger) Contract(ctx context.Context, module string) (vaa.Address, bool, error) {
	var addr vaa.Address
	raw, err := l.store.Get(ctx, []byte(contractKeyPrefix+module))
	if errors.Is(err, kvstore.ErrNotFound) {
		return addr, false, nil
	}
	if err != nil {
		return addr, false, fmt.Errorf("failed to load %s contract: %w", module, err)
	}
	if len(raw) != len(addr) {
		return addr, false, fmt.Errorf("%w: stored contract has %d bytes", coreerrors.ErrInvalidWireData, len(raw))
	}
	copy(addr[:], raw)
	return addr, true, nil
}

func (l *Ledger) SetContract(ctx context.Context, module string, addr vaa.Address) error {
	if err := l.store.Put(ctx, []byte(contractKeyPrefix+module), addr[:]); err != nil {
		return fmt.Errorf("failed to store %s contract: %w", module, err)
	}
	return nil
}

// BalanceKey identifies an accounted balance: tokens of (TokenChain,
// TokenAddress) held on ChainID.
type BalanceKey struct {
	ChainID      vaa.ChainID
	TokenChain   vaa.ChainID
	TokenAddress vaa.Address
}

func (k BalanceKey) bytes() []byte {
	b := []byte(balanceKeyPrefix)
	b = binary.BigEndian.AppendUint16(b, uint16(k.ChainID))
	b = binary.BigEndian.AppendUint16(b, uint16(k.TokenChain))
	return append(b, k.TokenAddress[:]...)
}

func (l *Ledger) Balance(ctx context.Context, k BalanceKey) (*uint256.Int, error) {
	return l.getUint256(ctx, k.bytes())
}

func modificationKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(modificationKeyPrefix), seq)
}

// ModifyBalance applies the balance modification numbered seq to the balance
// under k. The new balance and the record that seq was used are written in
// one batch, so a failed write can be retried without applying it twice.
// A sequence that was already applied fails with ErrAlreadyCommitted;
// subtracting more than the balance fails with ErrInsufficientBalance.
// Neither changes anything.
func (l *Ledger) ModifyBalance(ctx context.Context, seq uint64, k BalanceKey, kind ModificationKind, amount *uint256.Int) (*uint256.Int, error) {
	applied, err := l.modificationApplied(ctx, seq)
	if err != nil {
		return nil, err
	}
	if applied {
		return nil, fmt.Errorf("%w: balance modification %d", coreerrors.ErrAlreadyCommitted, seq)
	}

	bal, err := l.Balance(ctx, k)
	if err != nil {
		return nil, err
	}
	switch kind.(type) {
	case ModificationAdd:
		if _, overflow := bal.AddOverflow(bal, amount); overflow {
			return nil, fmt.Errorf("%w: chain %d token %d/%s", coreerrors.ErrBalanceOverflow, k.ChainID, k.TokenChain, k.TokenAddress)
		}
	case ModificationSubtract:
		if bal.Lt(amount) {
			return nil, fmt.Errorf("%w: balance %s, subtracting %s", coreerrors.ErrInsufficientBalance, bal.Dec(), amount.Dec())
		}
		bal.Sub(bal, amount)
	default:
		return nil, fmt.Errorf("%w: unknown modification kind %T", coreerrors.ErrInvalidWireData, kind)
	}

	var b kvstore.Batch
	raw := bal.Bytes32()
	b.Put(k.bytes(), raw[:])
	b.Put(modificationKey(seq), nil)
	if err := l.store.Write(ctx, &b); err != nil {
		return nil, fmt.Errorf("failed to store modification %d: %w", seq, err)
	}
	return bal, nil
}

// modificationApplied reports whether the balance modification sequence was used.
func (l *Ledger) modificationApplied(ctx context.Context, seq uint64) (bool, error) {
	_, err := l.store.Get(ctx, modificationKey(seq))
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load modification %d: %w", seq, err)
	}
	return true, nil
}
