package governance_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/governance"
	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/kvstore/kvstoretest"
	"github.com/wormhole-demo/attestor/internal/observation"
	"github.com/wormhole-demo/attestor/internal/testutil"
	"github.com/wormhole-demo/attestor/internal/vaa"
	"github.com/wormhole-demo/attestor/internal/wire"
)

const (
	ownChain vaa.ChainID = 3104
	now      uint32      = 1_700_000_000
)

type env struct {
	guardians *guardianset.Registry
	emitters  *observation.EmitterRegistry
	ledger    *governance.Ledger
	core      *governance.Dispatcher
	bridge    *governance.Dispatcher
	acct      *governance.Dispatcher
	router    *governance.Router
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvOn(t, kvstore.NewMemStore())
}

func newEnvOn(t *testing.T, store kvstore.Store) *env {
	t.Helper()

	e := &env{
		guardians: guardianset.NewRegistry(zap.NewNop(), store, guardianset.Devnet, 24*time.Hour),
		emitters:  observation.NewEmitterRegistry(zap.NewNop(), store),
		ledger:    governance.NewLedger(store),
	}
	require.NoError(t, e.guardians.Init(context.Background(), guardianset.GuardianSet{
		Keys: testutil.Addresses(testutil.GuardianKeys(5)),
	}))
	e.core = governance.NewCoreDispatcher(zap.NewNop(), ownChain, e.guardians, e.ledger)
	e.bridge = governance.NewTokenBridgeDispatcher(zap.NewNop(), ownChain, e.emitters, e.ledger)
	e.acct = governance.NewAccountantDispatcher(zap.NewNop(), ownChain, e.ledger)
	e.router = governance.NewRouter(e.core, e.bridge, e.acct)
	return e
}

func govVAA(t *testing.T, seq uint64, module string, chain vaa.ChainID, action governance.Action) *vaa.VAA {
	t.Helper()

	p, err := governance.NewPacket(module, chain, action)
	require.NoError(t, err)
	payload, err := p.Marshal()
	require.NoError(t, err)
	return testutil.NewVAA(0, vaa.GovernanceChain, vaa.GovernanceEmitter, seq, payload)
}

func rotation(index uint32, n int) *governance.GuardianSetUpgrade {
	var keys [][20]byte
	for _, a := range testutil.Addresses(testutil.GuardianKeys(n)) {
		keys = append(keys, a)
	}
	return &governance.GuardianSetUpgrade{NewIndex: index, Keys: keys}
}

func TestModuleTag(t *testing.T) {
	t.Parallel()

	tag := governance.ModuleTag("Core")
	want := append(bytes.Repeat([]byte{0}, 28), 0x43, 0x6f, 0x72, 0x65)
	require.Equal(t, want, tag[:])
	require.Equal(t, "Core", governance.ModuleName(tag))
	require.Equal(t, "TokenBridge", governance.ModuleName(governance.ModuleTag("TokenBridge")))
}

func TestPacketLayout(t *testing.T) {
	t.Parallel()

	p, err := governance.NewPacket(governance.ModuleCore, 0, rotation(1, 2))
	require.NoError(t, err)
	raw, err := p.Marshal()
	require.NoError(t, err)

	// module(32) | action(1) | chain(2) | new_index(4) | len(1) | keys(2*20)
	require.Len(t, raw, 32+1+2+4+1+40)
	require.Equal(t, byte(2), raw[32])
	require.Equal(t, []byte{0, 0}, raw[33:35])
	require.Equal(t, []byte{0, 0, 0, 1}, raw[35:39])
	require.Equal(t, byte(2), raw[39])

	got, err := governance.ParsePacket(raw)
	require.NoError(t, err)
	require.Equal(t, p, got)

	_, err = governance.ParsePacket(raw[:20])
	require.ErrorIs(t, err, coreerrors.ErrInvalidWireData)

	_, err = governance.NewPacket(governance.ModuleTokenBridge, 0, rotation(1, 2))
	require.Error(t, err)
}

func TestGuardianSetRotationScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("next index", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t)
		rec, err := e.core.Dispatch(ctx, govVAA(t, 1, governance.ModuleCore, 0, rotation(1, 7)), now)
		require.NoError(t, err)
		require.Equal(t, "GuardianSetUpgrade", rec.Action)
		require.Equal(t, "1", rec.Attributes["new_index"])

		cur, err := e.guardians.Current(ctx)
		require.NoError(t, err)
		require.Equal(t, uint32(1), cur.Index)
		require.Zero(t, cur.ExpirationTime)
		require.Len(t, cur.Keys, 7)

		old, err := e.guardians.Get(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, now+24*60*60, old.ExpirationTime)
	})

	t.Run("skipped index", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t)
		_, err := e.core.Dispatch(ctx, govVAA(t, 1, governance.ModuleCore, 0, rotation(2, 7)), now)
		require.ErrorIs(t, err, coreerrors.ErrGuardianSetRotationOrder)

		idx, err := e.guardians.CurrentIndex(ctx)
		require.NoError(t, err)
		require.Zero(t, idx)
	})
}

func TestDispatchEnvelope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	t.Run("not governance emitter", func(t *testing.T) {
		v := govVAA(t, 1, governance.ModuleCore, 0, rotation(1, 3))
		v.EmitterAddress = testutil.Emitter
		_, err := e.core.Dispatch(ctx, v, now)
		require.ErrorIs(t, err, coreerrors.ErrUnknownEmitter)
	})

	t.Run("wrong module", func(t *testing.T) {
		v := govVAA(t, 1, governance.ModuleTokenBridge, 0, &governance.UpgradeContract{})
		_, err := e.core.Dispatch(ctx, v, now)
		require.ErrorIs(t, err, coreerrors.ErrInvalidGovernanceModule)
	})

	t.Run("left aligned module name", func(t *testing.T) {
		v := govVAA(t, 1, governance.ModuleCore, 0, rotation(1, 3))
		var tag [32]byte
		copy(tag[:], "Core")
		copy(v.Payload[:32], tag[:])
		_, err := e.core.Dispatch(ctx, v, now)
		require.ErrorIs(t, err, coreerrors.ErrInvalidGovernanceModule)
	})

	t.Run("other chain", func(t *testing.T) {
		v := govVAA(t, 1, governance.ModuleCore, 5, rotation(1, 3))
		_, err := e.core.Dispatch(ctx, v, now)
		require.ErrorIs(t, err, coreerrors.ErrInvalidGovernanceChain)
	})

	t.Run("unknown action", func(t *testing.T) {
		p := &governance.Packet{Module: governance.ModuleTag(governance.ModuleCore), Action: 9, Payload: []byte{0xff}}
		payload, err := p.Marshal()
		require.NoError(t, err)
		v := testutil.NewVAA(0, vaa.GovernanceChain, vaa.GovernanceEmitter, 1, payload)
		_, err = e.core.Dispatch(ctx, v, now)
		require.ErrorIs(t, err, coreerrors.ErrUnsupportedGovernanceAction)
	})

	t.Run("truncated action payload", func(t *testing.T) {
		v := govVAA(t, 1, governance.ModuleCore, 0, &governance.SetMessageFee{})
		v.Payload = v.Payload[:len(v.Payload)-1]
		_, err := e.core.Dispatch(ctx, v, now)
		require.ErrorIs(t, err, coreerrors.ErrInvalidWireData)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		v := govVAA(t, 1, governance.ModuleCore, 0, &governance.SetMessageFee{})
		v.Payload = append(v.Payload, 0)
		_, err := e.core.Dispatch(ctx, v, now)
		require.ErrorIs(t, err, coreerrors.ErrInvalidWireData)
	})

	cur, err := e.guardians.CurrentIndex(ctx)
	require.NoError(t, err)
	require.Zero(t, cur, "no envelope failure may rotate")
}

func TestCoreFees(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	fee := uint256.NewInt(1_000_000).Bytes32()
	rec, err := e.core.Dispatch(ctx, govVAA(t, 1, governance.ModuleCore, ownChain, &governance.SetMessageFee{Fee: fee}), now)
	require.NoError(t, err)
	require.Equal(t, "1000000", rec.Attributes["fee"])
	require.Equal(t, "3104", rec.Attributes["target_chain"])

	got, err := e.ledger.MessageFee(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), got.Uint64())

	recipient := vaa.Address{31: 0x42}
	amount := uint256.NewInt(250).Bytes32()
	for seq := uint64(2); seq <= 3; seq++ {
		_, err := e.core.Dispatch(ctx, govVAA(t, seq, governance.ModuleCore, 0, &governance.TransferFees{Amount: amount, Recipient: recipient}), now)
		require.NoError(t, err)
	}
	total, err := e.ledger.FeesTransferred(ctx, recipient)
	require.NoError(t, err)
	require.Equal(t, uint64(500), total.Uint64())

	_, err = e.core.Dispatch(ctx, govVAA(t, 4, governance.ModuleCore, 0, &governance.ContractUpgrade{NewContract: [32]byte{31: 7}}), now)
	require.NoError(t, err)
	addr, ok, err := e.ledger.Contract(ctx, governance.ModuleCore)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vaa.Address{31: 7}, addr)
}

func TestTokenBridgeRegisterChain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	emitter := vaa.Address{12: 0x3e, 31: 0xe1}

	rec, err := e.bridge.Dispatch(ctx, govVAA(t, 1, governance.ModuleTokenBridge, 0, &governance.RegisterChain{EmitterChain: 2, EmitterAddress: emitter}), now)
	require.NoError(t, err)
	require.Equal(t, "RegisterChain", rec.Action)
	require.NoError(t, e.emitters.Check(ctx, 2, emitter))

	_, err = e.bridge.Dispatch(ctx, govVAA(t, 2, governance.ModuleTokenBridge, 0, &governance.RegisterChain{EmitterChain: 2, EmitterAddress: vaa.Address{1}}), now)
	require.ErrorIs(t, err, coreerrors.ErrChainAlreadyRegistered)

	_, err = e.bridge.Dispatch(ctx, govVAA(t, 3, governance.ModuleTokenBridge, 0, &governance.RegisterChain{EmitterChain: 0, EmitterAddress: emitter}), now)
	require.ErrorIs(t, err, coreerrors.ErrUnregisteredChain)
}

func TestAccountantModifyBalance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	token := [32]byte{31: 0xaa}
	key := governance.BalanceKey{ChainID: 2, TokenChain: 2, TokenAddress: token}

	modify := func(seq uint64, kind governance.ModificationKind, amount uint64) *vaa.VAA {
		return govVAA(t, seq, governance.ModuleGlobalAccountant, 0, &governance.ModifyBalance{
			Sequence:     seq,
			ChainID:      2,
			TokenChain:   2,
			TokenAddress: token,
			Kind:         kind,
			Amount:       uint256.NewInt(amount).Bytes32(),
			Reason:       "reconcile",
		})
	}

	rec, err := e.acct.Dispatch(ctx, modify(1, governance.ModificationAdd{}, 100), now)
	require.NoError(t, err)
	require.Equal(t, "100", rec.Attributes["balance"])
	require.Equal(t, "reconcile", rec.Attributes["reason"])

	_, err = e.acct.Dispatch(ctx, modify(2, governance.ModificationSubtract{}, 40), now)
	require.NoError(t, err)

	bal, err := e.ledger.Balance(ctx, key)
	require.NoError(t, err)
	require.Equal(t, uint64(60), bal.Uint64())

	_, err = e.acct.Dispatch(ctx, modify(3, governance.ModificationSubtract{}, 61), now)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientBalance)

	_, err = e.acct.Dispatch(ctx, modify(2, governance.ModificationAdd{}, 1), now)
	require.ErrorIs(t, err, coreerrors.ErrAlreadyCommitted)

	bal, err = e.ledger.Balance(ctx, key)
	require.NoError(t, err)
	require.Equal(t, uint64(60), bal.Uint64())

	// Modification 3 failed, so its sequence is still free.
	_, err = e.acct.Dispatch(ctx, modify(3, governance.ModificationSubtract{}, 60), now)
	require.NoError(t, err)
}

func TestAccountantFailedWriteIsRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kvstoretest.NewFaultyStore(kvstore.NewMemStore())
	e := newEnvOn(t, store)
	key := governance.BalanceKey{ChainID: 2, TokenChain: 2}
	v := govVAA(t, 1, governance.ModuleGlobalAccountant, 0, &governance.ModifyBalance{
		Sequence:   1,
		ChainID:    2,
		TokenChain: 2,
		Kind:       governance.ModificationAdd{},
		Amount:     uint256.NewInt(100).Bytes32(),
	})

	store.FailNextWrite("Accountant-modification-")
	_, err := e.acct.Dispatch(ctx, v, now)
	require.ErrorIs(t, err, kvstoretest.ErrInjected)

	bal, err := e.ledger.Balance(ctx, key)
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	rec, err := e.acct.Dispatch(ctx, v, now)
	require.NoError(t, err)
	require.Equal(t, "100", rec.Attributes["balance"])

	bal, err = e.ledger.Balance(ctx, key)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal.Uint64())

	_, err = e.acct.Dispatch(ctx, v, now)
	require.ErrorIs(t, err, coreerrors.ErrAlreadyCommitted)
}

func TestAccountantReasonMustBeUTF8(t *testing.T) {
	t.Parallel()

	_, err := governance.NewPacket(governance.ModuleGlobalAccountant, 0, &governance.ModifyBalance{
		Sequence: 1,
		Kind:     governance.ModificationAdd{},
		Reason:   "\xff\xfe",
	})
	require.ErrorIs(t, err, wire.ErrInvalidUTF8)
}

func TestAccountantOverflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	allOnes := new(uint256.Int).SetAllOne().Bytes32()

	v := func(seq uint64) *vaa.VAA {
		return govVAA(t, seq, governance.ModuleGlobalAccountant, 0, &governance.ModifyBalance{
			Sequence: seq,
			Kind:     governance.ModificationAdd{},
			Amount:   allOnes,
		})
	}
	_, err := e.acct.Dispatch(ctx, v(1), now)
	require.NoError(t, err)
	_, err = e.acct.Dispatch(ctx, v(2), now)
	require.ErrorIs(t, err, coreerrors.ErrBalanceOverflow)
}

func TestRouter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	rec, err := e.router.Dispatch(ctx, govVAA(t, 1, governance.ModuleTokenBridge, 0, &governance.UpgradeContract{NewContract: [32]byte{1}}), now)
	require.NoError(t, err)
	require.Equal(t, governance.ModuleTokenBridge, rec.Module)

	p := &governance.Packet{Module: governance.ModuleTag("NFTBridge"), Action: 1}
	payload, err := p.Marshal()
	require.NoError(t, err)
	_, err = e.router.Dispatch(ctx, testutil.NewVAA(0, vaa.GovernanceChain, vaa.GovernanceEmitter, 2, payload), now)
	require.ErrorIs(t, err, coreerrors.ErrInvalidGovernanceModule)

	_, err = e.router.Dispatch(ctx, testutil.NewVAA(0, 2, testutil.Emitter, 3, payload), now)
	require.ErrorIs(t, err, coreerrors.ErrUnknownEmitter)
}

func TestDecodeAction(t *testing.T) {
	t.Parallel()

	_, err := governance.DecodeAction(governance.ModuleTokenBridge, 3, nil)
	require.ErrorIs(t, err, coreerrors.ErrUnsupportedGovernanceAction)

	_, err = governance.DecodeAction("Wormchain", 1, nil)
	require.ErrorIs(t, err, coreerrors.ErrInvalidGovernanceModule)

	keys := []common.Address{{1}, {2}}
	raw := []byte{0, 0, 0, 4, 2}
	raw = append(raw, keys[0][:]...)
	raw = append(raw, keys[1][:]...)
	a, err := governance.DecodeAction(governance.ModuleCore, governance.ActionGuardianSetUpgrade, raw)
	require.NoError(t, err)
	require.Equal(t, &governance.GuardianSetUpgrade{NewIndex: 4, Keys: [][20]byte{keys[0], keys[1]}}, a)

	// Unknown modification kind is a decode failure, not an unsupported action.
	bad := make([]byte, 8+2+2+32)
	bad = append(bad, 7)
	_, err = governance.DecodeAction(governance.ModuleGlobalAccountant, governance.ActionModifyBalance, bad)
	require.ErrorIs(t, err, coreerrors.ErrInvalidWireData)
}
