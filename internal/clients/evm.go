package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// DefaultRelayMethod is the receiving contract function, taking the encoded VAA.
const DefaultRelayMethod = "receiveMessage"

const (
	fallbackGasLimit = 3_000_000
	// Estimates are raised by this percentage to absorb state drift.
	gasLimitBufferPercent = 20
)

var defaultPriorityFee = big.NewInt(100_000_000) // 0.1 gwei

// EVMClient sends committed VAAs to a contract on an EVM chain.
type EVMClient struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	abi        abi.ABI
	method     string
	logger     *zap.Logger
}

// NewEVMClient connects to rpcURL. method names a `function <method>(bytes)`
// on the target contract; empty selects DefaultRelayMethod.
func NewEVMClient(logger *zap.Logger, rpcURL, privateKeyHex, method string) (*EVMClient, error) {
	if method == "" {
		method = DefaultRelayMethod
	}
	parsedABI, err := RelayABI(method)
	if err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	c := &EVMClient{
		logger:     logger.With(zap.String("component", "EVMClient")),
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		abi:        parsedABI,
		method:     method,
	}

	c.logger.Info("Connecting to EVM chain", zap.String("rpcURL", rpcURL), zap.String("method", method))
	c.client, err = ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM node: %w", err)
	}
	return c, nil
}

// RelayABI returns the ABI of a nonpayable `method(bytes encodedVaa)`.
func RelayABI(method string) (abi.ABI, error) {
	abiJSON := fmt.Sprintf(`[{
		"inputs": [{"internalType": "bytes", "name": "encodedVaa", "type": "bytes"}],
		"name": %q,
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}]`, method)
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("ABI parse error: %w", err)
	}
	return parsed, nil
}

func (c *EVMClient) GetAddress() common.Address {
	return c.address
}

func (c *EVMClient) Close() {
	c.client.Close()
}

// RelayVAA calls the relay method of targetContract with vaaBytes in an
// EIP-1559 transaction and returns the transaction hash.
func (c *EVMClient) RelayVAA(ctx context.Context, targetContract string, vaaBytes []byte) (string, error) {
	c.logger.Debug("Sending relay transaction", zap.Int("vaaLength", len(vaaBytes)))

	data, err := c.abi.Pack(c.method, vaaBytes)
	if err != nil {
		return "", fmt.Errorf("ABI pack error: %w", err)
	}
	to := common.HexToAddress(targetContract)

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain ID: %w", err)
	}
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get latest block header: %w", err)
	}

	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		c.logger.Debug("Gas tip suggestion failed, using default", zap.Error(err))
		tip = defaultPriorityFee
	}
	// 2x base fee absorbs fee increases over the next blocks.
	maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.address, To: &to, Data: data})
	if err != nil {
		c.logger.Warn("Gas estimation failed, using fallback limit", zap.Error(err), zap.Uint64("gas", fallbackGasLimit))
		gas = fallbackGasLimit
	} else {
		gas += gas * gasLimitBufferPercent / 100
	}

	c.logger.Debug("Gas parameters",
		zap.Stringer("baseFee", header.BaseFee),
		zap.Stringer("maxFeePerGas", maxFee),
		zap.Stringer("maxPriorityFeePerGas", tip),
		zap.Uint64("gas", gas))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signedTx, err := types.SignTx(tx, types.NewLondonSigner(chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}
