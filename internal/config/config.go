// Package config turns viper settings (flags, environment, .env) into the
// configuration of an attestor process.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/core"
	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/sigverify"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

// Viper keys. Flags use the same names with dashes.
const (
	KeyNetwork           = "network"
	KeyChain             = "chain"
	KeyGuardianSetExpiry = "guardian_set_expiry"
	KeyGuardianSetIndex  = "guardian_set_index"
	KeyGuardianKeys      = "guardian_keys"
	KeyEnforceEmitters   = "enforce_emitters"
	KeyRecoverer         = "recoverer"
	KeyStore             = "store"
	KeySQLitePath        = "sqlite_path"
	KeyRedisAddr         = "redis_addr"
	KeyRedisPassword     = "redis_password"
	KeyRedisDB           = "redis_db"
	KeyRedisPrefix       = "redis_prefix"
	KeyListenAddr        = "listen_addr"
	KeySpyRPCHost        = "spy_rpc_host"
	KeySourceChains      = "source_chains"
	KeyEmitterAddress    = "emitter_address"
	KeyEVMRPCURL         = "evm_rpc_url"
	KeyPrivateKey        = "private_key"
	KeyEVMTargetContract = "evm_target_contract"
	KeyEVMMethod         = "evm_method"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyNetwork, guardianset.Devnet.String())
	v.SetDefault(KeyChain, "3104")
	v.SetDefault(KeyGuardianSetExpiry, core.DefaultGuardianSetExpiry)
	v.SetDefault(KeyGuardianSetIndex, 0)
	v.SetDefault(KeyRecoverer, "ethereum")
	v.SetDefault(KeyStore, StoreMemory)
	v.SetDefault(KeySQLitePath, "attestor.sqlite")
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyRedisPrefix, "attestor/")
	v.SetDefault(KeyListenAddr, ":8080")
	v.SetDefault(KeySpyRPCHost, "localhost:7073")
	v.SetDefault(KeyEVMMethod, "receiveMessage")
}

type StoreConfig struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// EVMConfig is the optional forward target of the relay command.
type EVMConfig struct {
	RPCURL         string
	PrivateKey     string
	TargetContract string
	// Method is the contract function receiving the VAA bytes.
	Method string
}

func (c EVMConfig) Enabled() bool {
	return c.RPCURL != "" && c.TargetContract != ""
}

type Config struct {
	Network           guardianset.Network
	ChainID           vaa.ChainID
	GuardianSetExpiry time.Duration
	GuardianSetIndex  uint32
	GuardianKeys      []common.Address
	EnforceEmitters   bool
	Recoverer         string
	Store             StoreConfig
	ListenAddr        string
	SpyRPCHost        string
	SourceChains      []vaa.ChainID
	EmitterAddress    string
	EVM               EVMConfig
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	network, err := guardianset.ParseNetwork(v.GetString(KeyNetwork))
	if err != nil {
		return nil, err
	}
	chain, err := vaa.ParseChainID(v.GetString(KeyChain))
	if err != nil {
		return nil, err
	}

	keys, err := parseGuardianKeys(v.GetStringSlice(KeyGuardianKeys))
	if err != nil {
		return nil, err
	}

	var sources []vaa.ChainID
	for _, s := range splitList(v.GetStringSlice(KeySourceChains)) {
		c, err := vaa.ParseChainID(s)
		if err != nil {
			return nil, fmt.Errorf("invalid source chain: %w", err)
		}
		sources = append(sources, c)
	}

	cfg := &Config{
		Network:           network,
		ChainID:           chain,
		GuardianSetExpiry: v.GetDuration(KeyGuardianSetExpiry),
		GuardianSetIndex:  v.GetUint32(KeyGuardianSetIndex),
		GuardianKeys:      keys,
		EnforceEmitters:   v.GetBool(KeyEnforceEmitters),
		Recoverer:         strings.ToLower(v.GetString(KeyRecoverer)),
		Store: StoreConfig{
			Backend:       strings.ToLower(v.GetString(KeyStore)),
			SQLitePath:    v.GetString(KeySQLitePath),
			RedisAddr:     v.GetString(KeyRedisAddr),
			RedisPassword: v.GetString(KeyRedisPassword),
			RedisDB:       v.GetInt(KeyRedisDB),
			RedisPrefix:   v.GetString(KeyRedisPrefix),
		},
		ListenAddr:     v.GetString(KeyListenAddr),
		SpyRPCHost:     v.GetString(KeySpyRPCHost),
		SourceChains:   sources,
		EmitterAddress: v.GetString(KeyEmitterAddress),
		EVM: EVMConfig{
			RPCURL:         v.GetString(KeyEVMRPCURL),
			PrivateKey:     v.GetString(KeyPrivateKey),
			TargetContract: v.GetString(KeyEVMTargetContract),
			Method:         v.GetString(KeyEVMMethod),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both repeated values and one comma separated value,
// which is how list settings arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseGuardianKeys(in []string) ([]common.Address, error) {
	var keys []common.Address
	for _, s := range splitList(in) {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid guardian key %q", s)
		}
		keys = append(keys, common.HexToAddress(s))
	}
	return keys, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreMemory:
		if len(c.GuardianKeys) == 0 {
			errs = append(errs, errors.New("guardian keys are required with the memory store"))
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required"))
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("redis addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want memory, sqlite or redis)", c.Store.Backend))
	}
	if c.GuardianSetExpiry <= 0 {
		errs = append(errs, fmt.Errorf("guardian set expiry must be positive, got %s", c.GuardianSetExpiry))
	}
	if len(c.GuardianKeys) > guardianset.MaxGuardians {
		errs = append(errs, fmt.Errorf("%d guardian keys exceeds %d", len(c.GuardianKeys), guardianset.MaxGuardians))
	}
	if c.Recoverer != "ethereum" && c.Recoverer != "decred" {
		errs = append(errs, fmt.Errorf("unknown recoverer %q (want ethereum or decred)", c.Recoverer))
	}
	if c.EmitterAddress != "" {
		if _, err := vaa.AddressFromHex(c.EmitterAddress); err != nil {
			errs = append(errs, fmt.Errorf("invalid emitter address: %w", err))
		}
	}
	if c.EVM.TargetContract != "" && !common.IsHexAddress(c.EVM.TargetContract) {
		errs = append(errs, fmt.Errorf("invalid EVM target contract %q", c.EVM.TargetContract))
	}
	return errors.Join(errs...)
}

// SignatureRecoverer returns the configured recovery implementation.
func (c *Config) SignatureRecoverer() sigverify.Recoverer {
	if c.Recoverer == "decred" {
		return sigverify.DecredRecoverer{}
	}
	return sigverify.EthereumRecoverer{}
}

// CoreConfig returns the core settings. The initial guardian set is only set
// when keys were configured.
func (c *Config) CoreConfig() core.Config {
	cfg := core.Config{
		Network:           c.Network,
		ChainID:           c.ChainID,
		GuardianSetExpiry: c.GuardianSetExpiry,
		EnforceEmitters:   c.EnforceEmitters,
		Recoverer:         c.SignatureRecoverer(),
		Clock:             core.SystemClock{},
	}
	if len(c.GuardianKeys) > 0 {
		cfg.InitialGuardianSet = &guardianset.GuardianSet{
			Index: c.GuardianSetIndex,
			Keys:  c.GuardianKeys,
		}
	}
	return cfg
}

// OpenStore opens the configured backend. The returned close function is never nil.
func (c *Config) OpenStore(ctx context.Context, logger *zap.Logger) (kvstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.Store.Backend {
	case StoreMemory:
		logger.Info("Using in-memory store; state is lost on exit")
		return kvstore.NewMemStore(), noop, nil
	case StoreSQLite:
		s, err := kvstore.NewOnDiskSQLiteStore(ctx, c.Store.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("Using sqlite store", zap.String("path", c.Store.SQLitePath), zap.String("build", s.BuildType))
		return s, s.Close, nil
	case StoreRedis:
		s, err := kvstore.NewRedisStore(ctx, kvstore.RedisOptions{
			Addr:     c.Store.RedisAddr,
			Password: c.Store.RedisPassword,
			DB:       c.Store.RedisDB,
			Prefix:   c.Store.RedisPrefix,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open redis store: %w", err)
		}
		logger.Info("Using redis store", zap.String("addr", c.Store.RedisAddr), zap.Int("db", c.Store.RedisDB))
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store %q", c.Store.Backend)
	}
}
