package runtime

import (
	"github.com/pkg/errors"
)

const (
	DefaultLamportsPerSignature = 5000
	DefaultMaxBlockhashAge      = 150
	DefaultMaxInvokeDepth       = 4
	DefaultLockStripes          = 1024
	DefaultStatusCacheCapacity  = 1_000_000
	DefaultMaxAirdropLamports   = 10_000_000_000
	DefaultAirdropsPerSecond    = 1.0

	// MaxPermittedDataLength is the largest account a program may allocate.
	MaxPermittedDataLength = 10 * 1024 * 1024
)

// Config controls the economics and limits of a Bank. Fields are tagged for
// decoding with viper.
type Config struct {
	LamportsPerSignature uint64 `mapstructure:"lamports_per_signature"`
	LamportsPerByteYear  uint64 `mapstructure:"lamports_per_byte_year"`
	ExemptionThreshold   uint64 `mapstructure:"exemption_threshold"`

	// MaxBlockhashAge is the number of most recent blockhashes a transaction
	// may reference.
	MaxBlockhashAge int `mapstructure:"max_blockhash_age"`

	MaxInvokeDepth int `mapstructure:"max_invoke_depth"`

	LockStripes         uint `mapstructure:"lock_stripes"`
	StatusCacheCapacity uint `mapstructure:"status_cache_capacity"`

	MaxAirdropLamports uint64  `mapstructure:"max_airdrop_lamports"`
	AirdropsPerSecond  float64 `mapstructure:"airdrops_per_second"`
}

// DefaultConfig mirrors the parameters of a Solana cluster.
func DefaultConfig() *Config {
	return &Config{
		LamportsPerSignature: DefaultLamportsPerSignature,
		LamportsPerByteYear:  DefaultLamportsPerByteYear,
		ExemptionThreshold:   DefaultExemptionThreshold,
		MaxBlockhashAge:      DefaultMaxBlockhashAge,
		MaxInvokeDepth:       DefaultMaxInvokeDepth,
		LockStripes:          DefaultLockStripes,
		StatusCacheCapacity:  DefaultStatusCacheCapacity,
		MaxAirdropLamports:   DefaultMaxAirdropLamports,
		AirdropsPerSecond:    DefaultAirdropsPerSecond,
	}
}

func (c *Config) Validate() error {
	if c.LamportsPerByteYear == 0 || c.ExemptionThreshold == 0 {
		return errors.New("rent parameters must be positive")
	}
	if c.MaxBlockhashAge <= 0 {
		return errors.New("max blockhash age must be positive")
	}
	if c.MaxInvokeDepth <= 0 {
		return errors.New("max invoke depth must be positive")
	}
	if c.LockStripes == 0 {
		return errors.New("lock stripes must be positive")
	}
	if c.StatusCacheCapacity == 0 {
		return errors.New("status cache capacity must be positive")
	}
	if c.AirdropsPerSecond <= 0 {
		return errors.New("airdrop rate must be positive")
	}
	return nil
}

func (c *Config) rent() Rent {
	return Rent{
		LamportsPerByteYear: c.LamportsPerByteYear,
		ExemptionThreshold:  c.ExemptionThreshold,
	}
}
