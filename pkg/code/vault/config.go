package vault

import (
	"time"

	"github.com/code-payments/code-vault/pkg/config"
	"github.com/code-payments/code-vault/pkg/config/env"
	"github.com/code-payments/code-vault/pkg/config/memory"
	"github.com/code-payments/code-vault/pkg/config/wrapper"
)

const (
	envConfigPrefix = "VAULT_CLIENT_"

	MaxSubmitAttemptsConfigEnvName = envConfigPrefix + "MAX_SUBMIT_ATTEMPTS"
	defaultMaxSubmitAttempts       = 5

	SubmitBaseDelayConfigEnvName = envConfigPrefix + "SUBMIT_BASE_DELAY"
	defaultSubmitBaseDelay       = 250 * time.Millisecond

	SubmitMaxDelayConfigEnvName = envConfigPrefix + "SUBMIT_MAX_DELAY"
	defaultSubmitMaxDelay       = 5 * time.Second
)

type conf struct {
	maxSubmitAttempts config.Uint64
	submitBaseDelay   config.Duration
	submitMaxDelay    config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			maxSubmitAttempts: env.NewUint64Config(MaxSubmitAttemptsConfigEnvName, defaultMaxSubmitAttempts),
			submitBaseDelay:   env.NewDurationConfig(SubmitBaseDelayConfigEnvName, defaultSubmitBaseDelay),
			submitMaxDelay:    env.NewDurationConfig(SubmitMaxDelayConfigEnvName, defaultSubmitMaxDelay),
		}
	}
}

type testOverrides struct {
	maxSubmitAttempts uint64
	submitBaseDelay   time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			maxSubmitAttempts: wrapper.NewUint64Config(memory.NewConfig(overrides.maxSubmitAttempts), defaultMaxSubmitAttempts),
			submitBaseDelay:   wrapper.NewDurationConfig(memory.NewConfig(overrides.submitBaseDelay), defaultSubmitBaseDelay),
			submitMaxDelay:    wrapper.NewDurationConfig(memory.NewConfig(overrides.submitBaseDelay), defaultSubmitMaxDelay),
		}
	}
}
