package env

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/code-payments/code-vault/pkg/config"
	"github.com/code-payments/code-vault/pkg/config/wrapper"
)

// variable is an environment variable looked up on every Get, so changes made
// to the process environment are picked up without a restart.
type variable struct {
	name string
}

// NewConfig returns a raw config backed by the upper-cased environment
// variable key. Unset and empty variables have no value.
func NewConfig(key string) config.Config {
	return &variable{name: strings.ToUpper(key)}
}

func (v *variable) Get(_ context.Context) (interface{}, error) {
	val, ok := os.LookupEnv(v.name)
	if !ok || len(val) == 0 {
		return nil, config.ErrNoValue
	}
	return []byte(val), nil
}

func (*variable) Shutdown() {}

// typed converts the variable named key with one of the wrapper constructors.
func typed[T any](key string, defaultValue T, wrap func(config.Config, T) config.Typed[T]) config.Typed[T] {
	return wrap(NewConfig(key), defaultValue)
}

func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return typed(key, defaultValue, wrapper.NewUint64Config)
}

func NewStringConfig(key string, defaultValue string) config.String {
	return typed(key, defaultValue, wrapper.NewStringConfig)
}

func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return typed(key, defaultValue, wrapper.NewBoolConfig)
}

func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return typed(key, defaultValue, wrapper.NewDurationConfig)
}
