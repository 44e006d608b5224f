package memory

import (
	"context"
	"sync"

	"github.com/code-payments/code-vault/pkg/config"
)

// Config is a mutable config source held in memory. It lets tests and local
// tooling override values that are otherwise read from the environment.
type Config struct {
	mu       sync.RWMutex
	value    interface{}
	failWith error
	closed   bool
}

// NewConfig returns a Config holding value. A nil value means nothing is set,
// and Get reports config.ErrNoValue.
func NewConfig(value interface{}) *Config {
	return &Config{value: value}
}

// Get implements config.Config.Get.
func (c *Config) Get(_ context.Context) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.closed:
		return nil, config.ErrShutdown
	case c.failWith != nil:
		return nil, c.failWith
	case c.value == nil:
		return nil, config.ErrNoValue
	default:
		return c.value, nil
	}
}

// Shutdown implements config.Config.Shutdown.
func (c *Config) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// SetValue replaces the held value. Passing nil is the same as ClearValue.
func (c *Config) SetValue(value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
}

func (c *Config) ClearValue() {
	c.SetValue(nil)
}

// FailWith makes every Get return err until it is called again with nil.
func (c *Config) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}
