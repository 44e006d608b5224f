package memory

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/code-payments/code-vault/pkg/solana/runtime"
)

type store struct {
	mu       sync.RWMutex
	accounts map[string]*runtime.Account
}

// New returns a new in memory runtime.Store
func New() runtime.Store {
	return &store{
		accounts: make(map[string]*runtime.Account),
	}
}

// Get implements runtime.Store.Get
func (s *store) Get(_ context.Context, address ed25519.PublicKey) (*runtime.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[string(address)]
	if !ok {
		return nil, runtime.ErrAccountNotFound
	}
	return account.Clone(), nil
}

// Commit implements runtime.Store.Commit
func (s *store) Commit(_ context.Context, updates []*runtime.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, update := range updates {
		if update.IsDeletion() {
			delete(s.accounts, string(update.Address))
			continue
		}
		s.accounts[string(update.Address)] = update.Account.Clone()
	}
	return nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*runtime.Account)
}
