package leveldb

import (
	"context"
	"crypto/ed25519"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/code-payments/code-vault/pkg/solana/runtime"
)

var (
	accountKeyPrefix = []byte("a")

	writeOpt = opt.WriteOptions{Sync: true}
	readOpt  = opt.ReadOptions{}
)

// Options configures the underlying level db instance.
type Options struct {
	// CacheSize is split between the block cache and the write buffer, in MiB.
	CacheSize              int `mapstructure:"cache_size"`
	OpenFilesCacheCapacity int `mapstructure:"open_files_cache_capacity"`

	// AccountCacheSize is the number of decoded accounts kept in memory.
	AccountCacheSize int `mapstructure:"account_cache_size"`
}

type Store struct {
	mu    sync.RWMutex
	db    *leveldb.DB
	cache *lru.Cache
}

// New opens a persistent account store at path, creating it if necessary.
func New(path string, opts Options) (*Store, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "new persistent level db")
	}
	return open(stg, opts)
}

// NewMem creates an account store backed by memory.
func NewMem() (*Store, error) {
	return open(storage.NewMemStorage(), Options{})
}

func open(stg storage.Storage, opts Options) (*Store, error) {
	if opts.CacheSize < 16 {
		opts.CacheSize = 16
	}
	if opts.OpenFilesCacheCapacity < 16 {
		opts.OpenFilesCacheCapacity = 16
	}
	if opts.AccountCacheSize < 1 {
		opts.AccountCacheSize = 1024
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: opts.OpenFilesCacheCapacity,
		BlockCacheCapacity:     opts.CacheSize / 2 * opt.MiB,
		WriteBuffer:            opts.CacheSize / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}

	// lru.New only fails for a non-positive size
	cache, _ := lru.New(opts.AccountCacheSize)

	return &Store{
		db:    db,
		cache: cache,
	}, nil
}

// Get implements runtime.Store.Get
func (s *Store) Get(_ context.Context, address ed25519.PublicKey) (*runtime.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cached, ok := s.cache.Get(string(address)); ok {
		return cached.(*runtime.Account).Clone(), nil
	}

	raw, err := s.db.Get(accountKey(address), &readOpt)
	if err == leveldb.ErrNotFound {
		return nil, runtime.ErrAccountNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "error reading account")
	}

	account := &runtime.Account{}
	if err := account.Unmarshal(raw); err != nil {
		return nil, err
	}

	s.cache.Add(string(address), account.Clone())
	return account, nil
}

// Commit implements runtime.Store.Commit
func (s *Store) Commit(_ context.Context, updates []*runtime.AccountUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &leveldb.Batch{}
	for _, update := range updates {
		if update.IsDeletion() {
			batch.Delete(accountKey(update.Address))
			continue
		}
		batch.Put(accountKey(update.Address), update.Account.Marshal())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Write(batch, &writeOpt); err != nil {
		return errors.Wrap(err, "error writing account batch")
	}

	for _, update := range updates {
		if update.IsDeletion() {
			s.cache.Remove(string(update.Address))
			continue
		}
		s.cache.Add(string(update.Address), update.Account.Clone())
	}
	return nil
}

// Close closes the level db. Later operations will all fail.
func (s *Store) Close() error {
	return s.db.Close()
}

func accountKey(address ed25519.PublicKey) []byte {
	return append(append([]byte{}, accountKeyPrefix...), address...)
}
