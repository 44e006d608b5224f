package runtime

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	stdsync "sync"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/system"
	"github.com/code-payments/code-vault/pkg/sync"
)

// ExecutionResult describes a committed transaction.
type ExecutionResult struct {
	Signature solana.Signature
	Slot      uint64
	Fee       uint64
	Logs      []string
}

// Bank is a single node ledger that executes Solana transactions against
// builtin programs. Transactions touching disjoint accounts run in parallel;
// transactions sharing a writable account are serialized.
type Bank struct {
	log     *logrus.Entry
	conf    *Config
	rent    Rent
	store   Store
	locks   *sync.StripedLock
	metrics *bankMetrics

	programsMu stdsync.RWMutex
	programs   map[string]Program

	mu          stdsync.RWMutex
	slot        uint64
	blockhashes *blockhashQueue
	statuses    *statusCache
}

func NewBank(store Store, conf *Config) (*Bank, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	genesis := solana.Blockhash(sha256.Sum256([]byte("genesis")))

	b := &Bank{
		log:         logrus.StandardLogger().WithField("type", "solana/runtime/bank"),
		conf:        conf,
		rent:        conf.rent(),
		store:       store,
		locks:       sync.NewStripedLock(conf.LockStripes),
		metrics:     defaultBankMetrics(),
		programs:    builtinPrograms(),
		blockhashes: newBlockhashQueue(conf.MaxBlockhashAge, genesis),
		statuses:    newStatusCache(conf.StatusCacheCapacity, conf.MaxBlockhashAge),
	}
	return b, nil
}

// RegisterProgram makes program executable at id.
func (b *Bank) RegisterProgram(id ed25519.PublicKey, program Program) {
	b.programsMu.Lock()
	defer b.programsMu.Unlock()

	b.programs[string(id)] = program
}

func (b *Bank) isProgram(id ed25519.PublicKey) bool {
	b.programsMu.RLock()
	defer b.programsMu.RUnlock()

	_, ok := b.programs[string(id)]
	return ok
}

func (b *Bank) Rent() Rent {
	return b.rent
}

func (b *Bank) Config() Config {
	return *b.conf
}

func (b *Bank) Slot() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.slot
}

func (b *Bank) LatestBlockhash() solana.Blockhash {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.blockhashes.latest()
}

// GetAccount returns the committed state of an address.
//
// ErrAccountNotFound is returned if the account does not exist.
func (b *Bank) GetAccount(ctx context.Context, address ed25519.PublicKey) (*Account, error) {
	if b.isProgram(address) {
		return programAccount(), nil
	}
	return b.store.Get(ctx, address)
}

// GetSignatureSlot returns the slot a signature was committed in.
func (b *Bank) GetSignatureSlot(sig solana.Signature) (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.statuses.get(sig)
}

// Genesis credits accounts outside of any transaction. It is intended for
// bootstrapping the faucet and test fixtures.
func (b *Bank) Genesis(ctx context.Context, balances map[string]uint64) error {
	updates := make([]*AccountUpdate, 0, len(balances))
	for address, lamports := range balances {
		account, err := b.store.Get(ctx, ed25519.PublicKey(address))
		if errors.Is(err, ErrAccountNotFound) {
			account = newEmptyAccount()
		} else if err != nil {
			return errors.Wrap(err, "failed to load account")
		}

		account.Lamports += lamports
		updates = append(updates, &AccountUpdate{
			Address: ed25519.PublicKey(address),
			Account: account,
		})
	}

	return b.store.Commit(ctx, updates)
}

// ProcessTransaction verifies, executes and commits a transaction.
//
// A failed transaction returns a *solana.TransactionError and leaves every
// account untouched, including the fee payer.
func (b *Bank) ProcessTransaction(ctx context.Context, txn solana.Transaction) (*ExecutionResult, error) {
	log := b.log.WithField("method", "ProcessTransaction")

	if len(txn.Signatures) > 0 {
		log = log.WithField("signature", txn.Signatures[0].String())
	}

	result, err := b.processTransaction(ctx, log, txn)
	if err != nil {
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) {
			b.recordFailure(txErr)
			log.WithError(txErr).Debug("transaction failed")
		} else {
			log.WithError(err).Warn("failure processing transaction")
		}
		return nil, err
	}

	b.metrics.transactions.WithLabelValues(resultSuccess, "").Inc()
	b.metrics.feesCollected.Add(float64(result.Fee))
	return result, nil
}

func (b *Bank) processTransaction(ctx context.Context, log *logrus.Entry, txn solana.Transaction) (*ExecutionResult, error) {
	if err := sanitize(&txn); err != nil {
		log.WithError(err).Debug("transaction failed sanitization")
		if err == errAccountLoadedTwice {
			return nil, solana.NewTransactionError(solana.TransactionErrorAccountLoadedTwice)
		}
		return nil, solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}

	if err := txn.VerifySignatures(); err != nil {
		log.WithError(err).Debug("invalid signature")
		return nil, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}

	m := &txn.Message
	sig := txn.Signatures[0]

	writable := make(map[string][]byte)
	readonly := make(map[string][]byte)
	for i, key := range m.Accounts {
		if m.IsWritable(i) {
			writable[string(key)] = key
		} else {
			readonly[string(key)] = key
		}
	}
	unlock := b.locks.LockKeys(maps.Values(writable), maps.Values(readonly))
	defer unlock()

	b.mu.RLock()
	_, processed := b.statuses.get(sig)
	recent := b.blockhashes.isValid(m.RecentBlockhash)
	b.mu.RUnlock()

	if processed {
		return nil, solana.NewTransactionError(solana.TransactionErrorAlreadyProcessed)
	}
	if !recent {
		return nil, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}

	tx, loaded, err := b.loadTransaction(ctx, m)
	if err != nil {
		return nil, err
	}

	fee := b.conf.LamportsPerSignature * uint64(len(txn.Signatures))
	payer := tx.accounts[0]
	switch {
	case !payer.Exists():
		return nil, solana.NewTransactionError(solana.TransactionErrorAccountNotFound)
	case !bytes.Equal(payer.Owner, system.ProgramKey) || len(payer.Data) > 0:
		return nil, solana.NewTransactionError(solana.TransactionErrorInvalidAccountForFee)
	case payer.Lamports < fee:
		return nil, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}
	payer.Lamports -= fee

	for i, ix := range m.Instructions {
		accounts := make([]instructionAccount, len(ix.Accounts))
		for j, index := range ix.Accounts {
			accounts[j] = instructionAccount{
				index:      int(index),
				isSigner:   m.IsSigner(int(index)),
				isWritable: m.IsWritable(int(index)),
			}
		}

		err := processInstruction(tx, m.Accounts[ix.ProgramIndex], accounts, ix.Data, 1)
		if err != nil {
			log.WithField("logs", tx.logs).Trace("program logs")
			return nil, instructionFailure(i, err)
		}
	}

	var updates []*AccountUpdate
	for i, account := range tx.accounts {
		if !tx.writable[i] || account.Equal(loaded[i]) {
			continue
		}

		if account.Exists() && !b.rent.IsExempt(account.Lamports, uint64(len(account.Data))) {
			log.WithField("account", base58.Encode(m.Accounts[i])).Debug("account left below rent exempt minimum")
			return nil, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForRent)
		}

		updates = append(updates, &AccountUpdate{
			Address: m.Accounts[i],
			Account: account,
		})
	}

	if err := b.store.Commit(ctx, updates); err != nil {
		return nil, errors.Wrap(err, "failed to commit accounts")
	}

	b.mu.Lock()
	b.slot++
	slot := b.slot
	b.statuses.add(sig, slot, m.RecentBlockhash)
	b.statuses.prune(b.blockhashes.register(nextBlockhash(b.blockhashes.latest(), slot, sig))...)
	b.mu.Unlock()

	b.metrics.slot.Set(float64(slot))
	log.WithFields(logrus.Fields{
		"slot": slot,
		"logs": tx.logs,
	}).Trace("transaction committed")

	return &ExecutionResult{
		Signature: sig,
		Slot:      slot,
		Fee:       fee,
		Logs:      tx.logs,
	}, nil
}

// loadTransaction clones every account of the message into a new working
// set. The returned slice holds the accounts as loaded.
func (b *Bank) loadTransaction(ctx context.Context, m *solana.Message) (*transactionContext, []*Account, error) {
	b.programsMu.RLock()
	programs := make(map[string]Program, len(b.programs))
	for id, program := range b.programs {
		programs[id] = program
	}
	b.programsMu.RUnlock()

	tx := &transactionContext{
		keys:     m.Accounts,
		accounts: make([]*Account, len(m.Accounts)),
		signer:   make([]bool, len(m.Accounts)),
		writable: make([]bool, len(m.Accounts)),
		programs: programs,
		rent:     b.rent,
		maxDepth: b.conf.MaxInvokeDepth,
	}
	loaded := make([]*Account, len(m.Accounts))

	for i, key := range m.Accounts {
		var account *Account
		if _, ok := programs[string(key)]; ok {
			account = programAccount()
		} else {
			var err error
			account, err = b.store.Get(ctx, key)
			if errors.Is(err, ErrAccountNotFound) {
				account = newEmptyAccount()
			} else if err != nil {
				return nil, nil, errors.Wrapf(err, "failed to load account %s", base58.Encode(key))
			}
		}

		loaded[i] = account
		tx.accounts[i] = account.Clone()
		tx.signer[i] = m.IsSigner(i)
		tx.writable[i] = m.IsWritable(i)
	}

	for _, ix := range m.Instructions {
		program := m.Accounts[ix.ProgramIndex]
		if _, ok := programs[string(program)]; ok {
			continue
		}
		if loaded[ix.ProgramIndex].Exists() {
			return nil, nil, solana.NewTransactionError(solana.TransactionErrorInvalidProgramForExecution)
		}
		return nil, nil, solana.NewTransactionError(solana.TransactionErrorProgramAccountNotFound)
	}

	return tx, loaded, nil
}

func (b *Bank) recordFailure(txErr *solana.TransactionError) {
	key := string(txErr.ErrorKey())
	if ixErr := txErr.InstructionError(); ixErr != nil {
		key = ixErr.Err.Error()
		b.metrics.instructionErrors.WithLabelValues(key).Inc()
	}
	b.metrics.transactions.WithLabelValues(resultFailed, key).Inc()
}

// instructionFailure converts an error returned while executing instruction
// index into the transaction error reported to the caller.
func instructionFailure(index int, err error) error {
	ixErr := &solana.InstructionError{
		Index: index,
		Err:   normalizeInstructionError(err),
	}

	txErr, convErr := solana.TransactionErrorFromInstructionError(ixErr)
	if convErr != nil {
		return errors.Wrap(convErr, "failed to build transaction error")
	}
	return txErr
}

func normalizeInstructionError(err error) error {
	var custom solana.CustomError
	if errors.As(err, &custom) {
		return custom
	}

	var customizer solana.Customizer
	if errors.As(err, &customizer) {
		return customizer.Custom()
	}

	var key solana.InstructionErrorKey
	if errors.As(err, &key) {
		return key
	}

	return solana.InstructionErrorGenericError
}
