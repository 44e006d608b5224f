package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/code-payments/code-vault/pkg/retry"
	"github.com/code-payments/code-vault/pkg/retry/backoff"
)

const (
	ticksPerSec  = 160
	ticksPerSlot = 64
	slotsPerSec  = ticksPerSec / ticksPerSlot

	// PollRate is the rate at which signature statuses are polled.
	PollRate = (time.Second / slotsPerSec) / 2

	// Poll rate is ~2x the slot rate, and we want to wait ~32 slots
	sigStatusPollLimit = 2 * 32

	// Reference: https://github.com/solana-labs/solana/blob/71e9958e061493d7545bd28d4ac7a85aaed6ffbb/client/src/rpc_custom_error.rs#L11
	rpcNodeUnhealthyCode = -32005

	invalidParamCode = -32602
)

type Environment string

const (
	EnvironmentDev   Environment = "https://api.devnet.solana.com"
	EnvironmentTest  Environment = "https://api.testnet.solana.com"
	EnvironmentProd  Environment = "https://api.mainnet-beta.solana.com"
	EnvironmentLocal Environment = "http://127.0.0.1:8899"
)

type Commitment struct {
	Commitment string `json:"commitment"`
}

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrNoBalance         = errors.New("no balance")
)

// AccountInfo is the raw state of an account.
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

type SignatureStatus struct {
	Slot        uint64
	ErrorResult *TransactionError

	// Confirmations will be nil if the transaction has been rooted.
	Confirmations      *int
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	if s.Finalized() {
		return true
	}
	if s.ConfirmationStatus == confirmationStatusConfirmed {
		return true
	}
	return s.Confirmations != nil && *s.Confirmations >= 1
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

// Client provides the subset of the Solana JSON RPC API needed to operate
// vaults. It is implemented by an RPC node client (New) and by the local
// ledger (runtime.NewClient).
//
// Reference: https://docs.solana.com/apps/jsonrpc-api
type Client interface {
	GetAccountInfo(ed25519.PublicKey, Commitment) (AccountInfo, error)
	GetBalance(ed25519.PublicKey) (uint64, error)
	GetMinimumBalanceForRentExemption(size uint64) (lamports uint64, err error)
	GetLatestBlockhash() (Blockhash, error)
	GetSlot(Commitment) (uint64, error)
	GetSignatureStatus(Signature, Commitment) (*SignatureStatus, error)
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
	RequestAirdrop(ed25519.PublicKey, uint64, Commitment) (Signature, error)
	SubmitTransaction(Transaction, Commitment) (Signature, error)
}

var (
	errRateLimited  = errors.New("rate limited")
	errServiceError = errors.New("service error")
)

const blockhashMaxAge = 2 * time.Second

// contextual is the envelope used by RPC methods whose result is tied to the
// slot it was read at.
type contextual[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

type encodingConfig struct {
	Commitment string `json:"commitment,omitempty"`
	Encoding   string `json:"encoding"`
}

type rpcAccount struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
}

type rpcSignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *int            `json:"confirmations"`
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

type rpcClient struct {
	log     *logrus.Entry
	rpc     jsonrpc.RPCClient
	retrier retry.Retrier

	recentMu      sync.RWMutex
	recent        Blockhash
	recentFetched time.Time
}

// New returns a client using the specified endpoint.
func New(endpoint string) Client {
	return NewWithRPCOptions(endpoint, nil)
}

// NewWithRPCOptions returns a client configured with the specified RPC options.
// Rate limiting and node side failures are retried a few times with jittered
// exponential backoff.
func NewWithRPCOptions(endpoint string, opts *jsonrpc.RPCClientOpts) Client {
	return &rpcClient{
		log: logrus.StandardLogger().WithField("type", "solana/client"),
		rpc: jsonrpc.NewClientWithOpts(endpoint, opts),
		retrier: retry.NewRetrier(
			retry.RetriableErrors(errRateLimited, errServiceError),
			retry.Limit(3),
			retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), 10*time.Second, 0.1),
		),
	}
}

// call invokes method and decodes its result into out. Errors are wrapped with
// the method name; errors.Cause recovers the underlying *jsonrpc.RPCError.
func (c *rpcClient) call(out interface{}, method string, params ...interface{}) error {
	_, err := c.retrier.Retry(func() error {
		return c.classify(method, c.rpc.CallFor(out, method, params...))
	})
	if err != nil {
		return errors.Wrapf(err, "%s() failed", method)
	}
	return nil
}

func (c *rpcClient) classify(method string, err error) error {
	rpcErr, ok := err.(*jsonrpc.RPCError)
	switch {
	case !ok:
		return err
	case rpcErr.Code == 429:
		c.log.WithField("method", method).Warn("rate limited")
		return errRateLimited
	case rpcErr.Code >= 500, rpcErr.Code == rpcNodeUnhealthyCode:
		c.log.WithField("method", method).WithError(err).Debug("node unavailable")
		return errServiceError
	default:
		return err
	}
}

func rpcErrorCode(err error) (int, bool) {
	rpcErr, ok := errors.Cause(err).(*jsonrpc.RPCError)
	if !ok {
		return 0, false
	}
	return rpcErr.Code, true
}

func (c *rpcClient) GetAccountInfo(account ed25519.PublicKey, commitment Commitment) (AccountInfo, error) {
	var resp contextual[*rpcAccount]
	err := c.call(&resp, "getAccountInfo", base58.Encode(account), encodingConfig{
		Commitment: commitment.Commitment,
		Encoding:   "base64",
	})
	if err != nil {
		return AccountInfo{}, err
	}
	if resp.Value == nil {
		return AccountInfo{}, ErrNoAccountInfo
	}
	return resp.Value.decode()
}

func (a *rpcAccount) decode() (AccountInfo, error) {
	owner, err := base58.Decode(a.Owner)
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "invalid base58 encoded owner")
	}
	if len(owner) != ed25519.PublicKeySize {
		return AccountInfo{}, errors.Errorf("invalid owner length %d", len(owner))
	}

	// [data, encoding]
	if len(a.Data) == 0 {
		return AccountInfo{}, errors.New("missing account data in response")
	}
	data, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "invalid base64 encoded data")
	}

	return AccountInfo{
		Data:       data,
		Owner:      owner,
		Lamports:   a.Lamports,
		Executable: a.Executable,
	}, nil
}

func (c *rpcClient) GetBalance(account ed25519.PublicKey) (uint64, error) {
	var resp contextual[uint64]
	err := c.call(&resp, "getBalance", base58.Encode(account), CommitmentProcessed)
	if code, ok := rpcErrorCode(err); ok && code == invalidParamCode {
		return 0, ErrNoBalance
	}
	return resp.Value, err
}

func (c *rpcClient) GetMinimumBalanceForRentExemption(dataSize uint64) (lamports uint64, err error) {
	err = c.call(&lamports, "getMinimumBalanceForRentExemption", dataSize)
	return lamports, err
}

// GetLatestBlockhash serves a cached blockhash for a short, randomized window
// so that many callers sharing a client don't all refresh at once.
func (c *rpcClient) GetLatestBlockhash() (Blockhash, error) {
	maxAge := time.Duration(float64(blockhashMaxAge) * (0.8 + rand.Float64()))

	c.recentMu.RLock()
	hash, fetched := c.recent, c.recentFetched
	c.recentMu.RUnlock()
	if hash != (Blockhash{}) && time.Since(fetched) < maxAge {
		return hash, nil
	}

	var resp contextual[struct {
		Blockhash string `json:"blockhash"`
	}]
	if err := c.call(&resp, "getLatestBlockhash"); err != nil {
		return Blockhash{}, err
	}

	raw, err := base58.Decode(resp.Value.Blockhash)
	if err != nil || len(raw) != len(hash) {
		return Blockhash{}, errors.Errorf("invalid blockhash in response: %q", resp.Value.Blockhash)
	}
	copy(hash[:], raw)

	c.recentMu.Lock()
	c.recent, c.recentFetched = hash, time.Now()
	c.recentMu.Unlock()

	return hash, nil
}

func (c *rpcClient) GetSlot(commitment Commitment) (slot uint64, err error) {
	// The node only accepts the commitment wrapped in an array.
	err = c.call(&slot, "getSlot", []interface{}{commitment})
	return slot, err
}

var errCommitmentNotReached = errors.New("commitment not reached")

// GetSignatureStatus polls until sig reaches commitment or has failed. It gives
// up after roughly 32 slots.
func (c *rpcClient) GetSignatureStatus(sig Signature, commitment Commitment) (*SignatureStatus, error) {
	var status *SignatureStatus
	_, err := retry.Retry(
		func() error {
			statuses, err := c.GetSignatureStatuses([]Signature{sig})
			if err != nil {
				return err
			}

			status = statuses[0]
			switch {
			case status == nil:
				return ErrSignatureNotFound
			case status.ErrorResult != nil, status.reached(commitment):
				return nil
			default:
				return errCommitmentNotReached
			}
		},
		retry.RetriableErrors(ErrSignatureNotFound, errCommitmentNotReached),
		retry.Limit(sigStatusPollLimit),
		retry.Backoff(backoff.Constant(PollRate), PollRate),
	)
	return status, err
}

func (s SignatureStatus) reached(commitment Commitment) bool {
	switch commitment {
	case CommitmentConfirmed:
		return s.Confirmed()
	case CommitmentFinalized:
		return s.Finalized()
	default:
		return true
	}
}

func (c *rpcClient) GetSignatureStatuses(sigs []Signature) ([]*SignatureStatus, error) {
	encoded := make([]string, len(sigs))
	for i, sig := range sigs {
		encoded[i] = sig.String()
	}

	var resp contextual[[]*rpcSignatureStatus]
	err := c.call(&resp, "getSignatureStatuses", encoded, struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{true})
	if err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i := 0; i < len(statuses) && i < len(resp.Value); i++ {
		if resp.Value[i] == nil {
			continue
		}
		if statuses[i], err = resp.Value[i].decode(); err != nil {
			return nil, err
		}
	}
	return statuses, nil
}

func (s *rpcSignatureStatus) decode() (*SignatureStatus, error) {
	status := &SignatureStatus{
		Slot:               s.Slot,
		Confirmations:      s.Confirmations,
		ConfirmationStatus: s.ConfirmationStatus,
	}
	if len(s.Err) == 0 || bytes.Equal(s.Err, []byte("null")) {
		return status, nil
	}

	var raw interface{}
	if err := json.Unmarshal(s.Err, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse transaction result")
	}
	txErr, err := ParseTransactionError(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse transaction result")
	}
	status.ErrorResult = txErr
	return status, nil
}

func (c *rpcClient) RequestAirdrop(account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error) {
	var encoded string
	if err := c.call(&encoded, "requestAirdrop", base58.Encode(account), lamports, commitment); err != nil {
		return Signature{}, err
	}

	var sig Signature
	raw, err := base58.Decode(encoded)
	if err != nil || len(raw) != len(sig) {
		return Signature{}, errors.Errorf("invalid signature in response: %q", encoded)
	}
	copy(sig[:], raw)
	return sig, nil
}

// SubmitTransaction sends the transaction with preflight checks enabled, so
// that program failures are reported synchronously as a *TransactionError.
func (c *rpcClient) SubmitTransaction(txn Transaction, commitment Commitment) (Signature, error) {
	sig := txn.Signatures[0]

	var ignored string
	err := c.call(&ignored, "sendTransaction", base64.StdEncoding.EncodeToString(txn.Marshal()), struct {
		Encoding            string `json:"encoding"`
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment"`
	}{
		Encoding:            "base64",
		PreflightCommitment: commitment.Commitment,
	})
	if err == nil {
		return sig, nil
	}

	rpcErr, ok := errors.Cause(err).(*jsonrpc.RPCError)
	if !ok {
		return sig, err
	}
	if txErr, parseErr := ParseRPCError(rpcErr); parseErr == nil && txErr != nil {
		c.log.WithFields(logrus.Fields{
			"method":    "SubmitTransaction",
			"signature": sig.String(),
		}).WithError(txErr).Debug("transaction rejected")
		return sig, txErr
	}
	return sig, err
}
