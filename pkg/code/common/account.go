package common

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/vault"
)

// Account is an address, optionally paired with the private key that can sign
// for it.
type Account struct {
	publicKey  *Key
	privateKey *Key
}

// VaultAccounts are the program derived accounts that hold an owner's
// deposits.
type VaultAccounts struct {
	VaultOwner *Account

	State     *Account
	StateBump uint8

	Vault     *Account
	VaultBump uint8
}

func newAccount(publicKey, privateKey *Key) (*Account, error) {
	account := &Account{publicKey: publicKey, privateKey: privateKey}
	if err := account.Validate(); err != nil {
		return nil, err
	}
	return account, nil
}

func NewAccountFromPublicKey(publicKey *Key) (*Account, error) {
	return newAccount(publicKey, nil)
}

func NewAccountFromPublicKeyBytes(publicKey []byte) (*Account, error) {
	return accountFrom(NewKeyFromBytes(publicKey))(NewAccountFromPublicKey)
}

func NewAccountFromPublicKeyString(publicKey string) (*Account, error) {
	return accountFrom(NewKeyFromString(publicKey))(NewAccountFromPublicKey)
}

// NewAccountFromPrivateKey derives the public half from privateKey.
func NewAccountFromPrivateKey(privateKey *Key) (*Account, error) {
	if privateKey == nil || privateKey.IsPublic() {
		return nil, errors.New("private key isn't private")
	}

	publicKey, err := NewKeyFromBytes(derivePublicKey(privateKey))
	if err != nil {
		return nil, errors.Wrap(err, "error creating public key from private key")
	}
	return newAccount(publicKey, privateKey)
}

func NewAccountFromPrivateKeyBytes(privateKey []byte) (*Account, error) {
	return accountFrom(NewKeyFromBytes(privateKey))(NewAccountFromPrivateKey)
}

func NewAccountFromPrivateKeyString(privateKey string) (*Account, error) {
	return accountFrom(NewKeyFromString(privateKey))(NewAccountFromPrivateKey)
}

// NewAccountFromKeyFile loads a signing account from a solana-keygen file.
func NewAccountFromKeyFile(path string) (*Account, error) {
	return accountFrom(NewKeyFromFile(path))(NewAccountFromPrivateKey)
}

func NewRandomAccount() (*Account, error) {
	account, err := accountFrom(NewRandomKey())(NewAccountFromPrivateKey)
	return account, errors.Wrap(err, "invalid account")
}

// accountFrom chains a key parsing result into an account constructor.
func accountFrom(key *Key, err error) func(func(*Key) (*Account, error)) (*Account, error) {
	return func(construct func(*Key) (*Account, error)) (*Account, error) {
		if err != nil {
			return nil, err
		}
		return construct(key)
	}
}

func derivePublicKey(privateKey *Key) ed25519.PublicKey {
	return ed25519.PrivateKey(privateKey.ToBytes()).Public().(ed25519.PublicKey)
}

func (a *Account) PublicKey() *Key {
	return a.publicKey
}

func (a *Account) PrivateKey() *Key {
	return a.privateKey
}

func (a *Account) Sign(message []byte) ([]byte, error) {
	if a.privateKey == nil {
		return nil, errors.New("private key not available")
	}
	return ed25519.Sign(a.privateKey.ToBytes(), message), nil
}

func (a *Account) ToVault() (*Account, error) {
	accounts, err := a.GetVaultAccounts()
	if err != nil {
		return nil, err
	}
	return accounts.Vault, nil
}

// GetVaultAccounts derives the state and vault addresses owned by a.
func (a *Account) GetVaultAccounts() (*VaultAccounts, error) {
	if err := a.Validate(); err != nil {
		return nil, errors.Wrap(err, "error validating owner account")
	}

	stateAddress, stateBump, err := vault.GetStateAddress(&vault.GetStateAddressArgs{
		Owner: a.PublicKey().ToBytes(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error getting state address")
	}
	vaultAddress, vaultBump, err := vault.GetVaultAddress(&vault.GetVaultAddressArgs{
		State: stateAddress,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error getting vault address")
	}

	accounts := &VaultAccounts{
		VaultOwner: a,
		StateBump:  stateBump,
		VaultBump:  vaultBump,
	}
	if accounts.State, err = NewAccountFromPublicKeyBytes(stateAddress); err != nil {
		return nil, errors.Wrap(err, "invalid state address")
	}
	if accounts.Vault, err = NewAccountFromPublicKeyBytes(vaultAddress); err != nil {
		return nil, errors.Wrap(err, "invalid vault address")
	}
	return accounts, nil
}

func (a *Account) IsOnCurve() bool {
	return solana.IsOnCurve(a.PublicKey().ToBytes())
}

// Validate checks both keys and, when a private key is present, that it signs
// for the public key.
func (a *Account) Validate() error {
	if a == nil {
		return errors.New("account is nil")
	}

	switch err := a.publicKey.Validate(); {
	case err != nil:
		return errors.Wrap(err, "error validating public key")
	case !a.publicKey.IsPublic():
		return errors.New("public key isn't public")
	case a.privateKey == nil:
		return nil
	}

	switch err := a.privateKey.Validate(); {
	case err != nil:
		return errors.Wrap(err, "error validating private key")
	case a.privateKey.IsPublic():
		return errors.New("private key isn't private")
	case !bytes.Equal(a.publicKey.ToBytes(), derivePublicKey(a.privateKey)):
		return errors.New("private key doesn't map to public key")
	}
	return nil
}

func (a *Account) String() string {
	return a.PublicKey().ToBase58()
}

// instructionAccounts is the account list shared by every vault instruction.
func (a *VaultAccounts) instructionAccounts() vault.InitializeInstructionAccounts {
	return vault.InitializeInstructionAccounts{
		User:  a.VaultOwner.PublicKey().ToBytes(),
		State: a.State.PublicKey().ToBytes(),
		Vault: a.Vault.PublicKey().ToBytes(),
	}
}

// GetInitializeInstruction creates the state and vault accounts.
func (a *VaultAccounts) GetInitializeInstruction() solana.Instruction {
	accounts := a.instructionAccounts()
	return vault.NewInitializeInstruction(&accounts, &vault.InitializeInstructionArgs{})
}

// GetDepositInstruction moves amount lamports from the owner into the vault.
func (a *VaultAccounts) GetDepositInstruction(amount uint64) solana.Instruction {
	accounts := vault.DepositInstructionAccounts(a.instructionAccounts())
	return vault.NewDepositInstruction(&accounts, &vault.DepositInstructionArgs{Amount: amount})
}

// GetWithdrawInstruction moves amount lamports from the vault back to the owner.
func (a *VaultAccounts) GetWithdrawInstruction(amount uint64) solana.Instruction {
	accounts := vault.WithdrawInstructionAccounts(a.instructionAccounts())
	return vault.NewWithdrawInstruction(&accounts, &vault.WithdrawInstructionArgs{Amount: amount})
}

// GetCloseInstruction empties the vault into the owner and deallocates both
// accounts.
func (a *VaultAccounts) GetCloseInstruction() solana.Instruction {
	accounts := vault.CloseInstructionAccounts(a.instructionAccounts())
	return vault.NewCloseInstruction(&accounts, &vault.CloseInstructionArgs{})
}
