package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/code-payments/code-vault/pkg/code/common"
	"github.com/code-payments/code-vault/pkg/code/vault"
	"github.com/code-payments/code-vault/pkg/metrics"
	"github.com/code-payments/code-vault/pkg/retry"
	"github.com/code-payments/code-vault/pkg/retry/backoff"
	"github.com/code-payments/code-vault/pkg/solana"
)

const (
	demoAirdrop  = 5 * lamportsPerSOL
	demoDeposit  = 2 * lamportsPerSOL
	demoWithdraw = lamportsPerSOL / 4

	confirmationPollInterval = 500 * time.Millisecond
	confirmationMaxAttempts  = 120
)

var errNotFinalized = errors.New("transaction not finalized")

func commands(env *environment) []cli.Command {
	return []cli.Command{
		{
			Name:  "keygen",
			Usage: "create a new owner key file",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "outfile", Usage: "key file path, defaults to --keypair"},
			},
			Action: env.action("keygen", env.keygen),
		},
		{
			Name:      "airdrop",
			Usage:     "request SOL from the ledger faucet",
			ArgsUsage: "<amount>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "to", Usage: "recipient address, defaults to the owner"},
			},
			Action: env.action("airdrop", env.airdrop),
		},
		{
			Name:   "init",
			Usage:  "create the owner's vault",
			Action: env.action("init", env.initialize),
		},
		{
			Name:      "deposit",
			Usage:     "move SOL from the owner into the vault",
			ArgsUsage: "<amount>",
			Action:    env.action("deposit", env.deposit),
		},
		{
			Name:      "withdraw",
			Usage:     "move SOL from the vault back to the owner",
			ArgsUsage: "<amount|all>",
			Action:    env.action("withdraw", env.withdraw),
		},
		{
			Name:   "close",
			Usage:  "empty the vault into the owner and delete it",
			Action: env.action("close", env.close),
		},
		{
			Name:  "show",
			Usage: "print the owner's vault",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "owner", Usage: "owner address, defaults to the keypair's"},
			},
			Action: env.action("show", env.show),
		},
		{
			Name:   "demo",
			Usage:  "run a full vault lifecycle for a new owner",
			Action: env.action("demo", env.demo),
		},
	}
}

// action traces a command as a New Relic transaction.
func (e *environment) action(name string, fn func(context.Context, *cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		ctx, end := metrics.StartTransaction(e.ctx, "vault "+name)
		defer end()

		return fn(ctx, c)
	}
}

func (e *environment) keygen(_ context.Context, c *cli.Context) error {
	path := c.String("outfile")
	if len(path) == 0 {
		path = e.config.Keypair
	}

	key, err := common.NewRandomKey()
	if err != nil {
		return err
	}
	if err := key.WriteToFile(path); err != nil {
		return err
	}

	owner, err := common.NewAccountFromPrivateKey(key)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "wrote %s\nowner: %s\n", path, owner)
	return nil
}

func (e *environment) airdrop(ctx context.Context, c *cli.Context) error {
	amount, err := parseSOL(c.Args().First())
	if err != nil {
		return err
	}

	var to *common.Account
	if address := c.String("to"); len(address) > 0 {
		to, err = common.NewAccountFromPublicKeyString(address)
	} else {
		to, err = e.owner()
	}
	if err != nil {
		return err
	}

	if err := e.connect(); err != nil {
		return err
	}

	sig, err := e.ledger.client.RequestAirdrop(to.PublicKey().ToBytes(), amount, solana.CommitmentFinalized)
	if err != nil {
		return errors.Wrap(err, "airdrop failed")
	}
	if err := e.waitForSignature(ctx, sig); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "airdropped %s to %s\nsignature: %s\n", formatSOL(amount), to, sig)
	return nil
}

func (e *environment) initialize(ctx context.Context, c *cli.Context) error {
	return e.submit(ctx, c.App.Writer, "initialized", func(owner *common.Account) (solana.Signature, error) {
		return e.client.Initialize(ctx, owner)
	})
}

func (e *environment) deposit(ctx context.Context, c *cli.Context) error {
	amount, err := parseSOL(c.Args().First())
	if err != nil {
		return err
	}

	return e.submit(ctx, c.App.Writer, "deposited "+formatSOL(amount), func(owner *common.Account) (solana.Signature, error) {
		return e.client.Deposit(ctx, owner, amount)
	})
}

func (e *environment) withdraw(ctx context.Context, c *cli.Context) error {
	arg := c.Args().First()

	var amount uint64
	if arg != "all" {
		var err error
		if amount, err = parseSOL(arg); err != nil {
			return err
		}
	}

	return e.submit(ctx, c.App.Writer, "withdrew", func(owner *common.Account) (solana.Signature, error) {
		if arg == "all" {
			var err error
			if amount, err = e.client.GetWithdrawableBalance(ctx, owner); err != nil {
				return solana.Signature{}, err
			}
		}
		return e.client.Withdraw(ctx, owner, amount)
	})
}

func (e *environment) close(ctx context.Context, c *cli.Context) error {
	return e.submit(ctx, c.App.Writer, "closed", func(owner *common.Account) (solana.Signature, error) {
		return e.client.Close(ctx, owner)
	})
}

func (e *environment) show(ctx context.Context, c *cli.Context) error {
	var owner *common.Account
	var err error
	if address := c.String("owner"); len(address) > 0 {
		owner, err = common.NewAccountFromPublicKeyString(address)
	} else {
		owner, err = e.owner()
	}
	if err != nil {
		return err
	}

	if err := e.connect(); err != nil {
		return err
	}
	return e.printVault(ctx, c.App.Writer, owner)
}

// demo walks a new owner through the full lifecycle: airdrop, initialize,
// deposit 2 SOL, withdraw 0.25 SOL, close, and confirm both accounts are gone.
func (e *environment) demo(ctx context.Context, c *cli.Context) error {
	w := c.App.Writer

	if err := e.connect(); err != nil {
		return err
	}

	owner, err := common.NewRandomAccount()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "owner: %s\n", owner)

	sig, err := e.ledger.client.RequestAirdrop(owner.PublicKey().ToBytes(), demoAirdrop, solana.CommitmentFinalized)
	if err != nil {
		return errors.Wrap(err, "airdrop failed")
	}
	if err := e.waitForSignature(ctx, sig); err != nil {
		return err
	}
	fmt.Fprintf(w, "airdropped %s\n", formatSOL(demoAirdrop))

	steps := []struct {
		name string
		run  func() (solana.Signature, error)
	}{
		{"initialize", func() (solana.Signature, error) { return e.client.Initialize(ctx, owner) }},
		{"deposit " + formatSOL(demoDeposit), func() (solana.Signature, error) { return e.client.Deposit(ctx, owner, demoDeposit) }},
		{"withdraw " + formatSOL(demoWithdraw), func() (solana.Signature, error) { return e.client.Withdraw(ctx, owner, demoWithdraw) }},
	}
	for _, step := range steps {
		sig, err := step.run()
		if err != nil {
			return errors.Wrapf(err, "%s failed", step.name)
		}
		fmt.Fprintf(w, "%s: %s\n", step.name, sig)
	}

	if err := e.printVault(ctx, w, owner); err != nil {
		return err
	}

	sig, err = e.client.Close(ctx, owner)
	if err != nil {
		return errors.Wrap(err, "close failed")
	}
	fmt.Fprintf(w, "close: %s\n", sig)

	if _, err := e.client.GetState(ctx, owner); err != vault.ErrVaultNotFound {
		return errors.Errorf("state account still exists after close: %v", err)
	}
	if _, err := e.client.GetVaultBalance(ctx, owner); err != vault.ErrVaultNotFound {
		return errors.Errorf("vault account still exists after close: %v", err)
	}
	fmt.Fprintln(w, "state and vault accounts no longer exist")

	balance, err := e.ledger.client.GetBalance(owner.PublicKey().ToBytes())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "owner balance: %s\n", formatBalance(balance))
	return nil
}

func (e *environment) owner() (*common.Account, error) {
	owner, err := common.NewAccountFromKeyFile(e.config.Keypair)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading owner from %s (run keygen first)", e.config.Keypair)
	}
	return owner, nil
}

func (e *environment) submit(ctx context.Context, w io.Writer, verb string, fn func(*common.Account) (solana.Signature, error)) error {
	owner, err := e.owner()
	if err != nil {
		return err
	}
	if err := e.connect(); err != nil {
		return err
	}

	sig, err := fn(owner)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s\nsignature: %s\n", verb, sig)
	return e.printVault(ctx, w, owner)
}

func (e *environment) printVault(ctx context.Context, w io.Writer, owner *common.Account) error {
	accounts, err := owner.GetVaultAccounts()
	if err != nil {
		return err
	}

	ownerBalance, err := e.ledger.client.GetBalance(owner.PublicKey().ToBytes())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "owner:   %s\n  balance: %s\n", owner, formatBalance(ownerBalance))

	state, err := e.client.GetState(ctx, owner)
	if err == vault.ErrVaultNotFound {
		fmt.Fprintf(w, "state:   %s (not initialized)\n", accounts.State)
		return nil
	} else if err != nil {
		return err
	}
	fmt.Fprintf(w, "state:   %s\n  bumps: state=%d vault=%d\n", accounts.State, state.StateBump, state.VaultBump)

	balance, err := e.client.GetVaultBalance(ctx, owner)
	if err != nil {
		return err
	}
	withdrawable, err := e.client.GetWithdrawableBalance(ctx, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "vault:   %s\n  balance: %s\n  withdrawable: %s\n", accounts.Vault, formatBalance(balance), formatBalance(withdrawable))
	return nil
}

// waitForSignature polls until sig is finalized. The local ledger finalizes
// synchronously, so this only waits against an RPC node.
func (e *environment) waitForSignature(ctx context.Context, sig solana.Signature) error {
	_, err := retry.RetryWithContext(
		ctx,
		func(ctx context.Context) error {
			status, err := e.ledger.client.GetSignatureStatus(sig, solana.CommitmentFinalized)
			if err != nil {
				return err
			}
			if status.ErrorResult != nil {
				return status.ErrorResult
			}
			if !status.Finalized() {
				return errNotFinalized
			}
			return nil
		},
		retry.RetriableErrors(errNotFinalized, solana.ErrSignatureNotFound),
		retry.Limit(confirmationMaxAttempts),
		retry.Backoff(backoff.Constant(confirmationPollInterval), confirmationPollInterval),
	)
	return errors.Wrapf(err, "error confirming %s", sig)
}
