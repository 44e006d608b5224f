// vault operates per-owner custodial vaults against a local ledger or a
// remote RPC node.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/code-payments/code-vault/pkg/code/vault"
	"github.com/code-payments/code-vault/pkg/metrics"
)

var (
	version   string
	gitCommit string
	release   = "dev"
)

var (
	configFlag = cli.StringFlag{
		Name:   "config",
		Usage:  "configuration file path",
		EnvVar: "VAULT_CONFIG",
	}
	ledgerFlag = cli.StringFlag{
		Name:  "ledger",
		Usage: "ledger to run against (leveldb|postgres|memory|rpc)",
	}
	ledgerPathFlag = cli.StringFlag{
		Name:  "ledger-path",
		Usage: "directory of the local ledger",
	}
	rpcFlag = cli.StringFlag{
		Name:  "rpc",
		Usage: "RPC endpoint, implies --ledger=rpc",
	}
	keypairFlag = cli.StringFlag{
		Name:  "keypair",
		Usage: "owner key file",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "log level (trace|debug|info|warn|error)",
	}
)

// environment is everything a command needs, built once in Before.
type environment struct {
	ctx    context.Context
	config *Config
	ledger *ledger
	client *vault.Client
	nr     *newrelic.Application
}

func newApp() *cli.App {
	env := &environment{}

	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-commit%s", release, version, gitCommit)
	app.Name = "vault"
	app.Usage = "custodial vault client"
	app.Flags = []cli.Flag{
		configFlag,
		ledgerFlag,
		ledgerPathFlag,
		rpcFlag,
		keypairFlag,
		logLevelFlag,
	}
	app.Before = env.setup
	app.After = env.teardown
	app.Commands = commands(env)
	return app
}

func (e *environment) setup(c *cli.Context) error {
	config, err := loadConfig(c.GlobalString(configFlag.Name))
	if err != nil {
		return err
	}

	if c.GlobalIsSet(ledgerFlag.Name) {
		config.Ledger = c.GlobalString(ledgerFlag.Name)
	}
	if c.GlobalIsSet(ledgerPathFlag.Name) {
		config.LedgerPath = c.GlobalString(ledgerPathFlag.Name)
	}
	if c.GlobalIsSet(rpcFlag.Name) {
		config.Ledger = ledgerRPC
		config.RPCEndpoint = c.GlobalString(rpcFlag.Name)
	}
	if c.GlobalIsSet(keypairFlag.Name) {
		config.Keypair = c.GlobalString(keypairFlag.Name)
	}
	if c.GlobalIsSet(logLevelFlag.Name) {
		config.LogLevel = c.GlobalString(logLevelFlag.Name)
	}
	e.config = config

	e.ctx = context.Background()
	if len(config.NewRelicLicenseKey) > 0 {
		e.nr, err = metrics.NewApplication(config.AppName, config.NewRelicLicenseKey)
		if err != nil {
			return err
		}
		e.ctx = metrics.NewContext(e.ctx, e.nr)
	}
	configureLogger(config, e.nr)
	return nil
}

func (e *environment) teardown(_ *cli.Context) error {
	var err error
	if e.ledger != nil {
		err = e.ledger.Close()
	}
	if e.nr != nil {
		e.nr.Shutdown(5 * time.Second)
	}
	return err
}

// connect opens the ledger on first use, so commands that don't touch it
// (keygen) never create one.
func (e *environment) connect() error {
	if e.ledger != nil {
		return nil
	}

	l, err := openLedger(e.ctx, e.config)
	if err != nil {
		return errors.Wrap(err, "error opening ledger")
	}
	e.ledger = l
	e.client = vault.NewClient(l.client, vault.WithEnvConfigs())
	return nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
