package test

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v4/stdlib" //nolint:revive

	pg "github.com/code-payments/code-vault/pkg/database/postgres"
	"github.com/code-payments/code-vault/pkg/retry"
	"github.com/code-payments/code-vault/pkg/retry/backoff"
)

const (
	image        = "postgres"
	imageTag     = "14-alpine"
	containerTTL = 2 * time.Minute

	readyPollInterval = 500 * time.Millisecond
	readyPollAttempts = 50
)

// testConfig describes the throwaway database created inside the container.
// Host and Port are filled in once docker has mapped the port.
var testConfig = pg.Config{
	User:     "vaulttest",
	Password: "vaultpassword",
	DbName:   "ledgerdb",
}

// StartPostgresDB runs a disposable postgres container and returns a client
// connected to it once it accepts connections. The container removes itself
// after containerTTL even if closeFunc is never called.
func StartPostgresDB(pool *dockertest.Pool) (db *sql.DB, closeFunc func(), err error) {
	closeFunc = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        imageTag,
		Env: []string{
			"listen_addresses = '*'",
			"POSTGRES_USER=" + testConfig.User,
			"POSTGRES_PASSWORD=" + testConfig.Password,
			"POSTGRES_DB=" + testConfig.DbName,
		},
	}, func(host *docker.HostConfig) {
		host.AutoRemove = true
		host.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, closeFunc, errors.Wrap(err, "failed to start postgres container")
	}

	// Expire never fails for a running container
	_ = resource.Expire(uint(containerTTL.Seconds()))

	closeFunc = func() {
		if err := pool.Purge(resource); err != nil {
			logrus.StandardLogger().WithError(err).Warn("failed to purge postgres container")
		}
	}

	config := testConfig
	config.Host = "localhost"
	if _, err := fmt.Sscanf(resource.GetPort("5432/tcp"), "%d", &config.Port); err != nil {
		return nil, closeFunc, errors.Wrap(err, "invalid mapped postgres port")
	}

	_, err = retry.Retry(
		func() error {
			if db, err = sql.Open("pgx", config.DSN()); err != nil {
				return err
			}
			return db.Ping()
		},
		retry.Limit(readyPollAttempts),
		retry.Backoff(backoff.Constant(readyPollInterval), readyPollInterval),
	)
	if err != nil {
		return nil, closeFunc, errors.Wrap(err, "timed out waiting for postgres container to become available")
	}
	return db, closeFunc, nil
}
