package pg

import (
	"database/sql"
	"fmt"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

type Config struct {
	User               string `mapstructure:"user"`
	Host               string `mapstructure:"host"`
	Password           string `mapstructure:"password"`
	Port               int    `mapstructure:"port"`
	DbName             string `mapstructure:"db_name"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxOpenConnections int    `mapstructure:"max_open_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

// DSN returns the connection string for the config.
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if len(sslMode) == 0 {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DbName, sslMode,
	)
}

// NewWithConfig opens a connection pool using username/password credentials.
func NewWithConfig(config *Config) (*sql.DB, error) {
	// Use the New Relic instrumented "pgx" driver (instead of "postgres")
	db, err := sql.Open("nrpgx", config.DSN())
	if err != nil {
		return nil, err
	}

	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}

	// Check if the connection was successful
	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
