// Package source reads contact rows from the relational table being mirrored.
//
// Readers hold no connection between calls: each All, After or MaxID opens
// one connection, runs one query and closes the connection, error or not.
package source

import (
	"fmt"
	"time"
)

// Options selects and configures a Reader. DSN, when set, is used as is.
type Options struct {
	Driver         string
	DSN            string
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	Table          string
	ConnectTimeout time.Duration
}

// ConnString returns opts.DSN, or a connection string built from the
// discrete fields for opts.Driver.
func ConnString(opts Options) string {
	if opts.DSN != "" {
		return opts.DSN
	}
	switch opts.Driver {
	case "mysql":
		return MySQLDSN(opts.Host, opts.Port, opts.User, opts.Password, opts.Database, opts.ConnectTimeout)
	case "postgres":
		return PostgresURI(opts.Host, opts.Port, opts.User, opts.Password, opts.Database)
	default:
		return opts.Database
	}
}

// New returns the Reader for opts.Driver.
func New(opts Options) (Reader, error) {
	switch opts.Driver {
	case "mysql", "sqlite":
		return NewSQLReader(opts.Driver, ConnString(opts), opts.Table)
	case "postgres":
		return NewPGReader(ConnString(opts), opts.Table, opts.ConnectTimeout)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}
