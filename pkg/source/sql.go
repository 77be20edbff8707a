package source

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Opener opens a database handle. It matches sql.Open.
type Opener func(driverName, dataSourceName string) (*sql.DB, error)

// SQLReader reads rows through database/sql. It supports the "mysql" and
// "sqlite" drivers; the handle is capped to a single connection and closed
// after each call, so nothing is pooled between calls.
type SQLReader struct {
	driver string
	dsn    string
	table  string
	open   Opener
}

// NewSQLReader creates a reader for the given driver, DSN and table.
func NewSQLReader(driver, dsn, table string) (*SQLReader, error) {
	if driver != "mysql" && driver != "sqlite" {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if !ValidTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &SQLReader{driver: driver, dsn: dsn, table: table, open: sql.Open}, nil
}

// MySQLDSN builds a go-sql-driver DSN with time parsing enabled.
func MySQLDSN(host string, port int, user, password, database string, timeout time.Duration) string {
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.Timeout = timeout
	return cfg.FormatDSN()
}

// All implements Reader.
func (r *SQLReader) All(ctx context.Context) ([]Row, error) {
	rows, err := r.query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY id", columns, quoteIdent(r.table)))
	if err != nil {
		return nil, fmt.Errorf("full scan of %s: %w", r.table, err)
	}
	return rows, nil
}

// After implements Reader.
func (r *SQLReader) After(ctx context.Context, id int64) ([]Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id > ? ORDER BY id", columns, quoteIdent(r.table))
	rows, err := r.query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("delta scan of %s after %d: %w", r.table, id, err)
	}
	return rows, nil
}

// MaxID implements Reader.
func (r *SQLReader) MaxID(ctx context.Context, table string) (int64, error) {
	if !ValidTable(table) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	db, err := r.connect()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var max sql.NullInt64
	q := fmt.Sprintf("SELECT MAX(id) FROM %s", quoteIdent(table))
	if err := db.QueryRowContext(ctx, q).Scan(&max); err != nil {
		return 0, fmt.Errorf("max id of %s: %w", table, err)
	}
	return max.Int64, nil
}

func (r *SQLReader) connect() (*sql.DB, error) {
	db, err := r.open(r.driver, r.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", r.driver, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)
	return db, nil
}

func (r *SQLReader) query(ctx context.Context, q string, args ...any) ([]Row, error) {
	db, err := r.connect()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rs, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []Row
	for rs.Next() {
		var (
			row     Row
			created sql.NullTime
		)
		if err := rs.Scan(&row.ID, &row.Title, &row.Name, &row.Email, &row.Phone, &created); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row.CreatedAt = created.Time
		out = append(out, row)
	}
	return out, rs.Err()
}

// quoteIdent backtick-quotes each part of a validated identifier. Both MySQL
// and SQLite accept backticks.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "`" + p + "`"
	}
	return strings.Join(parts, ".")
}
