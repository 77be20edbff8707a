package source

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// PGReader reads rows from PostgreSQL. Each call dials a single pgx
// connection and closes it before returning.
type PGReader struct {
	uri            string
	table          string
	connectTimeout time.Duration
}

// NewPGReader creates a PGReader. The URI is validated eagerly so
// configuration mistakes surface at startup.
func NewPGReader(uri, table string, connectTimeout time.Duration) (*PGReader, error) {
	if _, err := pgx.ParseConfig(uri); err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if !ValidTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &PGReader{uri: uri, table: table, connectTimeout: connectTimeout}, nil
}

// PostgresURI builds a postgres:// URI from discrete settings.
func PostgresURI(host string, port int, user, password, database string) string {
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + database,
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	return u.String()
}

func (r *PGReader) connect(ctx context.Context) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(r.uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if r.connectTimeout > 0 {
		cfg.ConnectTimeout = r.connectTimeout
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return conn, nil
}

// All implements Reader.
func (r *PGReader) All(ctx context.Context) ([]Row, error) {
	rows, err := r.query(ctx, pgSelect(r.table, false))
	if err != nil {
		return nil, fmt.Errorf("full scan of %s: %w", r.table, err)
	}
	return rows, nil
}

// After implements Reader.
func (r *PGReader) After(ctx context.Context, id int64) ([]Row, error) {
	rows, err := r.query(ctx, pgSelect(r.table, true), id)
	if err != nil {
		return nil, fmt.Errorf("delta scan of %s after %d: %w", r.table, id, err)
	}
	return rows, nil
}

// MaxID implements Reader.
func (r *PGReader) MaxID(ctx context.Context, table string) (int64, error) {
	if !ValidTable(table) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	conn, err := r.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close(context.Background())

	var max *int64
	if err := conn.QueryRow(ctx, "SELECT MAX(id) FROM "+pgIdent(table)).Scan(&max); err != nil {
		return 0, fmt.Errorf("max id of %s: %w", table, err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *PGReader) query(ctx context.Context, q string, args ...any) ([]Row, error) {
	conn, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	rs, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rs, func(row pgx.CollectableRow) (Row, error) {
		var (
			out     Row
			created *time.Time
		)
		if err := row.Scan(&out.ID, &out.Title, &out.Name, &out.Email, &out.Phone, &created); err != nil {
			return Row{}, err
		}
		if created != nil {
			out.CreatedAt = *created
		}
		return out, nil
	})
}

func pgSelect(table string, delta bool) string {
	q := "SELECT " + columns + " FROM " + pgIdent(table)
	if delta {
		q += " WHERE id > $1"
	}
	return q + " ORDER BY id"
}

func pgIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
