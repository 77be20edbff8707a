package source

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Row is one contact record of the source table.
// JSON tags follow the table's column names.
type Row struct {
	ID        int64     `json:"id"`
	Title     string    `json:"tieude"`
	Name      string    `json:"ten"`
	Email     string    `json:"email"`
	Phone     string    `json:"dienthoai"`
	CreatedAt time.Time `json:"ngaytao"`
}

// Reader reads contact rows. Every call opens its own connection and
// closes it before returning.
type Reader interface {
	// All returns every row of the table ordered by id.
	All(ctx context.Context) ([]Row, error)

	// After returns the rows with id strictly greater than id, ordered by id.
	After(ctx context.Context, id int64) ([]Row, error)

	// MaxID returns MAX(id) of the given table, or 0 when it is empty.
	MaxID(ctx context.Context, table string) (int64, error)
}

// ErrInvalidTable is returned for table names that are not plain SQL identifiers.
var ErrInvalidTable = errors.New("invalid table name")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidTable reports whether name is a plain or schema qualified identifier.
func ValidTable(name string) bool {
	return identRe.MatchString(name)
}

// MaxRowID returns the largest id in rows, or 0 for an empty slice.
func MaxRowID(rows []Row) int64 {
	var max int64
	for _, r := range rows {
		if r.ID > max {
			max = r.ID
		}
	}
	return max
}

// columns is the select list shared by every driver. Text columns are
// coalesced so NULLs read as empty strings.
const columns = "id, COALESCE(tieude, ''), COALESCE(ten, ''), COALESCE(email, ''), COALESCE(dienthoai, ''), ngaytao"
