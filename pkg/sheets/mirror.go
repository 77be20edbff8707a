// Package sheets mirrors the contact table into the first tab of a Google
// spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/somedsale/quotelist/pkg/logger"
	"github.com/somedsale/quotelist/pkg/source"
)

// Header is the fixed first row of the mirrored sheet.
var Header = []string{"ID", "Title", "Name", "Email", "Phone", "Created At"}

// TimeLayout formats the Created At column.
const TimeLayout = "2006-01-02 15:04:05"

// Mode selects how a mirror cycle rewrites the sheet.
type Mode string

const (
	// ModeReplace clears every data row and writes the full row set.
	ModeReplace Mode = "replace"
	// ModeUpsert updates rows in place by ID, appends new IDs and deletes
	// rows whose ID left the table.
	ModeUpsert Mode = "upsert"
)

// Result summarizes one mirror cycle.
type Result struct {
	Rows     int
	Updated  int
	Appended int
	Deleted  int
}

// Mirror keeps the sheet equal to the source table.
type Mirror struct {
	client Client
	mode   Mode
	logger *logger.Logger
}

// NewMirror creates a Mirror. An empty mode means ModeReplace.
func NewMirror(client Client, mode Mode, l *logger.Logger) (*Mirror, error) {
	switch mode {
	case "":
		mode = ModeReplace
	case ModeReplace, ModeUpsert:
	default:
		return nil, fmt.Errorf("unknown mirror mode %q", mode)
	}
	return &Mirror{client: client, mode: mode, logger: l}, nil
}

// Values maps a row to the sheet columns in Header order.
func Values(r source.Row) []interface{} {
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.Format(TimeLayout)
	}
	return []interface{}{r.ID, r.Title, r.Name, r.Email, r.Phone, created}
}

// Sync rewrites the first sheet so its data rows match rows.
func (m *Mirror) Sync(ctx context.Context, rows []source.Row) (Result, error) {
	tab, err := m.client.FirstSheet(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := m.client.SetHeader(ctx, tab, Header); err != nil {
		return Result{}, fmt.Errorf("failed to set header on %q: %w", tab.Title, err)
	}

	var res Result
	if m.mode == ModeUpsert {
		res, err = m.upsert(ctx, tab, rows)
	} else {
		res, err = m.replace(ctx, tab, rows)
	}
	if err != nil {
		return Result{}, err
	}

	m.logger.Debug("sheet mirrored",
		zap.String("sheet", tab.Title),
		zap.String("mode", string(m.mode)),
		zap.Int("rows", res.Rows),
		zap.Int("updated", res.Updated),
		zap.Int("appended", res.Appended),
		zap.Int("deleted", res.Deleted))
	return res, nil
}

func (m *Mirror) replace(ctx context.Context, tab Tab, rows []source.Row) (Result, error) {
	if err := m.client.ClearData(ctx, tab); err != nil {
		return Result{}, fmt.Errorf("failed to clear %q: %w", tab.Title, err)
	}
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = Values(r)
	}
	if err := m.client.Append(ctx, tab, values); err != nil {
		return Result{}, fmt.Errorf("failed to write rows to %q: %w", tab.Title, err)
	}
	return Result{Rows: len(rows), Appended: len(rows)}, nil
}

func (m *Mirror) upsert(ctx context.Context, tab Tab, rows []source.Row) (Result, error) {
	existing, err := m.client.IDColumn(ctx, tab)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read ids from %q: %w", tab.Title, err)
	}

	plan := planUpsert(existing, rows)

	if err := m.client.DeleteRows(ctx, tab, plan.deletes); err != nil {
		return Result{}, fmt.Errorf("failed to delete rows from %q: %w", tab.Title, err)
	}
	if err := m.client.UpdateRows(ctx, tab, plan.updates); err != nil {
		return Result{}, fmt.Errorf("failed to update rows in %q: %w", tab.Title, err)
	}
	if err := m.client.Append(ctx, tab, plan.appends); err != nil {
		return Result{}, fmt.Errorf("failed to append rows to %q: %w", tab.Title, err)
	}

	return Result{
		Rows:     len(rows),
		Updated:  len(plan.updates),
		Appended: len(plan.appends),
		Deleted:  len(plan.deletes),
	}, nil
}

type upsertPlan struct {
	deletes []int                 // indexes into the current sheet
	updates map[int][]interface{} // indexes after deletes are applied
	appends [][]interface{}
}

// planUpsert diffs the sheet's ID column against rows. Blank, duplicate and
// vanished IDs are deleted; the survivors keep their relative order.
func planUpsert(existing []string, rows []source.Row) upsertPlan {
	wanted := make(map[string]source.Row, len(rows))
	for _, r := range rows {
		wanted[strconv.FormatInt(r.ID, 10)] = r
	}

	plan := upsertPlan{updates: map[int][]interface{}{}}
	kept := map[string]bool{}
	next := 0
	for idx, id := range existing {
		r, ok := wanted[id]
		if !ok || kept[id] {
			plan.deletes = append(plan.deletes, idx)
			continue
		}
		kept[id] = true
		plan.updates[next] = Values(r)
		next++
	}

	for _, r := range rows {
		key := strconv.FormatInt(r.ID, 10)
		if kept[key] {
			continue
		}
		kept[key] = true
		plan.appends = append(plan.appends, Values(r))
	}
	return plan
}
