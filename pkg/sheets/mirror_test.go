package sheets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somedsale/quotelist/pkg/logger"
	"github.com/somedsale/quotelist/pkg/source"
)

// fakeSheet is an in-memory grid with the same row semantics as the API:
// cleared rows stay as blanks and Append writes after the last contiguous row.
type fakeSheet struct {
	tabs  []Tab
	grid  [][]string
	calls []string
	fail  map[string]error
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{tabs: []Tab{{ID: 0, Title: "Contacts"}, {ID: 7, Title: "Notes"}}}
}

func (f *fakeSheet) hit(name string) error {
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeSheet) FirstSheet(ctx context.Context) (Tab, error) {
	if err := f.hit("FirstSheet"); err != nil {
		return Tab{}, err
	}
	if len(f.tabs) == 0 {
		return Tab{}, ErrNoSheets
	}
	return f.tabs[0], nil
}

func (f *fakeSheet) SetHeader(ctx context.Context, tab Tab, header []string) error {
	if err := f.hit("SetHeader"); err != nil {
		return err
	}
	if len(f.grid) == 0 {
		f.grid = append(f.grid, nil)
	}
	f.grid[0] = append([]string(nil), header...)
	return nil
}

func (f *fakeSheet) ClearData(ctx context.Context, tab Tab) error {
	if err := f.hit("ClearData"); err != nil {
		return err
	}
	for i := 1; i < len(f.grid); i++ {
		f.grid[i] = nil
	}
	return nil
}

func (f *fakeSheet) Append(ctx context.Context, tab Tab, rows [][]interface{}) error {
	if err := f.hit("Append"); err != nil {
		return err
	}
	at := 1
	for at < len(f.grid) && len(f.grid[at]) > 0 {
		at++
	}
	for _, r := range rows {
		if at < len(f.grid) {
			f.grid[at] = cells(r)
		} else {
			f.grid = append(f.grid, cells(r))
		}
		at++
	}
	return nil
}

func (f *fakeSheet) IDColumn(ctx context.Context, tab Tab) ([]string, error) {
	if err := f.hit("IDColumn"); err != nil {
		return nil, err
	}
	data := f.data()
	ids := make([]string, len(data))
	for i, r := range data {
		if len(r) > 0 {
			ids[i] = r[0]
		}
	}
	return ids, nil
}

func (f *fakeSheet) UpdateRows(ctx context.Context, tab Tab, rows map[int][]interface{}) error {
	if err := f.hit("UpdateRows"); err != nil {
		return err
	}
	for idx, r := range rows {
		if idx+1 >= len(f.grid) {
			return fmt.Errorf("row %d exceeds grid limits", idx+2)
		}
		f.grid[idx+1] = cells(r)
	}
	return nil
}

func (f *fakeSheet) DeleteRows(ctx context.Context, tab Tab, indexes []int) error {
	if err := f.hit("DeleteRows"); err != nil {
		return err
	}
	sorted := append([]int(nil), indexes...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, idx := range sorted {
		f.grid = append(f.grid[:idx+1], f.grid[idx+2:]...)
	}
	return nil
}

// data returns the rows below the header without trailing blanks.
func (f *fakeSheet) data() [][]string {
	out := [][]string{}
	if len(f.grid) <= 1 {
		return out
	}
	rows := f.grid[1:]
	end := len(rows)
	for end > 0 && len(rows[end-1]) == 0 {
		end--
	}
	for _, r := range rows[:end] {
		out = append(out, append([]string(nil), r...))
	}
	return out
}

func cells(r []interface{}) []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func expected(rows []source.Row) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = cells(Values(r))
	}
	return out
}

func genRows() gopter.Gen {
	return gen.SliceOf(gen.Int64Range(1, 500)).Map(func(ids []int64) []source.Row {
		seen := map[int64]bool{}
		var rows []source.Row
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			rows = append(rows, source.Row{
				ID:        id,
				Title:     "Quote",
				Name:      fmt.Sprintf("Customer %d", id),
				Email:     fmt.Sprintf("c%d@example.com", id),
				Phone:     "0900000000",
				CreatedAt: time.Date(2024, 1, 1, 0, 0, int(id), 0, time.UTC),
			})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
		return rows
	})
}

func newTestMirror(t *testing.T, client Client, mode Mode) *Mirror {
	m, err := NewMirror(client, mode, logger.NewNop())
	require.NoError(t, err)
	return m
}

func TestMirrorProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	ctx := context.Background()

	properties.Property("replace leaves exactly the scanned rows in order", prop.ForAll(
		func(before, after []source.Row) bool {
			f := newFakeSheet()
			m := newTestMirror(t, f, ModeReplace)
			if _, err := m.Sync(ctx, before); err != nil {
				return false
			}
			if _, err := m.Sync(ctx, after); err != nil {
				return false
			}
			return assert.ObjectsAreEqual(Header, f.grid[0]) &&
				assert.ObjectsAreEqual(expected(after), f.data())
		},
		genRows(),
		genRows(),
	))

	properties.Property("mirroring unchanged data twice is idempotent", prop.ForAll(
		func(rows []source.Row, mode bool) bool {
			f := newFakeSheet()
			md := ModeReplace
			if mode {
				md = ModeUpsert
			}
			m := newTestMirror(t, f, md)
			if _, err := m.Sync(ctx, rows); err != nil {
				return false
			}
			first := f.data()
			if _, err := m.Sync(ctx, rows); err != nil {
				return false
			}
			return assert.ObjectsAreEqual(first, f.data())
		},
		genRows(),
		gen.Bool(),
	))

	properties.Property("upsert converges to the table's row set", prop.ForAll(
		func(before, after []source.Row) bool {
			f := newFakeSheet()
			m := newTestMirror(t, f, ModeUpsert)
			if _, err := m.Sync(ctx, before); err != nil {
				return false
			}
			if _, err := m.Sync(ctx, after); err != nil {
				return false
			}
			got := f.data()
			sort.Slice(got, func(i, j int) bool { return got[i][0] < got[j][0] })
			want := expected(after)
			sort.Slice(want, func(i, j int) bool { return want[i][0] < want[j][0] })
			return assert.ObjectsAreEqual(want, got)
		},
		genRows(),
		genRows(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestReplaceCallOrder(t *testing.T) {
	f := newFakeSheet()
	m := newTestMirror(t, f, "")

	res, err := m.Sync(context.Background(), []source.Row{{ID: 1}, {ID: 2}})
	require.NoError(t, err)
	assert.Equal(t, Result{Rows: 2, Appended: 2}, res)
	assert.Equal(t, []string{"FirstSheet", "SetHeader", "ClearData", "Append"}, f.calls)
}

func TestUpsertKeepsPositionsAndCleansUp(t *testing.T) {
	f := newFakeSheet()
	f.grid = [][]string{
		Header,
		{"3", "old"},
		{"", "user note"},
		{"1", "old"},
		{"9", "deleted upstream"},
		{"3", "duplicate"},
	}
	m := newTestMirror(t, f, ModeUpsert)
	rows := []source.Row{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}}

	res, err := m.Sync(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, Result{Rows: 3, Updated: 2, Appended: 1, Deleted: 3}, res)

	assert.Equal(t, [][]string{
		cells(Values(rows[2])),
		cells(Values(rows[0])),
		cells(Values(rows[1])),
	}, f.data())
}

func TestUpsertDeletesTrailingRowWithBlankID(t *testing.T) {
	f := newFakeSheet()
	f.grid = [][]string{
		Header,
		{"1", "old"},
		{"", "Báo giá", "Nguyễn A"},
	}
	m := newTestMirror(t, f, ModeUpsert)
	rows := []source.Row{{ID: 1, Name: "A"}}

	res, err := m.Sync(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, expected(rows), f.data())
}

func TestValuesMapping(t *testing.T) {
	created := time.Date(2024, 5, 17, 8, 4, 5, 0, time.UTC)
	row := source.Row{ID: 42, Title: "Báo giá", Name: "Trần B", Email: "b@example.com", Phone: "0912", CreatedAt: created}

	assert.Equal(t, []interface{}{int64(42), "Báo giá", "Trần B", "b@example.com", "0912", "2024-05-17 08:04:05"}, Values(row))
	assert.Equal(t, "", Values(source.Row{ID: 1})[5], "zero timestamps stay blank")
}

func TestSyncPropagatesFailures(t *testing.T) {
	authErr := errors.New("oauth2: token expired")
	for _, step := range []string{"FirstSheet", "SetHeader", "ClearData", "Append"} {
		t.Run(step, func(t *testing.T) {
			f := newFakeSheet()
			f.fail = map[string]error{step: authErr}
			m := newTestMirror(t, f, ModeReplace)

			_, err := m.Sync(context.Background(), []source.Row{{ID: 1}})
			assert.ErrorIs(t, err, authErr)
		})
	}

	f := newFakeSheet()
	f.tabs = nil
	_, err := newTestMirror(t, f, ModeReplace).Sync(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSheets)
}

func TestNewMirrorRejectsUnknownMode(t *testing.T) {
	_, err := NewMirror(newFakeSheet(), "merge", logger.NewNop())
	assert.Error(t, err)
}
