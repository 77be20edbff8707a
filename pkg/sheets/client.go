package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"github.com/somedsale/quotelist/pkg/retry"
)

// ErrNoSheets is returned when the spreadsheet has no tabs.
var ErrNoSheets = errors.New("spreadsheet has no sheets")

// Tab identifies one sheet of the spreadsheet.
type Tab struct {
	ID    int64
	Title string
}

// Client is the subset of the spreadsheet API the mirror needs. Data row
// indexes are zero based and exclude the header row.
type Client interface {
	// FirstSheet loads the spreadsheet metadata and returns its first tab.
	FirstSheet(ctx context.Context) (Tab, error)

	// SetHeader writes the header into the first row.
	SetHeader(ctx context.Context, tab Tab, header []string) error

	// ClearData blanks every row below the header.
	ClearData(ctx context.Context, tab Tab) error

	// Append writes rows after the last row of the table.
	Append(ctx context.Context, tab Tab, rows [][]interface{}) error

	// IDColumn returns the first cell of every data row up to the last row
	// with any content; blank cells read as "".
	IDColumn(ctx context.Context, tab Tab) ([]string, error)

	// UpdateRows overwrites the given data rows in place.
	UpdateRows(ctx context.Context, tab Tab, rows map[int][]interface{}) error

	// DeleteRows removes the given data rows, shifting later rows up.
	DeleteRows(ctx context.Context, tab Tab, indexes []int) error
}

// Auth selects how the client authenticates. A credentials file wins over
// the email/key pair.
type Auth struct {
	ServiceAccountEmail string
	PrivateKey          string
	CredentialsFile     string
}

// GoogleClient implements Client on top of the Sheets v4 API.
type GoogleClient struct {
	svc           *sheetsv4.Service
	spreadsheetID string
	retryOpts     retry.RetryOptions
}

// NewGoogleClient creates a Sheets client authenticated as a service account.
func NewGoogleClient(ctx context.Context, spreadsheetID string, auth Auth, retryOpts retry.RetryOptions) (*GoogleClient, error) {
	var opts []option.ClientOption
	if auth.CredentialsFile != "" {
		opts = append(opts,
			option.WithCredentialsFile(auth.CredentialsFile),
			option.WithScopes(sheetsv4.SpreadsheetsScope),
		)
	} else {
		conf := &jwt.Config{
			Email:      auth.ServiceAccountEmail,
			PrivateKey: []byte(auth.PrivateKey),
			Scopes:     []string{sheetsv4.SpreadsheetsScope},
			TokenURL:   google.JWTTokenURL,
		}
		// The token source outlives ctx, so it gets its own background context.
		opts = append(opts, option.WithHTTPClient(conf.Client(context.Background())))
	}

	svc, err := sheetsv4.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return newGoogleClient(svc, spreadsheetID, retryOpts), nil
}

func newGoogleClient(svc *sheetsv4.Service, spreadsheetID string, retryOpts retry.RetryOptions) *GoogleClient {
	retryOpts.Classifier = Retryable
	return &GoogleClient{svc: svc, spreadsheetID: spreadsheetID, retryOpts: retryOpts}
}

// Retryable reports whether err is a rate limit or server side API error.
func Retryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
}

func (c *GoogleClient) FirstSheet(ctx context.Context) (Tab, error) {
	ss, err := retry.DoValue(ctx, func() (*sheetsv4.Spreadsheet, error) {
		return c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	}, c.retryOpts)
	if err != nil {
		return Tab{}, fmt.Errorf("failed to load spreadsheet %s: %w", c.spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return Tab{}, ErrNoSheets
	}
	p := ss.Sheets[0].Properties
	return Tab{ID: p.SheetId, Title: p.Title}, nil
}

func (c *GoogleClient) SetHeader(ctx context.Context, tab Tab, header []string) error {
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	return retry.Do(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1(tab, "A1"), vr).
			ValueInputOption("RAW").Context(ctx).Do()
		return err
	}, c.retryOpts)
}

func (c *GoogleClient) ClearData(ctx context.Context, tab Tab) error {
	return retry.Do(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, a1(tab, "A2:Z"), &sheetsv4.ClearValuesRequest{}).
			Context(ctx).Do()
		return err
	}, c.retryOpts)
}

// Append uses OVERWRITE so rows left blank by ClearData are reused instead
// of growing the grid on every cycle.
func (c *GoogleClient) Append(ctx context.Context, tab Tab, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	vr := &sheetsv4.ValueRange{Values: rows}
	return retry.Do(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1(tab, "A1"), vr).
			ValueInputOption("RAW").InsertDataOption("OVERWRITE").Context(ctx).Do()
		return err
	}, c.retryOpts)
}

// IDColumn reads the same span ClearData clears, so rows whose ID cell is
// blank but hold data further right are still listed.
func (c *GoogleClient) IDColumn(ctx context.Context, tab Tab) ([]string, error) {
	vr, err := retry.DoValue(ctx, func() (*sheetsv4.ValueRange, error) {
		return c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1(tab, "A2:Z")).Context(ctx).Do()
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(vr.Values))
	for i, row := range vr.Values {
		if len(row) > 0 {
			ids[i] = fmt.Sprint(row[0])
		}
	}
	return ids, nil
}

func (c *GoogleClient) UpdateRows(ctx context.Context, tab Tab, rows map[int][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(rows))
	for idx := range rows {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	req := &sheetsv4.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for _, idx := range indexes {
		req.Data = append(req.Data, &sheetsv4.ValueRange{
			Range:  a1(tab, fmt.Sprintf("A%d", idx+2)),
			Values: [][]interface{}{rows[idx]},
		})
	}
	return retry.Do(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
		return err
	}, c.retryOpts)
}

// DeleteRows issues one batch with the deletions ordered bottom up so earlier
// deletions do not shift the later ones.
func (c *GoogleClient) DeleteRows(ctx context.Context, tab Tab, indexes []int) error {
	if len(indexes) == 0 {
		return nil
	}
	sorted := append([]int(nil), indexes...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	req := &sheetsv4.BatchUpdateSpreadsheetRequest{}
	for _, idx := range sorted {
		req.Requests = append(req.Requests, &sheetsv4.Request{
			DeleteDimension: &sheetsv4.DeleteDimensionRequest{
				Range: &sheetsv4.DimensionRange{
					SheetId:    tab.ID,
					Dimension:  "ROWS",
					StartIndex: int64(idx + 1),
					EndIndex:   int64(idx + 2),
					// The first tab has id 0, which omitempty would drop.
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}
	return retry.Do(ctx, func() error {
		_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
		return err
	}, c.retryOpts)
}

func a1(tab Tab, rng string) string {
	return "'" + strings.ReplaceAll(tab.Title, "'", "''") + "'!" + rng
}
