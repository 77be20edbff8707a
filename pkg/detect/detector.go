// Package detect finds rows inserted since the last check and hands them to
// a notifier under the configured delivery policy.
package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/somedsale/quotelist/pkg/logger"
	"github.com/somedsale/quotelist/pkg/source"
	"github.com/somedsale/quotelist/pkg/watermark"
)

// Delivery controls the order of notify and watermark advance.
type Delivery string

const (
	// AtMostOnce advances the watermark before notifying. A failed send is
	// reported but the rows are never offered again.
	AtMostOnce Delivery = "at_most_once"
	// AtLeastOnce notifies first and advances only after a successful send,
	// so a failed batch is retried on the next check.
	AtLeastOnce Delivery = "at_least_once"
)

// NotifyFunc delivers a non-empty batch of new rows.
type NotifyFunc func(ctx context.Context, rows []source.Row) error

// Config holds detector settings
type Config struct {
	// InitTable is the table whose MAX(id) seeds the watermark when the
	// store has none.
	InitTable string
	Delivery  Delivery
}

// Detector owns the watermark: the highest row id already considered.
type Detector struct {
	reader source.Reader
	store  watermark.Store
	cfg    Config
	logger *logger.Logger

	mu          sync.Mutex
	current     int64
	initialized bool
}

// New creates a Detector. An empty delivery means AtMostOnce.
func New(reader source.Reader, store watermark.Store, cfg Config, l *logger.Logger) (*Detector, error) {
	switch cfg.Delivery {
	case "":
		cfg.Delivery = AtMostOnce
	case AtMostOnce, AtLeastOnce:
	default:
		return nil, fmt.Errorf("unknown delivery policy %q", cfg.Delivery)
	}
	if !source.ValidTable(cfg.InitTable) {
		return nil, fmt.Errorf("%w: %q", source.ErrInvalidTable, cfg.InitTable)
	}
	return &Detector{reader: reader, store: store, cfg: cfg, logger: l}, nil
}

// Watermark returns the current watermark and whether it has been set.
func (d *Detector) Watermark() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.initialized
}

// Init sets the watermark from the store, or from MAX(id) of the init
// table when the store is empty.
func (d *Detector) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.init(ctx)
}

func (d *Detector) init(ctx context.Context) error {
	id, ok, err := d.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watermark: %w", err)
	}
	from := "store"
	if !ok {
		id, err = d.reader.MaxID(ctx, d.cfg.InitTable)
		if err != nil {
			return fmt.Errorf("failed to derive initial watermark: %w", err)
		}
		if err := d.store.Save(ctx, id); err != nil {
			return fmt.Errorf("failed to save initial watermark: %w", err)
		}
		from = d.cfg.InitTable
	}

	d.current, d.initialized = id, true
	d.logger.Info("watermark initialized", zap.Int64("watermark", id), zap.String("from", from))
	return nil
}

// Check queries rows above the watermark and passes them to notify. It
// returns the rows found. When the watermark was never initialized, Check
// initializes it and reports nothing, so rows already present are not
// announced.
func (d *Detector) Check(ctx context.Context, notify NotifyFunc) ([]source.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, d.init(ctx)
	}

	rows, err := d.reader.After(ctx, d.current)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	next := source.MaxRowID(rows)
	if next < d.current {
		next = d.current
	}

	if d.cfg.Delivery == AtLeastOnce {
		if err := notify(ctx, rows); err != nil {
			return rows, fmt.Errorf("failed to notify %d new rows: %w", len(rows), err)
		}
		return rows, d.advance(ctx, next)
	}

	persistErr := d.advance(ctx, next)
	if err := notify(ctx, rows); err != nil {
		return rows, errors.Join(persistErr, fmt.Errorf("failed to notify %d new rows: %w", len(rows), err))
	}
	return rows, persistErr
}

// advance moves the in-memory watermark even when the store write fails;
// the store catches up on the next successful save.
func (d *Detector) advance(ctx context.Context, next int64) error {
	prev := d.current
	d.current = next
	if err := d.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist watermark %d: %w", next, err)
	}
	d.logger.Debug("watermark advanced", zap.Int64("from", prev), zap.Int64("to", next))
	return nil
}
