package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SyncState is one watermark row, keyed by the watched table's name.
type SyncState struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex"`
	LastID    int64     `gorm:"not null"`
	UpdatedAt time.Time
}

func (SyncState) TableName() string {
	return "quotelist_sync_state"
}

// GormStore keeps the watermark in a table of a relational database,
// usually the one holding the watched table.
type GormStore struct {
	db   *gorm.DB
	name string
}

// OpenGormStore connects to a mysql or postgres database and returns a store
// for the row named name. The connection pool is kept small; the store
// issues one statement per save.
func OpenGormStore(driver, dsn, name string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported watermark database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to watermark database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormStore(db, name), nil
}

func NewGormStore(db *gorm.DB, name string) *GormStore {
	return &GormStore{db: db, name: name}
}

// Migrate creates or updates the state table.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&SyncState{})
}

func (s *GormStore) Save(ctx context.Context, id int64) error {
	state := SyncState{Name: s.name, LastID: id, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_id", "updated_at"}),
	}).Create(&state).Error
}

func (s *GormStore) Load(ctx context.Context) (int64, bool, error) {
	var state SyncState
	err := s.db.WithContext(ctx).Where("name = ?", s.name).Take(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return state.LastID, true, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
