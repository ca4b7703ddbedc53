package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"DistroApp/app/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	// LocalDBName identifies the embedded database in the schema_versions table
	LocalDBName = "DistroAppDB"
	// LocalSchemaVersion is bumped whenever the collection tables change
	LocalSchemaVersion = 1

	insertBatchSize = 100
)

// ErrSchemaTooNew is returned when the database was written by a newer build
var ErrSchemaTooNew = errors.New("local database schema is newer than supported")

// collectionTables maps each collection to its table
var collectionTables = map[models.Collection]string{
	models.CollectionProducts:     "local_products",
	models.CollectionRoutes:       "local_routes",
	models.CollectionCustomers:    "local_customers",
	models.CollectionEmployees:    "local_employees",
	models.CollectionSalesRecords: "local_sales_records",
}

// ObjectRecord is one stored entity: its id and JSON payload
type ObjectRecord struct {
	ID        string `gorm:"primaryKey"`
	Data      string `gorm:"not null"`
	UpdatedAt time.Time
}

// SchemaVersion records the schema version of a named database
type SchemaVersion struct {
	Name      string `gorm:"primaryKey"`
	Version   int
	UpdatedAt time.Time
}

// Document is an entity payload keyed by its id
type Document struct {
	ID   string
	Data json.RawMessage
}

// LocalDB is the embedded object store: one SQLite table per collection keyed by entity id
type LocalDB struct {
	path   string
	logger *zap.Logger

	initGroup singleflight.Group

	mu sync.RWMutex
	db *gorm.DB
}

// NewLocalDB creates an embedded store backed by the SQLite file at path.
// Nothing is opened until Init.
func NewLocalDB(path string, logger *zap.Logger) *LocalDB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalDB{
		path:   path,
		logger: logger.Named("localdb"),
	}
}

// Init opens the database and migrates it to the current schema version.
// It is safe to call repeatedly; concurrent callers share one attempt.
func (l *LocalDB) Init(ctx context.Context) error {
	if l.conn() != nil {
		return nil
	}

	_, err, _ := l.initGroup.Do("init", func() (any, error) {
		if l.conn() != nil {
			return nil, nil
		}

		db, err := openSQLite(l.path)
		if err != nil {
			return nil, err
		}

		if err := l.migrate(ctx, db); err != nil {
			closeGorm(db)
			return nil, fmt.Errorf("failed to run local migrations: %w", err)
		}

		l.mu.Lock()
		l.db = db
		l.mu.Unlock()

		l.logger.Info("local database ready", zap.String("path", l.path), zap.Int("version", LocalSchemaVersion))
		return nil, nil
	})
	return err
}

// openSQLite opens a CGO-free SQLite database, creating its directory
func openSQLite(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to local database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// migrate creates the collection tables and records the schema version
func (l *LocalDB) migrate(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)

	if err := db.AutoMigrate(&SchemaVersion{}); err != nil {
		return err
	}

	var current SchemaVersion
	err := db.Where("name = ?", LocalDBName).Take(&current).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if current.Version > LocalSchemaVersion {
		return fmt.Errorf("%w: found %d, supported %d", ErrSchemaTooNew, current.Version, LocalSchemaVersion)
	}

	for _, c := range models.AllCollections {
		if err := db.Table(collectionTables[c]).AutoMigrate(&ObjectRecord{}); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", c, err)
		}
	}

	if current.Version < LocalSchemaVersion {
		l.logger.Info("upgrading local database",
			zap.Int("from", current.Version), zap.Int("to", LocalSchemaVersion))
		return db.Save(&SchemaVersion{Name: LocalDBName, Version: LocalSchemaVersion}).Error
	}
	return nil
}

func (l *LocalDB) conn() *gorm.DB {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.db
}

// ready initializes on demand and resolves the table for c
func (l *LocalDB) ready(ctx context.Context, c models.Collection) (*gorm.DB, string, error) {
	table, ok := collectionTables[c]
	if !ok {
		return nil, "", fmt.Errorf("unknown collection %q", c)
	}
	if err := l.Init(ctx); err != nil {
		return nil, "", err
	}
	return l.conn().WithContext(ctx), table, nil
}

// DB returns the underlying connection, nil before Init
func (l *LocalDB) DB() *gorm.DB {
	return l.conn()
}

// SaveItems replaces the whole collection with docs inside one transaction
func (l *LocalDB) SaveItems(ctx context.Context, c models.Collection, docs []Document) bool {
	db, table, err := l.ready(ctx, c)
	if err != nil {
		l.logger.Error("failed to save items", zap.String("collection", c.String()), zap.Error(err))
		return false
	}

	records := make([]ObjectRecord, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			l.logger.Error("refusing to save item without id", zap.String("collection", c.String()))
			return false
		}
		records = append(records, ObjectRecord{ID: doc.ID, Data: string(doc.Data)})
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(table).Where("1 = 1").Delete(&ObjectRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Table(table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(records, insertBatchSize).Error
	})
	if err != nil {
		l.logger.Error("failed to save items", zap.String("collection", c.String()), zap.Error(err))
		return false
	}

	l.logger.Debug("collection saved", zap.String("collection", c.String()), zap.Int("count", len(records)))
	return true
}

// GetAllItems returns every document of a collection in insertion order.
// Failures yield an empty list.
func (l *LocalDB) GetAllItems(ctx context.Context, c models.Collection) []Document {
	db, table, err := l.ready(ctx, c)
	if err != nil {
		l.logger.Error("failed to read items", zap.String("collection", c.String()), zap.Error(err))
		return []Document{}
	}

	var records []ObjectRecord
	if err := db.Table(table).Order("rowid").Find(&records).Error; err != nil {
		l.logger.Error("failed to read items", zap.String("collection", c.String()), zap.Error(err))
		return []Document{}
	}

	docs := make([]Document, len(records))
	for i, r := range records {
		docs[i] = Document{ID: r.ID, Data: json.RawMessage(r.Data)}
	}
	return docs
}

// GetItem looks up one document by id
func (l *LocalDB) GetItem(ctx context.Context, c models.Collection, id string) (Document, bool) {
	db, table, err := l.ready(ctx, c)
	if err != nil {
		l.logger.Error("failed to read item", zap.String("collection", c.String()), zap.Error(err))
		return Document{}, false
	}

	var record ObjectRecord
	err = db.Table(table).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, false
	}
	if err != nil {
		l.logger.Error("failed to read item", zap.String("collection", c.String()), zap.String("id", id), zap.Error(err))
		return Document{}, false
	}
	return Document{ID: record.ID, Data: json.RawMessage(record.Data)}, true
}

// DeleteItem removes one document by id. Deleting a missing id succeeds.
func (l *LocalDB) DeleteItem(ctx context.Context, c models.Collection, id string) bool {
	db, table, err := l.ready(ctx, c)
	if err != nil {
		l.logger.Error("failed to delete item", zap.String("collection", c.String()), zap.Error(err))
		return false
	}

	if err := db.Table(table).Where("id = ?", id).Delete(&ObjectRecord{}).Error; err != nil {
		l.logger.Error("failed to delete item", zap.String("collection", c.String()), zap.String("id", id), zap.Error(err))
		return false
	}
	return true
}

// Close closes the database connection
func (l *LocalDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	l.db = nil
	return sqlDB.Close()
}
