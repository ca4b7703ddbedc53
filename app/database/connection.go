package database

import (
	"fmt"
	"time"

	"DistroApp/app/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenRemote prepares a connection pool to the remote Postgres database.
// It does not ping: the app starts offline and the sync service probes later.
func OpenRemote(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("remote database is not configured")
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// A single desktop client needs only a handful of connections
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("remote database configured", zap.String("target", cfg.Redacted()))
	return db, nil
}

// EnsureRemoteSchema creates the remote tables when they do not exist yet
func EnsureRemoteSchema(db *gorm.DB) error {
	err := db.AutoMigrate(
		&RemoteProduct{},
		&RemoteRoute{},
		&RemoteCustomer{},
		&RemoteEmployee{},
		&RemoteAdvance{},
		&RemoteSale{},
	)
	if err != nil {
		return fmt.Errorf("failed to run remote migrations: %w", err)
	}
	return nil
}

// CloseRemote closes the pool behind db
func CloseRemote(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
