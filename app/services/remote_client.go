package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteClient is the remote database surface the sync service needs
type RemoteClient interface {
	// Probe reads at most one row to confirm the remote store is reachable
	Probe(ctx context.Context) error
	// Upsert inserts rows into table, updating rows whose id already exists
	Upsert(ctx context.Context, table string, rows any) error
	// ReplaceChildren deletes every row of table whose parentColumn is in parentIDs
	// and inserts rows, in one transaction
	ReplaceChildren(ctx context.Context, table, parentColumn string, parentIDs []string, rows any) error
	// DeleteAll removes every row of table
	DeleteAll(ctx context.Context, table string) error
}

// GormRemoteClient talks to the remote Postgres through gorm
type GormRemoteClient struct {
	db         *gorm.DB
	probeTable string
}

// NewGormRemoteClient wraps an open gorm connection. The probe counts rows of probeTable.
func NewGormRemoteClient(db *gorm.DB, probeTable string) *GormRemoteClient {
	return &GormRemoteClient{db: db, probeTable: probeTable}
}

func (c *GormRemoteClient) Probe(ctx context.Context) error {
	var one int
	return c.db.WithContext(ctx).Table(c.probeTable).Select("1").Limit(1).Scan(&one).Error
}

func (c *GormRemoteClient) Upsert(ctx context.Context, table string, rows any) error {
	if isEmptySlice(rows) {
		return nil
	}
	return c.db.WithContext(ctx).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rows).Error
}

func (c *GormRemoteClient) ReplaceChildren(ctx context.Context, table, parentColumn string, parentIDs []string, rows any) error {
	if len(parentIDs) == 0 {
		return nil
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s IN ?",
			pgx.Identifier{table}.Sanitize(), pgx.Identifier{parentColumn}.Sanitize())
		if err := tx.Exec(stmt, parentIDs).Error; err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
		if isEmptySlice(rows) {
			return nil
		}
		if err := tx.Table(table).Create(rows).Error; err != nil {
			return fmt.Errorf("failed to insert %s: %w", table, err)
		}
		return nil
	})
}

func (c *GormRemoteClient) DeleteAll(ctx context.Context, table string) error {
	return c.db.WithContext(ctx).Exec("DELETE FROM " + pgx.Identifier{table}.Sanitize()).Error
}

func isEmptySlice(rows any) bool {
	v := reflect.ValueOf(rows)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v.Kind() == reflect.Slice && v.Len() == 0
}

// remoteErrorFields describes a remote failure for the log, including the
// Postgres SQLSTATE when the server rejected the statement
func remoteErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields = append(fields,
			zap.String("sqlstate", pgErr.Code),
			zap.String("detail", pgErr.Detail),
			zap.String("constraint", pgErr.ConstraintName))
	}
	return fields
}
