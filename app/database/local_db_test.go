package database

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"DistroApp/app/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLocalDB(t *testing.T) *LocalDB {
	t.Helper()
	db := NewLocalDB(filepath.Join(t.TempDir(), "local.db"), zaptest.NewLogger(t))
	t.Cleanup(func() { db.Close() })
	return db
}

func decodeDocuments[T any](docs []Document) ([]T, error) {
	items := make([]T, 0, len(docs))
	for _, raw := range RawFromDocuments(docs) {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func TestLocalDBInitConcurrent(t *testing.T) {
	db := newTestLocalDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.Init(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.NotNil(t, db.DB())

	var version SchemaVersion
	require.NoError(t, db.DB().Where("name = ?", LocalDBName).Take(&version).Error)
	assert.Equal(t, LocalSchemaVersion, version.Version)

	// a second Init is a no-op
	require.NoError(t, db.Init(ctx))
}

func TestLocalDBRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	ctx := context.Background()

	first := NewLocalDB(path, zaptest.NewLogger(t))
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.DB().Save(&SchemaVersion{Name: LocalDBName, Version: LocalSchemaVersion + 1}).Error)
	require.NoError(t, first.Close())

	second := NewLocalDB(path, zaptest.NewLogger(t))
	err := second.Init(ctx)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestLocalDBSaveItemsReplacesCollection(t *testing.T) {
	db := newTestLocalDB(t)
	ctx := context.Background()

	products := []models.Product{
		{ID: "1", Name: "Large", Price: decimal.RequireFromString("5.5")},
		{ID: "2", Name: "Small", Price: decimal.RequireFromString("4.75")},
	}
	docs, err := EncodeDocuments(products)
	require.NoError(t, err)
	require.True(t, db.SaveItems(ctx, models.CollectionProducts, docs))

	got, err := decodeDocuments[models.Product](db.GetAllItems(ctx, models.CollectionProducts))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Large", got[0].Name)
	assert.True(t, got[1].Price.Equal(decimal.RequireFromString("4.75")))

	// replace with a single item
	docs, err = EncodeDocuments(products[1:])
	require.NoError(t, err)
	require.True(t, db.SaveItems(ctx, models.CollectionProducts, docs))
	assert.Len(t, db.GetAllItems(ctx, models.CollectionProducts), 1)

	// empty input empties the collection and still succeeds
	require.True(t, db.SaveItems(ctx, models.CollectionProducts, nil))
	assert.Empty(t, db.GetAllItems(ctx, models.CollectionProducts))

	// other collections are untouched by all of this
	assert.Empty(t, db.GetAllItems(ctx, models.CollectionRoutes))
}

func TestLocalDBPreservesInsertionOrder(t *testing.T) {
	db := newTestLocalDB(t)
	ctx := context.Background()

	records := []models.SaleRecord{{ID: "zz", Date: "2024-01-01"}, {ID: "aa", Date: "2024-01-02"}, {ID: "mm", Date: "2024-01-03"}}
	docs, err := EncodeDocuments(records)
	require.NoError(t, err)
	require.True(t, db.SaveItems(ctx, models.CollectionSalesRecords, docs))

	got := db.GetAllItems(ctx, models.CollectionSalesRecords)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"zz", "aa", "mm"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestLocalDBPointOperations(t *testing.T) {
	db := newTestLocalDB(t)
	ctx := context.Background()

	docs, err := EncodeDocuments([]models.Route{{ID: "r1", Name: "North"}, {ID: "r2", Name: "South"}})
	require.NoError(t, err)
	require.True(t, db.SaveItems(ctx, models.CollectionRoutes, docs))

	doc, ok := db.GetItem(ctx, models.CollectionRoutes, "r2")
	require.True(t, ok)
	var route models.Route
	require.NoError(t, json.Unmarshal(doc.Data, &route))
	assert.Equal(t, "South", route.Name)

	assert.True(t, db.DeleteItem(ctx, models.CollectionRoutes, "r2"))
	_, ok = db.GetItem(ctx, models.CollectionRoutes, "r2")
	assert.False(t, ok)

	assert.True(t, db.DeleteItem(ctx, models.CollectionRoutes, "missing"))
}

func TestLocalDBFailuresConvertToDefaults(t *testing.T) {
	db := newTestLocalDB(t)
	ctx := context.Background()

	assert.False(t, db.SaveItems(ctx, models.Collection("unknown"), nil))
	assert.Empty(t, db.GetAllItems(ctx, models.Collection("unknown")))
	assert.False(t, db.SaveItems(ctx, models.CollectionRoutes, []Document{{ID: "", Data: json.RawMessage(`{}`)}}))
}
