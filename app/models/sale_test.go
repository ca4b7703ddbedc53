package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaleEntryDerive(t *testing.T) {
	price := decimal.RequireFromString("5.5")

	for count := 0; count <= 6; count++ {
		for returned := 0; returned <= 4; returned++ {
			for damaged := 0; damaged <= 4; damaged++ {
				entry := NewSaleEntry("p1", count, returned, damaged, price)

				want := count - returned - damaged
				if want < 0 {
					want = 0
				}
				assert.Equal(t, want, entry.Net)
				assert.True(t, entry.SaleValue.Equal(price.Mul(decimal.NewFromInt(int64(want)))),
					"sale value for %d/%d/%d", count, returned, damaged)
				assert.True(t, entry.LossValue.Equal(price.Mul(decimal.NewFromInt(int64(damaged)))),
					"loss value for %d/%d/%d", count, returned, damaged)
			}
		}
	}
}

func TestBuildSaleRecord(t *testing.T) {
	products := []Product{
		{ID: "1", Name: "Large", Price: decimal.RequireFromString("5.5")},
		{ID: "2", Name: "Small", Price: decimal.RequireFromString("4.75")},
		{ID: "3", Name: "Cream", Price: decimal.RequireFromString("120")},
	}
	entries := []SaleEntry{
		{ProductID: "1", Count: 10, Returned: 2, Damaged: 1},
		{ProductID: "2", Count: 0},
		{ProductID: "3", Count: 1, Damaged: 3},
		{ProductID: "missing", Count: 4},
	}

	record, err := BuildSaleRecord("2024-05-01", "r1", "e1", entries, products)
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "2024-05-01", record.Date)
	assert.Equal(t, "r1", record.RouteID)
	assert.Equal(t, "e1", record.EmployeeID)

	require.Len(t, record.Items, 2)
	assert.Equal(t, "1", record.Items[0].ProductID)
	assert.Equal(t, 7, record.Items[0].Quantity)
	assert.Equal(t, "3", record.Items[1].ProductID)
	assert.Equal(t, 0, record.Items[1].Quantity)

	assert.Len(t, record.Entries, 3)
	assert.True(t, record.TotalPrice.Equal(decimal.RequireFromString("38.5")), record.TotalPrice.String())
	assert.True(t, record.TotalSales.Equal(decimal.RequireFromString("38.5")), record.TotalSales.String())
	assert.True(t, record.TotalLosses.Equal(decimal.RequireFromString("365.5")), record.TotalLosses.String())

	entry, ok := record.EntryFor("1")
	require.True(t, ok)
	assert.Equal(t, 2, entry.Returned)
	assert.Equal(t, 1, entry.Damaged)
}

func TestBuildSaleRecordRequiresDateAndRoute(t *testing.T) {
	_, err := BuildSaleRecord("", "r1", "", nil, nil)
	assert.Error(t, err)

	_, err = BuildSaleRecord("2024-05-01", "", "", nil, nil)
	assert.Error(t, err)
}
