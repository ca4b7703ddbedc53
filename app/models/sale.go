package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SaleEntry is one product line of the daily sales form
type SaleEntry struct {
	ProductID string          `json:"productId"`
	Count     int             `json:"count"`
	Returned  int             `json:"returned,omitempty"`
	Damaged   int             `json:"damaged,omitempty"`
	Net       int             `json:"net,omitempty"`
	Price     decimal.Decimal `json:"price,omitzero"`
	SaleValue decimal.Decimal `json:"saleValue,omitzero"`
	LossValue decimal.Decimal `json:"lossValue,omitzero"`
}

// SaleItem is the normalized line kept for backend compatibility
type SaleItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// SaleRecord is one route's sales for one day
type SaleRecord struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	RouteID     string          `json:"routeId"`
	EmployeeID  string          `json:"employeeId,omitempty"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Items       []SaleItem      `json:"items"`
	Entries     []SaleEntry     `json:"entries,omitempty"`
	TotalSales  decimal.Decimal `json:"totalSales,omitzero"`
	TotalLosses decimal.Decimal `json:"totalLosses,omitzero"`
}

func (r SaleRecord) GetID() string { return r.ID }

// NetQuantity is count minus returned and damaged, floored at zero
func NetQuantity(count, returned, damaged int) int {
	return max(0, count-returned-damaged)
}

// NewSaleEntry builds an entry with its derived values filled in
func NewSaleEntry(productID string, count, returned, damaged int, price decimal.Decimal) SaleEntry {
	entry := SaleEntry{
		ProductID: productID,
		Count:     count,
		Returned:  returned,
		Damaged:   damaged,
		Price:     price,
	}
	return entry.Derive()
}

// Derive recomputes net, sale value and loss value from the raw counts and price
func (e SaleEntry) Derive() SaleEntry {
	e.Net = NetQuantity(e.Count, e.Returned, e.Damaged)
	e.SaleValue = e.Price.Mul(decimal.NewFromInt(int64(e.Net)))
	e.LossValue = e.Price.Mul(decimal.NewFromInt(int64(e.Damaged)))
	return e
}

// EntryFor returns the raw form entry recorded for a product, if any
func (r SaleRecord) EntryFor(productID string) (SaleEntry, bool) {
	for _, e := range r.Entries {
		if e.ProductID == productID {
			return e, true
		}
	}
	return SaleEntry{}, false
}

// BuildSaleRecord turns raw form entries into a committed sale record.
// Entries with a zero count are dropped from the normalized items; prices
// come from the product catalogue.
func BuildSaleRecord(date, routeID, employeeID string, entries []SaleEntry, products []Product) (SaleRecord, error) {
	if date == "" {
		return SaleRecord{}, fmt.Errorf("sale date is required")
	}
	if routeID == "" {
		return SaleRecord{}, fmt.Errorf("route is required")
	}

	prices := make(map[string]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	record := SaleRecord{
		ID:          NewID(),
		Date:        date,
		RouteID:     routeID,
		EmployeeID:  employeeID,
		TotalPrice:  decimal.Zero,
		TotalSales:  decimal.Zero,
		TotalLosses: decimal.Zero,
		Items:       []SaleItem{},
	}

	for _, raw := range entries {
		price, ok := prices[raw.ProductID]
		if !ok {
			continue
		}
		raw.Price = price
		entry := raw.Derive()
		record.Entries = append(record.Entries, entry)

		record.TotalSales = record.TotalSales.Add(entry.SaleValue)
		record.TotalLosses = record.TotalLosses.Add(entry.LossValue)

		if entry.Count > 0 {
			record.Items = append(record.Items, SaleItem{
				ProductID: entry.ProductID,
				Quantity:  entry.Net,
				Price:     price,
			})
			record.TotalPrice = record.TotalPrice.Add(entry.SaleValue)
		}
	}

	return record, nil
}
