package models

import "github.com/shopspring/decimal"

// Product represents a sellable product
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func (p Product) GetID() string { return p.ID }

// Route represents a delivery route
type Route struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (r Route) GetID() string { return r.ID }

// DefaultProducts returns the built-in product catalogue used on first run
func DefaultProducts() []Product {
	return []Product{
		{ID: "1", Name: "زبادي كبير", Price: decimal.RequireFromString("5.5")},
		{ID: "2", Name: "زبادي صغير", Price: decimal.RequireFromString("4.75")},
		{ID: "3", Name: "زبادي جامبو", Price: decimal.RequireFromString("6.25")},
		{ID: "4", Name: "ارز باللبن", Price: decimal.RequireFromString("8.5")},
		{ID: "5", Name: "رايب", Price: decimal.RequireFromString("9.5")},
		{ID: "6", Name: "جيلي كاستر", Price: decimal.RequireFromString("8.5")},
		{ID: "7", Name: "كريمة", Price: decimal.RequireFromString("120")},
		{ID: "8", Name: "قريش", Price: decimal.RequireFromString("70")},
		{ID: "9", Name: "ارز فرن", Price: decimal.RequireFromString("8.5")},
	}
}

// DefaultRoutes returns the built-in delivery routes used on first run
func DefaultRoutes() []Route {
	return []Route{
		{ID: "1", Name: "عصافرة سيدي بشر"},
		{ID: "2", Name: "محرم بك"},
		{ID: "3", Name: "خورشيد المراغي الفلكي"},
		{ID: "4", Name: "القصعي الساعه"},
		{ID: "5", Name: "كفر الدوار"},
	}
}
