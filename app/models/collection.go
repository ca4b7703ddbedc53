package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices and amounts are stored as plain JSON numbers in the collection files and exports.
	decimal.MarshalJSONWithoutQuotes = true
}

// Collection names a persisted entity collection
type Collection string

const (
	CollectionProducts     Collection = "products"
	CollectionRoutes       Collection = "routes"
	CollectionCustomers    Collection = "customers"
	CollectionEmployees    Collection = "employees"
	CollectionSalesRecords Collection = "salesRecords"
)

// AllCollections lists every collection in load order
var AllCollections = []Collection{
	CollectionProducts,
	CollectionRoutes,
	CollectionCustomers,
	CollectionEmployees,
	CollectionSalesRecords,
}

// Valid reports whether c is one of the known collections
func (c Collection) Valid() bool {
	for _, known := range AllCollections {
		if c == known {
			return true
		}
	}
	return false
}

func (c Collection) String() string {
	return string(c)
}

// Entity is anything stored by id in a collection
type Entity interface {
	GetID() string
}

// NewID returns a random opaque identifier for a new entity
func NewID() string {
	return uuid.NewString()
}
