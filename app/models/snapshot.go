package models

import "time"

// ExportVersion tags the export document format
const ExportVersion = "1.1.0"

// Snapshot keys besides the collection names
const (
	SnapshotKeyExportDate = "exportDate"
	SnapshotKeyVersion    = "version"
)

// DataSet holds one copy of every collection
type DataSet struct {
	Products     []Product    `json:"products"`
	Routes       []Route      `json:"routes"`
	Customers    []Customer   `json:"customers"`
	Employees    []Employee   `json:"employees"`
	SalesRecords []SaleRecord `json:"salesRecords"`
}

// IsEmpty reports whether every collection is empty
func (d DataSet) IsEmpty() bool {
	return len(d.Products) == 0 &&
		len(d.Routes) == 0 &&
		len(d.Customers) == 0 &&
		len(d.Employees) == 0 &&
		len(d.SalesRecords) == 0
}

// Snapshot is the export/import document
type Snapshot struct {
	DataSet
	ExportDate string `json:"exportDate"`
	Version    string `json:"version"`
}

// NewSnapshot stamps a data set with the export time and format version
func NewSnapshot(data DataSet, now time.Time) Snapshot {
	return Snapshot{
		DataSet:    data,
		ExportDate: now.UTC().Format(time.RFC3339Nano),
		Version:    ExportVersion,
	}
}
