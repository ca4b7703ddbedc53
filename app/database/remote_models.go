package database

import "github.com/shopspring/decimal"

// Row shapes of the remote Postgres schema. The remote side uses snake_case
// columns and stores product and route names on sale rows instead of ids.

type RemoteProduct struct {
	ID    string          `gorm:"primaryKey" json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `gorm:"type:numeric" json:"price"`
}

func (RemoteProduct) TableName() string { return "products" }

type RemoteRoute struct {
	ID   string `gorm:"primaryKey" json:"id"`
	Name string `json:"name"`
}

func (RemoteRoute) TableName() string { return "routes" }

type RemoteCustomer struct {
	ID      string  `gorm:"primaryKey" json:"id"`
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	RouteID *string `gorm:"column:route_id" json:"route_id"`
	Notes   *string `json:"notes"`
}

func (RemoteCustomer) TableName() string { return "customers" }

type RemoteEmployee struct {
	ID          string          `gorm:"primaryKey" json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Phone       *string         `json:"phone"`
	Salary      decimal.Decimal `gorm:"type:numeric" json:"salary"`
	Notes       *string         `json:"notes"`
	SalaryMonth *string         `gorm:"column:salary_month" json:"salary_month"`
	SalaryYear  *int            `gorm:"column:salary_year" json:"salary_year"`
	SalaryPaid  bool            `gorm:"column:salary_paid" json:"salary_paid"`
}

func (RemoteEmployee) TableName() string { return "employees" }

// RemoteAdvance has a server-assigned id that never leaves the remote side
type RemoteAdvance struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"-"`
	EmployeeID string          `gorm:"column:employee_id;index" json:"employee_id"`
	Date       string          `json:"date"`
	Amount     decimal.Decimal `gorm:"type:numeric" json:"amount"`
	Notes      *string         `json:"notes"`
}

func (RemoteAdvance) TableName() string { return "employee_advances" }

// RemoteSale is one (sale, product) line. Its id is derived from the local sale and product ids.
type RemoteSale struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	Date      string          `gorm:"index" json:"date"`
	Product   string          `json:"product"`
	Route     string          `json:"route"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric" json:"unit_price"`
	Returned  int             `json:"returned"`
	Damaged   int             `json:"damaged"`
}

func (RemoteSale) TableName() string { return "sales" }

// Remote table names
const (
	RemoteTableProducts  = "products"
	RemoteTableRoutes    = "routes"
	RemoteTableCustomers = "customers"
	RemoteTableEmployees = "employees"
	RemoteTableAdvances  = "employee_advances"
	RemoteTableSales     = "sales"
)

// Nullable maps an empty string to NULL
func Nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
