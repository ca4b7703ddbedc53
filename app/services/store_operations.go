package services

import (
	"fmt"
	"slices"

	"DistroApp/app/models"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func replaceByID[T models.Entity](items []T, item T) ([]T, error) {
	idx := slices.IndexFunc(items, func(x T) bool { return x.GetID() == item.GetID() })
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", item.GetID(), ErrNotFound)
	}
	out := slices.Clone(items)
	out[idx] = item
	return out, nil
}

func removeByID[T models.Entity](items []T, id string) ([]T, error) {
	if !slices.ContainsFunc(items, func(x T) bool { return x.GetID() == id }) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return lo.Reject(items, func(x T, _ int) bool { return x.GetID() == id }), nil
}

func appendItem[T any](items []T, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, items...)
	return append(out, item)
}

// Products returns a copy of the product catalogue
func (s *StoreService) Products() []models.Product {
	return slices.Clone(s.dataSet().Products)
}

// AddProduct stores a new product, assigning an id when missing
func (s *StoreService) AddProduct(p models.Product) (models.Product, error) {
	if p.ID == "" {
		p.ID = models.NewID()
	}
	err := s.mutate(models.CollectionProducts, func(d *models.DataSet) error {
		d.Products = appendItem(d.Products, p)
		return nil
	})
	return p, err
}

func (s *StoreService) UpdateProduct(p models.Product) error {
	return s.mutate(models.CollectionProducts, func(d *models.DataSet) error {
		products, err := replaceByID(d.Products, p)
		if err != nil {
			return err
		}
		d.Products = products
		return nil
	})
}

func (s *StoreService) DeleteProduct(id string) error {
	return s.mutate(models.CollectionProducts, func(d *models.DataSet) error {
		products, err := removeByID(d.Products, id)
		if err != nil {
			return err
		}
		d.Products = products
		return nil
	})
}

// Routes returns a copy of the delivery routes
func (s *StoreService) Routes() []models.Route {
	return slices.Clone(s.dataSet().Routes)
}

func (s *StoreService) AddRoute(r models.Route) (models.Route, error) {
	if r.ID == "" {
		r.ID = models.NewID()
	}
	err := s.mutate(models.CollectionRoutes, func(d *models.DataSet) error {
		d.Routes = appendItem(d.Routes, r)
		return nil
	})
	return r, err
}

func (s *StoreService) UpdateRoute(r models.Route) error {
	return s.mutate(models.CollectionRoutes, func(d *models.DataSet) error {
		routes, err := replaceByID(d.Routes, r)
		if err != nil {
			return err
		}
		d.Routes = routes
		return nil
	})
}

func (s *StoreService) DeleteRoute(id string) error {
	return s.mutate(models.CollectionRoutes, func(d *models.DataSet) error {
		routes, err := removeByID(d.Routes, id)
		if err != nil {
			return err
		}
		d.Routes = routes
		return nil
	})
}

// Customers returns a copy of the customer list
func (s *StoreService) Customers() []models.Customer {
	return slices.Clone(s.dataSet().Customers)
}

// AddCustomer stores a new customer. An empty code gets the lowest unused C-code.
func (s *StoreService) AddCustomer(c models.Customer) (models.Customer, error) {
	if c.ID == "" {
		c.ID = models.NewID()
	}
	err := s.mutate(models.CollectionCustomers, func(d *models.DataSet) error {
		if c.Code == "" {
			c.Code = models.NextCustomerCode(d.Customers)
		}
		d.Customers = appendItem(d.Customers, c)
		return nil
	})
	return c, err
}

func (s *StoreService) UpdateCustomer(c models.Customer) error {
	return s.mutate(models.CollectionCustomers, func(d *models.DataSet) error {
		customers, err := replaceByID(d.Customers, c)
		if err != nil {
			return err
		}
		d.Customers = customers
		return nil
	})
}

func (s *StoreService) DeleteCustomer(id string) error {
	return s.mutate(models.CollectionCustomers, func(d *models.DataSet) error {
		customers, err := removeByID(d.Customers, id)
		if err != nil {
			return err
		}
		d.Customers = customers
		return nil
	})
}

// Employees returns a copy of the employee list
func (s *StoreService) Employees() []models.Employee {
	return slices.Clone(s.dataSet().Employees)
}

// AddEmployee stores a new employee. An empty code gets the lowest unused E-code.
func (s *StoreService) AddEmployee(e models.Employee) (models.Employee, error) {
	if e.ID == "" {
		e.ID = models.NewID()
	}
	e.Advances = slices.Clone(e.Advances)
	if e.Advances == nil {
		e.Advances = []models.Advance{}
	}
	err := s.mutate(models.CollectionEmployees, func(d *models.DataSet) error {
		if e.Code == "" {
			e.Code = models.NextEmployeeCode(d.Employees)
		}
		d.Employees = appendItem(d.Employees, e)
		return nil
	})
	return e, err
}

func (s *StoreService) UpdateEmployee(e models.Employee) error {
	e.Advances = slices.Clone(e.Advances)
	if e.Advances == nil {
		e.Advances = []models.Advance{}
	}
	return s.mutate(models.CollectionEmployees, func(d *models.DataSet) error {
		employees, err := replaceByID(d.Employees, e)
		if err != nil {
			return err
		}
		d.Employees = employees
		return nil
	})
}

func (s *StoreService) DeleteEmployee(id string) error {
	return s.mutate(models.CollectionEmployees, func(d *models.DataSet) error {
		employees, err := removeByID(d.Employees, id)
		if err != nil {
			return err
		}
		d.Employees = employees
		return nil
	})
}

func (s *StoreService) updateEmployee(id string, fn func(e *models.Employee)) error {
	return s.mutate(models.CollectionEmployees, func(d *models.DataSet) error {
		idx := slices.IndexFunc(d.Employees, func(e models.Employee) bool { return e.ID == id })
		if idx < 0 {
			return fmt.Errorf("employee %s: %w", id, ErrNotFound)
		}
		employees := slices.Clone(d.Employees)
		fn(&employees[idx])
		d.Employees = employees
		return nil
	})
}

// AddEmployeeAdvance appends an advance to the employee's list. Advances above the
// salary are allowed; the user gets a warning.
func (s *StoreService) AddEmployeeAdvance(employeeID string, advance models.Advance) error {
	var remaining decimal.Decimal
	err := s.updateEmployee(employeeID, func(e *models.Employee) {
		e.Advances = appendItem(e.Advances, advance)
		remaining = e.RemainingSalary()
	})
	if err == nil && remaining.IsNegative() {
		s.notifier.Notify(NotifyWarning, fmt.Sprintf("Advances exceed the salary by %s", remaining.Neg().StringFixed(2)))
	}
	return err
}

// ResetEmployeeAdvances clears the advances and marks the salary paid
func (s *StoreService) ResetEmployeeAdvances(employeeID string) error {
	return s.updateEmployee(employeeID, func(e *models.Employee) {
		e.Advances = []models.Advance{}
		e.SalaryPaid = true
	})
}

// SalesRecords returns a copy of the sale records in insertion order
func (s *StoreService) SalesRecords() []models.SaleRecord {
	return slices.Clone(s.dataSet().SalesRecords)
}

// AddSaleRecord appends a sale record. Only one record may exist per date and route.
func (s *StoreService) AddSaleRecord(r models.SaleRecord) (models.SaleRecord, error) {
	if r.ID == "" {
		r.ID = models.NewID()
	}
	if r.Items == nil {
		r.Items = []models.SaleItem{}
	}
	err := s.mutate(models.CollectionSalesRecords, func(d *models.DataSet) error {
		if _, dup := findSale(d.SalesRecords, r.Date, r.RouteID); dup {
			return fmt.Errorf("%s on route %s: %w", r.Date, r.RouteID, ErrDuplicateSaleRecord)
		}
		d.SalesRecords = appendItem(d.SalesRecords, r)
		return nil
	})
	return r, err
}

// UpdateSaleRecord replaces a sale record by id. Moving it onto a date and route
// taken by another record is rejected.
func (s *StoreService) UpdateSaleRecord(r models.SaleRecord) error {
	return s.mutate(models.CollectionSalesRecords, func(d *models.DataSet) error {
		if other, dup := findSale(d.SalesRecords, r.Date, r.RouteID); dup && other.ID != r.ID {
			return fmt.Errorf("%s on route %s: %w", r.Date, r.RouteID, ErrDuplicateSaleRecord)
		}
		records, err := replaceByID(d.SalesRecords, r)
		if err != nil {
			return err
		}
		d.SalesRecords = records
		return nil
	})
}

func (s *StoreService) DeleteSaleRecord(id string) error {
	return s.mutate(models.CollectionSalesRecords, func(d *models.DataSet) error {
		records, err := removeByID(d.SalesRecords, id)
		if err != nil {
			return err
		}
		d.SalesRecords = records
		return nil
	})
}

func (s *StoreService) GetSaleRecordsByDate(date string) []models.SaleRecord {
	return lo.Filter(s.dataSet().SalesRecords, func(r models.SaleRecord, _ int) bool {
		return r.Date == date
	})
}

func (s *StoreService) GetSaleRecordsByRoute(routeID string) []models.SaleRecord {
	return lo.Filter(s.dataSet().SalesRecords, func(r models.SaleRecord, _ int) bool {
		return r.RouteID == routeID
	})
}

// FindSaleRecord returns the record for a date and route, if any
func (s *StoreService) FindSaleRecord(date, routeID string) (models.SaleRecord, bool) {
	return findSale(s.dataSet().SalesRecords, date, routeID)
}

func findSale(records []models.SaleRecord, date, routeID string) (models.SaleRecord, bool) {
	return lo.Find(records, func(r models.SaleRecord) bool {
		return r.Date == date && r.RouteID == routeID
	})
}
