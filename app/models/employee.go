package models

import "github.com/shopspring/decimal"

// Advance is a salary advance paid to an employee
type Advance struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes,omitempty"`
}

// Employee represents a delivery employee
type Employee struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Salary      decimal.Decimal `json:"salary"`
	Advances    []Advance       `json:"advances"`
	Notes       string          `json:"notes,omitempty"`
	SalaryMonth string          `json:"salaryMonth,omitempty"`
	SalaryYear  int             `json:"salaryYear,omitempty"`
	SalaryPaid  bool            `json:"salaryPaid"`
}

func (e Employee) GetID() string { return e.ID }

// TotalAdvances sums every advance recorded for the employee
func (e Employee) TotalAdvances() decimal.Decimal {
	total := decimal.Zero
	for _, a := range e.Advances {
		total = total.Add(a.Amount)
	}
	return total
}

// RemainingSalary is the salary left after advances. It may be negative.
func (e Employee) RemainingSalary() decimal.Decimal {
	return e.Salary.Sub(e.TotalAdvances())
}
