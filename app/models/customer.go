package models

import "fmt"

// Customer represents a customer served on a route
type Customer struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	RouteID string `json:"routeId,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

func (c Customer) GetID() string { return c.ID }

// NextCustomerCode returns the lowest unused code of the form C001
func NextCustomerCode(customers []Customer) string {
	codes := make([]string, len(customers))
	for i, c := range customers {
		codes[i] = c.Code
	}
	return nextSequentialCode("C", codes)
}

// NextEmployeeCode returns the lowest unused code of the form E001
func NextEmployeeCode(employees []Employee) string {
	codes := make([]string, len(employees))
	for i, e := range employees {
		codes[i] = e.Code
	}
	return nextSequentialCode("E", codes)
}

func nextSequentialCode(prefix string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, code := range existing {
		taken[code] = struct{}{}
	}

	for i := 1; ; i++ {
		code := fmt.Sprintf("%s%03d", prefix, i)
		if _, ok := taken[code]; !ok {
			return code
		}
	}
}
