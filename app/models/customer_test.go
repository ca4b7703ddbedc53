package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextCustomerCode(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		want     string
	}{
		{name: "empty collection", existing: nil, want: "C001"},
		{name: "gap in sequence", existing: []string{"C001", "C003"}, want: "C002"},
		{name: "contiguous", existing: []string{"C002", "C001", "C003"}, want: "C004"},
		{name: "foreign codes ignored", existing: []string{"X001", "C001", ""}, want: "C002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customers := make([]Customer, len(tt.existing))
			for i, code := range tt.existing {
				customers[i] = Customer{ID: NewID(), Code: code}
			}
			assert.Equal(t, tt.want, NextCustomerCode(customers))
		})
	}
}

func TestNextEmployeeCodeNeverDuplicates(t *testing.T) {
	employees := []Employee{{Code: "E001"}, {Code: "E003"}, {Code: "E004"}}

	seen := map[string]bool{"E001": true, "E003": true, "E004": true}
	for i := 0; i < 5; i++ {
		code := NextEmployeeCode(employees)
		assert.False(t, seen[code], "code %s generated twice", code)
		seen[code] = true
		employees = append(employees, Employee{Code: code})
	}

	assert.Equal(t, "E002", employees[3].Code)
	assert.Equal(t, "E005", employees[4].Code)
	assert.Equal(t, "E008", employees[7].Code)
}
