package domain

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Kind classifies a record as an expense or a worker payment.
type Kind string

const (
	KindExpense Kind = "expense"
	KindPayment Kind = "payment"
)

// ParseKind accepts the kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindExpense:
		return KindExpense, nil
	case KindPayment:
		return KindPayment, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// Category of an expense.
type Category string

const (
	CategoryMaterials Category = "Materials"
	CategoryTools     Category = "Tools"
	CategoryTransport Category = "Transport"
	CategoryRent      Category = "Rent"
	CategoryOther     Category = "Other"
)

// Categories lists every expense category in display order.
var Categories = []Category{CategoryMaterials, CategoryTools, CategoryTransport, CategoryRent, CategoryOther}

// Role of a paid worker.
type Role string

const (
	RoleMason       Role = "Mason"
	RoleHelper      Role = "Helper"
	RoleElectrician Role = "Electrician"
	RolePlumber     Role = "Plumber"
	RoleLaborer     Role = "Laborer"
	RoleOther       Role = "Other"
)

// Roles lists every worker role in display order.
var Roles = []Role{RoleMason, RoleHelper, RoleElectrician, RolePlumber, RoleLaborer, RoleOther}

// Record is one financial event extracted from an utterance.
// Kind decides which pair is meaningful: Description/Category for expenses,
// WorkerName/Role for payments.
type Record struct {
	Kind        Kind
	ProjectName string // as spoken, before normalization
	Date        civil.Date

	Description string
	Category    Category

	WorkerName string
	Role       Role

	Amount decimal.Decimal
	Notes  string
}

// Project returns the project this record belongs to.
func (r *Record) Project() Project {
	return ProjectFor(r.ProjectName)
}

// Validate checks the record invariants.
func (r *Record) Validate() error {
	if !r.Date.IsValid() {
		return fmt.Errorf("invalid date %v", r.Date)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("amount %s is negative", r.Amount)
	}

	switch r.Kind {
	case KindExpense:
		if strings.TrimSpace(r.Description) == "" {
			return fmt.Errorf("expense without description")
		}
		if r.Category == "" {
			return fmt.Errorf("expense without category")
		}
		if r.WorkerName != "" || r.Role != "" {
			return fmt.Errorf("expense carries payment fields")
		}
	case KindPayment:
		if strings.TrimSpace(r.WorkerName) == "" {
			return fmt.Errorf("payment without worker name")
		}
		if r.Role == "" {
			return fmt.Errorf("payment without role")
		}
		if r.Description != "" || r.Category != "" {
			return fmt.Errorf("payment carries expense fields")
		}
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	return nil
}

// AppendResult describes the row written for a record.
type AppendResult struct {
	RowIndex    int    `json:"row_index"` // 1-based, banner and header rows included
	SheetName   string `json:"sheet_name"`
	ResourceURL string `json:"resource_url"`
}
