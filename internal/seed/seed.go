// Package seed loads a YAML fixture of stores, parts, employees and discounts
// into a gateway in one unit of work. Rows reference their store by name so a
// document never has to know generated ids.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"possystem/backend/internal/auth"
	"possystem/backend/internal/domain"
	"possystem/backend/internal/pricing"
	"possystem/backend/internal/store"
)

const dateLayout = "2006-01-02"

type Document struct {
	Stores    []StoreSeed    `yaml:"stores"`
	Parts     []PartSeed     `yaml:"parts"`
	Employees []EmployeeSeed `yaml:"employees"`
	Discounts []DiscountSeed `yaml:"discounts"`
}

type StoreSeed struct {
	Name    string `yaml:"name"`
	Balance string `yaml:"balance"`
	TaxRate string `yaml:"tax_rate"`
}

type PartSeed struct {
	Name     string `yaml:"name"`
	Store    string `yaml:"store"`
	Price    string `yaml:"price"`
	Quantity int    `yaml:"quantity"`
}

type EmployeeSeed struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Role      string `yaml:"role"`
	// Store is optional; an empty value leaves the employee unassigned.
	Store    string `yaml:"store,omitempty"`
	Password string `yaml:"password"`
}

type DiscountSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Type        string `yaml:"type"`
	Value       string `yaml:"value"`
	// Store is optional; an empty value makes the discount global.
	Store string `yaml:"store,omitempty"`
	// StartDate and EndDate are inclusive calendar days, YYYY-MM-DD.
	StartDate string `yaml:"start_date,omitempty"`
	EndDate   string `yaml:"end_date,omitempty"`
	Active    *bool  `yaml:"active,omitempty"`
}

// Summary counts the rows one Apply inserted.
type Summary struct {
	Stores    int `json:"stores"`
	Parts     int `json:"parts"`
	Employees int `json:"employees"`
	Discounts int `json:"discounts"`
}

func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a seed document. Unknown keys are rejected so a typo never
// silently drops a column.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("%w: parse seed: %v", store.ErrInvalidInput, err)
	}
	return &doc, nil
}

// Apply inserts the document. Stores already present in the gateway may be
// referenced by name but are not recreated; a store listed in the document
// that already exists is an integrity violation. Passwords are hashed before
// the unit of work opens.
func Apply(ctx context.Context, gateway store.Gateway, doc *Document) (Summary, error) {
	rows, err := prepare(doc)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	err = gateway.WithinTx(ctx, func(tx store.Tx) error {
		summary = Summary{}

		existing, err := tx.ListStores(ctx)
		if err != nil {
			return err
		}
		storeIDs := make(map[string]int64, len(existing)+len(rows.stores))
		for _, s := range existing {
			storeIDs[storeKey(s.Name)] = s.ID
		}

		for _, s := range rows.stores {
			created, err := tx.InsertStore(ctx, s)
			if err != nil {
				return fmt.Errorf("store %q: %w", s.Name, err)
			}
			storeIDs[storeKey(created.Name)] = created.ID
			summary.Stores++
		}

		resolve := func(name string) (*int64, error) {
			if strings.TrimSpace(name) == "" {
				return nil, nil
			}
			id, ok := storeIDs[storeKey(name)]
			if !ok {
				return nil, store.NotFound(store.EntityStore, name)
			}
			return &id, nil
		}

		for i, p := range rows.parts {
			storeID, err := resolve(doc.Parts[i].Store)
			if err != nil {
				return fmt.Errorf("part %q: %w", p.Name, err)
			}
			p.StoreID = storeID
			if _, err := tx.InsertPart(ctx, p); err != nil {
				return fmt.Errorf("part %q: %w", p.Name, err)
			}
			summary.Parts++
		}

		for i, e := range rows.employees {
			storeID, err := resolve(doc.Employees[i].Store)
			if err != nil {
				return fmt.Errorf("employee %q: %w", e.FullName(), err)
			}
			e.StoreID = storeID
			if _, err := tx.InsertEmployee(ctx, e); err != nil {
				return fmt.Errorf("employee %q: %w", e.FullName(), err)
			}
			summary.Employees++
		}

		for i, d := range rows.discounts {
			storeID, err := resolve(doc.Discounts[i].Store)
			if err != nil {
				return fmt.Errorf("discount %q: %w", d.Name, err)
			}
			d.StoreID = storeID
			if _, err := tx.InsertDiscount(ctx, d); err != nil {
				return fmt.Errorf("discount %q: %w", d.Name, err)
			}
			summary.Discounts++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// plan holds the parsed rows in document order, without store ids.
type plan struct {
	stores    []domain.Store
	parts     []domain.Part
	employees []domain.Employee
	discounts []domain.Discount
}

func prepare(doc *Document) (*plan, error) {
	if doc == nil {
		return nil, store.InvalidInput("empty seed document")
	}
	out := &plan{}

	for _, s := range doc.Stores {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, store.InvalidInput("store name is required")
		}
		balance, err := money("store "+name+" balance", s.Balance, true)
		if err != nil {
			return nil, err
		}
		rate, err := money("store "+name+" tax_rate", s.TaxRate, true)
		if err != nil {
			return nil, err
		}
		if rate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, store.InvalidInput("store %s tax_rate must be between 0 and 1", name)
		}
		if !pricing.Fits(rate, pricing.RatePlaces) {
			return nil, store.InvalidInput("store %s tax_rate has more than %d decimal places", name, pricing.RatePlaces)
		}
		out.stores = append(out.stores, domain.Store{Name: name, Balance: pricing.Round(balance), TaxRate: rate})
	}

	for _, p := range doc.Parts {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, store.InvalidInput("part name is required")
		}
		price, err := money("part "+name+" price", p.Price, false)
		if err != nil {
			return nil, err
		}
		if p.Quantity < 0 || p.Quantity > domain.MaxStockQuantity {
			return nil, store.InvalidInput("part %s quantity must be between 0 and %d", name, domain.MaxStockQuantity)
		}
		out.parts = append(out.parts, domain.Part{Name: name, Price: pricing.Round(price), Quantity: p.Quantity})
	}

	for _, e := range doc.Employees {
		first, last := strings.TrimSpace(e.FirstName), strings.TrimSpace(e.LastName)
		if first == "" || last == "" {
			return nil, store.InvalidInput("employee first_name and last_name are required")
		}
		role, err := domain.ParseRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: employee %s %s: %v", store.ErrInvalidInput, first, last, err)
		}
		if len(e.Password) < 6 {
			return nil, store.InvalidInput("employee %s %s password must be at least 6 characters", first, last)
		}
		hash, err := auth.HashPassword(e.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s %s: %w", first, last, err)
		}
		out.employees = append(out.employees, domain.Employee{FirstName: first, LastName: last, Role: role, PasswordHash: hash})
	}

	for _, d := range doc.Discounts {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, store.InvalidInput("discount name is required")
		}
		kind, err := domain.ParseDiscountType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: discount %s: %v", store.ErrInvalidInput, name, err)
		}
		value, err := money("discount "+name+" value", d.Value, false)
		if err != nil {
			return nil, err
		}
		if !pricing.Fits(value, pricing.Places) {
			return nil, store.InvalidInput("discount %s value has more than %d decimal places", name, pricing.Places)
		}
		if kind == domain.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, store.InvalidInput("discount %s percentage must not exceed 100", name)
		}
		start, err := day(d.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: discount %s start_date: %v", store.ErrInvalidInput, name, err)
		}
		end, err := day(d.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: discount %s end_date: %v", store.ErrInvalidInput, name, err)
		}
		if start != nil && end != nil && end.Before(*start) {
			return nil, store.InvalidInput("discount %s ends before it starts", name)
		}
		active := true
		if d.Active != nil {
			active = *d.Active
		}
		out.discounts = append(out.discounts, domain.Discount{
			Name:        name,
			Description: strings.TrimSpace(d.Description),
			Type:        kind,
			Value:       value,
			StartDate:   start,
			EndDate:     end,
			Active:      active,
		})
	}
	return out, nil
}

// storeKey matches the gateways, which treat store names case-insensitively.
func storeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// money parses a decimal field. Blank means zero when allowZero is set.
func money(field string, raw string, allowZero bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" && allowZero {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, store.InvalidInput("%s: %q is not a number", field, raw)
	}
	if value.IsNegative() || (!allowZero && value.IsZero()) {
		return decimal.Zero, store.InvalidInput("%s out of range", field)
	}
	return value, nil
}

func day(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
