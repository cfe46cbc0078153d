package auth

import (
	"context"
	"errors"

	"possystem/backend/internal/domain"
)

var ErrAdminRequired = errors.New("admin role required")

type EmployeeLookup interface {
	GetEmployee(ctx context.Context, employeeID int64) (*domain.Employee, error)
}

// Guard answers role questions from the employee record, never from a
// caller-supplied role. It runs before any unit of work opens.
type Guard struct {
	employees EmployeeLookup
}

func NewGuard(employees EmployeeLookup) *Guard {
	return &Guard{employees: employees}
}

// CheckRole reports whether employeeID holds required. An unknown employee is
// an error, not a false.
func (g *Guard) CheckRole(ctx context.Context, employeeID int64, required domain.Role) (bool, error) {
	employee, err := g.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		return false, err
	}
	return employee.Role.Is(required), nil
}

func (g *Guard) RequireAdmin(ctx context.Context, employeeID int64) error {
	ok, err := g.CheckRole(ctx, employeeID, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAdminRequired
	}
	return nil
}
