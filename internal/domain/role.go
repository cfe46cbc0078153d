package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of employee roles. Comparison is case-insensitive so
// rows written as "admin" or "ADMIN" still authorize.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleManager    Role = "Manager"
	RoleClerk      Role = "Clerk"
	RoleTechnician Role = "Technician"
)

var roles = []Role{RoleAdmin, RoleManager, RoleClerk, RoleTechnician}

func ParseRole(raw string) (Role, error) {
	trimmed := strings.TrimSpace(raw)
	for _, role := range roles {
		if strings.EqualFold(trimmed, string(role)) {
			return role, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

func (r Role) Is(other Role) bool {
	return strings.EqualFold(strings.TrimSpace(string(r)), string(other))
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "Percentage"
	DiscountFixed      DiscountType = "Fixed"
)

func ParseDiscountType(raw string) (DiscountType, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(trimmed, string(DiscountPercentage)):
		return DiscountPercentage, nil
	case strings.EqualFold(trimmed, string(DiscountFixed)):
		return DiscountFixed, nil
	}
	return "", fmt.Errorf("unknown discount type %q", raw)
}
