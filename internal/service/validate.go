package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/pricing"
	"possystem/backend/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseRole(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// validateRequest runs struct tag validation and folds failures into
// store.ErrInvalidInput.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return store.InvalidInput("%v", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return store.InvalidInput("%s", strings.Join(parts, "; "))
}

func checkPositive(name string, value decimal.Decimal) error {
	if !value.IsPositive() {
		return store.InvalidInput("%s must be greater than zero", name)
	}
	return nil
}

func checkNonNegative(name string, value decimal.Decimal) error {
	if value.IsNegative() {
		return store.InvalidInput("%s must not be negative", name)
	}
	return nil
}

func checkTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return store.InvalidInput("tax rate %s must be between 0 and 1", rate)
	}
	return checkPlaces("tax rate", rate, pricing.RatePlaces)
}

func checkPlaces(name string, value decimal.Decimal, places int32) error {
	if !pricing.Fits(value, places) {
		return store.InvalidInput("%s %s has more than %d decimal places", name, value, places)
	}
	return nil
}
