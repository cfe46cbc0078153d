package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"possystem/backend/internal/store"
)

func TestClassifyMapsConstraintCodes(t *testing.T) {
	for _, code := range []string{codeUniqueViolation, codeForeignKeyViolation, codeCheckViolation} {
		err := classify(&pgconn.PgError{Code: code, Message: "violates", ConstraintName: "c"})
		if !errors.Is(err, store.ErrIntegrityViolation) {
			t.Fatalf("code %s: expected integrity violation, got %v", code, err)
		}
	}

	other := errors.New("connection reset")
	if got := classify(other); got != other {
		t.Fatalf("expected non-postgres errors to pass through, got %v", got)
	}
}

func TestSerializationFailureIsRetryableThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create purchase: %w", &pgconn.PgError{Code: codeSerializationFailure})
	if !isSerializationFailure(wrapped) {
		t.Fatalf("expected wrapped 40001 to be retryable")
	}
	if isSerializationFailure(&pgconn.PgError{Code: codeUniqueViolation}) {
		t.Fatalf("expected unique violation not to be retryable")
	}
}
