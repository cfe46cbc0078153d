package cache

import (
	"context"
	"fmt"
	"time"

	"possystem/backend/internal/domain"
)

// TransactionCache holds rendered transaction details. Committed transactions
// never change, so entries only expire; nothing invalidates them.
type TransactionCache interface {
	Get(ctx context.Context, transactionID int64) (*domain.TransactionDetails, bool, error)
	Set(ctx context.Context, details *domain.TransactionDetails, ttl time.Duration) error
}

type NoopTransactionCache struct{}

func (NoopTransactionCache) Get(_ context.Context, _ int64) (*domain.TransactionDetails, bool, error) {
	return nil, false, nil
}

func (NoopTransactionCache) Set(_ context.Context, _ *domain.TransactionDetails, _ time.Duration) error {
	return nil
}

func transactionKey(transactionID int64) string {
	return fmt.Sprintf("pos:tx:%d", transactionID)
}
