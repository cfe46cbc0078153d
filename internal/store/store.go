package store

import (
	"context"

	"github.com/shopspring/decimal"

	"possystem/backend/internal/domain"
)

// Reader is the read side of the gateway. Every method is also available on
// Tx so reads inside a unit of work observe that unit's own writes.
type Reader interface {
	GetStore(ctx context.Context, storeID int64) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)
	GetPart(ctx context.Context, partID int64) (*domain.Part, error)
	ListPartsByStore(ctx context.Context, storeID int64) ([]domain.Part, error)
	GetEmployee(ctx context.Context, employeeID int64) (*domain.Employee, error)
	FindEmployeeByName(ctx context.Context, firstName string, lastName string) (*domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	GetDiscount(ctx context.Context, discountID int64) (*domain.Discount, error)
	ListDiscounts(ctx context.Context) ([]domain.Discount, error)
	GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	ListTransactionsByStore(ctx context.Context, storeID int64) ([]domain.Transaction, error)
	GetReturnRecordByTransaction(ctx context.Context, transactionID int64) (*domain.ReturnRecord, error)
	ListReturnRecords(ctx context.Context, storeID int64) ([]domain.ReturnRecord, error)
}

// Tx is the handle for one unit of work. Lock* methods serialize concurrent
// writers on the locked rows until the unit of work ends.
type Tx interface {
	Reader

	LockStore(ctx context.Context, storeID int64) (*domain.Store, error)
	// LockParts locks the given parts in ascending id order. Missing ids are
	// absent from the returned map.
	LockParts(ctx context.Context, partIDs []int64) (map[int64]domain.Part, error)
	SetPartQuantity(ctx context.Context, partID int64, quantity int) error
	SetPartPrice(ctx context.Context, partID int64, price decimal.Decimal) error
	AdjustStoreBalance(ctx context.Context, storeID int64, delta decimal.Decimal) (decimal.Decimal, error)
	SetStoreTaxRate(ctx context.Context, storeID int64, rate decimal.Decimal) error
	LockTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	HasReturnFor(ctx context.Context, originalTransactionID int64) (bool, error)
	InsertTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	InsertReturnRecord(ctx context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error)

	InsertStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	InsertPart(ctx context.Context, part domain.Part) (*domain.Part, error)
	InsertEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	InsertDiscount(ctx context.Context, discount domain.Discount) (*domain.Discount, error)
	SetDiscountActive(ctx context.Context, discountID int64, active bool) (*domain.Discount, error)
}

// Gateway hands out units of work. WithinTx commits when fn returns nil and
// rolls back on error or panic; nothing fn wrote is visible after a rollback.
type Gateway interface {
	Reader
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
