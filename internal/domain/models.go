package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity bounds a single line, a merged line and a restock.
// MaxStockQuantity is the most a part can hold; it fits a 32-bit column.
const (
	MaxLineQuantity  = 1_000_000
	MaxStockQuantity = math.MaxInt32
)

type Store struct {
	ID      int64           `json:"store_id"`
	Name    string          `json:"store_name"`
	Balance decimal.Decimal `json:"balance"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

type StoreCreateRequest struct {
	Name    string          `json:"store_name" validate:"required,max=120"`
	Balance decimal.Decimal `json:"balance"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

type TaxRateUpdateRequest struct {
	TaxRate decimal.Decimal `json:"tax_rate"`
}

type Employee struct {
	ID           int64  `json:"employee_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         Role   `json:"role"`
	StoreID      *int64 `json:"store_id,omitempty"`
	PasswordHash string `json:"-"`
}

func (e Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

type EmployeeCreateRequest struct {
	FirstName string `json:"first_name" validate:"required,max=80"`
	LastName  string `json:"last_name" validate:"required,max=80"`
	Role      string `json:"role" validate:"required,role"`
	StoreID   *int64 `json:"store_id,omitempty" validate:"omitempty,gt=0"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
}

type Part struct {
	ID       int64           `json:"pno"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	StoreID  *int64          `json:"store_id,omitempty"`
	Quantity int             `json:"quantity"`
}

type PartCreateRequest struct {
	Name     string          `json:"name" validate:"required,max=120"`
	Price    decimal.Decimal `json:"price"`
	StoreID  int64           `json:"store_id" validate:"required,gt=0"`
	Quantity int             `json:"quantity" validate:"gte=0,lte=1000000"`
}

type PartPriceUpdateRequest struct {
	Price decimal.Decimal `json:"price"`
}

type RestockRequest struct {
	StoreID  int64 `json:"store_id" validate:"required,gt=0"`
	PartID   int64 `json:"pno" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0,lte=1000000"`
}

type Discount struct {
	ID          int64           `json:"discount_id"`
	Name        string          `json:"discount_name"`
	Description string          `json:"description,omitempty"`
	Type        DiscountType    `json:"discount_type"`
	Value       decimal.Decimal `json:"discount_value"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	StoreID     *int64          `json:"store_id,omitempty"`
	Active      bool            `json:"is_active"`
}

type DiscountCreateRequest struct {
	Name        string          `json:"discount_name" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=500"`
	Type        string          `json:"discount_type" validate:"required,oneof=Percentage Fixed percentage fixed"`
	Value       decimal.Decimal `json:"discount_value"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	StoreID     *int64          `json:"store_id,omitempty" validate:"omitempty,gt=0"`
	Active      *bool           `json:"is_active,omitempty"`
}

type DiscountActiveRequest struct {
	Active bool `json:"is_active"`
}

type Transaction struct {
	ID         int64             `json:"transaction_id"`
	EmployeeID int64             `json:"employee_id"`
	StoreID    int64             `json:"store_id"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	TaxRate    decimal.Decimal   `json:"tax_rate"`
	DiscountID *int64            `json:"discount_id,omitempty"`
	CreatedAt  time.Time         `json:"transaction_date"`
	Lines      []TransactionLine `json:"lines"`
}

// IsReturn reports whether the transaction moved money out of the store.
func (t Transaction) IsReturn() bool {
	return t.TotalPrice.IsNegative()
}

type TransactionLine struct {
	ID            int64           `json:"transaction_detail_id"`
	TransactionID int64           `json:"transaction_id"`
	PartID        int64           `json:"pno"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

type ReturnRecord struct {
	ID                    int64           `json:"return_id"`
	TransactionID         int64           `json:"transaction_id"`
	OriginalTransactionID *int64          `json:"original_transaction_id,omitempty"`
	TotalRefund           decimal.Decimal `json:"total_refund"`
	StoreID               int64           `json:"store_id"`
	EmployeeID            int64           `json:"employee_id"`
	CreatedAt             time.Time       `json:"return_date"`
}

type LineRequest struct {
	PartID   int64 `json:"pno" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0,lte=1000000"`
}

type PurchaseRequest struct {
	StoreID    int64         `json:"store_id" validate:"required,gt=0"`
	EmployeeID int64         `json:"employee_id" validate:"required,gt=0"`
	Lines      []LineRequest `json:"parts" validate:"required,min=1,max=200,dive"`
	DiscountID *int64        `json:"discount_id,omitempty" validate:"omitempty,gt=0"`
}

type ReturnRequest struct {
	StoreID    int64         `json:"store_id" validate:"required,gt=0"`
	EmployeeID int64         `json:"employee_id" validate:"required,gt=0"`
	Lines      []LineRequest `json:"parts" validate:"required,min=1,max=200,dive"`
}

type ReturnByTransactionRequest struct {
	TransactionID int64 `json:"transaction_id" validate:"required,gt=0"`
	EmployeeID    int64 `json:"employee_id" validate:"required,gt=0"`
}

type TransactionResult struct {
	Transaction  Transaction     `json:"transaction"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount_amount"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	StoreBalance decimal.Decimal `json:"store_balance"`
	ReturnRecord *ReturnRecord   `json:"return_record,omitempty"`
}

type PartSold struct {
	PartID     int64           `json:"pno"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type TransactionDetails struct {
	TransactionID         int64           `json:"transaction_id"`
	StoreID               int64           `json:"store_id"`
	StoreName             string          `json:"store_name"`
	EmployeeID            int64           `json:"employee_id"`
	EmployeeName          string          `json:"employee_name"`
	Date                  time.Time       `json:"transaction_date"`
	IsReturn              bool            `json:"is_return"`
	OriginalTransactionID *int64          `json:"original_transaction_id,omitempty"`
	PartsSold             []PartSold      `json:"parts_sold"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	DiscountName          string          `json:"discount_name,omitempty"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	TaxRate               decimal.Decimal `json:"tax_rate"`
	Tax                   decimal.Decimal `json:"tax"`
	Total                 decimal.Decimal `json:"total_price"`
}

type StoreSalesSummary struct {
	StoreID      int64           `json:"store_id"`
	StoreName    string          `json:"store_name"`
	Purchases    int             `json:"purchases"`
	Returns      int             `json:"returns"`
	GrossSales   decimal.Decimal `json:"gross_sales"`
	Refunds      decimal.Decimal `json:"refunds"`
	NetSales     decimal.Decimal `json:"net_sales"`
	StoreBalance decimal.Decimal `json:"store_balance"`
}

type LoginRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	EmployeeID  int64  `json:"employee_id"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	EmployeeID int64
	Role       Role
}
