package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
)

// Store keeps the whole dataset behind one mutex. A unit of work runs against
// a cloned state that replaces the live one only on commit.
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) GetStore(ctx context.Context, storeID int64) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetStore(ctx, storeID)
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListStores(ctx)
}

func (s *Store) GetPart(ctx context.Context, partID int64) (*domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetPart(ctx, partID)
}

func (s *Store) ListPartsByStore(ctx context.Context, storeID int64) ([]domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListPartsByStore(ctx, storeID)
}

func (s *Store) GetEmployee(ctx context.Context, employeeID int64) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetEmployee(ctx, employeeID)
}

func (s *Store) FindEmployeeByName(ctx context.Context, firstName string, lastName string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.FindEmployeeByName(ctx, firstName, lastName)
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListEmployees(ctx)
}

func (s *Store) GetDiscount(ctx context.Context, discountID int64) (*domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetDiscount(ctx, discountID)
}

func (s *Store) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListDiscounts(ctx)
}

func (s *Store) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetTransaction(ctx, transactionID)
}

func (s *Store) ListTransactionsByStore(ctx context.Context, storeID int64) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListTransactionsByStore(ctx, storeID)
}

func (s *Store) GetReturnRecordByTransaction(ctx context.Context, transactionID int64) (*domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetReturnRecordByTransaction(ctx, transactionID)
}

func (s *Store) ListReturnRecords(ctx context.Context, storeID int64) ([]domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListReturnRecords(ctx, storeID)
}

// seedEmployees builds the initial accounts for dev/demo mode. Passwords are
// read from SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD; the dev defaults are
// only used with a warning.
func seedEmployees(storeID int64) []domain.Employee {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	clerkPwd := envOr("SEED_CLERK_PASSWORD", "clerk123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CLERK_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD to override.")
	}

	employees := make([]domain.Employee, 0, 2)
	for _, e := range []struct {
		first    string
		last     string
		password string
		role     domain.Role
	}{
		{"Ada", "Admin", adminPwd, domain.RoleAdmin},
		{"Carl", "Clerk", clerkPwd, domain.RoleClerk},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(e.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s %s: %v", e.first, e.last, err)
		}
		id := storeID
		employees = append(employees, domain.Employee{
			FirstName:    e.first,
			LastName:     e.last,
			Role:         e.role,
			StoreID:      &id,
			PasswordHash: string(hash),
		})
	}
	return employees
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with one shop, a few parts, an admin, a clerk and
// a store-wide percentage discount.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		shop, err := tx.InsertStore(ctx, domain.Store{
			Name:    "Main Street",
			Balance: decimal.RequireFromString("500.00"),
			TaxRate: decimal.RequireFromString("0.08"),
		})
		if err != nil {
			return err
		}
		storeID := shop.ID

		for _, p := range []struct {
			name  string
			price string
			qty   int
		}{
			{"Widget", "20.00", 10},
			{"Gadget", "15.00", 5},
			{"Sprocket", "7.25", 40},
			{"Gear Set", "100.00", 3},
		} {
			if _, err := tx.InsertPart(ctx, domain.Part{
				Name:     p.name,
				Price:    decimal.RequireFromString(p.price),
				StoreID:  &storeID,
				Quantity: p.qty,
			}); err != nil {
				return err
			}
		}

		for _, e := range seedEmployees(storeID) {
			if _, err := tx.InsertEmployee(ctx, e); err != nil {
				return err
			}
		}

		_, err = tx.InsertDiscount(ctx, domain.Discount{
			Name:    "Spring Sale",
			Type:    domain.DiscountPercentage,
			Value:   decimal.NewFromInt(10),
			StoreID: &storeID,
			Active:  true,
		})
		return err
	})
	if err != nil {
		log.Fatalf("[memory-store] seed failed: %v", err)
	}
	return s
}

type sequences struct {
	store, part, employee, discount, transaction, line, ret int64
}

// state implements store.Tx directly; locks are no-ops because WithinTx
// already holds the store mutex exclusively.
type state struct {
	stores       map[int64]domain.Store
	parts        map[int64]domain.Part
	employees    map[int64]domain.Employee
	discounts    map[int64]domain.Discount
	transactions map[int64]domain.Transaction
	returns      map[int64]domain.ReturnRecord
	seq          sequences
}

func newState() *state {
	return &state{
		stores:       make(map[int64]domain.Store),
		parts:        make(map[int64]domain.Part),
		employees:    make(map[int64]domain.Employee),
		discounts:    make(map[int64]domain.Discount),
		transactions: make(map[int64]domain.Transaction),
		returns:      make(map[int64]domain.ReturnRecord),
	}
}

// clone copies the maps. Committed transactions and return records are never
// mutated, so their values (and line slices) can be shared.
func (st *state) clone() *state {
	return &state{
		stores:       cloneMap(st.stores),
		parts:        cloneMap(st.parts),
		employees:    cloneMap(st.employees),
		discounts:    cloneMap(st.discounts),
		transactions: cloneMap(st.transactions),
		returns:      cloneMap(st.returns),
		seq:          st.seq,
	}
}

func cloneMap[V any](src map[int64]V) map[int64]V {
	dst := make(map[int64]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func sortedValues[V any](src map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(src))
	for id, v := range src {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, src[id])
	}
	return out
}

func (st *state) GetStore(_ context.Context, storeID int64) (*domain.Store, error) {
	s, ok := st.stores[storeID]
	if !ok {
		return nil, store.NotFound(store.EntityStore, storeID)
	}
	return &s, nil
}

func (st *state) ListStores(_ context.Context) ([]domain.Store, error) {
	return sortedValues(st.stores, nil), nil
}

func (st *state) GetPart(_ context.Context, partID int64) (*domain.Part, error) {
	p, ok := st.parts[partID]
	if !ok {
		return nil, store.NotFound(store.EntityPart, partID)
	}
	return &p, nil
}

func (st *state) ListPartsByStore(_ context.Context, storeID int64) ([]domain.Part, error) {
	return sortedValues(st.parts, func(p domain.Part) bool {
		return p.StoreID != nil && *p.StoreID == storeID
	}), nil
}

func (st *state) GetEmployee(_ context.Context, employeeID int64) (*domain.Employee, error) {
	e, ok := st.employees[employeeID]
	if !ok {
		return nil, store.NotFound(store.EntityEmployee, employeeID)
	}
	return &e, nil
}

func (st *state) FindEmployeeByName(_ context.Context, firstName string, lastName string) (*domain.Employee, error) {
	for _, e := range sortedValues(st.employees, nil) {
		if strings.EqualFold(e.FirstName, firstName) && strings.EqualFold(e.LastName, lastName) {
			return &e, nil
		}
	}
	return nil, store.NotFound(store.EntityEmployee, firstName+" "+lastName)
}

func (st *state) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	return sortedValues(st.employees, nil), nil
}

func (st *state) GetDiscount(_ context.Context, discountID int64) (*domain.Discount, error) {
	d, ok := st.discounts[discountID]
	if !ok {
		return nil, store.NotFound(store.EntityDiscount, discountID)
	}
	return &d, nil
}

func (st *state) ListDiscounts(_ context.Context) ([]domain.Discount, error) {
	return sortedValues(st.discounts, nil), nil
}

func (st *state) GetTransaction(_ context.Context, transactionID int64) (*domain.Transaction, error) {
	t, ok := st.transactions[transactionID]
	if !ok {
		return nil, store.NotFound(store.EntityTransaction, transactionID)
	}
	t.Lines = slices.Clone(t.Lines)
	return &t, nil
}

func (st *state) ListTransactionsByStore(_ context.Context, storeID int64) ([]domain.Transaction, error) {
	out := sortedValues(st.transactions, func(t domain.Transaction) bool {
		return t.StoreID == storeID
	})
	for i := range out {
		out[i].Lines = slices.Clone(out[i].Lines)
	}
	return out, nil
}

func (st *state) GetReturnRecordByTransaction(_ context.Context, transactionID int64) (*domain.ReturnRecord, error) {
	for _, r := range st.returns {
		if r.TransactionID == transactionID {
			return &r, nil
		}
	}
	return nil, store.NotFound(store.EntityReturn, transactionID)
}

func (st *state) ListReturnRecords(_ context.Context, storeID int64) ([]domain.ReturnRecord, error) {
	return sortedValues(st.returns, func(r domain.ReturnRecord) bool {
		return storeID == 0 || r.StoreID == storeID
	}), nil
}

func (st *state) LockStore(ctx context.Context, storeID int64) (*domain.Store, error) {
	return st.GetStore(ctx, storeID)
}

func (st *state) LockParts(_ context.Context, partIDs []int64) (map[int64]domain.Part, error) {
	out := make(map[int64]domain.Part, len(partIDs))
	for _, id := range partIDs {
		if p, ok := st.parts[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (st *state) SetPartQuantity(_ context.Context, partID int64, quantity int) error {
	p, ok := st.parts[partID]
	if !ok {
		return store.NotFound(store.EntityPart, partID)
	}
	if quantity < 0 {
		return fmt.Errorf("%w: part %d quantity %d below zero", store.ErrIntegrityViolation, partID, quantity)
	}
	p.Quantity = quantity
	st.parts[partID] = p
	return nil
}

func (st *state) SetPartPrice(_ context.Context, partID int64, price decimal.Decimal) error {
	p, ok := st.parts[partID]
	if !ok {
		return store.NotFound(store.EntityPart, partID)
	}
	p.Price = price
	st.parts[partID] = p
	return nil
}

func (st *state) AdjustStoreBalance(_ context.Context, storeID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	s, ok := st.stores[storeID]
	if !ok {
		return decimal.Zero, store.NotFound(store.EntityStore, storeID)
	}
	s.Balance = s.Balance.Add(delta)
	st.stores[storeID] = s
	return s.Balance, nil
}

func (st *state) SetStoreTaxRate(_ context.Context, storeID int64, rate decimal.Decimal) error {
	s, ok := st.stores[storeID]
	if !ok {
		return store.NotFound(store.EntityStore, storeID)
	}
	s.TaxRate = rate
	st.stores[storeID] = s
	return nil
}

func (st *state) LockTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	return st.GetTransaction(ctx, transactionID)
}

func (st *state) HasReturnFor(_ context.Context, originalTransactionID int64) (bool, error) {
	for _, r := range st.returns {
		if r.OriginalTransactionID != nil && *r.OriginalTransactionID == originalTransactionID {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) InsertTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if _, ok := st.stores[tx.StoreID]; !ok {
		return nil, fmt.Errorf("%w: transaction references unknown store %d", store.ErrIntegrityViolation, tx.StoreID)
	}
	if _, ok := st.employees[tx.EmployeeID]; !ok {
		return nil, fmt.Errorf("%w: transaction references unknown employee %d", store.ErrIntegrityViolation, tx.EmployeeID)
	}
	if tx.DiscountID != nil {
		if _, ok := st.discounts[*tx.DiscountID]; !ok {
			return nil, fmt.Errorf("%w: transaction references unknown discount %d", store.ErrIntegrityViolation, *tx.DiscountID)
		}
	}

	st.seq.transaction++
	tx.ID = st.seq.transaction
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	lines := make([]domain.TransactionLine, 0, len(tx.Lines))
	for _, line := range tx.Lines {
		if _, ok := st.parts[line.PartID]; !ok {
			return nil, fmt.Errorf("%w: line references unknown part %d", store.ErrIntegrityViolation, line.PartID)
		}
		st.seq.line++
		line.ID = st.seq.line
		line.TransactionID = tx.ID
		lines = append(lines, line)
	}
	tx.Lines = lines
	st.transactions[tx.ID] = tx

	out := tx
	out.Lines = slices.Clone(lines)
	return &out, nil
}

func (st *state) InsertReturnRecord(_ context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error) {
	if _, ok := st.transactions[record.TransactionID]; !ok {
		return nil, fmt.Errorf("%w: return references unknown transaction %d", store.ErrIntegrityViolation, record.TransactionID)
	}
	for _, existing := range st.returns {
		if existing.TransactionID == record.TransactionID {
			return nil, fmt.Errorf("%w: return record for transaction %d already exists", store.ErrIntegrityViolation, record.TransactionID)
		}
		if record.OriginalTransactionID != nil && existing.OriginalTransactionID != nil &&
			*existing.OriginalTransactionID == *record.OriginalTransactionID {
			return nil, fmt.Errorf("%w: transaction %d already returned", store.ErrIntegrityViolation, *record.OriginalTransactionID)
		}
	}

	st.seq.ret++
	record.ID = st.seq.ret
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	st.returns[record.ID] = record
	return &record, nil
}

func (st *state) InsertStore(_ context.Context, s domain.Store) (*domain.Store, error) {
	for _, existing := range st.stores {
		if strings.EqualFold(existing.Name, s.Name) {
			return nil, fmt.Errorf("%w: store %q already exists", store.ErrIntegrityViolation, s.Name)
		}
	}
	st.seq.store++
	s.ID = st.seq.store
	st.stores[s.ID] = s
	return &s, nil
}

func (st *state) InsertPart(_ context.Context, part domain.Part) (*domain.Part, error) {
	if part.StoreID != nil {
		if _, ok := st.stores[*part.StoreID]; !ok {
			return nil, fmt.Errorf("%w: part references unknown store %d", store.ErrIntegrityViolation, *part.StoreID)
		}
	}
	st.seq.part++
	part.ID = st.seq.part
	st.parts[part.ID] = part
	return &part, nil
}

func (st *state) InsertEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.StoreID != nil {
		if _, ok := st.stores[*employee.StoreID]; !ok {
			return nil, fmt.Errorf("%w: employee references unknown store %d", store.ErrIntegrityViolation, *employee.StoreID)
		}
	}
	for _, existing := range st.employees {
		if strings.EqualFold(existing.FirstName, employee.FirstName) && strings.EqualFold(existing.LastName, employee.LastName) {
			return nil, fmt.Errorf("%w: employee %s already exists", store.ErrIntegrityViolation, employee.FullName())
		}
	}
	st.seq.employee++
	employee.ID = st.seq.employee
	st.employees[employee.ID] = employee
	return &employee, nil
}

func (st *state) InsertDiscount(_ context.Context, discount domain.Discount) (*domain.Discount, error) {
	if discount.StoreID != nil {
		if _, ok := st.stores[*discount.StoreID]; !ok {
			return nil, fmt.Errorf("%w: discount references unknown store %d", store.ErrIntegrityViolation, *discount.StoreID)
		}
	}
	st.seq.discount++
	discount.ID = st.seq.discount
	st.discounts[discount.ID] = discount
	return &discount, nil
}

func (st *state) SetDiscountActive(_ context.Context, discountID int64, active bool) (*domain.Discount, error) {
	d, ok := st.discounts[discountID]
	if !ok {
		return nil, store.NotFound(store.EntityDiscount, discountID)
	}
	d.Active = active
	st.discounts[discountID] = d
	return &d, nil
}
