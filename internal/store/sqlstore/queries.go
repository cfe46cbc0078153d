package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// queries runs every gateway statement against either the pool or an open
// transaction.
type queries struct {
	q    querier
	d    Dialect
	inTx bool
}

const (
	storeColumns       = `store_id, store_name, balance, tax_rate`
	partColumns        = `pno, name, price, store_id, quantity`
	employeeColumns    = `employee_id, first_name, last_name, role, store_id, password_hash`
	discountColumns    = `discount_id, discount_name, description, discount_type, discount_value, start_date, end_date, store_id, is_active`
	transactionColumns = `transaction_id, employee_id, store_id, total_price, tax_rate, discount_id, transaction_date`
	lineColumns        = `transaction_detail_id, transaction_id, pno, quantity, unit_price`
	returnColumns      = `return_id, transaction_id, original_transaction_id, total_refund, store_id, employee_id, return_date`
)

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.q.ExecContext(ctx, q.d.rebind(query), args...)
	return res, q.d.classify(err)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := q.q.QueryContext(ctx, q.d.rebind(query), args...)
	return rows, q.d.classify(err)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.d.rebind(query), args...)
}

func (q *queries) lockClause() string {
	if !q.inTx {
		return ""
	}
	return q.d.ForUpdate
}

func scanStore(row scanner) (*domain.Store, error) {
	var s domain.Store
	if err := row.Scan(&s.ID, &s.Name, &s.Balance, &s.TaxRate); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanPart(row scanner) (*domain.Part, error) {
	var p domain.Part
	var storeID sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &storeID, &p.Quantity); err != nil {
		return nil, err
	}
	p.StoreID = int64Ptr(storeID)
	return &p, nil
}

func scanEmployee(row scanner) (*domain.Employee, error) {
	var e domain.Employee
	var role string
	var storeID sql.NullInt64
	if err := row.Scan(&e.ID, &e.FirstName, &e.LastName, &role, &storeID, &e.PasswordHash); err != nil {
		return nil, err
	}
	e.Role = domain.Role(role)
	e.StoreID = int64Ptr(storeID)
	return &e, nil
}

func scanDiscount(row scanner) (*domain.Discount, error) {
	var d domain.Discount
	var kind string
	var start, end sql.NullTime
	var storeID sql.NullInt64
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &kind, &d.Value, &start, &end, &storeID, &d.Active); err != nil {
		return nil, err
	}
	d.Type = domain.DiscountType(kind)
	if parsed, err := domain.ParseDiscountType(kind); err == nil {
		d.Type = parsed
	}
	d.StartDate = timePtr(start)
	d.EndDate = timePtr(end)
	d.StoreID = int64Ptr(storeID)
	return &d, nil
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var discountID sql.NullInt64
	if err := row.Scan(&t.ID, &t.EmployeeID, &t.StoreID, &t.TotalPrice, &t.TaxRate, &discountID, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.DiscountID = int64Ptr(discountID)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func scanLine(row scanner) (*domain.TransactionLine, error) {
	var l domain.TransactionLine
	if err := row.Scan(&l.ID, &l.TransactionID, &l.PartID, &l.Quantity, &l.UnitPrice); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanReturn(row scanner) (*domain.ReturnRecord, error) {
	var r domain.ReturnRecord
	var original sql.NullInt64
	if err := row.Scan(&r.ID, &r.TransactionID, &original, &r.TotalRefund, &r.StoreID, &r.EmployeeID, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.OriginalTransactionID = int64Ptr(original)
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// collect drains rows with scan, closing them before returning.
func collect[T any](rows *sql.Rows, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0, 16)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func notFound(err error, entity string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.NotFound(entity, id)
	}
	return err
}

func (q *queries) GetStore(ctx context.Context, storeID int64) (*domain.Store, error) {
	s, err := scanStore(q.queryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE store_id = ?`, storeID))
	if err != nil {
		return nil, notFound(err, store.EntityStore, storeID)
	}
	return s, nil
}

func (q *queries) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := q.query(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY store_id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanStore)
}

func (q *queries) GetPart(ctx context.Context, partID int64) (*domain.Part, error) {
	p, err := scanPart(q.queryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE pno = ?`, partID))
	if err != nil {
		return nil, notFound(err, store.EntityPart, partID)
	}
	return p, nil
}

func (q *queries) ListPartsByStore(ctx context.Context, storeID int64) ([]domain.Part, error) {
	rows, err := q.query(ctx, `SELECT `+partColumns+` FROM parts WHERE store_id = ? ORDER BY pno`, storeID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPart)
}

func (q *queries) GetEmployee(ctx context.Context, employeeID int64) (*domain.Employee, error) {
	e, err := scanEmployee(q.queryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE employee_id = ?`, employeeID))
	if err != nil {
		return nil, notFound(err, store.EntityEmployee, employeeID)
	}
	return e, nil
}

func (q *queries) FindEmployeeByName(ctx context.Context, firstName string, lastName string) (*domain.Employee, error) {
	e, err := scanEmployee(q.queryRow(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE lower(first_name) = lower(?) AND lower(last_name) = lower(?)
		ORDER BY employee_id
		LIMIT 1
	`, firstName, lastName))
	if err != nil {
		return nil, notFound(err, store.EntityEmployee, firstName+" "+lastName)
	}
	return e, nil
}

func (q *queries) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := q.query(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY employee_id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEmployee)
}

func (q *queries) GetDiscount(ctx context.Context, discountID int64) (*domain.Discount, error) {
	d, err := scanDiscount(q.queryRow(ctx, `SELECT `+discountColumns+` FROM discounts WHERE discount_id = ?`, discountID))
	if err != nil {
		return nil, notFound(err, store.EntityDiscount, discountID)
	}
	return d, nil
}

func (q *queries) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	rows, err := q.query(ctx, `SELECT `+discountColumns+` FROM discounts ORDER BY discount_id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanDiscount)
}

func (q *queries) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	return q.getTransaction(ctx, transactionID, "")
}

func (q *queries) getTransaction(ctx context.Context, transactionID int64, lock string) (*domain.Transaction, error) {
	t, err := scanTransaction(q.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = ?`+lock, transactionID))
	if err != nil {
		return nil, notFound(err, store.EntityTransaction, transactionID)
	}

	rows, err := q.query(ctx, `SELECT `+lineColumns+` FROM transaction_details WHERE transaction_id = ? ORDER BY transaction_detail_id`, transactionID)
	if err != nil {
		return nil, err
	}
	lines, err := collect(rows, scanLine)
	if err != nil {
		return nil, err
	}
	t.Lines = lines
	return t, nil
}

func (q *queries) ListTransactionsByStore(ctx context.Context, storeID int64) ([]domain.Transaction, error) {
	rows, err := q.query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE store_id = ? ORDER BY transaction_id`, storeID)
	if err != nil {
		return nil, err
	}
	transactions, err := collect(rows, scanTransaction)
	if err != nil {
		return nil, err
	}

	lineRows, err := q.query(ctx, `
		SELECT d.transaction_detail_id, d.transaction_id, d.pno, d.quantity, d.unit_price
		FROM transaction_details d
		JOIN transactions t ON t.transaction_id = d.transaction_id
		WHERE t.store_id = ?
		ORDER BY d.transaction_detail_id
	`, storeID)
	if err != nil {
		return nil, err
	}
	lines, err := collect(lineRows, scanLine)
	if err != nil {
		return nil, err
	}

	byTx := make(map[int64][]domain.TransactionLine, len(transactions))
	for _, line := range lines {
		byTx[line.TransactionID] = append(byTx[line.TransactionID], line)
	}
	for i := range transactions {
		transactions[i].Lines = byTx[transactions[i].ID]
		if transactions[i].Lines == nil {
			transactions[i].Lines = []domain.TransactionLine{}
		}
	}
	return transactions, nil
}

func (q *queries) GetReturnRecordByTransaction(ctx context.Context, transactionID int64) (*domain.ReturnRecord, error) {
	r, err := scanReturn(q.queryRow(ctx, `SELECT `+returnColumns+` FROM return_records WHERE transaction_id = ?`, transactionID))
	if err != nil {
		return nil, notFound(err, store.EntityReturn, transactionID)
	}
	return r, nil
}

func (q *queries) ListReturnRecords(ctx context.Context, storeID int64) ([]domain.ReturnRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if storeID == 0 {
		rows, err = q.query(ctx, `SELECT `+returnColumns+` FROM return_records ORDER BY return_id`)
	} else {
		rows, err = q.query(ctx, `SELECT `+returnColumns+` FROM return_records WHERE store_id = ? ORDER BY return_id`, storeID)
	}
	if err != nil {
		return nil, err
	}
	return collect(rows, scanReturn)
}

func (q *queries) LockStore(ctx context.Context, storeID int64) (*domain.Store, error) {
	s, err := scanStore(q.queryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE store_id = ?`+q.lockClause(), storeID))
	if err != nil {
		return nil, notFound(err, store.EntityStore, storeID)
	}
	return s, nil
}

func (q *queries) LockParts(ctx context.Context, partIDs []int64) (map[int64]domain.Part, error) {
	ids := slices.Clone(partIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	out := make(map[int64]domain.Part, len(ids))
	for _, id := range ids {
		p, err := scanPart(q.queryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE pno = ?`+q.lockClause(), id))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = *p
	}
	return out, nil
}

func (q *queries) SetPartQuantity(ctx context.Context, partID int64, quantity int) error {
	res, err := q.exec(ctx, `UPDATE parts SET quantity = ? WHERE pno = ?`, quantity, partID)
	if err != nil {
		return err
	}
	return expectOne(res, store.EntityPart, partID)
}

func (q *queries) SetPartPrice(ctx context.Context, partID int64, price decimal.Decimal) error {
	res, err := q.exec(ctx, `UPDATE parts SET price = ? WHERE pno = ?`, price, partID)
	if err != nil {
		return err
	}
	return expectOne(res, store.EntityPart, partID)
}

// AdjustStoreBalance adds delta in Go decimal arithmetic; sqlite would do the
// addition in REAL.
func (q *queries) AdjustStoreBalance(ctx context.Context, storeID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	current, err := q.LockStore(ctx, storeID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := current.Balance.Add(delta)
	res, err := q.exec(ctx, `UPDATE stores SET balance = ? WHERE store_id = ?`, balance, storeID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := expectOne(res, store.EntityStore, storeID); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (q *queries) SetStoreTaxRate(ctx context.Context, storeID int64, rate decimal.Decimal) error {
	res, err := q.exec(ctx, `UPDATE stores SET tax_rate = ? WHERE store_id = ?`, rate, storeID)
	if err != nil {
		return err
	}
	return expectOne(res, store.EntityStore, storeID)
}

func (q *queries) LockTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	return q.getTransaction(ctx, transactionID, q.lockClause())
}

func (q *queries) HasReturnFor(ctx context.Context, originalTransactionID int64) (bool, error) {
	var count int
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM return_records WHERE original_transaction_id = ?`, originalTransactionID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q *queries) InsertTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	err := q.queryRow(ctx, `
		INSERT INTO transactions (employee_id, store_id, total_price, tax_rate, discount_id, transaction_date)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING transaction_id
	`, tx.EmployeeID, tx.StoreID, tx.TotalPrice, tx.TaxRate, nullInt64(tx.DiscountID), tx.CreatedAt).Scan(&tx.ID)
	if err != nil {
		return nil, q.d.classify(err)
	}

	lines := make([]domain.TransactionLine, 0, len(tx.Lines))
	for _, line := range tx.Lines {
		line.TransactionID = tx.ID
		err := q.queryRow(ctx, `
			INSERT INTO transaction_details (transaction_id, pno, quantity, unit_price)
			VALUES (?, ?, ?, ?)
			RETURNING transaction_detail_id
		`, line.TransactionID, line.PartID, line.Quantity, line.UnitPrice).Scan(&line.ID)
		if err != nil {
			return nil, q.d.classify(err)
		}
		lines = append(lines, line)
	}
	tx.Lines = lines
	return &tx, nil
}

func (q *queries) InsertReturnRecord(ctx context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	err := q.queryRow(ctx, `
		INSERT INTO return_records (transaction_id, original_transaction_id, total_refund, store_id, employee_id, return_date)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING return_id
	`, record.TransactionID, nullInt64(record.OriginalTransactionID), record.TotalRefund, record.StoreID, record.EmployeeID, record.CreatedAt).Scan(&record.ID)
	if err != nil {
		return nil, q.d.classify(err)
	}
	return &record, nil
}

func (q *queries) InsertStore(ctx context.Context, s domain.Store) (*domain.Store, error) {
	err := q.queryRow(ctx, `
		INSERT INTO stores (store_name, balance, tax_rate)
		VALUES (?, ?, ?)
		RETURNING store_id
	`, s.Name, s.Balance, s.TaxRate).Scan(&s.ID)
	if err != nil {
		return nil, q.d.classify(err)
	}
	return &s, nil
}

func (q *queries) InsertPart(ctx context.Context, part domain.Part) (*domain.Part, error) {
	err := q.queryRow(ctx, `
		INSERT INTO parts (name, price, store_id, quantity)
		VALUES (?, ?, ?, ?)
		RETURNING pno
	`, part.Name, part.Price, nullInt64(part.StoreID), part.Quantity).Scan(&part.ID)
	if err != nil {
		return nil, q.d.classify(err)
	}
	return &part, nil
}

func (q *queries) InsertEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	err := q.queryRow(ctx, `
		INSERT INTO employees (first_name, last_name, role, store_id, password_hash)
		VALUES (?, ?, ?, ?, ?)
		RETURNING employee_id
	`, employee.FirstName, employee.LastName, string(employee.Role), nullInt64(employee.StoreID), employee.PasswordHash).Scan(&employee.ID)
	if err != nil {
		return nil, q.d.classify(err)
	}
	return &employee, nil
}

func (q *queries) InsertDiscount(ctx context.Context, discount domain.Discount) (*domain.Discount, error) {
	err := q.queryRow(ctx, `
		INSERT INTO discounts (discount_name, description, discount_type, discount_value, start_date, end_date, store_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING discount_id
	`, discount.Name, discount.Description, string(discount.Type), discount.Value,
		nullTime(discount.StartDate), nullTime(discount.EndDate), nullInt64(discount.StoreID), discount.Active).Scan(&discount.ID)
	if err != nil {
		return nil, q.d.classify(err)
	}
	return &discount, nil
}

func (q *queries) SetDiscountActive(ctx context.Context, discountID int64, active bool) (*domain.Discount, error) {
	res, err := q.exec(ctx, `UPDATE discounts SET is_active = ? WHERE discount_id = ?`, active, discountID)
	if err != nil {
		return nil, err
	}
	if err := expectOne(res, store.EntityDiscount, discountID); err != nil {
		return nil, err
	}
	return q.GetDiscount(ctx, discountID)
}

func expectOne(res sql.Result, entity string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound(entity, id)
	}
	if affected > 1 {
		return fmt.Errorf("%w: %d rows updated for %s %d", store.ErrIntegrityViolation, affected, entity, id)
	}
	return nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}
