package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"possystem/backend/internal/auth"
	"possystem/backend/internal/cache"
	"possystem/backend/internal/domain"
	"possystem/backend/internal/ledger"
	"possystem/backend/internal/metrics"
	"possystem/backend/internal/pricing"
	"possystem/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const defaultCacheTTL = 10 * time.Minute

type Service struct {
	gateway  store.Gateway
	ledger   *ledger.Ledger
	guard    *auth.Guard
	verifier auth.PasswordVerifier
	txCache  cache.TransactionCache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(gateway store.Gateway, txCache cache.TransactionCache, cacheTTL time.Duration, m *metrics.Metrics) *Service {
	if txCache == nil {
		txCache = cache.NoopTransactionCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	if m == nil {
		m = metrics.New()
	}

	return &Service{
		gateway:  gateway,
		ledger:   ledger.New(),
		guard:    auth.NewGuard(gateway),
		verifier: auth.BcryptVerifier{},
		txCache:  txCache,
		cacheTTL: cacheTTL,
		metrics:  m,
		now:      time.Now,
	}
}

// EmployeeLogin checks credentials against the stored bcrypt hash and returns
// the employee's role and id.
func (s *Service) EmployeeLogin(ctx context.Context, firstName string, lastName string, password string) (domain.Role, int64, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return "", 0, store.NotFound(store.EntityEmployee, strings.TrimSpace(firstName+" "+lastName))
	}

	employee, err := s.gateway.FindEmployeeByName(ctx, firstName, lastName)
	if err != nil {
		return "", 0, err
	}
	if !s.verifier.Verify(password, employee.PasswordHash) {
		return "", 0, auth.ErrIncorrectPassword
	}

	role := employee.Role
	if parsed, err := domain.ParseRole(string(role)); err == nil {
		role = parsed
	}
	return role, employee.ID, nil
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.EmployeeID == 0 {
		return auth.ErrAdminRequired
	}
	return s.guard.RequireAdmin(ctx, actor.EmployeeID)
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		return domain.Store{}, err
	}
	if err := checkNonNegative("balance", req.Balance); err != nil {
		return domain.Store{}, err
	}
	if err := checkTaxRate(req.TaxRate); err != nil {
		return domain.Store{}, err
	}

	var created *domain.Store
	err := s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		created, err = tx.InsertStore(ctx, domain.Store{
			Name:    req.Name,
			Balance: pricing.Round(req.Balance),
			TaxRate: req.TaxRate,
		})
		return err
	})
	if err != nil {
		return domain.Store{}, err
	}
	return *created, nil
}

// SetStoreTaxRate changes the rate used by future purchases and
// return-by-transaction refunds. Committed transactions keep their own rate.
func (s *Service) SetStoreTaxRate(ctx context.Context, storeID int64, rate decimal.Decimal) (domain.Store, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}
	if err := checkTaxRate(rate); err != nil {
		return domain.Store{}, err
	}

	var updated *domain.Store
	err := s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockStore(ctx, storeID); err != nil {
			return err
		}
		if err := tx.SetStoreTaxRate(ctx, storeID, rate); err != nil {
			return err
		}
		var err error
		updated, err = tx.GetStore(ctx, storeID)
		return err
	})
	if err != nil {
		return domain.Store{}, err
	}
	return *updated, nil
}

func (s *Service) CreatePart(ctx context.Context, req domain.PartCreateRequest) (domain.Part, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Part{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		return domain.Part{}, err
	}
	if err := checkPositive("price", req.Price); err != nil {
		return domain.Part{}, err
	}

	var created *domain.Part
	err := s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockStore(ctx, req.StoreID); err != nil {
			return err
		}
		storeID := req.StoreID
		var err error
		created, err = tx.InsertPart(ctx, domain.Part{
			Name:     req.Name,
			Price:    pricing.Round(req.Price),
			StoreID:  &storeID,
			Quantity: req.Quantity,
		})
		return err
	})
	if err != nil {
		return domain.Part{}, err
	}
	return *created, nil
}

// UpdatePartPrice affects future sales and direct returns only; committed
// lines carry the unit price they were sold at.
func (s *Service) UpdatePartPrice(ctx context.Context, partID int64, price decimal.Decimal) (domain.Part, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Part{}, err
	}
	if err := checkPositive("price", price); err != nil {
		return domain.Part{}, err
	}

	var updated *domain.Part
	err := s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		parts, err := tx.LockParts(ctx, []int64{partID})
		if err != nil {
			return err
		}
		if _, ok := parts[partID]; !ok {
			return store.NotFound(store.EntityPart, partID)
		}
		if err := tx.SetPartPrice(ctx, partID, pricing.Round(price)); err != nil {
			return err
		}
		updated, err = tx.GetPart(ctx, partID)
		return err
	})
	if err != nil {
		return domain.Part{}, err
	}
	return *updated, nil
}

func (s *Service) RestockPart(ctx context.Context, req domain.RestockRequest) (domain.Part, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Part{}, err
	}
	if err := validateRequest(req); err != nil {
		return domain.Part{}, err
	}

	var updated *domain.Part
	err := s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockStore(ctx, req.StoreID); err != nil {
			return err
		}
		if err := s.ledger.Credit(ctx, tx, req.StoreID, req.PartID, req.Quantity); err != nil {
			return err
		}
		var err error
		updated, err = tx.GetPart(ctx, req.PartID)
		return err
	})
	if err != nil {
		return domain.Part{}, err
	}
	return *updated, nil
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Employee{}, err
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := validateRequest(req); err != nil {
		return domain.Employee{}, err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return domain.Employee{}, store.InvalidInput("%v", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.Employee{}, err
	}

	var created *domain.Employee
	err = s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		if req.StoreID != nil {
			if _, err := tx.LockStore(ctx, *req.StoreID); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.InsertEmployee(ctx, domain.Employee{
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         role,
			StoreID:      req.StoreID,
			PasswordHash: hash,
		})
		return err
	})
	if err != nil {
		return domain.Employee{}, err
	}
	return *created, nil
}

func (s *Service) CreateDiscount(ctx context.Context, req domain.DiscountCreateRequest) (domain.Discount, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Discount{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateRequest(req); err != nil {
		return domain.Discount{}, err
	}
	kind, err := domain.ParseDiscountType(req.Type)
	if err != nil {
		return domain.Discount{}, store.InvalidInput("%v", err)
	}
	if err := checkPositive("discount value", req.Value); err != nil {
		return domain.Discount{}, err
	}
	if err := checkPlaces("discount value", req.Value, pricing.Places); err != nil {
		return domain.Discount{}, err
	}
	if kind == domain.DiscountPercentage && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		return domain.Discount{}, store.InvalidInput("percentage discount %s exceeds 100", req.Value)
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return domain.Discount{}, store.InvalidInput("discount ends before it starts")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	var created *domain.Discount
	err = s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		if req.StoreID != nil {
			if _, err := tx.LockStore(ctx, *req.StoreID); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.InsertDiscount(ctx, domain.Discount{
			Name:        req.Name,
			Description: req.Description,
			Type:        kind,
			Value:       req.Value,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			StoreID:     req.StoreID,
			Active:      active,
		})
		return err
	})
	if err != nil {
		return domain.Discount{}, err
	}
	return *created, nil
}

func (s *Service) SetDiscountActive(ctx context.Context, discountID int64, active bool) (domain.Discount, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Discount{}, err
	}

	var updated *domain.Discount
	err := s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		updated, err = tx.SetDiscountActive(ctx, discountID, active)
		return err
	})
	if err != nil {
		return domain.Discount{}, err
	}
	return *updated, nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.gateway.ListStores(ctx)
}

func (s *Service) GetStore(ctx context.Context, storeID int64) (domain.Store, error) {
	shop, err := s.gateway.GetStore(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}
	return *shop, nil
}

func (s *Service) ListParts(ctx context.Context, storeID int64) ([]domain.Part, error) {
	if _, err := s.gateway.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	return s.gateway.ListPartsByStore(ctx, storeID)
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return s.gateway.ListEmployees(ctx)
}

// ListActiveDiscounts returns the discounts a sale at storeID could use today.
func (s *Service) ListActiveDiscounts(ctx context.Context, storeID int64) ([]domain.Discount, error) {
	if _, err := s.gateway.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	all, err := s.gateway.ListDiscounts(ctx)
	if err != nil {
		return nil, err
	}

	today := s.now().UTC()
	active := make([]domain.Discount, 0, len(all))
	for _, d := range all {
		if pricing.Applicable(d, storeID, today) {
			active = append(active, d)
		}
	}
	return active, nil
}

// normalizeLines merges lines naming the same part, keeping first-seen order.
// A non-positive line or a merged quantity above domain.MaxLineQuantity is
// rejected before it can reach the ledger.
func normalizeLines(lines []domain.LineRequest) ([]domain.LineRequest, error) {
	agg := make(map[int64]int, len(lines))
	order := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 || line.Quantity > domain.MaxLineQuantity {
			return nil, store.InvalidInput("quantity %d for part %d must be between 1 and %d", line.Quantity, line.PartID, domain.MaxLineQuantity)
		}
		if _, seen := agg[line.PartID]; !seen {
			order = append(order, line.PartID)
		}
		if agg[line.PartID] > domain.MaxLineQuantity-line.Quantity {
			return nil, store.InvalidInput("merged quantity for part %d exceeds %d", line.PartID, domain.MaxLineQuantity)
		}
		agg[line.PartID] += line.Quantity
	}

	normalized := make([]domain.LineRequest, 0, len(order))
	for _, id := range order {
		normalized = append(normalized, domain.LineRequest{PartID: id, Quantity: agg[id]})
	}
	return normalized, nil
}

func partIDs(lines []domain.LineRequest) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.PartID)
	}
	return ids
}

func (s *Service) observe(operation string, startedAt time.Time, total decimal.Decimal, err error) {
	if err != nil {
		s.metrics.ObserveRejection(operation, err)
		if metrics.Reason(err) == "internal" && !errors.Is(err, context.Canceled) {
			log.Printf("[service] WARN: %s failed: %v", operation, err)
		}
		return
	}
	s.metrics.ObserveCommit(operation, total.InexactFloat64(), startedAt)
}
