package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/metrics"
	"possystem/backend/internal/service"
	"possystem/backend/internal/store/memory"
)

// newTestAPI builds a full API with a seeded in-memory store, real AuthManager
// and real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	m := metrics.New()
	svc := service.New(repo, nil, time.Minute, m)
	auth := NewAuthManager("test-secret-key", time.Hour, svc)

	return New(svc, auth, m.Handler(), "*")
}

func login(t *testing.T, api *API, first string, last string, password string) domain.LoginResponse {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{FirstName: first, LastName: last, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login as %s %s failed, status %d: %s", first, last, res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return login(t, api, "Ada", "Admin", "admin123").AccessToken
}

func loginAsClerk(t *testing.T, api *API) string {
	t.Helper()
	return login(t, api, "Carl", "Clerk", "clerk123").AccessToken
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)

	resp := login(t, api, "ada", "admin", "admin123")
	if resp.Role != domain.RoleAdmin || resp.EmployeeID != 1 {
		t.Fatalf("unexpected login response %+v", resp)
	}

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{FirstName: "Ada", LastName: "Admin", Password: "wrong-password"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "admin123"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", res.Code)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/v1/stores", "/api/v1/stores/1/parts", "/api/v1/transactions/1"} {
		res := doJSON(t, api, http.MethodGet, path, "", nil)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, res.Code)
		}
	}
	res := doJSON(t, api, http.MethodGet, "/api/v1/stores", "not-a-token", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", res.Code)
	}
}

func TestPurchaseThenReturnByTransaction(t *testing.T) {
	api := newTestAPI(t)
	clerk := loginAsClerk(t, api)
	admin := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/purchases", clerk, map[string]any{
		"store_id": 1,
		"parts": []map[string]any{
			{"pno": 1, "quantity": 3},
			{"pno": 2, "quantity": 2},
		},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for purchase, got %d: %s", res.Code, res.Body.String())
	}
	var sale domain.TransactionResult
	if err := json.NewDecoder(res.Body).Decode(&sale); err != nil {
		t.Fatalf("decode purchase: %v", err)
	}
	if !sale.Total.Equal(decimal.RequireFromString("97.20")) || sale.Transaction.EmployeeID != 2 {
		t.Fatalf("unexpected purchase result total=%s employee=%d", sale.Total, sale.Transaction.EmployeeID)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/transactions/1", clerk, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for transaction details, got %d", res.Code)
	}
	var details domain.TransactionDetails
	if err := json.NewDecoder(res.Body).Decode(&details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if len(details.PartsSold) != 2 || details.EmployeeName != "Carl Clerk" {
		t.Fatalf("unexpected details %+v", details)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/returns/by-transaction", clerk, domain.ReturnByTransactionRequest{TransactionID: sale.Transaction.ID})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected clerk to be refused returns, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/returns/by-transaction", admin, domain.ReturnByTransactionRequest{TransactionID: sale.Transaction.ID})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for return, got %d: %s", res.Code, res.Body.String())
	}
	var refund domain.TransactionResult
	if err := json.NewDecoder(res.Body).Decode(&refund); err != nil {
		t.Fatalf("decode return: %v", err)
	}
	if !refund.StoreBalance.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("expected balance back at 500, got %s", refund.StoreBalance)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/returns/by-transaction", admin, domain.ReturnByTransactionRequest{TransactionID: sale.Transaction.ID})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a second return, got %d", res.Code)
	}
}

func TestPurchaseErrorsMapToStatus(t *testing.T) {
	api := newTestAPI(t)
	clerk := loginAsClerk(t, api)

	cases := []struct {
		name    string
		payload map[string]any
		status  int
	}{
		{"oversell", map[string]any{"store_id": 1, "parts": []map[string]any{{"pno": 4, "quantity": 5}}}, http.StatusUnprocessableEntity},
		{"unknown part", map[string]any{"store_id": 1, "parts": []map[string]any{{"pno": 40, "quantity": 1}}}, http.StatusNotFound},
		{"unknown store", map[string]any{"store_id": 9, "parts": []map[string]any{{"pno": 1, "quantity": 1}}}, http.StatusNotFound},
		{"empty cart", map[string]any{"store_id": 1, "parts": []map[string]any{}}, http.StatusBadRequest},
		{"someone else", map[string]any{"store_id": 1, "employee_id": 1, "parts": []map[string]any{{"pno": 1, "quantity": 1}}}, http.StatusForbidden},
	}
	for _, tc := range cases {
		res := doJSON(t, api, http.MethodPost, "/api/v1/purchases", clerk, tc.payload)
		if res.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.status, res.Code, res.Body.String())
		}
	}
}

func TestAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	clerk := loginAsClerk(t, api)
	admin := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/stores", clerk, map[string]any{"store_name": "Harbor", "balance": "0", "tax_rate": "0.05"})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected clerk store creation to be refused, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodPost, "/api/v1/stores", admin, map[string]any{"store_name": "Harbor", "balance": "0", "tax_rate": "0.05"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for store creation, got %d: %s", res.Code, res.Body.String())
	}
	res = doJSON(t, api, http.MethodPost, "/api/v1/stores", admin, map[string]any{"store_name": "harbor", "tax_rate": "0.05"})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate store, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPatch, "/api/v1/stores/1/tax-rate", admin, map[string]any{"tax_rate": "0.10"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for tax change, got %d: %s", res.Code, res.Body.String())
	}
	res = doJSON(t, api, http.MethodPatch, "/api/v1/parts/1/price", admin, map[string]any{"price": "21.00"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for price change, got %d: %s", res.Code, res.Body.String())
	}
	res = doJSON(t, api, http.MethodPost, "/api/v1/parts/restock", admin, map[string]any{"store_id": 1, "pno": 4, "quantity": 2})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for restock, got %d: %s", res.Code, res.Body.String())
	}
	res = doJSON(t, api, http.MethodPatch, "/api/v1/discounts/1/active", admin, map[string]any{"is_active": false})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for discount toggle, got %d: %s", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/stores/1/discounts", clerk, nil)
	var listed map[string][]domain.Discount
	if err := json.NewDecoder(res.Body).Decode(&listed); err != nil {
		t.Fatalf("decode discounts: %v", err)
	}
	if len(listed["discounts"]) != 0 {
		t.Fatalf("expected no active discounts after toggle, got %+v", listed)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/stores/1/summary", clerk, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for summary, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodGet, "/api/v1/return-records?store_id=abc", admin, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad store_id, got %d", res.Code)
	}
}

func TestParseIDPath(t *testing.T) {
	id, action, err := parseIDPath("/api/v1/stores/12/parts", "/api/v1/stores/")
	if err != nil || id != 12 || action != "parts" {
		t.Fatalf("unexpected parse %d %q %v", id, action, err)
	}
	if _, _, err := parseIDPath("/api/v1/stores/x", "/api/v1/stores/"); err == nil {
		t.Fatalf("expected non-numeric id to fail")
	}
	if _, _, err := parseIDPath("/api/v1/stores/1/a/b", "/api/v1/stores/"); err == nil {
		t.Fatalf("expected nested action to fail")
	}
}
