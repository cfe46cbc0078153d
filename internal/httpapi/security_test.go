package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"possystem/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)

	for i := 0; i < 6; i++ {
		body := strings.NewReader(`{"first_name":"Ada","last_name":"Admin","password":"wrong-pass"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body)
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"first_name":"%s","last_name":"x","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestClerkTokenCannotReachAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	clerk := loginAsClerk(t, api)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/employees"},
		{http.MethodPost, "/api/v1/returns"},
		{http.MethodPost, "/api/v1/parts"},
		{http.MethodGet, "/api/v1/return-records"},
	} {
		res := doJSON(t, api, route.method, route.path, clerk, nil)
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s %s expected 403, got %d", route.method, route.path, res.Code)
		}
	}
}

func TestForgedRoleClaimIsRecheckedByService(t *testing.T) {
	api := newTestAPI(t)

	// A validly signed token whose role claim says Admin but whose subject is
	// the clerk still cannot process returns.
	forged, err := api.auth.sign(2, domain.RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	res := doJSON(t, api, http.MethodPost, "/api/v1/returns", forged, map[string]any{
		"store_id": 1,
		"parts":    []map[string]any{{"pno": 1, "quantity": 1}},
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 from the service guard, got %d: %s", res.Code, res.Body.String())
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	res := httptest.NewRecorder()
	writeServiceError(res, fmt.Errorf("pq: relation \"stores\" does not exist"))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "relation") {
		t.Fatalf("expected internal detail to be masked, got %s", res.Body.String())
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	api := newTestAPI(t)
	clerk := loginAsClerk(t, api)
	doJSON(t, api, http.MethodPost, "/api/v1/purchases", clerk, map[string]any{
		"store_id": 1,
		"parts":    []map[string]any{{"pno": 3, "quantity": 1}},
	})

	res := doJSON(t, api, http.MethodGet, "/metrics", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `pos_transactions_committed_total{operation="purchase"} 1`) {
		t.Fatalf("expected committed purchase counter in metrics output")
	}
}
