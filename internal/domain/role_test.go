package domain

import "testing"

func TestParseRoleIsCaseInsensitive(t *testing.T) {
	for _, raw := range []string{"admin", "ADMIN", " Admin "} {
		role, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if role != RoleAdmin {
			t.Fatalf("expected Admin for %q, got %q", raw, role)
		}
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestRoleIsMatchesStoredCasing(t *testing.T) {
	if !Role("admin").Is(RoleAdmin) {
		t.Fatalf("expected lower-case admin to match")
	}
	if Role("clerk").Is(RoleAdmin) {
		t.Fatalf("expected clerk not to match admin")
	}
}

func TestParseDiscountType(t *testing.T) {
	kind, err := ParseDiscountType("percentage")
	if err != nil || kind != DiscountPercentage {
		t.Fatalf("expected Percentage, got %q (%v)", kind, err)
	}
	if _, err := ParseDiscountType("bogo"); err == nil {
		t.Fatalf("expected unknown discount type to be rejected")
	}
}
