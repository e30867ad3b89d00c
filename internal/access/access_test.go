package access

import (
	"errors"
	"testing"
)

func TestRequire(t *testing.T) {
	cases := []struct {
		name  string
		actor Actor
		role  Role
		want  error
	}{
		{"client as client", Actor{ID: "u1", IsClient: true}, RoleClient, nil},
		{"client as seller", Actor{ID: "u1", IsClient: true}, RoleSeller, ErrAccessDenied},
		{"dual role as seller", Actor{ID: "u1", IsClient: true, IsSeller: true}, RoleSeller, nil},
		{"anonymous", Actor{IsSeller: true}, RoleSeller, ErrAccessDenied},
		{"unknown role", Actor{ID: "u1", IsClient: true, IsSeller: true}, Role("admin"), ErrAccessDenied},
	}
	for _, tc := range cases {
		if got := Require(tc.actor, tc.role); !errors.Is(got, tc.want) {
			t.Errorf("%s: Require = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole("seller"); !ok || r != RoleSeller {
		t.Fatalf("ParseRole(seller) = %q, %v", r, ok)
	}
	if _, ok := ParseRole("vendor"); ok {
		t.Fatal("ParseRole(vendor) should fail")
	}
}
