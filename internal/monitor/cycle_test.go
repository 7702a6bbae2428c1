package monitor

import (
	"testing"

	"cctvbot/internal/storage"
)

func TestDetect(t *testing.T) {
	t.Parallel()
	seen := map[string]struct{}{"a": {}, "gone": {}}
	fetched := []storage.Violation{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "b"}}

	fresh, next := Detect(seen, fetched)
	if len(fresh) != 2 || fresh[0].ID != "b" || fresh[1].ID != "c" {
		t.Fatalf("fresh = %+v", fresh)
	}
	if len(next) != 3 {
		t.Fatalf("next = %v, want exactly a,b,c", next)
	}
	if _, ok := next["gone"]; ok {
		t.Fatal("identities missing from the fetch must be forgotten")
	}
}

func TestDetectEmptySeen(t *testing.T) {
	t.Parallel()
	fresh, next := Detect(nil, []storage.Violation{{ID: "x1"}})
	if len(fresh) != 1 || len(next) != 1 {
		t.Fatalf("fresh=%v next=%v", fresh, next)
	}
}

func TestIdentityFallback(t *testing.T) {
	t.Parallel()
	v := storage.Violation{Timestamp: "t", FactoryArea: "a", InspectionSection: "s", ViolationType: "v"}
	if got := Identity(v); got != "t|a|s|v" {
		t.Fatalf("Identity = %q", got)
	}
	v.ID = "x1"
	if got := Identity(v); got != "x1" {
		t.Fatalf("Identity = %q", got)
	}
}
