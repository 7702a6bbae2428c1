package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "cctvbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "cctv.db"), Timezone: "Asia/Jakarta"}, nopLog())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	mem, err := Open(Config{Driver: "memory", Timezone: "Asia/Jakarta"}, nopLog())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	return map[string]Store{"sqlite": sq, "memory": mem}
}

func seed(t *testing.T, st Store, vs ...Violation) {
	t.Helper()
	for _, v := range vs {
		if _, err := st.InsertViolation(context.Background(), v); err != nil {
			t.Fatalf("InsertViolation: %v", err)
		}
	}
}

func TestFetchOrderAndSequence(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, st,
				Violation{ID: "a", Timestamp: "01/01/25 08:00 AM", FactoryArea: "KP1", ViolationType: "No boots"},
				Violation{ID: "b", Timestamp: "01/01/25 09:00 AM", FactoryArea: "KP2", ViolationType: "No mask", Resolved: true},
				Violation{ID: "c", Timestamp: "01/01/25 10:00 AM", FactoryArea: "KP2,Jabar", ViolationType: "No boots"},
			)
			all, err := st.FetchAll(ctx)
			if err != nil {
				t.Fatalf("FetchAll: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("len = %d", len(all))
			}
			for i, want := range []string{"a", "b", "c"} {
				if all[i].ID != want || all[i].SequenceIndex != i+1 {
					t.Fatalf("row %d = %s/%d, want %s/%d", i, all[i].ID, all[i].SequenceIndex, want, i+1)
				}
			}

			open, err := st.FetchUnresolved(ctx)
			if err != nil {
				t.Fatalf("FetchUnresolved: %v", err)
			}
			if len(open) != 2 || open[0].ID != "a" || open[1].ID != "c" || open[1].SequenceIndex != 2 {
				t.Fatalf("unexpected unresolved: %+v", open)
			}

			byType, _ := st.FetchByViolationType(ctx, "boots")
			if len(byType) != 2 {
				t.Fatalf("by type = %d, want 2", len(byType))
			}
			byArea, _ := st.FetchByFactoryArea(ctx, "kp2")
			if len(byArea) != 2 || byArea[0].ID != "b" {
				t.Fatalf("by area = %+v", byArea)
			}
		})
	}
}

func TestUpdateResolvedExcludesFromUnresolved(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, st, Violation{ID: "x1", Timestamp: "now", FactoryArea: "KP2"})

			ok, err := st.UpdateResolved(ctx, "x1", true)
			if err != nil || !ok {
				t.Fatalf("UpdateResolved = %v, %v", ok, err)
			}
			open, _ := st.FetchUnresolved(ctx)
			for _, v := range open {
				if v.ID == "x1" {
					t.Fatal("resolved record still listed as unresolved")
				}
			}
			ok, err = st.UpdateResolved(ctx, "missing", true)
			if err != nil || ok {
				t.Fatalf("UpdateResolved(missing) = %v, %v", ok, err)
			}
			ok, _ = st.UpdateResolved(ctx, "x1", false)
			if !ok {
				t.Fatal("toggling back should succeed")
			}
		})
	}
}

func TestInsertSynthetic(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			v, err := st.InsertSynthetic(ctx)
			if err != nil {
				t.Fatalf("InsertSynthetic: %v", err)
			}
			if v.ID == "" || v.Resolved {
				t.Fatalf("unexpected synthetic: %+v", v)
			}
			if v.FactoryArea != sampleViolation.FactoryArea || v.CreationTimezone != "Asia/Jakarta" {
				t.Fatalf("empty table should use the sample row: %+v", v)
			}
			if _, err := time.Parse(TimestampLayout, v.Timestamp); err != nil {
				t.Fatalf("timestamp %q not in layout: %v", v.Timestamp, err)
			}

			v2, err := st.InsertSynthetic(ctx)
			if err != nil {
				t.Fatalf("InsertSynthetic: %v", err)
			}
			if v2.ID == v.ID {
				t.Fatal("synthetic ids must be unique")
			}
			all, _ := st.FetchAll(ctx)
			if len(all) != 2 {
				t.Fatalf("len = %d, want 2", len(all))
			}
		})
	}
}

func TestSubscriberSoftDelete(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if ok, _ := st.AddAddress(ctx, "12ab5678"); ok {
				t.Fatal("non-digit address accepted")
			}
			if ok, _ := st.AddAddress(ctx, "1234567"); ok {
				t.Fatal("short address accepted")
			}
			if ok, err := st.AddAddress(ctx, "6581899220"); !ok || err != nil {
				t.Fatalf("AddAddress = %v, %v", ok, err)
			}
			if ok, _ := st.AddAddress(ctx, "6581899220"); ok {
				t.Fatal("duplicate add should report false")
			}
			if ok, _ := st.DeactivateAddress(ctx, "6597607916"); ok {
				t.Fatal("deactivating unknown address should report false")
			}
			if ok, _ := st.DeactivateAddress(ctx, "6581899220"); !ok {
				t.Fatal("deactivate failed")
			}
			active, _ := st.ListActiveAddresses(ctx)
			if len(active) != 0 {
				t.Fatalf("active = %v", active)
			}
			all, _ := st.ListSubscribers(ctx)
			if len(all) != 1 || all[0].Active {
				t.Fatalf("soft delete should keep the row: %+v", all)
			}
			if ok, _ := st.AddAddress(ctx, "6581899220"); !ok {
				t.Fatal("re-adding a deactivated address should reactivate it")
			}
			active, _ = st.ListActiveAddresses(ctx)
			if len(active) != 1 || active[0] != "6581899220" {
				t.Fatalf("active = %v", active)
			}
		})
	}
}

func TestSQLiteSkipsMalformedRows(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bad.db")}, nopLog())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	db := st.(*sqliteStore).db
	if _, err := db.Exec(`INSERT INTO violations(id, recorded_at, factory_area, resolved) VALUES ('good', 't', 'KP1', 'false'), ('bad', 't', 'KP1', 'maybe'), (NULL, '', '', 'false')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	all, err := st.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(all) != 1 || all[0].ID != "good" || all[0].SequenceIndex != 1 {
		t.Fatalf("unexpected rows: %+v", all)
	}
}

func TestSQLiteLegacyRowsWithoutID(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "legacy.db")}, nopLog())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	seed(t, st,
		Violation{Timestamp: "t1", FactoryArea: "KP1"},
		Violation{Timestamp: "t2", FactoryArea: "KP1"},
	)
	all, err := st.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(all) != 2 || all[0].ID != "" || all[1].ID != "" {
		t.Fatalf("id-less rows should load with empty ids: %+v", all)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "snowflake"}, nopLog()); err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("Open = %v", err)
	}
}

func TestValidAddress(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"6581899220":       true,
		"12345678":         true,
		"123456789012345":  true,
		"1234567":          false,
		"1234567890123456": false,
		"+6581899220":      false,
		"":                 false,
	}
	for addr, want := range tests {
		if got := ValidAddress(addr); got != want {
			t.Fatalf("ValidAddress(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestMemoryLogsSubscriberAndSyntheticChanges(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	m := NewMemory(Config{Timezone: "Asia/Jakarta"}, logx.NewWriter(&buf, "debug"))
	ctx := context.Background()

	v, err := m.InsertSynthetic(ctx)
	if err != nil {
		t.Fatalf("InsertSynthetic: %v", err)
	}
	_, _ = m.AddAddress(ctx, "6581899220")
	_, _ = m.DeactivateAddress(ctx, "6581899220")
	_, _ = m.AddAddress(ctx, "6581899220")

	out := buf.String()
	for _, want := range []string{`"comp":"storage.memory"`, `"id":"` + v.ID + `"`, "subscriber deactivated", "subscriber reactivated"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s: %s", want, out)
		}
	}
}
