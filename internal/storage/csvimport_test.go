package storage

import (
	"context"
	"strings"
	"testing"

	logx "cctvbot/pkg/logx"
)

func nopLog() logx.Logger { return logx.Nop() }

func TestImportCSV(t *testing.T) {
	t.Parallel()
	st := NewMemory(Config{}, nopLog())
	in := strings.Join([]string{
		"TIMESTAMP,FARM_LOCATION,INSPECTION_AREA,VIOLATION_TYPE,IMAGE_URL,REPLY",
		`07/01/25 08:15 AM,"KP2,Jabar,Indonesia",Shower Kandang,No boots,https://x/1.jpg,false`,
		`07/01/25 09:15 AM,"KP1,Jabar,Indonesia",Gate,No mask,,TRUE`,
		`,,,,,`,
		`07/01/25 10:00 AM,KP3,Gate`,
		`07/01/25 11:00 AM,KP3,Gate,No mask,,perhaps`,
	}, "\n")

	rep, err := ImportCSV(context.Background(), st, strings.NewReader(in), ImportOptions{HasHeader: true, Timezone: "Asia/Jakarta"})
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if rep.Imported != 2 || rep.Skipped != 3 || len(rep.Errors) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	all, _ := st.FetchAll(context.Background())
	if len(all) != 2 {
		t.Fatalf("len = %d", len(all))
	}
	if all[0].FactoryArea != "KP2,Jabar,Indonesia" || all[0].CreationTimezone != "Asia/Jakarta" || all[0].ID == "" {
		t.Fatalf("unexpected first row: %+v", all[0])
	}
	if !all[1].Resolved || all[1].ImageURL != "" {
		t.Fatalf("unexpected second row: %+v", all[1])
	}
}
