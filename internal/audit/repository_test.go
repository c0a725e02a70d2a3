package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/database"
	_ "github.com/h-mdm/hmdm-server-sub001/migrations"
)

func testRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRecord_FillsDefaults(t *testing.T) {
	repo := testRepository(t)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	e := &Entry{
		Action:      ActionDevicePush,
		TargetType:  TargetDevice,
		TargetID:    7,
		MessageType: "lockDevice",
		Priority:    "URGENT",
		Recipients:  1,
	}
	if err := repo.Record(context.Background(), e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if e.ID == "" {
		t.Error("Record() did not assign an ID")
	}
	if !e.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, fixed)
	}

	page, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 1 || len(page.Entries) != 1 {
		t.Fatalf("List() = %d/%d entries, want 1/1", len(page.Entries), page.Total)
	}
	got := page.Entries[0]
	if got.ID != e.ID || got.MessageType != "lockDevice" || got.Priority != "URGENT" || got.TargetID != 7 {
		t.Errorf("entry = %+v", got)
	}
	if got.RequestID != "" || got.Error != "" {
		t.Errorf("optional fields = %q/%q, want empty", got.RequestID, got.Error)
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Errorf("stored CreatedAt = %v, want %v", got.CreatedAt, fixed)
	}
}

func TestRecord_RequiresActionAndTarget(t *testing.T) {
	repo := testRepository(t)

	if err := repo.Record(context.Background(), &Entry{TargetType: TargetDevice}); err == nil {
		t.Error("Record() without action expected error")
	}
	if err := repo.Record(context.Background(), &Entry{Action: ActionDevicePush}); err == nil {
		t.Error("Record() without target type expected error")
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Action: ActionDevicePush, TargetType: TargetDevice, TargetID: 1, MessageType: "reboot", Priority: "NORMAL", Recipients: 1},
		{Action: ActionConfigurationPush, TargetType: TargetConfiguration, TargetID: 10, MessageType: "configUpdated", Priority: "NORMAL", Recipients: 12},
		{Action: ActionDevicePush, TargetType: TargetDevice, TargetID: 2, MessageType: "wipeDevice", Priority: "URGENT", Recipients: 1, Error: "store offline", RequestID: "req-1"},
		// Sub-second timestamps must still sort after whole seconds.
		{Action: ActionDevicePush, TargetType: TargetDevice, TargetID: 1, MessageType: "runApp", Priority: "NORMAL", Recipients: 1},
	}
	offsets := []time.Duration{0, time.Second, 2 * time.Second, 2*time.Second + 500*time.Millisecond}
	for i := range entries {
		entries[i].CreatedAt = base.Add(offsets[i])
		if err := repo.Record(ctx, &entries[i]); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string // message types, newest first
		total  int
	}{
		{"all", Filter{}, []string{"runApp", "wipeDevice", "configUpdated", "reboot"}, 4},
		{"by action", Filter{Action: ActionConfigurationPush}, []string{"configUpdated"}, 1},
		{"by target", Filter{TargetType: TargetDevice, TargetID: 1}, []string{"runApp", "reboot"}, 2},
		{"failed only", Filter{FailedOnly: true}, []string{"wipeDevice"}, 1},
		{"paged", Filter{Limit: 2, Offset: 1}, []string{"wipeDevice", "configUpdated"}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if page.Total != tt.total {
				t.Errorf("Total = %d, want %d", page.Total, tt.total)
			}
			if len(page.Entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(page.Entries), len(tt.want))
			}
			for i, e := range page.Entries {
				if e.MessageType != tt.want[i] {
					t.Errorf("entry %d = %s, want %s", i, e.MessageType, tt.want[i])
				}
			}
		})
	}

	failed, err := repo.List(ctx, Filter{FailedOnly: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if e := failed.Entries[0]; e.Error != "store offline" || e.RequestID != "req-1" {
		t.Errorf("failed entry = %+v", e)
	}
}

func TestList_ClampsPaging(t *testing.T) {
	repo := testRepository(t)

	tests := []struct {
		in, wantLimit, wantOffset int
		offset                    int
	}{
		{in: 0, wantLimit: defaultLimit},
		{in: -5, wantLimit: defaultLimit},
		{in: 1000, wantLimit: maxLimit},
		{in: 10, wantLimit: 10, offset: -3, wantOffset: 0},
	}
	for _, tt := range tests {
		page, err := repo.List(context.Background(), Filter{Limit: tt.in, Offset: tt.offset})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if page.Limit != tt.wantLimit || page.Offset != tt.wantOffset {
			t.Errorf("List(limit=%d, offset=%d) paging = %d/%d, want %d/%d",
				tt.in, tt.offset, page.Limit, page.Offset, tt.wantLimit, tt.wantOffset)
		}
		if page.Entries == nil {
			t.Error("Entries = nil, want empty slice")
		}
	}
}
