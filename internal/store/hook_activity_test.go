package store

import "testing"

func TestInsertHookActivity_RoundTrip(t *testing.T) {
	db, err := OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if err := db.InsertHookActivity(HookActivityRecord{
		HookName:         "SessionStart",
		Status:           "ok",
		SurfacedMemories: 3,
		EstimatedTokens:  120,
	}); err != nil {
		t.Fatalf("InsertHookActivity: %v", err)
	}
	if err := db.InsertHookActivity(HookActivityRecord{
		HookName:     "UserPromptSubmit",
		Status:       "error",
		ErrorMessage: "index unavailable",
	}); err != nil {
		t.Fatalf("InsertHookActivity: %v", err)
	}

	got, err := db.GetRecentHookActivity(10)
	if err != nil {
		t.Fatalf("GetRecentHookActivity: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetRecentHookActivity() returned %d rows, want 2", len(got))
	}
	// Newest first.
	if got[0].HookName != "UserPromptSubmit" || got[0].ErrorMessage != "index unavailable" {
		t.Errorf("got[0] = %+v, want UserPromptSubmit with error message", got[0])
	}
	if got[1].HookName != "SessionStart" || got[1].SurfacedMemories != 3 || got[1].EstimatedTokens != 120 {
		t.Errorf("got[1] = %+v, want SessionStart with surfaced=3 tokens=120", got[1])
	}
}

func TestInsertHookActivity_DefaultsEmptyStatus(t *testing.T) {
	db, err := OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if err := db.InsertHookActivity(HookActivityRecord{HookName: "Stop"}); err != nil {
		t.Fatalf("InsertHookActivity: %v", err)
	}
	got, err := db.GetRecentHookActivity(1)
	if err != nil {
		t.Fatalf("GetRecentHookActivity: %v", err)
	}
	if len(got) != 1 || got[0].Status != "empty" {
		t.Fatalf("GetRecentHookActivity() = %+v, want one row with status \"empty\"", got)
	}
}

func TestGetRecentHookActivity_PrunesPastCap(t *testing.T) {
	db, err := OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	for i := 0; i < maxHookActivityRows+5; i++ {
		if err := db.InsertHookActivity(HookActivityRecord{HookName: "SessionStart", Status: "ok", TimestampUnix: int64(i + 1)}); err != nil {
			t.Fatalf("InsertHookActivity[%d]: %v", i, err)
		}
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM hook_activity`).Scan(&count); err != nil {
		t.Fatalf("count hook_activity: %v", err)
	}
	if count != maxHookActivityRows {
		t.Errorf("hook_activity row count = %d, want %d", count, maxHookActivityRows)
	}
}
