package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/quantumlife/watchtower/internal/core"
)

// testDB creates an in-memory database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func testMonitor(id string) *core.MonitorConfig {
	return &core.MonitorConfig{
		MonitorID: id,
		UserID:    "user-1",
		Name:      "Inbox watch",
		Rules: core.RuleSet{
			Keywords: []core.KeywordRule{
				{ID: "kw-1", Keyword: "urgent", Severity: core.SeverityCritical, Enabled: true},
			},
		},
		Polling: core.PollingSettings{MailboxEnabled: true},
	}
}

// =============================================================================
// DB Tests
// =============================================================================

func TestDB_Open_InMemory(t *testing.T) {
	db, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.conn == nil {
		t.Error("db.conn should not be nil")
	}
	if !db.isMemory {
		t.Error("db.isMemory should be true for in-memory database")
	}
}

func TestDB_Migrate_Idempotent(t *testing.T) {
	db := testDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// =============================================================================
// MonitorStore Tests
// =============================================================================

func TestMonitorStore_CreateAndGet(t *testing.T) {
	db := testDB(t)
	store := NewMonitorStore(db)

	cfg := testMonitor("mon-1")
	cfg.AutoReply = &core.AutoReplyConfig{
		Enabled:  true,
		Template: core.ReplyTemplate{Subject: "Re: {{subject}}", Body: "Got it."},
	}

	if err := store.Create(cfg); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByID("mon-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Inbox watch" {
		t.Errorf("Name = %v, want Inbox watch", got.Name)
	}
	if len(got.Rules.Keywords) != 1 || got.Rules.Keywords[0].Keyword != "urgent" {
		t.Errorf("Rules did not round-trip: %+v", got.Rules)
	}
	if got.AutoReply == nil || !got.AutoReply.Enabled {
		t.Errorf("AutoReply did not round-trip: %+v", got.AutoReply)
	}
	if !got.Polling.MailboxEnabled {
		t.Error("Polling.MailboxEnabled should be true")
	}
}

func TestMonitorStore_GetByID_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewMonitorStore(db)

	_, err := store.GetByID("nope")
	if !errors.Is(err, core.ErrMonitorNotFound) {
		t.Errorf("GetByID() error = %v, want ErrMonitorNotFound", err)
	}
}

func TestMonitorStore_CreateSeedsState(t *testing.T) {
	db := testDB(t)
	monitors := NewMonitorStore(db)
	states := NewStateStore(db)

	if err := monitors.Create(testMonitor("mon-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	state, err := states.Get("mon-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !state.IsEnabled {
		t.Error("new monitor state should be enabled")
	}
}

func TestMonitorStore_List(t *testing.T) {
	db := testDB(t)
	store := NewMonitorStore(db)

	for _, id := range []string{"mon-1", "mon-2"} {
		if err := store.Create(testMonitor(id)); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	monitors, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(monitors) != 2 {
		t.Fatalf("List() returned %d monitors, want 2", len(monitors))
	}
}

func TestMonitorStore_Update(t *testing.T) {
	db := testDB(t)
	store := NewMonitorStore(db)

	cfg := testMonitor("mon-1")
	if err := store.Create(cfg); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	cfg.Name = "Renamed"
	if err := store.Update(cfg); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.GetByID("mon-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name = %v, want Renamed", got.Name)
	}
}

func TestMonitorStore_Update_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewMonitorStore(db)

	err := store.Update(testMonitor("ghost"))
	if !errors.Is(err, core.ErrMonitorNotFound) {
		t.Errorf("Update() error = %v, want ErrMonitorNotFound", err)
	}
}

func TestMonitorStore_Delete_Cascades(t *testing.T) {
	db := testDB(t)
	monitors := NewMonitorStore(db)

	if err := monitors.Create(testMonitor("mon-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := monitors.Delete("mon-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM monitor_state").Scan(&count); err != nil {
		t.Fatalf("count state rows: %v", err)
	}
	if count != 0 {
		t.Errorf("state rows after delete = %d, want 0", count)
	}
}

// =============================================================================
// StateStore Tests
// =============================================================================

func TestStateStore_Get_MissingReturnsDefault(t *testing.T) {
	db := testDB(t)
	store := NewStateStore(db)

	state, err := store.Get("never-polled")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !state.IsEnabled {
		t.Error("default state should be enabled")
	}
	if len(state.ProcessedEventIDs) != 0 {
		t.Error("default state should have no processed IDs")
	}
}

func TestStateStore_SaveAndGet(t *testing.T) {
	db := testDB(t)
	store := NewStateStore(db)

	state := &core.MonitorRuntimeState{
		IsEnabled:         true,
		ProcessedEventIDs: []string{"ev-1", "ev-2"},
		EventsProcessed:   2,
		AlertsTriggered:   1,
		LastEventAt:       time.Now().UTC().Truncate(time.Second),
		MailboxWatermark:  "12345",
		CalendarWatermark: "2026-08-30T10:00:00Z",
		SentReplies: map[string][]time.Time{
			"a@example.com": {time.Now().UTC().Truncate(time.Second)},
		},
	}

	if err := store.Save("mon-1", state, core.DefaultProcessedWindow); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get("mon-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.EventsProcessed != 2 || got.AlertsTriggered != 1 {
		t.Errorf("counters did not round-trip: %+v", got)
	}
	if got.MailboxWatermark != "12345" {
		t.Errorf("MailboxWatermark = %v, want 12345", got.MailboxWatermark)
	}
	if got.CalendarWatermark != "2026-08-30T10:00:00Z" {
		t.Errorf("CalendarWatermark = %v", got.CalendarWatermark)
	}
	if len(got.ProcessedEventIDs) != 2 {
		t.Errorf("ProcessedEventIDs = %v, want 2 entries", got.ProcessedEventIDs)
	}
	if len(got.SentReplies["a@example.com"]) != 1 {
		t.Errorf("SentReplies did not round-trip: %+v", got.SentReplies)
	}
}

func TestStateStore_Save_TrimsProcessedWindow(t *testing.T) {
	db := testDB(t)
	store := NewStateStore(db)

	state := &core.MonitorRuntimeState{IsEnabled: true}
	for i := 0; i < 600; i++ {
		state.ProcessedEventIDs = append(state.ProcessedEventIDs, fmt.Sprintf("ev-%03d", i))
	}
	// Make the IDs distinguishable at the boundaries.
	state.ProcessedEventIDs[100] = "oldest-kept-boundary"
	state.ProcessedEventIDs[599] = "newest"

	if err := store.Save("mon-1", state, 500); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get("mon-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.ProcessedEventIDs) != 500 {
		t.Fatalf("window size = %d, want 500", len(got.ProcessedEventIDs))
	}
	if got.ProcessedEventIDs[0] != "oldest-kept-boundary" {
		t.Errorf("window should keep the most recent 500 entries, first = %v", got.ProcessedEventIDs[0])
	}
	if got.ProcessedEventIDs[499] != "newest" {
		t.Errorf("last entry = %v, want newest", got.ProcessedEventIDs[499])
	}
}

func TestStateStore_RecordPollError_PreservesState(t *testing.T) {
	db := testDB(t)
	store := NewStateStore(db)

	state := &core.MonitorRuntimeState{
		IsEnabled:         true,
		ProcessedEventIDs: []string{"ev-1"},
		MailboxWatermark:  "42",
	}
	if err := store.Save("mon-1", state, 500); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.RecordPollError("mon-1", "fetch failed"); err != nil {
		t.Fatalf("RecordPollError() error = %v", err)
	}

	got, err := store.Get("mon-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastPollError != "fetch failed" {
		t.Errorf("LastPollError = %v, want fetch failed", got.LastPollError)
	}
	if got.MailboxWatermark != "42" {
		t.Errorf("watermark changed on error record: %v", got.MailboxWatermark)
	}
	if len(got.ProcessedEventIDs) != 1 {
		t.Errorf("processed IDs changed on error record: %v", got.ProcessedEventIDs)
	}
}

func TestStateStore_RecordAuditAndRecent(t *testing.T) {
	db := testDB(t)
	store := NewStateStore(db)

	for i := 0; i < 3; i++ {
		result := &core.PollResult{
			MonitorID:     "mon-1",
			Success:       i != 1,
			EventsFetched: i,
			Source:        core.PollScheduled,
		}
		if i == 1 {
			result.Error = "source timeout"
		}
		if err := store.RecordAudit(result); err != nil {
			t.Fatalf("RecordAudit() error = %v", err)
		}
	}

	audits, err := store.RecentAudits("mon-1", 10)
	if err != nil {
		t.Fatalf("RecentAudits() error = %v", err)
	}
	if len(audits) != 3 {
		t.Fatalf("RecentAudits() returned %d rows, want 3", len(audits))
	}
	// Newest first.
	if audits[0].EventsFetched != 2 {
		t.Errorf("first audit EventsFetched = %d, want 2", audits[0].EventsFetched)
	}
	if audits[1].Error != "source timeout" {
		t.Errorf("middle audit Error = %v, want source timeout", audits[1].Error)
	}
}

// =============================================================================
// AlertStore Tests
// =============================================================================

func testAlert(id, monitorID string) *core.Alert {
	return &core.Alert{
		ID:               id,
		Severity:         core.SeverityWarning,
		Title:            "a@example.com: budget review",
		Message:          "please review the attached budget",
		EventID:          "ev-" + id,
		MatchedRuleNames: []string{"budget"},
		Timestamp:        time.Now().UTC(),
		SourceMonitorID:  monitorID,
	}
}

func TestAlertStore_CreateAndGet(t *testing.T) {
	db := testDB(t)
	store := NewAlertStore(db)

	if err := store.Create(testAlert("al-1", "mon-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByID("al-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Severity != core.SeverityWarning {
		t.Errorf("Severity = %v, want warning", got.Severity)
	}
	if len(got.MatchedRuleNames) != 1 || got.MatchedRuleNames[0] != "budget" {
		t.Errorf("MatchedRuleNames = %v", got.MatchedRuleNames)
	}
}

func TestAlertStore_GetByID_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewAlertStore(db)

	_, err := store.GetByID("nope")
	if !errors.Is(err, core.ErrAlertNotFound) {
		t.Errorf("GetByID() error = %v, want ErrAlertNotFound", err)
	}
}

func TestAlertStore_List_Filters(t *testing.T) {
	db := testDB(t)
	store := NewAlertStore(db)

	a1 := testAlert("al-1", "mon-1")
	a2 := testAlert("al-2", "mon-2")
	a3 := testAlert("al-3", "mon-1")
	a3.Acknowledged = true
	for _, a := range []*core.Alert{a1, a2, a3} {
		if err := store.Create(a); err != nil {
			t.Fatalf("Create(%s) error = %v", a.ID, err)
		}
	}

	byMonitor, err := store.List(ListFilter{MonitorID: "mon-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byMonitor) != 2 {
		t.Errorf("List(mon-1) returned %d alerts, want 2", len(byMonitor))
	}

	open, err := store.List(ListFilter{MonitorID: "mon-1", Unacknowledged: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(open) != 1 || open[0].ID != "al-1" {
		t.Errorf("unacknowledged list = %+v, want only al-1", open)
	}
}

func TestAlertStore_CreateBatch(t *testing.T) {
	db := testDB(t)
	store := NewAlertStore(db)

	alerts := []core.Alert{*testAlert("al-1", "mon-1"), *testAlert("al-2", "mon-1")}
	if err := store.CreateBatch(alerts); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	got, err := store.List(ListFilter{MonitorID: "mon-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("List() returned %d alerts, want 2", len(got))
	}
}

func TestAlertStore_Acknowledge(t *testing.T) {
	db := testDB(t)
	store := NewAlertStore(db)

	if err := store.Create(testAlert("al-1", "mon-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Acknowledge("al-1"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	got, err := store.GetByID("al-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.Acknowledged {
		t.Error("alert should be acknowledged")
	}

	if err := store.Acknowledge("missing"); !errors.Is(err, core.ErrAlertNotFound) {
		t.Errorf("Acknowledge(missing) error = %v, want ErrAlertNotFound", err)
	}
}
