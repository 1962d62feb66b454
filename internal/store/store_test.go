//go:build cgo
// +build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"deskbroker/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "broker.sqlite"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAppWithSlotsAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	app := model.AppRecord{AppName: "com.example.editor", DisplayName: "Editor"}
	var specs [8]model.ActionSpec
	for i := 0; i < 8; i++ {
		specs[i] = model.ActionSpec{Position: i, Kind: model.KindKeybind, ActionName: "Action", ActionPayload: []byte(`{"keys":["ctrl","s"]}`)}
	}

	if err := s.SaveAppWithSlots(ctx, app, specs); err != nil {
		t.Fatalf("save app with slots: %v", err)
	}

	slots, err := s.LoadSlots(ctx, app.AppName)
	if err != nil {
		t.Fatalf("load slots: %v", err)
	}
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(slots))
	}
	for i, slot := range slots {
		if slot.Position != i {
			t.Fatalf("slot %d out of order: position %d", i, slot.Position)
		}
		if slot.UsageCount != 0 || slot.LastUsedAt != nil {
			t.Fatalf("freshly saved slot should have no usage")
		}
	}
}

func TestSaveAppWithSlotsRejectsBadPositions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var specs [8]model.ActionSpec
	for i := 0; i < 8; i++ {
		specs[i] = model.ActionSpec{Position: 0, Kind: model.KindKeybind, ActionName: "Dup"}
	}
	err := s.SaveAppWithSlots(ctx, model.AppRecord{AppName: "bad"}, specs)
	if err == nil {
		t.Fatalf("expected validation error for duplicate positions")
	}
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	app := model.AppRecord{AppName: "com.example.editor"}
	var specs [8]model.ActionSpec
	for i := 0; i < 8; i++ {
		specs[i] = model.ActionSpec{Position: i, Kind: model.KindKeybind, ActionName: "Action"}
	}
	if err := s.SaveAppWithSlots(ctx, app, specs); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.RecordUsage(ctx, app.AppName, 3, time.Now()); err != nil {
		t.Fatalf("record usage: %v", err)
	}

	slots, err := s.LoadSlots(ctx, app.AppName)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if slots[3].UsageCount != 1 || slots[3].LastUsedAt == nil {
		t.Fatalf("expected slot 3 usage recorded, got %+v", slots[3])
	}

	if err := s.RecordUsage(ctx, app.AppName, 99, time.Now()); err == nil {
		t.Fatalf("expected not-found error for out-of-range position")
	}
}

func TestReorderSlotsPreservesPayload(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	app := model.AppRecord{AppName: "com.example.editor"}
	var specs [8]model.ActionSpec
	for i := 0; i < 8; i++ {
		specs[i] = model.ActionSpec{Position: i, Kind: model.KindKeybind, ActionName: "Action", ActionPayload: []byte{byte(i)}}
	}
	if err := s.SaveAppWithSlots(ctx, app, specs); err != nil {
		t.Fatalf("save: %v", err)
	}

	var newOrder [8]int
	for i := 0; i < 8; i++ {
		newOrder[i] = 7 - i
	}
	if err := s.ReorderSlots(ctx, app.AppName, newOrder); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	slots, err := s.LoadSlots(ctx, app.AppName)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, slot := range slots {
		if int(slot.ActionPayload[0]) != newOrder[i] {
			t.Fatalf("position %d: expected payload from old position %d, got %d", i, newOrder[i], slot.ActionPayload[0])
		}
	}
}

func TestRegistryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entry := model.RegistryCacheEntry{
		AppName:    "com.example.editor",
		Source:     model.SourcePrimaryRegistry,
		ServerName: "editor-tools",
		ServerJSON: []byte(`{"tools":{}}`),
		CachedAt:   time.Now(),
	}
	if err := s.SaveCacheEntry(ctx, entry); err != nil {
		t.Fatalf("save cache entry: %v", err)
	}

	got, err := s.GetCacheEntry(ctx, entry.AppName)
	if err != nil {
		t.Fatalf("get cache entry: %v", err)
	}
	if got == nil || got.ServerName != entry.ServerName {
		t.Fatalf("unexpected cache entry: %+v", got)
	}

	miss, err := s.GetCacheEntry(ctx, "com.example.unknown")
	if err != nil {
		t.Fatalf("get cache entry for miss: %v", err)
	}
	if miss != nil {
		t.Fatalf("expected nil for uncached app")
	}
}

func TestInteractionSweepExpires(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now()
	fresh := model.InteractionEvent{
		ID: "ev-1", AppName: "com.example.editor", InteractionType: "click",
		Timestamp: now, ExpiresAt: now.Add(time.Hour),
	}
	expired := model.InteractionEvent{
		ID: "ev-2", AppName: "com.example.editor", InteractionType: "click",
		Timestamp: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := s.InsertInteraction(ctx, fresh); err != nil {
		t.Fatalf("insert fresh: %v", err)
	}
	if err := s.InsertInteraction(ctx, expired); err != nil {
		t.Fatalf("insert expired: %v", err)
	}

	removed, err := s.SweepExpiredInteractions(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	events, err := s.RecentInteractions(ctx, "com.example.editor", now.Add(-3*time.Hour))
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-1" {
		t.Fatalf("expected only the fresh interaction to survive, got %+v", events)
	}
}

func TestSaveWorkflowWithEmbeddingRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	wf := model.SemanticWorkflow{ID: "wf-1", AppName: "com.example.editor", WorkflowText: "saved a file"}
	emb := model.WorkflowEmbedding{ID: "emb-1", WorkflowID: wf.ID, AppName: wf.AppName, Embedding: []float32{0.1, 0.2}}

	if err := s.SaveWorkflowWithEmbedding(ctx, wf, emb); err == nil {
		t.Fatalf("expected dimension validation error")
	}
}

func TestClusterCreateAndIncrement(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cluster, err := s.CreateCluster(ctx, "com.example.editor", 0, "saving files")
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if cluster.WorkflowCount != 1 {
		t.Fatalf("expected workflow count 1, got %d", cluster.WorkflowCount)
	}

	if err := s.IncrementClusterCount(ctx, cluster.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
}
