package ring

import (
	"context"
	"testing"

	"deskbroker/internal/model"
)

type fakeStore struct {
	slots map[string][]model.RingSlot
}

func newFakeStore() *fakeStore {
	return &fakeStore{slots: make(map[string][]model.RingSlot)}
}

func (f *fakeStore) SaveAppWithSlots(_ context.Context, app model.AppRecord, specs [8]model.ActionSpec) error {
	slots := make([]model.RingSlot, 8)
	for i, spec := range specs {
		slots[i] = model.RingSlot{AppName: app.AppName, Position: spec.Position, Kind: spec.Kind, ActionName: spec.ActionName, ActionPayload: spec.ActionPayload}
	}
	f.slots[app.AppName] = slots
	return nil
}

func (f *fakeStore) LoadSlots(_ context.Context, appName string) ([]model.RingSlot, error) {
	return f.slots[appName], nil
}

func (f *fakeStore) UpdateSlotAction(_ context.Context, appName string, position int, kind model.ActionKind, actionName string, payload []byte) error {
	slots := f.slots[appName]
	for i := range slots {
		if slots[i].Position == position {
			slots[i].Kind = kind
			slots[i].ActionName = actionName
			slots[i].ActionPayload = payload
			return nil
		}
	}
	return nil
}

func sampleSpecs() [8]model.ActionSpec {
	var specs [8]model.ActionSpec
	for i := range specs {
		specs[i] = model.ActionSpec{Position: i, Kind: model.KindKeybind, ActionName: "Action \x00❤"}
	}
	return specs
}

func TestSaveThenLoadSanitizesNames(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	if err := m.Save(context.Background(), "chrome", "Chrome", sampleSpecs(), ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	slot, ok := m.Get(0)
	if !ok {
		t.Fatal("expected slot 0")
	}
	if slot.ActionName != "Action" {
		t.Fatalf("expected sanitized name %q, got %q", "Action", slot.ActionName)
	}
}

func TestLoadUnknownAppYieldsEmptyProjection(t *testing.T) {
	m := New(newFakeStore())
	if err := m.Load(context.Background(), "ghost"); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 8; i++ {
		if _, ok := m.Get(i); ok {
			t.Fatalf("expected position %d to be empty", i)
		}
	}
}

func TestSubscribeReceivesOnLoad(t *testing.T) {
	store := newFakeStore()
	m := New(store)
	ch := m.Subscribe()

	_ = m.Save(context.Background(), "chrome", "Chrome", sampleSpecs(), "")

	select {
	case <-ch:
	default:
		t.Fatal("expected a change notification")
	}
}

func TestUpdatePositionRequiresLoadedApp(t *testing.T) {
	m := New(newFakeStore())
	err := m.UpdatePosition(context.Background(), 0, model.ActionSpec{Position: 0, Kind: model.KindKeybind, ActionName: "x"})
	if err == nil {
		t.Fatal("expected error when no app is loaded")
	}
}

func TestUpdatePositionPersistsAndProjects(t *testing.T) {
	store := newFakeStore()
	m := New(store)
	_ = m.Save(context.Background(), "chrome", "Chrome", sampleSpecs(), "")

	err := m.UpdatePosition(context.Background(), 2, model.ActionSpec{Position: 2, Kind: model.KindToolPrompt, ActionName: "Search"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	slot, ok := m.Get(2)
	if !ok || slot.ActionName != "Search" || slot.Kind != model.KindToolPrompt {
		t.Fatalf("unexpected slot after update: %+v", slot)
	}
}

func TestClearResetsProjectionWithoutTouchingStore(t *testing.T) {
	store := newFakeStore()
	m := New(store)
	_ = m.Save(context.Background(), "chrome", "Chrome", sampleSpecs(), "")

	m.Clear()

	if _, ok := m.Get(0); ok {
		t.Fatal("expected projection cleared")
	}
	if len(store.slots["chrome"]) != 8 {
		t.Fatal("expected persisted slots to remain untouched")
	}
}

func TestSaveRejectsBadPositions(t *testing.T) {
	m := New(newFakeStore())
	specs := sampleSpecs()
	specs[7].Position = 0

	if err := m.Save(context.Background(), "chrome", "Chrome", specs, ""); err == nil {
		t.Fatal("expected validation error for duplicate positions")
	}
}
