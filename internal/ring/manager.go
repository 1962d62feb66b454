// Package ring holds the in-memory eight-slot projection for the
// currently focused app and notifies subscribers when it changes.
package ring

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"deskbroker/internal/model"
	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

// Store is the subset of *store.Store the RingManager needs.
type Store interface {
	SaveAppWithSlots(ctx context.Context, app model.AppRecord, specs [8]model.ActionSpec) error
	LoadSlots(ctx context.Context, appName string) ([]model.RingSlot, error)
	UpdateSlotAction(ctx context.Context, appName string, position int, kind model.ActionKind, actionName string, payload []byte) error
}

// Projection is the eight-slot view of the currently focused app; a nil
// entry means that position is empty.
type Projection [8]*model.RingSlot

// Manager owns the transient projection for whichever app is currently
// focused, plus a single-publisher/many-subscriber change channel.
type Manager struct {
	store Store
	log   *logging.Logger

	mu         sync.RWMutex
	appName    string
	projection Projection

	subMu       sync.Mutex
	subscribers []chan struct{}
}

func New(store Store) *Manager {
	return &Manager{store: store, log: logging.NewComponentLogger("RingManager")}
}

// Subscribe registers a new change listener. The returned channel
// receives a value (non-blocking, buffered) whenever the projection is
// replaced; it carries no payload, callers re-read via Get.
func (m *Manager) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.subMu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.subMu.Unlock()
	return ch
}

func (m *Manager) publish() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Load reads every slot persisted for appName, sanitises action names,
// and replaces the in-memory projection. A never-seen app yields an
// all-empty projection, not an error.
func (m *Manager) Load(ctx context.Context, appName string) error {
	slots, err := m.store.LoadSlots(ctx, appName)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "load ring slots")
	}

	var projection Projection
	for i := range slots {
		slot := slots[i]
		slot.ActionName = sanitizeActionName(slot.ActionName)
		if slot.Position < 0 || slot.Position > 7 {
			continue
		}
		projection[slot.Position] = &slot
	}

	m.mu.Lock()
	m.appName = appName
	m.projection = projection
	m.mu.Unlock()

	m.publish()
	return nil
}

// Save atomically persists eight new slots for appName and reloads the
// projection from the store.
func (m *Manager) Save(ctx context.Context, appName, displayName string, specs [8]model.ActionSpec, toolServerName string) error {
	if err := validatePositions(specs); err != nil {
		return brokerrors.Wrap(brokerrors.KindValidation, err, "save ring")
	}

	app := model.AppRecord{
		AppName:        appName,
		DisplayName:    displayName,
		ToolServerName: toolServerName,
	}
	if err := m.store.SaveAppWithSlots(ctx, app, specs); err != nil {
		return err
	}
	return m.Load(ctx, appName)
}

func validatePositions(specs [8]model.ActionSpec) error {
	seen := make(map[int]bool, 8)
	for _, spec := range specs {
		if spec.Position < 0 || spec.Position > 7 || seen[spec.Position] {
			return fmt.Errorf("positions must form a permutation of 0..7")
		}
		seen[spec.Position] = true
	}
	return nil
}

// Get returns the slot at position, if any, for the currently loaded app.
func (m *Manager) Get(position int) (*model.RingSlot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if position < 0 || position > 7 {
		return nil, false
	}
	slot := m.projection[position]
	return slot, slot != nil
}

// CurrentApp returns the app name the projection currently reflects.
func (m *Manager) CurrentApp() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appName
}

// UpdatePosition overwrites one slot's action in place, persisting
// through the store and updating the in-memory projection, then
// notifying subscribers.
func (m *Manager) UpdatePosition(ctx context.Context, position int, spec model.ActionSpec) error {
	if position < 0 || position > 7 {
		return brokerrors.New(brokerrors.KindValidation, "position out of range")
	}

	m.mu.RLock()
	appName := m.appName
	m.mu.RUnlock()
	if appName == "" {
		return brokerrors.New(brokerrors.KindValidation, "no app currently loaded")
	}

	if err := m.store.UpdateSlotAction(ctx, appName, position, spec.Kind, spec.ActionName, spec.ActionPayload); err != nil {
		return err
	}

	m.mu.Lock()
	if existing := m.projection[position]; existing != nil {
		existing.Kind = spec.Kind
		existing.ActionName = sanitizeActionName(spec.ActionName)
		existing.ActionPayload = spec.ActionPayload
	}
	m.mu.Unlock()

	m.publish()
	return nil
}

// Clear resets the in-memory projection to all-empty without touching
// persisted state, used when focus moves away with nothing loaded yet.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.appName = ""
	m.projection = Projection{}
	m.mu.Unlock()
	m.publish()
}

// sanitizeActionName strips control characters, emoji, and any
// character outside letters, digits, space, and a small punctuation set.
func sanitizeActionName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isAllowedActionRune(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isAllowedActionRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
		return true
	}
	switch r {
	case '.', ',', '-', '_', '(', ')', '[', ']', ':', ';', '!', '?':
		return true
	}
	return false
}
