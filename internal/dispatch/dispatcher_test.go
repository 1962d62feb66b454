package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"deskbroker/internal/model"
)

type fakeKeySender struct {
	mu            sync.Mutex
	pressed       []int
	released      []int
	failOnPress   bool
}

func (f *fakeKeySender) Press(_ context.Context, code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnPress {
		return errTestFailure
	}
	f.pressed = append(f.pressed, code)
	return nil
}

func (f *fakeKeySender) Release(_ context.Context, code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, code)
	return nil
}

var errTestFailure = &testError{"press failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

type fakeUsageTracker struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeUsageTracker) RecordUsage(_ context.Context, _ string, _ int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	done chan struct{}
	ok   bool
	msg  string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 1)}
}

func (f *fakeNotifier) Notify(_ string, _ int, ok bool, message string) {
	f.mu.Lock()
	f.ok = ok
	f.msg = message
	f.mu.Unlock()
	f.done <- struct{}{}
}

func TestKeybindExecutorPressesAndReleasesInReverse(t *testing.T) {
	sender := &fakeKeySender{}
	exec := newKeybindExecutor(sender)

	payload, _ := json.Marshal(model.KeybindPayload{Keys: []string{"ctrl", "c"}})
	if err := exec.execute(context.Background(), payload); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(sender.pressed) != 2 || len(sender.released) != 2 {
		t.Fatalf("expected 2 presses and releases, got %d/%d", len(sender.pressed), len(sender.released))
	}
	if sender.released[0] != sender.pressed[1] || sender.released[1] != sender.pressed[0] {
		t.Fatalf("expected release order to reverse press order: pressed=%v released=%v", sender.pressed, sender.released)
	}
}

func TestKeybindExecutorSkipsUnknownTokens(t *testing.T) {
	sender := &fakeKeySender{}
	exec := newKeybindExecutor(sender)

	payload, _ := json.Marshal(model.KeybindPayload{Keys: []string{"ctrl", "zorp"}})
	if err := exec.execute(context.Background(), payload); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(sender.pressed) != 1 {
		t.Fatalf("expected only ctrl to resolve, got %v", sender.pressed)
	}
}

func TestKeybindExecutorFailsWhenNoTokensResolve(t *testing.T) {
	sender := &fakeKeySender{}
	exec := newKeybindExecutor(sender)

	payload, _ := json.Marshal(model.KeybindPayload{Keys: []string{"zorp", "glorp"}})
	if err := exec.execute(context.Background(), payload); err == nil {
		t.Fatal("expected error when no tokens resolve")
	}
}

func TestInlineScriptExecutorRejectsDenylistedCode(t *testing.T) {
	exec := newInlineScriptExecutor("/bin/sh")
	payload, _ := json.Marshal(model.InlineScriptPayload{ScriptCode: "import subprocess; subprocess.run(['ls'])"})

	_, err := exec.execute(context.Background(), payload)
	if err == nil {
		t.Fatal("expected denylist rejection")
	}
}

func TestInlineScriptExecutorRunsCleanScript(t *testing.T) {
	exec := newInlineScriptExecutor("/bin/sh")
	payload, _ := json.Marshal(model.InlineScriptPayload{ScriptCode: "echo hello"})

	out, err := exec.execute(context.Background(), payload)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "hello\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestDispatcherRecordsUsageOnlyOnSuccess(t *testing.T) {
	sender := &fakeKeySender{}
	usage := &fakeUsageTracker{}
	notifier := newFakeNotifier()
	d := New(sender, nil, nil, "/bin/sh", usage, notifier)

	payload, _ := json.Marshal(model.KeybindPayload{Keys: []string{"ctrl", "c"}})
	slot := model.RingSlot{Position: 0, Kind: model.KindKeybind, ActionPayload: payload}

	d.Dispatch(context.Background(), "chrome", slot)

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch result")
	}

	if usage.calls != 1 {
		t.Fatalf("expected usage recorded once, got %d", usage.calls)
	}
	if !notifier.ok {
		t.Fatalf("expected success notification, got failure: %s", notifier.msg)
	}
}

func TestDispatcherSkipsUsageOnFailure(t *testing.T) {
	sender := &fakeKeySender{failOnPress: true}
	usage := &fakeUsageTracker{}
	notifier := newFakeNotifier()
	d := New(sender, nil, nil, "/bin/sh", usage, notifier)

	payload, _ := json.Marshal(model.KeybindPayload{Keys: []string{"ctrl"}})
	slot := model.RingSlot{Position: 0, Kind: model.KindKeybind, ActionPayload: payload}

	d.Dispatch(context.Background(), "chrome", slot)

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch result")
	}

	if usage.calls != 0 {
		t.Fatalf("expected no usage recorded on failure, got %d", usage.calls)
	}
	if notifier.ok {
		t.Fatal("expected failure notification")
	}
}
