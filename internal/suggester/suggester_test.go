package suggester

import (
	"encoding/json"
	"testing"

	"deskbroker/internal/model"
)

func TestValidateAcceptsWellFormedActions(t *testing.T) {
	actions := make([]suggestedAction, 8)
	for i := range actions {
		actions[i] = suggestedAction{Position: i, Kind: "keybind", ActionName: "Action", ActionPayload: json.RawMessage(`{}`)}
	}

	specs, err := validate(actions)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for i, spec := range specs {
		if spec.Position != i {
			t.Fatalf("slot %d has position %d", i, spec.Position)
		}
	}
}

func TestValidateRejectsWrongLength(t *testing.T) {
	if _, err := validate([]suggestedAction{{Position: 0, Kind: "keybind", ActionName: "x"}}); err == nil {
		t.Fatal("expected error for short array")
	}
}

func TestValidateRejectsMissingPosition(t *testing.T) {
	actions := make([]suggestedAction, 8)
	for i := range actions {
		actions[i] = suggestedAction{Position: i, Kind: "keybind", ActionName: "Action"}
	}
	actions[7].Position = 6 // duplicate, position 7 now uncovered

	if _, err := validate(actions); err == nil {
		t.Fatal("expected error for uncovered positions")
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	actions := make([]suggestedAction, 8)
	for i := range actions {
		actions[i] = suggestedAction{Position: i, Kind: "keybind", ActionName: "Action"}
	}
	actions[3].Kind = "teleport"

	if _, err := validate(actions); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestFallbackSpecsCoversAllPositions(t *testing.T) {
	specs := fallbackSpecs()
	for i, spec := range specs {
		if spec.Position != i {
			t.Fatalf("fallback slot %d has position %d", i, spec.Position)
		}
		if spec.Kind != model.KindKeybind {
			t.Fatalf("fallback slot %d is not a keybind", i)
		}
		var payload model.KeybindPayload
		if err := json.Unmarshal(spec.ActionPayload, &payload); err != nil {
			t.Fatalf("fallback slot %d payload unparsable: %v", i, err)
		}
		if len(payload.Keys) == 0 {
			t.Fatalf("fallback slot %d has no keys", i)
		}
	}
}

func TestParseActionsRepairsMalformedJSON(t *testing.T) {
	malformed := `[{"position":0,"kind":"keybind","action_name":"Copy",}]`
	if _, err := parseActions([]byte(malformed)); err != nil {
		t.Fatalf("expected jsonrepair to recover trailing comma, got: %v", err)
	}
}

func TestBuildRequestOmitsToolsWhenNoDescriptor(t *testing.T) {
	s := New(nil)
	req := s.buildRequest("notes", nil)
	if req.AppName != "notes" {
		t.Fatalf("unexpected app name: %s", req.AppName)
	}
	if req.Tools != nil {
		t.Fatalf("expected no tools without a descriptor")
	}
}
