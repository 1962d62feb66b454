// Package suggester produces the initial eight-slot ring for an app the
// broker has never seen before, asking an external LLM helper for a
// seed and falling back to a deterministic default when it can't.
package suggester

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
	"github.com/pkoukk/tiktoken-go"

	"deskbroker/internal/llm"
	"deskbroker/internal/model"
	"deskbroker/internal/shared/logging"
)

const maxPromptTokens = 2000

// Suggester asks an LLM helper to seed eight ActionSpecs for a newly
// seen app, validating its answer and falling back to a fixed set of
// editing keybinds on any failure.
type Suggester struct {
	helper   *llm.Helper
	encoding *tiktoken.Tiktoken
	log      *logging.Logger
}

func New(helper *llm.Helper) *Suggester {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	log := logging.NewComponentLogger("Suggester")
	if err != nil {
		log.Warn("tiktoken encoding unavailable, falling back to byte-length/4 token estimate: %v", err)
		encoding = nil
	}
	return &Suggester{helper: helper, encoding: encoding, log: log}
}

type toolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type suggestRequest struct {
	AppName        string        `json:"app_name"`
	ToolServerName string        `json:"tool_server_name,omitempty"`
	Tools          []toolSummary `json:"tools,omitempty"`
}

type suggestedAction struct {
	Position      int             `json:"position"`
	Kind          string          `json:"kind"`
	ActionName    string          `json:"action_name"`
	ActionPayload json.RawMessage `json:"action_payload"`
}

// Suggest returns eight ActionSpecs for appName. It never errors: any
// failure at any stage (helper invocation, parse, validation) produces
// the deterministic fallback instead, logged at warn level.
func (s *Suggester) Suggest(ctx context.Context, appName string, descriptor *model.ToolServerDescriptor) [8]model.ActionSpec {
	req := s.buildRequest(appName, descriptor)

	raw, err := s.helper.Invoke(ctx, llm.ModeSuggest, req)
	if err != nil {
		s.log.Warn("suggest helper invocation failed for %q: %v", appName, err)
		return fallbackSpecs()
	}

	actions, err := parseActions(raw)
	if err != nil {
		s.log.Warn("suggest response for %q unparsable: %v", appName, err)
		return fallbackSpecs()
	}

	specs, err := validate(actions)
	if err != nil {
		s.log.Warn("suggest response for %q failed validation: %v", appName, err)
		return fallbackSpecs()
	}
	return specs
}

// buildRequest assembles the tool list, trimming entries from the tail
// until the serialised prompt fits the token budget.
func (s *Suggester) buildRequest(appName string, descriptor *model.ToolServerDescriptor) suggestRequest {
	req := suggestRequest{AppName: appName}
	if descriptor == nil {
		return req
	}
	req.ToolServerName = descriptor.ServerName

	tools := make([]toolSummary, 0, len(descriptor.Tools))
	for name, desc := range descriptor.Tools {
		tools = append(tools, toolSummary{Name: name, Description: desc.Description})
	}

	for len(tools) > 0 {
		req.Tools = tools
		if s.tokenCount(req) <= maxPromptTokens {
			break
		}
		tools = tools[:len(tools)-1]
	}
	req.Tools = tools
	return req
}

func (s *Suggester) tokenCount(req suggestRequest) int {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0
	}
	if s.encoding == nil {
		return len(payload) / 4
	}
	return len(s.encoding.Encode(string(payload), nil, nil))
}

// parseActions unmarshals raw as a JSON array of suggestedAction,
// repairing malformed JSON with jsonrepair before giving up.
func parseActions(raw []byte) ([]suggestedAction, error) {
	var actions []suggestedAction
	if err := json.Unmarshal(raw, &actions); err == nil {
		return actions, nil
	}

	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		return nil, fmt.Errorf("repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &actions); err != nil {
		return nil, fmt.Errorf("repaired json still unparsable: %w", err)
	}
	return actions, nil
}

// validate checks array length and position coverage and converts to
// ActionSpec, rejecting unknown kinds.
func validate(actions []suggestedAction) ([8]model.ActionSpec, error) {
	var specs [8]model.ActionSpec
	if len(actions) != 8 {
		return specs, fmt.Errorf("expected 8 actions, got %d", len(actions))
	}

	seen := make(map[int]bool, 8)
	for _, a := range actions {
		if a.Position < 0 || a.Position > 7 {
			return specs, fmt.Errorf("position %d out of range", a.Position)
		}
		if seen[a.Position] {
			return specs, fmt.Errorf("duplicate position %d", a.Position)
		}
		kind := model.ActionKind(a.Kind)
		switch kind {
		case model.KindKeybind, model.KindToolPrompt, model.KindInlineScript:
		default:
			return specs, fmt.Errorf("unknown kind %q at position %d", a.Kind, a.Position)
		}
		if a.ActionName == "" {
			return specs, fmt.Errorf("missing action_name at position %d", a.Position)
		}
		seen[a.Position] = true
		specs[a.Position] = model.ActionSpec{
			Position:      a.Position,
			Kind:          kind,
			ActionName:    a.ActionName,
			ActionPayload: []byte(a.ActionPayload),
		}
	}
	if len(seen) != 8 {
		return specs, fmt.Errorf("positions do not cover 0..7")
	}
	return specs, nil
}

type fallbackEntry struct {
	name string
	keys []string
}

var fallbackEntries = [8]fallbackEntry{
	{"Copy", []string{"ctrl", "c"}},
	{"Paste", []string{"ctrl", "v"}},
	{"Save", []string{"ctrl", "s"}},
	{"Undo", []string{"ctrl", "z"}},
	{"Find", []string{"ctrl", "f"}},
	{"Select All", []string{"ctrl", "a"}},
	{"New Tab", []string{"ctrl", "t"}},
	{"Close", []string{"ctrl", "w"}},
}

// fallbackSpecs returns the deterministic eight-keybind default used
// whenever the LLM helper is unavailable or its answer fails validation.
func fallbackSpecs() [8]model.ActionSpec {
	var specs [8]model.ActionSpec
	for i, entry := range fallbackEntries {
		payload, _ := json.Marshal(model.KeybindPayload{Keys: entry.keys, Description: entry.name})
		specs[i] = model.ActionSpec{
			Position:      i,
			Kind:          model.KindKeybind,
			ActionName:    entry.name,
			ActionPayload: payload,
		}
	}
	return specs
}
