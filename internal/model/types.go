// Package model defines the data types shared across every broker
// component: Store, RegistryResolver, Suggester, RingManager,
// Dispatcher, and Scheduler all speak these types rather than each
// other's internals.
package model

import "time"

// ActionKind is the tagged variant discriminator for a ring slot's
// payload: Keybind, ToolPrompt, or InlineScript.
type ActionKind string

const (
	KindKeybind      ActionKind = "keybind"
	KindToolPrompt   ActionKind = "tool_prompt"
	KindInlineScript ActionKind = "inline_script"
)

// KeybindPayload presses a sequence of virtual keys.
type KeybindPayload struct {
	Keys        []string `json:"keys"`
	Description string   `json:"description,omitempty"`
}

// ToolPromptPayload invokes a tool server directly or via LLM orchestration.
type ToolPromptPayload struct {
	ServerName  string         `json:"server_name"`
	ToolName    string         `json:"tool_name,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Description string         `json:"description,omitempty"`
}

// InlineScriptPayload runs an external interpreter against inline code or
// a script path.
type InlineScriptPayload struct {
	ScriptCode  string   `json:"script_code,omitempty"`
	ScriptPath  string   `json:"script_path,omitempty"`
	Arguments   []string `json:"arguments,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ActionSpec is one ring slot's content, independent of persistence: the
// shape Suggester produces and RingManager projects.
type ActionSpec struct {
	Position      int        `json:"position"`
	Kind          ActionKind `json:"kind"`
	ActionName    string     `json:"action_name"`
	ActionPayload []byte     `json:"action_payload"`
}

// RingSlot is the persisted form of ActionSpec with usage tracking.
type RingSlot struct {
	ID            int64
	AppName       string
	Position      int
	Kind          ActionKind
	ActionName    string
	ActionPayload []byte
	Enabled       bool
	UsageCount    int
	LastUsedAt    *time.Time
}

// AppRecord tracks one known application.
type AppRecord struct {
	AppName        string
	DisplayName    string
	ToolServerName string
	CreatedAt      time.Time
	LastSeenAt     time.Time
}

// RegistrySource identifies which cascade stage produced a descriptor.
type RegistrySource string

const (
	SourceLocalIndex       RegistrySource = "local_index"
	SourcePrimaryRegistry  RegistrySource = "primary_registry"
	SourceSecondaryRegistry RegistrySource = "secondary_registry"
)

type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
)

// ToolDescriptor is a tool exposed by a server.
type ToolDescriptor struct {
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolServerDescriptor describes one discovered tool server.
type ToolServerDescriptor struct {
	ServerName  string                    `json:"server_name"`
	PackageName string                    `json:"package_name"`
	Description string                    `json:"description,omitempty"`
	Category    string                    `json:"category,omitempty"`
	Source      RegistrySource            `json:"source"`
	Validated   bool                      `json:"validated"`
	Transport   Transport                 `json:"transport"`
	Invocation  []string                  `json:"invocation"`
	Tools       map[string]ToolDescriptor `json:"tools,omitempty"`
}

// NotFoundSentinel is the RegistryCacheEntry.ServerName value representing
// a negative cache hit.
const NotFoundSentinel = "NOT_FOUND"

// RegistryCacheEntry is a cached resolution outcome, positive or negative.
type RegistryCacheEntry struct {
	AppName    string
	Source     RegistrySource
	ServerName string
	ServerJSON []byte
	CachedAt   time.Time
}

// InteractionEvent is one captured UI interaction.
type InteractionEvent struct {
	ID                   string
	AppName              string
	WindowTitle          string
	InteractionType      string
	ElementName          string
	SimplifiedDescription string
	Timestamp            time.Time
	ExpiresAt            time.Time
}

// SemanticWorkflow is an immutable natural-language summary of a burst of
// interactions.
type SemanticWorkflow struct {
	ID                string
	AppName           string
	WorkflowText      string
	RawInteractionIDs []string
	CreatedAt         time.Time
	Confidence        float64
}

// EmbeddingDim is the compile-time embedding vector length (D).
const EmbeddingDim = 1024

// WorkflowEmbedding is a fixed-length vector representation of a workflow.
type WorkflowEmbedding struct {
	ID           string
	WorkflowID   string
	AppName      string
	Embedding    []float32
	ClusterLabel *int
	CreatedAt    time.Time
}

// WorkflowCluster groups workflows close in embedding space.
type WorkflowCluster struct {
	ID                string
	AppName           string
	ClusterLabel      int
	RepresentativeText string
	WorkflowCount     int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
