// Package dispatch executes ring-slot invocations (Keybind, ToolPrompt,
// InlineScript) and the per-tool policy that governs their timeout,
// retry, and enablement.
package dispatch

import (
	"strings"
	"time"
)

// ToolRetryConfig controls how a failed tool call is retried by the
// Dispatcher. Dangerous tools default to zero retries: retrying a
// destructive action on ambiguous failure is worse than surfacing it.
type ToolRetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

func defaultSafeRetry() ToolRetryConfig {
	return ToolRetryConfig{MaxRetries: 2, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, BackoffFactor: 2.0}
}

func defaultDangerousRetry() ToolRetryConfig {
	return ToolRetryConfig{MaxRetries: 0}
}

// PolicySelector matches a ToolCallContext. Every non-empty field must
// match (AND logic); Tools/Categories/Channels/Tags match if the
// context's corresponding value matches ANY listed glob.
type PolicySelector struct {
	Tools      []string
	Categories []string
	Channels   []string
	Tags       []string
	Dangerous  *bool
}

// PolicyRule overrides timeout/retry/enablement for calls matching Match.
// Rules are evaluated in order; the first match wins.
type PolicyRule struct {
	Name    string
	Match   PolicySelector
	Timeout *time.Duration
	Retry   *ToolRetryConfig
	Enabled *bool
}

// TimeoutConfig carries the default call timeout plus per-tool overrides
// that bypass rule matching entirely.
type TimeoutConfig struct {
	Default time.Duration
	PerTool map[string]time.Duration
}

type ToolPolicyConfig struct {
	Timeout TimeoutConfig
	Rules   []PolicyRule
}

func DefaultToolPolicyConfig() ToolPolicyConfig {
	return ToolPolicyConfig{
		Timeout: TimeoutConfig{
			Default: 120 * time.Second,
			PerTool: make(map[string]time.Duration),
		},
	}
}

// ToolCallContext describes one about-to-happen tool invocation for
// policy resolution.
type ToolCallContext struct {
	ToolName  string
	Category  string
	Channel   string
	Dangerous bool
	Tags      []string
}

// ResolveResult is the effective policy for one call.
type ResolveResult struct {
	Enabled bool
	Timeout time.Duration
	Retry   ToolRetryConfig
}

// ToolPolicy resolves timeout, retry, and enablement for a tool call
// against a set of glob-based rules, first-match-wins, falling back to
// config defaults when nothing matches.
type ToolPolicy struct {
	config ToolPolicyConfig
}

func NewToolPolicy(config ToolPolicyConfig) *ToolPolicy {
	if config.Timeout.PerTool == nil {
		config.Timeout.PerTool = make(map[string]time.Duration)
	}
	if config.Timeout.Default <= 0 {
		config.Timeout.Default = 120 * time.Second
	}
	return &ToolPolicy{config: config}
}

// TimeoutFor returns the per-tool override if configured, else the
// default timeout. Rules are not consulted here; only Resolve applies
// rule-level timeout overrides.
func (p *ToolPolicy) TimeoutFor(toolName string) time.Duration {
	if d, ok := p.config.Timeout.PerTool[toolName]; ok {
		return d
	}
	return p.config.Timeout.Default
}

// RetryConfigFor returns the default retry policy for a tool, ignoring
// rules: dangerous tools never retry automatically.
func (p *ToolPolicy) RetryConfigFor(toolName string, dangerous bool) ToolRetryConfig {
	if dangerous {
		return defaultDangerousRetry()
	}
	return defaultSafeRetry()
}

// Resolve computes the effective policy for a call, applying the
// first matching rule on top of the defaults.
func (p *ToolPolicy) Resolve(ctx ToolCallContext) ResolveResult {
	result := ResolveResult{
		Enabled: true,
		Timeout: p.TimeoutFor(ctx.ToolName),
		Retry:   p.RetryConfigFor(ctx.ToolName, ctx.Dangerous),
	}

	for _, rule := range p.config.Rules {
		if !selectorMatches(rule.Match, ctx) {
			continue
		}
		if rule.Timeout != nil {
			result.Timeout = *rule.Timeout
		}
		if rule.Retry != nil {
			result.Retry = *rule.Retry
		}
		if rule.Enabled != nil {
			result.Enabled = *rule.Enabled
		}
		break
	}

	return result
}

func selectorMatches(sel PolicySelector, ctx ToolCallContext) bool {
	if len(sel.Tools) > 0 && !matchesAnyGlob(sel.Tools, ctx.ToolName) {
		return false
	}
	if len(sel.Categories) > 0 && !matchesAnyGlob(sel.Categories, ctx.Category) {
		return false
	}
	if len(sel.Channels) > 0 && !matchesAnyGlob(sel.Channels, ctx.Channel) {
		return false
	}
	if len(sel.Tags) > 0 && !anyTagMatches(sel.Tags, ctx.Tags) {
		return false
	}
	if sel.Dangerous != nil && *sel.Dangerous != ctx.Dangerous {
		return false
	}
	return true
}

func anyTagMatches(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// matchesAnyGlob reports whether name matches any pattern. Patterns
// support "*" (match anything) and a trailing "prefix*" wildcard;
// otherwise an exact match is required.
func matchesAnyGlob(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if pattern == "*" {
			return true
		}
		if strings.HasSuffix(pattern, "*") {
			prefix := strings.TrimSuffix(pattern, "*")
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if pattern == name {
			return true
		}
	}
	return false
}
