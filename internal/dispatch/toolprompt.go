package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"deskbroker/internal/llm"
	"deskbroker/internal/model"
	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

const resultTruncateLen = 100

// ToolClient is the subset of toolclient.Client the Dispatcher drives.
type ToolClient interface {
	ListTools(ctx context.Context) ([]map[string]any, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (ToolCallResult, error)
}

// ToolCallResult mirrors toolclient.ToolCallResult; the core wiring
// package adapts toolclient.Client to the ToolClient interface above so
// this package never imports toolclient directly.
type ToolCallResult struct {
	Text    string
	IsError bool
}

// ToolPool acquires a live client for the tool server currently bound to
// appName. The core wiring package resolves appName to a descriptor
// (from the registry cache) before spawning or reusing the pooled
// process, so this package never needs to know about descriptors.
type ToolPool interface {
	AcquireForApp(ctx context.Context, appName, serverName string) (ToolClient, error)
}

type orchestrateDecision struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type toolPromptExecutor struct {
	pool   ToolPool
	helper *llm.Helper
	policy *ToolPolicy
	log    *logging.Logger
}

func newToolPromptExecutor(pool ToolPool, helper *llm.Helper) *toolPromptExecutor {
	return &toolPromptExecutor{
		pool:   pool,
		helper: helper,
		policy: NewToolPolicy(DefaultToolPolicyConfig()),
		log:    logging.NewComponentLogger("ToolPromptExecutor"),
	}
}

func (e *toolPromptExecutor) execute(ctx context.Context, appName string, payload []byte) (string, error) {
	var p model.ToolPromptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", brokerrors.Wrap(brokerrors.KindValidation, err, "decode tool prompt payload")
	}
	if p.ServerName == "" {
		return "", brokerrors.New(brokerrors.KindValidation, "tool prompt missing server_name")
	}

	client, err := e.pool.AcquireForApp(ctx, appName, p.ServerName)
	if err != nil {
		return "", err
	}

	resolved := e.policy.Resolve(ToolCallContext{ToolName: p.ToolName})
	if !resolved.Enabled {
		return "", brokerrors.New(brokerrors.KindPolicy, "tool call disabled by policy")
	}

	var result ToolCallResult
	if p.ToolName != "" {
		result, err = e.callWithPolicy(ctx, client, p.ToolName, p.Parameters, resolved)
		if err != nil {
			return "", err
		}
	} else if p.Description != "" {
		result, err = e.orchestrate(ctx, client, p.Description)
		if err != nil {
			return "", err
		}
	} else {
		return "", brokerrors.New(brokerrors.KindValidation, "tool prompt needs tool_name or description")
	}

	if result.IsError {
		return truncate(result.Text), brokerrors.New(brokerrors.KindProtocol, "tool call reported an error")
	}
	return truncate(result.Text), nil
}

// callWithPolicy bounds a single tool call by the resolved timeout and
// retries it per the resolved retry config, backing off between
// attempts. Dangerous tools resolve to zero retries.
func (e *toolPromptExecutor) callWithPolicy(ctx context.Context, client ToolClient, toolName string, args map[string]any, resolved ResolveResult) (ToolCallResult, error) {
	backoff := resolved.Retry.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= resolved.Retry.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, resolved.Timeout)
		result, err := client.CallTool(callCtx, toolName, args)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == resolved.Retry.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ToolCallResult{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * resolved.Retry.BackoffFactor)
		if backoff > resolved.Retry.MaxBackoff {
			backoff = resolved.Retry.MaxBackoff
		}
	}
	return ToolCallResult{}, lastErr
}

// orchestrate asks the LLM helper which tool to call given the server's
// tool list and a natural-language description of intent.
func (e *toolPromptExecutor) orchestrate(ctx context.Context, client ToolClient, description string) (ToolCallResult, error) {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return ToolCallResult{}, err
	}

	raw, err := e.helper.Invoke(ctx, llm.ModeOrchestrate, map[string]any{
		"description": description,
		"tools":       tools,
	})
	if err != nil {
		return ToolCallResult{}, err
	}

	var decision orchestrateDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return ToolCallResult{}, brokerrors.Wrap(brokerrors.KindProtocol, err, "parse orchestration decision")
	}
	if decision.Tool == "" || decision.Tool == "none" {
		return ToolCallResult{}, brokerrors.New(brokerrors.KindNotFound, "no appropriate tool")
	}

	resolved := e.policy.Resolve(ToolCallContext{ToolName: decision.Tool})
	return e.callWithPolicy(ctx, client, decision.Tool, decision.Arguments, resolved)
}

func truncate(text string) string {
	if len(text) <= resultTruncateLen {
		return text
	}
	return text[:resultTruncateLen]
}
