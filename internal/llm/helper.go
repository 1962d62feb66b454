// Package llm invokes the two external collaborators the broker never
// links against directly: a process-based suggestion/orchestration
// helper and an HTTP-based embedding service.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

// Mode selects which schema the helper's stdout is expected to follow.
type Mode string

const (
	ModeSuggest    Mode = "suggest"
	ModeOrchestrate Mode = "orchestrate"
	ModeAnalyze    Mode = "analyze"
)

// Helper runs the external LLM helper binary, passing its JSON input on
// stdin and reading a JSON document back from stdout.
type Helper struct {
	binary string
	log    *logging.Logger
}

func NewHelper(binary string) *Helper {
	return &Helper{binary: binary, log: logging.NewComponentLogger("LLMHelper")}
}

// Invoke runs `helper --mode <mode>`, writing input as JSON to stdin and
// returning stdout's raw bytes for the caller to parse (and, on failure
// to parse, repair).
func (h *Helper) Invoke(ctx context.Context, mode Mode, input any) ([]byte, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "marshal llm helper input")
	}

	cmd := exec.CommandContext(ctx, h.binary, "--mode", string(mode))
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		h.log.Warn("llm helper mode=%s failed: %v (stderr: %s)", mode, err, stderr.String())
		return nil, brokerrors.Wrap(brokerrors.KindTransport, err, fmt.Sprintf("llm helper mode %q", mode))
	}
	return stdout.Bytes(), nil
}
