package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"deskbroker/internal/model"
	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

// denylistTokens is a small closed set of text tokens that, if present
// in inline script code, abort execution before it ever runs. This is
// advisory scanning, not a sandbox: it catches obvious attempts, not a
// determined adversary.
var denylistTokens = []string{
	"subprocess", "socket", "urllib", "requests", "eval", "exec",
	"__import__", "open", "file", "compile", "globals", "locals",
}

type inlineScriptExecutor struct {
	interpreter string
	log         *logging.Logger
}

func newInlineScriptExecutor(interpreter string) *inlineScriptExecutor {
	return &inlineScriptExecutor{interpreter: interpreter, log: logging.NewComponentLogger("InlineScriptExecutor")}
}

func (e *inlineScriptExecutor) execute(ctx context.Context, payload []byte) (string, error) {
	var p model.InlineScriptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", brokerrors.Wrap(brokerrors.KindValidation, err, "decode inline script payload")
	}

	if p.ScriptCode == "" && p.ScriptPath == "" {
		return "", brokerrors.New(brokerrors.KindValidation, "inline script needs script_code or script_path")
	}

	if p.ScriptCode != "" {
		if hit := scanDenylist(p.ScriptCode); hit != "" {
			return "", brokerrors.New(brokerrors.KindPolicy, fmt.Sprintf("inline script rejected: contains denylisted token %q", hit))
		}
		return e.runCode(ctx, p.ScriptCode, p.Arguments)
	}
	return e.runPath(ctx, p.ScriptPath, p.Arguments)
}

func scanDenylist(code string) string {
	lower := strings.ToLower(code)
	for _, token := range denylistTokens {
		if strings.Contains(lower, token) {
			return token
		}
	}
	return ""
}

func (e *inlineScriptExecutor) runCode(ctx context.Context, code string, args []string) (string, error) {
	tmp, err := os.CreateTemp("", "deskbroker-inline-*.tmp")
	if err != nil {
		return "", brokerrors.Wrap(brokerrors.KindInternal, err, "create inline script temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return "", brokerrors.Wrap(brokerrors.KindInternal, err, "write inline script")
	}
	tmp.Close()

	return e.runPath(ctx, tmp.Name(), args)
}

func (e *inlineScriptExecutor) runPath(ctx context.Context, path string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, e.interpreter, append([]string{path}, args...)...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.log.Warn("inline script failed: %v (stderr: %s)", err, stderr.String())
		return "", brokerrors.Wrap(brokerrors.KindTransport, err, "run inline script")
	}
	return stdout.String(), nil
}
