//go:build linux

package platform

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
	"deskbroker/internal/scheduler"
)

// xdotoolWatcher shells out to xdotool, the same way other example
// tooling in this codebase drives external CLIs rather than linking
// against X11 directly.
type xdotoolWatcher struct {
	log *logging.Logger
}

func newForegroundWatcher() scheduler.OSCollaborator {
	return &xdotoolWatcher{log: logging.NewComponentLogger("ForegroundWatcher")}
}

func (w *xdotoolWatcher) ForegroundApp(ctx context.Context) (scheduler.ForegroundInfo, error) {
	winID, err := runXdotool(ctx, "getactivewindow")
	if err != nil {
		return scheduler.ForegroundInfo{}, brokerrors.Wrap(brokerrors.KindTransport, err, "xdotool getactivewindow")
	}

	pidOut, err := runXdotool(ctx, "getwindowpid", winID)
	if err != nil {
		return scheduler.ForegroundInfo{}, brokerrors.Wrap(brokerrors.KindTransport, err, "xdotool getwindowpid")
	}
	pid, _ := strconv.Atoi(pidOut)

	title, err := runXdotool(ctx, "getwindowname", winID)
	if err != nil {
		title = ""
	}

	name, err := processNameForPID(pid)
	if err != nil {
		return scheduler.ForegroundInfo{}, err
	}

	return scheduler.ForegroundInfo{ProcessName: name, WindowTitle: title, PID: pid}, nil
}

func runXdotool(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "xdotool", args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func processNameForPID(pid int) (string, error) {
	var out bytes.Buffer
	cmd := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "comm=")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", brokerrors.Wrap(brokerrors.KindTransport, err, "ps lookup for pid")
	}
	return strings.TrimSpace(out.String()), nil
}
