//go:build darwin

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

// osascriptWatcher asks System Events for the frontmost application via
// AppleScript, avoiding a cgo dependency on the Cocoa frameworks.
type osascriptWatcher struct {
	log *logging.Logger
}

func newForegroundWatcher() scheduler.OSCollaborator {
	return &osascriptWatcher{log: logging.NewComponentLogger("ForegroundWatcher")}
}

const frontmostScript = `
tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set appPID to unix id of frontApp
	set winTitle to ""
	try
		set winTitle to name of front window of frontApp
	end try
	return appName & "\n" & appPID & "\n" & winTitle
end tell
`

func (w *osascriptWatcher) ForegroundApp(ctx context.Context) (scheduler.ForegroundInfo, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "osascript", "-e", frontmostScript)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return scheduler.ForegroundInfo{}, brokerrors.Wrap(brokerrors.KindTransport, err, "osascript frontmost lookup")
	}

	lines := strings.SplitN(strings.TrimRight(out.String(), "\n"), "\n", 3)
	if len(lines) < 2 {
		return scheduler.ForegroundInfo{}, brokerrors.New(brokerrors.KindProtocol, "unexpected osascript output")
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(lines[1]))
	title := ""
	if len(lines) == 3 {
		title = lines[2]
	}
	return scheduler.ForegroundInfo{ProcessName: lines[0], WindowTitle: title, PID: pid}, nil
}
