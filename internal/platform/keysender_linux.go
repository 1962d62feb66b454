//go:build linux

package platform

import (
	"context"
	"os/exec"
	"strconv"

	"deskbroker/internal/dispatch"
	brokerrors "deskbroker/internal/shared/errors"
)

// xdotoolKeySender translates the Win32 virtual-key codes the
// dispatch package already speaks into the X11 keysym names xdotool
// accepts: modifiers, control and arrow keys by name, F1-F12, and
// lowercase letters and digits derived from the VK code's ASCII offset.
type xdotoolKeySender struct{}

func newKeySender() dispatch.KeySender {
	return xdotoolKeySender{}
}

func (xdotoolKeySender) Press(ctx context.Context, code int) error {
	return runKeyAction(ctx, "keydown", code)
}

func (xdotoolKeySender) Release(ctx context.Context, code int) error {
	return runKeyAction(ctx, "keyup", code)
}

func runKeyAction(ctx context.Context, action string, code int) error {
	keysym := vkToKeysym(code)
	if keysym == "" {
		return brokerrors.New(brokerrors.KindUnsupported, "no keysym mapping for virtual key")
	}
	if err := exec.CommandContext(ctx, "xdotool", action, keysym).Run(); err != nil {
		return brokerrors.Wrap(brokerrors.KindTransport, err, "xdotool "+action)
	}
	return nil
}

func vkToKeysym(code int) string {
	switch {
	case code == 0x11:
		return "ctrl"
	case code == 0x10:
		return "shift"
	case code == 0x12:
		return "alt"
	case code == 0x5B:
		return "super"
	case code == 0x0D:
		return "Return"
	case code == 0x1B:
		return "Escape"
	case code == 0x20:
		return "space"
	case code == 0x09:
		return "Tab"
	case code == 0x08:
		return "BackSpace"
	case code == 0x2E:
		return "Delete"
	case code == 0x26:
		return "Up"
	case code == 0x28:
		return "Down"
	case code == 0x25:
		return "Left"
	case code == 0x27:
		return "Right"
	case code >= 0x70 && code <= 0x7B:
		return "F" + strconv.Itoa(code-0x70+1)
	case code >= 0x41 && code <= 0x5A:
		return string(rune('a' + (code - 0x41)))
	case code >= 0x30 && code <= 0x39:
		return string(rune('0' + (code - 0x30)))
	default:
		return ""
	}
}
