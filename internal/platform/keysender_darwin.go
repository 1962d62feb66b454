//go:build darwin

package platform

import (
	"context"
	"fmt"
	"os/exec"

	"deskbroker/internal/dispatch"
	brokerrors "deskbroker/internal/shared/errors"
)

// osascriptKeySender drives System Events' "key down"/"key up" via
// AppleScript, translating from the shared Win32 virtual-key codes to
// macOS key codes for the subset dispatch actually emits.
type osascriptKeySender struct{}

func newKeySender() dispatch.KeySender {
	return osascriptKeySender{}
}

func (osascriptKeySender) Press(ctx context.Context, code int) error {
	return runKeyEvent(ctx, "key down", code)
}

func (osascriptKeySender) Release(ctx context.Context, code int) error {
	return runKeyEvent(ctx, "key up", code)
}

func runKeyEvent(ctx context.Context, verb string, code int) error {
	macCode, ok := vkToMacKeyCode(code)
	if !ok {
		return brokerrors.New(brokerrors.KindUnsupported, "no macOS key code mapping for virtual key")
	}
	script := fmt.Sprintf(`tell application "System Events" to %s %d`, verb, macCode)
	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		return brokerrors.Wrap(brokerrors.KindTransport, err, "osascript "+verb)
	}
	return nil
}

// vkToMacKeyCode covers the modifiers, return, escape, space, tab,
// backspace, and the letters a-z; digits, function keys, and arrows have
// no mapping and report false.
func vkToMacKeyCode(code int) (int, bool) {
	switch code {
	case 0x11:
		return 59, true // control
	case 0x10:
		return 56, true // shift
	case 0x12:
		return 58, true // option
	case 0x5B:
		return 55, true // command
	case 0x0D:
		return 36, true // return
	case 0x1B:
		return 53, true // escape
	case 0x20:
		return 49, true // space
	case 0x09:
		return 48, true // tab
	case 0x08:
		return 51, true // delete/backspace
	}
	if letter, ok := macLetterCodes[code]; ok {
		return letter, true
	}
	return 0, false
}

var macLetterCodes = map[int]int{
	0x41: 0, 0x42: 11, 0x43: 8, 0x44: 2, 0x45: 14, 0x46: 3, 0x47: 5,
	0x48: 4, 0x49: 34, 0x4A: 38, 0x4B: 40, 0x4C: 37, 0x4D: 46, 0x4E: 45,
	0x4F: 31, 0x50: 35, 0x51: 12, 0x52: 15, 0x53: 1, 0x54: 17, 0x55: 32,
	0x56: 9, 0x57: 13, 0x58: 7, 0x59: 16, 0x5A: 6,
}
