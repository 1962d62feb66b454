//go:build windows

package platform

import (
	"context"

	"deskbroker/internal/dispatch"
)

var procKeybdEvent = user32.NewProc("keybd_event")

const keyeventfKeyup = 0x0002

// win32KeySender calls keybd_event directly with the Win32 virtual-key
// codes the dispatch package's translation table already produces, so
// no further mapping is needed on this platform.
type win32KeySender struct{}

func newKeySender() dispatch.KeySender {
	return win32KeySender{}
}

func (win32KeySender) Press(_ context.Context, code int) error {
	procKeybdEvent.Call(uintptr(code), 0, 0, 0)
	return nil
}

func (win32KeySender) Release(_ context.Context, code int) error {
	procKeybdEvent.Call(uintptr(code), 0, keyeventfKeyup, 0)
	return nil
}
