//go:build windows

package platform

import (
	"context"
	"syscall"
	"unsafe"

	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
	"deskbroker/internal/scheduler"
)

var (
	user32                       = syscall.NewLazyDLL("user32.dll")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")

	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
	procQueryFullImageNm = kernel32.NewProc("QueryFullProcessImageNameW")
)

const (
	processQueryLimitedInformation = 0x1000
	maxPathLen                     = 1024
)

// win32Watcher calls user32/kernel32 directly through syscall rather
// than cgo, matching the no-cgo-outside-the-store-package convention
// elsewhere in this codebase.
type win32Watcher struct {
	log *logging.Logger
}

func newForegroundWatcher() scheduler.OSCollaborator {
	return &win32Watcher{log: logging.NewComponentLogger("ForegroundWatcher")}
}

func (w *win32Watcher) ForegroundApp(ctx context.Context) (scheduler.ForegroundInfo, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return scheduler.ForegroundInfo{}, brokerrors.New(brokerrors.KindTransport, "no foreground window")
	}

	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))

	title := windowTitle(hwnd)
	name, err := processImageName(pid)
	if err != nil {
		return scheduler.ForegroundInfo{}, err
	}

	return scheduler.ForegroundInfo{ProcessName: name, WindowTitle: title, PID: int(pid)}, nil
}

func windowTitle(hwnd uintptr) string {
	buf := make([]uint16, 512)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return syscall.UTF16ToString(buf)
}

func processImageName(pid uint32) (string, error) {
	handle, _, _ := procOpenProcess.Call(processQueryLimitedInformation, 0, uintptr(pid))
	if handle == 0 {
		return "", brokerrors.New(brokerrors.KindTransport, "OpenProcess failed")
	}
	defer procCloseHandle.Call(handle)

	buf := make([]uint16, maxPathLen)
	size := uint32(maxPathLen)
	ok, _, _ := procQueryFullImageNm.Call(handle, 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ok == 0 {
		return "", brokerrors.New(brokerrors.KindTransport, "QueryFullProcessImageName failed")
	}
	return syscall.UTF16ToString(buf[:size]), nil
}
