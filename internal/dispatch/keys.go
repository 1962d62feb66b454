package dispatch

import "strings"

// virtualKeyTable maps lowercase key tokens to a stand-in virtual-key
// code. The numeric values follow the conventional Windows VK_* layout
// (shared by most keystroke-injection APIs) but are opaque to everything
// except the KeySender collaborator.
var virtualKeyTable = map[string]int{
	"ctrl": 0x11, "control": 0x11,
	"shift": 0x10,
	"alt":   0x12,
	"super": 0x5B, "cmd": 0x5B, "win": 0x5B, "meta": 0x5B,

	"enter": 0x0D, "return": 0x0D,
	"esc": 0x1B, "escape": 0x1B,
	"space":     0x20,
	"tab":       0x09,
	"backspace": 0x08,
	"delete":    0x2E, "del": 0x2E,
	"up": 0x26, "down": 0x28, "left": 0x25, "right": 0x27,
}

func init() {
	for i := 0; i < 12; i++ {
		virtualKeyTable[fmtFKey(i+1)] = 0x70 + i
	}
	for c := 'a'; c <= 'z'; c++ {
		virtualKeyTable[string(c)] = 0x41 + int(c-'a')
	}
	for d := '0'; d <= '9'; d++ {
		virtualKeyTable[string(d)] = 0x30 + int(d-'0')
	}
}

func fmtFKey(n int) string {
	digits := "0123456789"
	if n < 10 {
		return "f" + string(digits[n])
	}
	return "f1" + string(digits[n-10])
}

// resolveVirtualKey looks up a token's virtual-key code, case-insensitive.
func resolveVirtualKey(token string) (int, bool) {
	code, ok := virtualKeyTable[strings.ToLower(strings.TrimSpace(token))]
	return code, ok
}
