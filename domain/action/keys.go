// Package action injects mouse and keyboard input into the desktop session.
package action

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned on platforms without an input backend.
var ErrUnsupported = errors.New("action: input injection not supported on this platform")

// ErrUnknownKey reports a key name ParseVK does not recognise.
var ErrUnknownKey = errors.New("action: unknown key")

var namedKeys = map[string]byte{
	"ENTER":     0x0D,
	"RETURN":    0x0D,
	"TAB":       0x09,
	"ESC":       0x1B,
	"ESCAPE":    0x1B,
	"SPACE":     0x20,
	"BACKSPACE": 0x08,
	"DELETE":    0x2E,
	"HOME":      0x24,
	"END":       0x23,
	"PAGEUP":    0x21,
	"PAGEDOWN":  0x22,
	"LEFT":      0x25,
	"UP":        0x26,
	"RIGHT":     0x27,
	"DOWN":      0x28,
}

// ParseVK converts a key token ("enter", "F5", "R", "7") into a Windows
// virtual-key code.
func ParseVK(key string) (byte, error) {
	k := strings.ToUpper(strings.TrimSpace(key))
	if vk, ok := namedKeys[k]; ok {
		return vk, nil
	}
	if len(k) >= 2 && k[0] == 'F' {
		var n int
		if _, err := fmt.Sscanf(k[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == k[1:] {
			return byte(0x70 + n - 1), nil // VK_F1=0x70
		}
	}
	if len(k) == 1 {
		c := k[0]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return c, nil // letters and digits match their VK codes
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}
