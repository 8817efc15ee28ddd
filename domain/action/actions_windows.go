//go:build windows

package action

import (
	"errors"
	"strings"
	"time"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004
	mouseeventfWheel    = 0x0800
	wheelDelta          = 120

	keyeventfKeyUp   = 0x0002
	keyeventfUnicode = 0x0004
	inputKeyboard    = 1
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procMouseEvent          = user32.NewProc("mouse_event")
	procKeybdEvent          = user32.NewProc("keybd_event")
	procSetCursorPos        = user32.NewProc("SetCursorPos")
	procGetCursorPos        = user32.NewProc("GetCursorPos")
	procSendInput           = user32.NewProc("SendInput")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
)

type point struct{ X, Y int32 }

type keybdInput struct {
	vk    uint16
	scan  uint16
	flags uint32
	ts    uint32
	extra uintptr
}

// keyboardEvent matches the Win32 INPUT layout for INPUT_KEYBOARD; the tail
// pads the union to MOUSEINPUT size.
type keyboardEvent struct {
	typ uint32
	ki  keybdInput
	_   [8]byte
}

// MoveCursor moves the OS mouse pointer to (x, y).
func MoveCursor(x, y int) error {
	if r, _, err := procSetCursorPos.Call(uintptr(x), uintptr(y)); r == 0 {
		return err
	}
	return nil
}

// CursorPos returns the current pointer position.
func CursorPos() (int, int, error) {
	var p point
	if r, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p))); r == 0 {
		return 0, 0, err
	}
	return int(p.X), int(p.Y), nil
}

// Click left-clicks at (x, y) and puts the pointer back where it was.
func Click(x, y int) error {
	ox, oy, posErr := CursorPos()
	if err := MoveCursor(x, y); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	_, _, _ = procMouseEvent.Call(mouseeventfLeftDown, 0, 0, 0, 0)
	time.Sleep(30 * time.Millisecond)
	_, _, _ = procMouseEvent.Call(mouseeventfLeftUp, 0, 0, 0, 0)
	if posErr == nil {
		time.Sleep(20 * time.Millisecond)
		return MoveCursor(ox, oy)
	}
	return nil
}

// PressKey sends a key down followed by a key up for vk.
func PressKey(vk byte) error {
	_, _, _ = procKeybdEvent.Call(uintptr(vk), 0, 0, 0)
	time.Sleep(40 * time.Millisecond)
	_, _, _ = procKeybdEvent.Call(uintptr(vk), 0, keyeventfKeyUp, 0)
	return nil
}

// TypeText types s as unicode key events, independent of keyboard layout.
func TypeText(s string) error {
	for _, u := range utf16.Encode([]rune(s)) {
		in := [2]keyboardEvent{
			{typ: inputKeyboard, ki: keybdInput{scan: u, flags: keyeventfUnicode}},
			{typ: inputKeyboard, ki: keybdInput{scan: u, flags: keyeventfUnicode | keyeventfKeyUp}},
		}
		n, _, err := procSendInput.Call(2, uintptr(unsafe.Pointer(&in[0])), unsafe.Sizeof(in[0]))
		if n != 2 {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// Scroll moves to (x, y) and turns the wheel by clicks notches (positive is up).
func Scroll(x, y, clicks int) error {
	if err := MoveCursor(x, y); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	delta := int32(clicks * wheelDelta)
	_, _, _ = procMouseEvent.Call(mouseeventfWheel, 0, 0, uintptr(uint32(delta)), 0)
	time.Sleep(300 * time.Millisecond)
	return nil
}

// ForegroundWindowTitle returns the title of the current foreground window.
func ForegroundWindowTitle() (string, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return "", errors.New("no foreground window")
	}
	buf := make([]uint16, 256)
	r, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r == 0 {
		return "", nil
	}
	return strings.TrimSpace(windows.UTF16ToString(buf[:r])), nil
}
