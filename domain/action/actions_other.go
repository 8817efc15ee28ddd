//go:build !windows

package action

func MoveCursor(x, y int) error              { return ErrUnsupported }
func CursorPos() (int, int, error)           { return 0, 0, ErrUnsupported }
func Click(x, y int) error                   { return ErrUnsupported }
func PressKey(vk byte) error                 { return ErrUnsupported }
func TypeText(s string) error                { return ErrUnsupported }
func Scroll(x, y, clicks int) error          { return ErrUnsupported }
func ForegroundWindowTitle() (string, error) { return "", ErrUnsupported }
