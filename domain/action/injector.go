package action

import "log/slog"

// Injector adapts the package-level input functions to the selection
// loop's injection port.
type Injector struct {
	logger *slog.Logger
}

// NewInjector returns an Injector. logger may be nil.
func NewInjector(logger *slog.Logger) *Injector { return &Injector{logger: logger} }

// Click left-clicks at absolute screen coordinates and restores the cursor.
func (i *Injector) Click(x, y int) error { return Click(x, y) }

// Key presses a named key such as "enter".
func (i *Injector) Key(name string) error {
	vk, err := ParseVK(name)
	if err != nil {
		return err
	}
	if i.logger != nil {
		i.logger.Debug("action.key", "key", name, "vk", vk)
	}
	return PressKey(vk)
}

// TypeText enters s as text.
func (i *Injector) TypeText(s string) error { return TypeText(s) }

// Scroll turns the wheel at (x, y).
func (i *Injector) Scroll(x, y, clicks int) error { return Scroll(x, y, clicks) }
