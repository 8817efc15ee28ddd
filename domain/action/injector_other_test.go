//go:build !windows

package action

import (
	"errors"
	"testing"
)

func TestInjectorUnsupported(t *testing.T) {
	inj := NewInjector(nil)
	calls := map[string]func() error{
		"click":  func() error { return inj.Click(1, 2) },
		"key":    func() error { return inj.Key("enter") },
		"type":   func() error { return inj.TypeText("4") },
		"scroll": func() error { return inj.Scroll(1, 2, 3) },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("%s: expected ErrUnsupported, got %v", name, err)
		}
	}
	if err := inj.Key("ctrl"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("unknown key must fail before injection, got %v", err)
	}
}
