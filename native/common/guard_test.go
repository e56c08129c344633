package common

import (
	"errors"
	"testing"
)

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "portfolio"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	pauses := pauseSet{"portfolio/vault-a": true}
	if err := Guard(pauses, "portfolio", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(pauses, "portfolio", "portfolio/vault-a"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestReentrancyGuard(t *testing.T) {
	var g ReentrancyGuard
	if err := g.Enter(); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if !g.Held() {
		t.Fatalf("expected guard to be held")
	}
	if err := g.Enter(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	g.Exit()
	if err := g.Enter(); err != nil {
		t.Fatalf("enter after exit: %v", err)
	}
}
