package common

import "errors"

var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard rejects nested entry into a mutating operation. The zero
// value is ready to use.
type ReentrancyGuard struct {
	entered bool
}

// Enter marks the guard as held. It fails if the guard is already held.
func (g *ReentrancyGuard) Enter() error {
	if g.entered {
		return ErrReentrantCall
	}
	g.entered = true
	return nil
}

// Exit releases the guard.
func (g *ReentrancyGuard) Exit() { g.entered = false }

// Held reports whether an operation is in progress.
func (g *ReentrancyGuard) Held() bool { return g.entered }
