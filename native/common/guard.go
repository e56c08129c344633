package common

import "errors"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when any of the supplied module keys is
// paused. Empty keys are skipped.
func Guard(p PauseView, modules ...string) error {
	if p == nil {
		return nil
	}
	for _, module := range modules {
		if module == "" {
			continue
		}
		if p.IsPaused(module) {
			return ErrModulePaused
		}
	}
	return nil
}
