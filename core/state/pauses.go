package state

import "strings"

var pausePrefix = "pause/"

// SetPaused records the pause flag for a module key such as "portfolio" or
// "portfolio/<vault>".
func (m *Manager) SetPaused(module string, paused bool) error {
	key := []byte(pausePrefix + strings.ToLower(strings.TrimSpace(module)))
	if !paused {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

// IsPaused implements common.PauseView. Read errors count as not paused.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.KVGet([]byte(pausePrefix+strings.ToLower(strings.TrimSpace(module))), &paused)
	return err == nil && ok && paused
}
