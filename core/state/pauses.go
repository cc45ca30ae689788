package state

import "strings"

func pauseKey(module string) []byte {
	return []byte("system/pauses/" + strings.ToLower(strings.TrimSpace(module)))
}

// IsPaused reports whether the module has been halted by governance.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.KVGet(pauseKey(module), &paused)
	return err == nil && ok && paused
}

// SetPaused toggles the pause flag of module.
func (m *Manager) SetPaused(module string, paused bool) error {
	if !paused {
		return m.KVDelete(pauseKey(module))
	}
	return m.KVPut(pauseKey(module), true)
}
