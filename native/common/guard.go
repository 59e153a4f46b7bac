package common

import "errors"

// ErrModulePaused is returned when governance has halted a module's flows.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the pause switch configured for each native module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view means
// no pause configuration is wired and the call proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
