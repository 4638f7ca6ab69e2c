package common

import "errors"

// ErrModulePaused rejects balance-changing calls while a module's pause
// switch is on. Read-only queries stay available.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the pause switches governing the ledger's modules. The
// operator flips switches out of band; engines only ever read them.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard checks the named module's switch before a mutating operation runs.
// A nil view or empty module name admits the call.
func Guard(view PauseView, module string) error {
	if view == nil || module == "" {
		return nil
	}
	if view.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
