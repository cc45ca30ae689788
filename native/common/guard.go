package common

import coreerrors "augmint/core/errors"

var ErrModulePaused = coreerrors.New(coreerrors.ErrInvalidState, "module paused")

// Module names used by the pause switch.
const (
	ModuleToken      = "token"
	ModuleExchange   = "exchange"
	ModuleLoan       = "loan"
	ModuleSupervisor = "supervisor"
	ModuleRates      = "rates"
	ModuleLocker     = "locker"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
