package common

import (
	"fmt"

	coreerrors "augmint/core/errors"
	"augmint/crypto"
)

// Permission labels granted to accounts. Each privileged operation checks one.
const (
	PermMonetaryBoard          = "MonetaryBoard"
	PermStabilityBoard         = "StabilityBoard"
	PermNoFeeTransferContracts = "NoFeeTransferContracts"
	PermMonetarySupervisor     = "MonetarySupervisor"
	PermLoanManager            = "LoanManager"
	PermLocker                 = "Locker"
	PermRatesFeeder            = "RatesFeeder"
)

// KnownPermissions lists every label in a stable order.
func KnownPermissions() []string {
	return []string{
		PermMonetaryBoard,
		PermStabilityBoard,
		PermNoFeeTransferContracts,
		PermMonetarySupervisor,
		PermLoanManager,
		PermLocker,
		PermRatesFeeder,
	}
}

type PermissionView interface {
	HasPermission(addr crypto.Address, permission string) bool
}

// RequirePermission fails with ErrPermissionDenied unless addr holds one of the labels.
func RequirePermission(view PermissionView, addr crypto.Address, permissions ...string) error {
	if view != nil {
		for _, permission := range permissions {
			if view.HasPermission(addr, permission) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s lacks %v", coreerrors.ErrPermissionDenied, addr.String(), permissions)
}
