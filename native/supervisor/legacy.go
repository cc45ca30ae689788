package supervisor

import (
	"math/big"

	"augmint/core/events"
	"augmint/crypto"
	nativecommon "augmint/native/common"
)

// RegisterLegacyToken makes the supervisor the notification target of a
// previous token deployment. Conversions still require the token to be accepted.
func (s *Supervisor) RegisterLegacyToken(ledger tokenLedger) {
	if ledger == nil {
		return
	}
	s.legacy[ledger.Address().Array()] = ledger
	ledger.RegisterReceiver(s.cfg.Address, s)
}

// IsAcceptedLegacyToken reports whether tokenAddr may be converted.
func (s *Supervisor) IsAcceptedLegacyToken(tokenAddr crypto.Address) bool {
	if s.state == nil {
		return false
	}
	var accepted bool
	ok, err := s.state.KVGet(legacyKey(tokenAddr), &accepted)
	return err == nil && ok && accepted
}

// SetAcceptedLegacyAugmintToken toggles acceptance of a legacy token. Requires StabilityBoard.
func (s *Supervisor) SetAcceptedLegacyAugmintToken(caller, tokenAddr crypto.Address, accepted bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := nativecommon.RequirePermission(s.state, caller, nativecommon.PermStabilityBoard); err != nil {
		return err
	}
	var err error
	if accepted {
		err = s.state.KVPut(legacyKey(tokenAddr), true)
	} else {
		err = s.state.KVDelete(legacyKey(tokenAddr))
	}
	if err != nil {
		return err
	}
	s.emitter.Emit(events.AcceptedLegacyAugmintTokenChanged{TokenAddress: tokenAddr, NewAcceptedState: accepted})
	return nil
}

// TransferNotification converts legacy tokens sent to the supervisor 1:1 into
// the current token: the received amount is burnt on the legacy ledger and the
// same amount is minted to the sender.
func (s *Supervisor) TransferNotification(tokenAddr, from crypto.Address, amount *big.Int, _ uint64) error {
	if err := s.guard(); err != nil {
		return err
	}
	legacy, ok := s.legacy[tokenAddr.Array()]
	if !ok || !s.IsAcceptedLegacyToken(tokenAddr) {
		return ErrLegacyNotAccepted
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := legacy.Burn(s.cfg.Address, amount); err != nil {
		return err
	}
	if err := s.token.Issue(s.cfg.Address, from, amount); err != nil {
		return err
	}
	s.emitter.Emit(events.LegacyTokenConverted{OldTokenAddress: tokenAddr, Account: from, Amount: new(big.Int).Set(amount)})
	return nil
}
