package rps

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/vm"
)

// The escrow ledger is the only mutation path for wagered funds. Deposits
// and debits run inside the handler's transaction, so each credit/debit pair
// is atomic with the stage change that triggered it.

// escrowDeposit credits amount to the identity's escrow entry. The caller
// must already have moved the funds into module custody (the executor debits
// the attached value before the handler runs).
func escrowDeposit(st core.State, address string, amount *uint256.Int) error {
	bal, err := st.GetEscrow(address)
	if err != nil {
		return fmt.Errorf("escrow entry %s: %w", address, err)
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("escrow deposit for %s overflows", address)
	}
	return st.SetEscrow(address, sum)
}

// escrowDebit decrements the identity's escrow entry, failing with
// ErrInsufficientFunds when the entry does not cover amount.
func escrowDebit(st core.State, address string, amount *uint256.Int) error {
	bal, err := st.GetEscrow(address)
	if err != nil {
		return fmt.Errorf("escrow entry %s: %w", address, err)
	}
	if bal.Lt(amount) {
		return fmt.Errorf("%w: escrow of %s holds %s, need %s", ErrInsufficientFunds, address, bal, amount)
	}
	return st.SetEscrow(address, new(uint256.Int).Sub(bal, amount))
}

// payoutFunds transfers amount out of custody to the identity. On transfer
// failure no state is mutated, so funds are never silently destroyed.
func payoutFunds(ctx *vm.Context, address string, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := ctx.Transfer(address, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventWagerPayout,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Height(),
			Data:        map[string]any{"player": address, "amount": amount.String()},
		})
	}
	return nil
}
