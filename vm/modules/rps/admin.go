package rps

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/vm"
)

// handleInit creates the game instance. The initializer becomes the owner
// and holds the lock/unlock/import capability. One-shot per deployment.
func handleInit(ctx *vm.Context, payload json.RawMessage) error {
	var p core.WagerInitPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode rps_init payload: %w", err)
	}

	if _, err := ctx.State.GetWager(); err == nil {
		return ErrAlreadyInitialized
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check wager state: %w", err)
	}

	if p.Bet == nil {
		p.Bet = uint256.NewInt(0)
	}
	if p.Deposit == nil {
		p.Deposit = uint256.NewInt(0)
	}
	if p.RevealWindow <= 0 {
		return fmt.Errorf("reveal window must be positive, got %d", p.RevealWindow)
	}
	if _, overflow := new(uint256.Int).AddOverflow(p.Bet, p.Deposit); overflow {
		return fmt.Errorf("bet+deposit overflows")
	}

	w := &core.Wager{
		Owner:        ctx.Caller(),
		Bet:          p.Bet,
		Deposit:      p.Deposit,
		RevealWindow: p.RevealWindow,
		Stage:        core.StageFirstCommit,
	}
	if err := ctx.State.SetWager(w); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventWagerInit,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Height(),
			Data: map[string]any{
				"owner":         w.Owner,
				"bet":           w.Bet.String(),
				"deposit":       w.Deposit.String(),
				"reveal_window": w.RevealWindow,
			},
		})
	}
	return nil
}

// handleLock suspends every state-mutating game operation. Idempotent.
func handleLock(ctx *vm.Context, _ json.RawMessage) error {
	return setLocked(ctx, true, events.EventWagerLocked)
}

// handleUnlock lifts the suspension. Idempotent.
func handleUnlock(ctx *vm.Context, _ json.RawMessage) error {
	return setLocked(ctx, false, events.EventWagerUnlocked)
}

func setLocked(ctx *vm.Context, locked bool, evType events.EventType) error {
	w, err := loadWager(ctx.State)
	if err != nil {
		return err
	}
	if ctx.Caller() != w.Owner {
		return ErrUnauthorized
	}
	w.Locked = locked
	if err := ctx.State.SetWager(w); err != nil {
		return err
	}
	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        evType,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Height(),
			Data:        map[string]any{"owner": w.Owner},
		})
	}
	return nil
}

// handleImport atomically replaces the whole game state (including the
// escrow ledger) with a validated snapshot. Owner-only, and only while the
// game is locked: this is the receiving half of a deployment migration.
// The owner and the lock survive the swap.
func handleImport(ctx *vm.Context, payload json.RawMessage) error {
	var p core.WagerImportPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode rps_import payload: %w", err)
	}

	w, err := loadWager(ctx.State)
	if err != nil {
		return err
	}
	if ctx.Caller() != w.Owner {
		return ErrUnauthorized
	}
	if !w.Locked {
		return fmt.Errorf("%w: import requires the game to be locked", ErrInvalidStage)
	}
	if err := validateSnapshot(&p.Snapshot); err != nil {
		return err
	}

	// Whole-state swap: zero every existing escrow entry, then write the
	// snapshot's entries. Entries are zeroed, never removed.
	existing, err := ctx.State.EscrowEntries()
	if err != nil {
		return fmt.Errorf("list escrow entries: %w", err)
	}
	for addr := range existing {
		if err := ctx.State.SetEscrow(addr, uint256.NewInt(0)); err != nil {
			return err
		}
	}
	for addr, amount := range p.Snapshot.Escrow {
		if err := ctx.State.SetEscrow(addr, amount); err != nil {
			return err
		}
	}

	imported := *p.Snapshot.Wager
	imported.Owner = w.Owner
	imported.Locked = true
	if err := ctx.State.SetWager(&imported); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventWagerImport,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Height(),
			Data:        map[string]any{"stage": imported.Stage.String(), "round": imported.Round},
		})
	}
	return nil
}

// validateSnapshot checks the internal consistency of an imported snapshot
// instead of trusting it.
func validateSnapshot(s *core.WagerSnapshot) error {
	if s.Wager == nil {
		return fmt.Errorf("%w: missing wager state", ErrInvalidSnapshot)
	}
	w := s.Wager
	if !w.Stage.Valid() {
		return fmt.Errorf("%w: stage %d out of range", ErrInvalidSnapshot, w.Stage)
	}
	if w.Bet == nil || w.Deposit == nil {
		return fmt.Errorf("%w: missing bet or deposit", ErrInvalidSnapshot)
	}
	if w.RevealWindow <= 0 {
		return fmt.Errorf("%w: reveal window must be positive", ErrInvalidSnapshot)
	}
	if w.RevealDeadline < 0 {
		return fmt.Errorf("%w: negative reveal deadline", ErrInvalidSnapshot)
	}
	for i := range w.Players {
		slot := &w.Players[i]
		if !slot.Occupied() {
			if slot.Commitment != "" || slot.Choice != core.ChoiceNone {
				return fmt.Errorf("%w: slot %d has data but no player", ErrInvalidSnapshot, i)
			}
			continue
		}
		if _, err := crypto.PubKeyFromHex(slot.Address); err != nil {
			return fmt.Errorf("%w: slot %d address: %v", ErrInvalidSnapshot, i, err)
		}
		if !commitmentWellFormed(slot.Commitment) {
			return fmt.Errorf("%w: slot %d commitment malformed", ErrInvalidSnapshot, i)
		}
		if slot.Choice > core.ChoiceScissors {
			return fmt.Errorf("%w: slot %d choice %d out of range", ErrInvalidSnapshot, i, slot.Choice)
		}
	}
	if w.Players[0].Occupied() && w.Players[0].Address == w.Players[1].Address {
		return fmt.Errorf("%w: both slots held by the same player", ErrInvalidSnapshot)
	}
	for addr, amount := range s.Escrow {
		if _, err := crypto.PubKeyFromHex(addr); err != nil {
			return fmt.Errorf("%w: escrow entry %q: %v", ErrInvalidSnapshot, addr, err)
		}
		if amount == nil {
			return fmt.Errorf("%w: escrow entry %q missing amount", ErrInvalidSnapshot, addr)
		}
	}
	return nil
}
