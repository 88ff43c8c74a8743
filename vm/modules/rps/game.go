package rps

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/vm"
)

func register() {
	vm.Register(core.TxWagerInit, handleInit)
	vm.Register(core.TxWagerLock, handleLock)
	vm.Register(core.TxWagerUnlock, handleUnlock)
	vm.Register(core.TxWagerImport, handleImport)
	vm.Register(core.TxWagerCommit, handleCommit)
	vm.Register(core.TxWagerReveal, handleReveal)
	vm.Register(core.TxWagerForfeit, handleForfeit)
	vm.Register(core.TxWagerDistribute, handleDistribute)
}

// handleCommit populates the next free slot with the caller's commitment and
// escrows bet+deposit from the attached value, refunding any excess
// immediately.
func handleCommit(ctx *vm.Context, payload json.RawMessage) error {
	var p core.WagerCommitPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode rps_commit payload: %w", err)
	}

	w, err := loadWager(ctx.State)
	if err != nil {
		return err
	}
	if err := requireUnlocked(w); err != nil {
		return err
	}

	var slot int
	switch w.Stage {
	case core.StageFirstCommit:
		slot = 0
	case core.StageSecondCommit:
		slot = 1
	default:
		return fmt.Errorf("%w: commit not accepted in stage %s", ErrInvalidStage, w.Stage)
	}

	commitment := strings.ToLower(p.Commitment)
	if !commitmentWellFormed(commitment) {
		return fmt.Errorf("%w: commitment must be a 64-char hex digest", ErrInvalidCommitment)
	}
	if slot == 1 && w.Players[0].Address == ctx.Caller() {
		return fmt.Errorf("%w: %s already occupies slot 0", ErrDuplicatePlayer, ctx.Caller())
	}

	cost, overflow := new(uint256.Int).AddOverflow(w.Bet, w.Deposit)
	if overflow {
		return fmt.Errorf("bet+deposit overflows")
	}
	value := ctx.Value()
	if value.Lt(cost) {
		return fmt.Errorf("%w: attached %s, commit requires %s", ErrInsufficientFunds, value, cost)
	}
	// Refund the excess right away; only bet+deposit stays in escrow.
	if excess := new(uint256.Int).Sub(value, cost); !excess.IsZero() {
		if err := ctx.Transfer(ctx.Caller(), excess); err != nil {
			return fmt.Errorf("%w: refund excess: %v", ErrTransferFailed, err)
		}
	}
	if err := escrowDeposit(ctx.State, ctx.Caller(), cost); err != nil {
		return err
	}

	w.Players[slot] = core.PlayerSlot{
		Address:    ctx.Caller(),
		Commitment: commitment,
		Choice:     core.ChoiceNone,
	}
	if slot == 0 {
		w.Stage = core.StageSecondCommit
	} else {
		w.Stage = core.StageFirstReveal
	}
	if err := ctx.State.SetWager(w); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventWagerCommit,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Height(),
			Data:        map[string]any{"player": ctx.Caller(), "slot": slot, "stage": w.Stage.String()},
		})
	}
	return nil
}

// handleReveal opens the caller's commitment. The first successful reveal
// arms the reveal deadline; the second advances the game to distribution.
func handleReveal(ctx *vm.Context, payload json.RawMessage) error {
	var p core.WagerRevealPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode rps_reveal payload: %w", err)
	}

	w, err := loadWager(ctx.State)
	if err != nil {
		return err
	}
	if err := requireUnlocked(w); err != nil {
		return err
	}
	if w.Stage != core.StageFirstReveal && w.Stage != core.StageSecondReveal {
		return fmt.Errorf("%w: reveal not accepted in stage %s", ErrInvalidStage, w.Stage)
	}

	choice, ok := core.ChoiceFromByte(p.Choice)
	if !ok || !choice.Revealed() {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, p.Choice)
	}

	idx := w.SlotOf(ctx.Caller())
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, ctx.Caller())
	}
	if w.Players[idx].Choice.Revealed() {
		return fmt.Errorf("%w: %s already revealed", ErrDuplicatePlayer, ctx.Caller())
	}

	blinding, err := hex.DecodeString(p.BlindingFactor)
	if err != nil {
		return fmt.Errorf("%w: blinding factor must be hex", ErrInvalidCommitment)
	}
	if !VerifyCommitment(w.Players[idx].Commitment, choice, blinding, ctx.Caller()) {
		return fmt.Errorf("%w: reveal does not match commitment", ErrInvalidCommitment)
	}

	w.Players[idx].Choice = choice
	if w.Stage == core.StageFirstReveal {
		w.RevealDeadline = ctx.Height() + w.RevealWindow
		w.Stage = core.StageSecondReveal
	} else {
		w.Stage = core.StageDistribute
	}
	if err := ctx.State.SetWager(w); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventWagerReveal,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Height(),
			Data:        map[string]any{"player": ctx.Caller(), "choice": choice.String(), "stage": w.Stage.String()},
		})
	}
	return nil
}

// handleForfeit forces the transition to distribution once the reveal
// deadline has passed with the second reveal still missing. Callable by
// anyone; the non-revealer's choice stays None and resolves as a forfeit
// loss.
func handleForfeit(ctx *vm.Context, _ json.RawMessage) error {
	w, err := loadWager(ctx.State)
	if err != nil {
		return err
	}
	if err := requireUnlocked(w); err != nil {
		return err
	}
	if w.Stage != core.StageSecondReveal {
		return fmt.Errorf("%w: forfeit not accepted in stage %s", ErrInvalidStage, w.Stage)
	}
	if ctx.Height() <= w.RevealDeadline {
		return fmt.Errorf("%w: reveal deadline %d not passed at height %d",
			ErrInvalidStage, w.RevealDeadline, ctx.Height())
	}

	var forfeiter string
	for i := range w.Players {
		if !w.Players[i].Choice.Revealed() {
			forfeiter = w.Players[i].Address
		}
	}

	w.Stage = core.StageDistribute
	if err := ctx.State.SetWager(w); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventWagerForfeit,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Height(),
			Data:        map[string]any{"forfeiter": forfeiter, "caller": ctx.Caller()},
		})
	}
	return nil
}

// handleDistribute resolves the round, zeroes the escrow entries, pays out
// the pool, records the round and resets the game for the next round.
// Callable by anyone once StageDistribute is reached. If any payout transfer
// fails the whole operation fails and can be retried.
func handleDistribute(ctx *vm.Context, _ json.RawMessage) error {
	w, err := loadWager(ctx.State)
	if err != nil {
		return err
	}
	if err := requireUnlocked(w); err != nil {
		return err
	}
	if w.Stage != core.StageDistribute {
		return fmt.Errorf("%w: distribute not accepted in stage %s", ErrInvalidStage, w.Stage)
	}

	c0, c1 := w.Players[0].Choice, w.Players[1].Choice
	outcome := Resolve(c0, c1)

	principal, overflow := new(uint256.Int).AddOverflow(w.Bet, w.Deposit)
	if overflow {
		return fmt.Errorf("bet+deposit overflows")
	}
	winnings := new(uint256.Int).Add(new(uint256.Int).Lsh(w.Bet, 1), w.Deposit) // 2*bet + deposit

	var payouts [2]*uint256.Int
	switch outcome {
	case core.OutcomeDraw:
		// Both principals go back.
		payouts[0], payouts[1] = principal, principal
	case core.OutcomeFirstWins:
		payouts[0] = winnings
		payouts[1] = loserShare(c1, w.Deposit)
	case core.OutcomeSecondWins:
		payouts[0] = loserShare(c0, w.Deposit)
		payouts[1] = winnings
	case core.OutcomeInvalid:
		// Neither revealed: deposits go back, bets stay in custody. Nothing
		// is ever transferred to whoever triggered the distribution.
		payouts[0], payouts[1] = w.Deposit, w.Deposit
	}

	// Zero both escrow entries and check that the pool covers the payouts,
	// so a bug in the table can never mint funds.
	escrowed := uint256.NewInt(0)
	for i := range w.Players {
		entry, err := ctx.State.GetEscrow(w.Players[i].Address)
		if err != nil {
			return fmt.Errorf("escrow entry %s: %w", w.Players[i].Address, err)
		}
		if err := escrowDebit(ctx.State, w.Players[i].Address, entry); err != nil {
			return err
		}
		escrowed.Add(escrowed, entry)
	}
	owed := new(uint256.Int).Add(payouts[0], payouts[1])
	if escrowed.Lt(owed) {
		return fmt.Errorf("%w: payouts %s exceed escrowed pool %s", ErrDistributeFailed, owed, escrowed)
	}

	for i := range w.Players {
		if err := payoutFunds(ctx, w.Players[i].Address, payouts[i]); err != nil {
			return fmt.Errorf("%w: slot %d: %v", ErrDistributeFailed, i, err)
		}
	}

	record := &core.RoundRecord{
		Round:   w.Round,
		Players: [2]string{w.Players[0].Address, w.Players[1].Address},
		Choices: [2]core.Choice{c0, c1},
		Outcome: outcome,
		Payouts: payouts,
		Height:  ctx.Height(),
	}
	if err := ctx.State.SetRound(record); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventWagerDistribute,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Height(),
			Data: map[string]any{
				"round":   w.Round,
				"players": []string{w.Players[0].Address, w.Players[1].Address},
				"outcome": outcome.String(),
			},
		})
	}

	w.Round++
	w.Players = [2]core.PlayerSlot{}
	w.RevealDeadline = 0
	w.Stage = core.StageFirstCommit
	return ctx.State.SetWager(w)
}

// loserShare is what a beaten player receives: the deposit comes back only
// if they actually revealed; a forfeiter loses it.
func loserShare(c core.Choice, deposit *uint256.Int) *uint256.Int {
	if c.Revealed() {
		return deposit
	}
	return uint256.NewInt(0)
}
