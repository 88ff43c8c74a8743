package rps_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/vm/modules/rps"
)

func TestCommitEscrowsBetAndDeposit(t *testing.T) {
	e, _, a, _ := setupGame(t)

	cmt, _, err := a.Commitment(core.ChoiceRock)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.commit(2, a, cmt, 110); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if got := e.balance(a); got != 890 {
		t.Errorf("balance after commit: got %d want 890", got)
	}
	if got := e.escrow(a); got != 110 {
		t.Errorf("escrow after commit: got %d want 110", got)
	}
	w := e.wager()
	if w.Stage != core.StageSecondCommit {
		t.Errorf("stage: got %s want %s", w.Stage, core.StageSecondCommit)
	}
	if w.Players[0].Address != a.PubKey() {
		t.Errorf("slot 0 holds %s, want committer", w.Players[0].Address)
	}
	if w.Players[0].Choice != core.ChoiceNone {
		t.Errorf("slot 0 choice revealed prematurely: %s", w.Players[0].Choice)
	}
}

func TestCommitRefundsExcessValue(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, _, _ := a.Commitment(core.ChoiceRock)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}

	// B over-attaches 150; 40 must come straight back.
	cmtB, _, _ := b.Commitment(core.ChoicePaper)
	if err := e.commit(3, b, cmtB, 150); err != nil {
		t.Fatalf("commit with excess: %v", err)
	}
	if got := e.balance(b); got != 890 {
		t.Errorf("balance after refunded commit: got %d want 890", got)
	}
	if got := e.escrow(b); got != 110 {
		t.Errorf("escrow: got %d want 110", got)
	}
	if w := e.wager(); w.Stage != core.StageFirstReveal {
		t.Errorf("stage: got %s want %s", w.Stage, core.StageFirstReveal)
	}
}

func TestCommitRejectsInsufficientValue(t *testing.T) {
	e, _, a, _ := setupGame(t)

	cmt, _, _ := a.Commitment(core.ChoiceRock)
	err := e.commit(2, a, cmt, 109)
	if !errors.Is(err, rps.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	// The whole transaction rolled back: nothing debited, nothing escrowed.
	if got := e.balance(a); got != 1000 {
		t.Errorf("balance after failed commit: got %d want 1000", got)
	}
	if got := e.escrow(a); got != 0 {
		t.Errorf("escrow after failed commit: got %d want 0", got)
	}
	if w := e.wager(); w.Stage != core.StageFirstCommit {
		t.Errorf("stage moved on failure: %s", w.Stage)
	}
}

func TestCommitRejectsSamePlayerTwice(t *testing.T) {
	e, _, a, _ := setupGame(t)

	cmt, _, _ := a.Commitment(core.ChoiceRock)
	if err := e.commit(2, a, cmt, 110); err != nil {
		t.Fatal(err)
	}
	err := e.commit(3, a, cmt, 110)
	if !errors.Is(err, rps.ErrDuplicatePlayer) {
		t.Fatalf("got %v, want ErrDuplicatePlayer", err)
	}
}

func TestCommitRejectsMalformedCommitment(t *testing.T) {
	e, _, a, _ := setupGame(t)

	err := e.commit(2, a, "not-a-digest", 110)
	if !errors.Is(err, rps.ErrInvalidCommitment) {
		t.Fatalf("got %v, want ErrInvalidCommitment", err)
	}
}

func TestCommitRejectedOutsideCommitStages(t *testing.T) {
	e, _, a, b := setupGame(t)
	c := e.newPlayer(1000)

	cmtA, _, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoicePaper)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}

	cmtC, _, _ := c.Commitment(core.ChoiceScissors)
	err := e.commit(4, c, cmtC, 110)
	if !errors.Is(err, rps.ErrInvalidStage) {
		t.Fatalf("got %v, want ErrInvalidStage", err)
	}
}

func TestFullRoundWinnerTakesPot(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, blindA, _ := a.Commitment(core.ChoiceRock)
	cmtB, blindB, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.reveal(4, a, core.ChoiceRock, blindA); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	if err := e.reveal(5, b, core.ChoiceScissors, blindB); err != nil {
		t.Fatalf("second reveal: %v", err)
	}
	if err := e.distribute(6, b); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// Winner: 2*bet + deposit = 210 on top of the 890 left after committing.
	if got := e.balance(a); got != 1100 {
		t.Errorf("winner balance: got %d want 1100", got)
	}
	// Revealed loser gets the deposit back.
	if got := e.balance(b); got != 900 {
		t.Errorf("loser balance: got %d want 900", got)
	}
	if got := e.escrow(a); got != 0 {
		t.Errorf("winner escrow not zeroed: %d", got)
	}
	if got := e.escrow(b); got != 0 {
		t.Errorf("loser escrow not zeroed: %d", got)
	}

	// Game reset for the next round.
	w := e.wager()
	if w.Stage != core.StageFirstCommit {
		t.Errorf("stage after distribute: got %s want %s", w.Stage, core.StageFirstCommit)
	}
	if w.Round != 1 {
		t.Errorf("round counter: got %d want 1", w.Round)
	}
	if w.Players[0].Occupied() || w.Players[1].Occupied() {
		t.Error("player slots not cleared after distribute")
	}
	if w.RevealDeadline != 0 {
		t.Errorf("reveal deadline not cleared: %d", w.RevealDeadline)
	}

	// Round history.
	rec, err := e.state.GetRound(0)
	if err != nil {
		t.Fatalf("get round 0: %v", err)
	}
	if rec.Outcome != core.OutcomeFirstWins {
		t.Errorf("recorded outcome: got %s want %s", rec.Outcome, core.OutcomeFirstWins)
	}
	if rec.Payouts[0].Uint64() != 210 || rec.Payouts[1].Uint64() != 10 {
		t.Errorf("recorded payouts: got %s/%s want 210/10", rec.Payouts[0], rec.Payouts[1])
	}
}

func TestDrawReturnsBothStakes(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, blindA, _ := a.Commitment(core.ChoicePaper)
	cmtB, blindB, _ := b.Commitment(core.ChoicePaper)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.reveal(4, a, core.ChoicePaper, blindA); err != nil {
		t.Fatal(err)
	}
	if err := e.reveal(5, b, core.ChoicePaper, blindB); err != nil {
		t.Fatal(err)
	}
	if err := e.distribute(6, a); err != nil {
		t.Fatal(err)
	}

	if got := e.balance(a); got != 1000 {
		t.Errorf("player A balance after draw: got %d want 1000", got)
	}
	if got := e.balance(b); got != 1000 {
		t.Errorf("player B balance after draw: got %d want 1000", got)
	}
}

func TestRevealArmsDeadline(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, blindA, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}

	if w := e.wager(); w.RevealDeadline != 0 {
		t.Fatalf("deadline armed before any reveal: %d", w.RevealDeadline)
	}
	if err := e.reveal(7, a, core.ChoiceRock, blindA); err != nil {
		t.Fatal(err)
	}
	// First reveal at height 7 with a 5-block window.
	if w := e.wager(); w.RevealDeadline != 12 {
		t.Errorf("reveal deadline: got %d want 12", w.RevealDeadline)
	}
}

func TestRevealRejectsWrongBlinding(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, _, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}

	wrong := make([]byte, 32)
	err := e.reveal(4, a, core.ChoiceRock, wrong)
	if !errors.Is(err, rps.ErrInvalidCommitment) {
		t.Fatalf("got %v, want ErrInvalidCommitment", err)
	}
	// The failed reveal must leave the slot unrevealed.
	if w := e.wager(); w.Players[0].Choice != core.ChoiceNone {
		t.Errorf("choice leaked on failed reveal: %s", w.Players[0].Choice)
	}
}

func TestRevealRejectsWrongChoice(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, blindA, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}

	// Right blinding, wrong choice: the commitment does not reproduce.
	err := e.reveal(4, a, core.ChoicePaper, blindA)
	if !errors.Is(err, rps.ErrInvalidCommitment) {
		t.Fatalf("got %v, want ErrInvalidCommitment", err)
	}
}

func TestRevealRejectsOutOfRangeChoice(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, _, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}

	err := e.send(4, a, func(nonce uint64) (*core.Transaction, error) {
		return a.NewTx(testChainID, core.TxWagerReveal, nonce, 0, nil, core.WagerRevealPayload{
			Choice:         9,
			BlindingFactor: "aa",
		})
	})
	if !errors.Is(err, rps.ErrInvalidChoice) {
		t.Fatalf("got %v, want ErrInvalidChoice", err)
	}

	// ChoiceNone is not a revealable move either.
	err = e.send(4, a, func(nonce uint64) (*core.Transaction, error) {
		return a.NewTx(testChainID, core.TxWagerReveal, nonce, 0, nil, core.WagerRevealPayload{
			Choice:         uint8(core.ChoiceNone),
			BlindingFactor: "aa",
		})
	})
	if !errors.Is(err, rps.ErrInvalidChoice) {
		t.Fatalf("got %v, want ErrInvalidChoice", err)
	}
}

func TestRevealRejectsStranger(t *testing.T) {
	e, _, a, b := setupGame(t)
	c := e.newPlayer(1000)

	cmtA, _, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}

	blind := make([]byte, 32)
	err := e.reveal(4, c, core.ChoiceRock, blind)
	if !errors.Is(err, rps.ErrUnknownPlayer) {
		t.Fatalf("got %v, want ErrUnknownPlayer", err)
	}
}

func TestRevealRejectsSecondRevealBySamePlayer(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, blindA, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.reveal(4, a, core.ChoiceRock, blindA); err != nil {
		t.Fatal(err)
	}

	err := e.reveal(5, a, core.ChoiceRock, blindA)
	if !errors.Is(err, rps.ErrDuplicatePlayer) {
		t.Fatalf("got %v, want ErrDuplicatePlayer", err)
	}
}

func TestForfeitRespectsDeadline(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, blindA, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.reveal(4, a, core.ChoiceRock, blindA); err != nil {
		t.Fatal(err)
	}
	// Deadline is 4+5=9: forfeit at the deadline itself is still too early.
	if err := e.forfeit(9, a); !errors.Is(err, rps.ErrInvalidStage) {
		t.Fatalf("forfeit at deadline: got %v, want ErrInvalidStage", err)
	}

	if err := e.forfeit(10, a); err != nil {
		t.Fatalf("forfeit past deadline: %v", err)
	}
	if err := e.distribute(11, a); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// A wins by forfeit; B loses bet AND deposit.
	if got := e.balance(a); got != 1100 {
		t.Errorf("winner balance: got %d want 1100", got)
	}
	if got := e.balance(b); got != 890 {
		t.Errorf("forfeiter balance: got %d want 890", got)
	}

	rec, err := e.state.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Outcome != core.OutcomeFirstWins {
		t.Errorf("outcome: got %s want %s", rec.Outcome, core.OutcomeFirstWins)
	}
	if rec.Payouts[1].Uint64() != 0 {
		t.Errorf("forfeiter payout: got %s want 0", rec.Payouts[1])
	}
}

func TestForfeitRejectedBeforeAnyReveal(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, _, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}

	// No reveal yet, so there is no armed deadline to have expired.
	err := e.forfeit(100, a)
	if !errors.Is(err, rps.ErrInvalidStage) {
		t.Fatalf("got %v, want ErrInvalidStage", err)
	}
}

func TestDistributeRejectedBeforeBothReveals(t *testing.T) {
	e, _, a, b := setupGame(t)

	cmtA, blindA, _ := a.Commitment(core.ChoiceRock)
	cmtB, _, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.reveal(4, a, core.ChoiceRock, blindA); err != nil {
		t.Fatal(err)
	}

	err := e.distribute(5, a)
	if !errors.Is(err, rps.ErrInvalidStage) {
		t.Fatalf("got %v, want ErrInvalidStage", err)
	}
}

func TestDistributeFailedPayoutLeavesRoundRetryable(t *testing.T) {
	e, owner, a, b := setupGame(t)

	cmtA, blindA, _ := a.Commitment(core.ChoiceRock)
	cmtB, blindB, _ := b.Commitment(core.ChoiceScissors)
	if err := e.commit(2, a, cmtA, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.commit(3, b, cmtB, 110); err != nil {
		t.Fatal(err)
	}
	if err := e.reveal(4, a, core.ChoiceRock, blindA); err != nil {
		t.Fatal(err)
	}
	if err := e.reveal(5, b, core.ChoiceScissors, blindB); err != nil {
		t.Fatal(err)
	}

	// Saturate the winner's balance so crediting the 210 pot overflows and
	// the payout transfer fails mid-distribution.
	acc, err := e.state.GetAccount(a.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	acc.Balance = new(uint256.Int).SetAllOne()
	if err := e.state.SetAccount(acc); err != nil {
		t.Fatal(err)
	}

	if err := e.distribute(6, owner); !errors.Is(err, rps.ErrDistributeFailed) {
		t.Fatalf("got %v, want ErrDistributeFailed", err)
	}

	// Everything the failed distribution touched must have rolled back so
	// the round stays payable.
	w := e.wager()
	if w.Stage != core.StageDistribute {
		t.Errorf("stage after failed distribute: got %s want %s", w.Stage, core.StageDistribute)
	}
	if !w.Players[0].Occupied() || !w.Players[1].Occupied() {
		t.Error("player slots cleared by failed distribute")
	}
	if got := e.escrow(a); got != 110 {
		t.Errorf("escrow a after failed distribute: got %d want 110", got)
	}
	if got := e.escrow(b); got != 110 {
		t.Errorf("escrow b after failed distribute: got %d want 110", got)
	}
	if _, err := e.state.GetRound(0); err == nil {
		t.Error("round recorded despite failed distribute")
	}

	// With the balance back in range the retry pays out normally.
	acc, err = e.state.GetAccount(a.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	acc.Balance = uint256.NewInt(890)
	if err := e.state.SetAccount(acc); err != nil {
		t.Fatal(err)
	}
	if err := e.distribute(7, owner); err != nil {
		t.Fatalf("retry distribute: %v", err)
	}
	if got := e.balance(a); got != 1100 {
		t.Errorf("winner balance after retry: got %d want 1100", got)
	}
	if got := e.balance(b); got != 900 {
		t.Errorf("loser balance after retry: got %d want 900", got)
	}
	if w := e.wager(); w.Stage != core.StageFirstCommit || w.Round != 1 {
		t.Errorf("game not reset after retry: stage %s round %d", w.Stage, w.Round)
	}
}

func TestOperationsBeforeInit(t *testing.T) {
	e := newGameEnv(t)
	a := e.newPlayer(1000)

	cmt, _, _ := a.Commitment(core.ChoiceRock)
	if err := e.commit(1, a, cmt, 110); !errors.Is(err, rps.ErrNotInitialized) {
		t.Errorf("commit: got %v, want ErrNotInitialized", err)
	}
	if err := e.distribute(1, a); !errors.Is(err, rps.ErrNotInitialized) {
		t.Errorf("distribute: got %v, want ErrNotInitialized", err)
	}
	if err := e.lock(1, a); !errors.Is(err, rps.ErrNotInitialized) {
		t.Errorf("lock: got %v, want ErrNotInitialized", err)
	}
}

func TestBackToBackRounds(t *testing.T) {
	e, _, a, b := setupGame(t)

	playRound := func(hBase int64, choiceA, choiceB core.Choice) {
		t.Helper()
		cmtA, blindA, _ := a.Commitment(choiceA)
		cmtB, blindB, _ := b.Commitment(choiceB)
		if err := e.commit(hBase, a, cmtA, 110); err != nil {
			t.Fatal(err)
		}
		if err := e.commit(hBase+1, b, cmtB, 110); err != nil {
			t.Fatal(err)
		}
		if err := e.reveal(hBase+2, a, choiceA, blindA); err != nil {
			t.Fatal(err)
		}
		if err := e.reveal(hBase+3, b, choiceB, blindB); err != nil {
			t.Fatal(err)
		}
		if err := e.distribute(hBase+4, a); err != nil {
			t.Fatal(err)
		}
	}

	playRound(2, core.ChoiceRock, core.ChoiceScissors)   // A wins the bet
	playRound(10, core.ChoicePaper, core.ChoiceScissors) // B wins it back

	if got := e.balance(a); got != 1000 {
		t.Errorf("player A after two rounds: got %d want 1000", got)
	}
	if got := e.balance(b); got != 1000 {
		t.Errorf("player B after two rounds: got %d want 1000", got)
	}
	if w := e.wager(); w.Round != 2 {
		t.Errorf("round counter: got %d want 2", w.Round)
	}
}
