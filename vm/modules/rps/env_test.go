package rps_test

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/internal/testutil"
	"github.com/tolelom/duelchain/storage"
	"github.com/tolelom/duelchain/vm"
	"github.com/tolelom/duelchain/vm/modules/rps"
	"github.com/tolelom/duelchain/wallet"
)

const testChainID = "duelchain-test"

// gameEnv drives wager transactions through the real executor against an
// in-memory state, with per-wallet nonce tracking. Failed transactions do
// not consume a nonce (the executor rolls the increment back).
type gameEnv struct {
	t      *testing.T
	state  *storage.StateDB
	exec   *vm.Executor
	nonces map[string]uint64
}

func newGameEnv(t *testing.T) *gameEnv {
	t.Helper()
	state := storage.NewStateDB(testutil.NewMemDB())
	return &gameEnv{
		t:      t,
		state:  state,
		exec:   vm.NewExecutor(testChainID, state, events.NewEmitter()),
		nonces: make(map[string]uint64),
	}
}

// newPlayer creates a funded wallet.
func (e *gameEnv) newPlayer(balance uint64) *wallet.Wallet {
	e.t.Helper()
	w, err := wallet.Generate()
	if err != nil {
		e.t.Fatal(err)
	}
	if err := e.state.SetAccount(&core.Account{
		Address: w.PubKey(),
		Balance: uint256.NewInt(balance),
	}); err != nil {
		e.t.Fatal(err)
	}
	return w
}

// send executes a built transaction at the given block height, bumping the
// wallet's nonce only on success.
func (e *gameEnv) send(height int64, w *wallet.Wallet, build func(nonce uint64) (*core.Transaction, error)) error {
	e.t.Helper()
	n := e.nonces[w.PubKey()]
	tx, err := build(n)
	if err != nil {
		e.t.Fatal(err)
	}
	block := core.NewBlock(height, "prev", w.PubKey(), []*core.Transaction{tx})
	if err := e.exec.ExecuteTx(block, tx); err != nil {
		return err
	}
	e.nonces[w.PubKey()] = n + 1
	return nil
}

func (e *gameEnv) initGame(height int64, w *wallet.Wallet, bet, deposit uint64, window int64) error {
	return e.send(height, w, func(nonce uint64) (*core.Transaction, error) {
		return w.InitGame(testChainID, uint256.NewInt(bet), uint256.NewInt(deposit), window, nonce, 0)
	})
}

func (e *gameEnv) commit(height int64, w *wallet.Wallet, commitment string, value uint64) error {
	return e.send(height, w, func(nonce uint64) (*core.Transaction, error) {
		return w.Commit(testChainID, commitment, uint256.NewInt(value), nonce, 0)
	})
}

func (e *gameEnv) reveal(height int64, w *wallet.Wallet, choice core.Choice, blinding []byte) error {
	return e.send(height, w, func(nonce uint64) (*core.Transaction, error) {
		return w.Reveal(testChainID, choice, blinding, nonce, 0)
	})
}

func (e *gameEnv) forfeit(height int64, w *wallet.Wallet) error {
	return e.send(height, w, func(nonce uint64) (*core.Transaction, error) {
		return w.Forfeit(testChainID, nonce, 0)
	})
}

func (e *gameEnv) distribute(height int64, w *wallet.Wallet) error {
	return e.send(height, w, func(nonce uint64) (*core.Transaction, error) {
		return w.Distribute(testChainID, nonce, 0)
	})
}

func (e *gameEnv) lock(height int64, w *wallet.Wallet) error {
	return e.send(height, w, func(nonce uint64) (*core.Transaction, error) {
		return w.Lock(testChainID, nonce, 0)
	})
}

func (e *gameEnv) unlock(height int64, w *wallet.Wallet) error {
	return e.send(height, w, func(nonce uint64) (*core.Transaction, error) {
		return w.Unlock(testChainID, nonce, 0)
	})
}

func (e *gameEnv) importState(height int64, w *wallet.Wallet, snap core.WagerSnapshot) error {
	return e.send(height, w, func(nonce uint64) (*core.Transaction, error) {
		return w.ImportState(testChainID, snap, nonce, 0)
	})
}

// ---- assertions ----

func (e *gameEnv) wager() *core.Wager {
	e.t.Helper()
	w, err := e.state.GetWager()
	if err != nil {
		e.t.Fatalf("get wager: %v", err)
	}
	return w
}

func (e *gameEnv) balance(w *wallet.Wallet) uint64 {
	e.t.Helper()
	acc, err := e.state.GetAccount(w.PubKey())
	if err != nil {
		e.t.Fatalf("get account: %v", err)
	}
	return acc.Balance.Uint64()
}

func (e *gameEnv) escrow(w *wallet.Wallet) uint64 {
	e.t.Helper()
	amount, err := e.state.GetEscrow(w.PubKey())
	if err != nil {
		e.t.Fatalf("get escrow: %v", err)
	}
	return amount.Uint64()
}

// validSnapshot builds a consistent mid-round snapshot for two players:
// both committed and escrowed, neither revealed yet, round counter at 3.
func validSnapshot(a, b *wallet.Wallet) core.WagerSnapshot {
	cmtA := rps.Commitment(core.ChoiceRock, []byte("blind-a"), a.PubKey())
	cmtB := rps.Commitment(core.ChoicePaper, []byte("blind-b"), b.PubKey())
	return core.WagerSnapshot{
		Wager: &core.Wager{
			Owner:          a.PubKey(),
			Bet:            uint256.NewInt(100),
			Deposit:        uint256.NewInt(10),
			RevealWindow:   5,
			RevealDeadline: 0,
			Stage:          core.StageFirstReveal,
			Round:          3,
			Players: [2]core.PlayerSlot{
				{Address: a.PubKey(), Commitment: cmtA, Choice: core.ChoiceNone},
				{Address: b.PubKey(), Commitment: cmtB, Choice: core.ChoiceNone},
			},
		},
		Escrow: map[string]*uint256.Int{
			a.PubKey(): uint256.NewInt(110),
			b.PubKey(): uint256.NewInt(110),
		},
	}
}

// setupGame creates the canonical fixture: bet 100, deposit 10, reveal
// window 5 blocks, owner plus two players funded with 1000 each.
func setupGame(t *testing.T) (e *gameEnv, owner, a, b *wallet.Wallet) {
	t.Helper()
	e = newGameEnv(t)
	owner = e.newPlayer(1000)
	a = e.newPlayer(1000)
	b = e.newPlayer(1000)
	if err := e.initGame(1, owner, 100, 10, 5); err != nil {
		t.Fatalf("init: %v", err)
	}
	return e, owner, a, b
}
