// Package rps implements the two-party commit-reveal wager: both players
// escrow bet+deposit behind a hidden commitment, reveal their rock/paper/
// scissors choice with proof it matches, and a distribution step resolves
// the round and pays out the escrowed pool. A player who fails to reveal
// before the deadline forfeits their deposit.
package rps

import (
	"errors"
	"fmt"

	"github.com/tolelom/duelchain/core"
)

func init() {
	register()
}

// loadWager fetches the singleton game, translating a missing record into
// ErrNotInitialized.
func loadWager(st core.State) (*core.Wager, error) {
	w, err := st.GetWager()
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load wager state: %w", err)
	}
	return w, nil
}

// requireUnlocked gates every state-mutating operation on the admin lock.
func requireUnlocked(w *core.Wager) error {
	if w.Locked {
		return ErrLocked
	}
	return nil
}
