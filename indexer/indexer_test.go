package indexer_test

import (
	"testing"

	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/indexer"
	"github.com/tolelom/duelchain/internal/testutil"
)

func TestIndexerRecordsRoundsPerPlayer(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	distribute := func(round uint64, players []string) {
		emitter.Emit(events.Event{
			Type: events.EventWagerDistribute,
			Data: map[string]any{"round": round, "players": players},
		})
	}
	distribute(0, []string{"aa", "bb"})
	distribute(1, []string{"aa", "cc"})

	rounds, err := idx.GetRoundsByPlayer("aa")
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 2 || rounds[0] != 0 || rounds[1] != 1 {
		t.Errorf("rounds for aa: got %v want [0 1]", rounds)
	}

	rounds, err = idx.GetRoundsByPlayer("cc")
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 1 || rounds[0] != 1 {
		t.Errorf("rounds for cc: got %v want [1]", rounds)
	}
}

func TestIndexerUnknownPlayerIsEmpty(t *testing.T) {
	idx := indexer.New(testutil.NewMemDB(), events.NewEmitter())
	rounds, err := idx.GetRoundsByPlayer("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 0 {
		t.Errorf("rounds: got %v want empty", rounds)
	}
}

func TestIndexerIgnoresMalformedEvents(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	// Missing round field: the event is skipped, not indexed half-way.
	emitter.Emit(events.Event{
		Type: events.EventWagerDistribute,
		Data: map[string]any{"players": []string{"aa"}},
	})

	rounds, err := idx.GetRoundsByPlayer("aa")
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 0 {
		t.Errorf("rounds: got %v want empty", rounds)
	}
}
