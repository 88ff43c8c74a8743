// Package indexer maintains secondary indexes over committed blocks so
// clients can query a player's round history without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/storage"
)

const prefixPlayerRounds = "idx:player:round:"

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventWagerDistribute, idx.onDistribute)
	return idx
}

// GetRoundsByPlayer returns the round numbers a player participated in.
func (idx *Indexer) GetRoundsByPlayer(player string) ([]uint64, error) {
	return idx.getList(prefixPlayerRounds + player)
}

// onDistribute records the completed round for both participants.
func (idx *Indexer) onDistribute(ev events.Event) {
	round, ok := ev.Data["round"].(uint64)
	if !ok {
		return
	}
	players, _ := ev.Data["players"].([]string)
	for _, p := range players {
		if p != "" {
			_ = idx.addToList(prefixPlayerRounds+p, round)
		}
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var rounds []uint64
	if err := json.Unmarshal(data, &rounds); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return rounds, nil
}

func (idx *Indexer) addToList(key string, round uint64) error {
	rounds, _ := idx.getList(key)
	rounds = append(rounds, round)
	data, err := json.Marshal(rounds)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
