package core

import "github.com/holiman/uint256"

// Stage is the current phase of the two-player commit-reveal protocol.
// It only advances forward and resets to StageFirstCommit when a round
// completes distribution.
type Stage uint8

const (
	StageFirstCommit Stage = iota
	StageSecondCommit
	StageFirstReveal
	StageSecondReveal
	StageDistribute
)

// Valid reports whether s is within the stage enum range.
func (s Stage) Valid() bool {
	return s <= StageDistribute
}

func (s Stage) String() string {
	switch s {
	case StageFirstCommit:
		return "first_commit"
	case StageSecondCommit:
		return "second_commit"
	case StageFirstReveal:
		return "first_reveal"
	case StageSecondReveal:
		return "second_reveal"
	case StageDistribute:
		return "distribute"
	default:
		return "unknown"
	}
}

// Choice is a player's move. ChoiceNone marks a slot whose player has
// committed but not (yet) revealed.
type Choice uint8

const (
	ChoiceNone Choice = iota
	ChoiceRock
	ChoicePaper
	ChoiceScissors
)

// ChoiceFromByte converts a raw payload byte into a Choice.
// ok is false for out-of-range values; callers reject those instead of
// panicking on bad input.
func ChoiceFromByte(v uint8) (Choice, bool) {
	c := Choice(v)
	return c, c <= ChoiceScissors
}

// Revealed reports whether the choice is an actual move.
func (c Choice) Revealed() bool {
	return c >= ChoiceRock && c <= ChoiceScissors
}

func (c Choice) String() string {
	switch c {
	case ChoiceNone:
		return "none"
	case ChoiceRock:
		return "rock"
	case ChoicePaper:
		return "paper"
	case ChoiceScissors:
		return "scissors"
	default:
		return "unknown"
	}
}

// Outcome is the result of resolving two choices.
type Outcome uint8

const (
	OutcomeDraw Outcome = iota
	OutcomeFirstWins
	OutcomeSecondWins
	// OutcomeInvalid means neither player revealed. Payout math differs from
	// a draw: only deposits are returned, bets stay in custody.
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDraw:
		return "draw"
	case OutcomeFirstWins:
		return "first_wins"
	case OutcomeSecondWins:
		return "second_wins"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// PlayerSlot holds one participant of the current round.
type PlayerSlot struct {
	Address    string `json:"address"`    // pubkey hex; empty → slot free
	Commitment string `json:"commitment"` // hex SHA-256 over (choice ‖ blinding ‖ address)
	Choice     Choice `json:"choice"`     // ChoiceNone until revealed
}

// Occupied reports whether a player has claimed this slot.
func (s *PlayerSlot) Occupied() bool {
	return s.Address != ""
}

// Wager is the singleton commit-reveal game state for this deployment.
type Wager struct {
	Owner          string        `json:"owner"` // initializer; holds the admin capability
	Bet            *uint256.Int  `json:"bet"`
	Deposit        *uint256.Int  `json:"deposit"`
	RevealWindow   int64         `json:"reveal_window"`   // block heights the second revealer has
	RevealDeadline int64         `json:"reveal_deadline"` // absolute height; 0 → not armed
	Stage          Stage         `json:"stage"`
	Locked         bool          `json:"locked"`
	Round          uint64        `json:"round"` // completed-round counter
	Players        [2]PlayerSlot `json:"players"`
}

// SlotOf returns the slot index occupied by address, or -1.
func (w *Wager) SlotOf(address string) int {
	for i := range w.Players {
		if w.Players[i].Address == address {
			return i
		}
	}
	return -1
}

// RoundRecord is the persisted result of a completed round.
type RoundRecord struct {
	Round   uint64          `json:"round"`
	Players [2]string       `json:"players"`
	Choices [2]Choice       `json:"choices"`
	Outcome Outcome         `json:"outcome"`
	Payouts [2]*uint256.Int `json:"payouts"`
	Height  int64           `json:"height"` // block height of distribution
}

// WagerSnapshot is the full exportable game state, used to migrate a running
// game to a new deployment without losing in-flight commitments.
type WagerSnapshot struct {
	Wager  *Wager                  `json:"wager"`
	Escrow map[string]*uint256.Int `json:"escrow"`
}
