package rps

import "github.com/tolelom/duelchain/core"

// Resolve maps two choices to an outcome. Rock beats scissors, scissors
// beats paper, paper beats rock. A player who never revealed loses by
// forfeit; if neither revealed the outcome is OutcomeInvalid, which pays out
// differently from a draw (deposits go back, bets are never transferred).
// Pure and deterministic.
func Resolve(a, b core.Choice) core.Outcome {
	switch {
	case !a.Revealed() && !b.Revealed():
		return core.OutcomeInvalid
	case !b.Revealed():
		return core.OutcomeFirstWins
	case !a.Revealed():
		return core.OutcomeSecondWins
	case a == b:
		return core.OutcomeDraw
	case beats(a, b):
		return core.OutcomeFirstWins
	default:
		return core.OutcomeSecondWins
	}
}

func beats(a, b core.Choice) bool {
	return (a == core.ChoiceRock && b == core.ChoiceScissors) ||
		(a == core.ChoiceScissors && b == core.ChoicePaper) ||
		(a == core.ChoicePaper && b == core.ChoiceRock)
}
