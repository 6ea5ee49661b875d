// Package ai implements the utility-scored column selector the
// maintenance tick plays on a stalled player's behalf.
//
// Grounded on the teacher's bot package: a single-purpose, stateless
// move-selection package with no dependency on the store or the
// arbiter, taking only a board and a side. The run-counting technique
// itself follows the original Rust front end's get_utility_for_slot /
// get_block_amount, adapted to Go idiom and to fourrow.Board's exported
// RunLength primitive rather than re-walking the grid by hand.
package ai

import (
	"math/rand"

	"fourrow"
)

const (
	utilityWin       = 1.0
	utilityBlockWin  = 0.9
	utilityBase      = 0.5
	utilityCap       = 0.89
	connectTwoMul    = 1.22
	blockTwoMul      = 1.11
	connectOneMul    = 1.05
	opponentWinNextP = 0.1
)

// BestColumn returns the legal column with strictly maximal utility for
// side to move on board, per spec.md §4.E. Ties are broken uniformly at
// random via rng; the arbiter seeds its rng once, with a fixed seed, so
// a given sequence of calls stays reproducible in tests.
func BestColumn(b *fourrow.Board, side fourrow.Side, rng *rand.Rand) (int, bool) {
	bestUtility := -1.0
	var candidates []int

	for col := 0; col < fourrow.Cols; col++ {
		if !b.Legal(col) {
			continue
		}
		u := utility(b, col, side)
		switch {
		case u > bestUtility:
			bestUtility = u
			candidates = candidates[:0]
			candidates = append(candidates, col)
		case u == bestUtility:
			candidates = append(candidates, col)
		}
	}

	if len(candidates) == 0 {
		return 0, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return candidates[rng.Intn(len(candidates))], true
}

// utility scores a single legal column for side, per spec.md §4.E's
// four-step rule.
func utility(b *fourrow.Board, col int, side fourrow.Side) float64 {
	idx := b.DropIndex(col)
	opp := side.Opposite()

	// Step 1: does placing here complete 4-in-a-row for side? The game
	// ends immediately, so there is no next move to hand the opponent.
	if b.RunLength(idx, side) >= 4 {
		return utilityWin
	}

	var u float64
	switch {
	case b.RunLength(idx, opp) >= 4:
		// Step 2: denies the opponent an immediate win.
		u = utilityBlockWin
	case b.RunLength(idx, side) == 3:
		// Step 3: two of this side's tokens already connected through idx.
		u = cap89(utilityBase * connectTwoMul)
	case b.RunLength(idx, opp) == 3:
		// Step 3: two of the opponent's tokens already connected through idx.
		u = cap89(utilityBase * blockTwoMul)
	case b.RunLength(idx, side) == 2:
		// Step 3: one of this side's tokens already adjacent to idx.
		u = cap89(utilityBase * connectOneMul)
	default:
		u = utilityBase
	}

	// Step 4: does taking this cell hand the opponent an immediate win
	// from directly above on their next move?
	above := idx - fourrow.Cols
	if aboveIsOpen(b, idx, above) {
		sim := b.Copy()
		if _, err := sim.Place(col, side); err == nil {
			if sim.RunLength(above, opp) >= 4 {
				u *= opponentWinNextP
			}
		}
	}

	return u
}

// aboveIsOpen reports whether the cell directly above idx is in the same
// column and currently empty (i.e. it would become the next drop slot
// in that column once idx is filled).
func aboveIsOpen(b *fourrow.Board, idx, above int) bool {
	if above < 0 {
		return false
	}
	if idx%fourrow.Cols != above%fourrow.Cols {
		return false
	}
	return (*b)[above] == fourrow.CellEmpty
}

func cap89(u float64) float64 {
	if u > utilityCap {
		return utilityCap
	}
	return u
}
