package engine

import (
	"sync/atomic"

	"github.com/hailam/blobchess/internal/board"
)

// Search constants
const (
	Infinity = WinScore + 1
	MaxPly   = 64
)

// SearchControl is the cancellation flag and node counter of one think
// request. Once stopped it stays stopped; a new request gets a new control.
type SearchControl struct {
	stopFlag  atomic.Bool
	nodes     atomic.Uint64
	nodeLimit uint64
}

// NewSearchControl returns an armed control.
func NewSearchControl() *SearchControl {
	return &SearchControl{}
}

// Stop signals every frame of the search to unwind.
func (c *SearchControl) Stop() {
	c.stopFlag.Store(true)
}

// Stopped reports whether Stop has been called.
func (c *SearchControl) Stopped() bool {
	return c.stopFlag.Load()
}

// SetNodeLimit stops the search once n nodes have been visited. Zero means
// no limit. It must be called before the search starts.
func (c *SearchControl) SetNodeLimit(n uint64) {
	c.nodeLimit = n
}

func (c *SearchControl) visit() {
	if n := c.nodes.Add(1); c.nodeLimit > 0 && n >= c.nodeLimit {
		c.Stop()
	}
}

// Nodes returns the number of nodes visited so far.
func (c *SearchControl) Nodes() uint64 {
	return c.nodes.Load()
}

// Searcher runs negamax alpha-beta and quiescence over a SearchState.
type Searcher struct {
	state *SearchState
	ctl   *SearchControl
}

// NewSearcher creates a searcher. The state must not be touched by anyone
// else while a search runs.
func NewSearcher(state *SearchState, ctl *SearchControl) *Searcher {
	return &Searcher{state: state, ctl: ctl}
}

// AlphaBeta searches the current position to depth and returns a score
// from the side to move's point of view, within [alpha, beta].
func (sr *Searcher) AlphaBeta(depth, alpha, beta int, useNullWindow bool) int {
	return sr.alphaBeta(depth, 0, alpha, beta, useNullWindow)
}

// Quiescence searches captures and queen promotions (every move when in
// check) until the position is quiet.
func (sr *Searcher) Quiescence(alpha, beta int) int {
	return sr.quiescence(0, alpha, beta)
}

func clamp(score, alpha, beta int) int {
	return max(alpha, min(score, beta))
}

func (sr *Searcher) alphaBeta(depth, ply, alpha, beta int, useNullWindow bool) int {
	sr.ctl.visit()
	pos := sr.state.pos

	if depth <= 0 || ply >= MaxPly || pos.IsGameOver() {
		return clamp(sr.quiescence(ply, alpha, beta), alpha, beta)
	}

	moves := pos.LegalMoves()
	OrderTactical(sr.state, moves)

	for i, m := range moves {
		score := -sr.state.Apply(m, func() int {
			subDepth := depth - 1
			if pos.InCheck() {
				subDepth = depth
			}

			if useNullWindow || i == 0 {
				return sr.alphaBeta(subDepth, ply+1, -beta, -alpha, useNullWindow)
			}

			scout := sr.alphaBeta(subDepth, ply+1, -(alpha + 1), -alpha, true)
			if -scout > alpha && beta > alpha+1 {
				return sr.alphaBeta(subDepth, ply+1, -beta, -alpha, false)
			}
			return scout
		})

		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
		if sr.ctl.Stopped() {
			return alpha
		}
	}

	return alpha
}

func (sr *Searcher) quiescence(ply, alpha, beta int) int {
	sr.ctl.visit()
	pos := sr.state.pos

	baseline := sr.state.FlippedEval()
	if pos.IsGameOver() {
		return baseline
	}

	inCheck := pos.InCheck()
	if !inCheck {
		// Stand pat.
		if baseline >= beta {
			return beta
		}
		if baseline > alpha {
			alpha = baseline
		}
	}
	if ply >= MaxPly {
		return clamp(baseline, alpha, beta)
	}

	moves := pos.LegalMoves()
	if !inCheck {
		moves = filterQuiescence(sr.state, moves)
	}
	OrderTactical(sr.state, moves)

	for _, m := range moves {
		score := -sr.state.Apply(m, func() int {
			return sr.quiescence(ply+1, -beta, -alpha)
		})

		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
		if sr.ctl.Stopped() {
			return alpha
		}
	}

	return alpha
}

func filterQuiescence(s *SearchState, moves []board.Move) []board.Move {
	out := moves[:0]
	for _, m := range moves {
		if IsQuiescenceMove(s, m) {
			out = append(out, m)
		}
	}
	return out
}
