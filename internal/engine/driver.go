package engine

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/blobchess/internal/board"
)

var (
	ErrNoLegalMoves     = errors.New("no legal moves at the root")
	ErrNoCompletedDepth = errors.New("search stopped before depth 0 completed")
)

// Info describes one completed iterative deepening pass.
type Info struct {
	Depth   int // plies, root move included
	Score   int
	Nodes   uint64
	Elapsed time.Duration
	NPS     uint64
	Best    board.Move
}

// Result is the outcome of a think request.
type Result struct {
	Move    board.Move
	Score   int
	Depth   int
	Nodes   uint64
	Elapsed time.Duration
	Ranking RootRanking
}

// NPS returns the node rate of the search.
func (r Result) NPS() uint64 {
	return nodesPerSecond(r.Nodes, r.Elapsed)
}

func nodesPerSecond(nodes uint64, elapsed time.Duration) uint64 {
	if elapsed <= 0 {
		return 0
	}
	return uint64(float64(nodes) / elapsed.Seconds())
}

// Driver runs iterative deepening over root passes until the control is
// stopped, a forced win is found or MaxDepth is reached.
type Driver struct {
	state    *SearchState
	ctl      *SearchControl
	searcher *Searcher

	// MaxDepth limits the search depth in plies. Zero means no limit.
	MaxDepth int
	OnInfo   func(Info)

	logger zerolog.Logger
}

// NewDriver creates a driver for one think request.
func NewDriver(state *SearchState, ctl *SearchControl, logger zerolog.Logger) *Driver {
	return &Driver{
		state:    state,
		ctl:      ctl,
		searcher: NewSearcher(state, ctl),
		logger:   logger,
	}
}

// Run searches until stopped. A pass cut short by cancellation is
// discarded; the result is that of the last completed pass. When no pass
// completed, the first statically ordered move is returned together with
// ErrNoCompletedDepth.
func (d *Driver) Run() (Result, error) {
	start := time.Now()
	pos := d.state.pos

	legal := pos.LegalMoves()
	if len(legal) == 0 {
		return Result{Move: board.NoMove}, ErrNoLegalMoves
	}

	var ranking RootRanking
	result := Result{Move: RootOrder(d.state, legal, nil, board.NoMove)[0]}
	completed := false

	for depth := 0; depth < MaxPly; depth++ {
		if d.ctl.Stopped() {
			break
		}

		order := RootOrder(d.state, legal, ranking, result.Move)
		pass, ok := d.rootPass(depth, order)
		if !ok {
			d.logger.Debug().
				Int("depth", depth+1).
				Int("searched", len(pass)).
				Int("moves", len(order)).
				Msg("discarding-partial-pass")
			break
		}

		pass.Sort()
		ranking = pass
		completed = true
		result = Result{
			Move:    pass[0].Move,
			Score:   pass[0].Score,
			Depth:   depth + 1,
			Nodes:   d.ctl.Nodes(),
			Elapsed: time.Since(start),
			Ranking: pass,
		}

		if d.OnInfo != nil {
			d.OnInfo(Info{
				Depth:   result.Depth,
				Score:   result.Score,
				Nodes:   result.Nodes,
				Elapsed: result.Elapsed,
				NPS:     result.NPS(),
				Best:    result.Move,
			})
		}

		if result.Score >= WinScore {
			d.logger.Debug().Int("depth", result.Depth).Str("move", result.Move.String()).Msg("forced-win-found")
			break
		}
		if d.MaxDepth > 0 && result.Depth >= d.MaxDepth {
			break
		}
	}

	result.Nodes = d.ctl.Nodes()
	result.Elapsed = time.Since(start)
	if !completed {
		return result, ErrNoCompletedDepth
	}
	return result, nil
}

// rootPass searches every root move with children at depth. It reports
// false if the control was stopped before the pass finished.
func (d *Driver) rootPass(depth int, order []board.Move) (RootRanking, bool) {
	alpha, beta := -Infinity, Infinity
	pass := make(RootRanking, 0, len(order))

	for i, m := range order {
		score := -d.state.Apply(m, func() int {
			if i == 0 {
				return d.searcher.alphaBeta(depth, 1, -beta, -alpha, false)
			}
			scout := d.searcher.alphaBeta(depth, 1, -(alpha + 1), -alpha, true)
			if -scout > alpha {
				return d.searcher.alphaBeta(depth, 1, -beta, -alpha, false)
			}
			return scout
		})

		if d.ctl.Stopped() {
			return pass, false
		}

		pass = append(pass, ScoredMove{Move: m, Score: score})
		if score > alpha {
			alpha = score
		}
	}
	return pass, true
}
