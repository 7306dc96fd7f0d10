package engine

import (
	"time"

	"github.com/hailam/blobchess/internal/board"
)

// DefaultMoveOverhead is subtracted from every timed budget to cover
// process and protocol latency.
const DefaultMoveOverhead = 30 * time.Millisecond

const minMoveTime = 10 * time.Millisecond

// SearchLimits contains the time control of a think request.
type SearchLimits struct {
	Time      [2]time.Duration // wtime, btime (remaining time for each color)
	Inc       [2]time.Duration // winc, binc (increment per move)
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move (overrides other time controls)
	Depth     int              // maximum search depth in plies
	Nodes     uint64           // node budget (0 = unlimited)
	Infinite  bool             // search until stopped
}

// Budget is the time a search may use. Unbounded budgets never expire.
type Budget struct {
	Duration  time.Duration
	Unbounded bool
}

// TimeManager turns search limits into a budget.
type TimeManager struct {
	overhead time.Duration
}

// NewTimeManager creates a time manager with the given move overhead.
func NewTimeManager(overhead time.Duration) *TimeManager {
	if overhead < 0 {
		overhead = 0
	}
	return &TimeManager{overhead: overhead}
}

// Overhead returns the configured move overhead.
func (tm *TimeManager) Overhead() time.Duration {
	return tm.overhead
}

// Allocate computes the budget for the side to move in pos.
func (tm *TimeManager) Allocate(limits SearchLimits, pos *board.Position) Budget {
	if limits.Infinite {
		return Budget{Unbounded: true}
	}

	// Fixed move time mode
	if limits.MoveTime > 0 {
		return Budget{Duration: tm.afterOverhead(limits.MoveTime)}
	}

	us := pos.SideToMove()
	timeLeft := limits.Time[us]
	if timeLeft <= 0 {
		// Depth-limited or no clock at all.
		return Budget{Unbounded: true}
	}
	inc := limits.Inc[us]

	mtg := limits.MovesToGo
	if mtg <= 0 {
		mtg = estimateMovesRemaining(pos)
	}

	// Base time per move plus most of the increment.
	moveTime := timeLeft/time.Duration(mtg) + inc*90/100

	// Safety: never use more than 90% of remaining time
	if maxTime := timeLeft * 90 / 100; moveTime > maxTime {
		moveTime = maxTime
	}
	if moveTime < minMoveTime {
		moveTime = minMoveTime
	}
	return Budget{Duration: tm.afterOverhead(moveTime)}
}

func (tm *TimeManager) afterOverhead(d time.Duration) time.Duration {
	d -= tm.overhead
	if d < minMoveTime {
		d = minMoveTime
	}
	return d
}

// estimateMovesRemaining estimates remaining moves based on piece count.
func estimateMovesRemaining(pos *board.Position) int {
	totalPieces := pos.AllOccupied().PopCount()

	if totalPieces > 24 {
		return 40 // Opening/early middlegame
	} else if totalPieces > 12 {
		return 30 // Middlegame
	}
	return 20 // Endgame
}

// watchdog stops ctl when the budget expires or stop is closed, and returns
// early once finished is closed.
func watchdog(ctl *SearchControl, budget Budget, stop, finished <-chan struct{}) {
	var expired <-chan time.Time
	if !budget.Unbounded {
		timer := time.NewTimer(budget.Duration)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-expired:
		ctl.Stop()
	case <-stop:
		ctl.Stop()
	case <-finished:
	}
}
