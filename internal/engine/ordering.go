package engine

import (
	"cmp"
	"slices"

	"github.com/hailam/blobchess/internal/board"
)

// Tactical key of a quiet move that gives check. Any capture outranks it.
const checkKey = 1

// ScoredMove pairs a move with a score from the mover's point of view.
type ScoredMove struct {
	Move  board.Move
	Score int
}

// RootRanking is the root move list of one search pass.
type RootRanking []ScoredMove

// Sort orders the ranking by descending score. Equal scores keep their
// search order.
func (r RootRanking) Sort() {
	slices.SortStableFunc(r, func(a, b ScoredMove) int {
		return cmp.Compare(b.Score, a.Score)
	})
}

// Best returns the top entry, or NoMove for an empty ranking.
func (r RootRanking) Best() ScoredMove {
	if len(r) == 0 {
		return ScoredMove{Move: board.NoMove}
	}
	return r[0]
}

// Contains reports whether m has an entry.
func (r RootRanking) Contains(m board.Move) bool {
	return slices.ContainsFunc(r, func(sm ScoredMove) bool { return sm.Move == m })
}

// Moves returns the moves in ranking order.
func (r RootRanking) Moves() []board.Move {
	moves := make([]board.Move, len(r))
	for i, sm := range r {
		moves[i] = sm.Move
	}
	return moves
}

// TacticalKey ranks a move for quiescence and interior nodes, higher first:
// captures by victim value, queen promotions as a queen capture, quiet
// checks, then everything else.
func TacticalKey(s *SearchState, m board.Move) int {
	pos := s.pos
	key := 0
	if victim := pos.CapturedPiece(m); victim != board.NoPiece {
		key = PieceValue(victim.Type())
	}
	if m.Promotion() == board.Queen {
		key = max(key, QueenValue)
	}
	if key == 0 && pos.GivesCheck(m) {
		key = checkKey
	}
	return key
}

// IsQuiescenceMove reports whether m is searched by quiescence when the
// side to move is not in check.
func IsQuiescenceMove(s *SearchState, m board.Move) bool {
	return s.pos.IsCapture(m) || m.Promotion() == board.Queen
}

// OrderTactical sorts moves in place by descending tactical key. Moves with
// equal keys keep generation order.
func OrderTactical(s *SearchState, moves []board.Move) {
	if len(moves) < 2 {
		return
	}
	scored := make([]ScoredMove, len(moves))
	for i, m := range moves {
		scored[i] = ScoredMove{Move: m, Score: TacticalKey(s, m)}
	}
	RootRanking(scored).Sort()
	for i, sm := range scored {
		moves[i] = sm.Move
	}
}

// RootOrder returns the order in which root moves are searched. Without a
// usable previous ranking it falls back to the tactical key. Otherwise the
// previous best move goes first and the rest follow the previous ranking.
func RootOrder(s *SearchState, legal []board.Move, prev RootRanking, prevBest board.Move) []board.Move {
	order := slices.Clone(legal)
	if len(prev) == 0 || prevBest == board.NoMove || !slices.Contains(legal, prevBest) {
		OrderTactical(s, order)
		return order
	}

	ranked := slices.Clone(prev)
	ranked.Sort()

	order = order[:0]
	order = append(order, prevBest)
	for _, sm := range ranked {
		if sm.Move != prevBest && slices.Contains(legal, sm.Move) {
			order = append(order, sm.Move)
		}
	}

	// Moves the ranking never saw go last in tactical order.
	var rest []board.Move
	for _, m := range legal {
		if !slices.Contains(order, m) {
			rest = append(rest, m)
		}
	}
	OrderTactical(s, rest)
	return append(order, rest...)
}
