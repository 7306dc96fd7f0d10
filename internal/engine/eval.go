// Package engine implements the chess search core: the incremental
// evaluator, move ordering, alpha-beta search, iterative deepening and the
// time-bounded search session.
package engine

import (
	"fmt"
	"slices"

	"github.com/hailam/blobchess/internal/board"
)

// Evaluation constants
const (
	PawnValue   = 100
	KnightValue = 350
	BishopValue = 351
	RookValue   = 500
	QueenValue  = 1000
	KingValue   = 0

	// WinScore is the score of a decided game, White-positive.
	WinScore = 10000
)

// Piece values array for quick lookup
var pieceValues = [7]int{PawnValue, KnightValue, BishopValue, RookValue, QueenValue, KingValue, 0}

// PieceValue returns the material value of a piece type. NoPieceType is 0.
func PieceValue(pt board.PieceType) int {
	if pt > board.NoPieceType {
		return 0
	}
	return pieceValues[pt]
}

const (
	rayWeight        = 3 // bishops and rooks
	queenRayWeight   = 1
	nonRayWeight     = 3 // pawns, knights and kings
	centerWeight     = 2
	kingShelterScale = 20
	passedPawnScore  = 200
	endgameMaxPieces = 2 // rooks, knights and bishops per side
)

var shelterFiles = board.FileA | board.FileB | board.FileC | board.FileF | board.FileG | board.FileH

// Weights scales optional evaluation terms.
type Weights struct {
	// KingSafety multiplies the king shelter term. Zero leaves it out of
	// the middlegame sum.
	KingSafety int
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{}
}

// SearchState wraps a position with incrementally maintained material and
// non-ray space. Every Push must be matched by a Pop in LIFO order.
type SearchState struct {
	pos *board.Position

	material      int
	materialStack []int

	nonRaySpace int
	nonRayStack []int

	weights Weights
}

// NewSearchState builds the aggregates for pos from scratch.
func NewSearchState(pos *board.Position, w Weights) *SearchState {
	s := &SearchState{pos: pos, weights: w}
	for c := board.White; c <= board.Black; c++ {
		sign := colorSign(c)
		for pt := board.Pawn; pt <= board.King; pt++ {
			s.material += sign * PieceValue(pt) * pos.Pieces(c, pt).PopCount()
		}
	}
	for sq := board.A1; sq <= board.H8; sq++ {
		s.nonRaySpace += nonRayContribution(pos, sq)
	}
	return s
}

// Position returns the underlying position. Callers must not make or
// unmake moves on it directly while the state is in use.
func (s *SearchState) Position() *board.Position {
	return s.pos
}

// Weights returns the configured term weights.
func (s *SearchState) Weights() Weights {
	return s.weights
}

// SetWeights replaces the term weights.
func (s *SearchState) SetWeights(w Weights) {
	s.weights = w
}

// Depth returns the number of moves pushed through the state.
func (s *SearchState) Depth() int {
	return len(s.materialStack)
}

// Material returns the White-positive material balance.
func (s *SearchState) Material() int {
	return s.material
}

// NonRaySpace returns the incrementally maintained pawn, knight and king
// space term.
func (s *SearchState) NonRaySpace() int {
	return s.nonRaySpace
}

func colorSign(c board.Color) int {
	if c == board.White {
		return 1
	}
	return -1
}

// nonRayContribution scores the pawn, knight or king on sq by the squares
// it attacks in the opponent's half. Those attack sets do not depend on
// occupancy, so only squares a move touches can change the total.
func nonRayContribution(pos *board.Position, sq board.Square) int {
	p := pos.PieceAt(sq)
	switch p.Type() {
	case board.Pawn, board.Knight, board.King:
	default:
		return 0
	}
	c := p.Color()
	attacks := board.PieceAttacks(p, sq, 0) & board.HalfOf(c.Other())
	return colorSign(c) * nonRayWeight * attacks.PopCount()
}

func touchedSquares(pos *board.Position, m board.Move) []board.Square {
	squares := []board.Square{m.From(), m.To()}
	if victim := pos.CapturedSquare(m); victim != board.NoSquare && victim != m.To() {
		squares = append(squares, victim)
	}
	return squares
}

// Push makes m on the position and records the aggregate deltas.
func (s *SearchState) Push(m board.Move) error {
	pos := s.pos
	mover := colorSign(pos.SideToMove())

	matDelta := 0
	if captured := pos.CapturedPiece(m); captured != board.NoPiece {
		matDelta += mover * PieceValue(captured.Type())
	}
	if m.IsPromotion() {
		matDelta += mover * (PieceValue(m.Promotion()) - PawnValue)
	}

	touched := touchedSquares(pos, m)
	before := 0
	for _, sq := range touched {
		before += nonRayContribution(pos, sq)
	}

	if err := pos.MakeMove(m); err != nil {
		return fmt.Errorf("push %s: %w", m, err)
	}

	after := 0
	for _, sq := range touched {
		after += nonRayContribution(pos, sq)
	}
	nonRayDelta := after - before

	s.material += matDelta
	s.materialStack = append(s.materialStack, matDelta)
	s.nonRaySpace += nonRayDelta
	s.nonRayStack = append(s.nonRayStack, nonRayDelta)
	return nil
}

// Pop undoes the last Push. Popping more than was pushed is a bracketing
// bug and panics.
func (s *SearchState) Pop() {
	n := len(s.materialStack)
	if n == 0 || len(s.nonRayStack) != n {
		panic("engine: SearchState.Pop without matching Push")
	}
	if err := s.pos.UnmakeMove(); err != nil {
		panic(fmt.Sprintf("engine: SearchState.Pop: %v", err))
	}
	s.material -= s.materialStack[n-1]
	s.materialStack = s.materialStack[:n-1]
	s.nonRaySpace -= s.nonRayStack[n-1]
	s.nonRayStack = s.nonRayStack[:n-1]
}

// Apply pushes m, runs fn and pops m on every exit path. The moves given
// to Apply come from the position's own legal list, so a failing push is a
// bug and panics.
func (s *SearchState) Apply(m board.Move, fn func() int) int {
	if err := s.Push(m); err != nil {
		panic(err)
	}
	defer s.Pop()
	return fn()
}

// RaySpace scores bishops and rooks (weight 3) and queens (weight 1) by the
// squares they attack in the opponent's half.
func (s *SearchState) RaySpace() int {
	pos := s.pos
	occupied := pos.AllOccupied()
	score := 0
	for c := board.White; c <= board.Black; c++ {
		sign := colorSign(c)
		enemyHalf := board.HalfOf(c.Other())

		sliders := pos.Pieces(c, board.Bishop) | pos.Pieces(c, board.Rook)
		for sliders != 0 {
			sq := sliders.PopLSB()
			score += sign * rayWeight * (pos.AttacksFrom(sq) & enemyHalf).PopCount()
		}
		queens := pos.Pieces(c, board.Queen)
		for queens != 0 {
			sq := queens.PopLSB()
			score += sign * queenRayWeight * (board.QueenAttacks(sq, occupied) & enemyHalf).PopCount()
		}
	}
	return score
}

// Space returns the ray and non-ray space terms combined.
func (s *SearchState) Space() int {
	return s.nonRaySpace + s.RaySpace()
}

// CenterControl counts attackers of d4, e4, d5 and e5.
func (s *SearchState) CenterControl() int {
	score := 0
	for center := board.Center; center != 0; {
		sq := center.PopLSB()
		score += s.pos.Attackers(sq, board.White).PopCount() - s.pos.Attackers(sq, board.Black).PopCount()
	}
	return centerWeight * score
}

// KingSafety penalises a king far from its shelter pawns: the sum of the
// three smallest distances to own pawns on the a, b, c, f, g and h files.
func (s *SearchState) KingSafety() int {
	w := s.shelterDistance(board.White)
	b := s.shelterDistance(board.Black)
	return kingShelterScale * -(w - b)
}

func (s *SearchState) shelterDistance(c board.Color) int {
	king := s.pos.KingSquare(c)
	pawns := s.pos.Pieces(c, board.Pawn) & shelterFiles
	if pawns == 0 || king == board.NoSquare {
		return 0
	}
	var dists []int
	for pawns != 0 {
		dists = append(dists, board.Distance(king, pawns.PopLSB()))
	}
	slices.Sort(dists)
	total := 0
	for _, d := range dists[:min(3, len(dists))] {
		total += d
	}
	return total
}

// KingActivity rewards a king close to enemy pawns.
func (s *SearchState) KingActivity() int {
	w := nearestDistance(s.pos.KingSquare(board.White), s.pos.Pieces(board.Black, board.Pawn))
	b := nearestDistance(s.pos.KingSquare(board.Black), s.pos.Pieces(board.White, board.Pawn))
	return -(w - b)
}

func nearestDistance(from board.Square, targets board.Bitboard) int {
	if targets == 0 || from == board.NoSquare {
		return 0
	}
	best := 8
	for targets != 0 {
		best = min(best, board.Distance(from, targets.PopLSB()))
	}
	return best
}

// IsPassed reports whether no enemy pawn stands ahead of the pawn on sq on
// its own or an adjacent file.
func IsPassed(pos *board.Position, sq board.Square, c board.Color) bool {
	file := sq.File()
	fileMask := board.FileMask[file]
	if file > 0 {
		fileMask |= board.FileMask[file-1]
	}
	if file < 7 {
		fileMask |= board.FileMask[file+1]
	}

	var frontMask board.Bitboard
	if c == board.White {
		frontMask = board.SquareBB(sq).NorthFill() &^ board.SquareBB(sq)
	} else {
		frontMask = board.SquareBB(sq).SouthFill() &^ board.SquareBB(sq)
	}
	return pos.Pieces(c.Other(), board.Pawn)&fileMask&frontMask == 0
}

// PassedPawns returns 200 per White passer minus 200 per Black passer.
func (s *SearchState) PassedPawns() int {
	score := 0
	for c := board.White; c <= board.Black; c++ {
		pawns := s.pos.Pieces(c, board.Pawn)
		for pawns != 0 {
			if IsPassed(s.pos, pawns.PopLSB(), c) {
				score += colorSign(c) * passedPawnScore
			}
		}
	}
	return score
}

// IsEndgame is true with no queens on the board and at most two rooks,
// knights and bishops per side.
func (s *SearchState) IsEndgame() bool {
	pos := s.pos
	if pos.Pieces(board.White, board.Queen)|pos.Pieces(board.Black, board.Queen) != 0 {
		return false
	}
	for c := board.White; c <= board.Black; c++ {
		pieces := pos.Pieces(c, board.Rook) | pos.Pieces(c, board.Knight) | pos.Pieces(c, board.Bishop)
		if pieces.PopCount() > endgameMaxPieces {
			return false
		}
	}
	return true
}

// Mobility counts the legal knight, bishop and rook moves of each side as
// if it were to move. It is a diagnostic term and not part of Eval.
func (s *SearchState) Mobility() (int, error) {
	score := 0
	for c := board.White; c <= board.Black; c++ {
		moves, err := s.pos.LegalMovesFor(c)
		if err != nil {
			return 0, fmt.Errorf("mobility: %w", err)
		}
		n := 0
		for _, m := range moves {
			switch s.pos.PieceAt(m.From()).Type() {
			case board.Knight, board.Bishop, board.Rook:
				n++
			}
		}
		score += colorSign(c) * n
	}
	return score, nil
}

// Eval returns the White-positive score of the current position.
func (s *SearchState) Eval() int {
	switch s.pos.Result() {
	case board.WhiteWins:
		return WinScore
	case board.BlackWins:
		return -WinScore
	case board.Draw:
		return 0
	}

	if s.IsEndgame() {
		return s.KingActivity() + s.material + s.PassedPawns()
	}

	score := s.material + s.Space() + s.CenterControl()
	if s.weights.KingSafety != 0 {
		score += s.weights.KingSafety * s.KingSafety()
	}
	return score
}

// FlippedEval returns Eval from the side to move's point of view.
func (s *SearchState) FlippedEval() int {
	return colorSign(s.pos.SideToMove()) * s.Eval()
}

// Breakdown lists every evaluation term of the current position.
type Breakdown struct {
	Result        board.Result
	Endgame       bool
	Material      int
	RaySpace      int
	NonRaySpace   int
	Space         int
	CenterControl int
	KingSafety    int
	KingActivity  int
	PassedPawns   int
	Mobility      int
	Eval          int
}

// Breakdown computes all terms for the eval debug command.
func (s *SearchState) Breakdown() (Breakdown, error) {
	mobility, err := s.Mobility()
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		Result:        s.pos.Result(),
		Endgame:       s.IsEndgame(),
		Material:      s.material,
		RaySpace:      s.RaySpace(),
		NonRaySpace:   s.nonRaySpace,
		Space:         s.Space(),
		CenterControl: s.CenterControl(),
		KingSafety:    s.KingSafety(),
		KingActivity:  s.KingActivity(),
		PassedPawns:   s.PassedPawns(),
		Mobility:      mobility,
		Eval:          s.Eval(),
	}, nil
}
