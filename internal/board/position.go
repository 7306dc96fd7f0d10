package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// StartFEN is the FEN string for the starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrIllegalMove  = errors.New("illegal move")
	ErrInvalidFEN   = errors.New("invalid FEN")
	ErrNoMoveToUndo = errors.New("no move to undo")
)

// Result is the game-theoretic state of a position.
type Result uint8

const (
	Ongoing Result = iota
	WhiteWins
	BlackWins
	Draw
)

func (r Result) String() string {
	switch r {
	case WhiteWins:
		return "1-0"
	case BlackWins:
		return "0-1"
	case Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// frame is one entry of the position history: the position after move
// (or the root position, where move is NoMove).
type frame struct {
	pos  *chess.Position
	move Move

	pieces   [2][6]Bitboard
	occupied [2]Bitboard
	mailbox  [64]Piece
	kings    [2]Square
	side     Color

	key      string // placement, side, castling, en passant
	halfmove int

	legal []*chess.Move
	moves []Move
}

// Position is a chess position with make/unmake history. Legal move
// generation and move application are delegated to notnil/chess; the
// position keeps bitboard snapshots so attack queries stay cheap.
type Position struct {
	frames []*frame
}

// NewPosition creates the starting position.
func NewPosition() *Position {
	pos, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// ParseFEN parses a FEN string into a position.
func ParseFEN(fen string) (*Position, error) {
	fen = strings.TrimSpace(fen)
	fields := strings.Fields(fen)
	switch len(fields) {
	case 4:
		fen += " 0 1"
	case 6:
	default:
		return nil, fmt.Errorf("%w: expected 6 fields, got %d", ErrInvalidFEN, len(fields))
	}

	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	game := chess.NewGame(opt)

	f := newFrame(game.Position(), NoMove)
	if f.pieces[White][King].PopCount() != 1 || f.pieces[Black][King].PopCount() != 1 {
		return nil, fmt.Errorf("%w: each side needs exactly one king", ErrInvalidFEN)
	}
	if f.kingAttacked(f.side.Other()) {
		return nil, fmt.Errorf("%w: side not to move is in check", ErrInvalidFEN)
	}

	return &Position{frames: []*frame{f}}, nil
}

func newFrame(cp *chess.Position, m Move) *frame {
	f := &frame{pos: cp, move: m, side: fromChessColor(cp.Turn())}
	b := cp.Board()
	for sq := A1; sq <= H8; sq++ {
		piece := fromChessPiece(b.Piece(chess.Square(sq)))
		f.mailbox[sq] = piece
		if piece == NoPiece {
			continue
		}
		f.pieces[piece.Color()][piece.Type()] |= SquareBB(sq)
		f.occupied[piece.Color()] |= SquareBB(sq)
	}
	f.kings[White] = f.pieces[White][King].LSB()
	f.kings[Black] = f.pieces[Black][King].LSB()

	fields := strings.Fields(cp.String())
	f.key = strings.Join(fields[:4], " ")
	if len(fields) > 4 {
		f.halfmove, _ = strconv.Atoi(fields[4])
	}
	return f
}

func (f *frame) kingAttacked(c Color) bool {
	king := f.kings[c]
	if king == NoSquare {
		return false
	}
	p := Position{frames: []*frame{f}}
	return p.IsSquareAttacked(king, c.Other())
}

func (f *frame) legalMoves() []Move {
	if f.moves == nil {
		f.legal = f.pos.ValidMoves()
		f.moves = make([]Move, len(f.legal))
		for i, cm := range f.legal {
			f.moves[i] = fromChessMove(cm)
		}
	}
	return f.moves
}

func (p *Position) top() *frame {
	return p.frames[len(p.frames)-1]
}

func (p *Position) indexOf(m Move) int {
	for i, lm := range p.top().legalMoves() {
		if lm == m {
			return i
		}
	}
	return -1
}

func (p *Position) chessMove(m Move) *chess.Move {
	i := p.indexOf(m)
	if i < 0 {
		return nil
	}
	return p.top().legal[i]
}

// LegalMoves returns the legal moves of the side to move, in generation
// order. The returned slice is owned by the caller.
func (p *Position) LegalMoves() []Move {
	moves := p.top().legalMoves()
	out := make([]Move, len(moves))
	copy(out, moves)
	return out
}

// LegalMovesFor returns the moves color c would have if it were to move in
// the current placement. En passant rights are dropped.
func (p *Position) LegalMovesFor(c Color) ([]Move, error) {
	if c == p.SideToMove() {
		return p.LegalMoves(), nil
	}
	fields := strings.Fields(p.FEN())
	fields[1] = "b"
	if c == White {
		fields[1] = "w"
	}
	fields[3] = "-"

	opt, err := chess.FEN(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	f := newFrame(chess.NewGame(opt).Position(), NoMove)
	moves := f.legalMoves()
	out := make([]Move, len(moves))
	copy(out, moves)
	return out, nil
}

// MakeMove applies a legal move.
func (p *Position) MakeMove(m Move) error {
	cm := p.chessMove(m)
	if cm == nil {
		return fmt.Errorf("%s in %s: %w", m, p.FEN(), ErrIllegalMove)
	}
	p.frames = append(p.frames, newFrame(p.top().pos.Update(cm), m))
	return nil
}

// UnmakeMove takes back the last move made.
func (p *Position) UnmakeMove() error {
	if len(p.frames) <= 1 {
		return ErrNoMoveToUndo
	}
	p.frames[len(p.frames)-1] = nil
	p.frames = p.frames[:len(p.frames)-1]
	return nil
}

// LastMove returns the move that produced the current position.
func (p *Position) LastMove() Move {
	return p.top().move
}

// Ply returns the number of moves made since the root position.
func (p *Position) Ply() int {
	return len(p.frames) - 1
}

// FEN returns the FEN string of the current position.
func (p *Position) FEN() string {
	return p.top().pos.String()
}

// SideToMove returns the color to move.
func (p *Position) SideToMove() Color {
	return p.top().side
}

// HalfMoveClock returns the number of half moves since the last capture or
// pawn move.
func (p *Position) HalfMoveClock() int {
	return p.top().halfmove
}

// PieceAt returns the piece at the given square, or NoPiece if empty.
func (p *Position) PieceAt(sq Square) Piece {
	if sq >= NoSquare {
		return NoPiece
	}
	return p.top().mailbox[sq]
}

// Pieces returns the bitboard of pieces of the given type and color.
func (p *Position) Pieces(c Color, pt PieceType) Bitboard {
	return p.top().pieces[c][pt]
}

// AllOccupied returns all occupied squares.
func (p *Position) AllOccupied() Bitboard {
	f := p.top()
	return f.occupied[White] | f.occupied[Black]
}

// KingSquare returns the king square of color c.
func (p *Position) KingSquare(c Color) Square {
	return p.top().kings[c]
}

// InCheck returns true if the side to move is in check.
func (p *Position) InCheck() bool {
	return p.top().kingAttacked(p.SideToMove())
}

// Result reports checkmate, stalemate and the automatic draws: insufficient
// material, the 75-move rule and fivefold repetition.
func (p *Position) Result() Result {
	if len(p.top().legalMoves()) == 0 {
		if !p.InCheck() {
			return Draw
		}
		if p.SideToMove() == White {
			return BlackWins
		}
		return WhiteWins
	}
	if p.insufficientMaterial() || p.HalfMoveClock() >= 150 || p.repetitions() >= 5 {
		return Draw
	}
	return Ongoing
}

// IsGameOver returns true if the position is terminal.
func (p *Position) IsGameOver() bool {
	return p.Result() != Ongoing
}

// repetitions counts occurrences of the current position since the last
// irreversible move, the current one included.
func (p *Position) repetitions() int {
	cur := p.top()
	n := 0
	for i := len(p.frames) - 1; i >= 0; i-- {
		f := p.frames[i]
		if f.key == cur.key {
			n++
		}
		if f.halfmove == 0 {
			break
		}
	}
	return n
}

func (p *Position) insufficientMaterial() bool {
	return p.cannotMate(White) && p.cannotMate(Black)
}

func (p *Position) cannotMate(c Color) bool {
	f := p.top()
	own := f.occupied[c]
	if own&(f.pieces[c][Pawn]|f.pieces[c][Rook]|f.pieces[c][Queen]) != 0 {
		return false
	}
	them := c.Other()
	if f.pieces[c][Knight] != 0 {
		// A lone knight can only mate with help from enemy minors or pawns.
		return own.PopCount() <= 2 &&
			f.occupied[them]&^(f.pieces[them][King]|f.pieces[them][Queen]) == 0
	}
	if f.pieces[c][Bishop] != 0 {
		bishops := f.pieces[White][Bishop] | f.pieces[Black][Bishop]
		sameColor := bishops&DarkSquares == 0 || bishops&^DarkSquares == 0
		pawns := f.pieces[White][Pawn] | f.pieces[Black][Pawn]
		knights := f.pieces[White][Knight] | f.pieces[Black][Knight]
		return sameColor && pawns == 0 && knights == 0
	}
	return true
}

// String returns a visual representation of the position.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				sb.WriteString(". ")
			} else {
				sb.WriteString(piece.String() + " ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "FEN: %s\n", p.FEN())
	fmt.Fprintf(&sb, "Side to move: %s\n", p.SideToMove())
	if p.InCheck() {
		sb.WriteString("In check\n")
	}
	return sb.String()
}
