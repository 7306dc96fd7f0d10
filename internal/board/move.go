package board

import (
	"fmt"

	"github.com/notnil/chess"
)

// Move encodes a chess move in 16 bits:
// bits 0-5:   from square (0-63)
// bits 6-11:  to square (0-63)
// bits 12-14: promotion piece type + 1 (0 = no promotion)
type Move uint16

// NoMove represents an invalid or null move.
const NoMove Move = 0

// NewMove creates a non-promoting move.
func NewMove(from, to Square) Move {
	return Move(from) | Move(to)<<6
}

// NewPromotion creates a promotion move.
func NewPromotion(from, to Square, promo PieceType) Move {
	return NewMove(from, to) | Move(promo+1)<<12
}

// From returns the origin square.
func (m Move) From() Square {
	return Square(m & 0x3F)
}

// To returns the destination square.
func (m Move) To() Square {
	return Square((m >> 6) & 0x3F)
}

// Promotion returns the promotion piece type, or NoPieceType.
func (m Move) Promotion() PieceType {
	p := (m >> 12) & 7
	if p == 0 {
		return NoPieceType
	}
	return PieceType(p - 1)
}

// IsPromotion returns true if this is a promotion move.
func (m Move) IsPromotion() bool {
	return (m>>12)&7 != 0
}

// String returns the UCI format of the move (e.g., "e2e4", "e7e8q").
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}

	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string("pnbrqk"[m.Promotion()])
	}
	return s
}

func fromChessMove(cm *chess.Move) Move {
	from, to := Square(cm.S1()), Square(cm.S2())
	if cm.Promo() != chess.NoPieceType {
		return NewPromotion(from, to, fromChessPieceType(cm.Promo()))
	}
	return NewMove(from, to)
}

// ParseMove parses a UCI format move string and resolves it against the
// legal moves of the position.
func (p *Position) ParseMove(s string) (Move, error) {
	if len(s) < 4 || len(s) > 5 {
		return NoMove, fmt.Errorf("move %q: %w", s, ErrIllegalMove)
	}

	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NoMove, fmt.Errorf("move %q: %w", s, ErrIllegalMove)
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NoMove, fmt.Errorf("move %q: %w", s, ErrIllegalMove)
	}

	m := NewMove(from, to)
	if len(s) == 5 {
		var promo PieceType
		switch s[4] {
		case 'n', 'N':
			promo = Knight
		case 'b', 'B':
			promo = Bishop
		case 'r', 'R':
			promo = Rook
		case 'q', 'Q':
			promo = Queen
		default:
			return NoMove, fmt.Errorf("move %q: bad promotion piece: %w", s, ErrIllegalMove)
		}
		m = NewPromotion(from, to, promo)
	}

	if p.indexOf(m) < 0 {
		return NoMove, fmt.Errorf("move %q: %w", s, ErrIllegalMove)
	}
	return m, nil
}

// IsCapture returns true if the move takes a piece, en passant included.
func (p *Position) IsCapture(m Move) bool {
	cm := p.chessMove(m)
	return cm != nil && (cm.HasTag(chess.Capture) || cm.HasTag(chess.EnPassant))
}

// IsEnPassant returns true if the move is an en passant capture.
func (p *Position) IsEnPassant(m Move) bool {
	cm := p.chessMove(m)
	return cm != nil && cm.HasTag(chess.EnPassant)
}

// GivesCheck returns true if the move leaves the opponent in check.
func (p *Position) GivesCheck(m Move) bool {
	cm := p.chessMove(m)
	return cm != nil && cm.HasTag(chess.Check)
}

// CapturedSquare returns the square of the piece the move removes, or
// NoSquare for a non-capture. It differs from To only for en passant.
func (p *Position) CapturedSquare(m Move) Square {
	cm := p.chessMove(m)
	switch {
	case cm == nil:
		return NoSquare
	case cm.HasTag(chess.EnPassant):
		return NewSquare(m.To().File(), m.From().Rank())
	case cm.HasTag(chess.Capture):
		return m.To()
	}
	return NoSquare
}

// CapturedPiece returns the piece the move removes, or NoPiece.
func (p *Position) CapturedPiece(m Move) Piece {
	sq := p.CapturedSquare(m)
	if sq == NoSquare {
		return NoPiece
	}
	return p.PieceAt(sq)
}
