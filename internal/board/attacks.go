package board

// Pre-computed attack tables for non-sliding pieces
var (
	knightAttacks [64]Bitboard
	kingAttacks   [64]Bitboard
	pawnAttacks   [2][64]Bitboard // [Color][Square]
)

var (
	bishopDirs = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	rookDirs   = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
)

func init() {
	for sq := A1; sq <= H8; sq++ {
		knightAttacks[sq] = stepAttacks(sq, [][2]int{
			{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2},
		})
		kingAttacks[sq] = stepAttacks(sq, [][2]int{
			{1, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}, {0, 1},
		})
		pawnAttacks[White][sq] = stepAttacks(sq, [][2]int{{-1, 1}, {1, 1}})
		pawnAttacks[Black][sq] = stepAttacks(sq, [][2]int{{-1, -1}, {1, -1}})
	}
}

func stepAttacks(sq Square, deltas [][2]int) Bitboard {
	attacks := Empty
	for _, d := range deltas {
		f, r := sq.File()+d[0], sq.Rank()+d[1]
		if f >= 0 && f < 8 && r >= 0 && r < 8 {
			attacks |= SquareBB(NewSquare(f, r))
		}
	}
	return attacks
}

// rayAttacks walks each direction until it leaves the board or hits an
// occupied square, which is included.
func rayAttacks(sq Square, occupied Bitboard, dirs [4][2]int) Bitboard {
	attacks := Empty
	for _, d := range dirs {
		f, r := sq.File()+d[0], sq.Rank()+d[1]
		for f >= 0 && f < 8 && r >= 0 && r < 8 {
			target := NewSquare(f, r)
			attacks |= SquareBB(target)
			if occupied.IsSet(target) {
				break
			}
			f += d[0]
			r += d[1]
		}
	}
	return attacks
}

// KnightAttacks returns the attack bitboard for a knight on the given square.
func KnightAttacks(sq Square) Bitboard {
	return knightAttacks[sq]
}

// KingAttacks returns the attack bitboard for a king on the given square.
func KingAttacks(sq Square) Bitboard {
	return kingAttacks[sq]
}

// PawnAttacks returns the attack bitboard for a pawn of the given color.
func PawnAttacks(sq Square, c Color) Bitboard {
	return pawnAttacks[c][sq]
}

// BishopAttacks returns the attack bitboard for a bishop.
func BishopAttacks(sq Square, occupied Bitboard) Bitboard {
	return rayAttacks(sq, occupied, bishopDirs)
}

// RookAttacks returns the attack bitboard for a rook.
func RookAttacks(sq Square, occupied Bitboard) Bitboard {
	return rayAttacks(sq, occupied, rookDirs)
}

// QueenAttacks returns the attack bitboard for a queen.
func QueenAttacks(sq Square, occupied Bitboard) Bitboard {
	return BishopAttacks(sq, occupied) | RookAttacks(sq, occupied)
}

// PieceAttacks returns the squares a piece of the given kind attacks from sq.
func PieceAttacks(p Piece, sq Square, occupied Bitboard) Bitboard {
	switch p.Type() {
	case Pawn:
		return PawnAttacks(sq, p.Color())
	case Knight:
		return KnightAttacks(sq)
	case Bishop:
		return BishopAttacks(sq, occupied)
	case Rook:
		return RookAttacks(sq, occupied)
	case Queen:
		return QueenAttacks(sq, occupied)
	case King:
		return KingAttacks(sq)
	}
	return Empty
}

// AttacksFrom returns the squares attacked by the piece standing on sq,
// or Empty if the square is vacant.
func (p *Position) AttacksFrom(sq Square) Bitboard {
	return PieceAttacks(p.PieceAt(sq), sq, p.AllOccupied())
}

// Attackers returns all pieces of color c that attack sq.
func (p *Position) Attackers(sq Square, c Color) Bitboard {
	f := p.top()
	occupied := f.occupied[White] | f.occupied[Black]
	bishopsQueens := f.pieces[c][Bishop] | f.pieces[c][Queen]
	rooksQueens := f.pieces[c][Rook] | f.pieces[c][Queen]

	return (pawnAttacks[c.Other()][sq] & f.pieces[c][Pawn]) |
		(knightAttacks[sq] & f.pieces[c][Knight]) |
		(kingAttacks[sq] & f.pieces[c][King]) |
		(BishopAttacks(sq, occupied) & bishopsQueens) |
		(RookAttacks(sq, occupied) & rooksQueens)
}

// IsSquareAttacked returns true if the square is attacked by the given color.
func (p *Position) IsSquareAttacked(sq Square, byColor Color) bool {
	return p.Attackers(sq, byColor) != 0
}
