package board

import (
	"errors"
	"testing"
)

func mustParse(t *testing.T, fen string) *Position {
	t.Helper()
	pos, err := ParseFEN(fen)
	if err != nil {
		t.Fatalf("Failed to parse FEN %q: %v", fen, err)
	}
	return pos
}

func TestStartingPosition(t *testing.T) {
	pos := NewPosition()

	if got := len(pos.LegalMoves()); got != 20 {
		t.Errorf("start position has %d legal moves, want 20", got)
	}
	if pos.SideToMove() != White {
		t.Errorf("side to move = %v, want White", pos.SideToMove())
	}
	if pos.KingSquare(White) != E1 || pos.KingSquare(Black) != E8 {
		t.Errorf("kings on %v/%v, want e1/e8", pos.KingSquare(White), pos.KingSquare(Black))
	}
	if got := pos.Pieces(White, Pawn).PopCount(); got != 8 {
		t.Errorf("white pawns = %d, want 8", got)
	}
	if pos.PieceAt(H8) != NewPiece(Rook, Black) {
		t.Errorf("h8 holds %v, want black rook", pos.PieceAt(H8))
	}
	if pos.Result() != Ongoing {
		t.Errorf("start position result = %v", pos.Result())
	}
}

func TestMakeUnmakeRestoresPosition(t *testing.T) {
	pos := NewPosition()
	start := pos.FEN()

	for _, s := range []string{"e2e4", "c7c5", "g1f3", "d7d6"} {
		m, err := pos.ParseMove(s)
		if err != nil {
			t.Fatalf("ParseMove(%s): %v", s, err)
		}
		if err := pos.MakeMove(m); err != nil {
			t.Fatalf("MakeMove(%s): %v", s, err)
		}
	}
	if pos.Ply() != 4 {
		t.Errorf("ply = %d, want 4", pos.Ply())
	}
	if pos.LastMove().String() != "d7d6" {
		t.Errorf("last move = %v, want d7d6", pos.LastMove())
	}

	for i := 0; i < 4; i++ {
		if err := pos.UnmakeMove(); err != nil {
			t.Fatalf("UnmakeMove: %v", err)
		}
	}
	if pos.FEN() != start {
		t.Errorf("FEN after unwinding = %q, want %q", pos.FEN(), start)
	}
	if err := pos.UnmakeMove(); !errors.Is(err, ErrNoMoveToUndo) {
		t.Errorf("UnmakeMove at root: got %v, want ErrNoMoveToUndo", err)
	}
}

func TestParseMoveRejectsIllegal(t *testing.T) {
	pos := NewPosition()
	for _, s := range []string{"e2e5", "e7e5", "zz", "e2e4x", "a1a1"} {
		if _, err := pos.ParseMove(s); !errors.Is(err, ErrIllegalMove) {
			t.Errorf("ParseMove(%q): got %v, want ErrIllegalMove", s, err)
		}
	}
	if err := pos.MakeMove(NewMove(E1, E8)); !errors.Is(err, ErrIllegalMove) {
		t.Errorf("MakeMove(e1e8): got %v, want ErrIllegalMove", err)
	}
}

func TestPromotionMoves(t *testing.T) {
	pos := mustParse(t, "4k3/P7/8/8/8/8/8/4K3 w - - 0 1")

	if _, err := pos.ParseMove("a7a8"); err == nil {
		t.Error("promotion without piece should be rejected")
	}
	m, err := pos.ParseMove("a7a8n")
	if err != nil {
		t.Fatalf("ParseMove(a7a8n): %v", err)
	}
	if m.Promotion() != Knight || m.String() != "a7a8n" {
		t.Errorf("got %v promoting to %v", m, m.Promotion())
	}
	if err := pos.MakeMove(m); err != nil {
		t.Fatalf("MakeMove: %v", err)
	}
	if pos.PieceAt(A8) != NewPiece(Knight, White) {
		t.Errorf("a8 holds %v, want white knight", pos.PieceAt(A8))
	}
}

func TestEnPassantCapture(t *testing.T) {
	pos := mustParse(t, "4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 1")
	m, err := pos.ParseMove("e5d6")
	if err != nil {
		t.Fatalf("ParseMove(e5d6): %v", err)
	}
	if !pos.IsCapture(m) || !pos.IsEnPassant(m) {
		t.Errorf("e5d6 should be an en passant capture")
	}
	d5, _ := ParseSquare("d5")
	if got := pos.CapturedSquare(m); got != d5 {
		t.Errorf("captured square = %v, want d5", got)
	}
	if got := pos.CapturedPiece(m); got != NewPiece(Pawn, Black) {
		t.Errorf("captured piece = %v, want black pawn", got)
	}
}

func TestAttackers(t *testing.T) {
	pos := NewPosition()
	e3, _ := ParseSquare("e3")
	attackers := pos.Attackers(e3, White)
	if attackers.PopCount() != 2 {
		t.Errorf("e3 has %d white attackers, want 2:\n%v", attackers.PopCount(), attackers)
	}
	if pos.Attackers(e3, Black) != Empty {
		t.Error("e3 should not be attacked by black")
	}
	g1, _ := ParseSquare("g1")
	if got := pos.AttacksFrom(g1).PopCount(); got != 3 {
		t.Errorf("knight on g1 attacks %d squares, want 3", got)
	}
}

func TestCheckmate(t *testing.T) {
	pos := mustParse(t, "R6k/6pp/8/8/8/8/8/K7 b - - 0 1")
	if !pos.InCheck() {
		t.Error("black should be in check")
	}
	if len(pos.LegalMoves()) != 0 {
		t.Errorf("black has %d legal moves, want 0", len(pos.LegalMoves()))
	}
	if pos.Result() != WhiteWins {
		t.Errorf("result = %v, want 1-0", pos.Result())
	}
}

func TestNotCheckmate(t *testing.T) {
	// The king can take the rook.
	pos := mustParse(t, "6Rk/8/8/8/8/8/8/K7 b - - 0 1")
	if !pos.InCheck() {
		t.Error("black should be in check")
	}
	if pos.Result() != Ongoing {
		t.Errorf("result = %v, want ongoing", pos.Result())
	}
}

func TestFoolsMate(t *testing.T) {
	pos := NewPosition()
	for _, s := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		m, err := pos.ParseMove(s)
		if err != nil {
			t.Fatalf("ParseMove(%s): %v", s, err)
		}
		if s == "d8h4" && !pos.GivesCheck(m) {
			t.Error("Qh4 should give check")
		}
		if err := pos.MakeMove(m); err != nil {
			t.Fatalf("MakeMove(%s): %v", s, err)
		}
	}
	if pos.Result() != BlackWins {
		t.Errorf("result = %v, want 0-1", pos.Result())
	}
}

func TestDraws(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want Result
	}{
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", Draw},
		{"king and bishop", "8/8/8/4k3/8/8/8/4KB2 w - - 0 1", Draw},
		{"king and knight", "8/8/8/4k3/8/8/8/4KN2 w - - 0 1", Draw},
		{"king and rook", "8/8/8/4k3/8/8/8/4KR2 w - - 0 1", Ongoing},
		{"seventy-five moves", "8/8/8/4k3/8/8/8/4KR2 w - - 150 120", Draw},
		{"seventy-four moves", "8/8/8/4k3/8/8/8/4KR2 w - - 149 120", Ongoing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos := mustParse(t, tc.fen)
			if got := pos.Result(); got != tc.want {
				t.Errorf("result = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFivefoldRepetition(t *testing.T) {
	pos := NewPosition()
	cycle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}

	for round := 1; round <= 4; round++ {
		for _, s := range cycle {
			m, err := pos.ParseMove(s)
			if err != nil {
				t.Fatalf("ParseMove(%s): %v", s, err)
			}
			if err := pos.MakeMove(m); err != nil {
				t.Fatalf("MakeMove(%s): %v", s, err)
			}
		}
		want := Ongoing
		if round == 4 {
			want = Draw
		}
		if got := pos.Result(); got != want {
			t.Errorf("after %d cycles result = %v, want %v", round, got, want)
		}
	}
}

func TestParseFENErrors(t *testing.T) {
	for _, fen := range []string{
		"",
		"not a fen",
		"8/8/8/8/8/8/8/8 w - - 0 1",
		"4k3/8/8/8/8/8/8/4R1K1 w - - 0 1",
	} {
		if _, err := ParseFEN(fen); !errors.Is(err, ErrInvalidFEN) {
			t.Errorf("ParseFEN(%q): got %v, want ErrInvalidFEN", fen, err)
		}
	}
}

func TestLegalMovesForOtherSide(t *testing.T) {
	pos := NewPosition()
	moves, err := pos.LegalMovesFor(Black)
	if err != nil {
		t.Fatalf("LegalMovesFor(Black): %v", err)
	}
	if len(moves) != 20 {
		t.Errorf("black has %d moves in the start placement, want 20", len(moves))
	}
	for _, m := range moves {
		if pos.PieceAt(m.From()).Color() != Black {
			t.Errorf("move %v does not start on a black piece", m)
		}
	}
}
