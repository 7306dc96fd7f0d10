package board

// Perft counts the leaf nodes of the legal move tree at the given depth.
func (p *Position) Perft(depth int) int64 {
	if depth <= 0 {
		return 1
	}

	moves := p.top().legalMoves()
	if depth == 1 {
		return int64(len(moves))
	}

	var nodes int64
	for _, m := range p.LegalMoves() {
		if err := p.MakeMove(m); err != nil {
			panic(err)
		}
		nodes += p.Perft(depth - 1)
		if err := p.UnmakeMove(); err != nil {
			panic(err)
		}
	}
	return nodes
}

// Divide returns the perft count below each root move.
func (p *Position) Divide(depth int) map[Move]int64 {
	out := make(map[Move]int64)
	for _, m := range p.LegalMoves() {
		if err := p.MakeMove(m); err != nil {
			panic(err)
		}
		out[m] = p.Perft(depth - 1)
		if err := p.UnmakeMove(); err != nil {
			panic(err)
		}
	}
	return out
}
