package board

// Perft counts the leaf nodes of the legal move tree to the given depth.
func (b *Board) Perft(depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	var ml MoveList
	b.LegalMoves(&ml)
	if depth == 1 {
		return uint64(ml.Len())
	}
	var nodes uint64
	for _, m := range ml.Slice() {
		if err := b.MakeMove(m); err != nil {
			panic(err)
		}
		nodes += b.Perft(depth - 1)
		_ = b.UndoMove()
	}
	return nodes
}

// DivideEntry is the subtree size under one root move.
type DivideEntry struct {
	Move  Move
	Nodes uint64
}

// Divide runs Perft under each root move separately.
func (b *Board) Divide(depth int) []DivideEntry {
	var ml MoveList
	b.LegalMoves(&ml)
	out := make([]DivideEntry, 0, ml.Len())
	for _, m := range ml.Slice() {
		if err := b.MakeMove(m); err != nil {
			panic(err)
		}
		out = append(out, DivideEntry{Move: m, Nodes: b.Perft(depth - 1)})
		_ = b.UndoMove()
	}
	return out
}
