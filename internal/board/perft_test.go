package board

import "testing"

func TestPerft(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		nodes []uint64 // by depth, starting at 1
	}{
		{"start", StartFEN, []uint64{20, 400, 8902, 197281}},
		{"kiwipete", "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq -", []uint64{48, 2039, 97862}},
		{"position3", "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - -", []uint64{14, 191, 2812, 43238}},
		{"position4", "r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1", []uint64{6, 264, 9467}},
		{"position5", "rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8", []uint64{44, 1486, 62379}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := New()
			if err := b.SetPosition(tc.fen); err != nil {
				t.Fatalf("SetPosition: %v", err)
			}
			for i, want := range tc.nodes {
				depth := i + 1
				if testing.Short() && want > 100000 {
					continue
				}
				if got := b.Perft(depth); got != want {
					t.Errorf("perft(%d) = %d, want %d", depth, got, want)
				}
			}
			if b.Ply() != 0 {
				t.Errorf("perft left %d moves on the stack", b.Ply())
			}
		})
	}
}

// The black pawn on e4 cannot take en passant: both pawns would leave the
// fourth rank and expose the king on a4 to the rook on h4.
func TestPerftEnPassantPin(t *testing.T) {
	b := New()
	if err := b.SetPosition("8/8/8/8/k2Pp2R/8/8/4K3 b - d3 0 1"); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	var ml MoveList
	b.LegalMoves(&ml)
	for _, m := range ml.Slice() {
		if m.IsEnPassant() {
			t.Errorf("en passant %v should be illegal", m)
		}
	}
	if got := b.Perft(1); got != 6 {
		t.Errorf("perft(1) = %d, want 6", got)
	}
}

func TestDivideSumsToPerft(t *testing.T) {
	b := New()
	var total uint64
	for _, e := range b.Divide(3) {
		total += e.Nodes
	}
	if total != 8902 {
		t.Errorf("divide(3) total = %d, want 8902", total)
	}
}

// walkKeys recomputes the key from scratch at every node of the tree.
func walkKeys(t *testing.T, b *Board, depth int) {
	t.Helper()
	if got, want := b.Key(), b.Current().computeKey(); got != want {
		t.Fatalf("incremental key %016x != computed %016x after %v\n%s", got, want, b.Current().LastMove, b)
	}
	if depth == 0 {
		return
	}
	var ml MoveList
	b.LegalMoves(&ml)
	for _, m := range ml.Slice() {
		before := *b.Current()
		if err := b.MakeMove(m); err != nil {
			t.Fatalf("MakeMove(%v): %v", m, err)
		}
		walkKeys(t, b, depth-1)
		if err := b.UndoMove(); err != nil {
			t.Fatalf("UndoMove: %v", err)
		}
		if *b.Current() != before {
			t.Fatalf("undo of %v did not restore the position", m)
		}
	}
}

func TestIncrementalKey(t *testing.T) {
	for _, fen := range []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq -",
		"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	} {
		b := New()
		if err := b.SetPosition(fen); err != nil {
			t.Fatalf("SetPosition(%q): %v", fen, err)
		}
		walkKeys(t, b, 3)
	}
}
