package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/trout/internal/board"
)

const (
	kiwipete    = "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"
	pawnEnding  = "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1"
	openMiddle  = "r1bq1rk1/pp2bppp/2n1pn2/3p4/2PP4/2N1PN2/PP3PPP/R2QKB1R w KQ - 0 8"
	backRank    = "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1"
	rookMateIn2 = "k7/8/2K5/8/8/8/8/7R w - - 0 1"
)

func newTestSearch(useCache bool) *Search {
	opts := DefaultOptions()
	opts.UseCache = useCache
	opts.InfoInterval = 0
	return New(NewCacheEntries(1<<16), Classic{}, opts)
}

func boardFrom(t *testing.T, fen string, moves ...string) *board.Board {
	t.Helper()
	b := board.New()
	require.NoError(t, b.SetPosition(fen, moves...))
	return b
}

// minimax is an unpruned reference search with the same terminal rules
// as alphaBeta.
func minimax(t *testing.T, b *board.Board, eval Evaluator, depth, ply int) int {
	if b.IsRepetition() || b.IsInsufficientMaterial() {
		return DrawScore
	}
	if depth <= 0 {
		return quiesceAll(t, b, eval, ply)
	}
	if ply >= MaxPly-1 {
		return eval.Evaluate(b)
	}
	var ml board.MoveList
	b.LegalMoves(&ml)
	if ml.Len() == 0 {
		if b.InCheck() {
			return -MateScore + ply
		}
		return DrawScore
	}
	if b.IsFiftyMoveDraw() {
		return DrawScore
	}
	best := -Infinity
	for _, m := range ml.Slice() {
		require.NoError(t, b.MakeMove(m))
		best = max(best, -minimax(t, b, eval, depth-1, ply+1))
		require.NoError(t, b.UndoMove())
	}
	return best
}

func quiesceAll(t *testing.T, b *board.Board, eval Evaluator, ply int) int {
	if ply >= MaxPly-1 {
		return eval.Evaluate(b)
	}
	var ml board.MoveList
	best := -Infinity
	if b.InCheck() {
		b.LegalMoves(&ml)
		if ml.Len() == 0 {
			return -MateScore + ply
		}
	} else {
		best = eval.Evaluate(b)
		b.Captures(&ml)
	}
	for _, m := range ml.Slice() {
		require.NoError(t, b.MakeMove(m))
		best = max(best, -quiesceAll(t, b, eval, ply+1))
		require.NoError(t, b.UndoMove())
	}
	return best
}

func rootMinimax(t *testing.T, b *board.Board, depth int) int {
	var ml board.MoveList
	b.LegalMoves(&ml)
	best := -Infinity
	for _, m := range ml.Slice() {
		require.NoError(t, b.MakeMove(m))
		best = max(best, -minimax(t, b, Classic{}, depth-1, 1))
		require.NoError(t, b.UndoMove())
	}
	return best
}

func TestAlphaBetaMatchesMinimax(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		depth int
	}{
		{"start", board.StartFEN, 3},
		{"pawn ending", pawnEnding, 4},
		{"open middlegame", openMiddle, 2},
		{"back rank", backRank, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if testing.Short() && tt.depth > 3 {
				t.Skip("slow in -short mode")
			}
			b := boardFrom(t, tt.fen)
			want := rootMinimax(t, b, tt.depth)

			r := newTestSearch(false).FindBestMove(context.Background(), b, Limits{Depth: tt.depth})
			assert.Equal(t, tt.depth, r.Depth)
			assert.Equal(t, want, r.Score, "alpha-beta score differs from minimax")

			// The chosen move must achieve the minimax value.
			require.NoError(t, b.MakeMove(r.BestMove))
			got := -minimax(t, b, Classic{}, tt.depth-1, 1)
			require.NoError(t, b.UndoMove())
			assert.Equal(t, want, got)
		})
	}
}

func TestCacheDoesNotChangeResult(t *testing.T) {
	const bishopEnding = "8/8/4k3/8/2p5/8/B2K4/8 w - - 0 1"
	tests := []struct {
		name  string
		fen   string
		moves []string
		depth int
	}{
		{"start", board.StartFEN, nil, 4},
		{"kiwipete", kiwipete, nil, 3},
		{"pawn ending", pawnEnding, nil, 4},
		{"open middlegame", openMiddle, nil, 3},
		{"bishop ending", bishopEnding, nil, 6},
		{"bishop ending after a shuffle", bishopEnding, []string{"d2d1", "e6e5", "d1d2", "e5e6"}, 5},
		{"near the fifty-move limit", "8/8/4k3/8/2p5/8/B2K4/8 w - - 96 80", nil, 5},
		{"rook ending", "8/8/3k4/8/8/2K5/R7/8 w - - 0 1", nil, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := boardFrom(t, tt.fen, tt.moves...)
			without := newTestSearch(false).FindBestMove(context.Background(), b, Limits{Depth: tt.depth})
			with := newTestSearch(true).FindBestMove(context.Background(), b, Limits{Depth: tt.depth})

			assert.Equal(t, without.Score, with.Score)
			assert.Equal(t, without.BestMove, with.BestMove)
			assert.Equal(t, without.Depth, with.Depth)
		})
	}
}

func TestStaleCachedMoveIsIgnored(t *testing.T) {
	is := is.New(t)

	// A move that only makes sense in the starting position.
	start := board.New()
	stale, err := start.ParseMove("e2e4")
	is.NoErr(err)

	b := boardFrom(t, pawnEnding)
	s := newTestSearch(true)
	s.Cache().Store(b.Key(), stale, 0, 0, BoundUpper)

	var ml board.MoveList
	b.LegalMoves(&ml)
	for _, m := range ml.Slice() {
		is.NoErr(b.MakeMove(m))
		s.Cache().Store(b.Key(), stale, 0, 0, BoundUpper)
		is.NoErr(b.UndoMove())
	}

	r := s.FindBestMove(context.Background(), b, Limits{Depth: 3})
	is.True(b.IsLegal(r.BestMove))
	is.True(r.BestMove != stale)

	want := newTestSearch(false).FindBestMove(context.Background(), b, Limits{Depth: 3})
	is.Equal(r.Score, want.Score)
	is.Equal(b.FEN(), pawnEnding) // search works on a copy
}

func TestPrefersShorterMate(t *testing.T) {
	is := is.New(t)

	// Ra8# is available, slower mates too.
	r := newTestSearch(true).FindBestMove(context.Background(), boardFrom(t, backRank), Limits{Depth: 5})
	is.Equal(r.BestMove.String(), "a1a8")
	is.Equal(r.Score, MateScore-1)
	is.Equal(MateIn(r.Score), 1)
	is.Equal(FormatScore(r.Score), "mate 1")

	r = newTestSearch(true).FindBestMove(context.Background(), boardFrom(t, rookMateIn2), Limits{Depth: 6})
	is.Equal(r.Score, MateScore-3)
	is.Equal(MateIn(r.Score), 2)

	// The losing side sees the same mate from the other end.
	r = newTestSearch(true).FindBestMove(context.Background(), boardFrom(t, rookMateIn2, "c6b6"), Limits{Depth: 4})
	is.Equal(r.Score, -MateScore+2)
	is.Equal(MateIn(r.Score), -1)
}

func TestTerminalRoot(t *testing.T) {
	is := is.New(t)

	mated := boardFrom(t, "R5k1/5ppp/8/8/8/8/5PPP/6K1 b - - 1 1")
	r := newTestSearch(true).FindBestMove(context.Background(), mated, Limits{Depth: 4})
	is.Equal(r.BestMove, board.NoMove)
	is.Equal(r.Score, -MateScore)

	stalemate := boardFrom(t, "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	r = newTestSearch(true).FindBestMove(context.Background(), stalemate, Limits{Depth: 4})
	is.Equal(r.BestMove, board.NoMove)
	is.Equal(r.Score, DrawScore)
}

func TestInsufficientMaterialIsDraw(t *testing.T) {
	r := newTestSearch(true).FindBestMove(context.Background(), boardFrom(t, "8/8/4k3/8/8/3NK3/8/8 w - - 0 1"), Limits{Depth: 3})
	assert.Equal(t, DrawScore, r.Score)
	assert.NotEqual(t, board.NoMove, r.BestMove)
}

func TestStopReturnsCompletedDepth(t *testing.T) {
	b := boardFrom(t, kiwipete)
	opts := DefaultOptions()
	opts.NodeCheckInterval = 1000
	opts.InfoInterval = time.Millisecond
	s := New(NewCacheEntries(1<<16), nil, opts)

	var mu sync.Mutex
	bestAt := map[int]board.Move{}
	progress := 0
	ready := make(chan struct{}, 1)
	s.OnInfo = func(info Info) {
		mu.Lock()
		defer mu.Unlock()
		if !info.Completed() {
			progress++
			return
		}
		if info.MultiPV == 1 {
			bestAt[info.Depth] = info.PV[0]
		}
		if info.Depth >= 3 {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	}

	done := make(chan Result, 1)
	go func() { done <- s.FindBestMove(context.Background(), b, Limits{Infinite: true}) }()

	select {
	case <-ready:
	case <-time.After(30 * time.Second):
		t.Fatal("search did not complete depth 3")
	}
	time.Sleep(20 * time.Millisecond)
	stopAt := time.Now()
	s.Stop()

	select {
	case r := <-done:
		assert.Less(t, time.Since(stopAt), time.Second)
		mu.Lock()
		defer mu.Unlock()
		require.GreaterOrEqual(t, r.Depth, 3)
		assert.Equal(t, bestAt[r.Depth], r.BestMove)
		assert.True(t, b.IsLegal(r.BestMove))
		assert.Positive(t, progress)
	case <-time.After(5 * time.Second):
		t.Fatal("search ignored stop")
	}
}

func TestContextCancelStopsInfiniteSearch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- newTestSearch(true).FindBestMove(ctx, board.New(), Limits{Infinite: true}) }()

	select {
	case r := <-done:
		assert.NotEqual(t, board.NoMove, r.BestMove)
	case <-time.After(5 * time.Second):
		t.Fatal("search ignored context cancellation")
	}
}

func TestLimits(t *testing.T) {
	t.Run("depth", func(t *testing.T) {
		var depths []int
		s := newTestSearch(true)
		s.OnInfo = func(info Info) {
			if info.Completed() {
				depths = append(depths, info.Depth)
			}
		}
		r := s.FindBestMove(context.Background(), board.New(), Limits{Depth: 4})
		assert.Equal(t, 4, r.Depth)
		assert.Equal(t, []int{1, 2, 3, 4}, depths)
	})

	t.Run("nodes", func(t *testing.T) {
		r := newTestSearch(true).FindBestMove(context.Background(), boardFrom(t, kiwipete), Limits{Nodes: 20000})
		assert.LessOrEqual(t, r.Nodes, uint64(20000))
		assert.GreaterOrEqual(t, r.Depth, 1)
		assert.NotEqual(t, board.NoMove, r.BestMove)
	})

	t.Run("movetime", func(t *testing.T) {
		s := newTestSearch(true)
		s.opts.MoveOverhead = 0
		start := time.Now()
		r := s.FindBestMove(context.Background(), boardFrom(t, kiwipete), Limits{MoveTime: 200 * time.Millisecond})
		assert.Less(t, time.Since(start), time.Second)
		assert.NotEqual(t, board.NoMove, r.BestMove)
	})

	t.Run("clock", func(t *testing.T) {
		start := time.Now()
		limits := Limits{Time: [2]time.Duration{2 * time.Second, 2 * time.Second}}
		r := newTestSearch(true).FindBestMove(context.Background(), boardFrom(t, openMiddle), limits)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.NotEqual(t, board.NoMove, r.BestMove)
	})
}

func TestMultiPV(t *testing.T) {
	is := is.New(t)
	var reported []Info
	s := newTestSearch(true)
	s.OnInfo = func(info Info) {
		if info.Completed() && info.Depth == 3 {
			reported = append(reported, info)
		}
	}
	r := s.FindBestMove(context.Background(), board.New(), Limits{Depth: 3, MultiPV: 3})

	is.Equal(len(r.Lines), 3)
	is.Equal(r.BestMove, r.Lines[0].Move)
	seen := map[board.Move]bool{}
	for i, l := range r.Lines {
		is.True(!seen[l.Move]) // lines start with distinct moves
		seen[l.Move] = true
		is.Equal(l.PV[0], l.Move)
		if i > 0 {
			is.True(l.Score <= r.Lines[i-1].Score)
		}
	}
	is.Equal(len(reported), 3)
	for i, info := range reported {
		is.Equal(info.MultiPV, i+1)
	}

	// More lines than legal moves.
	r = newTestSearch(true).FindBestMove(context.Background(), boardFrom(t, "7k/8/8/8/8/8/8/K7 w - - 0 1"), Limits{Depth: 2, MultiPV: 10})
	is.Equal(len(r.Lines), 3)
}

func TestRootHintIsValidated(t *testing.T) {
	is := is.New(t)
	b := board.New()
	s := newTestSearch(true)

	hint, err := b.ParseMove("g1f3")
	is.NoErr(err)
	s.SetRootHint(hint)
	moves := s.rootOrderFor(t, b)
	is.Equal(moves[0], hint)

	// A hint from another position is dropped.
	other := boardFrom(t, kiwipete)
	foreign, err := other.ParseMove("e5f7")
	is.NoErr(err)
	s.SetRootHint(foreign)
	moves = s.rootOrderFor(t, b)
	is.True(moves[0] != foreign)
	is.Equal(len(moves), 20)
}

func (s *Search) rootOrderFor(t *testing.T, b *board.Board) []board.Move {
	t.Helper()
	s.prepare(context.Background(), b, Limits{})
	var ml board.MoveList
	s.board.LegalMoves(&ml)
	return s.orderRootMoves(&ml)
}

func TestNewGameClearsState(t *testing.T) {
	s := newTestSearch(true)
	s.FindBestMove(context.Background(), board.New(), Limits{Depth: 3})
	_, ok := s.Cache().Probe(board.New().Key())
	require.True(t, ok)

	s.NewGame()
	_, ok = s.Cache().Probe(board.New().Key())
	assert.False(t, ok)
}

func TestPVIsPlayable(t *testing.T) {
	b := boardFrom(t, openMiddle)
	r := newTestSearch(true).FindBestMove(context.Background(), b, Limits{Depth: 4})
	require.NotEmpty(t, r.Lines[0].PV)
	for _, m := range r.Lines[0].PV {
		require.NoError(t, b.MakeMove(m), "pv move %s", m)
	}
}
