package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hailam/trout/internal/board"
)

// Options tune a Search.
type Options struct {
	// UseCache enables cache probes and stores. Disabling it changes
	// speed only, never the result of a fixed-depth search.
	UseCache bool
	// NodeCheckInterval is the number of nodes between polls of the stop
	// signal, the clock and the progress timer.
	NodeCheckInterval uint64
	// InfoInterval is the time between progress reports within a depth.
	InfoInterval time.Duration
	// MoveOverhead is reserved from every clock-based budget.
	MoveOverhead time.Duration
}

// DefaultOptions returns the options used by the protocol front end.
func DefaultOptions() Options {
	return Options{
		UseCache:          true,
		NodeCheckInterval: 5000,
		InfoInterval:      time.Second,
		MoveOverhead:      30 * time.Millisecond,
	}
}

// pvTable stores the principal variation, triangular by ply.
type pvTable struct {
	length [MaxPly + 1]int
	moves  [MaxPly + 1][MaxPly + 1]board.Move
}

func (pv *pvTable) update(ply int, m board.Move) {
	pv.moves[ply][ply] = m
	child := max(pv.length[ply+1], ply+1)
	copy(pv.moves[ply][ply+1:child], pv.moves[ply+1][ply+1:child])
	pv.length[ply] = child
}

func (pv *pvTable) line() []board.Move {
	return slices.Clone(pv.moves[0][:pv.length[0]])
}

// Search walks the game tree of a position. A Search runs one search at
// a time; Stop may be called from any goroutine.
type Search struct {
	cache *Cache
	eval  Evaluator
	opts  Options

	// OnInfo receives progress reports on the searching goroutine.
	OnInfo func(Info)

	killers KillerMoves
	history MoveHistory
	pv      pvTable
	tm      TimeManager

	board     *board.Board
	limits    Limits
	ctx       context.Context
	nodes     uint64
	selDepth  int
	nextCheck uint64
	start     time.Time
	lastInfo  time.Time
	completed int
	aborted   bool
	rootHint  board.Move
	phase     int

	// pathDependent is set when a score below the current node came from
	// the game path (repetition, fifty-move rule, ply horizon). Such
	// scores are not cached.
	pathDependent bool

	currMove       board.Move
	currMoveNumber int

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped atomic.Bool
}

// New creates a search over cache with the given evaluator. A nil cache
// disables caching; a nil evaluator selects Classic.
func New(cache *Cache, eval Evaluator, opts Options) *Search {
	if eval == nil {
		eval = Classic{}
	}
	if opts.NodeCheckInterval == 0 {
		opts.NodeCheckInterval = DefaultOptions().NodeCheckInterval
	}
	return &Search{cache: cache, eval: eval, opts: opts}
}

// Cache returns the cache the search reads and writes.
func (s *Search) Cache() *Cache {
	return s.cache
}

// SetCache replaces the cache, e.g. after a resize.
func (s *Search) SetCache(c *Cache) {
	s.cache = c
}

// SetRootHint suggests a move to try first at the root of the next
// search. It is ignored if it is not legal there.
func (s *Search) SetRootHint(m board.Move) {
	s.rootHint = m
}

// NewGame forgets everything learned in earlier searches.
func (s *Search) NewGame() {
	s.killers.Clear()
	s.history.Clear()
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Stop asks a running search to return its best completed result.
func (s *Search) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
}

// Evaluate returns the static evaluation of b.
func (s *Search) Evaluate(b *board.Board) int {
	return s.eval.Evaluate(b)
}

func (s *Search) useCache() bool {
	return s.opts.UseCache && s.cache != nil
}

func (s *Search) stopRequested() bool {
	return s.stopped.Load() || s.ctx.Err() != nil
}

// FindBestMove searches the current position of b within limits and returns
// the result of the deepest completed depth. The board is not modified.
// Cancelling ctx has the same effect as Stop. In infinite mode it does
// not return before it is stopped.
func (s *Search) FindBestMove(ctx context.Context, b *board.Board, limits Limits) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.stopped.Store(false)
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	s.prepare(ctx, b, limits)
	log.Debug().
		Str("fen", b.FEN()).
		Int("depth", limits.Depth).
		Uint64("nodes", limits.Nodes).
		Dur("movetime", limits.MoveTime).
		Bool("infinite", limits.Infinite).
		Int("multipv", limits.MultiPV).
		Msg("search started")

	result := s.iterate()
	result.Nodes = s.nodes
	result.Elapsed = time.Since(s.start)

	if limits.Infinite {
		<-ctx.Done()
	}

	ev := log.Info().
		Int("depth", result.Depth).
		Str("score", FormatScore(result.Score)).
		Float64("win_pct", WinPercent(result.Score, s.phase)).
		Uint64("nodes", result.Nodes).
		Uint64("nps", nps(result.Nodes, result.Elapsed)).
		Dur("elapsed", result.Elapsed)
	if result.BestMove != board.NoMove {
		ev = ev.Str("best", b.SAN(result.BestMove))
	}
	if s.useCache() {
		ev = ev.Float64("hit_rate", s.cache.HitRate())
	}
	ev.Msg("search finished")
	return result
}

func (s *Search) prepare(ctx context.Context, b *board.Board, limits Limits) {
	s.ctx = ctx
	s.board = b.Clone()
	if s.board.Ply()+MaxPly >= board.MaxPositions {
		s.board.Compact()
	}
	s.limits = limits
	s.nodes = 0
	s.selDepth = 0
	s.completed = 0
	s.aborted = false
	s.nextCheck = s.opts.NodeCheckInterval
	s.start = time.Now()
	s.lastInfo = s.start
	s.phase = Phase(s.board.Current())
	s.killers.Clear()
	s.history.Age()
	if s.useCache() {
		s.cache.NewSearch()
	}
	s.tm.Init(limits, b.SideToMove(), b.Current().FullMoveNumber*2, s.opts.MoveOverhead)
}

// iterate runs iterative deepening until a limit is reached. Depth 1 is
// always completed so that a legal position always yields a move.
func (s *Search) iterate() Result {
	b := s.board
	var ml board.MoveList
	b.LegalMoves(&ml)
	if ml.Len() == 0 {
		score := DrawScore
		if b.InCheck() {
			score = -MateScore
		}
		return Result{Score: score}
	}

	rootMoves := s.orderRootMoves(&ml)
	multiPV := min(max(s.limits.MultiPV, 1), len(rootMoves))
	maxDepth := MaxPly - 1
	if s.limits.Depth > 0 {
		maxDepth = min(s.limits.Depth, maxDepth)
	}

	var result Result
	stability := 0
	for depth := 1; depth <= maxDepth; depth++ {
		lines, ok := s.searchDepth(depth, rootMoves, multiPV)
		if !ok {
			break
		}
		s.completed = depth

		if len(result.Lines) > 0 && lines[0].Move == result.BestMove {
			stability++
		} else {
			stability = 0
		}
		result = Result{
			BestMove: lines[0].Move,
			Score:    lines[0].Score,
			Depth:    depth,
			Lines:    lines,
		}
		if pv := lines[0].PV; len(pv) > 1 {
			result.PonderMove = pv[1]
		}
		s.reportLines(depth, lines)

		first := lo.Map(lines, func(l Line, _ int) board.Move { return l.Move })
		rootMoves = append(first, lo.Without(rootMoves, first...)...)

		if s.stopRequested() || s.tm.PastOptimum() {
			break
		}
		if s.limits.Nodes > 0 && s.nodes >= s.limits.Nodes {
			break
		}
		// A mate found within the full-width horizon cannot get shorter.
		if !s.limits.Infinite && IsMateScore(result.Score) && MateScore-abs(result.Score) <= depth {
			break
		}
		s.tm.AdjustForStability(stability)
	}
	return result
}

// orderRootMoves puts the hint (or the cached move) first, then orders
// the rest by capture value. The order does not depend on history or
// killers, so equal searches pick equal moves.
func (s *Search) orderRootMoves(ml *board.MoveList) []board.Move {
	first := board.NoMove
	if ml.Contains(s.rootHint) {
		first = s.rootHint
	} else if s.useCache() {
		if e, ok := s.cache.Probe(s.board.Key()); ok && ml.Contains(e.Move) {
			first = e.Move
		}
	}
	s.rootHint = board.NoMove

	pos := s.board.Current()
	moves := slices.Clone(ml.Slice())
	score := func(m board.Move) int {
		switch {
		case m == first:
			return CacheMoveScore
		case !m.IsQuiet():
			return captureScore(pos, m)
		}
		return 0
	}
	slices.SortStableFunc(moves, func(a, b board.Move) int {
		return score(b) - score(a)
	})
	return moves
}

// searchDepth searches every requested line at depth. It reports false
// if the search was interrupted, in which case the depth is discarded.
func (s *Search) searchDepth(depth int, rootMoves []board.Move, multiPV int) ([]Line, bool) {
	lines := make([]Line, 0, multiPV)
	var excluded []board.Move
	for i := 0; i < multiPV; i++ {
		move, score, ok := s.searchRoot(depth, rootMoves, excluded)
		if !ok {
			return nil, false
		}
		if move == board.NoMove {
			break
		}
		lines = append(lines, Line{Move: move, Score: score, PV: s.pv.line()})
		excluded = append(excluded, move)
	}
	return lines, true
}

// searchRoot finds the best root move not in excluded. Root nodes are
// never cut off by the cache.
func (s *Search) searchRoot(depth int, rootMoves, excluded []board.Move) (board.Move, int, bool) {
	alpha, beta := -Infinity, Infinity
	best, bestMove := -Infinity, board.NoMove
	s.pv.length[0] = 0

	n := 0
	dependent := false
	for _, m := range rootMoves {
		if lo.Contains(excluded, m) {
			continue
		}
		n++
		s.currMove, s.currMoveNumber = m, n

		s.pathDependent = false
		s.makeMove(m)
		score := -s.alphaBeta(depth-1, 1, -beta, -alpha)
		s.undoMove()
		if s.aborted {
			return board.NoMove, 0, false
		}
		dependent = dependent || s.pathDependent

		if score > best {
			best, bestMove = score, m
			if score > alpha {
				alpha = score
				s.pv.update(0, m)
			}
		}
	}

	if bestMove != board.NoMove && len(excluded) == 0 && !dependent && s.useCache() {
		s.cache.Store(s.board.Key(), bestMove, scoreToCache(best, 0), depth, BoundExact)
	}
	return bestMove, best, true
}

// alphaBeta is a fail-soft negamax search of the current position.
func (s *Search) alphaBeta(depth, ply, alpha, beta int) int {
	s.pv.length[ply] = ply
	b := s.board

	if b.IsRepetition() {
		s.pathDependent = true
		return DrawScore
	}
	if b.IsInsufficientMaterial() {
		return DrawScore
	}
	if depth <= 0 {
		return s.quiescence(ply, alpha, beta)
	}

	s.nodes++
	if s.checkAbort() {
		return 0
	}
	if ply >= MaxPly-1 {
		s.pathDependent = true
		return s.eval.Evaluate(b)
	}

	key := b.Key()
	cacheMove := board.NoMove
	if s.useCache() {
		if e, ok := s.cache.Probe(key); ok {
			cacheMove = e.Move
			if score, ok := s.cacheCutoff(e, depth, ply, alpha, beta); ok {
				return score
			}
		}
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
		s.pathDependent = true
		return DrawScore
	}

	outer := s.pathDependent
	s.pathDependent = false

	var scores [board.MaxMoves]int
	s.scoreMoves(&ml, &scores, cacheMove, ply)

	us := b.SideToMove()
	best, bestMove := -Infinity, board.NoMove
	bound := BoundUpper
	var quiets [64]board.Move
	nQuiets := 0

	for i := 0; i < ml.Len(); i++ {
		m := pickMove(&ml, &scores, i)

		s.makeMove(m)
		score := -s.alphaBeta(depth-1, ply+1, -beta, -alpha)
		s.undoMove()
		if s.aborted {
			return 0
		}

		if score > best {
			best, bestMove = score, m
			if score > alpha {
				alpha = score
				bound = BoundExact
				s.pv.update(ply, m)
			}
		}
		if alpha >= beta {
			bound = BoundLower
			if m.IsQuiet() {
				s.killers.Add(m, ply)
				s.history.Reward(us, m, depth)
				for _, q := range quiets[:nQuiets] {
					s.history.Penalize(us, q, depth)
				}
			}
			break
		}
		if m.IsQuiet() && nQuiets < len(quiets) {
			quiets[nQuiets] = m
			nQuiets++
		}
	}

	dependent := s.pathDependent
	s.pathDependent = outer || dependent
	if s.useCache() && !dependent {
		s.cache.Store(key, bestMove, scoreToCache(best, ply), depth, bound)
	}
	return best
}

// cacheCutoff returns the score of e if it can stand in for searching the
// current node. Only an entry of exactly the remaining depth is used: a
// deeper result would differ from what this search computes. The node must
// also be out of reach of draws that depend on the path to it.
func (s *Search) cacheCutoff(e CacheEntry, depth, ply, alpha, beta int) (int, bool) {
	if int(e.Depth) != depth {
		return 0, false
	}
	score := scoreFromCache(int(e.Score), ply)
	switch e.Bound() {
	case BoundExact:
	case BoundLower:
		if score < beta {
			return 0, false
		}
	case BoundUpper:
		if score > alpha {
			return 0, false
		}
	default:
		return 0, false
	}
	b := s.board
	if b.FiftyMoveCount()+depth >= 100 || b.MayRepeatWithin(depth) {
		return 0, false
	}
	return score, true
}

// quiescence resolves captures beyond the horizon. The static evaluation
// is a lower bound (stand pat) unless the side to move is in check, in
// which case every evasion is searched.
func (s *Search) quiescence(ply, alpha, beta int) int {
	s.pv.length[ply] = ply
	s.nodes++
	if s.checkAbort() {
		return 0
	}
	s.selDepth = max(s.selDepth, ply)

	b := s.board
	if ply >= MaxPly-1 {
		s.pathDependent = true
		return s.eval.Evaluate(b)
	}

	var ml board.MoveList
	best := -Infinity
	if b.InCheck() {
		b.LegalMoves(&ml)
		if ml.Len() == 0 {
			return -MateScore + ply
		}
	} else {
		best = s.eval.Evaluate(b)
		if best >= beta {
			return best
		}
		alpha = max(alpha, best)
		b.Captures(&ml)
	}

	var scores [board.MaxMoves]int
	s.scoreMoves(&ml, &scores, board.NoMove, ply)

	for i := 0; i < ml.Len(); i++ {
		m := pickMove(&ml, &scores, i)

		s.makeMove(m)
		score := -s.quiescence(ply+1, -beta, -alpha)
		s.undoMove()
		if s.aborted {
			return 0
		}

		if score > best {
			best = score
			if score > alpha {
				alpha = score
				if alpha >= beta {
					break
				}
			}
		}
	}
	return best
}

// checkAbort is called once per node. Every NodeCheckInterval nodes it
// polls the stop signal and the clock and emits a progress report.
// Nothing interrupts the first depth.
func (s *Search) checkAbort() bool {
	if s.aborted {
		return true
	}
	if s.completed == 0 {
		if s.nodes >= s.nextCheck {
			s.nextCheck = s.nodes + s.opts.NodeCheckInterval
			s.maybeReportProgress()
		}
		return false
	}
	if s.limits.Nodes > 0 && s.nodes >= s.limits.Nodes {
		s.aborted = true
		return true
	}
	if s.nodes < s.nextCheck {
		return false
	}
	s.nextCheck = s.nodes + s.opts.NodeCheckInterval
	if s.stopRequested() || s.tm.ShouldStop() {
		s.aborted = true
		return true
	}
	s.maybeReportProgress()
	return false
}

func (s *Search) makeMove(m board.Move) {
	if err := s.board.MakeMove(m); err != nil {
		panic(fmt.Sprintf("engine: generated move %s rejected: %v\n%s", m, err, s.board))
	}
}

func (s *Search) undoMove() {
	if err := s.board.UndoMove(); err != nil {
		panic(fmt.Sprintf("engine: %v", err))
	}
}

func (s *Search) hashFull() int {
	if !s.useCache() {
		return 0
	}
	return s.cache.HashFull()
}

func (s *Search) maybeReportProgress() {
	if s.OnInfo == nil || s.opts.InfoInterval <= 0 || time.Since(s.lastInfo) < s.opts.InfoInterval {
		return
	}
	s.lastInfo = time.Now()
	elapsed := time.Since(s.start)
	s.OnInfo(Info{
		Depth:          s.completed + 1,
		SelDepth:       s.selDepth,
		CurrMove:       s.currMove,
		CurrMoveNumber: s.currMoveNumber,
		Nodes:          s.nodes,
		NPS:            nps(s.nodes, elapsed),
		Time:           elapsed,
		HashFull:       s.hashFull(),
	})
}

func (s *Search) reportLines(depth int, lines []Line) {
	if s.OnInfo == nil {
		return
	}
	s.lastInfo = time.Now()
	elapsed := time.Since(s.start)
	hashFull := s.hashFull()
	for i, l := range lines {
		s.OnInfo(Info{
			Depth:    depth,
			SelDepth: max(s.selDepth, len(l.PV)),
			MultiPV:  i + 1,
			Score:    l.Score,
			PV:       l.PV,
			Nodes:    s.nodes,
			NPS:      nps(s.nodes, elapsed),
			Time:     elapsed,
			HashFull: hashFull,
			WDL:      WDL(l.Score, s.phase),
		})
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
