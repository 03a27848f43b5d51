package engine

import (
	"time"

	"github.com/hailam/trout/internal/board"
)

// Limits bounds a search. Zero values mean no limit; whichever limit is
// reached first stops the search.
type Limits struct {
	Depth     int              // maximum search depth
	Nodes     uint64           // maximum nodes to search
	MoveTime  time.Duration    // fixed time for this move
	Time      [2]time.Duration // wtime, btime (remaining time for each color)
	Inc       [2]time.Duration // winc, binc (increment per move)
	MovesToGo int              // moves until next time control (0 = sudden death)
	Infinite  bool             // search until stopped
	MultiPV   int              // number of principal variations to report (0 or 1 = one)
}

// timed reports whether the search has a clock to respect.
func (l Limits) timed(us board.Color) bool {
	return !l.Infinite && (l.MoveTime > 0 || l.Time[us] > 0)
}

// TimeManager handles time allocation for searches.
type TimeManager struct {
	baseOptimum time.Duration
	optimumTime time.Duration // target time for this move
	maximumTime time.Duration // hard limit
	startTime   time.Time
	enabled     bool
}

// Init sets up the time budget for a new search. ply is the game ply;
// overhead is subtracted to cover protocol latency.
func (tm *TimeManager) Init(limits Limits, us board.Color, ply int, overhead time.Duration) {
	tm.startTime = time.Now()
	tm.enabled = limits.timed(us)
	if !tm.enabled {
		tm.optimumTime = 0
		tm.maximumTime = 0
		return
	}

	// Fixed move time mode
	if limits.MoveTime > 0 {
		budget := max(limits.MoveTime-overhead, limits.MoveTime/2)
		tm.optimumTime = budget
		tm.maximumTime = budget
		tm.baseOptimum = budget
		return
	}

	timeLeft := max(limits.Time[us]-overhead, time.Millisecond)
	inc := limits.Inc[us]

	mtg := limits.MovesToGo
	if mtg == 0 {
		// Sudden death: expect fewer moves as the game goes on.
		mtg = min(max(50-ply/4, 10), 50)
	}

	baseTime := timeLeft/time.Duration(mtg) + inc*9/10
	tm.optimumTime = baseTime
	if ply < 8 {
		tm.optimumTime = baseTime * 85 / 100
	}

	// Maximum time: 5x optimum or 80% of remaining, whichever is smaller
	tm.maximumTime = min(tm.optimumTime*5, timeLeft*8/10)
	tm.optimumTime = min(tm.optimumTime, tm.maximumTime)

	tm.optimumTime = max(tm.optimumTime, 10*time.Millisecond)
	tm.maximumTime = max(tm.maximumTime, 20*time.Millisecond)
	tm.baseOptimum = tm.optimumTime
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.optimumTime
}

func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.maximumTime
}

// ShouldStop reports whether the hard limit has passed.
func (tm *TimeManager) ShouldStop() bool {
	return tm.enabled && tm.Elapsed() >= tm.maximumTime
}

// PastOptimum reports whether starting another iteration would be wasteful.
func (tm *TimeManager) PastOptimum() bool {
	return tm.enabled && tm.Elapsed() >= tm.optimumTime
}

// AdjustForStability shortens the target time when the best move has
// not changed for several iterations. Fixed move times are not adjusted.
func (tm *TimeManager) AdjustForStability(stability int) {
	if tm.optimumTime == tm.maximumTime {
		return
	}
	pct := time.Duration(100)
	switch {
	case stability >= 6:
		pct = 40
	case stability >= 4:
		pct = 60
	case stability >= 2:
		pct = 80
	}
	tm.optimumTime = tm.baseOptimum * pct / 100
}
