package engine

import (
	"math"
	"strconv"
	"time"

	"github.com/hailam/trout/internal/board"
)

// Score bounds
const (
	Infinity  = 32000
	MateScore = 30000
	DrawScore = 0
	MaxPly    = 128
)

// IsMateScore reports whether score announces a forced mate.
func IsMateScore(score int) bool {
	return score > MateScore-MaxPly || score < -MateScore+MaxPly
}

// MateIn converts a mate score to full moves, negative when the side to
// move is getting mated. It returns 0 for other scores.
func MateIn(score int) int {
	switch {
	case score > MateScore-MaxPly:
		return (MateScore - score + 1) / 2
	case score < -MateScore+MaxPly:
		return -(MateScore + score) / 2
	}
	return 0
}

// FormatScore renders a score the way the protocol reports it,
// "cp 35" or "mate -3".
func FormatScore(score int) string {
	if IsMateScore(score) {
		return "mate " + strconv.Itoa(MateIn(score))
	}
	return "cp " + strconv.Itoa(score)
}

// Centipawn scale of the win expectation curve, from bare endgames to the
// full opening phase. A lead of one scale unit gives 10:1 odds.
const (
	minWinPercentScale = 400
	maxWinPercentScale = 800
)

// drawMargin is the lead a side needs before wins outweigh draws.
const drawMargin = 100

func winScale(phase int) float64 {
	phase = min(max(phase, 0), maxPhase)
	return float64(minWinPercentScale + (maxWinPercentScale-minWinPercentScale)*phase/maxPhase)
}

// WinPercent converts a score to the expected result of the side to move,
// 0 to 100. The same lead is worth more with less material on the board.
func WinPercent(score, phase int) float64 {
	if IsMateScore(score) {
		if score > 0 {
			return 100
		}
		return 0
	}
	return 100 / (1 + math.Pow(10, -float64(score)/winScale(phase)))
}

// WDL splits a score into win, draw and loss chances per mille.
func WDL(score, phase int) [3]int {
	if IsMateScore(score) {
		if score > 0 {
			return [3]int{1000, 0, 0}
		}
		return [3]int{0, 0, 1000}
	}
	scale := winScale(phase)
	chance := func(lead int) int {
		return int(math.Round(1000 / (1 + math.Pow(10, float64(drawMargin-lead)/scale))))
	}
	loss := chance(-score)
	win := min(chance(score), 1000-loss)
	return [3]int{win, 1000 - win - loss, loss}
}

// Line is one principal variation of a completed depth.
type Line struct {
	Move  board.Move
	Score int
	PV    []board.Move
}

// Info is a progress report. Reports for a completed depth carry a
// score and PV; periodic reports during a depth carry the move being
// searched instead.
type Info struct {
	Depth          int
	SelDepth       int
	MultiPV        int
	Score          int
	PV             []board.Move
	CurrMove       board.Move
	CurrMoveNumber int
	Nodes          uint64
	NPS            uint64
	Time           time.Duration
	HashFull       int
	WDL            [3]int
}

// Completed reports whether the info belongs to a finished depth.
func (i Info) Completed() bool {
	return len(i.PV) > 0
}

// Result is the outcome of a search: the lines of the deepest completed
// depth, best first.
type Result struct {
	BestMove   board.Move
	PonderMove board.Move
	Score      int
	Depth      int
	Nodes      uint64
	Elapsed    time.Duration
	Lines      []Line
}

func nps(nodes uint64, elapsed time.Duration) uint64 {
	ms := uint64(elapsed.Milliseconds())
	if ms == 0 {
		return 0
	}
	return nodes * 1000 / ms
}
