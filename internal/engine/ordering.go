package engine

import (
	"github.com/hailam/trout/internal/board"
)

// Move ordering priorities
const (
	CacheMoveScore  = 10000000 // cached best move goes first
	GoodCaptureBase = 1000000  // captures that do not lose material
	KillerScore1    = 900000
	KillerScore2    = 800000
	BadCaptureBase  = -100000 // captures that lose material
	historyMax      = 400000
)

// MVV-LVA (Most Valuable Victim - Least Valuable Attacker) scores.
// Higher score = search first.
var mvvLva = [6][6]int{
	//       P    N    B    R    Q    K  (attacker)
	/* P */ {15, 14, 14, 13, 12, 11},
	/* N */ {25, 24, 24, 23, 22, 21},
	/* B */ {35, 34, 34, 33, 32, 31},
	/* R */ {45, 44, 44, 43, 42, 41},
	/* Q */ {55, 54, 54, 53, 52, 51},
	/* K */ {0, 0, 0, 0, 0, 0},
}

// KillerMoves holds the two most recent quiet moves per ply that caused
// a beta cutoff.
type KillerMoves struct {
	moves [MaxPly][2]board.Move
}

// Add records m as the newest killer at ply.
func (k *KillerMoves) Add(m board.Move, ply int) {
	if ply >= MaxPly || k.moves[ply][0] == m {
		return
	}
	k.moves[ply][1] = k.moves[ply][0]
	k.moves[ply][0] = m
}

// Get returns the killers stored at ply.
func (k *KillerMoves) Get(ply int) (board.Move, board.Move) {
	if ply >= MaxPly {
		return board.NoMove, board.NoMove
	}
	return k.moves[ply][0], k.moves[ply][1]
}

func (k *KillerMoves) Clear() {
	clear(k.moves[:])
}

// MoveHistory scores quiet moves by how often they caused cutoffs,
// indexed by side, from and to square.
type MoveHistory struct {
	scores [2][64][64]int
}

// Reward raises the score of a move that caused a cutoff at depth.
func (h *MoveHistory) Reward(c board.Color, m board.Move, depth int) {
	s := &h.scores[c][m.From()][m.To()]
	*s += depth * depth
	if *s > historyMax {
		h.Age()
	}
}

// Penalize lowers the score of a quiet move tried before the cutoff move.
func (h *MoveHistory) Penalize(c board.Color, m board.Move, depth int) {
	s := &h.scores[c][m.From()][m.To()]
	*s = max(*s-depth*depth, -historyMax)
}

func (h *MoveHistory) Score(c board.Color, m board.Move) int {
	return h.scores[c][m.From()][m.To()]
}

// Age halves every score so old statistics fade.
func (h *MoveHistory) Age() {
	for c := range h.scores {
		for from := range h.scores[c] {
			for to := range h.scores[c][from] {
				h.scores[c][from][to] /= 2
			}
		}
	}
}

func (h *MoveHistory) Clear() {
	h.scores = [2][64][64]int{}
}

// captureScore orders captures and promotions by MVV-LVA, with captures
// that lose material by exchange moved behind the quiet killers.
func captureScore(pos *board.Position, m board.Move) int {
	victim := m.Captured()
	attacker := m.Piece()
	if victim == board.NoPieceType {
		// quiet promotion
		return GoodCaptureBase + int(m.Promotion())*10
	}
	score := mvvLva[victim][attacker] * 1000
	if m.IsPromotion() {
		score += int(m.Promotion()) * 10
	}
	if board.PieceValue[attacker] > board.PieceValue[victim] && SEE(pos, m) < 0 {
		return BadCaptureBase + score
	}
	return GoodCaptureBase + score
}

// scoreMoves assigns ordering scores: cached move, captures by exchange
// value, killers, then history.
func (s *Search) scoreMoves(ml *board.MoveList, scores *[board.MaxMoves]int, cacheMove board.Move, ply int) {
	pos := s.board.Current()
	us := pos.SideToMove
	k1, k2 := s.killers.Get(ply)
	for i, m := range ml.Slice() {
		switch {
		case m == cacheMove:
			scores[i] = CacheMoveScore
		case !m.IsQuiet():
			scores[i] = captureScore(pos, m)
		case m == k1:
			scores[i] = KillerScore1
		case m == k2:
			scores[i] = KillerScore2
		default:
			scores[i] = s.history.Score(us, m)
		}
	}
}

// pickMove selects the best remaining move and moves it to index.
// This allows lazy move sorting (only sort as much as needed).
func pickMove(ml *board.MoveList, scores *[board.MaxMoves]int, index int) board.Move {
	best := index
	for j := index + 1; j < ml.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		ml.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
	return ml.Get(index)
}
