// Package engine searches chess positions: iterative deepening alpha-beta
// with quiescence, move ordering, a transposition cache and a default
// static evaluator.
package engine

import (
	"github.com/hailam/trout/internal/board"
)

// Evaluator scores the current position of b in centipawns from the side
// to move's point of view. Scores must stay well inside the mate range.
type Evaluator interface {
	Evaluate(b *board.Board) int
}

// Passed pawn bonuses by relative rank.
var passedPawnBonus = [8]int{0, 10, 20, 40, 70, 120, 200, 0}

const (
	freePawnBonus     = 30 // nothing in front of a passed pawn
	bishopPairMgBonus = 25
	bishopPairEgBonus = 50
	rookOpenFileMg    = 20
	rookOpenFileEg    = 25
	rookSemiOpenMg    = 10
	rookSemiOpenEg    = 15
	tempoBonus        = 10
	maxPhase          = 24
)

// Mobility weights per piece type
var mobilityMgWeight = [6]int{0, 4, 5, 2, 1, 0}
var mobilityEgWeight = [6]int{0, 3, 4, 4, 2, 0}

var phaseWeight = [6]int{0, 1, 1, 2, 4, 0}

// Piece-square tables, written rank 8 first as seen from White's side.

var pawnPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightPST = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopPST = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

var queenPST = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

var kingMidgamePST = [64]int{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

var kingEndgamePST = [64]int{
	-50, -40, -30, -20, -20, -30, -40, -50,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-50, -30, -30, -30, -30, -30, -30, -50,
}

var psts = [...][64]int{
	pawnPST, knightPST, bishopPST, rookPST, queenPST, kingMidgamePST,
}

// Phase measures the material left on the board, from 0 (kings and pawns)
// to maxPhase (the opening).
func Phase(pos *board.Position) int {
	phase := 0
	for pt := board.Knight; pt <= board.Queen; pt++ {
		phase += phaseWeight[pt] * (pos.Pieces[board.White][pt] | pos.Pieces[board.Black][pt]).PopCount()
	}
	return min(phase, maxPhase)
}

// Classic is a tapered material and piece-square evaluator with pawn
// structure, mobility and bishop pair terms.
type Classic struct{}

// Evaluate implements Evaluator.
func (Classic) Evaluate(b *board.Board) int {
	pos := b.Current()
	var mg, eg, phase int

	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		for pt := board.Pawn; pt <= board.King; pt++ {
			bb := pos.Pieces[c][pt]
			for bb != 0 {
				sq := bb.PopLSB()
				// Tables are drawn rank 8 first, so White looks them up mirrored.
				pstSq := sq
				if c == board.White {
					pstSq = sq.Mirror()
				}

				mg += sign * board.PieceValue[pt]
				eg += sign * board.PieceValue[pt]
				if pt == board.King {
					mg += sign * kingMidgamePST[pstSq]
					eg += sign * kingEndgamePST[pstSq]
				} else {
					mg += sign * psts[pt][pstSq]
					eg += sign * psts[pt][pstSq]
				}
				phase += phaseWeight[pt]

				if pt == board.Pawn && b.IsPassedPawn(sq) {
					bonus := passedPawnBonus[sq.RelativeRank(c)]
					if b.IsFreePawn(sq) {
						bonus += freePawnBonus
					}
					mg += sign * bonus / 2
					eg += sign * bonus
				}
			}
		}

		if pos.Pieces[c][board.Bishop].Several() {
			mg += sign * bishopPairMgBonus
			eg += sign * bishopPairEgBonus
		}

		rooksMg, rooksEg := rooksOnFiles(pos, c)
		mg += sign * rooksMg
		eg += sign * rooksEg

		mobMg, mobEg := mobility(pos, c)
		mg += sign * mobMg
		eg += sign * mobEg
	}

	phase = min(phase, maxPhase)
	score := (mg*phase + eg*(maxPhase-phase)) / maxPhase
	if pos.SideToMove == board.Black {
		score = -score
	}
	return score + tempoBonus
}

func rooksOnFiles(pos *board.Position, c board.Color) (mg, eg int) {
	own := pos.Pieces[c][board.Pawn]
	enemy := pos.Pieces[c.Other()][board.Pawn]
	rooks := pos.Pieces[c][board.Rook]
	for rooks != 0 {
		file := board.FileMask[rooks.PopLSB().File()]
		switch {
		case file&(own|enemy) == 0:
			mg += rookOpenFileMg
			eg += rookOpenFileEg
		case file&own == 0:
			mg += rookSemiOpenMg
			eg += rookSemiOpenEg
		}
	}
	return mg, eg
}

// mobility counts attacked squares not occupied by own pieces or
// covered by enemy pawns.
func mobility(pos *board.Position, c board.Color) (mg, eg int) {
	enemyPawns := pos.Pieces[c.Other()][board.Pawn]
	var pawnCover board.Bitboard
	for bb := enemyPawns; bb != 0; {
		pawnCover |= board.PawnAttacks(bb.PopLSB(), c.Other())
	}
	safe := ^pos.Occupied[c] &^ pawnCover
	occ := pos.AllOccupied

	for pt := board.Knight; pt <= board.Queen; pt++ {
		for bb := pos.Pieces[c][pt]; bb != 0; {
			sq := bb.PopLSB()
			var attacks board.Bitboard
			switch pt {
			case board.Knight:
				attacks = board.KnightAttacks(sq)
			case board.Bishop:
				attacks = board.BishopAttacks(sq, occ)
			case board.Rook:
				attacks = board.RookAttacks(sq, occ)
			case board.Queen:
				attacks = board.QueenAttacks(sq, occ)
			}
			n := (attacks & safe).PopCount()
			mg += n * mobilityMgWeight[pt]
			eg += n * mobilityEgWeight[pt]
		}
	}
	return mg, eg
}
