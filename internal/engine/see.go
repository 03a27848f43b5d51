package engine

import (
	"github.com/hailam/trout/internal/board"
)

// SEE estimates the material balance of the capture sequence started by m
// on its destination square, from the moving side's point of view.
// X-ray attackers are revealed as pieces leave the board.
func SEE(pos *board.Position, m board.Move) int {
	if m.IsQuiet() {
		return 0
	}
	target := m.To()

	var gain [32]int
	gain[0] = board.PieceValue[m.Captured()] // 0 for NoPieceType
	onSquare := m.Piece()
	if m.IsPromotion() {
		gain[0] += board.PieceValue[m.Promotion()] - board.PieceValue[board.Pawn]
		onSquare = m.Promotion()
	}

	occupied := pos.AllOccupied &^ board.SquareBB(m.From())
	if m.IsEnPassant() {
		occupied &^= board.SquareBB(enPassantVictim(target, pos.SideToMove))
	}
	side := pos.SideToMove.Other()

	d := 0
	for d < len(gain)-1 {
		sq, pt := leastValuableAttacker(pos, target, side, occupied)
		if sq == board.NoSquare {
			break
		}
		d++
		gain[d] = board.PieceValue[onSquare] - gain[d-1]
		if max(-gain[d-1], gain[d]) < 0 {
			break
		}
		occupied &^= board.SquareBB(sq)
		onSquare = pt
		side = side.Other()
	}

	for ; d > 0; d-- {
		gain[d-1] = -max(-gain[d-1], gain[d])
	}
	return gain[0]
}

func enPassantVictim(to board.Square, us board.Color) board.Square {
	if us == board.White {
		return to - 8
	}
	return to + 8
}

// leastValuableAttacker finds the cheapest piece of side attacking target
// through the given occupancy. It returns NoSquare if there is none.
func leastValuableAttacker(pos *board.Position, target board.Square, side board.Color, occupied board.Bitboard) (board.Square, board.PieceType) {
	pieces := &pos.Pieces[side]
	diagonal := board.BishopAttacks(target, occupied)
	straight := board.RookAttacks(target, occupied)

	candidates := [...]struct {
		pt      board.PieceType
		attacks board.Bitboard
	}{
		{board.Pawn, board.PawnAttacks(target, side.Other())},
		{board.Knight, board.KnightAttacks(target)},
		{board.Bishop, diagonal},
		{board.Rook, straight},
		{board.Queen, diagonal | straight},
		{board.King, board.KingAttacks(target)},
	}
	for _, c := range candidates {
		if attackers := pieces[c.pt] & c.attacks & occupied; attackers != 0 {
			return attackers.LSB(), c.pt
		}
	}
	return board.NoSquare, board.NoPieceType
}
