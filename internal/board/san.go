package board

import "strings"

// SAN renders m in Standard Algebraic Notation for the current position.
// m must be legal here.
func (b *Board) SAN(m Move) string {
	if m == NoMove {
		return "-"
	}
	var sb strings.Builder
	from, to, pt := m.From(), m.To(), m.Piece()

	switch {
	case m.IsCastling() && to > from:
		sb.WriteString("O-O")
	case m.IsCastling():
		sb.WriteString("O-O-O")
	default:
		if pt != Pawn {
			sb.WriteByte("PNBRQK"[pt])
			sb.WriteString(b.disambiguation(m))
		}
		if m.IsCapture() {
			if pt == Pawn {
				sb.WriteByte('a' + byte(from.File()))
			}
			sb.WriteByte('x')
		}
		sb.WriteString(to.String())
		if m.IsPromotion() {
			sb.WriteByte('=')
			sb.WriteByte("PNBRQK"[m.Promotion()])
		}
	}

	if b.MakeMove(m) == nil {
		if b.InCheck() {
			if b.HasLegalMoves() {
				sb.WriteByte('+')
			} else {
				sb.WriteByte('#')
			}
		}
		_ = b.UndoMove()
	}
	return sb.String()
}

// disambiguation returns the origin file, rank or square needed when
// another piece of the same type can reach the same destination.
func (b *Board) disambiguation(m Move) string {
	from := m.From()
	var ml MoveList
	b.LegalMoves(&ml)

	ambiguous, sameFile, sameRank := false, false, false
	for _, other := range ml.Slice() {
		if other.To() != m.To() || other.Piece() != m.Piece() || other.From() == from {
			continue
		}
		ambiguous = true
		sameFile = sameFile || other.From().File() == from.File()
		sameRank = sameRank || other.From().Rank() == from.Rank()
	}
	switch {
	case !ambiguous:
		return ""
	case !sameFile:
		return string(rune('a' + from.File()))
	case !sameRank:
		return string(rune('1' + from.Rank()))
	default:
		return from.String()
	}
}

// SANLine renders a sequence of moves starting from the current position.
// Rendering stops at the first move that is not legal in sequence.
func (b *Board) SANLine(moves []Move) []string {
	out := make([]string, 0, len(moves))
	played := 0
	for _, m := range moves {
		san := b.SAN(m)
		if b.MakeMove(m) != nil {
			break
		}
		played++
		out = append(out, san)
	}
	for ; played > 0; played-- {
		_ = b.UndoMove()
	}
	return out
}
