package board

import (
	"errors"
	"fmt"
)

// Move packs everything needed to apply and order a move into 32 bits:
//
//	bits  0-5:  from square
//	bits  6-11: to square
//	bits 12-14: moving piece type
//	bits 15-17: captured piece type (NoPieceType if none)
//	bits 18-20: promotion piece type (NoPieceType if none)
//	bits 21-23: flags (double push, en passant, castling)
//
// Two moves are equal only if every field matches, so a move recorded in
// one position cannot silently be replayed in another.
type Move uint32

// Move flags
const (
	FlagDoublePush Move = 1 << 21
	FlagEnPassant  Move = 1 << 22
	FlagCastling   Move = 1 << 23
)

// NoMove is the zero move.
const NoMove Move = 0

var (
	// ErrInvalidMoveString is returned for text that is not coordinate notation.
	ErrInvalidMoveString = errors.New("invalid move string")
)

func newMove(from, to Square, piece, captured, promo PieceType, flags Move) Move {
	return Move(from) | Move(to)<<6 | Move(piece)<<12 | Move(captured)<<15 | Move(promo)<<18 | flags
}

func (m Move) From() Square { return Square(m & 0x3F) }
func (m Move) To() Square { return Square((m >> 6) & 0x3F) }

// Piece returns the type of the moving piece.
func (m Move) Piece() PieceType { return PieceType((m >> 12) & 7) }

// Captured returns the captured piece type or NoPieceType.
func (m Move) Captured() PieceType { return PieceType((m >> 15) & 7) }

// Promotion returns the promotion piece type or NoPieceType.
func (m Move) Promotion() PieceType { return PieceType((m >> 18) & 7) }

// Pawn encodes as 0, so NoMove needs its own guard.
func (m Move) IsCapture() bool { return m != NoMove && m.Captured() != NoPieceType }
func (m Move) IsPromotion() bool { return m != NoMove && m.Promotion() != NoPieceType }
func (m Move) IsEnPassant() bool { return m&FlagEnPassant != 0 }
func (m Move) IsCastling() bool { return m&FlagCastling != 0 }
func (m Move) IsDoublePush() bool { return m&FlagDoublePush != 0 }

// IsQuiet reports whether the move neither captures nor promotes.
func (m Move) IsQuiet() bool {
	return !m.IsCapture() && !m.IsPromotion()
}

// String returns coordinate notation, e.g. "e2e4" or "e7e8q".
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string(m.Promotion().Char())
	}
	return s
}

// ParseMove resolves coordinate notation against the legal moves of the
// current position.
func (b *Board) ParseMove(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return NoMove, fmt.Errorf("%w: %q", ErrInvalidMoveString, s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NoMove, fmt.Errorf("%w: %q", ErrInvalidMoveString, s)
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NoMove, fmt.Errorf("%w: %q", ErrInvalidMoveString, s)
	}
	promo := NoPieceType
	if len(s) == 5 {
		if promo = pieceTypeFromPromotionChar(s[4]); promo == NoPieceType {
			return NoMove, fmt.Errorf("%w: %q", ErrInvalidMoveString, s)
		}
	}

	var ml MoveList
	b.LegalMoves(&ml)
	for _, m := range ml.Slice() {
		if m.From() == from && m.To() == to && m.Promotion() == promo {
			return m, nil
		}
	}
	return NoMove, fmt.Errorf("%w: %s", ErrIllegalMove, s)
}

// MaxMoves bounds the number of legal moves in any position.
const MaxMoves = 256

// MoveList is a fixed-size list of moves to avoid allocations.
type MoveList struct {
	moves [MaxMoves]Move
	count int
}

func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

func (ml *MoveList) Len() int { return ml.count }
func (ml *MoveList) Get(i int) Move { return ml.moves[i] }
func (ml *MoveList) Swap(i, j int) { ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i] }
func (ml *MoveList) Clear() { ml.count = 0 }
func (ml *MoveList) Slice() []Move { return ml.moves[:ml.count] }
func (ml *MoveList) Set(i int, m Move) { ml.moves[i] = m }

// Contains reports whether m is in the list.
func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i] == m {
			return true
		}
	}
	return false
}
