package board

import (
	"fmt"
	"strings"
)

// CastlingRights represents the available castling options.
type CastlingRights uint8

const (
	WhiteKingSideCastle  CastlingRights = 1 << iota // K
	WhiteQueenSideCastle                            // Q
	BlackKingSideCastle                             // k
	BlackQueenSideCastle                            // q
	NoCastling           CastlingRights = 0
	AllCastling          CastlingRights = WhiteKingSideCastle | WhiteQueenSideCastle | BlackKingSideCastle | BlackQueenSideCastle
)

// String returns the FEN castling field.
func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for i, c := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// castlingMask[sq] is ANDed into the rights whenever a move touches sq.
var castlingMask = func() [64]CastlingRights {
	var m [64]CastlingRights
	for i := range m {
		m[i] = AllCastling
	}
	m[E1] &^= WhiteKingSideCastle | WhiteQueenSideCastle
	m[H1] &^= WhiteKingSideCastle
	m[A1] &^= WhiteQueenSideCastle
	m[E8] &^= BlackKingSideCastle | BlackQueenSideCastle
	m[H8] &^= BlackKingSideCastle
	m[A8] &^= BlackQueenSideCastle
	return m
}()

// Position is one record of the board's position stack.
type Position struct {
	Pieces      [2][6]Bitboard // [Color][PieceType]
	Occupied    [2]Bitboard
	AllOccupied Bitboard

	SideToMove     Color
	CastlingRights CastlingRights
	EnPassant      Square // NoSquare if none
	HalfMoveClock  int
	FullMoveNumber int

	Key        uint64
	KingSquare [2]Square
	Checkers   Bitboard

	// LastMove is the move that produced this position, NoMove at the base.
	LastMove Move
}

// PieceAt returns the piece on sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	bb := SquareBB(sq)
	if p.AllOccupied&bb == 0 {
		return NoPiece
	}
	c := White
	if p.Occupied[Black]&bb != 0 {
		c = Black
	}
	for pt := Pawn; pt <= King; pt++ {
		if p.Pieces[c][pt]&bb != 0 {
			return NewPiece(pt, c)
		}
	}
	return NoPiece
}

// pieceTypeAt is PieceAt without the color lookup.
func (p *Position) pieceTypeAt(sq Square) PieceType {
	bb := SquareBB(sq)
	if p.AllOccupied&bb == 0 {
		return NoPieceType
	}
	for pt := Pawn; pt <= King; pt++ {
		if (p.Pieces[White][pt]|p.Pieces[Black][pt])&bb != 0 {
			return pt
		}
	}
	return NoPieceType
}

func (p *Position) put(c Color, pt PieceType, sq Square) {
	bb := SquareBB(sq)
	p.Pieces[c][pt] |= bb
	p.Occupied[c] |= bb
	p.AllOccupied |= bb
	if pt == King {
		p.KingSquare[c] = sq
	}
}

func (p *Position) remove(c Color, pt PieceType, sq Square) {
	bb := SquareBB(sq)
	p.Pieces[c][pt] &^= bb
	p.Occupied[c] &^= bb
	p.AllOccupied &^= bb
}

// apply plays m on p, updating the key incrementally. The move must
// already be known to be pseudo-legal.
func (p *Position) apply(m Move) {
	us, them := p.SideToMove, p.SideToMove.Other()
	from, to, pt := m.From(), m.To(), m.Piece()
	key := p.Key

	key ^= zobristCastling[p.CastlingRights]
	if p.EnPassant != NoSquare {
		key ^= zobristEnPassant[p.EnPassant.File()]
	}

	if captured := m.Captured(); captured != NoPieceType {
		capSq := to
		if m.IsEnPassant() {
			capSq = enPassantVictim(to, us)
		}
		p.remove(them, captured, capSq)
		key ^= zobristPiece[them][captured][capSq]
	}

	p.remove(us, pt, from)
	key ^= zobristPiece[us][pt][from]
	placed := pt
	if m.IsPromotion() {
		placed = m.Promotion()
	}
	p.put(us, placed, to)
	key ^= zobristPiece[us][placed][to]

	if m.IsCastling() {
		rookFrom, rookTo := castlingRookSquares(to)
		p.remove(us, Rook, rookFrom)
		p.put(us, Rook, rookTo)
		key ^= zobristPiece[us][Rook][rookFrom] ^ zobristPiece[us][Rook][rookTo]
	}

	p.CastlingRights &= castlingMask[from] & castlingMask[to]
	key ^= zobristCastling[p.CastlingRights]

	// The en passant square is only recorded when an enemy pawn can use
	// it, so that otherwise identical positions share a key.
	p.EnPassant = NoSquare
	if m.IsDoublePush() {
		ep := Square((int(from) + int(to)) / 2)
		if pawnAttacks[us][ep]&p.Pieces[them][Pawn] != 0 {
			p.EnPassant = ep
			key ^= zobristEnPassant[ep.File()]
		}
	}

	if pt == Pawn || m.IsCapture() {
		p.HalfMoveClock = 0
	} else {
		p.HalfMoveClock++
	}
	if us == Black {
		p.FullMoveNumber++
	}

	p.SideToMove = them
	key ^= zobristSideToMove
	p.Key = key
	p.LastMove = m
}

// enPassantVictim is the square of the pawn captured en passant on to.
func enPassantVictim(to Square, us Color) Square {
	if us == White {
		return to - 8
	}
	return to + 8
}

// castlingRookSquares maps the king's destination to the rook's move.
func castlingRookSquares(kingTo Square) (from, to Square) {
	switch kingTo {
	case G1:
		return H1, F1
	case C1:
		return A1, D1
	case G8:
		return H8, F8
	default:
		return A8, D8
	}
}

// validate checks the structural rules a position must satisfy before it
// can be searched.
func (p *Position) validate() error {
	for c := White; c <= Black; c++ {
		if n := p.Pieces[c][King].PopCount(); n != 1 {
			return fmt.Errorf("%s has %d kings", c, n)
		}
	}
	if (p.Pieces[White][Pawn]|p.Pieces[Black][Pawn])&(Rank1|Rank8) != 0 {
		return fmt.Errorf("pawn on first or last rank")
	}
	them := p.SideToMove.Other()
	if p.IsSquareAttacked(p.KingSquare[them], p.SideToMove) {
		return fmt.Errorf("side not to move is in check")
	}
	return nil
}

// mustHaveKings panics when the king invariant is broken. Such a position
// can only come from a bug in make/undo, and nothing downstream is sound.
func (p *Position) mustHaveKings() {
	if p.Pieces[White][King].PopCount() != 1 || p.Pieces[Black][King].PopCount() != 1 {
		panic(fmt.Sprintf("board: corrupt position, kings %d/%d\n%s",
			p.Pieces[White][King].PopCount(), p.Pieces[Black][King].PopCount(), p))
	}
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	return p.Checkers != 0
}

// NonPawnMaterial reports whether color c has a piece other than pawns and king.
func (p *Position) NonPawnMaterial(c Color) bool {
	return p.Pieces[c][Knight]|p.Pieces[c][Bishop]|p.Pieces[c][Rook]|p.Pieces[c][Queen] != 0
}

// String draws the position, rank 8 first.
func (p *Position) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				sb.WriteString(". ")
			} else {
				sb.WriteString(piece.String() + " ")
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "Fen: %s\n", p.FEN())
	fmt.Fprintf(&sb, "Key: %016X\n", p.Key)
	return sb.String()
}
