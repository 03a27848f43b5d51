package board

// Attack and geometry tables, filled once at package init.
var (
	knightAttacks [64]Bitboard
	kingAttacks   [64]Bitboard
	pawnAttacks   [2][64]Bitboard

	betweenBB [64][64]Bitboard // squares strictly between two aligned squares
	lineBB    [64][64]Bitboard // full line through two aligned squares

	passedPawnMask [2][64]Bitboard // squares ahead on the same and adjacent files
	freePawnMask   [2][64]Bitboard // squares ahead on the same file
)

func init() {
	initZobrist()
	initDistance()
	initLeaperAttacks()
	initLines()
	initPawnMasks()
	initMagics()
}

func initLeaperAttacks() {
	for sq := A1; sq <= H8; sq++ {
		bb := SquareBB(sq)

		knightAttacks[sq] = (bb<<17)&NotFileA | (bb<<15)&NotFileH |
			(bb>>17)&NotFileH | (bb>>15)&NotFileA |
			(bb<<10)&NotFileAB | (bb<<6)&NotFileGH |
			(bb>>10)&NotFileGH | (bb>>6)&NotFileAB

		kingAttacks[sq] = bb.North() | bb.South() | bb.East() | bb.West() |
			bb.NorthEast() | bb.NorthWest() | bb.SouthEast() | bb.SouthWest()

		pawnAttacks[White][sq] = bb.NorthEast() | bb.NorthWest()
		pawnAttacks[Black][sq] = bb.SouthEast() | bb.SouthWest()
	}
}

// initLines walks the eight rays out of every square. Each square met on a
// ray gets the between set accumulated so far and the full line.
func initLines() {
	for from := A1; from <= H8; from++ {
		for _, d := range queenDirections {
			ray := Empty
			back := Empty
			f, r := from.File()-d.df, from.Rank()-d.dr
			for onBoard(f, r) {
				back |= SquareBB(NewSquare(f, r))
				f, r = f-d.df, r-d.dr
			}
			f, r = from.File()+d.df, from.Rank()+d.dr
			for onBoard(f, r) {
				ray |= SquareBB(NewSquare(f, r))
				f, r = f+d.df, r+d.dr
			}
			line := back | ray | SquareBB(from)

			between := Empty
			f, r = from.File()+d.df, from.Rank()+d.dr
			for onBoard(f, r) {
				to := NewSquare(f, r)
				betweenBB[from][to] = between
				lineBB[from][to] = line
				between |= SquareBB(to)
				f, r = f+d.df, r+d.dr
			}
		}
	}
}

func initPawnMasks() {
	for sq := A1; sq <= H8; sq++ {
		north := SquareBB(sq).North().NorthFill()
		south := SquareBB(sq).South().SouthFill()

		freePawnMask[White][sq] = north
		freePawnMask[Black][sq] = south
		passedPawnMask[White][sq] = north | north.East() | north.West()
		passedPawnMask[Black][sq] = south | south.East() | south.West()
	}
}

type direction struct{ df, dr int }

var (
	rookDirections   = [4]direction{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	bishopDirections = [4]direction{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	queenDirections  = [8]direction{{0, 1}, {0, -1}, {1, 0}, {-1, 0}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func onBoard(f, r int) bool {
	return f >= 0 && f < 8 && r >= 0 && r < 8
}

// slidingAttacks walks rays until the first blocker, inclusive. It is the
// reference the magic tables are built and verified from.
func slidingAttacks(sq Square, occupied Bitboard, dirs []direction) Bitboard {
	attacks := Empty
	for _, d := range dirs {
		f, r := sq.File()+d.df, sq.Rank()+d.dr
		for onBoard(f, r) {
			to := SquareBB(NewSquare(f, r))
			attacks |= to
			if occupied&to != 0 {
				break
			}
			f, r = f+d.df, r+d.dr
		}
	}
	return attacks
}

func KnightAttacks(sq Square) Bitboard { return knightAttacks[sq] }
func KingAttacks(sq Square) Bitboard { return kingAttacks[sq] }

// PawnAttacks returns the squares a pawn of color c on sq attacks.
func PawnAttacks(sq Square, c Color) Bitboard {
	return pawnAttacks[c][sq]
}

// QueenAttacks returns the queen attack set for a square with given occupancy.
func QueenAttacks(sq Square, occupied Bitboard) Bitboard {
	return BishopAttacks(sq, occupied) | RookAttacks(sq, occupied)
}

// Between returns the squares strictly between two squares, or Empty if
// they do not share a rank, file or diagonal.
func Between(sq1, sq2 Square) Bitboard {
	return betweenBB[sq1][sq2]
}

// Line returns the full line through two aligned squares, or Empty.
func Line(sq1, sq2 Square) Bitboard {
	return lineBB[sq1][sq2]
}

// AttackersByColor returns the pieces of color c attacking sq.
func (p *Position) AttackersByColor(sq Square, c Color, occupied Bitboard) Bitboard {
	return (pawnAttacks[c.Other()][sq] & p.Pieces[c][Pawn]) |
		(knightAttacks[sq] & p.Pieces[c][Knight]) |
		(kingAttacks[sq] & p.Pieces[c][King]) |
		(BishopAttacks(sq, occupied) & (p.Pieces[c][Bishop] | p.Pieces[c][Queen])) |
		(RookAttacks(sq, occupied) & (p.Pieces[c][Rook] | p.Pieces[c][Queen]))
}

// IsSquareAttacked reports whether sq is attacked by color c.
func (p *Position) IsSquareAttacked(sq Square, c Color) bool {
	return p.AttackersByColor(sq, c, p.AllOccupied) != 0
}

func (p *Position) updateCheckers() {
	us := p.SideToMove
	p.Checkers = p.AttackersByColor(p.KingSquare[us], us.Other(), p.AllOccupied)
}
