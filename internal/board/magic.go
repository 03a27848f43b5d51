package board

import "fmt"

// Magic holds the lookup parameters for one slider on one square.
type Magic struct {
	Mask    Bitboard   // relevant occupancy, board edges excluded
	Magic   uint64     // multiplier
	Shift   uint8      // 64 - popcount(Mask)
	Attacks []Bitboard // indexed by ((occ & Mask) * Magic) >> Shift
}

func (m *Magic) index(occupied Bitboard) uint64 {
	return (uint64(occupied&m.Mask) * m.Magic) >> m.Shift
}

var (
	bishopMagics [64]Magic
	rookMagics   [64]Magic
)

// BishopAttacks returns the bishop attack set for a square with given occupancy.
func BishopAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &bishopMagics[sq]
	return m.Attacks[m.index(occupied)]
}

// RookAttacks returns the rook attack set for a square with given occupancy.
func RookAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &rookMagics[sq]
	return m.Attacks[m.index(occupied)]
}

// initMagics searches a multiplier for every square with a seeded
// generator. Every candidate is accepted only if all occupancy subsets map
// to a slot holding their own ray-walk attack set, so the resulting tables
// are exact by construction.
func initMagics() {
	rng := newSeededRNG("trout/magics")
	for sq := A1; sq <= H8; sq++ {
		findMagic(&rookMagics[sq], sq, rookDirections[:], rng)
		findMagic(&bishopMagics[sq], sq, bishopDirections[:], rng)
	}
}

func relevantMask(sq Square, dirs []direction) Bitboard {
	mask := Empty
	for _, d := range dirs {
		f, r := sq.File()+d.df, sq.Rank()+d.dr
		// stop one short of the edge: the last square never blocks anything
		for onBoard(f+d.df, r+d.dr) {
			mask |= SquareBB(NewSquare(f, r))
			f, r = f+d.df, r+d.dr
		}
	}
	return mask
}

func findMagic(m *Magic, sq Square, dirs []direction, rng *seededRNG) {
	mask := relevantMask(sq, dirs)
	bits := mask.PopCount()
	size := 1 << bits

	// Carry-Rippler enumeration of every subset of mask.
	occupancies := make([]Bitboard, 0, size)
	reference := make([]Bitboard, 0, size)
	occ := Empty
	for {
		occupancies = append(occupancies, occ)
		reference = append(reference, slidingAttacks(sq, occ, dirs))
		occ = (occ - mask) & mask
		if occ == 0 {
			break
		}
	}

	table := make([]Bitboard, size)
	epoch := make([]int, size)
	shift := uint8(64 - bits)

	for attempt := 1; attempt < 100_000_000; attempt++ {
		magic := rng.sparse()
		if Bitboard((uint64(mask)*magic)>>56).PopCount() < 6 {
			continue
		}
		ok := true
		for i, o := range occupancies {
			idx := (uint64(o) * magic) >> shift
			if epoch[idx] < attempt {
				epoch[idx] = attempt
				table[idx] = reference[i]
			} else if table[idx] != reference[i] {
				ok = false
				break
			}
		}
		if ok {
			*m = Magic{Mask: mask, Magic: magic, Shift: shift, Attacks: table}
			return
		}
	}
	panic(fmt.Sprintf("board: no magic found for %s", sq))
}
