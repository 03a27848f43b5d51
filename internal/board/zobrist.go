package board

import (
	"encoding/binary"

	"lukechampine.com/frand"
)

// Zobrist keys. They are drawn from a seeded generator so that keys, and
// anything persisted under them, are stable across runs.
var (
	zobristPiece      [2][6][64]uint64
	zobristEnPassant  [8]uint64
	zobristCastling   [16]uint64
	zobristSideToMove uint64
)

// seededRNG wraps a deterministic frand stream.
type seededRNG struct {
	rng *frand.RNG
	buf [8]byte
}

func newSeededRNG(label string) *seededRNG {
	var seed [32]byte
	copy(seed[:], label)
	return &seededRNG{rng: frand.NewCustom(seed[:], 1024, 12)}
}

func (r *seededRNG) next() uint64 {
	r.rng.Read(r.buf[:])
	return binary.LittleEndian.Uint64(r.buf[:])
}

// sparse returns a random number with roughly an eighth of its bits set.
func (r *seededRNG) sparse() uint64 {
	return r.next() & r.next() & r.next()
}

func initZobrist() {
	rng := newSeededRNG("trout/zobrist")

	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			for sq := A1; sq <= H8; sq++ {
				zobristPiece[c][pt][sq] = rng.next()
			}
		}
	}
	for file := range zobristEnPassant {
		zobristEnPassant[file] = rng.next()
	}
	for cr := range zobristCastling {
		zobristCastling[cr] = rng.next()
	}
	zobristSideToMove = rng.next()
}

// computeKey derives the key of p from scratch.
func (p *Position) computeKey() uint64 {
	var key uint64
	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			bb := p.Pieces[c][pt]
			for bb != 0 {
				key ^= zobristPiece[c][pt][bb.PopLSB()]
			}
		}
	}
	if p.SideToMove == Black {
		key ^= zobristSideToMove
	}
	key ^= zobristCastling[p.CastlingRights]
	if p.EnPassant != NoSquare {
		key ^= zobristEnPassant[p.EnPassant.File()]
	}
	return key
}
