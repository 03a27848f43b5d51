package board

import (
	"errors"
	"fmt"
)

// MaxPositions is the depth of the position stack: game history plus
// search plies.
const MaxPositions = 1024

// compactAt is the stack height at which replayed game history is
// trimmed back to the last irreversible move.
const compactAt = MaxPositions - 256

var (
	ErrIllegalMove       = errors.New("illegal move")
	ErrNoMoveToUndo      = errors.New("no move to undo")
	ErrPositionStackFull = errors.New("position stack full")
)

// Board is a stack of positions. Making a move copies the current
// position into the next slot and edits the copy; undoing a move only
// pops the stack. Nothing is allocated after construction.
//
// A Board is not safe for concurrent use.
type Board struct {
	positions [MaxPositions]Position
	index     int
}

// New returns a board set to the standard starting position.
func New() *Board {
	b := &Board{}
	if err := b.SetPosition(StartFEN); err != nil {
		panic(err)
	}
	return b
}

// Current returns the position on top of the stack.
func (b *Board) Current() *Position {
	return &b.positions[b.index]
}

// Previous returns the position before the last move, or nil at the base.
func (b *Board) Previous() *Position {
	if b.index == 0 {
		return nil
	}
	return &b.positions[b.index-1]
}

// Ply is the number of moves on the stack.
func (b *Board) Ply() int {
	return b.index
}

// Key returns the Zobrist key of the current position.
func (b *Board) Key() uint64 {
	return b.positions[b.index].Key
}

func (b *Board) SideToMove() Color {
	return b.positions[b.index].SideToMove
}

func (b *Board) InCheck() bool {
	return b.positions[b.index].Checkers != 0
}

// FEN returns the FEN of the current position.
func (b *Board) FEN() string {
	return b.Current().FEN()
}

func (b *Board) String() string {
	return b.Current().String()
}

// SetPosition replaces the board contents with fen followed by moves in
// coordinate notation. On any error the board is left as it was.
func (b *Board) SetPosition(fen string, moves ...string) error {
	pos, err := ParseFEN(fen)
	if err != nil {
		return err
	}

	saved := *b
	b.positions[0] = pos
	b.index = 0
	for _, s := range moves {
		m, err := b.ParseMove(s)
		if err == nil {
			err = b.MakeMove(m)
		}
		if err != nil {
			*b = saved
			return fmt.Errorf("move %s: %w", s, err)
		}
		if b.index >= compactAt {
			b.Compact()
		}
	}
	return nil
}

// Clone returns an independent copy of the board, history included.
func (b *Board) Clone() *Board {
	c := *b
	return &c
}

// Compact drops history older than the last irreversible move, which can
// never take part in a repetition again. Moves before that point can no
// longer be undone. At most compactAt/2 positions are kept, so a FEN with
// a large half-move clock still leaves room for a search.
func (b *Board) Compact() {
	keep := min(b.Current().HalfMoveClock, b.index, compactAt/2)
	start := b.index - keep
	copy(b.positions[:keep+1], b.positions[start:b.index+1])
	b.index = keep
}

// LegalMoves fills ml with the legal moves of the current position.
func (b *Board) LegalMoves(ml *MoveList) {
	ml.Clear()
	b.Current().generate(ml, genAll)
}

// Captures fills ml with legal captures and queen promotions.
func (b *Board) Captures(ml *MoveList) {
	ml.Clear()
	b.Current().generate(ml, genTactical)
}

// HasLegalMoves reports whether the side to move can move at all.
func (b *Board) HasLegalMoves() bool {
	var ml MoveList
	b.Current().generate(&ml, genAll)
	return ml.Len() > 0
}

// IsLegal reports whether m is one of the current legal moves.
func (b *Board) IsLegal(m Move) bool {
	var ml MoveList
	b.LegalMoves(&ml)
	return ml.Contains(m)
}

// MakeMove plays m on top of the stack. Moves that are not legal in the
// current position are rejected with ErrIllegalMove and the board is
// not changed.
func (b *Board) MakeMove(m Move) error {
	if b.index+1 >= MaxPositions {
		return ErrPositionStackFull
	}
	cur := &b.positions[b.index]
	if !cur.pseudoLegal(m) {
		return fmt.Errorf("%w: %s", ErrIllegalMove, m)
	}

	next := &b.positions[b.index+1]
	*next = *cur
	next.apply(m)
	if next.IsSquareAttacked(next.KingSquare[cur.SideToMove], next.SideToMove) {
		return fmt.Errorf("%w: %s leaves king in check", ErrIllegalMove, m)
	}
	next.updateCheckers()
	b.index++
	return nil
}

// UndoMove pops the last move.
func (b *Board) UndoMove() error {
	if b.index == 0 {
		return ErrNoMoveToUndo
	}
	b.index--
	return nil
}

// RepetitionCount counts earlier positions on the stack identical to the
// current one. Only positions since the last irreversible move and with
// the same side to move are considered.
func (b *Board) RepetitionCount() int {
	cur := &b.positions[b.index]
	count := 0
	limit := max(b.index-cur.HalfMoveClock, 0)
	for i := b.index - 2; i >= limit; i -= 2 {
		if b.positions[i].Key == cur.Key {
			count++
		}
	}
	return count
}

// IsRepetition reports whether the current position occurred before.
func (b *Board) IsRepetition() bool {
	return b.RepetitionCount() > 0
}

// MayRepeatWithin reports whether some position since the last
// irreversible move could come back within plies more moves. A false
// result is certain; a true one only means it cannot be ruled out.
func (b *Board) MayRepeatWithin(plies int) bool {
	limit := max(b.index-b.positions[b.index].HalfMoveClock, 0)
	for i := b.index - 1; i >= limit; i-- {
		if b.pliesBackTo(i) <= plies {
			return true
		}
	}
	return false
}

// pliesBackTo is a lower bound on the plies needed to turn the current
// position back into positions[i]. A reversible move relocates a single
// piece, and castling never leads back to an earlier position.
func (b *Board) pliesBackTo(i int) int {
	cur, old := &b.positions[b.index], &b.positions[i]
	missing := func(c Color) int {
		n := 0
		for pt := Pawn; pt <= King; pt++ {
			n += (old.Pieces[c][pt] &^ cur.Pieces[c][pt]).PopCount()
		}
		return n
	}
	us := cur.SideToMove
	plies := max(2*missing(us)-1, 2*missing(us.Other()), 1)
	if (plies-(b.index-i))%2 != 0 {
		plies++
	}
	return plies
}

// FiftyMoveCount is the number of plies since the last capture or pawn move.
func (b *Board) FiftyMoveCount() int {
	return b.positions[b.index].HalfMoveClock
}

// IsFiftyMoveDraw reports whether the fifty-move rule applies.
func (b *Board) IsFiftyMoveDraw() bool {
	return b.FiftyMoveCount() >= 100
}

// IsInsufficientMaterial reports positions where neither side can mate:
// bare kings, or a single minor piece against a bare king.
func (b *Board) IsInsufficientMaterial() bool {
	p := b.Current()
	for c := White; c <= Black; c++ {
		if p.Pieces[c][Pawn]|p.Pieces[c][Rook]|p.Pieces[c][Queen] != 0 {
			return false
		}
	}
	minors := p.Pieces[White][Knight] | p.Pieces[White][Bishop] | p.Pieces[Black][Knight] | p.Pieces[Black][Bishop]
	return !minors.Several()
}

// IsPassedPawn reports whether the pawn on sq has no enemy pawn ahead of
// it on its own or an adjacent file. It returns false if sq holds no pawn.
func (b *Board) IsPassedPawn(sq Square) bool {
	p := b.Current()
	piece := p.PieceAt(sq)
	if piece.Type() != Pawn {
		return false
	}
	c := piece.Color()
	return passedPawnMask[c][sq]&p.Pieces[c.Other()][Pawn] == 0
}

// IsFreePawn reports whether nothing stands between the pawn on sq and
// its promotion square.
func (b *Board) IsFreePawn(sq Square) bool {
	p := b.Current()
	piece := p.PieceAt(sq)
	if piece.Type() != Pawn {
		return false
	}
	return freePawnMask[piece.Color()][sq]&p.AllOccupied == 0
}

// IsSquareAttacked reports whether color c attacks sq in the current position.
func (b *Board) IsSquareAttacked(sq Square, c Color) bool {
	return b.Current().IsSquareAttacked(sq, c)
}
