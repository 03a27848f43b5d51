package board

type genMode uint8

const (
	genAll genMode = iota
	// genTactical produces captures and queen promotions only.
	genTactical
)

// generate appends every legal move of the requested kind. Pins and
// checks are resolved during generation, so no move is tried and
// rejected afterwards.
func (p *Position) generate(ml *MoveList, mode genMode) {
	p.mustHaveKings()

	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare[us]
	occ := p.AllOccupied

	p.addKingMoves(ml, mode)
	if p.Checkers.Several() {
		return
	}

	// Squares a non-king move may land on.
	target := ^p.Occupied[us]
	if p.Checkers != 0 {
		checker := p.Checkers.LSB()
		target &= Between(ksq, checker) | p.Checkers
	}
	if mode == genTactical {
		target &= p.Occupied[them]
	}

	pinned := p.pinned()

	p.addPawnMoves(ml, mode, pinned)

	for pt := Knight; pt <= Queen; pt++ {
		pieces := p.Pieces[us][pt]
		if pt == Knight {
			pieces &^= pinned
		}
		for pieces != 0 {
			from := pieces.PopLSB()
			var attacks Bitboard
			switch pt {
			case Knight:
				attacks = knightAttacks[from]
			case Bishop:
				attacks = BishopAttacks(from, occ)
			case Rook:
				attacks = RookAttacks(from, occ)
			case Queen:
				attacks = QueenAttacks(from, occ)
			}
			attacks &= target
			if pinned.IsSet(from) {
				attacks &= Line(ksq, from)
			}
			for attacks != 0 {
				to := attacks.PopLSB()
				ml.Add(newMove(from, to, pt, p.pieceTypeAt(to), NoPieceType, 0))
			}
		}
	}

	if mode == genAll && p.Checkers == 0 {
		p.addCastling(ml)
	}
}

func (p *Position) addKingMoves(ml *MoveList, mode genMode) {
	us, them := p.SideToMove, p.SideToMove.Other()
	from := p.KingSquare[us]
	targets := kingAttacks[from] &^ p.Occupied[us]
	if mode == genTactical {
		targets &= p.Occupied[them]
	}
	// The king must not hide behind itself from a slider.
	occ := p.AllOccupied &^ SquareBB(from)
	for targets != 0 {
		to := targets.PopLSB()
		if p.AttackersByColor(to, them, occ) != 0 {
			continue
		}
		ml.Add(newMove(from, to, King, p.pieceTypeAt(to), NoPieceType, 0))
	}
}

func (p *Position) addCastling(ml *MoveList) {
	us, them := p.SideToMove, p.SideToMove.Other()
	type side struct {
		right            CastlingRights
		king, dest, rook Square
		path             Bitboard // must be empty
		safe             Bitboard // must not be attacked
	}
	var sides [2]side
	if us == White {
		sides = [2]side{
			{WhiteKingSideCastle, E1, G1, H1, SquareBB(F1) | SquareBB(G1), SquareBB(F1) | SquareBB(G1)},
			{WhiteQueenSideCastle, E1, C1, A1, SquareBB(B1) | SquareBB(C1) | SquareBB(D1), SquareBB(C1) | SquareBB(D1)},
		}
	} else {
		sides = [2]side{
			{BlackKingSideCastle, E8, G8, H8, SquareBB(F8) | SquareBB(G8), SquareBB(F8) | SquareBB(G8)},
			{BlackQueenSideCastle, E8, C8, A8, SquareBB(B8) | SquareBB(C8) | SquareBB(D8), SquareBB(C8) | SquareBB(D8)},
		}
	}
	for _, s := range sides {
		if p.CastlingRights&s.right == 0 || p.AllOccupied&s.path != 0 {
			continue
		}
		if !p.Pieces[us][Rook].IsSet(s.rook) || p.KingSquare[us] != s.king {
			continue
		}
		attacked := false
		for safe := s.safe; safe != 0; {
			if p.IsSquareAttacked(safe.PopLSB(), them) {
				attacked = true
				break
			}
		}
		if !attacked {
			ml.Add(newMove(s.king, s.dest, King, NoPieceType, NoPieceType, FlagCastling))
		}
	}
}

func (p *Position) addPawnMoves(ml *MoveList, mode genMode, pinned Bitboard) {
	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare[us]
	empty := ^p.AllOccupied
	lastRank, startRank := Rank8, Rank2
	forward := 8
	if us == Black {
		lastRank, startRank = Rank1, Rank7
		forward = -8
	}

	// Check evasion target for non-king moves.
	evasion := Universe
	if p.Checkers != 0 {
		checker := p.Checkers.LSB()
		evasion = Between(ksq, checker) | p.Checkers
	}

	allowed := func(from, to Square) bool {
		if !evasion.IsSet(to) {
			return false
		}
		return !pinned.IsSet(from) || Line(ksq, from).IsSet(to)
	}

	pawns := p.Pieces[us][Pawn]
	for pawns != 0 {
		from := pawns.PopLSB()
		one := Square(int(from) + forward)

		if empty.IsSet(one) {
			promoting := lastRank.IsSet(one)
			if allowed(from, one) && (mode == genAll || promoting) {
				p.addPawnMove(ml, from, one, NoPieceType, promoting, mode)
			}
			two := Square(int(one) + forward)
			if mode == genAll && startRank.IsSet(from) && empty.IsSet(two) && allowed(from, two) {
				ml.Add(newMove(from, two, Pawn, NoPieceType, NoPieceType, FlagDoublePush))
			}
		}

		captures := pawnAttacks[us][from] & p.Occupied[them]
		for captures != 0 {
			to := captures.PopLSB()
			if allowed(from, to) {
				p.addPawnMove(ml, from, to, p.pieceTypeAt(to), lastRank.IsSet(to), mode)
			}
		}

		if p.EnPassant != NoSquare && pawnAttacks[us][from].IsSet(p.EnPassant) && p.enPassantLegal(from) {
			ml.Add(newMove(from, p.EnPassant, Pawn, Pawn, NoPieceType, FlagEnPassant))
		}
	}
}

func (p *Position) addPawnMove(ml *MoveList, from, to Square, captured PieceType, promoting bool, mode genMode) {
	if !promoting {
		ml.Add(newMove(from, to, Pawn, captured, NoPieceType, 0))
		return
	}
	ml.Add(newMove(from, to, Pawn, captured, Queen, 0))
	if mode == genTactical {
		return
	}
	for _, promo := range [3]PieceType{Knight, Rook, Bishop} {
		ml.Add(newMove(from, to, Pawn, captured, promo, 0))
	}
}

// enPassantLegal plays the capture on a scratch occupancy and looks for
// slider attacks on the king. This covers the rank pin where both pawns
// leave the king's rank at once.
func (p *Position) enPassantLegal(from Square) bool {
	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare[us]
	victim := enPassantVictim(p.EnPassant, us)
	occ := p.AllOccupied&^SquareBB(from)&^SquareBB(victim) | SquareBB(p.EnPassant)

	if p.Checkers != 0 && p.Checkers != SquareBB(victim) {
		// Only a capture onto the checking line would resolve the check.
		if !Between(ksq, p.Checkers.LSB()).IsSet(p.EnPassant) {
			return false
		}
	}
	sliders := RookAttacks(ksq, occ) & (p.Pieces[them][Rook] | p.Pieces[them][Queen])
	sliders |= BishopAttacks(ksq, occ) & (p.Pieces[them][Bishop] | p.Pieces[them][Queen])
	return sliders&^SquareBB(victim) == 0
}

// pinned returns the pieces of the side to move that shield their king
// from an enemy slider.
func (p *Position) pinned() Bitboard {
	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare[us]
	pinned := Empty

	snipers := RookAttacks(ksq, 0)&(p.Pieces[them][Rook]|p.Pieces[them][Queen]) |
		BishopAttacks(ksq, 0)&(p.Pieces[them][Bishop]|p.Pieces[them][Queen])
	for snipers != 0 {
		sq := snipers.PopLSB()
		blockers := Between(sq, ksq) & p.AllOccupied
		if blockers != 0 && !blockers.Several() && blockers&p.Occupied[us] != 0 {
			pinned |= blockers
		}
	}
	return pinned
}

// encode builds the move from..to (with promo) as the generator would in
// this position, or NoMove if there is no piece of the side to move on from.
func (p *Position) encode(from, to Square, promo PieceType) Move {
	us := p.SideToMove
	if !p.Occupied[us].IsSet(from) {
		return NoMove
	}
	pt := p.pieceTypeAt(from)
	captured := p.pieceTypeAt(to)
	var flags Move
	switch {
	case pt == Pawn && to == p.EnPassant && from.File() != to.File():
		captured = Pawn
		flags = FlagEnPassant
	case pt == Pawn && abs(int(to)-int(from)) == 16:
		flags = FlagDoublePush
	case pt == King && abs(from.File()-to.File()) == 2:
		flags = FlagCastling
	}
	return newMove(from, to, pt, captured, promo, flags)
}

// pseudoLegal checks m against the position without testing king safety.
// Moves that do not match what the generator would produce for the same
// squares are rejected, which catches stale moves from other positions.
func (p *Position) pseudoLegal(m Move) bool {
	if m == NoMove {
		return false
	}
	from, to := m.From(), m.To()
	if from == to || p.encode(from, to, m.Promotion()) != m {
		return false
	}
	us := p.SideToMove
	if p.Occupied[us].IsSet(to) || m.Captured() == King {
		return false
	}

	occ := p.AllOccupied
	switch m.Piece() {
	case Pawn:
		lastRank := Rank8
		forward := 8
		if us == Black {
			lastRank = Rank1
			forward = -8
		}
		if lastRank.IsSet(to) != m.IsPromotion() || m.Promotion() == King || m.Promotion() == Pawn {
			return false
		}
		switch {
		case m.IsEnPassant():
			return pawnAttacks[us][from].IsSet(to) && !occ.IsSet(to)
		case m.IsCapture():
			return pawnAttacks[us][from].IsSet(to)
		case m.IsDoublePush():
			startRank := Rank2
			if us == Black {
				startRank = Rank7
			}
			one := Square(int(from) + forward)
			return startRank.IsSet(from) && int(to) == int(one)+forward && !occ.IsSet(one) && !occ.IsSet(to)
		default:
			return int(to) == int(from)+forward && !occ.IsSet(to)
		}
	case Knight:
		return !m.IsPromotion() && knightAttacks[from].IsSet(to)
	case Bishop:
		return !m.IsPromotion() && BishopAttacks(from, occ).IsSet(to)
	case Rook:
		return !m.IsPromotion() && RookAttacks(from, occ).IsSet(to)
	case Queen:
		return !m.IsPromotion() && QueenAttacks(from, occ).IsSet(to)
	case King:
		if m.IsPromotion() {
			return false
		}
		if !m.IsCastling() {
			return kingAttacks[from].IsSet(to)
		}
		var ml MoveList
		if p.Checkers == 0 {
			p.addCastling(&ml)
		}
		return ml.Contains(m)
	}
	return false
}
