package board

import (
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the FEN string for the starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// FENError identifies the field of a FEN string that could not be used.
type FENError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FENError) Error() string {
	return fmt.Sprintf("invalid FEN %s %q: %s", e.Field, e.Value, e.Reason)
}

// ParseFEN parses a FEN string into a standalone position. The half-move
// clock and full-move number are optional and default to 0 and 1.
func ParseFEN(fen string) (Position, error) {
	var pos Position
	parts := strings.Fields(fen)
	if len(parts) < 4 || len(parts) > 6 {
		return pos, &FENError{Field: "record", Value: fen, Reason: fmt.Sprintf("need 4 to 6 fields, got %d", len(parts))}
	}

	pos.EnPassant = NoSquare
	pos.FullMoveNumber = 1

	if err := parsePlacement(&pos, parts[0]); err != nil {
		return pos, err
	}

	switch parts[1] {
	case "w":
		pos.SideToMove = White
	case "b":
		pos.SideToMove = Black
	default:
		return pos, &FENError{Field: "side to move", Value: parts[1], Reason: "want w or b"}
	}

	if parts[2] != "-" {
		for _, c := range parts[2] {
			i := strings.IndexRune("KQkq", c)
			if i < 0 {
				return pos, &FENError{Field: "castling", Value: parts[2], Reason: fmt.Sprintf("unexpected %q", c)}
			}
			pos.CastlingRights |= 1 << i
		}
	}
	pos.CastlingRights &= castlingPossible(&pos)

	if parts[3] != "-" {
		sq, err := ParseSquare(parts[3])
		if err != nil {
			return pos, &FENError{Field: "en passant", Value: parts[3], Reason: "not a square"}
		}
		wantRank := 5
		if pos.SideToMove == Black {
			wantRank = 2
		}
		if sq.Rank() != wantRank {
			return pos, &FENError{Field: "en passant", Value: parts[3], Reason: "wrong rank for side to move"}
		}
		if reason := enPassantProblem(&pos, sq); reason != "" {
			return pos, &FENError{Field: "en passant", Value: parts[3], Reason: reason}
		}
		pos.EnPassant = sq
	}

	if len(parts) > 4 {
		n, err := strconv.Atoi(parts[4])
		if err != nil || n < 0 {
			return pos, &FENError{Field: "half-move clock", Value: parts[4], Reason: "not a non-negative integer"}
		}
		pos.HalfMoveClock = n
	}
	if len(parts) > 5 {
		n, err := strconv.Atoi(parts[5])
		if err != nil || n < 1 {
			return pos, &FENError{Field: "full-move number", Value: parts[5], Reason: "not a positive integer"}
		}
		pos.FullMoveNumber = n
	}

	if err := pos.validate(); err != nil {
		return pos, &FENError{Field: "position", Value: parts[0], Reason: err.Error()}
	}
	pos.Key = pos.computeKey()
	pos.updateCheckers()
	return pos, nil
}

// enPassantProblem checks that a double push onto the far side of sq could
// just have been played.
func enPassantProblem(pos *Position, sq Square) string {
	us, them := pos.SideToMove, pos.SideToMove.Other()
	victim := enPassantVictim(sq, us)
	origin := enPassantVictim(sq, them)
	switch {
	case pos.AllOccupied.IsSet(sq):
		return "target square is occupied"
	case pos.AllOccupied.IsSet(origin):
		return fmt.Sprintf("pawn could not have left %s", origin)
	case !pos.Pieces[them][Pawn].IsSet(victim):
		return fmt.Sprintf("no %s pawn on %s", them, victim)
	}
	return ""
}

func parsePlacement(pos *Position, placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return &FENError{Field: "placement", Value: placement, Reason: fmt.Sprintf("need 8 ranks, got %d", len(ranks))}
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			piece := PieceFromChar(c)
			if piece == NoPiece {
				return &FENError{Field: "placement", Value: placement, Reason: fmt.Sprintf("unexpected %q", c)}
			}
			if file > 7 {
				return &FENError{Field: "placement", Value: placement, Reason: fmt.Sprintf("rank %d has more than 8 files", rank+1)}
			}
			pos.put(piece.Color(), piece.Type(), NewSquare(file, rank))
			file++
		}
		if file != 8 {
			return &FENError{Field: "placement", Value: placement, Reason: fmt.Sprintf("rank %d does not cover 8 files", rank+1)}
		}
	}
	return nil
}

// castlingPossible drops rights whose king or rook is not on its home square.
func castlingPossible(pos *Position) CastlingRights {
	cr := NoCastling
	wk := pos.Pieces[White][King].IsSet(E1)
	bk := pos.Pieces[Black][King].IsSet(E8)
	if wk && pos.Pieces[White][Rook].IsSet(H1) {
		cr |= WhiteKingSideCastle
	}
	if wk && pos.Pieces[White][Rook].IsSet(A1) {
		cr |= WhiteQueenSideCastle
	}
	if bk && pos.Pieces[Black][Rook].IsSet(H8) {
		cr |= BlackKingSideCastle
	}
	if bk && pos.Pieces[Black][Rook].IsSet(A8) {
		cr |= BlackQueenSideCastle
	}
	return cr
}

// FEN returns the FEN representation of the position.
func (p *Position) FEN() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(piece.String())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	if p.SideToMove == White {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}
	sb.WriteString(p.CastlingRights.String())
	sb.WriteByte(' ')
	sb.WriteString(p.EnPassant.String())
	fmt.Fprintf(&sb, " %d %d", p.HalfMoveClock, p.FullMoveNumber)
	return sb.String()
}
