// Package diagram renders positions as SVG board diagrams.
package diagram

import (
	"fmt"
	"image/color"
	"io"

	svg "github.com/ajstarks/svgo"

	"github.com/hailam/trout/internal/board"
)

// Theme defines the color scheme for the board.
type Theme struct {
	LightSquare   color.RGBA
	DarkSquare    color.RGBA
	LastMoveColor color.RGBA
	CheckColor    color.RGBA
	TextColor     color.RGBA
}

// DefaultTheme returns the default color theme.
func DefaultTheme() Theme {
	return Theme{
		LightSquare:   color.RGBA{240, 217, 181, 255}, // Tan
		DarkSquare:    color.RGBA{181, 136, 99, 255},  // Brown
		LastMoveColor: color.RGBA{180, 190, 100, 90},
		CheckColor:    color.RGBA{255, 100, 100, 180},
		TextColor:     color.RGBA{40, 44, 52, 255},
	}
}

// DefaultSquareSize is the side of one square in pixels.
const DefaultSquareSize = 45

var glyphs = [board.NoPiece]string{
	"♙", "♘", "♗", "♖", "♕", "♔",
	"♟", "♞", "♝", "♜", "♛", "♚",
}

// Renderer draws positions.
type Renderer struct {
	Theme      Theme
	SquareSize int
	Flipped    bool // Black at the bottom
}

// NewRenderer creates a renderer with the default theme.
func NewRenderer() *Renderer {
	return &Renderer{Theme: DefaultTheme(), SquareSize: DefaultSquareSize}
}

// WriteSVG renders pos with the default renderer.
func WriteSVG(w io.Writer, pos *board.Position) error {
	return NewRenderer().WriteSVG(w, pos)
}

// WriteSVG writes an SVG document for pos to w. The last move and a
// checked king are highlighted.
func (r *Renderer) WriteSVG(w io.Writer, pos *board.Position) error {
	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	size := r.SquareSize * 8
	margin := r.SquareSize / 2

	canvas.Start(size+margin, size+margin)
	r.drawSquares(canvas)
	r.drawHighlights(canvas, pos)
	r.drawPieces(canvas, pos)
	r.drawCoordinates(canvas, margin)
	canvas.End()
	return ew.err
}

func (r *Renderer) drawSquares(canvas *svg.SVG) {
	for sq := board.A1; sq <= board.H8; sq++ {
		c := r.Theme.LightSquare
		if board.DarkSquares.IsSet(sq) {
			c = r.Theme.DarkSquare
		}
		x, y := r.squareToScreen(sq)
		canvas.Square(x, y, r.SquareSize, "fill:"+rgba(c))
	}
}

func (r *Renderer) drawHighlights(canvas *svg.SVG, pos *board.Position) {
	if m := pos.LastMove; m != board.NoMove {
		r.highlightSquare(canvas, m.From(), r.Theme.LastMoveColor)
		r.highlightSquare(canvas, m.To(), r.Theme.LastMoveColor)
	}
	if pos.InCheck() {
		r.highlightSquare(canvas, pos.KingSquare[pos.SideToMove], r.Theme.CheckColor)
	}
}

func (r *Renderer) highlightSquare(canvas *svg.SVG, sq board.Square, c color.RGBA) {
	x, y := r.squareToScreen(sq)
	canvas.Square(x, y, r.SquareSize, "fill:"+rgba(c))
}

func (r *Renderer) drawPieces(canvas *svg.SVG, pos *board.Position) {
	style := fmt.Sprintf("font-size:%dpx;text-anchor:middle;dominant-baseline:central", r.SquareSize*4/5)
	for sq := board.A1; sq <= board.H8; sq++ {
		p := pos.PieceAt(sq)
		if p == board.NoPiece {
			continue
		}
		x, y := r.squareToScreen(sq)
		canvas.Text(x+r.SquareSize/2, y+r.SquareSize/2, glyphs[p], style)
	}
}

func (r *Renderer) drawCoordinates(canvas *svg.SVG, margin int) {
	style := fmt.Sprintf("font-size:%dpx;text-anchor:middle;fill:%s", margin*3/5, rgba(r.Theme.TextColor))
	size := r.SquareSize * 8
	for i := 0; i < 8; i++ {
		x, _ := r.squareToScreen(board.NewSquare(i, 0))
		canvas.Text(x+r.SquareSize/2, size+margin*3/4, string(rune('a'+i)), style)

		_, y := r.squareToScreen(board.NewSquare(0, i))
		canvas.Text(size+margin/2, y+r.SquareSize/2+margin/4, string(rune('1'+i)), style)
	}
}

// squareToScreen returns the top-left corner of sq.
func (r *Renderer) squareToScreen(sq board.Square) (int, int) {
	file, rank := sq.File(), sq.Rank()
	if r.Flipped {
		file, rank = 7-file, 7-rank
	}
	return file * r.SquareSize, (7 - rank) * r.SquareSize // Flip so rank 1 is at bottom
}

func rgba(c color.RGBA) string {
	return fmt.Sprintf("rgba(%d,%d,%d,%.2f)", c.R, c.G, c.B, float64(c.A)/255)
}

// errWriter keeps the first write error; svgo discards them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}
