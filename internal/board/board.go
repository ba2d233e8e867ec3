// Package board implements the pure caro board engine: move legality,
// win detection and draw detection on a bounded grid. It holds no game
// lifecycle state; turn order and ownership are the caller's concern.
package board

import "errors"

// Empty marks an unoccupied cell.
const Empty = ""

// ErrOutOfBounds is returned when coordinates fall outside the grid.
var ErrOutOfBounds = errors.New("coordinates out of bounds")

// ErrCellOccupied is returned when the target cell already holds a symbol.
var ErrCellOccupied = errors.New("cell already occupied")

// Board is a bounded square grid of symbols.
type Board struct {
	cells [][]string
	size  int
}

// New creates an empty size×size board.
func New(size int) *Board {
	cells := make([][]string, size)
	for i := range cells {
		cells[i] = make([]string, size)
	}
	return &Board{cells: cells, size: size}
}

// FromCells wraps an existing grid, e.g. one loaded from storage.
// A nil or ragged grid is replaced with an empty board of the given size.
func FromCells(cells [][]string, size int) *Board {
	if len(cells) != size {
		return New(size)
	}
	for _, row := range cells {
		if len(row) != size {
			return New(size)
		}
	}
	return &Board{cells: cells, size: size}
}

// Size returns the board's side length.
func (b *Board) Size() int { return b.size }

// Cells returns the underlying grid. Callers must treat it as read-only.
func (b *Board) Cells() [][]string { return b.cells }

// At returns the symbol at (row, col), or Empty when out of bounds.
func (b *Board) At(row, col int) string {
	if !b.inBounds(row, col) {
		return Empty
	}
	return b.cells[row][col]
}

func (b *Board) inBounds(row, col int) bool {
	return row >= 0 && row < b.size && col >= 0 && col < b.size
}

// IsLegalMove reports whether (row, col) is addressable and unoccupied.
// It has no side effects.
func (b *Board) IsLegalMove(row, col int) bool {
	return b.inBounds(row, col) && b.cells[row][col] == Empty
}

// Apply places symbol at (row, col). The caller is responsible for turn
// and ownership checks.
func (b *Board) Apply(row, col int, symbol string) error {
	if !b.inBounds(row, col) {
		return ErrOutOfBounds
	}
	if b.cells[row][col] != Empty {
		return ErrCellOccupied
	}
	b.cells[row][col] = symbol
	return nil
}

// directions holds the four line orientations: horizontal, vertical and
// both diagonals. Each is scanned forward and backward from the anchor.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// WinnerAt checks whether the stone at (row, col) completes a line of at
// least winLength and returns its symbol, or "" if no line is formed.
// Only the last-placed cell needs checking: any new winning line must
// pass through it.
func (b *Board) WinnerAt(row, col, winLength int) string {
	if !b.inBounds(row, col) {
		return ""
	}
	symbol := b.cells[row][col]
	if symbol == Empty {
		return ""
	}

	for _, d := range directions {
		count := 1

		r, c := row+d[0], col+d[1]
		for b.inBounds(r, c) && b.cells[r][c] == symbol {
			count++
			r, c = r+d[0], c+d[1]
		}

		r, c = row-d[0], col-d[1]
		for b.inBounds(r, c) && b.cells[r][c] == symbol {
			count++
			r, c = r-d[0], c-d[1]
		}

		if count >= winLength {
			return symbol
		}
	}
	return ""
}

// Winner scans every occupied cell for a winning line. Slower than
// WinnerAt but independent of move history; used when reconstructing
// state from a persisted board.
func (b *Board) Winner(winLength int) string {
	for row := 0; row < b.size; row++ {
		for col := 0; col < b.size; col++ {
			if b.cells[row][col] == Empty {
				continue
			}
			if s := b.WinnerAt(row, col, winLength); s != "" {
				return s
			}
		}
	}
	return ""
}

// IsFull reports whether no empty cell remains. On a bounded grid a full
// board with no winner is a draw.
func (b *Board) IsFull() bool {
	for _, row := range b.cells {
		for _, cell := range row {
			if cell == Empty {
				return false
			}
		}
	}
	return true
}
