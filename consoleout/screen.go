// The screen is the cell grid the vt100 and televideo drivers paint
// onto.  Keeping it behind an interface lets the driver tests run
// against a fake grid, while the real implementation sits on top of
// termbox.
package consoleout

import (
	"fmt"

	"github.com/nsf/termbox-go"
)

// Attr names the display attributes a driver may apply.
type Attr uint8

const (
	// AttrBold selects full-intensity output.
	AttrBold Attr = 1 << iota

	// AttrBlink selects blinking output.
	AttrBlink

	// AttrReverse selects reverse-video output.
	AttrReverse
)

// Screen is a cell grid with a cursor.  Columns and rows count from
// zero.  Put advances the cursor, wrapping at the right margin and
// scrolling at the bottom, which is how the terminals we emulate
// behaved.
type Screen interface {

	// Size returns the usable width and height.
	Size() (columns int, rows int)

	// Cursor returns the current cursor position.
	Cursor() (column int, row int)

	// Move places the cursor, clamping to the grid.
	Move(column int, row int)

	// Put writes a character at the cursor and advances it.
	Put(c uint8)

	// Scroll moves the content up by the given number of lines.
	Scroll(lines int)

	// Clear blanks the grid and homes the cursor.
	Clear()

	// ClearToEOL blanks from the cursor to the end of its row.
	ClearToEOL()

	// ClearToBottom blanks from the cursor to the end of the grid.
	ClearToBottom()

	// InsertLine opens a blank row at the cursor, pushing the rest down.
	InsertLine()

	// DeleteLine removes the cursor row, pulling the rest up.
	DeleteLine()

	// AttrOn enables the given attributes for subsequent output.
	AttrOn(a Attr)

	// AttrOff disables the given attributes.
	AttrOff(a Attr)

	// SetAttrs replaces the attributes outright.
	SetAttrs(a Attr)

	// Beep sounds the terminal bell.
	Beep()

	// Flush makes the pending changes visible.
	Flush()
}

// TermboxScreen paints onto the host terminal through termbox.  The
// input side owns the termbox lifecycle, so the caller must have
// initialised termbox before constructing one of these.
type TermboxScreen struct {
	columns int
	rows    int
	col     int
	row     int
	attrs   Attr
}

// NewTermboxScreen returns a screen of the requested size, shrunk to
// fit the host terminal if that is smaller.
func NewTermboxScreen(columns int, rows int) *TermboxScreen {
	w, h := termbox.Size()
	if columns > w {
		columns = w
	}
	if rows > h {
		rows = h
	}
	return &TermboxScreen{
		columns: columns,
		rows:    rows,
	}
}

// Size returns the usable width and height.
func (ts *TermboxScreen) Size() (int, int) {
	return ts.columns, ts.rows
}

// Cursor returns the current cursor position.
func (ts *TermboxScreen) Cursor() (int, int) {
	return ts.col, ts.row
}

// Move places the cursor, clamping to the grid.
func (ts *TermboxScreen) Move(column int, row int) {
	if column < 0 {
		column = 0
	}
	if column >= ts.columns {
		column = ts.columns - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= ts.rows {
		row = ts.rows - 1
	}
	ts.col = column
	ts.row = row
}

// foreground maps our attributes onto a termbox attribute mask.
func (ts *TermboxScreen) foreground() termbox.Attribute {
	fg := termbox.ColorDefault
	if ts.attrs&AttrBold != 0 {
		fg |= termbox.AttrBold
	}
	if ts.attrs&AttrBlink != 0 {
		fg |= termbox.AttrBlink
	}
	if ts.attrs&AttrReverse != 0 {
		fg |= termbox.AttrReverse
	}
	return fg
}

// Put writes a character at the cursor and advances it, wrapping at
// the right margin and scrolling at the bottom row.
func (ts *TermboxScreen) Put(c uint8) {
	termbox.SetCell(ts.col, ts.row, rune(c), ts.foreground(), termbox.ColorDefault)

	ts.col++
	if ts.col < ts.columns {
		return
	}
	ts.col = 0
	if ts.row+1 < ts.rows {
		ts.row++
	} else {
		ts.Scroll(1)
	}
}

// blankRow erases one row of the grid.
func (ts *TermboxScreen) blankRow(row int) {
	for x := 0; x < ts.columns; x++ {
		termbox.SetCell(x, row, ' ', termbox.ColorDefault, termbox.ColorDefault)
	}
}

// copyRow duplicates one row of the back buffer onto another.
func (ts *TermboxScreen) copyRow(dst int, src int) {
	width, _ := termbox.Size()
	cells := termbox.CellBuffer()
	for x := 0; x < ts.columns; x++ {
		cell := cells[src*width+x]
		termbox.SetCell(x, dst, cell.Ch, cell.Fg, cell.Bg)
	}
}

// Scroll moves the content up by the given number of lines, blanking
// those which appear at the bottom.
func (ts *TermboxScreen) Scroll(lines int) {
	if lines <= 0 {
		return
	}
	if lines > ts.rows {
		lines = ts.rows
	}
	for y := 0; y < ts.rows-lines; y++ {
		ts.copyRow(y, y+lines)
	}
	for y := ts.rows - lines; y < ts.rows; y++ {
		ts.blankRow(y)
	}
}

// Clear blanks the grid and homes the cursor.
func (ts *TermboxScreen) Clear() {
	for y := 0; y < ts.rows; y++ {
		ts.blankRow(y)
	}
	ts.col = 0
	ts.row = 0
}

// ClearToEOL blanks from the cursor to the end of its row.
func (ts *TermboxScreen) ClearToEOL() {
	for x := ts.col; x < ts.columns; x++ {
		termbox.SetCell(x, ts.row, ' ', termbox.ColorDefault, termbox.ColorDefault)
	}
}

// ClearToBottom blanks from the cursor to the end of the grid.
func (ts *TermboxScreen) ClearToBottom() {
	ts.ClearToEOL()
	for y := ts.row + 1; y < ts.rows; y++ {
		ts.blankRow(y)
	}
}

// InsertLine opens a blank row at the cursor, pushing the rows below
// it down and dropping the bottom one.
func (ts *TermboxScreen) InsertLine() {
	for y := ts.rows - 1; y > ts.row; y-- {
		ts.copyRow(y, y-1)
	}
	ts.blankRow(ts.row)
}

// DeleteLine removes the cursor row, pulling the rows below it up
// and blanking the bottom one.
func (ts *TermboxScreen) DeleteLine() {
	for y := ts.row; y < ts.rows-1; y++ {
		ts.copyRow(y, y+1)
	}
	ts.blankRow(ts.rows - 1)
}

// AttrOn enables the given attributes for subsequent output.
func (ts *TermboxScreen) AttrOn(a Attr) {
	ts.attrs |= a
}

// AttrOff disables the given attributes.
func (ts *TermboxScreen) AttrOff(a Attr) {
	ts.attrs &^= a
}

// SetAttrs replaces the attributes outright.
func (ts *TermboxScreen) SetAttrs(a Attr) {
	ts.attrs = a
}

// Beep sounds the terminal bell.
func (ts *TermboxScreen) Beep() {
	fmt.Print("\a")
}

// Flush makes the pending changes visible, with the hardware cursor
// at our cursor position.
func (ts *TermboxScreen) Flush() {
	termbox.SetCursor(ts.col, ts.row)
	termbox.Flush()
}
