// The televideo driver understands the control set of the Televideo
// 920/925 terminals.  Only the sequences actually met in real
// programs are implemented; protected fields are not, so a ^Z is a
// plain clear rather than "clear unprotected".
//
// Character addressing offsets both coordinates by 31, with the
// terminal counting from one.

package consoleout

import (
	"fmt"
	"log/slog"
)

// TelevideoOutputDriver holds our state.
type TelevideoOutputDriver struct {

	// screen is the grid we paint onto.
	screen Screen

	// logger records the sequences we drop or ignore.
	logger *slog.Logger

	// pending collects an escape sequence in progress.
	pending string
}

// GetName returns the name of this driver, "televideo".
//
// This is part of the ConsoleOutput interface.
func (tv *TelevideoOutputDriver) GetName() string {
	return "televideo"
}

// SetScreen attaches the grid the driver paints onto.
func (tv *TelevideoOutputDriver) SetScreen(s Screen) {
	tv.screen = s
}

// SetLogger updates the log destination.
func (tv *TelevideoOutputDriver) SetLogger(l *slog.Logger) {
	tv.logger = l
}

// trace records one event, when a logger has been attached.
func (tv *TelevideoOutputDriver) trace(msg string, args ...any) {
	if tv.logger != nil {
		tv.logger.Debug(msg, args...)
	}
}

// PutCharacter displays the given character.
//
// This is part of the ConsoleOutput interface.
func (tv *TelevideoOutputDriver) PutCharacter(c uint8) {
	if tv.screen == nil {
		return
	}
	tv.outch(c)
	tv.screen.Flush()
}

// outch routes one byte either into a pending escape sequence or
// onto the screen.
func (tv *TelevideoOutputDriver) outch(c uint8) {
	if len(tv.pending) > 0 {
		if c == 0x1B {
			// A new sequence is starting with one still in
			// progress, so the old one will never complete.
			tv.trace("dropping unimplemented escape sequence",
				slog.String("sequence", tv.pending[1:]))
			tv.pending = ""
			return
		}
		tv.pending += string(rune(c))
		tv.processPending()
		return
	}

	col, row := tv.screen.Cursor()
	columns, rows := tv.screen.Size()

	switch c {
	case 0x0D: // CR
		tv.screen.Move(0, row)

	case 0x0A: // LF
		// Down a row, or a scroll once the bottom is reached.
		if row+1 < rows {
			tv.screen.Move(col, row+1)
		} else {
			tv.screen.Scroll(1)
		}

	case 0x08: // BS
		if col > 0 {
			tv.screen.Move(col-1, row)
		} else if row > 0 {
			tv.screen.Move(columns-1, row-1)
		} else {
			tv.screen.Move(0, 0)
		}

	case 0x09: // TAB
		// Standard eight-column stops.
		tv.screen.Move((col/8+1)*8, row)

	case 0x1B: // ESC
		tv.pending = string(rune(c))

	case 0x1A: // ^Z
		// Clears the screen and homes the cursor.  The terminal
		// works in half and full intensity with full the default.
		tv.trace("clear screen")
		tv.screen.Clear()
		tv.screen.SetAttrs(AttrBold)

	case 0x0E: // ^N, protect mode off, which we never turn on

	case 0x07: // BEL
		tv.screen.Beep()

	default:
		if c < ' ' || c > '~' {
			tv.trace("unhandled control character",
				slog.String("char", fmt.Sprintf("%02X", c)))
		}
		// A DEL is displayed as a space, matching the terminal.
		if c == 0x7F {
			c = ' '
		}
		tv.screen.Put(c)
	}
}

// processPending considers the collected escape sequence, acting on
// it and clearing it once it is complete.  An incomplete sequence is
// kept for the next byte to extend.
func (tv *TelevideoOutputDriver) processPending() {
	first := tv.pending[1]

	switch {
	case first == ':' || first == ';' || first == '+' || first == '*':
		// The four clear variants differ in how they treat nulls
		// and protected fields, neither of which we model, so all
		// four blank the screen and home the cursor.
		tv.trace("clear screen")
		tv.screen.Clear()
		tv.screen.SetAttrs(AttrBold)
		tv.pending = ""

	case first == 'T':
		tv.trace("clear to end of line")
		tv.screen.ClearToEOL()
		tv.pending = ""

	case first == 'R':
		tv.trace("delete line")
		tv.screen.DeleteLine()
		tv.pending = ""

	case first == 'E':
		// Inserts a blank line at the cursor, which also moves
		// the cursor to the start of the new line.
		tv.trace("insert line")
		tv.screen.InsertLine()
		_, row := tv.screen.Cursor()
		tv.screen.Move(0, row)
		tv.pending = ""

	case first == '=' && len(tv.pending) == 4:
		// Direct addressing, both coordinates offset by 31 and
		// counted from one.
		row := int(tv.pending[2]) - 32
		col := int(tv.pending[3]) - 32
		tv.trace("cursor address", slog.Int("row", row+1), slog.Int("col", col+1))
		tv.screen.Move(col, row)
		tv.pending = ""

	case first == '(':
		// Half intensity off.
		tv.trace("full intensity")
		tv.screen.AttrOn(AttrBold)
		tv.pending = ""

	case first == ')':
		// Half intensity on.
		tv.trace("half intensity")
		tv.screen.AttrOff(AttrBold)
		tv.pending = ""

	case first == '>':
		tv.trace("keyclick on ignored")
		tv.pending = ""

	case first == '<':
		tv.trace("keyclick off ignored")
		tv.pending = ""

	case first == 'j' || tv.pending == "\x1bG4":
		tv.trace("reverse video on")
		tv.screen.AttrOn(AttrReverse)
		tv.pending = ""

	case first == 'k' || tv.pending == "\x1bG0":
		tv.trace("reverse video off")
		tv.screen.AttrOff(AttrReverse)
		tv.pending = ""
	}

	// Anything else, such as a lone "G" or the first byte of an
	// address, is incomplete and waits for the next byte.
}

// init registers our driver, by name.
func init() {
	Register("televideo", func() ConsoleOutput {
		return &TelevideoOutputDriver{}
	})
}
