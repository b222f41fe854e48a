// The vt100 driver interprets the escape sequences of a VT100
// terminal and paints them onto a screen.  Sequences are added as
// they are met in real programs, not wholesale from the terminal
// manual.

package consoleout

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// digits extracts the numeric parameters of a cursor sequence.
var digits = regexp.MustCompile("[0-9]+")

// VT100OutputDriver holds our state.
type VT100OutputDriver struct {

	// screen is the grid we paint onto.
	screen Screen

	// logger records the sequences we drop or ignore.
	logger *slog.Logger

	// pending collects an escape sequence in progress.
	pending string
}

// GetName returns the name of this driver, "vt100".
//
// This is part of the ConsoleOutput interface.
func (vt *VT100OutputDriver) GetName() string {
	return "vt100"
}

// SetScreen attaches the grid the driver paints onto.
func (vt *VT100OutputDriver) SetScreen(s Screen) {
	vt.screen = s
}

// SetLogger updates the log destination.
func (vt *VT100OutputDriver) SetLogger(l *slog.Logger) {
	vt.logger = l
}

// trace records one event, when a logger has been attached.
func (vt *VT100OutputDriver) trace(msg string, args ...any) {
	if vt.logger != nil {
		vt.logger.Debug(msg, args...)
	}
}

// PutCharacter displays the given character.
//
// This is part of the ConsoleOutput interface.
func (vt *VT100OutputDriver) PutCharacter(c uint8) {
	if vt.screen == nil {
		return
	}
	vt.outch(c)
	vt.screen.Flush()
}

// outch routes one byte either into a pending escape sequence or
// onto the screen.
func (vt *VT100OutputDriver) outch(c uint8) {
	// If an escape sequence is in progress, add this character to
	// it and see whether it is complete.
	if len(vt.pending) > 0 {
		if c == 0x1B {
			// A new sequence is starting with one still in
			// progress, so the old one will never complete.
			vt.trace("dropping unimplemented escape sequence",
				slog.String("sequence", vt.pending[1:]))
			vt.pending = ""
			return
		}
		vt.pending += string(rune(c))
		vt.processPending()
		return
	}

	switch c {
	case 0x0D: // CR
		_, row := vt.screen.Cursor()
		vt.screen.Move(0, row)

	case 0x0A: // LF
		// Going down a row, unless we are already at the bottom
		// in which case the content scrolls instead.
		col, row := vt.screen.Cursor()
		_, rows := vt.screen.Size()
		if row+1 < rows {
			vt.screen.Move(col, row+1)
		} else {
			vt.screen.Scroll(1)
		}

	case 0x1B: // ESC
		vt.pending = string(rune(c))

	case 0x07: // BEL
		vt.screen.Beep()

	default:
		// A DEL is displayed as a space, matching the terminal
		// we emulate.
		if c == 0x7F {
			c = ' '
		}
		vt.screen.Put(c)
	}
}

// parseCursorSequence recognises the forms "<ESC>[H", "<ESC>[line;colH"
// and "<ESC>[countD", where the final character is one of rHfABCD.
// The line/col pair is -1 when absent.  ok is false while the pending
// data is not yet one of these.
func parseCursorSequence(s string) (line int, col int, ch byte, ok bool) {
	line, col = -1, -1

	if len(s) < 3 || !strings.HasPrefix(s, "\x1b[") {
		return 0, 0, 0, false
	}

	ch = s[len(s)-1]
	if !strings.ContainsRune("rHfABCD", rune(ch)) {
		return 0, 0, 0, false
	}

	if nums := digits.FindAllString(s[2:len(s)-1], -1); len(nums) == 2 {
		line, _ = strconv.Atoi(nums[0])
		col, _ = strconv.Atoi(nums[1])
	}
	return line, col, ch, true
}

// processPending considers the collected escape sequence, acting on
// it and clearing it once it is complete.  An incomplete sequence is
// kept for the next byte to extend.
func (vt *VT100OutputDriver) processPending() {
	if line, col, ch, ok := parseCursorSequence(vt.pending); ok {
		switch ch {
		case 'H', 'f':
			if line >= 1 && col >= 1 {
				vt.trace("cursor address", slog.Int("line", line), slog.Int("col", col))
				vt.screen.Move(col-1, line-1)
			} else {
				vt.trace("cursor home")
				vt.screen.Move(0, 0)
			}
		case 'D':
			// Cursor back.  The count is rarely supplied, and
			// never by the programs we have met, so one column
			// is enough.
			vt.trace("cursor back")
			x, y := vt.screen.Cursor()
			vt.screen.Move(x-1, y)
		case 'r':
			vt.trace("scrolling region ignored")
		default:
			vt.trace("unimplemented cursor sequence",
				slog.String("sequence", vt.pending[1:]))
		}
		vt.pending = ""
		return
	}

	switch vt.pending {
	case "\x1b[J", "\x1b[0J":
		// ED0, clear from the cursor down.
		vt.trace("clear to bottom")
		vt.screen.ClearToBottom()
		vt.pending = ""

	case "\x1b[2J":
		// ED2, clear the whole screen.  The cursor does not move,
		// so it has to be put back after the clear homes it.
		vt.trace("clear screen")
		x, y := vt.screen.Cursor()
		vt.screen.Clear()
		vt.screen.Move(x, y)
		vt.pending = ""

	case "\x1b[K", "\x1b[0K":
		// EL0, clear from the cursor to the end of the line.
		vt.trace("clear to end of line")
		vt.screen.ClearToEOL()
		vt.pending = ""

	case "\x1b[2K":
		// EL2, clear the whole line, cursor unmoved.
		vt.trace("clear line")
		x, y := vt.screen.Cursor()
		vt.screen.Move(0, y)
		vt.screen.ClearToEOL()
		vt.screen.Move(x, y)
		vt.pending = ""

	case "\x1b[L":
		vt.trace("insert line")
		vt.screen.InsertLine()
		vt.pending = ""

	case "\x1b[M":
		vt.trace("delete line")
		vt.screen.DeleteLine()
		vt.pending = ""

	case "\x1b[0m":
		vt.trace("attributes off")
		vt.screen.SetAttrs(0)
		vt.pending = ""

	case "\x1b[1m":
		vt.trace("bold on")
		vt.screen.AttrOn(AttrBold)
		vt.pending = ""

	case "\x1b[5m":
		vt.trace("blink on")
		vt.screen.AttrOn(AttrBlink)
		vt.pending = ""

	case "\x1b[7m":
		vt.trace("reverse video on")
		vt.screen.AttrOn(AttrReverse)
		vt.pending = ""

	case "\x1b=", "\x1b>":
		// Keypad application/numeric mode, which a cell grid has
		// no use for.
		vt.trace("keypad mode ignored", slog.String("sequence", vt.pending[1:]))
		vt.pending = ""
	}

	// Anything else is assumed to be incomplete, and the next byte
	// will extend it.
}

// init registers our driver, by name.
func init() {
	Register("vt100", func() ConsoleOutput {
		return &VT100OutputDriver{}
	})
}
