// The plain driver suits guests which only ever print text: bytes
// go straight through to the writer, leaving the line discipline of
// the host terminal in charge.

package consoleout

import (
	"io"
	"os"
)

// PlainOutputDriver writes output directly to a writer.
type PlainOutputDriver struct {

	// writer is where we send our output.
	writer io.Writer
}

// GetName returns the name of this driver, "plain".
//
// This is part of the ConsoleOutput interface.
func (po *PlainOutputDriver) GetName() string {
	return "plain"
}

// PutCharacter writes the character to our writer.  A DEL is shown
// as a space, matching the terminals the other drivers emulate.
//
// This is part of the ConsoleOutput interface.
func (po *PlainOutputDriver) PutCharacter(c uint8) {
	if c == 0x7F {
		c = ' '
	}
	po.writer.Write([]byte{c})
}

// SetWriter will update the writer.
func (po *PlainOutputDriver) SetWriter(w io.Writer) {
	po.writer = w
}

// init registers our driver, by name.
func init() {
	Register("plain", func() ConsoleOutput {
		return &PlainOutputDriver{
			writer: os.Stdout,
		}
	})
}
