//go:build unix

// drv_stty is a console input-driver which reads bytes from STDIN,
// using the `stty` binary to control the echo state of the
// terminal.
//
// This is obviously not portable outwith Unix-like systems, and it
// never sees the special keys since those arrive as raw escape
// sequences.  It suits the plain output driver, where the host
// terminal keeps its line discipline.

package consolein

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/term"
)

// EchoStatus is used to record our current state.
type EchoStatus int

var (
	// Unknown means we don't know the status of echo/noecho.
	Unknown EchoStatus = 0

	// Echo means that input will echo characters.
	Echo EchoStatus = 1

	// NoEcho means that input will not echo characters.
	NoEcho EchoStatus = 2
)

// STTYInput is an input-driver that executes the 'stty' binary to
// toggle the echoing of input.
//
// Running a binary is slow, so we keep track of the current state
// to avoid doing it more than necessary.
type STTYInput struct {

	// state holds the echo state we believe the terminal is in.
	state EchoStatus

	// stuffed holds fake input which will be returned ahead of
	// any real keystrokes.
	stuffed string
}

// Setup is a NOP.
func (si *STTYInput) Setup() error {
	return nil
}

// TearDown resets the state of the terminal.
func (si *STTYInput) TearDown() error {
	if si.state != Echo {
		si.enableEcho()
	}
	return nil
}

// PendingInput returns true if there is pending input from STDIN.
//
// Note that we have to set RAW mode; without this input is laggy
// and interactive programs misbehave.
func (si *STTYInput) PendingInput() bool {

	// Do we have faked/stuffed input to process?
	if len(si.stuffed) > 0 {
		return true
	}

	// switch stdin into 'raw' mode
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return false
	}

	// Can we read from STDIN?
	res := canSelect()

	// restore the state of the terminal to avoid mixing RAW/Cooked
	err = term.Restore(int(os.Stdin.Fd()), oldState)
	if err != nil {
		return false
	}

	// Return true if we have something ready to read.
	return res
}

// StuffInput inserts fake keystrokes into our input-buffer.
func (si *STTYInput) StuffInput(input string) {
	si.stuffed = input
}

// BlockForKey returns the next byte from the console, blocking
// until one is available.  Keystrokes are not echoed.
func (si *STTYInput) BlockForKey() (Key, error) {

	// Do we have faked/stuffed input to process?
	if len(si.stuffed) > 0 {
		c := si.stuffed[0]
		si.stuffed = si.stuffed[1:]
		return Key(c), nil
	}

	// Do we need to change state?  If so then do it.
	if si.state != NoEcho {
		si.disableEcho()
	}

	// switch stdin into 'raw' mode
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return 0x00, fmt.Errorf("error making raw terminal %s", err)
	}

	// read only a single byte
	b := make([]byte, 1)
	_, err = os.Stdin.Read(b)
	if err != nil {
		return 0x00, fmt.Errorf("error reading a byte from stdin %s", err)
	}

	// restore the state of the terminal to avoid mixing RAW/Cooked
	err = term.Restore(int(os.Stdin.Fd()), oldState)
	if err != nil {
		return 0x00, fmt.Errorf("error restoring terminal state %s", err)
	}

	// Return the character we read
	return Key(b[0]), nil
}

// disableEcho is the single place where we disable echoing.
func (si *STTYInput) disableEcho() {
	_ = exec.Command("stty", "-F", "/dev/tty", "-echo").Run()
	si.state = NoEcho
}

// enableEcho is the single place where we enable echoing.
func (si *STTYInput) enableEcho() {
	_ = exec.Command("stty", "-F", "/dev/tty", "echo").Run()
	si.state = Echo
}

// GetName returns the name of this driver, "stty".
func (si *STTYInput) GetName() string {
	return "stty"
}

// init registers our driver, by name.
func init() {
	Register("stty", func() ConsoleInput {
		return new(STTYInput)
	})
}
