// drv_term uses the termbox library to read keyboard input.
//
// A goroutine collects events into a channel, which lets us answer
// "is anything pending?" without blocking.  Termbox also decodes
// the escape sequences of the arrow and paging keys for us, which
// is what makes the keymap usable.
//
// The screen-oriented output drivers share the termbox session this
// driver opens, so it must be set up before a screen is built.

package consolein

import (
	"context"
	"fmt"
	"os"

	"github.com/nsf/termbox-go"
	"golang.org/x/term"
)

// TermboxInput is our input-driver, using termbox.
type TermboxInput struct {

	// oldState contains the state of the terminal, before
	// switching to RAW mode.
	oldState *term.State

	// cancel stops our polling goroutine.
	cancel context.CancelFunc

	// stuffed holds fake input which will be returned ahead of
	// any real keystrokes.
	stuffed string

	// keys receives the keystrokes read in the background.
	keys chan Key
}

// decodeEvent maps a termbox key event to our key type.
func decodeEvent(ev termbox.Event) Key {
	if ev.Ch != 0 {
		return Key(uint8(ev.Ch))
	}

	switch ev.Key {
	case termbox.KeyArrowLeft:
		return KeyLeft
	case termbox.KeyArrowRight:
		return KeyRight
	case termbox.KeyArrowUp:
		return KeyUp
	case termbox.KeyArrowDown:
		return KeyDown
	case termbox.KeyPgdn:
		return KeyNPage
	case termbox.KeyPgup:
		return KeyPPage
	case termbox.KeyHome:
		return KeyHome
	case termbox.KeyEnd:
		return KeyEnd
	default:
		return Key(ev.Key)
	}
}

// Setup puts the terminal into RAW mode, initialises termbox, and
// starts collecting keystrokes in the background.
func (ti *TermboxInput) Setup() error {

	var err error

	// switch STDIN into 'raw' mode - we must do this before
	// we setup termbox.
	ti.oldState, err = term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("error making raw terminal %s", err)
	}

	// Setup the terminal.
	err = termbox.Init()
	if err != nil {
		return fmt.Errorf("error initialising termbox %s", err)
	}

	// This is "Show Cursor", which termbox hides by default.
	fmt.Printf("\x1b[?25h")

	// Allow our polling of the keyboard to be canceled.
	ctx, cancel := context.WithCancel(context.Background())
	ti.cancel = cancel
	ti.keys = make(chan Key, 64)

	// Start polling for keyboard input "in the background".
	go ti.pollKeyboard(ctx)

	return nil
}

// pollKeyboard runs in a goroutine and collects keyboard input into
// a channel where it will be read from in the future.
func (ti *TermboxInput) pollKeyboard(ctx context.Context) {
	for {
		// Are we done?
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			ti.keys <- decodeEvent(ev)
		case termbox.EventInterrupt:
			// TearDown wants us gone.
			return
		}
	}
}

// TearDown stops the background polling, closes termbox, and
// restores the terminal.
func (ti *TermboxInput) TearDown() error {
	if ti.cancel != nil {
		ti.cancel()

		// PollEvent blocks, so poke it awake to notice the
		// cancellation.
		termbox.Interrupt()
	}

	// Terminate the GUI.
	termbox.Close()

	// Restore the terminal.
	if ti.oldState != nil {
		return term.Restore(int(os.Stdin.Fd()), ti.oldState)
	}
	return nil
}

// StuffInput inserts fake keystrokes into our input-buffer.
func (ti *TermboxInput) StuffInput(input string) {
	ti.stuffed = input
}

// PendingInput returns true if there is pending input.
func (ti *TermboxInput) PendingInput() bool {

	// Do we have faked/stuffed input to process?
	if len(ti.stuffed) > 0 {
		return true
	}

	// Otherwise only if the poller has read something.
	return len(ti.keys) > 0
}

// BlockForKey returns the next keystroke, blocking until one is
// available.
func (ti *TermboxInput) BlockForKey() (Key, error) {

	// Do we have faked/stuffed input to process?
	if len(ti.stuffed) > 0 {
		c := ti.stuffed[0]
		ti.stuffed = ti.stuffed[1:]
		return Key(c), nil
	}

	return <-ti.keys, nil
}

// GetName returns the name of this driver, "term".
func (ti *TermboxInput) GetName() string {
	return "term"
}

// init registers our driver, by name.
func init() {
	Register("term", func() ConsoleInput {
		return new(TermboxInput)
	})
}
