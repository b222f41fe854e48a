// Package consolein reads keyboard input for the emulated machine.
//
// Drivers register themselves by name and deliver decoded
// keystrokes; the wrapper turns those into the bytes the guest
// expects.  A special key may expand, via the keymap, into several
// guest bytes which are queued and handed out one at a time.  The
// two host conventions which differ from the guest are fixed here
// too: DEL becomes backspace, and newline becomes carriage return.
package consolein

import (
	"fmt"
	"strings"
)

// Key is a decoded keystroke.  Values below 0x100 are plain bytes;
// the values above are the special keys a keymap may rebind.
type Key uint16

const (
	// KeyLeft is the left arrow.
	KeyLeft Key = 0x100 + iota

	// KeyRight is the right arrow.
	KeyRight

	// KeyUp is the up arrow.
	KeyUp

	// KeyDown is the down arrow.
	KeyDown

	// KeyNPage is the next-page (page down) key.
	KeyNPage

	// KeyPPage is the previous-page (page up) key.
	KeyPPage

	// KeyHome is the home key.
	KeyHome

	// KeyEnd is the end key.
	KeyEnd
)

// ConsoleInput is the interface a console input driver must
// implement.
//
// Providing this interface is implemented an object may register
// itself, by name, via the Register method.
type ConsoleInput interface {

	// Setup readies the driver for use.
	Setup() error

	// TearDown undoes whatever Setup did to the terminal.
	TearDown() error

	// PendingInput reports whether a keystroke is waiting.
	PendingInput() bool

	// BlockForKey returns the next keystroke, blocking until one
	// is available.
	BlockForKey() (Key, error)

	// StuffInput inserts fake keystrokes which will be returned
	// before any real ones.  Used for scripting and tests.
	StuffInput(input string)

	// GetName returns the name of the driver.
	GetName() string
}

// Constructor is the signature of a constructor-function which is
// used to instantiate an instance of a driver.
type Constructor func() ConsoleInput

// This is a map of known-drivers.
var handlers = struct {
	m map[string]Constructor
}{m: make(map[string]Constructor)}

// Register makes a console input driver available, by name.
func Register(name string, obj Constructor) {
	// Downcase for consistency.
	name = strings.ToLower(name)

	handlers.m[name] = obj
}

// ConsoleIn holds our state: the driver doing the reading, the
// keymap rebinding special keys, and the queue of bytes an earlier
// expansion has yet to deliver.
type ConsoleIn struct {

	// driver is the thing that actually reads keystrokes.
	driver ConsoleInput

	// keymap rebinds the special keys, and may be nil.
	keymap *Keymap

	// queued holds guest bytes from an earlier expansion.
	queued []uint8
}

// New is our constructor, it creates an input device which uses the
// specified driver.
func New(name string) (*ConsoleIn, error) {
	// Downcase for consistency.
	name = strings.ToLower(name)

	// Do we have a constructor with the given name?
	ctor, ok := handlers.m[name]
	if !ok {
		return nil, fmt.Errorf("failed to lookup driver by name '%s'", name)
	}

	// OK we do, return ourselves with that driver.
	return &ConsoleIn{
		driver: ctor(),
	}, nil
}

// GetDriver allows getting our driver at runtime.
func (ci *ConsoleIn) GetDriver() ConsoleInput {
	return ci.driver
}

// GetName returns the name of our selected driver.
func (ci *ConsoleIn) GetName() string {
	return ci.driver.GetName()
}

// GetDrivers returns all available driver-names.
//
// We hide the internal "error" driver.
func (ci *ConsoleIn) GetDrivers() []string {
	valid := []string{}

	for x := range handlers.m {
		if x != "error" {
			valid = append(valid, x)
		}
	}
	return valid
}

// SetKeymap installs the keymap used to rebind special keys.
func (ci *ConsoleIn) SetKeymap(km *Keymap) {
	ci.keymap = km
}

// Setup readies the driver for use.
func (ci *ConsoleIn) Setup() error {
	return ci.driver.Setup()
}

// TearDown undoes whatever Setup did to the terminal.
func (ci *ConsoleIn) TearDown() error {
	return ci.driver.TearDown()
}

// StuffInput inserts fake keystrokes, for scripting and tests.
func (ci *ConsoleIn) StuffInput(input string) {
	ci.driver.StuffInput(input)
}

// PendingInput reports whether a byte is waiting, either queued
// from an earlier expansion or pending in the driver.
func (ci *ConsoleIn) PendingInput() bool {
	if len(ci.queued) > 0 {
		return true
	}
	return ci.driver.PendingInput()
}

// BlockForCharacter returns the next byte of guest input, blocking
// until one is available.  The host conventions are translated on
// the way: DEL becomes backspace, newline becomes carriage return,
// and a special key becomes its keymap expansion.  An unbound
// special key yields nothing, so reading continues.
func (ci *ConsoleIn) BlockForCharacter() (uint8, error) {
	for {
		if len(ci.queued) > 0 {
			c := ci.queued[0]
			ci.queued = ci.queued[1:]
			return c, nil
		}

		key, err := ci.driver.BlockForKey()
		if err != nil {
			return 0x00, err
		}

		switch key {
		case 0x7F:
			return 0x08, nil
		case 0x0A:
			return 0x0D, nil
		}

		if key < 0x100 {
			return uint8(key), nil
		}

		// A special key is worth whatever the keymap says.
		ci.queued = ci.keymap.Translate(key)
	}
}
