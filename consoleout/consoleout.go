// Package consoleout renders guest console output.
//
// The guest writes one byte at a time through the BIOS CONOUT
// vector, and a driver decides what those bytes mean.  The plain
// driver passes text straight through to a writer; the vt100 and
// televideo drivers interpret the escape sequences those terminals
// defined and paint a cell grid instead.  Drivers register
// themselves by name, so the front-end can pick one from a flag.
package consoleout

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ConsoleOutput is the interface a console driver must implement.
//
// Providing this interface is implemented an object may register
// itself, by name, via the Register method.
type ConsoleOutput interface {

	// PutCharacter displays the given character.
	PutCharacter(c uint8)

	// GetName returns the name of the driver.
	GetName() string
}

// WriterDriver is implemented by the drivers which emit a byte
// stream, and allows their destination to be changed.
type WriterDriver interface {

	// SetWriter updates the destination of the output.
	SetWriter(w io.Writer)
}

// ScreenDriver is implemented by the drivers which paint a cell
// grid rather than writing a byte stream.
type ScreenDriver interface {

	// SetScreen attaches the grid the driver paints onto.
	SetScreen(s Screen)
}

// TracingDriver is implemented by the drivers which record the
// sequences they meet, or fail to understand, in a log.
type TracingDriver interface {

	// SetLogger updates the log destination.
	SetLogger(l *slog.Logger)
}

// ConsoleRecorder is an interface that allows returning the content
// which has previously been sent to the console.
//
// This is used solely for tests.
type ConsoleRecorder interface {

	// GetOutput returns the content which has been displayed.
	GetOutput() string

	// Reset removes any stored state.
	Reset()
}

// Constructor is the signature of a constructor-function which is
// used to instantiate an instance of a driver.
type Constructor func() ConsoleOutput

// This is a map of known-drivers.
var handlers = struct {
	m map[string]Constructor
}{m: make(map[string]Constructor)}

// Register makes a console driver available, by name.
//
// When one needs to be created the constructor can be called to
// create an instance of it.
func Register(name string, obj Constructor) {
	// Downcase for consistency.
	name = strings.ToLower(name)

	handlers.m[name] = obj
}

// ConsoleOut holds our state, which is basically just a pointer to
// the object handling our output.
type ConsoleOut struct {

	// driver is the thing that actually renders our output.
	driver ConsoleOutput
}

// New is our constructor, it creates an output device which uses
// the specified driver.
func New(name string) (*ConsoleOut, error) {
	// Downcase for consistency.
	name = strings.ToLower(name)

	// Do we have a constructor with the given name?
	ctor, ok := handlers.m[name]
	if !ok {
		return nil, fmt.Errorf("failed to lookup driver by name '%s'", name)
	}

	// OK we do, return ourselves with that driver.
	return &ConsoleOut{
		driver: ctor(),
	}, nil
}

// GetDriver allows getting our driver at runtime.
func (co *ConsoleOut) GetDriver() ConsoleOutput {
	return co.driver
}

// ChangeDriver allows changing our driver at runtime.
func (co *ConsoleOut) ChangeDriver(name string) error {

	// Do we have a constructor with the given name?
	ctor, ok := handlers.m[name]
	if !ok {
		return fmt.Errorf("failed to lookup driver by name '%s'", name)
	}

	// change the driver by creating a new object
	co.driver = ctor()
	return nil
}

// GetName returns the name of our selected driver.
func (co *ConsoleOut) GetName() string {
	return co.driver.GetName()
}

// GetDrivers returns all available driver-names.
//
// We hide the internal "null" and "logger" drivers.
func (co *ConsoleOut) GetDrivers() []string {
	valid := []string{}

	for x := range handlers.m {
		if x != "null" && x != "logger" {
			valid = append(valid, x)
		}
	}
	return valid
}

// PutCharacter outputs a character, using our selected driver.
func (co *ConsoleOut) PutCharacter(c uint8) {
	co.driver.PutCharacter(c)
}

// SetWriter updates the output destination, if the selected driver
// writes a byte stream.
func (co *ConsoleOut) SetWriter(w io.Writer) {
	if d, ok := co.driver.(WriterDriver); ok {
		d.SetWriter(w)
	}
}

// SetScreen attaches a cell grid, if the selected driver paints one.
func (co *ConsoleOut) SetScreen(s Screen) {
	if d, ok := co.driver.(ScreenDriver); ok {
		d.SetScreen(s)
	}
}

// SetLogger updates the log destination, if the selected driver
// keeps one.
func (co *ConsoleOut) SetLogger(l *slog.Logger) {
	if d, ok := co.driver.(TracingDriver); ok {
		d.SetLogger(l)
	}
}
