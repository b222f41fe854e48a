// The logger driver keeps everything it is given, so that a test
// can ask what a guest printed.

package consoleout

// OutputLoggingDriver holds our state.
type OutputLoggingDriver struct {

	// history stores everything written so far.
	history string
}

// GetName returns the name of this driver, "logger".
//
// This is part of the ConsoleOutput interface.
func (ol *OutputLoggingDriver) GetName() string {
	return "logger"
}

// PutCharacter records the given character rather than displaying
// it.
//
// This is part of the ConsoleOutput interface.
func (ol *OutputLoggingDriver) PutCharacter(c uint8) {
	ol.history += string(rune(c))
}

// GetOutput returns the recorded output.
//
// This is part of the ConsoleRecorder interface.
func (ol *OutputLoggingDriver) GetOutput() string {
	return ol.history
}

// Reset removes the recorded output.
//
// This is part of the ConsoleRecorder interface.
func (ol *OutputLoggingDriver) Reset() {
	ol.history = ""
}

// init registers our driver, by name.
func init() {
	Register("logger", func() ConsoleOutput {
		return &OutputLoggingDriver{}
	})
}
