// The null driver discards everything, which suits runs where only
// the log output matters.

package consoleout

// NullOutputDriver throws away all output.
type NullOutputDriver struct {
}

// GetName returns the name of this driver, "null".
//
// This is part of the ConsoleOutput interface.
func (no *NullOutputDriver) GetName() string {
	return "null"
}

// PutCharacter discards the given character.
//
// This is part of the ConsoleOutput interface.
func (no *NullOutputDriver) PutCharacter(c uint8) {
}

// init registers our driver, by name.
func init() {
	Register("null", func() ConsoleOutput {
		return &NullOutputDriver{}
	})
}
