// drv_error is a console input-driver which only returns errors.
//
// This driver exists to exercise the failure paths of callers, and
// is hidden from the listed drivers.
package consolein

import "fmt"

// ErrorInputName contains the name of this driver.
var ErrorInputName = "error"

// ErrorInput is an input-driver that only returns errors.
type ErrorInput struct {
}

// Setup is a NOP.
func (ei *ErrorInput) Setup() error {
	return nil
}

// TearDown is a NOP.
func (ei *ErrorInput) TearDown() error {
	return nil
}

// PendingInput always pretends input is pending, so that a caller
// will go on to read it and meet the error.
func (ei *ErrorInput) PendingInput() bool {
	return true
}

// StuffInput is a NOP; this driver never yields input.
func (ei *ErrorInput) StuffInput(input string) {
}

// BlockForKey always fails.
func (ei *ErrorInput) BlockForKey() (Key, error) {
	return 0x00, fmt.Errorf("DRV_ERROR")
}

// GetName returns the name of this driver, "error".
func (ei *ErrorInput) GetName() string {
	return ErrorInputName
}

// init registers our driver, by name.
func init() {
	Register(ErrorInputName, func() ConsoleInput {
		return new(ErrorInput)
	})
}
