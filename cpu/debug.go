package cpu

import (
	"fmt"
	"log/slog"
)

// Debug actions are small predicates attached to addresses.  After
// every instruction the new program counter is compared against the
// installed actions, in insertion order, and each matching action is
// evaluated.  An action which returns false stops emulation.

// Action is something that happens when the program counter lands on
// a particular address.
type Action interface {
	// Address returns the address the action is bound to.
	Address() uint16

	// Evaluate is invoked when the program counter matches, and
	// reports whether emulation should continue.
	Evaluate(logger *slog.Logger) bool

	// Describe returns a human-readable summary for listings.
	Describe() string
}

// Breakpoint stops emulation when the program counter reaches its
// address.
type Breakpoint struct {
	Addr uint16
}

// Address returns the breakpoint address.
func (b *Breakpoint) Address() uint16 { return b.Addr }

// Evaluate logs the hit and stops emulation.
func (b *Breakpoint) Evaluate(logger *slog.Logger) bool {
	logger.Info("breakpoint hit",
		slog.String("address", fmt.Sprintf("%04X", b.Addr)))
	return false
}

// Describe returns a summary of the breakpoint.
func (b *Breakpoint) Describe() string {
	return fmt.Sprintf("breakpoint @ %04X", b.Addr)
}

// Watchpoint logs each time the program counter reaches its address,
// without stopping.
type Watchpoint struct {
	Addr uint16
}

// Address returns the watchpoint address.
func (w *Watchpoint) Address() uint16 { return w.Addr }

// Evaluate logs the hit and lets emulation continue.
func (w *Watchpoint) Evaluate(logger *slog.Logger) bool {
	logger.Info("watchpoint hit",
		slog.String("address", fmt.Sprintf("%04X", w.Addr)))
	return true
}

// Describe returns a summary of the watchpoint.
func (w *Watchpoint) Describe() string {
	return fmt.Sprintf("watchpoint @ %04X", w.Addr)
}

// PassPoint counts hits on its address, stopping emulation on the hit
// that drives the remaining count to zero.  A remaining count of zero
// at creation means the very first hit stops.
type PassPoint struct {
	Addr      uint16
	Remaining int
}

// Address returns the pass-point address.
func (p *PassPoint) Address() uint16 { return p.Addr }

// Evaluate decrements the remaining count, stopping emulation on the
// hit which exhausts it.
func (p *PassPoint) Evaluate(logger *slog.Logger) bool {
	if p.Remaining > 0 {
		p.Remaining--
	}
	if p.Remaining <= 0 {
		logger.Info("pass-point exhausted",
			slog.String("address", fmt.Sprintf("%04X", p.Addr)))
		return false
	}
	logger.Debug("pass-point passed",
		slog.String("address", fmt.Sprintf("%04X", p.Addr)),
		slog.Int("remaining", p.Remaining))
	return true
}

// Describe returns a summary of the pass-point.
func (p *PassPoint) Describe() string {
	return fmt.Sprintf("pass-point @ %04X, %d passes left", p.Addr, p.Remaining)
}

// AddAction installs a debug action.  Actions are kept in insertion
// order, which is also the order they are evaluated and listed in.
func (c *CPU) AddAction(a Action) {
	c.actions = append(c.actions, a)
}

// RemoveAction removes the action with the given one-based index, as
// shown by ShowActions.
func (c *CPU) RemoveAction(index int) error {
	if index < 1 || index > len(c.actions) {
		return fmt.Errorf("no action with index %d", index)
	}
	c.actions = append(c.actions[:index-1], c.actions[index:]...)
	return nil
}

// ShowActions returns a description of each installed action, in
// evaluation order.
func (c *CPU) ShowActions() []string {
	out := make([]string, 0, len(c.actions))
	for i, a := range c.actions {
		out = append(out, fmt.Sprintf("%d: %s", i+1, a.Describe()))
	}
	return out
}

// evaluateActions runs every action bound to the given address and
// reports whether emulation should continue.  All matching actions are
// evaluated, even when an early one votes to stop.
func (c *CPU) evaluateActions(pc uint16) bool {
	cont := true
	for _, a := range c.actions {
		if a.Address() != pc {
			continue
		}
		if !a.Evaluate(c.logger) {
			cont = false
		}
	}
	return cont
}
