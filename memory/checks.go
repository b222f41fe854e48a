package memory

import (
	"fmt"
	"log/slog"
)

// AddWatchRead installs a read-watch over count addresses starting
// at base.
func (m *Memory) AddWatchRead(base uint16, count int) {
	for i := 0; i < count; i++ {
		m.watchRead[base+uint16(i)] = struct{}{}
	}
}

// AddWatchWrite installs a write-watch over count addresses starting
// at base.
func (m *Memory) AddWatchWrite(base uint16, count int) {
	for i := 0; i < count; i++ {
		m.watchWrite[base+uint16(i)] = struct{}{}
	}
}

// SetChecks toggles the access-checking master switch, returning the
// previous value so that callers can restore it.
func (m *Memory) SetChecks(enabled bool) bool {
	prev := m.checks
	m.checks = enabled
	return prev
}

// SetProtectWarm controls whether writes to the warm-start vector,
// 0x0000 to 0x0002, are treated as fatal.
func (m *Memory) SetProtectWarm(enabled bool) {
	m.protectWarm = enabled
}

// SetProtectBdosJump controls whether writes to the BDOS jump,
// 0x0005 to 0x0007, are treated as fatal.
func (m *Memory) SetProtectBdosJump(enabled bool) {
	m.protectBdosJump = enabled
}

// ProtectRegion marks an inclusive address range, the rewritten BIOS
// area, as one which the guest must never write to.
func (m *Memory) ProtectRegion(lo uint16, hi uint16) {
	m.protLo = lo
	m.protHi = hi
	m.prot = true
}

// ReadByte returns the byte at the given address, logging if the
// address carries a read-watch.
func (m *Memory) ReadByte(addr uint16) uint8 {
	if m.checks {
		if _, ok := m.watchRead[addr]; ok {
			m.logger.Debug("watched read",
				slog.String("addr", fmt.Sprintf("%04X", addr)),
				slog.String("value", fmt.Sprintf("%02X", m.buf[addr])))
		}
	}
	return m.buf[addr]
}

// WriteByte stores the byte at the given address.  A watched write is
// logged, and a write which the policy classifies as fatal returns an
// error without changing RAM.
func (m *Memory) WriteByte(addr uint16, value uint8) error {
	if m.checks {
		if err := m.classify(addr, value); err != nil {
			return err
		}
		if _, ok := m.watchWrite[addr]; ok {
			m.logger.Debug("watched write",
				slog.String("addr", fmt.Sprintf("%04X", addr)),
				slog.String("value", fmt.Sprintf("%02X", value)))
		}
	}
	m.buf[addr] = value
	return nil
}

// classify decides whether a write to the given address is allowed.
func (m *Memory) classify(addr uint16, value uint8) error {
	if m.protectWarm && addr <= 0x0002 {
		return fmt.Errorf("write of %02X to warm-start vector %04X: %w", value, addr, ErrFatalWrite)
	}
	if m.protectBdosJump && addr >= 0x0005 && addr <= 0x0007 {
		return fmt.Errorf("write of %02X to BDOS jump %04X: %w", value, addr, ErrFatalWrite)
	}
	if m.prot && addr >= m.protLo && addr <= m.protHi {
		return fmt.Errorf("write of %02X to BIOS region %04X: %w", value, addr, ErrTampered)
	}
	return nil
}
