// Memory is a package that provides the 64k of RAM
// within which the emulator executes its programs.
//
// All guest-visible accesses are expected to go through the checked
// read/write helpers, which consult the watch-sets and the fatal-write
// policy.  The unchecked Set/Get helpers exist for emulator-internal
// setup, such as loading binaries and rewriting the BIOS jump table.
package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

var (
	// ErrFatalWrite means the guest wrote to one of the protected
	// trap vectors in page zero, which the configuration treats
	// as an unrecoverable error.
	//
	// It should be handled and expected by callers.
	ErrFatalWrite = errors.New("FATAL-WRITE")

	// ErrTampered means the guest wrote into the rewritten BIOS
	// region, which would corrupt our interception stubs.
	//
	// It should be handled and expected by callers.
	ErrTampered = errors.New("BIOS-TAMPERED")
)

// Memory provides 64K bytes array memory, along with the watch-sets
// and write-protection policy that the emulator applies to guest
// accesses.
type Memory struct {
	// buf holds our RAM contents.
	buf [65536]uint8

	// watchRead contains addresses which log when the guest reads them.
	watchRead map[uint16]struct{}

	// watchWrite contains addresses which log when the guest writes them.
	watchWrite map[uint16]struct{}

	// checks is the master-switch for access checking.  It is
	// temporarily disabled while the emulator itself pokes at RAM,
	// for example during the BIOS table rewrite.
	checks bool

	// protectWarm makes writes to 0x0000-0x0002 fatal.
	protectWarm bool

	// protectBdosJump makes writes to 0x0005-0x0007 fatal.
	protectBdosJump bool

	// protLo and protHi bound the rewritten BIOS region, writes to
	// which are always fatal.  The range is inactive until the BIOS
	// has been constructed.
	protLo uint16
	protHi uint16
	prot   bool

	// logger is used to report watch hits.
	logger *slog.Logger
}

// New returns an empty Memory with no watches installed and
// checking disabled.
func New(logger *slog.Logger) *Memory {
	return &Memory{
		watchRead:  make(map[uint16]struct{}),
		watchWrite: make(map[uint16]struct{}),
		logger:     logger,
	}
}

// Set sets a byte at addr of memory, with no checking.
func (m *Memory) Set(addr uint16, value uint8) {
	m.buf[addr] = value
}

// Get returns a byte at addr of memory, with no checking.
func (m *Memory) Get(addr uint16) uint8 {
	return m.buf[addr]
}

// GetU16 returns a word from the given address of memory.
//
// The guest is little-endian, so the low byte comes first.
func (m *Memory) GetU16(addr uint16) uint16 {
	l := m.Get(addr)
	h := m.Get(addr + 1)
	return (uint16(h) << 8) | uint16(l)
}

// SetU16 writes a word at the given address of memory, low byte first.
func (m *Memory) SetU16(addr uint16, value uint16) {
	m.Set(addr, uint8(value&0xFF))
	m.Set(addr+1, uint8(value>>8))
}

// SetRange copies bytes from the given data to the specified
// starting address in RAM.  The copy is clamped at the top of RAM.
func (m *Memory) SetRange(addr uint16, data ...uint8) {
	avail := len(m.buf) - int(addr)
	if len(data) > avail {
		data = data[:avail]
	}
	copy(m.buf[int(addr):int(addr)+len(data)], data)
}

// FillRange fills an area of memory with the given byte.
func (m *Memory) FillRange(addr uint16, size int, char uint8) {
	for size > 0 {
		m.buf[addr] = char
		addr++
		size--
	}
}

// GetRange returns the contents of a given range.  The copy is
// clamped at the top of RAM.
func (m *Memory) GetRange(addr uint16, size int) []uint8 {
	if avail := len(m.buf) - int(addr); size > avail {
		size = avail
	}
	var ret []uint8
	for size > 0 {
		ret = append(ret, m.buf[addr])
		addr++
		size--
	}
	return ret
}

// LoadFile loads the named binary file into RAM at the given address.
func (m *Memory) LoadFile(addr uint16, name string) error {

	prog, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}

	if int(addr)+len(prog) > len(m.buf) {
		return fmt.Errorf("%s does not fit in RAM at %04X", name, addr)
	}

	m.SetRange(addr, prog...)
	return nil
}
