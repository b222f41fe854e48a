// Package system orchestrates a run: load the BDOS image, hook the
// BIOS, let the BDOS initialise itself, load the user program and
// its arguments, then hand control to the processor.
package system

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zcpmgo/zcpm/bdos"
	"github.com/zcpmgo/zcpm/bios"
	"github.com/zcpmgo/zcpm/disk"
	"github.com/zcpmgo/zcpm/fcb"
	"github.com/zcpmgo/zcpm/hardware"
)

// fcbBase is where a transient program finds its default FCB.
const fcbBase = uint16(0x005C)

// tailBase is where a transient program finds its command tail.
const tailBase = uint16(0x0080)

// System owns one assembled machine.
type System struct {
	hw     *hardware.Hardware
	logger *slog.Logger
}

// New builds a system around the given console and drive.
func New(con bios.Console, drive *disk.Drive, config hardware.Config, logger *slog.Logger) *System {
	return &System{
		hw:     hardware.New(con, drive, config, logger),
		logger: logger,
	}
}

// Hardware exposes the machine, for tests and the debugger.
func (s *System) Hardware() *hardware.Hardware {
	return s.hw
}

// SetupBios installs the page-zero vectors, rewrites the BIOS jump
// table found in the loaded image, and runs the BIOS boot duties so
// its data structures exist before any guest code does.
func (s *System) SetupBios(fbase uint16, wboot uint16) error {
	if err := s.hw.SetFbaseAndWboot(fbase, wboot); err != nil {
		return err
	}
	s.hw.CallBiosBoot()
	return nil
}

// SetupBdos lets the loaded BDOS initialise its disk structures by
// invoking its reset function through the emulator.  Checks are off
// while it runs, since its start-up scribbles all over the areas we
// normally watch.
func (s *System) SetupBdos() {
	s.hw.CheckMemoryAccesses(false)

	s.logger.Debug("directly calling BDOS", slog.Int("fn", bdos.Reset))
	s.hw.CallBdos(bdos.Reset)

	s.hw.CheckMemoryAccesses(true)
}

// LoadBinary reads a raw binary into RAM at the given base.  CP/M
// transient programs load at 0x0100; the BDOS image loads wherever it
// was assembled for.
func (s *System) LoadBinary(base uint16, filename string) error {
	s.logger.Debug("loading binary",
		slog.String("file", filename),
		slog.String("base", fmt.Sprintf("%04X", base)))
	return s.hw.Memory().LoadFile(base, filename)
}

// LoadFCB seeds the default FCB at 0x005C from up to two command
// arguments, and encodes the command tail at 0x0080: a length byte,
// then each argument upper-cased with a leading space, then a null.
func (s *System) LoadFCB(args []string) {
	f := fcb.Default()
	if len(args) > 0 {
		f.SetFirstName(args[0])
	}
	if len(args) > 1 {
		f.SetSecondName(args[1])
	}
	s.hw.Memory().SetRange(fcbBase, f.AsBytes()...)

	tail := ""
	for _, arg := range args {
		tail += " " + strings.ToUpper(arg)
	}
	ram := s.hw.Memory()
	ram.Set(tailBase, uint8(len(tail)))
	ram.SetRange(tailBase+1, []uint8(tail)...)
	ram.Set(tailBase+1+uint16(len(tail)), 0x00)
}

// Reset points the processor at the loaded program.  The stack is
// placed in free space with zero words on it, so that a stray RET
// unwinds to address zero and hence to the warm boot.
func (s *System) Reset() {
	proc := s.hw.CPU()
	proc.Reset()
	proc.PC = 0x0100

	const sp = uint16(0xF800)
	proc.SP = sp
	ram := s.hw.Memory()
	ram.SetU16(sp+0, 0x0000)
	ram.SetU16(sp+2, 0x0000)
	ram.SetU16(sp+4, 0x0000)

	s.hw.CheckMemoryAccesses(true)
}

// Run executes the guest until it terminates, returning
// hardware.ErrFinished for a clean exit or the underlying fault.
func (s *System) Run() error {
	s.hw.SetFinished(false)
	s.logger.Debug("starting execution of user code")
	s.hw.CPU().Emulate(0)
	return s.hw.Cause()
}

// Step executes a bounded number of instructions, for the debugger.
func (s *System) Step(instructions int) {
	s.hw.SetFinished(false)
	for i := 0; i < instructions; i++ {
		s.hw.CPU().EmulateInstruction()
	}
}
