// Package hardware glues the machine together: it owns the RAM, the
// processor, the BIOS, the console and the symbol table, and it is
// the bus and observer the processor executes against.
//
// The BDOS runs in emulation and is only logged when the program
// counter reaches its entry point; the BIOS is both logged and
// serviced natively.
package hardware

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zcpmgo/zcpm/bdos"
	"github.com/zcpmgo/zcpm/bios"
	"github.com/zcpmgo/zcpm/cpu"
	"github.com/zcpmgo/zcpm/disk"
	"github.com/zcpmgo/zcpm/memory"
	"github.com/zcpmgo/zcpm/symtab"
)

// ErrFinished means the guest terminated cleanly, by re-entering the
// warm boot or returning through address 0x0008.
//
// It should be handled and expected by callers.
var ErrFinished = errors.New("finished")

// InputHandler is an optional hook for guest IN instructions.
type InputHandler func(port uint8) (uint8, error)

// OutputHandler is an optional hook for guest OUT instructions.
type OutputHandler func(port uint8, value uint8) error

// Config collects the behaviour switches for a machine.
type Config struct {
	// Memcheck is the master switch for memory-access checking.
	Memcheck bool

	// LogBdos enables logging of BDOS calls.
	LogBdos bool

	// ProtectWarmStart makes writes to 0x0000-0x0002 fatal.
	ProtectWarmStart bool

	// ProtectBdosJump makes writes to 0x0005-0x0007 fatal.
	ProtectBdosJump bool

	// BdosSym and UserSym optionally name symbol files for the
	// loaded BDOS and for the user program.
	BdosSym string
	UserSym string
}

// Hardware is the assembled machine.
type Hardware struct {
	ram     *memory.Memory
	proc    *cpu.CPU
	bios    *bios.Bios
	drive   *disk.Drive
	con     bios.Console
	symbols *symtab.Table
	config  Config
	logger  *slog.Logger

	// fbase is the BDOS entry point, used to classify intercepted
	// addresses.
	fbase uint16

	finished bool

	// fatal records the error which stopped the run, if any.
	fatal error

	inputHandler  InputHandler
	outputHandler OutputHandler
}

// New assembles a machine around the given console and drive.  Page
// zero is watched from the start, and any configured symbol files
// are loaded.
func New(con bios.Console, drive *disk.Drive, config Config, logger *slog.Logger) *Hardware {
	h := &Hardware{
		ram:     memory.New(logger),
		con:     con,
		drive:   drive,
		symbols: symtab.New(logger),
		config:  config,
		logger:  logger,
	}
	h.proc = cpu.New(h, h, logger)

	// Any write to page zero is of interest.  Reads are too,
	// except the warm-boot and BDOS jump vectors which are hit
	// constantly.
	h.ram.AddWatchWrite(0x0000, 0x0100)
	h.ram.AddWatchRead(0x0003, 2)
	h.ram.AddWatchRead(0x0008, 0x0100-8)

	h.ram.SetProtectWarm(config.ProtectWarmStart)
	h.ram.SetProtectBdosJump(config.ProtectBdosJump)

	h.loadSymbols(config.BdosSym, "BDOS")
	h.loadSymbols(config.UserSym, "USER")

	// Accesses near the top of RAM come from the direct BDOS call
	// made during start-up; a marker symbol makes them readable.
	h.symbols.Add("ZCPM", 0xFFF0, "TBD!")

	return h
}

// loadSymbols loads one optional symbol file.  A missing file is
// worth a warning but not worth refusing to run.
func (h *Hardware) loadSymbols(filename string, namespace string) {
	if err := h.symbols.Load(filename, namespace); err != nil {
		h.logger.Warn("could not load symbols",
			slog.String("file", filename),
			slog.String("error", err.Error()))
	}
}

// Memory exposes the RAM, for loading binaries and tests.
func (h *Hardware) Memory() *memory.Memory {
	return h.ram
}

// CPU exposes the processor, for register setup and debug actions.
func (h *Hardware) CPU() *cpu.CPU {
	return h.proc
}

// Symbols exposes the symbol table, for the debugger front-end.
func (h *Hardware) Symbols() *symtab.Table {
	return h.symbols
}

// SetInputHandler installs the hook for guest IN instructions.
func (h *Hardware) SetInputHandler(handler InputHandler) {
	h.inputHandler = handler
}

// SetOutputHandler installs the hook for guest OUT instructions.
func (h *Hardware) SetOutputHandler(handler OutputHandler) {
	h.outputHandler = handler
}

// SetFbaseAndWboot installs the two page-zero jumps that CP/M
// programs rely on, then constructs the BIOS from the loaded image
// and write-protects its region.
func (h *Hardware) SetFbaseAndWboot(fbase uint16, wboot uint16) error {
	h.fbase = fbase

	h.ram.Set(0x0000, 0xC3)
	h.ram.SetU16(0x0001, wboot)

	h.ram.Set(0x0005, 0xC3)
	h.ram.SetU16(0x0006, fbase)

	b, err := bios.New(h.ram, h.proc, h.drive, h.con, h, h.symbols, h.logger)
	if err != nil {
		return err
	}
	h.bios = b

	lo, hi := b.Range()
	h.ram.ProtectRegion(lo, hi)

	return nil
}

// CallBiosBoot runs the BIOS cold-boot and warm-boot duties directly,
// initialising its data structures before any guest code is loaded.
func (h *Hardware) CallBiosBoot() {
	h.bios.Boot()
	h.bios.WarmInit()
}

// CallBdos invokes one BDOS function by pointing the processor at the
// BDOS jump vector and letting the emulation run to completion.
func (h *Hardware) CallBdos(op uint8) {
	h.proc.C = op
	h.proc.PC = 0x0005
	h.proc.Emulate(0)
}

// CheckMemoryAccesses toggles the access checks, when the
// configuration allows checking at all.
func (h *Hardware) CheckMemoryAccesses(enabled bool) {
	if !h.config.Memcheck {
		return
	}
	if prev := h.ram.SetChecks(enabled); prev != enabled {
		h.logger.Info("memory access checks", slog.Bool("enabled", enabled))
	}
}

// SetFinished marks the run as finished, or clears the mark.
func (h *Hardware) SetFinished(finished bool) {
	h.finished = finished
	if !finished {
		h.fatal = nil
	}
}

// Running reports whether emulation should continue.
func (h *Hardware) Running() bool {
	return !h.finished
}

// Cause explains why the run stopped: ErrFinished for a clean
// termination, the underlying error for a fatal one, or nil while
// still running.
func (h *Hardware) Cause() error {
	if h.fatal != nil {
		return h.fatal
	}
	if h.finished {
		return ErrFinished
	}
	return nil
}

// Intercept classifies the program counter before each instruction.
// Landing on the BDOS entry point is logged but not serviced, since
// the genuine BDOS is about to run; landing on a BIOS stub is
// serviced natively.
func (h *Hardware) Intercept(pc uint16) {
	if pc == h.fbase {
		if h.config.LogBdos {
			bdos.LogCall(h.logger, h.proc, h.ram, h.StackInfo())
		}
		return
	}

	if h.bios != nil {
		h.bios.CheckAndHandle(pc)
	}
}

// ReadByte implements the processor bus.
func (h *Hardware) ReadByte(addr uint16) uint8 {
	return h.ram.ReadByte(addr)
}

// WriteByte implements the processor bus.  A write which the policy
// forbids stops the run and records the violation.
func (h *Hardware) WriteByte(addr uint16, value uint8) {
	if err := h.ram.WriteByte(addr, value); err != nil {
		h.logger.Error("illegal memory write",
			slog.String("addr", h.DescribeAddress(addr)),
			slog.String("pc", h.DescribeAddress(h.proc.PC)),
			slog.String("error", err.Error()))
		h.fatal = err
		h.finished = true
	}
}

// In implements the processor bus port input.
func (h *Hardware) In(port uint8) uint8 {
	if h.inputHandler == nil {
		return 0
	}
	value, err := h.inputHandler(port)
	if err != nil {
		h.logger.Info("input handler failed",
			slog.Int("port", int(port)),
			slog.String("error", err.Error()))
		return 0
	}
	return value
}

// Out implements the processor bus port output.
func (h *Hardware) Out(port uint8, value uint8) {
	if h.outputHandler == nil {
		return
	}
	if err := h.outputHandler(port, value); err != nil {
		h.logger.Info("output handler failed",
			slog.Int("port", int(port)),
			slog.String("error", err.Error()))
	}
}

// StackInfo renders up to four return addresses from the guest stack
// as a call-site trail.  Each entry is shown three bytes back, where
// the CALL instruction sat.  The walk stops once it reaches user
// space or the start-up area, since anything beyond that is noise
// from programs that juggle SP themselves.
func (h *Hardware) StackInfo() string {
	const maxSteps = 4

	var sb strings.Builder
	sp := h.proc.SP

	for step := uint16(0); step < maxSteps; step++ {
		ret := h.ram.GetU16(sp+step*2) - 3

		sb.WriteString(" << ")
		sb.WriteString(h.DescribeAddress(ret))
		sb.WriteString("+3")

		if ret >= 0x0100 && ret < h.fbase {
			break
		}
		if ret >= 0xFFF0 {
			break
		}
	}

	return sb.String()
}

// DescribeAddress renders an address in hex, with the closest symbol
// alongside when the table has anything to say.
func (h *Hardware) DescribeAddress(a uint16) string {
	if h.symbols.Empty() {
		return fmt.Sprintf("%04X", a)
	}
	return fmt.Sprintf("%04X (%s)", a, h.symbols.Describe(a))
}
