// Package bios replaces the BIOS half of a loaded CP/M memory image
// with a set of intercepted stubs.
//
// The real BDOS binary runs in emulation, but everything below it is
// ours: the jump table it was assembled against is rewritten to point
// at a block of RET instructions higher in memory, and when the
// program counter lands on one of those we perform the corresponding
// console or disk operation natively before letting the RET carry on.
//
// The constructor also lays out the disk parameter header and disk
// parameter block that the BDOS expects the BIOS to own, modelled on
// a fixed hard disk.
package bios

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zcpmgo/zcpm/cpu"
	"github.com/zcpmgo/zcpm/disk"
	"github.com/zcpmgo/zcpm/memory"
	"github.com/zcpmgo/zcpm/symtab"
)

// ErrNoJumpTable means the warm-boot vector at address one did not
// lead to anything that looks like a BIOS jump table, so the loaded
// memory image cannot be hooked.
var ErrNoJumpTable = errors.New("BIOS jump table not found")

// tableSize is the number of entries in a BIOS jump table.
const tableSize = 33

// Machine is the small slice of the host emulator that the BIOS
// handlers need: a way to stop the run, and a rendering of the guest
// stack for the call logs.
type Machine interface {
	SetFinished(finished bool)
	StackInfo() string
}

// Console joins the input and output halves of the terminal as the
// BIOS sees them.
type Console interface {
	// PendingInput reports whether a character could be read
	// without blocking.
	PendingInput() bool

	// BlockForCharacter waits for, and returns, a single
	// character.
	BlockForCharacter() (uint8, error)

	// PutCharacter sends the character to the display.
	PutCharacter(c uint8)
}

// Bios holds the rewritten jump table layout and the state of the
// one emulated drive.
type Bios struct {
	cpu     *cpu.CPU
	ram     *memory.Memory
	drive   *disk.Drive
	con     Console
	machine Machine
	syms    *symtab.Table
	logger  *slog.Logger

	// base is the address of the jump table the loaded image
	// carries, discovered through the warm-boot vector.
	base uint16

	// stubsBase and stubsTop bound the block of RET instructions
	// the table was redirected to.
	stubsBase uint16
	stubsTop  uint16

	// dphBase and dphTop bound the disk parameter header and its
	// associated scratch areas.
	dphBase uint16
	dphTop  uint16

	// track, sector and dma hold the pending disk operation as
	// set up by SETTRK, SETSEC and SETDMA.
	track  uint16
	sector uint16
	dma    uint16
}

// New discovers the BIOS jump table in the loaded memory image,
// rewrites it to point at intercepted stubs, and builds the disk
// parameter header above them.
//
// The warm-boot jump at address zero leads to the second entry of the
// jump table, so the table itself starts three bytes lower.  If that
// location does not hold a pair of JP opcodes the image is not
// something we can hook, and an error is returned.
func New(ram *memory.Memory, proc *cpu.CPU, drive *disk.Drive, con Console, machine Machine, syms *symtab.Table, logger *slog.Logger) (*Bios, error) {
	base := uint16(ram.Get(0x0001)) | uint16(ram.Get(0x0002))<<8
	base -= 3

	if ram.Get(base) != 0xC3 || ram.Get(base+3) != 0xC3 {
		return nil, fmt.Errorf("no jump table at %04X: %w", base, ErrNoJumpTable)
	}

	b := &Bios{
		cpu:       proc,
		ram:       ram,
		drive:     drive,
		con:       con,
		machine:   machine,
		syms:      syms,
		logger:    logger,
		base:      base,
		stubsBase: base + 0x0100,
	}
	b.stubsTop = b.stubsBase + tableSize - 1

	logger.Debug("rewriting BIOS jump table",
		slog.String("base", fmt.Sprintf("%04X", base)))

	// Point every table entry at its stub, and make every stub a
	// RET.  The indirection means a program which reads the jump
	// table and calls the destination still ends up somewhere we
	// intercept.
	for i := uint16(0); i < tableSize; i++ {
		ram.SetU16(base+i*3+1, b.stubsBase+i)
		ram.Set(b.stubsBase+i, 0xC9)
	}

	// Clear the gap between the table and the stubs.
	gap := int(b.stubsBase) - int(base) - tableSize*3
	ram.FillRange(base+tableSize*3, gap, 0x00)

	b.buildDiskParameterHeader()

	// Everything above the disk tables up to the top of RAM is
	// unowned; clear it too.
	ram.FillRange(b.dphTop+1, 0xFFFF-int(b.dphTop), 0x00)

	logger.Debug("BIOS regions",
		slog.String("table", fmt.Sprintf("%04X..%04X", base, base+tableSize*3-1)),
		slog.String("stubs", fmt.Sprintf("%04X..%04X", b.stubsBase, b.stubsTop)),
		slog.String("dph", fmt.Sprintf("%04X..%04X", b.dphBase, b.dphTop)))

	return b, nil
}

// buildDiskParameterHeader lays out the DPH, the directory buffer,
// the disk parameter block and the two scratch areas directly above
// the stubs, and registers watches and symbols over the lot so that
// BDOS accesses to them show up usefully in the logs.
func (b *Bios) buildDiskParameterHeader() {
	b.dphBase = b.stubsTop + 1
	dirbf := b.dphBase + 0x10
	dpb := dirbf + 0x80
	csv := dpb + 0x10
	alv := csv + 0x10
	b.dphTop = alv + 0x00FF

	ram := b.ram

	ram.SetU16(b.dphBase+0x00, 0x0000) // XLT, no sector translation
	ram.SetU16(b.dphBase+0x02, 0x0000)
	ram.SetU16(b.dphBase+0x04, 0x0000)
	ram.SetU16(b.dphBase+0x06, 0x0000)
	ram.SetU16(b.dphBase+0x08, dirbf)
	ram.SetU16(b.dphBase+0x0A, dpb)
	ram.SetU16(b.dphBase+0x0C, csv)
	ram.SetU16(b.dphBase+0x0E, alv)

	// The parameter block describes a fixed hard disk, which is
	// the closest match to a directory full of host files.
	ram.SetU16(dpb+0x00, 0x0080)   // SPT
	ram.Set(dpb+0x02, disk.BSH)    // BSH
	ram.Set(dpb+0x03, disk.BLM)    // BLM
	ram.Set(dpb+0x04, 0x00)        // EXM
	ram.SetU16(dpb+0x05, 0x07F7)   // DSM
	ram.SetU16(dpb+0x07, 0x03FF)   // DRM
	ram.Set(dpb+0x09, 0xFF)        // AL0
	ram.Set(dpb+0x0A, 0xFF)        // AL1
	ram.SetU16(dpb+0x0B, 0x0000)   // CKS, zero for fixed media
	ram.SetU16(dpb+0x0D, 0x0000)   // OFF

	size := int(b.dphTop) - int(b.dphBase) + 1
	ram.AddWatchRead(b.dphBase, size)
	ram.AddWatchWrite(b.dphBase, size)

	b.syms.Add("BIOS", b.dphBase, "DPHBASE")
	b.syms.Add("BIOS", dirbf, "DIRBF")
	b.syms.Add("BIOS", dpb, "HDBLK")
	b.syms.Add("BIOS", alv, "ALLHD1")
	b.syms.Add("BIOS", b.dphTop, "DPHTOP")
}

// Range returns the bounds of the memory the BIOS claims, from the
// jump table through the stubs, for write-protection purposes.
func (b *Bios) Range() (uint16, uint16) {
	return b.base, b.stubsTop
}

// IsBIOS reports whether the given address falls inside the BIOS
// area, jump table and stubs included.
func (b *Bios) IsBIOS(address uint16) bool {
	return address >= b.base && address <= b.stubsTop
}

// Boot performs the cold-boot duties of the BIOS: clearing the
// IOBYTE and the current-disk byte in page zero.
func (b *Bios) Boot() {
	b.ram.Set(0x0003, 0x00)
	b.ram.Set(0x0004, 0x00)
}

// WarmInit performs the warm-boot duties that apply at start-up,
// selecting the first drive and seeking to track zero.  A warm boot
// requested later by the running program is a termination condition
// instead, and is handled in the dispatcher.
func (b *Bios) WarmInit() {
	b.fnSeldsk(0, 0)
	b.fnHome()
}

// CheckAndHandle performs the BIOS function whose stub the program
// counter has landed on, returning false when the address is not one
// of ours.
func (b *Bios) CheckAndHandle(address uint16) bool {
	if address < b.stubsBase || address > b.stubsTop {
		return false
	}

	fn := address - b.stubsBase

	switch fn {
	case 0:
		b.logCall(fn, "BOOT()")
		b.Boot()
	case 1:
		// The program re-entered the warm boot, which is how a
		// CP/M program hands control back.
		b.logCall(fn, "WBOOT()")
		b.machine.SetFinished(true)
	case 2:
		b.logCall(fn, "CONST()")
		if b.con.PendingInput() {
			b.cpu.A = 0xFF
		} else {
			b.cpu.A = 0x00
		}
	case 3:
		ch, err := b.con.BlockForCharacter()
		if err != nil {
			b.logger.Error("console read failed", slog.String("error", err.Error()))
			b.machine.SetFinished(true)
			return true
		}
		b.cpu.A = ch
		b.logCall(fn, fmt.Sprintf("CONIN(%02X)", ch))
	case 4:
		ch := b.cpu.C
		if ch >= ' ' {
			b.logCall(fn, fmt.Sprintf("CONOUT(%02X '%c')", ch, ch))
		} else {
			b.logCall(fn, fmt.Sprintf("CONOUT(%02X)", ch))
		}
		b.con.PutCharacter(ch)
	case 8:
		b.logCall(fn, "HOME()")
		b.fnHome()
	case 9:
		d := b.cpu.C
		flag := b.cpu.E
		b.logCall(fn, fmt.Sprintf("SELDSK(disk=%02X,flag=%02X)", d, flag))
		b.fnSeldsk(d, flag)
	case 10:
		bc := b.cpu.BC()
		b.logCall(fn, fmt.Sprintf("SETTRK(%04X)", bc))
		b.track = bc
	case 11:
		bc := b.cpu.BC()
		b.logCall(fn, fmt.Sprintf("SETSEC(%04X)", bc))
		b.sector = bc
	case 12:
		bc := b.cpu.BC()
		b.logCall(fn, fmt.Sprintf("SETDMA(%04X)", bc))
		b.dma = bc
	case 13:
		b.logCall(fn, "READ()")
		b.cpu.A = b.fnRead()
	case 14:
		c := b.cpu.C
		b.logCall(fn, fmt.Sprintf("WRITE(%02X)", c))
		b.cpu.A = b.fnWrite()
	case 16:
		bc := b.cpu.BC()
		de := b.cpu.DE()
		b.logCall(fn, fmt.Sprintf("SECTRAN(%04X,%04X)", bc, de))
		// No skewing; the logical sector is the physical one.
		b.cpu.SetHL(bc)
	default:
		b.logCall(fn, "Unknown!")
		b.logger.Error("unimplemented BIOS function", slog.Int("fn", int(fn)))
		b.machine.SetFinished(true)
	}

	// We return to the RET stub, which sends the program on its
	// way as if the BIOS call had run normally.
	return true
}

// fnHome seeks to track zero.
func (b *Bios) fnHome() {
	b.track = 0
}

// fnSeldsk selects a drive.  All drives are the same single
// directory, so the answer is always the one parameter header.
func (b *Bios) fnSeldsk(drive uint8, flag uint8) {
	b.cpu.SetHL(b.dphBase)
}

// fnRead reads the pending track and sector into the DMA area.
func (b *Bios) fnRead() uint8 {
	b.logger.Debug("disk read",
		slog.String("track", fmt.Sprintf("%04X", b.track)),
		slog.String("sector", fmt.Sprintf("%04X", b.sector)),
		slog.String("dma", fmt.Sprintf("%04X", b.dma)))

	var buffer disk.Sector
	b.drive.Read(&buffer, b.track, b.sector)
	b.ram.SetRange(b.dma, buffer[:]...)

	return 0
}

// fnWrite writes the DMA area out to the pending track and sector.
func (b *Bios) fnWrite() uint8 {
	b.logger.Debug("disk write",
		slog.String("track", fmt.Sprintf("%04X", b.track)),
		slog.String("sector", fmt.Sprintf("%04X", b.sector)),
		slog.String("dma", fmt.Sprintf("%04X", b.dma)),
		slog.String("data", b.dumpDMA()))

	var buffer disk.Sector
	copy(buffer[:], b.ram.GetRange(b.dma, disk.SectorSize))
	b.drive.Write(&buffer, b.track, b.sector)

	return 0
}

// dumpDMA renders the sector about to be written as hex, for the
// debug log.
func (b *Bios) dumpDMA() string {
	data := b.ram.GetRange(b.dma, disk.SectorSize)
	var sb strings.Builder
	for i, v := range data {
		if i > 0 {
			if i%16 == 0 {
				sb.WriteString(" / ")
			} else {
				sb.WriteString(" ")
			}
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}

// logCall records one intercepted BIOS call, with the guest stack
// rendered alongside so the caller can be identified.
func (b *Bios) logCall(fn uint16, message string) {
	b.logger.Debug("BIOS call",
		slog.Int("fn", int(fn)),
		slog.String("call", message),
		slog.String("stack", b.machine.StackInfo()))
}
