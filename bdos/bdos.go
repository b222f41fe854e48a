// Package bdos knows the names and calling conventions of the BDOS
// entry points, so that calls into the genuine BDOS binary can be
// logged in a readable form.
//
// Nothing here executes the calls.  The BDOS itself runs in
// emulation; this package only watches the doorbell.
package bdos

import (
	"fmt"
	"log/slog"

	"github.com/zcpmgo/zcpm/cpu"
	"github.com/zcpmgo/zcpm/fcb"
	"github.com/zcpmgo/zcpm/memory"
)

// Reset is the function number of DRV_ALLRESET, which the start-up
// sequence invokes to make the BDOS initialise its disk state.
const Reset = 13

// DescribeCall returns a short name and a longer description of the
// BDOS call the processor is about to make, based on the function
// number in register C and the argument in DE.
func DescribeCall(proc *cpu.CPU, ram *memory.Memory) (string, string) {
	c := proc.C
	de := proc.DE()

	name := fmt.Sprintf("fn#%d ", c)

	switch c {
	case 0:
		return name + "P_TERMCPM", "System reset"
	case 1:
		return name + "C_READ", "Console input"
	case 2:
		ch := proc.E
		printable := rune('?')
		if ch >= ' ' && ch < 0x7F {
			printable = rune(ch)
		}
		return name + "C_WRITE", fmt.Sprintf("Console output '%c' (ASCII 0x%02X)", printable, ch)
	case 6:
		return name + "C_RAWIO", "Direct console I/O"
	case 9:
		return name + "C_WRITESTR", fmt.Sprintf("Print string %q", cpmString(ram, de))
	case 10:
		max := ram.Get(de)
		return name + "C_READSTR", fmt.Sprintf("Read console buffer (buffer at %04X, %d bytes max)", de, max)
	case 11:
		return name + "C_STAT", "Get console status"
	case 12:
		return name + "S_BDOSVER", "Return version number"
	case 13:
		return name + "DRV_ALLRESET", "Reset disk system"
	case 14:
		return name + "DRV_SET", "Select disk"
	case 15:
		return name + "F_OPEN", "Open file (" + describeFCB(ram, de, false) + ")"
	case 16:
		return name + "F_CLOSE", "Close file (" + describeFCB(ram, de, false) + ")"
	case 17:
		return name + "F_SFIRST", "Search for first (" + describeFCB(ram, de, false) + ")"
	case 18:
		return name + "F_SNEXT", "Search for next (" + describeFCB(ram, de, false) + ")"
	case 19:
		return name + "F_DELETE", "Delete file (" + describeFCB(ram, de, false) + ")"
	case 20:
		return name + "F_READ", "Read sequential (" + describeFCB(ram, de, false) + ")"
	case 21:
		return name + "F_WRITE", "Write sequential (" + describeFCB(ram, de, false) + ")"
	case 22:
		return name + "F_MAKE", "Make file (" + describeFCB(ram, de, false) + ")"
	case 23:
		return name + "F_RENAME", "Rename file (" + describeFCB(ram, de, true) + ")"
	case 24:
		return name + "DRV_LOGINVEC", "Return login vector"
	case 25:
		return name + "DRV_GET", "Return current disk"
	case 26:
		return name + "F_DMAOFF", fmt.Sprintf("Set DMA address to %04X", de)
	case 27:
		return name + "DRV_ALLOCVEC", "Get addr(alloc)"
	case 29:
		return name + "DRV_ROVEC", "Get readonly vector"
	case 30:
		return name + "F_ATTRIB", "Set file attributes (" + describeFCB(ram, de, false) + ")"
	case 31:
		return name + "DRV_DPB", "Get addr(diskparams)"
	case 32:
		mode := "set"
		if proc.E == 0xFF {
			mode = "get"
		}
		return name + "F_USERNUM", fmt.Sprintf("Set/get user code (E=%02X means '%s')", proc.E, mode)
	case 33:
		return name + "F_READRAND", "Read random (" + describeFCB(ram, de, false) + ")"
	case 34:
		return name + "F_WRITERAND", "Write random (" + describeFCB(ram, de, false) + ")"
	case 35:
		return name + "F_SIZE", "Compute file size (" + describeFCB(ram, de, false) + ")"
	case 36:
		return name + "F_RANDREC", "Set random record (" + describeFCB(ram, de, false) + ")"
	default:
		return name + "???", ""
	}
}

// LogCall records one BDOS call at debug level, with the guest stack
// rendered alongside.
func LogCall(logger *slog.Logger, proc *cpu.CPU, ram *memory.Memory, stack string) {
	name, description := DescribeCall(proc, ram)
	logger.Debug("BDOS call",
		slog.String("name", name),
		slog.String("description", description),
		slog.String("stack", stack))
}

// cpmString reads a dollar-terminated string from RAM.  The length
// is capped and non-printables are escaped, since the pointer may be
// rubbish and the result goes into the logfile.
func cpmString(ram *memory.Memory, address uint16) string {
	result := ""
	for offset := uint16(0); offset < 30; offset++ {
		ch := ram.Get(address + offset)
		if ch == '$' {
			return result
		}
		if ch >= ' ' && ch < 0x7F {
			result += string(rune(ch))
		} else {
			result += fmt.Sprintf("<%02X>", ch)
		}
	}
	return result + " (etc)"
}

// describeFCB summarises the file control block at the given address.
func describeFCB(ram *memory.Memory, address uint16, both bool) string {
	f := fcb.FromBytes(ram.GetRange(address, fcb.Size))
	return fmt.Sprintf("FCB at %04X: %s", address, f.Describe(both))
}
