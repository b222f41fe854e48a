package bios

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/zcpmgo/zcpm/cpu"
	"github.com/zcpmgo/zcpm/disk"
	"github.com/zcpmgo/zcpm/memory"
	"github.com/zcpmgo/zcpm/symtab"
)

// tableBase is where the test image carries its jump table, high in
// RAM the way a real BDOS build would.
const tableBase = uint16(0xF200)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// nopBus satisfies the processor, which never actually executes in
// these tests.
type nopBus struct{}

func (nopBus) ReadByte(addr uint16) uint8         { return 0 }
func (nopBus) WriteByte(addr uint16, value uint8) {}
func (nopBus) In(port uint8) uint8                { return 0 }
func (nopBus) Out(port uint8, value uint8)        {}

// fakeMachine stands in for the hardware layer.
type fakeMachine struct {
	finished bool
}

func (m *fakeMachine) Running() bool             { return !m.finished }
func (m *fakeMachine) SetFinished(finished bool) { m.finished = finished }
func (m *fakeMachine) Intercept(pc uint16)       {}
func (m *fakeMachine) StackInfo() string         { return "" }

// fakeConsole queues input and records output.
type fakeConsole struct {
	input  []uint8
	output []uint8
}

func (c *fakeConsole) PendingInput() bool { return len(c.input) > 0 }

func (c *fakeConsole) BlockForCharacter() (uint8, error) {
	ch := c.input[0]
	c.input = c.input[1:]
	return ch, nil
}

func (c *fakeConsole) PutCharacter(ch uint8) {
	c.output = append(c.output, ch)
}

// testBios builds a BIOS over a fresh memory image carrying a
// plausible jump table.
func testBios(t *testing.T) (*Bios, *memory.Memory, *cpu.CPU, *fakeMachine, *fakeConsole, afero.Fs) {
	t.Helper()

	logger := testLogger()
	ram := memory.New(logger)

	// A JP to the warm-boot entry at address zero, the way a
	// loaded system image leaves it.
	ram.Set(0x0000, 0xC3)
	ram.SetU16(0x0001, tableBase+3)
	for i := uint16(0); i < tableSize; i++ {
		ram.Set(tableBase+i*3, 0xC3)
		ram.SetU16(tableBase+i*3+1, 0xD000+i*0x10)
	}

	fs := afero.NewMemMapFs()
	drive, err := disk.New(fs, logger)
	if err != nil {
		t.Fatalf("failed to build drive: %s", err)
	}

	machine := &fakeMachine{}
	con := &fakeConsole{}
	proc := cpu.New(nopBus{}, machine, logger)
	syms := symtab.New(logger)

	b, err := New(ram, proc, drive, con, machine, syms, logger)
	if err != nil {
		t.Fatalf("failed to build BIOS: %s", err)
	}
	return b, ram, proc, machine, con, fs
}

// TestDiscovery checks the jump table rewrite and the claimed range.
func TestDiscovery(t *testing.T) {
	b, ram, _, _, _, _ := testBios(t)

	lo, hi := b.Range()
	if lo != tableBase {
		t.Fatalf("range starts at %04X", lo)
	}
	if hi != tableBase+0x0100+tableSize-1 {
		t.Fatalf("range ends at %04X", hi)
	}

	// Every entry now points at its stub, and every stub is a RET.
	for i := uint16(0); i < tableSize; i++ {
		if ram.Get(tableBase+i*3) != 0xC3 {
			t.Fatalf("entry %d is not a JP", i)
		}
		target := ram.GetU16(tableBase + i*3 + 1)
		if target != tableBase+0x0100+i {
			t.Fatalf("entry %d points at %04X", i, target)
		}
		if ram.Get(target) != 0xC9 {
			t.Fatalf("stub %d is not a RET", i)
		}
	}

	if !b.IsBIOS(tableBase) || !b.IsBIOS(hi) {
		t.Fatalf("IsBIOS misses its own range")
	}
	if b.IsBIOS(tableBase-1) || b.IsBIOS(hi+1) {
		t.Fatalf("IsBIOS claims too much")
	}
}

// TestNoJumpTable confirms a garbage image is rejected.
func TestNoJumpTable(t *testing.T) {
	logger := testLogger()
	ram := memory.New(logger)
	ram.SetU16(0x0001, 0x8000)

	machine := &fakeMachine{}
	proc := cpu.New(nopBus{}, machine, logger)
	drive, err := disk.New(afero.NewMemMapFs(), logger)
	if err != nil {
		t.Fatalf("failed to build drive: %s", err)
	}

	_, err = New(ram, proc, drive, &fakeConsole{}, machine, symtab.New(logger), logger)
	if !errors.Is(err, ErrNoJumpTable) {
		t.Fatalf("expected ErrNoJumpTable, got %v", err)
	}
}

// TestDiskParameterHeader checks the DPH pointers and the fixed-disk
// parameter block behind them.
func TestDiskParameterHeader(t *testing.T) {
	_, ram, _, _, _, _ := testBios(t)

	dphBase := tableBase + 0x0100 + tableSize
	dirbf := dphBase + 0x10
	dpb := dirbf + 0x80

	if got := ram.GetU16(dphBase + 0x08); got != dirbf {
		t.Fatalf("DIRBUF pointer = %04X, want %04X", got, dirbf)
	}
	if got := ram.GetU16(dphBase + 0x0A); got != dpb {
		t.Fatalf("DPB pointer = %04X, want %04X", got, dpb)
	}

	if got := ram.GetU16(dpb + 0x00); got != 0x0080 {
		t.Fatalf("SPT = %04X", got)
	}
	if ram.Get(dpb+0x02) != disk.BSH || ram.Get(dpb+0x03) != disk.BLM {
		t.Fatalf("BSH/BLM wrong")
	}
	if got := ram.GetU16(dpb + 0x05); got != 0x07F7 {
		t.Fatalf("DSM = %04X", got)
	}
	if got := ram.GetU16(dpb + 0x07); got != 0x03FF {
		t.Fatalf("DRM = %04X", got)
	}
	if ram.Get(dpb+0x09) != 0xFF || ram.Get(dpb+0x0A) != 0xFF {
		t.Fatalf("AL0/AL1 wrong")
	}
}

// TestBoot confirms the cold boot zeroes the IOBYTE and current disk.
func TestBoot(t *testing.T) {
	b, ram, _, _, _, _ := testBios(t)

	ram.Set(0x0003, 0x55)
	ram.Set(0x0004, 0x66)
	b.Boot()
	if ram.Get(0x0003) != 0 || ram.Get(0x0004) != 0 {
		t.Fatalf("page zero not cleared")
	}
}

// TestConsoleFunctions exercises CONST, CONIN and CONOUT through the
// stub dispatcher.
func TestConsoleFunctions(t *testing.T) {
	b, _, proc, _, con, _ := testBios(t)
	stubs := tableBase + 0x0100

	// CONST with nothing pending.
	if !b.CheckAndHandle(stubs + 2) {
		t.Fatalf("CONST not handled")
	}
	if proc.A != 0x00 {
		t.Fatalf("CONST idle returned %02X", proc.A)
	}

	// CONST and CONIN with a character queued.
	con.input = []uint8{'x'}
	b.CheckAndHandle(stubs + 2)
	if proc.A != 0xFF {
		t.Fatalf("CONST ready returned %02X", proc.A)
	}
	b.CheckAndHandle(stubs + 3)
	if proc.A != 'x' {
		t.Fatalf("CONIN returned %02X", proc.A)
	}

	// CONOUT sends register C to the display.
	proc.C = 'H'
	b.CheckAndHandle(stubs + 4)
	if string(con.output) != "H" {
		t.Fatalf("CONOUT wrote %q", string(con.output))
	}
}

// TestWarmBootTerminates confirms a runtime WBOOT ends the run.
func TestWarmBootTerminates(t *testing.T) {
	b, _, _, machine, _, _ := testBios(t)

	if !b.CheckAndHandle(tableBase + 0x0100 + 1) {
		t.Fatalf("WBOOT not handled")
	}
	if !machine.finished {
		t.Fatalf("WBOOT did not finish the run")
	}
}

// TestSeldsk confirms drive selection answers with the DPH address.
func TestSeldsk(t *testing.T) {
	b, _, proc, _, _, _ := testBios(t)

	proc.C = 0
	proc.E = 0
	b.CheckAndHandle(tableBase + 0x0100 + 9)
	if proc.HL() != tableBase+0x0100+tableSize {
		t.Fatalf("SELDSK returned %04X", proc.HL())
	}
}

// TestDiskRoundTrip writes a sector through the BIOS and reads it
// back again.
func TestDiskRoundTrip(t *testing.T) {
	b, ram, proc, _, _, _ := testBios(t)
	stubs := tableBase + 0x0100
	const dma = uint16(0x2000)

	// SETTRK 5, SETSEC 3, SETDMA, then WRITE.
	proc.SetBC(5)
	b.CheckAndHandle(stubs + 10)
	proc.SetBC(3)
	b.CheckAndHandle(stubs + 11)
	proc.SetBC(dma)
	b.CheckAndHandle(stubs + 12)

	for i := uint16(0); i < disk.SectorSize; i++ {
		ram.Set(dma+i, uint8(i))
	}
	b.CheckAndHandle(stubs + 14)
	if proc.A != 0 {
		t.Fatalf("WRITE returned %02X", proc.A)
	}

	// Clear the buffer and READ the sector back.
	ram.FillRange(dma, disk.SectorSize, 0x00)
	b.CheckAndHandle(stubs + 13)
	if proc.A != 0 {
		t.Fatalf("READ returned %02X", proc.A)
	}
	for i := uint16(0); i < disk.SectorSize; i++ {
		if ram.Get(dma+i) != uint8(i) {
			t.Fatalf("sector byte %d = %02X", i, ram.Get(dma+i))
		}
	}
}

// TestSectran confirms the identity sector translation.
func TestSectran(t *testing.T) {
	b, _, proc, _, _, _ := testBios(t)

	proc.SetBC(0x0123)
	proc.SetDE(0x4567)
	b.CheckAndHandle(tableBase + 0x0100 + 16)
	if proc.HL() != 0x0123 {
		t.Fatalf("SECTRAN returned %04X", proc.HL())
	}
}

// TestNotOurs confirms addresses outside the stubs are declined.
func TestNotOurs(t *testing.T) {
	b, _, _, _, _, _ := testBios(t)

	if b.CheckAndHandle(0x0100) {
		t.Fatalf("claimed a user-space address")
	}
	if b.CheckAndHandle(tableBase) {
		t.Fatalf("claimed the jump table itself")
	}
}
