package hardware

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/zcpmgo/zcpm/disk"
	"github.com/zcpmgo/zcpm/memory"
)

// tableBase is where the test image carries its BIOS jump table.
const tableBase = uint16(0xF200)

// fbase is the pretend BDOS entry point within the test image.
const fbase = uint16(0xE406)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

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

// testHardware assembles a machine over a synthetic system image: a
// jump table high in RAM, and page-zero vectors installed for it.
func testHardware(t *testing.T) (*Hardware, *fakeConsole) {
	t.Helper()

	logger := testLogger()
	drive, err := disk.New(afero.NewMemMapFs(), logger)
	if err != nil {
		t.Fatalf("failed to build drive: %s", err)
	}

	con := &fakeConsole{}
	h := New(con, drive, Config{
		Memcheck:         true,
		ProtectWarmStart: true,
		ProtectBdosJump:  true,
	}, logger)

	// A plausible jump table, 33 entries of JP somewhere.
	ram := h.Memory()
	for i := uint16(0); i < 33; i++ {
		ram.Set(tableBase+i*3, 0xC3)
		ram.SetU16(tableBase+i*3+1, 0xD000+i*0x10)
	}

	if err := h.SetFbaseAndWboot(fbase, tableBase+3); err != nil {
		t.Fatalf("failed to setup BIOS: %s", err)
	}
	return h, con
}

// run loads a program at 0x0100 and executes it to completion.
func run(h *Hardware) error {
	h.CheckMemoryAccesses(true)
	h.SetFinished(false)
	proc := h.CPU()
	proc.Reset()
	proc.PC = 0x0100
	proc.SP = 0xF800
	h.CPU().Emulate(0)
	return h.Cause()
}

// TestWarmBootFinishes confirms that jumping to address zero reaches
// the warm boot and ends the run cleanly.
func TestWarmBootFinishes(t *testing.T) {
	h, _ := testHardware(t)

	if h.Cause() != nil {
		t.Fatalf("cause set before running: %v", h.Cause())
	}

	// JP 0x0000
	h.Memory().SetRange(0x0100, 0xC3, 0x00, 0x00)

	if err := run(h); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}
}

// TestConsoleRoundTrip drives CONOUT through its stub, with a real
// CALL and RET.
func TestConsoleRoundTrip(t *testing.T) {
	h, con := testHardware(t)
	conout := tableBase + 0x0100 + 4

	// LD C,'H' / CALL CONOUT / JP 0x0000
	h.Memory().SetRange(0x0100,
		0x0E, 'H',
		0xCD, uint8(conout&0xFF), uint8(conout>>8),
		0xC3, 0x00, 0x00)

	if err := run(h); !errors.Is(err, ErrFinished) {
		t.Fatalf("run failed: %v", err)
	}
	if string(con.output) != "H" {
		t.Fatalf("console received %q", string(con.output))
	}
}

// TestFatalWrite confirms a write to the warm-start vector stops the
// run and leaves the vector intact.
func TestFatalWrite(t *testing.T) {
	h, _ := testHardware(t)

	// LD A,0x21 / LD (0x0000),A
	h.Memory().SetRange(0x0100, 0x3E, 0x21, 0x32, 0x00, 0x00)

	err := run(h)
	if !errors.Is(err, memory.ErrFatalWrite) {
		t.Fatalf("expected ErrFatalWrite, got %v", err)
	}
	if h.Memory().Get(0x0000) != 0xC3 {
		t.Fatalf("warm-start vector was overwritten")
	}
}

// TestBiosTamper confirms a write into the rewritten BIOS region is
// fatal.
func TestBiosTamper(t *testing.T) {
	h, _ := testHardware(t)

	// LD A,0x21 / LD (tableBase),A
	h.Memory().SetRange(0x0100,
		0x3E, 0x21,
		0x32, uint8(tableBase&0xFF), uint8(tableBase>>8))

	if err := run(h); !errors.Is(err, memory.ErrTampered) {
		t.Fatalf("expected ErrTampered, got %v", err)
	}
}

// TestChecksToggle confirms the access checks can be suspended, and
// that clearing the finished flag also clears the recorded fault.
func TestChecksToggle(t *testing.T) {
	h, _ := testHardware(t)

	h.CheckMemoryAccesses(false)
	h.WriteByte(0x0000, 0x21)
	if !h.Running() {
		t.Fatalf("unchecked write stopped the run")
	}
	h.Memory().Set(0x0000, 0xC3)

	h.CheckMemoryAccesses(true)
	h.WriteByte(0x0000, 0x21)
	if h.Running() {
		t.Fatalf("checked write did not stop the run")
	}
	if h.Cause() == nil {
		t.Fatalf("no cause recorded")
	}

	h.SetFinished(false)
	if h.Cause() != nil {
		t.Fatalf("cause survived the restart: %v", h.Cause())
	}
}

// TestStackInfo confirms the call-site trail renders return addresses
// three bytes back, with symbols when they are known.
func TestStackInfo(t *testing.T) {
	h, _ := testHardware(t)

	h.Symbols().Add("USER", 0x0200, "START")

	proc := h.CPU()
	proc.SP = 0xF000
	h.Memory().SetU16(0xF000, 0x0203)

	info := h.StackInfo()
	if !strings.Contains(info, "0200") || !strings.Contains(info, "+3") {
		t.Fatalf("stack info %q", info)
	}
	if !strings.Contains(info, "USER:START") {
		t.Fatalf("stack info lacks symbol: %q", info)
	}

	// A user-space return address ends the walk, so there is exactly
	// one entry.
	if strings.Count(info, "<<") != 1 {
		t.Fatalf("walk did not stop: %q", info)
	}
}

// TestPortHandlers covers the IN/OUT hooks, including the defaults
// and the failure path.
func TestPortHandlers(t *testing.T) {
	h, _ := testHardware(t)

	if h.In(0x10) != 0 {
		t.Fatalf("unhooked IN returned data")
	}
	h.Out(0x10, 0x42)

	var gotPort, gotValue uint8
	h.SetInputHandler(func(port uint8) (uint8, error) {
		gotPort = port
		return 0x99, nil
	})
	h.SetOutputHandler(func(port uint8, value uint8) error {
		gotPort = port
		gotValue = value
		return nil
	})

	if got := h.In(0x21); got != 0x99 || gotPort != 0x21 {
		t.Fatalf("IN hook returned %02X via port %02X", got, gotPort)
	}
	h.Out(0x22, 0x55)
	if gotPort != 0x22 || gotValue != 0x55 {
		t.Fatalf("OUT hook saw %02X/%02X", gotPort, gotValue)
	}

	h.SetInputHandler(func(port uint8) (uint8, error) {
		return 0xFF, errors.New("broken")
	})
	if h.In(0x21) != 0 {
		t.Fatalf("failing IN hook did not read as zero")
	}
}

// TestDescribeAddress checks the hex and symbolic renderings.
func TestDescribeAddress(t *testing.T) {
	h, _ := testHardware(t)

	h.Symbols().Add("BDOS", fbase, "FBASE")
	got := h.DescribeAddress(fbase + 2)
	if !strings.Contains(got, "E408") || !strings.Contains(got, "BDOS:FBASE+0002") {
		t.Fatalf("described as %q", got)
	}
}
