// zcpm runs CP/M 2.2 programs on an emulated Z80 machine.  A real
// BDOS binary provides the operating system; the BIOS beneath it is
// serviced natively, with the current directory standing in for the
// disk.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/zcpmgo/zcpm/consolein"
	"github.com/zcpmgo/zcpm/consoleout"
	"github.com/zcpmgo/zcpm/disk"
	"github.com/zcpmgo/zcpm/hardware"
	"github.com/zcpmgo/zcpm/system"
	"github.com/zcpmgo/zcpm/version"
)

// console joins the input and output halves into the contract the
// BIOS consumes.
type console struct {
	in  *consolein.ConsoleIn
	out *consoleout.ConsoleOut
}

func (c *console) PendingInput() bool {
	return c.in.PendingInput()
}

func (c *console) BlockForCharacter() (uint8, error) {
	return c.in.BlockForCharacter()
}

func (c *console) PutCharacter(ch uint8) {
	c.out.PutCharacter(ch)
}

// parseAddress turns a flag value such as "0xDC00" into an address.
func parseAddress(name string, value string) (uint16, error) {
	v, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s address %q: %w", name, value, err)
	}
	return uint16(v), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "zcpm: %s\n", err)
		os.Exit(1)
	}
}

func run() error {

	home, _ := os.UserHomeDir()

	bdosFile := flag.String("bdosfile", filepath.Join(home, "zcpm", "bdos.bin"), "path to the BDOS binary image")
	bdosBase := flag.String("bdosbase", "0xDC00", "load address of the BDOS binary")
	wboot := flag.String("wboot", "0xF203", "address of WBOOT in the loaded BDOS")
	fbase := flag.String("fbase", "0xE406", "address of FBASE in the loaded BDOS")
	bdosSym := flag.String("bdossym", "bdos.lab", "symbol file for the loaded BDOS")
	userSym := flag.String("usersym", "", "symbol file for the user program")
	terminal := flag.String("terminal", "plain", "terminal emulation: plain, vt100, or televideo")
	keymap := flag.String("keymap", "wordstar.keys", "keymap file for the terminal")
	columns := flag.Int("columns", 80, "terminal width")
	rows := flag.Int("rows", 24, "terminal height")
	memcheck := flag.Bool("memcheck", true, "enable memory-access checks")
	logBdos := flag.Bool("logbdos", true, "log BDOS calls")
	protectWarm := flag.Bool("protectwarm", true, "treat writes to the warm-boot vector as fatal")
	protectBdosJump := flag.Bool("protectbdosjump", true, "treat writes to the BDOS jump vector as fatal")
	trace := flag.Bool("trace", false, "verbose trace logging")
	logFile := flag.String("logfile", "zcpm.log", "log sink path")
	showVersion := flag.Bool("version", false, "show the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Print(version.GetVersionBanner())
		return nil
	}

	args := flag.Args()
	if len(args) == 0 {
		return fmt.Errorf("usage: zcpm [options] path/to/file.com [args]")
	}

	bdosAddr, err := parseAddress("bdosbase", *bdosBase)
	if err != nil {
		return err
	}
	wbootAddr, err := parseAddress("wboot", *wboot)
	if err != nil {
		return err
	}
	fbaseAddr, err := parseAddress("fbase", *fbase)
	if err != nil {
		return err
	}

	// All logging goes to the logfile, never the console, since the
	// guest owns the console.
	sink, err := os.Create(*logFile)
	if err != nil {
		return fmt.Errorf("failed to create logfile: %w", err)
	}
	defer sink.Close()

	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	if *trace {
		lvl.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level: lvl,
	}))

	// The log sink must not show up as a file on the guest's disk.
	fs := afero.NewOsFs()
	drive, err := disk.New(fs, logger, filepath.Base(*logFile))
	if err != nil {
		return fmt.Errorf("failed to build drive: %w", err)
	}

	// A screen-oriented terminal needs a real one underneath it.
	useScreen := *terminal != "plain"
	if useScreen && !term.IsTerminal(int(os.Stdin.Fd())) {
		logger.Warn("stdin is not a terminal, falling back to plain output",
			slog.String("terminal", *terminal))
		*terminal = "plain"
		useScreen = false
	}

	out, err := consoleout.New(*terminal)
	if err != nil {
		return fmt.Errorf("failed to create output driver: %w", err)
	}
	out.SetLogger(logger)

	// Scripted input takes priority; otherwise screen terminals
	// read through termbox, and plain ones straight from stdin.
	inputDriver := "stty"
	if useScreen {
		inputDriver = "term"
	}
	if os.Getenv("INPUT_FILE") != "" {
		inputDriver = "file"
	}

	in, err := consolein.New(inputDriver)
	if err != nil {
		return fmt.Errorf("failed to create input driver: %w", err)
	}

	if useScreen {
		km, err := consolein.NewKeymap(fs, *keymap, logger)
		if err != nil {
			return err
		}
		in.SetKeymap(km)
	}

	if err := in.Setup(); err != nil {
		return fmt.Errorf("failed to setup input driver: %w", err)
	}
	defer in.TearDown()

	if useScreen {
		out.SetScreen(consoleout.NewTermboxScreen(*columns, *rows))
	}

	config := hardware.Config{
		Memcheck:         *memcheck,
		LogBdos:          *logBdos,
		ProtectWarmStart: *protectWarm,
		ProtectBdosJump:  *protectBdosJump,
		BdosSym:          *bdosSym,
		UserSym:          *userSym,
	}

	sys := system.New(&console{in: in, out: out}, drive, config, logger)

	if err := sys.LoadBinary(bdosAddr, *bdosFile); err != nil {
		return fmt.Errorf("failed to load BDOS image: %w", err)
	}
	if err := sys.SetupBios(fbaseAddr, wbootAddr); err != nil {
		return fmt.Errorf("failed to setup BIOS: %w", err)
	}
	sys.SetupBdos()

	if err := sys.LoadBinary(0x0100, args[0]); err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}
	sys.LoadFCB(args[1:])
	sys.Reset()

	err = sys.Run()

	// Write the guest's file changes back to the host, whatever the
	// outcome of the run.
	if flushErr := drive.Flush(); flushErr != nil {
		logger.Error("failed to flush drive",
			slog.String("error", flushErr.Error()))
	}

	if errors.Is(err, hardware.ErrFinished) {
		// The guest reached the warm boot, which is how a CP/M
		// program says it is done.
		return nil
	}
	return err
}
