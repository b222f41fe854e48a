package consolein

import (
	"log/slog"
	"os"
	"testing"

	"github.com/spf13/afero"
)

// scriptInput feeds a fixed sequence of keystrokes to the wrapper.
type scriptInput struct {
	keys []Key
}

func (s *scriptInput) Setup() error            { return nil }
func (s *scriptInput) TearDown() error         { return nil }
func (s *scriptInput) PendingInput() bool      { return len(s.keys) > 0 }
func (s *scriptInput) StuffInput(input string) {}
func (s *scriptInput) GetName() string         { return "script" }

func (s *scriptInput) BlockForKey() (Key, error) {
	k := s.keys[0]
	s.keys = s.keys[1:]
	return k, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestRegistry covers lookups and the hidden error driver.
func TestRegistry(t *testing.T) {
	ci, err := New("stty")
	if err != nil {
		t.Fatalf("failed to create stty driver: %s", err)
	}
	if ci.GetName() != "stty" {
		t.Fatalf("driver name %q", ci.GetName())
	}

	if _, err := New("bogus"); err == nil {
		t.Fatalf("bogus driver was accepted")
	}

	for _, name := range ci.GetDrivers() {
		if name == "error" {
			t.Fatalf("internal driver %q is visible", name)
		}
	}
}

// TestStuffedInput confirms stuffed input is returned ahead of any
// real read, through the stty driver which otherwise would touch
// the terminal.
func TestStuffedInput(t *testing.T) {
	ci, err := New("stty")
	if err != nil {
		t.Fatalf("failed to create stty driver: %s", err)
	}

	ci.StuffInput("hi")
	if !ci.PendingInput() {
		t.Fatalf("stuffed input not pending")
	}

	for _, want := range []uint8{'h', 'i'} {
		got, err := ci.BlockForCharacter()
		if err != nil {
			t.Fatalf("failed to read stuffed input: %s", err)
		}
		if got != want {
			t.Fatalf("read %02X, want %02X", got, want)
		}
	}
}

// TestHostTranslation confirms DEL becomes backspace and newline
// becomes carriage return.
func TestHostTranslation(t *testing.T) {
	ci := &ConsoleIn{driver: &scriptInput{keys: []Key{0x7F, 0x0A, 'x'}}}

	for _, want := range []uint8{0x08, 0x0D, 'x'} {
		got, err := ci.BlockForCharacter()
		if err != nil {
			t.Fatalf("failed to read: %s", err)
		}
		if got != want {
			t.Fatalf("read %02X, want %02X", got, want)
		}
	}
}

// TestKeymapExpansion confirms a bound special key expands into its
// queued sequence, and an unbound one is swallowed.
func TestKeymapExpansion(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "# test bindings\nKEY_RIGHT ^KC\nKEY_UP ^E # annotated\n"
	if err := afero.WriteFile(fs, "test.keys", []byte(content), 0644); err != nil {
		t.Fatalf("failed to write keymap: %s", err)
	}

	km, err := NewKeymap(fs, "test.keys", testLogger())
	if err != nil {
		t.Fatalf("failed to load keymap: %s", err)
	}

	ci := &ConsoleIn{
		driver: &scriptInput{keys: []Key{KeyRight, KeyUp, KeyDown, 'z'}},
		keymap: km,
	}

	// KEY_RIGHT expands to ^K C, KEY_UP to ^E, the unbound
	// KEY_DOWN to nothing at all.
	for _, want := range []uint8{0x0B, 'C', 0x05, 'z'} {
		got, err := ci.BlockForCharacter()
		if err != nil {
			t.Fatalf("failed to read: %s", err)
		}
		if got != want {
			t.Fatalf("read %02X, want %02X", got, want)
		}
	}
}

// TestKeymapErrors covers the missing-file and unknown-key cases.
func TestKeymapErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	if _, err := NewKeymap(fs, "absent.keys", testLogger()); err == nil {
		t.Fatalf("missing keymap file was accepted")
	}

	if err := afero.WriteFile(fs, "bad.keys", []byte("KEY_BOGUS ^A\n"), 0644); err != nil {
		t.Fatalf("failed to write keymap: %s", err)
	}
	if _, err := NewKeymap(fs, "bad.keys", testLogger()); err == nil {
		t.Fatalf("unknown key name was accepted")
	}

	// An empty filename is fine, and gives an empty keymap.
	km, err := NewKeymap(fs, "", testLogger())
	if err != nil {
		t.Fatalf("empty filename rejected: %s", err)
	}
	if got := km.Translate('a'); len(got) != 1 || got[0] != 'a' {
		t.Fatalf("plain byte translated to %v", got)
	}
	if got := km.Translate(KeyHome); got != nil {
		t.Fatalf("unbound special key translated to %v", got)
	}
}

// TestErrorDriver confirms the error driver reports failures up
// through the wrapper.
func TestErrorDriver(t *testing.T) {
	ci, err := New(ErrorInputName)
	if err != nil {
		t.Fatalf("failed to create error driver: %s", err)
	}
	if !ci.PendingInput() {
		t.Fatalf("error driver claims no pending input")
	}
	if _, err := ci.BlockForCharacter(); err == nil {
		t.Fatalf("error driver returned input")
	}
}

// TestFileDriver replays scripted input, including the exhaustion
// behaviour.
func TestFileDriver(t *testing.T) {
	ci, err := New("file")
	if err != nil {
		t.Fatalf("failed to create file driver: %s", err)
	}

	ci.StuffInput("ab")
	for _, want := range []uint8{'a', 'b', 0x03} {
		got, err := ci.BlockForCharacter()
		if err != nil {
			t.Fatalf("failed to read: %s", err)
		}
		if got != want {
			t.Fatalf("read %02X, want %02X", got, want)
		}
	}
}
