// A keymap rebinds the special keys, arrows and paging and so on,
// to the control sequences a guest program understands.  WordStar
// wants ^E/^X/^S/^D for cursor movement, for example, and nobody
// remembers those.

package consolein

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
)

// keyNames maps the names usable in a keymap file to our key codes.
var keyNames = map[string]Key{
	"KEY_LEFT":  KeyLeft,
	"KEY_RIGHT": KeyRight,
	"KEY_UP":    KeyUp,
	"KEY_DOWN":  KeyDown,
	"KEY_NPAGE": KeyNPage,
	"KEY_PPAGE": KeyPPage,
	"KEY_HOME":  KeyHome,
	"KEY_END":   KeyEnd,
}

// Keymap holds the loaded bindings.
type Keymap struct {
	logger   *slog.Logger
	bindings map[Key][]uint8
}

// parseSequence decodes a binding such as "^KC" into its bytes, a
// control-K followed by a C.
func parseSequence(sequence string) []uint8 {
	var result []uint8
	for i := 0; i < len(sequence); i++ {
		c := sequence[i]
		if c == '^' && i < len(sequence)-1 {
			i++
			c = sequence[i] - 'A' + 1
		}
		result = append(result, c)
	}
	return result
}

// NewKeymap loads a keymap file.  Each line binds one key, in the
// form "KEY_RIGHT ^KC", and a "#" starts a comment.  An empty
// filename gives an empty keymap, but a named file must exist and
// must only mention keys we know.
func NewKeymap(fs afero.Fs, filename string, logger *slog.Logger) (*Keymap, error) {
	km := &Keymap{
		logger:   logger,
		bindings: make(map[Key][]uint8),
	}

	if filename == "" {
		return km, nil
	}

	file, err := fs.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open keymap file %s: %w", filename, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if hash := strings.IndexByte(line, '#'); hash >= 0 {
			line = line[:hash]
		}

		fields := strings.Fields(strings.ToUpper(line))
		if len(fields) != 2 {
			continue
		}

		key, ok := keyNames[fields[0]]
		if !ok {
			return nil, fmt.Errorf("unknown key %s in %s", fields[0], filename)
		}
		km.bindings[key] = parseSequence(fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keymap file %s: %w", filename, err)
	}

	return km, nil
}

// Translate returns the guest bytes bound to the given key.  A plain
// byte passes through unchanged; a special key without a binding is
// worth nothing, and is noted in the log since the user probably
// expected it to do something.
func (km *Keymap) Translate(key Key) []uint8 {
	if km != nil {
		if seq, ok := km.bindings[key]; ok {
			return append([]uint8(nil), seq...)
		}
	}

	if key >= 0x100 {
		if km != nil && km.logger != nil {
			km.logger.Debug("unmapped special key",
				slog.Int("key", int(key)))
		}
		return nil
	}

	return []uint8{uint8(key)}
}
