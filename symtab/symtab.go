// Package symtab maintains a table of named addresses, loaded from
// assembler label files, which the tracing code uses to show where in
// the BDOS or BIOS the program counter currently is.
//
// Each symbol lives in a namespace, so that a BDOS label and a BIOS
// label with the same name stay distinguishable.  Addresses are
// described as the closest symbol at or below them plus an offset,
// e.g. "BDOS:FUNC5+0012".
package symtab

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Entry is a single named address.
type Entry struct {
	Addr      uint16
	Namespace string
	Label     string
}

// Table holds the loaded symbols, kept sorted by address.
type Table struct {
	entries []Entry
	logger  *slog.Logger
}

// New returns an empty symbol table.
func New(logger *slog.Logger) *Table {
	return &Table{logger: logger}
}

// Add inserts a single symbol.
func (t *Table) Add(namespace string, addr uint16, label string) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Addr > addr
	})
	e := Entry{Addr: addr, Namespace: namespace, Label: label}
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
}

// Empty reports whether the table has no symbols at all.
func (t *Table) Empty() bool {
	return len(t.entries) == 0
}

// Load reads an assembler label file into the given namespace.  Each
// useful line looks like "FOO: equ $1234"; the label is whatever sits
// left of the colon and the value is the hex string after the dollar.
// Lines which don't match that shape are skipped.
func (t *Table) Load(filename string, namespace string) error {
	if filename == "" {
		return nil
	}

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open label file %s: %w", filename, err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()

		colon := strings.Index(line, ":")
		dollar := strings.LastIndex(line, "$")
		if colon < 0 || dollar < 0 || colon >= dollar {
			continue
		}

		label := line[:colon]
		value, err := strconv.ParseUint(strings.TrimSpace(line[dollar+1:]), 16, 16)
		if err != nil || label == "" {
			continue
		}

		t.Add(namespace, uint16(value), label)
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read label file %s: %w", filename, err)
	}

	t.logger.Debug("loaded symbols",
		slog.String("file", filename),
		slog.String("namespace", namespace),
		slog.Int("count", count))
	return nil
}

// Describe returns the given address in terms of the closest symbol at
// or below it, or "?" when nothing is known.
func (t *Table) Describe(addr uint16) string {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Addr > addr
	})
	if i == 0 {
		return "?"
	}
	e := t.entries[i-1]
	return fmt.Sprintf("%s:%s+%04X", e.Namespace, e.Label, addr-e.Addr)
}

// expressionRegexp splits "LABEL+1F" style strings into a base, an
// optional operator and an optional hex offset.
var expressionRegexp = regexp.MustCompile(`^([A-Za-z0-9]+)(?:([+-])([A-Fa-f0-9]+))?$`)

// Evaluate resolves an address expression such as "START", "0100" or
// "BDOS+1F".  Both the base and the offset may be a known label or a
// hex number, though an offset label must be spelled with hex digits
// only, since anything else fails to parse.  This is nowhere near a full expression parser, but it
// covers what people actually type at the debugger.
func (t *Table) Evaluate(s string) (uint16, bool) {
	m := expressionRegexp.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		t.logger.Debug("cannot parse address expression", slog.String("input", s))
		return 0, false
	}

	base, ok := t.resolve(m[1])
	if !ok {
		t.logger.Debug("cannot resolve base", slog.String("input", s))
		return 0, false
	}

	if m[2] == "" {
		return base, true
	}

	offset, ok := t.resolve(m[3])
	if !ok {
		t.logger.Debug("cannot resolve offset", slog.String("input", s))
		return 0, false
	}

	if m[2] == "-" {
		return base - offset, true
	}
	return base + offset, true
}

// Dump returns the table contents, one formatted line per symbol.
func (t *Table) Dump() []string {
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, fmt.Sprintf("%04X %s:%s", e.Addr, e.Namespace, e.Label))
	}
	return out
}

// resolve turns a label or hex string into an address.  Labels win
// over hex, so a label named "BEEF" shadows the number.
func (t *Table) resolve(s string) (uint16, bool) {
	upper := strings.ToUpper(s)
	for _, e := range t.entries {
		if strings.ToUpper(e.Label) == upper {
			return e.Addr, true
		}
	}

	value, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(value), true
}
