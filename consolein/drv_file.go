// drv_file is a console input-driver which replays the content of a
// file as keyboard input, for scripted and automated runs.
//
// Some guest programs poll the console and discard whatever they
// find, the way a compiler checks for an abort keypress while
// linking, so replaying at full speed loses input at random.  A
// short pause before each poll avoids that, and a "#" in the input
// stands for a full second of idle time.
package consolein

import (
	"os"
	"time"
)

// FileInput is an input-driver that returns fake console input by
// reading the content of a file.
type FileInput struct {

	// offset shows how far through the content we are.
	offset int

	// content holds the replayed input.
	content []byte

	// delayUntil marks the end of a pause during which we pretend
	// no input is waiting.
	delayUntil time.Time
}

// Setup reads the file named by the $INPUT_FILE environmental
// variable, defaulting to "input.txt", and saves the content away
// as our source of input.
func (fi *FileInput) Setup() error {

	fileName := os.Getenv("INPUT_FILE")
	if fileName == "" {
		fileName = "input.txt"
	}

	dat, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}

	fi.offset = 0
	fi.content = dat
	fi.delayUntil = time.Now()
	return nil
}

// TearDown is a NOP.
func (fi *FileInput) TearDown() error {
	return nil
}

// PendingInput reports whether replayed input remains.  During a
// pause we claim there is none, whatever the truth.
func (fi *FileInput) PendingInput() bool {

	time.Sleep(15 * time.Millisecond)

	if time.Now().After(fi.delayUntil) {
		return fi.offset < len(fi.content)
	}

	return false
}

// StuffInput replaces the replayed content outright.
func (fi *FileInput) StuffInput(input string) {
	fi.content = []byte(input)
	fi.offset = 0
}

// BlockForKey returns the next byte of the replayed input.  A "#"
// is not returned; it starts a pause instead.  Once the content is
// exhausted every further read is a ^C, which persuades most guests
// to stop.
func (fi *FileInput) BlockForKey() (Key, error) {
	for fi.offset < len(fi.content) {
		x := fi.content[fi.offset]
		fi.offset++

		if x == '#' {
			fi.delayUntil = time.Now().Add(time.Second)
			continue
		}
		return Key(x), nil
	}

	return Key(0x03), nil
}

// GetName returns the name of this driver, "file".
func (fi *FileInput) GetName() string {
	return "file"
}

// init registers our driver, by name.
func init() {
	Register("file", func() ConsoleInput {
		return new(FileInput)
	})
}
