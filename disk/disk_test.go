package disk

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/spf13/afero"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testDrive builds a drive over an in-memory filesystem populated
// with the given files.
func testDrive(t *testing.T, files map[string][]uint8) (*Drive, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, name, content, 0644); err != nil {
			t.Fatalf("failed to populate filesystem: %s", err)
		}
	}

	d, err := New(fs, testLogger(), "test.log")
	if err != nil {
		t.Fatalf("failed to build drive: %s", err)
	}
	return d, fs
}

// pattern returns n bytes of a recognisable sequence.
func pattern(n int) []uint8 {
	out := make([]uint8, n)
	for i := range out {
		out[i] = uint8(i * 3)
	}
	return out
}

// TestNameConversion round-trips host and directory name forms.
func TestNameConversion(t *testing.T) {
	tests := []struct {
		host string
		name string
	}{
		{"foo.txt", "FOO     TXT"},
		{"a.b", "A       B  "},
		{"noext", "NOEXT      "},
		{"longfilename.text", "LONGFILETEX"},
	}
	for _, tc := range tests {
		if got := hostToName(tc.host); got != tc.name {
			t.Fatalf("hostToName(%q) = %q, want %q", tc.host, got, tc.name)
		}
	}

	if got := nameToHost("FOO     TXT"); got != "foo.txt" {
		t.Fatalf("nameToHost = %q", got)
	}
	if got := nameToHost("NOEXT      "); got != "noext" {
		t.Fatalf("nameToHost = %q", got)
	}
}

// TestBuildDirectory checks how many directory entries small and
// multi-extent files produce.
func TestBuildDirectory(t *testing.T) {
	d, _ := testDrive(t, map[string][]uint8{
		"small.txt": pattern(300),           // 3 sectors, 1 block
		"big.bin":   pattern(0x4000 + 100), // 1 extent + a bit
		"test.log":  pattern(10),           // excluded
	})

	// small.txt is one entry, big.bin needs two.
	if d.Size() != 3 {
		t.Fatalf("Size = %d, want 3", d.Size())
	}
}

// TestDirectorySector reads the first directory sector and checks the
// synthesised entry bytes.
func TestDirectorySector(t *testing.T) {
	d, _ := testDrive(t, map[string][]uint8{
		"hello.txt": pattern(300),
	})

	var buffer Sector
	d.Read(&buffer, 0, 0)

	// First entry: live, user zero.
	if buffer[0x00] != 0x00 {
		t.Fatalf("user byte = %02X", buffer[0x00])
	}
	if got := string(buffer[0x01:0x0C]); got != "HELLO   TXT" {
		t.Fatalf("name = %q", got)
	}
	if buffer[0x0F] != 3 {
		t.Fatalf("record count = %d", buffer[0x0F])
	}
	if buffer[0x10] != 0x10 || buffer[0x11] != 0x00 {
		t.Fatalf("first block = %02X%02X", buffer[0x11], buffer[0x10])
	}

	// Second entry is unused.
	if buffer[entrySize] != 0xE5 {
		t.Fatalf("unused entry marker = %02X", buffer[entrySize])
	}
}

// TestReadFileData locates file content through the block map.
func TestReadFileData(t *testing.T) {
	content := pattern(300)
	d, _ := testDrive(t, map[string][]uint8{
		"hello.txt": content,
	})

	// Block 0x10 starts at sector 0x10*16 = 256, i.e. track 2
	// sector 0.
	var buffer Sector
	d.Read(&buffer, 2, 0)
	if !bytes.Equal(buffer[:], content[:SectorSize]) {
		t.Fatalf("first sector content wrong")
	}

	d.Read(&buffer, 2, 2)
	// The file only has 300 bytes; the third sector is the leftover
	// 44 bytes followed by zeroes.
	if !bytes.Equal(buffer[:44], content[256:300]) {
		t.Fatalf("partial sector content wrong")
	}
	for _, b := range buffer[44:] {
		if b != 0 {
			t.Fatalf("partial sector not zero padded")
		}
	}
}

// TestWriteReadBack confirms written sectors come back from the cache.
func TestWriteReadBack(t *testing.T) {
	d, _ := testDrive(t, map[string][]uint8{})

	var in Sector
	copy(in[:], pattern(SectorSize))
	d.Write(&in, 5, 3)

	var out Sector
	d.Read(&out, 5, 3)
	if in != out {
		t.Fatalf("sector did not round-trip through the cache")
	}
}

// directoryEntryBytes builds a raw 32-byte entry the way the guest
// BDOS would.
func directoryEntryBytes(user uint8, name string, extent uint8, rc uint8, blocks []uint16) []uint8 {
	out := make([]uint8, entrySize)
	out[0x00] = user
	copy(out[0x01:0x0C], name)
	out[0x0C] = extent
	out[0x0F] = rc
	for i, b := range blocks {
		out[0x10+i*2] = uint8(b)
		out[0x10+i*2+1] = uint8(b >> 8)
	}
	return out
}

// TestFileCreation walks the create-write-flush path and checks the
// file appears on the host filesystem.
func TestFileCreation(t *testing.T) {
	d, fs := testDrive(t, map[string][]uint8{})

	// The BDOS writes a directory sector holding the new entry, with
	// the unused slots inactive.
	var dir Sector
	for i := range dir {
		dir[i] = 0xE5
	}
	copy(dir[0:entrySize], directoryEntryBytes(0x00, "NEW     TXT", 0, 2, []uint16{0x20}))
	d.Write(&dir, 0, 0)

	// Then it writes the two data sectors of block 0x20, which
	// starts at sector 0x200, i.e. track 4.
	var data Sector
	copy(data[:], pattern(SectorSize))
	d.Write(&data, 4, 0)
	for i := range data {
		data[i] = 0xAA
	}
	d.Write(&data, 4, 1)

	if err := d.Flush(); err != nil {
		t.Fatalf("flush failed: %s", err)
	}

	content, err := afero.ReadFile(fs, "new.txt")
	if err != nil {
		t.Fatalf("created file missing: %s", err)
	}
	if len(content) != 2*SectorSize {
		t.Fatalf("created file has %d bytes", len(content))
	}
	if !bytes.Equal(content[:SectorSize], pattern(SectorSize)) {
		t.Fatalf("first sector content wrong")
	}
	if content[SectorSize] != 0xAA {
		t.Fatalf("second sector content wrong")
	}
}

// TestFileDeletion confirms an E5-marked rewrite of an entry removes
// the host file at flush time.
func TestFileDeletion(t *testing.T) {
	d, fs := testDrive(t, map[string][]uint8{
		"hello.txt": pattern(100),
	})

	var dir Sector
	for i := range dir {
		dir[i] = 0xE5
	}
	copy(dir[0:entrySize], directoryEntryBytes(0xE5, "HELLO   TXT", 0, 1, []uint16{0x10}))
	d.Write(&dir, 0, 0)

	if err := d.Flush(); err != nil {
		t.Fatalf("flush failed: %s", err)
	}

	if _, err := fs.Stat("hello.txt"); err == nil {
		t.Fatalf("deleted file still present")
	}
}

// TestRename confirms a directory rewrite with a changed name but the
// same block map is treated as a rename.
func TestRename(t *testing.T) {
	d, _ := testDrive(t, map[string][]uint8{
		"old.txt": pattern(100),
	})

	var dir Sector
	for i := range dir {
		dir[i] = 0xE5
	}
	copy(dir[0:entrySize], directoryEntryBytes(0x00, "NEW     TXT", 0, 1, []uint16{0x10}))
	d.Write(&dir, 0, 0)

	// The entry count is unchanged and the entry now answers to the
	// new name.
	if d.Size() != 1 {
		t.Fatalf("Size = %d after rename", d.Size())
	}
	if d.entries[0].rawName != "new.txt" {
		t.Fatalf("rawName = %q after rename", d.entries[0].rawName)
	}
}

// TestPatchExistingFile checks a random write into an existing file
// reaches the host at flush time.
func TestPatchExistingFile(t *testing.T) {
	content := pattern(3 * SectorSize)
	d, fs := testDrive(t, map[string][]uint8{
		"hello.bin": content,
	})

	// Pull the middle sector in, change it, write it back.
	var buffer Sector
	d.Read(&buffer, 2, 1)
	for i := range buffer {
		buffer[i] = 0x42
	}
	d.Write(&buffer, 2, 1)

	if err := d.Flush(); err != nil {
		t.Fatalf("flush failed: %s", err)
	}

	got, err := afero.ReadFile(fs, "hello.bin")
	if err != nil {
		t.Fatalf("file missing: %s", err)
	}
	if !bytes.Equal(got[:SectorSize], content[:SectorSize]) {
		t.Fatalf("first sector should be untouched")
	}
	for _, b := range got[SectorSize : 2*SectorSize] {
		if b != 0x42 {
			t.Fatalf("patched sector wrong")
		}
	}
	if !bytes.Equal(got[2*SectorSize:], content[2*SectorSize:]) {
		t.Fatalf("last sector should be untouched")
	}
}

// TestBlockArithmetic sanity checks the track/sector/block mapping in
// both directions.
func TestBlockArithmetic(t *testing.T) {
	for _, block := range []uint16{0x10, 0x20, 0x123} {
		for offset := uint16(0); offset < sectorsPerBlock; offset++ {
			track, sector := blockToTrackSector(block, offset)
			b, o := trackSectorToBlock(track, sector)
			if b != block || uint16(o) != offset {
				t.Fatalf("mapping %d/%d round-tripped to %d/%d", block, offset, b, o)
			}
		}
	}
}
