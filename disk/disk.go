// Package disk presents the host filesystem as a CP/M drive.
//
// The guest BDOS believes it is talking to a real disk with tracks
// and sectors.  Tracks zero and one hold the directory, which is
// synthesised on demand from the files in the mapped directory, and
// everything beyond is file data, located by walking the block
// numbers we handed out in the directory entries.
//
// Writes land in a sector cache.  When the BDOS rewrites a directory
// sector we diff it against our own entries to work out whether a
// file was created, grown, renamed or deleted, and the result is
// pushed back to the host filesystem by Flush at shutdown.
//
// All file access goes through an afero filesystem, so tests can run
// against an in-memory copy.
package disk

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Flag sets for the two ways we push data back to the host: rewriting
// a whole file, and patching sectors into an existing one.
const (
	writeFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	patchFlags = os.O_RDWR
)

const (
	// SectorSize is the CP/M sector size in bytes.
	SectorSize = 0x0080

	// BSH is the block-shift of the drive: sixteen sectors per block.
	BSH = 0x04

	// BLM is the matching block mask.
	BLM = 0x0F

	entrySize       = 0x0020
	blockSize       = 0x0800
	sectorsPerBlock = blockSize / SectorSize
	entriesPerSector = SectorSize / entrySize

	// extentSize is how many bytes one directory entry can describe.
	extentSize = SectorSize * 0x0080

	// firstBlock is where block numbering starts; lower numbers are
	// reserved for the directory itself.
	firstBlock = 0x0010
)

// Sector is the unit of transfer between the BIOS and the drive.
type Sector [SectorSize]uint8

// location identifies one sector on the drive.
type location struct {
	track  uint16
	sector uint16
}

// cachedSector is a sector we have handed to the guest, or that the
// guest has written; dirty ones need flushing.
type cachedSector struct {
	data  Sector
	dirty bool
}

// entry is one CP/M directory entry.  A file bigger than sixteen
// kilobytes has several, one per extent.
type entry struct {
	rawName    string // host name, e.g. "file.txt"
	name       string // directory form, e.g. "FILE    TXT"
	exists     bool
	size       int64  // whole file, not just this extent
	sectors    uint16 // sectors in this extent
	extent     uint16
	firstBlock uint16 // first block of the whole file
	blocks     []uint16
	modified   bool
}

// Drive maps a host directory to a CP/M disk.
type Drive struct {
	fs      afero.Fs
	entries []*entry
	cache   map[location]*cachedSector

	// nextBlock is the allocation high-water mark.
	nextBlock uint16

	// exclude lists host filenames which must not appear on the
	// drive, such as our own logfile.
	exclude map[string]struct{}

	logger *slog.Logger
}

// New builds a drive from the files in the root of the given
// filesystem.  Any filename listed in exclude is left off the disk.
func New(fs afero.Fs, logger *slog.Logger, exclude ...string) (*Drive, error) {
	d := &Drive{
		fs:        fs,
		cache:     make(map[location]*cachedSector),
		nextBlock: firstBlock,
		exclude:   make(map[string]struct{}),
		logger:    logger,
	}
	for _, name := range exclude {
		d.exclude[name] = struct{}{}
	}

	if err := d.buildDirectory(); err != nil {
		return nil, err
	}
	return d, nil
}

// Size returns the number of directory entries on the drive.
func (d *Drive) Size() int {
	return len(d.entries)
}

// Read copies the requested sector into the buffer.
func (d *Drive) Read(buffer *Sector, track uint16, sector uint16) {
	loc := location{track, sector}
	if cached, ok := d.cache[loc]; ok {
		*buffer = cached.data
		return
	}

	if track <= 1 {
		d.createDirectoryEntries(buffer, track, sector)
	} else {
		d.readFileData(buffer, track, sector)
	}

	// CP/M disks are small enough that caching every sector we have
	// ever touched is fine.
	d.cache[loc] = &cachedSector{data: *buffer}
}

// Write stores the buffer as the given sector.  Directory sectors are
// also diffed against our entries so we notice what the BDOS is up to.
func (d *Drive) Write(buffer *Sector, track uint16, sector uint16) {
	if track <= 1 {
		d.checkForDirectoryChanges(buffer)
	}

	loc := location{track, sector}
	if cached, ok := d.cache[loc]; ok {
		cached.data = *buffer
		cached.dirty = true
		return
	}
	d.cache[loc] = &cachedSector{data: *buffer, dirty: true}
}

// buildDirectory scans the filesystem root and creates directory
// entries, several per file when the file spans extents.
func (d *Drive) buildDirectory() error {
	infos, err := afero.ReadDir(d.fs, ".")
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}

	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if _, skip := d.exclude[info.Name()]; skip {
			continue
		}

		bytes := info.Size()
		numEntries := (bytes + extentSize - 1) / extentSize
		if numEntries == 0 {
			numEntries = 1
		}
		first := d.nextBlock
		remaining := uint16((bytes + SectorSize - 1) / SectorSize)

		for i := int64(0); i < numEntries; i++ {
			sectors := remaining
			if sectors > 0x0080 {
				sectors = 0x0080
			}
			e := &entry{
				rawName:    info.Name(),
				name:       hostToName(info.Name()),
				exists:     true,
				size:       bytes,
				sectors:    sectors,
				extent:     uint16(i),
				firstBlock: first,
			}
			numBlocks := (int(sectors) + sectorsPerBlock - 1) / sectorsPerBlock
			for j := 0; j < numBlocks; j++ {
				e.blocks = append(e.blocks, d.nextBlock)
				d.nextBlock++
			}
			remaining -= sectors
			d.entries = append(d.entries, e)
		}
	}

	d.logger.Debug("built drive directory", slog.Int("entries", len(d.entries)))
	for _, e := range d.entries {
		d.logger.Debug("directory entry",
			slog.String("name", e.rawName),
			slog.Int64("size", e.size),
			slog.Int("sectors", int(e.sectors)),
			slog.Int("extent", int(e.extent)),
			slog.Int("firstBlock", int(e.firstBlock)))
	}
	return nil
}

// createDirectoryEntries synthesises the four directory entries which
// live in the given directory-track sector.
func (d *Drive) createDirectoryEntries(buffer *Sector, track uint16, sector uint16) {
	index := int(track*SectorSize+sector) * entriesPerSector

	for i := 0; i < entriesPerSector; i++ {
		d.formatDirectoryEntry(buffer[i*entrySize:(i+1)*entrySize], index+i)
	}
}

// formatDirectoryEntry fills in the nth directory entry; out of range
// values become inactive E5 entries.
func (d *Drive) formatDirectoryEntry(base []uint8, n int) {
	if n >= len(d.entries) {
		for i := range base {
			base[i] = 0xE5
		}
		return
	}

	e := d.entries[n]
	for i := range base {
		base[i] = 0x00
	}

	// Byte zero is the user code, or E5 for a deleted entry.  Only
	// user zero is populated.
	if e.exists {
		base[0x00] = 0x00
	} else {
		base[0x00] = 0xE5
	}

	copy(base[0x01:0x0C], e.name)

	base[0x0C] = uint8(e.extent & 0x1F)      // EX
	base[0x0D] = 0x00                        // S1, reserved
	base[0x0E] = uint8((e.extent >> 5) & 0xFF) // S2
	base[0x0F] = uint8(e.sectors)            // RC, record count

	// The disk map: eight sixteen-bit block numbers.
	for i, block := range e.blocks {
		base[0x10+i*2+0] = uint8(block)
		base[0x10+i*2+1] = uint8(block >> 8)
	}
}

// readFileData locates the file owning the requested sector and reads
// the matching chunk of it.
func (d *Drive) readFileData(buffer *Sector, track uint16, sector uint16) {
	block, offset := trackSectorToBlock(track, sector)

	for _, e := range d.entries {
		if !ownsBlock(e, block) {
			continue
		}

		// The chunk index counts from the first block of the whole
		// file, not of this extent.
		chunk := int64(block-e.firstBlock)<<BSH + int64(offset)

		file, err := d.fs.Open(e.rawName)
		if err != nil {
			d.logger.Error("failed to open file for sector read",
				slog.String("name", e.rawName),
				slog.String("error", err.Error()))
			return
		}
		defer file.Close()

		if _, err := file.Seek(chunk*SectorSize, io.SeekStart); err != nil {
			d.logger.Error("failed to seek for sector read",
				slog.String("name", e.rawName),
				slog.String("error", err.Error()))
			return
		}

		// A short read at the end of a file is normal; the tail of
		// the buffer keeps its zeroes.
		for i := range buffer {
			buffer[i] = 0
		}
		_, _ = file.Read(buffer[:])

		d.logger.Debug("read chunk",
			slog.String("name", e.rawName),
			slog.Int64("chunk", chunk))
		return
	}

	d.logger.Warn("no file for sector",
		slog.Int("track", int(track)),
		slog.Int("sector", int(sector)))
}

// checkForDirectoryChanges diffs a directory sector the BDOS has just
// written against our entries, to spot creations, modifications,
// renames and deletions.
func (d *Drive) checkForDirectoryChanges(buffer *Sector) {
	for i := 0; i < entriesPerSector; i++ {
		pending := entryFromBytes(buffer[i*entrySize : (i+1)*entrySize])

		if !pending.exists {
			// Possibly a deletion; find the live entry it refers to.
			for _, e := range d.entries {
				if e.exists && e.name == pending.name &&
					e.extent == pending.extent && blocksEqual(e.blocks, pending.blocks) {
					d.logger.Debug("directory change: deletion",
						slog.String("name", e.rawName))
					e.exists = false
					e.modified = true
					break
				}
			}
			continue
		}

		found := false
		for _, e := range d.entries {
			switch {
			case e.name == pending.name && e.extent == pending.extent &&
				blocksEqual(e.blocks, pending.blocks):
				// Nothing changed.
				found = true

			case e.name == pending.name && e.extent == pending.extent:
				d.logger.Debug("directory change: content modification",
					slog.String("name", e.rawName))
				e.sectors = pending.sectors
				e.blocks = pending.blocks
				e.size = int64(e.sectors) * SectorSize
				e.firstBlock = d.nextBlock
				d.nextBlock++
				e.modified = true
				found = true

			case e.exists && e.name != pending.name && e.extent == pending.extent &&
				blocksEqual(e.blocks, pending.blocks) && len(pending.blocks) > 0:
				d.logger.Debug("directory change: rename",
					slog.String("from", e.rawName),
					slog.String("to", pending.rawName))
				e.name = pending.name
				e.rawName = pending.rawName
				e.modified = true
				found = true
			}
			if found {
				break
			}
		}

		if !found {
			d.logger.Debug("directory change: creation",
				slog.String("name", pending.rawName))
			d.entries = append(d.entries, pending)
		}
	}
}

// Flush writes every modified file and dirty sector back to the host
// filesystem.  Call it once, when emulation has finished.
func (d *Drive) Flush() error {
	if err := d.flushFileChanges(); err != nil {
		return err
	}
	return d.flushDirtySectors()
}

// flushFileChanges handles whole-file operations: created or grown
// files are written out from the sector cache, deleted ones removed.
func (d *Drive) flushFileChanges() error {
	for _, e := range d.entries {
		if !e.modified {
			continue
		}

		if !e.exists {
			// A deletion, unless a live entry still claims the same
			// host file, which happens when a file was rewritten via
			// delete-then-create.
			stillLive := false
			for _, f := range d.entries {
				if f.exists && f.rawName == e.rawName {
					stillLive = true
					break
				}
			}
			if stillLive {
				d.logger.Debug("not erasing, a live entry remains",
					slog.String("name", e.rawName))
				continue
			}
			d.logger.Debug("erasing", slog.String("name", e.rawName))
			_ = d.fs.Remove(e.rawName)
			continue
		}

		if err := d.writeEntryToHost(e); err != nil {
			return err
		}
	}
	return nil
}

// writeEntryToHost writes one modified extent out from the cache.
func (d *Drive) writeEntryToHost(e *entry) error {
	d.logger.Debug("flushing to host", slog.String("name", e.rawName))

	file, err := d.fs.OpenFile(e.rawName, writeFlags, 0644)
	if err != nil {
		return fmt.Errorf("failed to flush %s: %w", e.rawName, err)
	}
	defer file.Close()

	remaining := e.sectors
	for _, block := range e.blocks {
		count := uint16(sectorsPerBlock)
		if remaining < count {
			count = remaining
		}
		for i := uint16(0); i < count; i++ {
			track, sector := blockToTrackSector(block, i)
			cached, ok := d.cache[location{track, sector}]
			if !ok {
				d.logger.Warn("file data missing from cache",
					slog.String("name", e.rawName),
					slog.Int("block", int(block)))
				continue
			}
			if _, err := file.Write(cached.data[:]); err != nil {
				return fmt.Errorf("failed to flush %s: %w", e.rawName, err)
			}
			cached.dirty = false
		}
		remaining -= count
	}
	return nil
}

// flushDirtySectors takes care of dirty data sectors left in the
// cache, typically the result of random writes into existing files.
func (d *Drive) flushDirtySectors() error {
	// Map iteration order is random; sort for deterministic flushes.
	locs := make([]location, 0, len(d.cache))
	for loc, cached := range d.cache {
		if cached.dirty && loc.track > 1 {
			locs = append(locs, loc)
		}
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].track != locs[j].track {
			return locs[i].track < locs[j].track
		}
		return locs[i].sector < locs[j].sector
	})

	for _, loc := range locs {
		block, offset := trackSectorToBlock(loc.track, loc.sector)
		for _, e := range d.entries {
			if !e.exists || !ownsBlock(e, block) {
				continue
			}
			if err := d.patchFile(d.cache[loc], block, offset, e); err != nil {
				d.logger.Error("failed to patch file",
					slog.String("name", e.rawName),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// patchFile writes one sector into an existing host file in place.
func (d *Drive) patchFile(cached *cachedSector, block uint16, offset uint8, e *entry) error {
	byteOffset := (int64(block-e.firstBlock)<<BSH + int64(offset)) * SectorSize

	file, err := d.fs.OpenFile(e.rawName, patchFlags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", e.rawName, err)
	}
	defer file.Close()

	if _, err := file.Seek(byteOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek in %s: %w", e.rawName, err)
	}
	if _, err := file.Write(cached.data[:]); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.rawName, err)
	}
	cached.dirty = false
	return nil
}

// entryFromBytes parses a 32-byte directory entry as written by the
// guest BDOS.
func entryFromBytes(raw []uint8) *entry {
	e := &entry{
		exists:   raw[0x00] != 0xE5,
		name:     string(raw[0x01:0x0C]),
		extent:   uint16(raw[0x0C]) | uint16(raw[0x0E])<<5,
		sectors:  uint16(raw[0x0F]),
		modified: true,
	}
	e.rawName = nameToHost(e.name)
	for i := 0; i < 8; i++ {
		block := uint16(raw[0x10+i*2]) | uint16(raw[0x10+i*2+1])<<8
		if block > 0 {
			e.blocks = append(e.blocks, block)
		}
	}
	return e
}

// hostToName converts "foo.txt" to the padded "FOO     TXT" form.
func hostToName(filename string) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	ext = strings.TrimPrefix(ext, ".")

	if len(stem) > 8 {
		stem = stem[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	return fmt.Sprintf("%-8s%-3s", strings.ToUpper(stem), strings.ToUpper(ext))
}

// nameToHost converts "FOO     TXT" back to "foo.txt".
func nameToHost(name string) string {
	stem := strings.TrimRight(name[0:8], " ")
	ext := strings.TrimRight(name[8:11], " ")
	if ext == "" {
		return strings.ToLower(stem)
	}
	return strings.ToLower(stem + "." + ext)
}

// trackSectorToBlock maps a track and sector to the block owning it
// and the sector offset within that block.
func trackSectorToBlock(track uint16, sector uint16) (uint16, uint8) {
	n := track*SectorSize + sector
	return n >> BSH, uint8(n & BLM)
}

// blockToTrackSector maps a block and offset back to a track and
// sector; the offset must stay within the block.
func blockToTrackSector(block uint16, offset uint16) (uint16, uint16) {
	s := block*sectorsPerBlock + offset
	track := s / SectorSize
	return track, s - track*SectorSize
}

// ownsBlock reports whether the entry's disk map contains the block.
func ownsBlock(e *entry, block uint16) bool {
	for _, b := range e.blocks {
		if b == block {
			return true
		}
	}
	return false
}

// blocksEqual compares two disk maps.
func blocksEqual(a []uint16, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
