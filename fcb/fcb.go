// Package fcb reads, writes, and describes the 36-byte file control
// block structure through which CP/M programs name files.
//
// A drive code of zero means the default drive; one means drive A.
// Names and types are space-padded upper-case, and a "*" on the
// command line expands to the matching run of "?" wildcards.
package fcb

import (
	"fmt"
	"strings"
)

// Size is the length of a file control block in RAM.
const Size = 36

// FCB is a parsed file control block.
type FCB struct {
	// Drive holds the drive code, zero meaning the default drive.
	Drive uint8

	// Name holds the space-padded name of the file.
	Name [8]uint8

	// Type holds the space-padded suffix.
	Type [3]uint8

	// Ex is the current extent number.
	Ex uint8

	S1 uint8
	S2 uint8

	// RC is the record count of the current extent.
	RC uint8

	// Al is the allocation area.  A rename operation stores its
	// second filename here, starting at the second byte.
	Al [16]uint8

	// Cr is the current record within the extent.
	Cr uint8

	// R0, R1 and R2 form the random record number.
	R0 uint8
	R1 uint8
	R2 uint8
}

// GetName returns the name component of the FCB, unpadded.
func (f *FCB) GetName() string {
	return componentString(f.Name[:])
}

// GetType returns the type/extension component of the FCB, unpadded.
func (f *FCB) GetType() string {
	return componentString(f.Type[:])
}

// componentString strips the padding from a name or type field.
func componentString(field []uint8) string {
	var sb strings.Builder
	for _, c := range field {
		if c != 0x00 {
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}

// AsBytes returns the FCB in the RAM layout.
func (f *FCB) AsBytes() []uint8 {
	r := make([]uint8, 0, Size)

	r = append(r, f.Drive)
	r = append(r, f.Name[:]...)
	r = append(r, f.Type[:]...)
	r = append(r, f.Ex, f.S1, f.S2, f.RC)
	r = append(r, f.Al[:]...)
	r = append(r, f.Cr, f.R0, f.R1, f.R2)

	return r
}

// SetSecondName stores a second filename in the allocation area, the
// way a rename call expects to find its destination.  The drive code
// of the second name is ignored.
func (f *FCB) SetSecondName(str string) {
	_, name, ext := splitFilename(str)
	copy(f.Al[1:9], name)
	copy(f.Al[9:12], ext)
}

// Describe returns a loggable summary of the FCB.  When both is set
// the second filename from the allocation area is shown too, which is
// how a rename call is laid out.
func (f *FCB) Describe(both bool) string {
	first := f.hostName()

	numbers := fmt.Sprintf("EX=%d RC=%d CR=%d R=%d/%d/%d",
		f.Ex, f.RC, f.Cr, f.R0, f.R1, f.R2)

	if !both {
		return fmt.Sprintf("%q %s", first, numbers)
	}

	second := componentString(f.Al[1:9]) + "." + componentString(f.Al[9:12])
	return fmt.Sprintf("%q,%q %s", first, second, numbers)
}

// hostName renders the first filename with its drive prefix, if any.
func (f *FCB) hostName() string {
	var sb strings.Builder
	if f.Drive != 0 {
		sb.WriteByte('A' + f.Drive - 1)
		sb.WriteByte(':')
	}
	sb.WriteString(f.GetName())
	sb.WriteByte('.')
	sb.WriteString(f.GetType())
	return sb.String()
}

// splitFilename breaks a host-style filename into a drive code and
// the padded name and extension fields.
func splitFilename(str string) (uint8, []uint8, []uint8) {
	str = strings.ToUpper(str)

	drive := uint8(0)
	if len(str) > 2 && str[1] == ':' {
		drive = str[0] - 'A' + 1
		str = str[2:]
	}

	name, ext, _ := strings.Cut(str, ".")
	return drive, padComponent(name, 8), padComponent(ext, 3)
}

// padComponent space-pads a name or extension to its field width,
// expanding a "*" into the matching run of "?" wildcards.
func padComponent(s string, width int) []uint8 {
	out := make([]uint8, width)
	for i := range out {
		out[i] = ' '
	}
	for i := 0; i < len(s) && i < width; i++ {
		if s[i] == '*' {
			for ; i < width; i++ {
				out[i] = '?'
			}
			break
		}
		out[i] = s[i]
	}
	return out
}

// SetFirstName fills in the drive, name and type fields from a
// command-line style filename.
func (f *FCB) SetFirstName(str string) {
	drive, name, ext := splitFilename(str)
	f.Drive = drive
	copy(f.Name[:], name)
	copy(f.Type[:], ext)
}

// FromString builds an FCB from a command-line style filename, such
// as "B:FOO.TXT" or "*.COM".
func FromString(str string) FCB {
	tmp := FCB{}
	tmp.SetFirstName(str)
	return tmp
}

// Default returns the FCB a freshly started program observes at
// 0x005C when given no arguments.  The odd record count and random
// record bytes match what a real system leaves behind.
func Default() FCB {
	f := FCB{
		RC: 0x02,
		R0: 0xFB,
		R1: 0xB5,
		R2: 0xFB,
	}
	for i := range f.Name {
		f.Name[i] = ' '
	}
	for i := range f.Type {
		f.Type[i] = ' '
	}
	for i := 1; i <= 11; i++ {
		f.Al[i] = ' '
	}
	return f
}

// FromBytes builds an FCB from its RAM layout.
func FromBytes(bytes []uint8) FCB {
	tmp := FCB{}

	tmp.Drive = bytes[0]
	copy(tmp.Name[:], bytes[1:9])
	copy(tmp.Type[:], bytes[9:12])
	tmp.Ex = bytes[12]
	tmp.S1 = bytes[13]
	tmp.S2 = bytes[14]
	tmp.RC = bytes[15]
	copy(tmp.Al[:], bytes[16:32])
	tmp.Cr = bytes[32]
	tmp.R0 = bytes[33]
	tmp.R1 = bytes[34]
	tmp.R2 = bytes[35]

	return tmp
}
