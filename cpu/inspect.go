package cpu

// GetOpcodesAt returns the four bytes of the instruction starting at
// the given address, skipping over any run of spurious DD and FD
// prefixes first.  The skipped prefix bytes are returned separately so
// a trace line can show them.  A DD or FD byte is spurious when the
// byte after it is not one the prefix modifies, as in front of, say,
// LD B,C; a genuine prefix is kept as the start of the instruction.
//
// Reads go straight to the bus and charge no cycles.
func (c *CPU) GetOpcodesAt(addr uint16) ([4]uint8, []uint8) {
	var skipped []uint8

	for {
		op := c.bus.ReadByte(addr)
		if op != 0xDD && op != 0xFD {
			break
		}
		next := c.bus.ReadByte(addr + 1)
		if prefixable(next) {
			break
		}
		skipped = append(skipped, op)
		addr++
		if len(skipped) >= 4 {
			break
		}
	}

	var out [4]uint8
	for i := range out {
		out[i] = c.bus.ReadByte(addr + uint16(i))
	}
	return out, skipped
}

// prefixable reports whether a DD or FD prefix changes the meaning of
// the given opcode byte, i.e. whether the opcode touches H, L, HL or
// (HL).
func prefixable(op uint8) bool {
	switch op {
	case 0x09, 0x19, 0x29, 0x39: // ADD HL,rp
		return true
	case 0x21, 0x22, 0x23, 0x2A, 0x2B, 0x34, 0x35, 0x36:
		return true
	case 0x24, 0x25, 0x26, 0x2C, 0x2D, 0x2E: // INC/DEC/LD on H and L
		return true
	case 0xCB:
		return true
	case 0xE1, 0xE3, 0xE5, 0xE9, 0xF9:
		return true
	case 0x76: // HALT keeps its meaning under a prefix
		return false
	}

	x := op >> 6
	z := op & 0x07
	y := (op >> 3) & 0x07
	if x == 1 && (y == 4 || y == 5 || y == 6 || z == 4 || z == 5 || z == 6) {
		return true
	}
	if x == 2 && (z == 4 || z == 5 || z == 6) {
		return true
	}
	return false
}
