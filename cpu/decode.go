package cpu

// The decoder works on the standard opcode fields: x is the top two
// bits, y and z the middle and bottom three, with p/q splitting y.
// DD and FD have already been folded into c.index by the time these
// functions run, so "HL" below silently means IX or IY where the
// prefix says so, and the memory operand grows a displacement.

// memAddr returns the effective address of a load-style (HL) operand,
// fetching the displacement when an index register is active.
func (c *CPU) memAddr() uint16 {
	if c.index == indexHL {
		return c.HL()
	}
	d := int8(c.fetchByte())
	c.elapsed += 5
	return c.idxPair() + uint16(int16(d))
}

// rmwAddr returns the effective address of a read-modify-write (HL)
// operand, which costs one more internal cycle than the load form.
func (c *CPU) rmwAddr() uint16 {
	if c.index == indexHL {
		c.elapsed++
		return c.HL()
	}
	d := int8(c.fetchByte())
	c.elapsed += 6
	return c.idxPair() + uint16(int16(d))
}

// execute runs a single unprefixed (or DD/FD-substituted) opcode.
func (c *CPU) execute(op uint8) {
	x := op >> 6
	y := (op >> 3) & 7
	z := op & 7
	p := y >> 1
	q := y & 1

	switch x {
	case 1:
		if op == 0x76 { // HALT
			if c.max > c.elapsed {
				c.elapsed = c.max
			}
			return
		}
		switch {
		case y == 6:
			addr := c.memAddr()
			c.writeByte(addr, c.getR8Plain(z))
		case z == 6:
			addr := c.memAddr()
			c.setR8Plain(y, c.readByte(addr))
		default:
			c.setR8(y, c.getR8(z))
		}

	case 2:
		if z == 6 {
			c.alu(y, c.readByte(c.memAddr()))
		} else {
			c.alu(y, c.getR8(z))
		}

	case 0:
		c.executeX0(op, y, z, p, q)

	case 3:
		c.executeX3(op, y, z, p, q)
	}
}

// executeX0 handles the x=0 quadrant: relative jumps, sixteen-bit
// loads and arithmetic, eight-bit immediate loads, INC/DEC and the
// accumulator rotate and flag group.
func (c *CPU) executeX0(op uint8, y, z, p, q uint8) {
	switch z {
	case 0:
		switch y {
		case 0: // NOP
		case 1: // EX AF,AF'
			c.A, c.A2 = c.A2, c.A
			c.F, c.F2 = c.F2, c.F
		case 2: // DJNZ d
			d := int8(c.fetchByte())
			c.elapsed++
			c.B--
			if c.B != 0 {
				c.PC += uint16(int16(d))
				c.elapsed += 5
			}
		case 3: // JR d
			d := int8(c.fetchByte())
			c.PC += uint16(int16(d))
			c.elapsed += 5
		default: // JR cc,d
			d := int8(c.fetchByte())
			if c.condition(y - 4) {
				c.PC += uint16(int16(d))
				c.elapsed += 5
			}
		}

	case 1:
		if q == 0 { // LD rp,nn
			c.setRP(p, c.fetchWord())
		} else { // ADD HL,rp
			c.elapsed += 7
			c.setIdxPair(c.addPair(c.idxPair(), c.getRP(p)))
		}

	case 2:
		switch y {
		case 0: // LD (BC),A
			c.writeByte(c.BC(), c.A)
		case 1: // LD A,(BC)
			c.A = c.readByte(c.BC())
		case 2: // LD (DE),A
			c.writeByte(c.DE(), c.A)
		case 3: // LD A,(DE)
			c.A = c.readByte(c.DE())
		case 4: // LD (nn),HL
			c.writeWord(c.fetchWord(), c.idxPair())
		case 5: // LD HL,(nn)
			c.setIdxPair(c.readWord(c.fetchWord()))
		case 6: // LD (nn),A
			c.writeByte(c.fetchWord(), c.A)
		case 7: // LD A,(nn)
			c.A = c.readByte(c.fetchWord())
		}

	case 3: // INC/DEC rp
		rr := c.getRP(p)
		if q == 0 {
			rr++
		} else {
			rr--
		}
		c.setRP(p, rr)
		c.elapsed += 2

	case 4: // INC r
		if y == 6 {
			addr := c.rmwAddr()
			c.writeByte(addr, c.inc(c.readByte(addr)))
		} else {
			c.setR8(y, c.inc(c.getR8(y)))
		}

	case 5: // DEC r
		if y == 6 {
			addr := c.rmwAddr()
			c.writeByte(addr, c.dec(c.readByte(addr)))
		} else {
			c.setR8(y, c.dec(c.getR8(y)))
		}

	case 6: // LD r,n
		if y == 6 {
			if c.index == indexHL {
				addr := c.HL()
				c.writeByte(addr, c.fetchByte())
			} else {
				// The displacement and value are fetched
				// back-to-back, which is cheaper than the
				// usual indexed form.
				d := int8(c.fetchByte())
				c.elapsed += 2
				addr := c.idxPair() + uint16(int16(d))
				c.writeByte(addr, c.fetchByte())
			}
		} else {
			c.setR8(y, c.fetchByte())
		}

	case 7:
		switch y {
		case 0: // RLCA
			carry := c.A >> 7
			c.A = c.A<<1 | carry
			c.F = (c.F & (FlagS | FlagZ | FlagP)) | (c.A & (FlagY | FlagX)) | carry
		case 1: // RRCA
			carry := c.A & 1
			c.A = c.A>>1 | carry<<7
			c.F = (c.F & (FlagS | FlagZ | FlagP)) | (c.A & (FlagY | FlagX)) | carry
		case 2: // RLA
			carry := c.A >> 7
			c.A = c.A<<1 | c.F&FlagC
			c.F = (c.F & (FlagS | FlagZ | FlagP)) | (c.A & (FlagY | FlagX)) | carry
		case 3: // RRA
			carry := c.A & 1
			c.A = c.A>>1 | (c.F&FlagC)<<7
			c.F = (c.F & (FlagS | FlagZ | FlagP)) | (c.A & (FlagY | FlagX)) | carry
		case 4: // DAA
			c.daa()
		case 5: // CPL
			c.A = ^c.A
			c.F = (c.F & (FlagS | FlagZ | FlagP | FlagC)) | FlagH | FlagN | (c.A & (FlagY | FlagX))
		case 6: // SCF
			c.F = (c.F & (FlagS | FlagZ | FlagP)) | FlagC | (c.A & (FlagY | FlagX))
		case 7: // CCF
			h := (c.F & FlagC) << 4
			newC := (c.F & FlagC) ^ FlagC
			c.F = (c.F & (FlagS | FlagZ | FlagP)) | h | newC | (c.A & (FlagY | FlagX))
		}
	}
}

// executeX3 handles the x=3 quadrant: returns, jumps, calls, stack
// operations, immediate ALU forms and RST.
func (c *CPU) executeX3(op uint8, y, z, p, q uint8) {
	switch z {
	case 0: // RET cc
		c.elapsed++
		if c.condition(y) {
			c.PC = c.popWord()
		}

	case 1:
		if q == 0 { // POP rp2
			c.setRP2(p, c.popWord())
		} else {
			switch p {
			case 0: // RET
				c.PC = c.popWord()
			case 1: // EXX
				c.B, c.B2 = c.B2, c.B
				c.C, c.C2 = c.C2, c.C
				c.D, c.D2 = c.D2, c.D
				c.E, c.E2 = c.E2, c.E
				c.H, c.H2 = c.H2, c.H
				c.L, c.L2 = c.L2, c.L
			case 2: // JP (HL)
				c.PC = c.idxPair()
			case 3: // LD SP,HL
				c.SP = c.idxPair()
				c.elapsed += 2
			}
		}

	case 2: // JP cc,nn
		nn := c.fetchWord()
		if c.condition(y) {
			c.PC = nn
		}

	case 3:
		switch y {
		case 0: // JP nn
			c.PC = c.fetchWord()
		case 2: // OUT (n),A
			c.outPort(c.fetchByte(), c.A)
		case 3: // IN A,(n)
			c.A = c.inPort(c.fetchByte())
		case 4: // EX (SP),HL
			t := c.readWord(c.SP)
			c.writeWord(c.SP, c.idxPair())
			c.setIdxPair(t)
			c.elapsed += 3
		case 5: // EX DE,HL
			c.D, c.H = c.H, c.D
			c.E, c.L = c.L, c.E
		case 6: // DI
			c.IFF1 = false
			c.IFF2 = false
			c.max += 4
		case 7: // EI
			c.IFF1 = true
			c.IFF2 = true
			c.max += 4
		}

	case 4: // CALL cc,nn
		nn := c.fetchWord()
		if c.condition(y) {
			c.elapsed++
			c.pushWord(c.PC)
			c.PC = nn
		}

	case 5:
		if q == 0 { // PUSH rp2
			c.elapsed++
			c.pushWord(c.getRP2(p))
		} else if p == 0 { // CALL nn
			nn := c.fetchWord()
			c.elapsed++
			c.pushWord(c.PC)
			c.PC = nn
		}

	case 6: // ALU A,n
		c.alu(y, c.fetchByte())

	case 7: // RST
		c.elapsed++
		c.pushWord(c.PC)
		c.PC = uint16(y) * 8
	}
}

// executeCB handles the CB prefix, including the four-byte DDCB and
// FDCB forms where the displacement precedes the operation byte and
// the result is also copied to a register for the undocumented
// encodings.
func (c *CPU) executeCB() {
	if c.index != indexHL {
		d := int8(c.fetchByte())
		addr := c.idxPair() + uint16(int16(d))
		op := c.readByte(c.PC)
		c.PC++
		c.elapsed += 3

		x := op >> 6
		y := (op >> 3) & 7
		z := op & 7

		switch x {
		case 0:
			v := c.rotShift(y, c.readByte(addr))
			c.writeByte(addr, v)
			if z != 6 {
				c.setR8Plain(z, v)
			}
		case 1:
			c.bit(y, c.readByte(addr), uint8(addr>>8))
		case 2:
			v := c.readByte(addr) &^ (1 << y)
			c.writeByte(addr, v)
			if z != 6 {
				c.setR8Plain(z, v)
			}
		case 3:
			v := c.readByte(addr) | 1<<y
			c.writeByte(addr, v)
			if z != 6 {
				c.setR8Plain(z, v)
			}
		}
		return
	}

	op := c.fetchOpcode()
	x := op >> 6
	y := (op >> 3) & 7
	z := op & 7

	if z == 6 {
		addr := c.HL()
		c.elapsed++
		switch x {
		case 0:
			c.writeByte(addr, c.rotShift(y, c.readByte(addr)))
		case 1:
			c.bit(y, c.readByte(addr), uint8(addr>>8))
		case 2:
			c.writeByte(addr, c.readByte(addr)&^(1<<y))
		case 3:
			c.writeByte(addr, c.readByte(addr)|1<<y)
		}
		return
	}

	switch x {
	case 0:
		c.setR8Plain(z, c.rotShift(y, c.getR8Plain(z)))
	case 1:
		v := c.getR8Plain(z)
		c.bit(y, v, v)
	case 2:
		c.setR8Plain(z, c.getR8Plain(z)&^(1<<y))
	case 3:
		c.setR8Plain(z, c.getR8Plain(z)|1<<y)
	}
}

// imTable maps the ED interrupt-mode selector to a mode.
var imTable = [8]int{IM0, IM0, IM1, IM2, IM0, IM0, IM1, IM2}

// executeED handles the ED prefix: port I/O, sixteen-bit carry
// arithmetic, the interrupt housekeeping group and the block
// instructions.  Undefined ED opcodes execute as NOPs.
func (c *CPU) executeED() {
	op := c.fetchOpcode()
	x := op >> 6
	y := (op >> 3) & 7
	z := op & 7
	p := y >> 1
	q := y & 1

	if x == 1 {
		switch z {
		case 0: // IN r,(C)
			v := c.inPort(c.C)
			c.F = (c.F & FlagC) | szyxpTable[v]
			if y != 6 {
				c.setR8Plain(y, v)
			}
		case 1: // OUT (C),r
			if y == 6 {
				c.outPort(c.C, 0)
			} else {
				c.outPort(c.C, c.getR8Plain(y))
			}
		case 2: // SBC/ADC HL,rp
			c.elapsed += 7
			if q == 0 {
				c.SetHL(c.sbcPair(c.HL(), c.getRP(p)))
			} else {
				c.SetHL(c.adcPair(c.HL(), c.getRP(p)))
			}
		case 3: // LD (nn),rp / LD rp,(nn)
			nn := c.fetchWord()
			if q == 0 {
				c.writeWord(nn, c.getRP(p))
			} else {
				c.setRP(p, c.readWord(nn))
			}
		case 4: // NEG
			t := c.A
			c.A = 0
			c.sub(t, 0)
		case 5: // RETN / RETI
			c.PC = c.popWord()
			c.IFF1 = c.IFF2
		case 6: // IM n
			c.IM = imTable[y]
		case 7:
			switch y {
			case 0: // LD I,A
				c.I = c.A
				c.elapsed++
			case 1: // LD R,A
				c.R = c.A
				c.elapsed++
			case 2: // LD A,I
				c.A = c.I
				c.F = (c.F & FlagC) | szyxTable[c.A]
				if c.IFF2 {
					c.F |= FlagP
				}
				c.elapsed++
			case 3: // LD A,R
				c.A = c.R
				c.F = (c.F & FlagC) | szyxTable[c.A]
				if c.IFF2 {
					c.F |= FlagP
				}
				c.elapsed++
			case 4: // RRD
				addr := c.HL()
				n := c.readByte(addr)
				c.writeByte(addr, n>>4|c.A<<4)
				c.A = c.A&0xF0 | n&0x0F
				c.F = (c.F & FlagC) | szyxpTable[c.A]
				c.elapsed += 4
			case 5: // RLD
				addr := c.HL()
				n := c.readByte(addr)
				c.writeByte(addr, n<<4|c.A&0x0F)
				c.A = c.A&0xF0 | n>>4
				c.F = (c.F & FlagC) | szyxpTable[c.A]
				c.elapsed += 4
			}
		}
		return
	}

	if x == 2 && y >= 4 {
		inc := y == 4 || y == 6
		repeat := y >= 6
		switch z {
		case 0:
			c.blockLoad(inc, repeat)
		case 1:
			c.blockCompare(inc, repeat)
		case 2:
			c.blockIn(inc, repeat)
		case 3:
			c.blockOut(inc, repeat)
		}
	}
}

// blockLoad implements LDI, LDD and their repeating forms.  A
// repeating form which would exceed the cycle budget rewinds PC by
// two so the next Emulate call re-enters the same instruction; P/V is
// left set because BC is still non-zero.
func (c *CPU) blockLoad(inc bool, repeat bool) {
	delta := uint16(1)
	if !inc {
		delta = 0xFFFF
	}

	for {
		n := c.readByte(c.HL())
		c.writeByte(c.DE(), n)
		c.SetHL(c.HL() + delta)
		c.SetDE(c.DE() + delta)
		bc := c.BC() - 1
		c.SetBC(bc)
		c.elapsed += 2

		t := n + c.A
		f := c.F & (FlagS | FlagZ | FlagC)
		f |= t & FlagX
		f |= (t << 4) & FlagY
		if bc != 0 {
			f |= FlagP
		}
		c.F = f

		if !repeat || bc == 0 {
			return
		}
		c.elapsed += 5
		if c.elapsed >= c.max {
			c.PC -= 2
			return
		}
	}
}

// blockCompare implements CPI, CPD and their repeating forms.
func (c *CPU) blockCompare(inc bool, repeat bool) {
	delta := uint16(1)
	if !inc {
		delta = 0xFFFF
	}

	for {
		n := c.readByte(c.HL())
		z := c.A - n
		cr := c.A ^ n ^ z
		h := cr & FlagH
		c.SetHL(c.HL() + delta)
		bc := c.BC() - 1
		c.SetBC(bc)
		c.elapsed += 5

		t := z
		if h != 0 {
			t--
		}
		f := FlagN | (c.F & FlagC) | (szyxTable[z] & (FlagS | FlagZ)) | h
		f |= t & FlagX
		f |= (t << 4) & FlagY
		if bc != 0 {
			f |= FlagP
		}
		c.F = f

		if !repeat || bc == 0 || z == 0 {
			return
		}
		c.elapsed += 5
		if c.elapsed >= c.max {
			c.PC -= 2
			return
		}
	}
}

// blockIn implements INI, IND and their repeating forms, with the
// undocumented flag behaviour.
func (c *CPU) blockIn(inc bool, repeat bool) {
	delta := uint16(1)
	cAdj := uint8(1)
	if !inc {
		delta = 0xFFFF
		cAdj = 0xFF
	}

	for {
		n := c.inPort(c.C)
		c.writeByte(c.HL(), n)
		c.B--
		c.SetHL(c.HL() + delta)
		c.elapsed++

		f := szyxTable[c.B]
		if n&0x80 != 0 {
			f |= FlagN
		}
		t := uint16(n) + uint16(c.C+cAdj)
		if t > 0xFF {
			f |= FlagH | FlagC
		}
		f |= szyxpTable[(uint8(t)&0x07)^c.B] & FlagP
		c.F = f

		if !repeat || c.B == 0 {
			return
		}
		c.elapsed += 5
		if c.elapsed >= c.max {
			c.PC -= 2
			return
		}
	}
}

// blockOut implements OUTI, OUTD and their repeating forms, with the
// undocumented flag behaviour.
func (c *CPU) blockOut(inc bool, repeat bool) {
	delta := uint16(1)
	if !inc {
		delta = 0xFFFF
	}

	for {
		n := c.readByte(c.HL())
		c.B--
		c.outPort(c.C, n)
		c.SetHL(c.HL() + delta)
		c.elapsed++

		f := szyxTable[c.B]
		if n&0x80 != 0 {
			f |= FlagN
		}
		t := uint16(n) + uint16(c.L)
		if t > 0xFF {
			f |= FlagH | FlagC
		}
		f |= szyxpTable[(uint8(t)&0x07)^c.B] & FlagP
		c.F = f

		if !repeat || c.B == 0 {
			return
		}
		c.elapsed += 5
		if c.elapsed >= c.max {
			c.PC -= 2
			return
		}
	}
}
