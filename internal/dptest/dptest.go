// Package dptest provides an in-memory debug port with scripted register
// contents, so discovery and access logic can be exercised without hardware.
// The fake models the DP side of the wire: banked DP registers, the
// SELECT/SELECT1 routing state and a flat AP register space addressed the
// way a DPv3 resolves accesses. ADIv5-style SELECT values resolve through
// the same path, since APSEL and the bank nibble occupy disjoint bits.
package dptest

// RegKey addresses one banked DP register: the register address plus the
// DPBANKSEL value it answers on.
type RegKey struct {
	Addr uint16
	Bank uint32
}

// Op records one raw register access in arrival order.
type Op struct {
	Write bool
	Addr  uint16
	Value uint32
}

// Canned DPIDR values for an ARM DPv3 and DPv2 (designer low bits 0x477,
// part 0x01, revision 2).
const (
	DPIDRv3 uint32 = 0x20103477
	DPIDRv2 uint32 = 0x20102477
)

// DP is the scripted debug port. It implements the register transport
// interface consumed by the discovery layers.
type DP struct {
	// DPRegs holds banked DP register contents keyed by address and bank.
	DPRegs map[RegKey]uint32

	// APMem is the AP register space keyed by resolved bus address:
	// SELECT1 and SELECT supply bits [63:4], the access address bits
	// [3:2].
	APMem map[uint64]uint32

	// Mem, when non-nil, emulates a MEM-AP data path on top of APMem:
	// resolved accesses whose low byte is 0x00/0x04/0x08/0x0c act as
	// CSW, TAR, TAR high and DRW, and DRW moves words of Mem at the
	// latched TAR. Auto-increment wraps inside the architectural 1KiB
	// region, as real APs do.
	Mem map[uint64]uint32

	// CSW is the emulated MEM-AP's control word. Script DeviceEn here
	// before opening the AP.
	CSW uint32

	// PowerACK makes CTRL/STAT reads acknowledge whatever power-up
	// requests were last written. Clear it to simulate a target that
	// never powers up.
	PowerACK bool

	// ReadFault, when set, is consulted before serving any read; a
	// non-nil return is surfaced as a transport failure.
	ReadFault func(addr uint16, bank uint32) error

	Select  uint32
	Select1 uint32
	tar     uint64

	// Ops is every access in order. Select1Hist is every value written
	// to SELECT1 (address 0x4 while bank 5 is selected), in order.
	Ops         []Op
	Select1Hist []uint32
}

func New() *DP {
	return &DP{
		DPRegs:   map[RegKey]uint32{},
		APMem:    map[uint64]uint32{},
		PowerACK: true,
	}
}

// SetDPReg scripts the value a banked DP register read returns.
func (d *DP) SetDPReg(bank uint32, addr uint16, value uint32) {
	d.DPRegs[RegKey{Addr: addr, Bank: bank}] = value
}

// SetAPReg scripts one AP register at its resolved bus address.
func (d *DP) SetAPReg(addr uint64, value uint32) {
	d.APMem[addr] = value
}

// SetComponent places a component ID block at base: each of the four lanes
// carries one ID byte in its low lane and junk above, so readers that take
// more than the low byte assemble garbage.
func (d *DP) SetComponent(base uint64, cid uint32) {
	for i := 0; i < 4; i++ {
		lane := (cid >> (8 * uint(i))) & 0xff
		d.APMem[base+0xff0+uint64(i)*4] = 0x00a5a500 | lane
	}
}

func (d *DP) bank() uint32 {
	return d.Select & 0xf
}

func (d *DP) apAddr(addr uint16) uint64 {
	return uint64(d.Select1)<<32 | uint64(d.Select&^0xf) | uint64(addr&0xc)
}

func (d *DP) apRead(addr uint16) uint32 {
	a := d.apAddr(addr)
	if d.Mem != nil {
		switch a & 0xff {
		case 0x00:
			return d.CSW
		case 0x04:
			return uint32(d.tar)
		case 0x08:
			return uint32(d.tar >> 32)
		case 0x0c:
			value := d.Mem[d.tar]
			d.postInc()
			return value
		}
	}
	return d.APMem[a]
}

func (d *DP) apWrite(addr uint16, value uint32) {
	a := d.apAddr(addr)
	if d.Mem != nil {
		switch a & 0xff {
		case 0x00:
			d.CSW = value
			return
		case 0x04:
			d.tar = d.tar&^0xffffffff | uint64(value)
			return
		case 0x08:
			d.tar = d.tar&0xffffffff | uint64(value)<<32
			return
		case 0x0c:
			d.Mem[d.tar] = value
			d.postInc()
			return
		}
	}
	d.APMem[a] = value
}

// postInc advances TAR after a DRW transfer when CSW requests increment.
// The address wraps inside the 1KiB auto-increment region, which is what
// forces block transfers to rewrite TAR at each boundary.
func (d *DP) postInc() {
	if d.CSW&0x10 != 0 {
		d.tar = d.tar&^0x3ff | (d.tar+4)&0x3ff
	}
}

func (d *DP) ReadReg(addr uint16) (uint32, error) {
	if d.ReadFault != nil {
		if err := d.ReadFault(addr, d.bank()); err != nil {
			return 0, err
		}
	}
	var value uint32
	if addr&0x100 != 0 {
		value = d.apRead(addr)
	} else {
		switch addr & 0xc {
		case 0x4:
			if d.bank() == 5 {
				value = d.Select1
				break
			}
			value = d.DPRegs[RegKey{Addr: 0x4, Bank: d.bank()}]
			if d.bank() == 0 && d.PowerACK {
				if value&0x10000000 != 0 {
					value |= 0x20000000
				}
				if value&0x40000000 != 0 {
					value |= 0x80000000
				}
			}
		case 0x8:
			value = d.Select
		default:
			value = d.DPRegs[RegKey{Addr: addr & 0xc, Bank: d.bank()}]
		}
	}
	d.Ops = append(d.Ops, Op{Addr: addr, Value: value})
	return value, nil
}

func (d *DP) WriteReg(addr uint16, value uint32) error {
	d.Ops = append(d.Ops, Op{Write: true, Addr: addr, Value: value})
	if addr&0x100 != 0 {
		d.apWrite(addr, value)
		return nil
	}
	switch addr & 0xc {
	case 0x0:
		// ABORT; sticky state is not modeled, the write is just
		// recorded.
	case 0x4:
		if d.bank() == 5 {
			d.Select1 = value
			d.Select1Hist = append(d.Select1Hist, value)
			break
		}
		d.DPRegs[RegKey{Addr: 0x4, Bank: d.bank()}] = value
	case 0x8:
		d.Select = value
	}
	return nil
}

// APReads returns how many AP-space reads the port has served.
func (d *DP) APReads() int {
	n := 0
	for _, op := range d.Ops {
		if !op.Write && op.Addr&0x100 != 0 {
			n++
		}
	}
	return n
}

// SelectWrites returns every value written to SELECT, in order.
func (d *DP) SelectWrites() []uint32 {
	var values []uint32
	for _, op := range d.Ops {
		if op.Write && op.Addr&0x100 == 0 && op.Addr&0xc == 0x8 {
			values = append(values, op.Value)
		}
	}
	return values
}

// APWrites returns every AP-space write in order, for tests that follow
// TAR and CSW traffic.
func (d *DP) APWrites() []Op {
	var ops []Op
	for _, op := range d.Ops {
		if op.Write && op.Addr&0x100 != 0 {
			ops = append(ops, op)
		}
	}
	return ops
}
