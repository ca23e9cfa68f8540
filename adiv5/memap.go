package adiv5

import (
	"github.com/cesanta/errors"
	"github.com/golang/glog"
)

// MemAP drives the memory window of a MEM-AP class access port: TAR holds
// the target address, DRW moves one word per transfer. All transfers here
// are word sized and word aligned; narrow lane handling is the caller's
// concern.
type MemAP struct {
	*AccessPort

	// csw holds the AP's reset CSW with the size and increment fields
	// cleared; each transfer ORs in what it needs.
	csw uint32
}

// NewMemAP configures an access port for memory traffic. Fails if debug
// access to the bus is disabled (CSW.DeviceEn clear), which on most parts
// means the debug domain is not powered or the AP is firewalled.
func NewMemAP(ap *AccessPort) (*MemAP, error) {
	csw, err := ap.ReadReg(APCSW)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read CSW of %s", ap)
	}
	if csw&CSWDeviceEn == 0 {
		return nil, errors.Errorf("%s is disabled (CSW 0x%08x)", ap, csw)
	}
	return &MemAP{
		AccessPort: ap,
		csw:        csw &^ (CSWSizeMask | CSWAddrIncMask),
	}, nil
}

// setup points the AP at a target address for the next DRW transfer. TAR's
// upper word is only written on DPs that negotiated a bus wider than 32
// bits; v5 MEM-APs have no TAR high register to write.
func (m *MemAP) setup(addr TargetAddr64, csw uint32) error {
	if err := m.WriteReg(APCSW, m.csw|csw); err != nil {
		return errors.Trace(err)
	}
	if m.DP.AddressWidth > 32 {
		if err := m.WriteReg(APTARHigh, uint32(addr>>32)); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(m.WriteReg(APTAR, uint32(addr)))
}

// ReadWord reads one aligned 32-bit word of target memory.
func (m *MemAP) ReadWord(addr TargetAddr64) (uint32, error) {
	if addr&3 != 0 {
		return 0, errors.Errorf("unaligned word read at 0x%x", uint64(addr))
	}
	if err := m.setup(addr, CSWSizeWord); err != nil {
		return 0, errors.Trace(err)
	}
	value, err := m.ReadReg(APDRW)
	if err != nil {
		return 0, errors.Annotatef(err, "read fault at 0x%x", uint64(addr))
	}
	glog.V(4).Infof("mem[0x%x] == 0x%08x", uint64(addr), value)
	return value, nil
}

// WriteWord writes one aligned 32-bit word of target memory.
func (m *MemAP) WriteWord(addr TargetAddr64, value uint32) error {
	if addr&3 != 0 {
		return errors.Errorf("unaligned word write at 0x%x", uint64(addr))
	}
	if err := m.setup(addr, CSWSizeWord); err != nil {
		return errors.Trace(err)
	}
	glog.V(4).Infof("mem[0x%x] = 0x%08x", uint64(addr), value)
	return errors.Annotatef(m.WriteReg(APDRW, value), "write fault at 0x%x", uint64(addr))
}

// ReadBlock32 reads len(dst) consecutive words starting at addr using TAR
// auto-increment. Increment is only guaranteed within a 1KiB region, so TAR
// is rewritten at each boundary crossing.
func (m *MemAP) ReadBlock32(addr TargetAddr64, dst []uint32) error {
	if addr&3 != 0 {
		return errors.Errorf("unaligned block read at 0x%x", uint64(addr))
	}
	if err := m.setup(addr, CSWSizeWord|CSWAddrIncSingle); err != nil {
		return errors.Trace(err)
	}
	for i := range dst {
		if i > 0 && addr&(tarIncrementBound-1) == 0 {
			if err := m.setup(addr, CSWSizeWord|CSWAddrIncSingle); err != nil {
				return errors.Trace(err)
			}
		}
		value, err := m.ReadReg(APDRW)
		if err != nil {
			return errors.Annotatef(err, "read fault at 0x%x", uint64(addr))
		}
		dst[i] = value
		addr += 4
	}
	return nil
}

// WriteBlock32 writes the words of src to consecutive addresses starting at
// addr.
func (m *MemAP) WriteBlock32(addr TargetAddr64, src []uint32) error {
	if addr&3 != 0 {
		return errors.Errorf("unaligned block write at 0x%x", uint64(addr))
	}
	if err := m.setup(addr, CSWSizeWord|CSWAddrIncSingle); err != nil {
		return errors.Trace(err)
	}
	for i, value := range src {
		if i > 0 && addr&(tarIncrementBound-1) == 0 {
			if err := m.setup(addr, CSWSizeWord|CSWAddrIncSingle); err != nil {
				return errors.Trace(err)
			}
		}
		if err := m.WriteReg(APDRW, value); err != nil {
			return errors.Annotatef(err, "write fault at 0x%x", uint64(addr))
		}
		addr += 4
	}
	return nil
}

// Base returns the AP's debug component base address from its BASE register,
// and whether the register declares it present and valid. The low bits of
// BASE carry format and presence flags, not address bits.
func (m *MemAP) Base() (TargetAddr64, bool, error) {
	base, err := m.ReadReg(APBase)
	if err != nil {
		return 0, false, errors.Annotatef(err, "failed to read BASE of %s", m.AccessPort)
	}
	// 0xffffffff is the legacy "no debug entries" code; bit 0 is the
	// present flag in the current format.
	if base == 0xffffffff || base&1 == 0 {
		return 0, false, nil
	}
	return TargetAddr64(base) &^ 0xfff, true, nil
}
