// Package adiv6 implements the ADIv6 (DPv3) side of debug discovery: the
// SELECT/SELECT1 extended addressing scheme, base pointer readout and the
// Component ID probe at the discovered root. It installs itself onto a
// generic DebugPort as its AP accessor, after which all AP traffic on that
// DP uses ADIv6 addressing.
//
// Reference: ARM Debug Interface v6 Architecture Specification, IHI0074.
package adiv6

import (
	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"blackmagic/adiv5"
)

// DP registers and fields introduced by DPv3. DPIDR1, BASEPTR0 and BASEPTR1
// all answer at address 0x0 on banks 1, 2 and 3 of the banked DP register
// space; SELECT1 shares address 0x4 with CTRL/STAT and is reachable only
// from bank 5.
const (
	regDPIDR1   uint16 = 0x0
	regBasePtr0 uint16 = 0x0
	regBasePtr1 uint16 = 0x0
	regSelect1  uint16 = 0x4

	dpidr1ASizeMask uint32 = 0x7f

	basePtrValid adiv5.TargetAddr64 = 1 << 0

	baseAddressMask adiv5.TargetAddr64 = 0xfffffffffffff000
)

// apBankMask picks the bank nibbles out of an APRegAddr-form address: the
// relocated offset bits [11:8] sitting at [15:12], and the in-place bits
// [7:4].
const apBankMask uint16 = 0xf0f0

var (
	// ErrNoValidBase reports a DP whose base pointer valid bit is clear.
	// Some targets genuinely have no debug component tree; this is an
	// expected discovery outcome, not a fault.
	ErrNoValidBase = errors.New("no valid base address on DP")

	// ErrBaseAddressRange reports a base pointer needing more address
	// bits than the DP negotiated. The DP is inconsistent and discovery
	// cannot be trusted.
	ErrBaseAddressRange = errors.New("base address outside DP addressing range")

	// ErrNotComponent reports a Component ID read that did not carry the
	// architectural preamble.
	ErrNotComponent = errors.New("no debug component at base address")

	// ErrUnsupportedClass reports a recognized component whose class has
	// no handler yet.
	ErrUnsupportedClass = errors.New("component class handling not implemented")
)

// DPInit runs ADIv6 discovery on a freshly connected DPv3 debug port: bind
// the ADIv6 accessor, negotiate the address bus width, validate the base
// pointer and probe the component tree root. The accessor stays bound even
// when discovery fails, so later AP traffic on the DP remains correctly
// addressed.
func DPInit(dp *adiv5.DebugPort) error {
	dp.SetAccessor(Access{})

	dpidr1, err := dp.ReadBanked(adiv5.DPBank1, regDPIDR1)
	if err != nil {
		return errors.Annotatef(err, "failed to read DPIDR1")
	}
	dp.AddressWidth = uint8(dpidr1 & dpidr1ASizeMask)
	glog.Infof("DP DPIDR1 0x%08x %d-bit addressing", dpidr1, dp.AddressWidth)
	// ASIZE is 7 bits, so a malformed DP can claim up to 127; nothing
	// above 64 is representable on the resource bus.
	if dp.AddressWidth == 0 || dp.AddressWidth > 64 {
		return errors.Annotatef(ErrBaseAddressRange, "unsupported %d-bit address bus", dp.AddressWidth)
	}

	base, err := readBaseAddress(dp)
	if err != nil {
		return errors.Trace(err)
	}
	if base&basePtrValid == 0 {
		glog.Infof("No valid base address on DP")
		return ErrNoValidBase
	}
	// The raw pointer, flag bits included, must fit the negotiated bus
	// width; a wider value means DP and base pointer disagree.
	if base&adiv5.AddrMask(dp.AddressWidth) != base {
		glog.Infof("Bad base address 0x%x on DP", uint64(base))
		return errors.Annotatef(ErrBaseAddressRange, "0x%x does not fit %d bits", uint64(base), dp.AddressWidth)
	}
	base &= baseAddressMask

	return errors.Trace(ComponentProbe(dp, base, 0))
}

// readBaseAddress combines the two halves of the 64-bit component base
// pointer. BASEPTR0 sits on bank 2, BASEPTR1 on bank 3. No validation
// happens here; the caller owns the valid bit and range checks.
func readBaseAddress(dp *adiv5.DebugPort) (adiv5.TargetAddr64, error) {
	lo, err := dp.ReadBanked(adiv5.DPBank2, regBasePtr0)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read BASEPTR0")
	}
	hi, err := dp.ReadBanked(adiv5.DPBank3, regBasePtr1)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read BASEPTR1")
	}
	return adiv5.TargetAddr64(lo) | adiv5.TargetAddr64(hi)<<32, nil
}

// readComponentID assembles the Component ID of the component fronted by
// ap. One select sequence positions the DP's window over the ID block, then
// the four lanes are read at successive word strides without re-selecting;
// only the low byte of each lane carries ID bits.
func readComponentID(ap *adiv5.AccessPort, offset uint16) (adiv5.ComponentID, error) {
	dp := ap.DP
	if err := dp.WriteBanked(adiv5.DPBank5, regSelect1, uint32(ap.Address>>32)); err != nil {
		return 0, errors.Trace(err)
	}
	if err := dp.WriteReg(adiv5.DPSelect, uint32(ap.Address)|uint32(offset&0x0ff0)); err != nil {
		return 0, errors.Trace(err)
	}
	var lanes [4]uint32
	for i := range lanes {
		value, err := dp.ReadReg(adiv5.APnDP | uint16(i<<2))
		if err != nil {
			return 0, errors.Annotatef(err, "failed to read CIDR%d", i)
		}
		lanes[i] = value
	}
	return adiv5.AssembleCID(lanes), nil
}

// ComponentProbe checks that a real debug component answers at base and
// hands it to class dispatch. entryNumber is the component's position in
// the enclosing ROM table, for diagnostics; the tree root is entry 0.
func ComponentProbe(dp *adiv5.DebugPort, base adiv5.TargetAddr64, entryNumber uint32) error {
	// A transient AP bound to the candidate base carries the address
	// through the ID reads. It is never registered anywhere.
	ap := dp.AP(base)

	cid, err := readComponentID(ap, adiv5.CIDR0Offset)
	if err != nil {
		return errors.Annotatef(err, "entry %d at 0x%x", entryNumber, uint64(base))
	}
	if !cid.Valid() {
		glog.Warningf("%d 0x%x: 0x%08x <- does not match preamble (0x%08x)",
			entryNumber, uint64(base), uint32(cid), adiv5.CIDPreamble)
		return errors.Annotatef(ErrNotComponent, "entry %d at 0x%x", entryNumber, uint64(base))
	}

	glog.Infof("%d 0x%x: %s", entryNumber, uint64(base), cid)
	// TODO: dispatch on cid.Class(), recursing through ROM tables and
	// registering leaf components.
	return errors.Annotatef(ErrUnsupportedClass, "entry %d at 0x%x is a %s", entryNumber, uint64(base), cid)
}

// Access is the ADIv6 AP addressing scheme: the AP's 64-bit address is
// spread across SELECT1 (upper word) and SELECT (lower word), with the bank
// nibbles of the register offset folded into SELECT bits [11:4]. SELECT1 is
// written first because it qualifies which physical AP the SELECT encoding
// refers to. Every access re-issues the full pair.
type Access struct{}

func (Access) ReadAPReg(ap *adiv5.AccessPort, addr uint16) (uint32, error) {
	if err := apSelect(ap, addr); err != nil {
		return 0, errors.Trace(err)
	}
	return ap.DP.ReadReg(addr)
}

func (Access) WriteAPReg(ap *adiv5.AccessPort, addr uint16, value uint32) error {
	if err := apSelect(ap, addr); err != nil {
		return errors.Trace(err)
	}
	return ap.DP.WriteReg(addr, value)
}

func apSelect(ap *adiv5.AccessPort, addr uint16) error {
	dp := ap.DP
	if err := dp.WriteBanked(adiv5.DPBank5, regSelect1, uint32(ap.Address>>32)); err != nil {
		return errors.Trace(err)
	}
	bank := addr & apBankMask
	sv := uint32(ap.Address) | uint32(bank&0xf000)>>4 | uint32(bank&0x00f0)
	return errors.Trace(dp.WriteReg(adiv5.DPSelect, sv))
}
