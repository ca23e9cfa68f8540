// Package adiv5 implements the generic ARM Debug Interface Debug Port and
// Access Port model shared by ADIv5 and ADIv6 targets. A DebugPort owns the
// raw register transport and an AP accessor strategy; the adiv6 package
// installs its own strategy on DPv3 parts.
package adiv5

// TargetAddr64 is a 64-bit address on the DP's internal bus or in target
// memory. ADIv6 component base addresses use the full width; ADIv5 AP
// selectors occupy bits [31:24] only.
type TargetAddr64 uint64

// AddrMask returns a mask covering the low bits of an address bus of the
// given width. Widths of 64 and above saturate to all ones.
func AddrMask(bits uint8) TargetAddr64 {
	if bits >= 64 {
		return ^TargetAddr64(0)
	}
	return (TargetAddr64(1) << bits) - 1
}

// APnDP marks a register address as an Access Port register. The transport
// uses it to drive the APnDP bit of the wire request; bits [3:2] select the
// register within the active bank window.
const APnDP uint16 = 0x100

// Debug Port register addresses. DPIDR and ABORT share address 0x0 (read
// versus write); CTRLSTAT sits on bank 0 and TARGETID on bank 2 of the same
// address.
const (
	DPIDR      uint16 = 0x0
	DPAbort    uint16 = 0x0
	DPCtrlStat uint16 = 0x4
	DPTargetID uint16 = 0x4
	DPSelect   uint16 = 0x8
	DPRdBuff   uint16 = 0xC
)

// DP bank numbers, written to the SELECT DPBANKSEL nibble.
const (
	DPBank0 uint32 = 0
	DPBank1 uint32 = 1
	DPBank2 uint32 = 2
	DPBank3 uint32 = 3
	DPBank4 uint32 = 4
	DPBank5 uint32 = 5
)

// CTRL/STAT fields.
const (
	CtrlStatCSysPwrUpAck uint32 = 1 << 31
	CtrlStatCSysPwrUpReq uint32 = 1 << 30
	CtrlStatCDbgPwrUpAck uint32 = 1 << 29
	CtrlStatCDbgPwrUpReq uint32 = 1 << 28
	CtrlStatCDbgRstAck   uint32 = 1 << 27
	CtrlStatCDbgRstReq   uint32 = 1 << 26
	CtrlStatStickyErr    uint32 = 1 << 5
	CtrlStatStickyCmp    uint32 = 1 << 4
	CtrlStatStickyOrun   uint32 = 1 << 1
)

// ABORT fields. AbortStickyClears clears every sticky error flag in one
// write.
const (
	AbortDAPAbort     uint32 = 1 << 0
	AbortStkCmpClr    uint32 = 1 << 1
	AbortStkErrClr    uint32 = 1 << 2
	AbortWDErrClr     uint32 = 1 << 3
	AbortOrunErrClr   uint32 = 1 << 4
	AbortStickyClears uint32 = AbortStkCmpClr | AbortStkErrClr | AbortWDErrClr | AbortOrunErrClr
)

// APRegAddr encodes a 12-bit AP register offset into the 16-bit register
// address form used throughout this module: bits [7:0] carry the low byte of
// the offset, bit 8 is the APnDP flag, and offset bits [11:8] are relocated
// to bits [15:12] so they cannot collide with the flag. The ADIv6 accessor
// relies on this exact placement when it folds the bank nibbles into SELECT.
func APRegAddr(offset uint16) uint16 {
	return APnDP | (offset & 0x00ff) | ((offset & 0x0f00) << 4)
}

// MEM-AP register addresses at their ADIv6 offsets within the 4KiB AP
// region, in APRegAddr form. The ADIv5 accessor masks off the relocated high
// nibble, so the same constants address a v5 MEM-AP's classic 8-bit register
// file.
const (
	APCSW     uint16 = 0xD100 // offset 0xD00
	APTAR     uint16 = 0xD104 // offset 0xD04
	APTARHigh uint16 = 0xD108 // offset 0xD08
	APDRW     uint16 = 0xD10C // offset 0xD0C
	APBD0     uint16 = 0xD110 // offset 0xD10
	APBD1     uint16 = 0xD114 // offset 0xD14
	APBD2     uint16 = 0xD118 // offset 0xD18
	APBD3     uint16 = 0xD11C // offset 0xD1C
	APCFG     uint16 = 0xD1F4 // offset 0xDF4
	APBase    uint16 = 0xD1F8 // offset 0xDF8
	APIDR     uint16 = 0xD1FC // offset 0xDFC
)

// MEM-AP CSW fields.
const (
	CSWSizeByte      uint32 = 0x0
	CSWSizeHalfword  uint32 = 0x1
	CSWSizeWord      uint32 = 0x2
	CSWSizeMask      uint32 = 0x7
	CSWAddrIncSingle uint32 = 1 << 4
	CSWAddrIncMask   uint32 = 0x30
	CSWDeviceEn      uint32 = 1 << 6
	CSWTrInProg      uint32 = 1 << 7
	CSWProtDefault   uint32 = 0x23000000
	CSWDbgSwEnable   uint32 = 1 << 31
)

// ADIv5 SELECT register layout: APSEL in [31:24], APBANKSEL in [7:4],
// DPBANKSEL in [3:0].
const (
	SelectAPSELMask  uint32 = 0xff000000
	SelectAPBankMask uint32 = 0x000000f0
	SelectDPBankMask uint32 = 0x0000000f
)

// MEM-AP TAR auto-increment is only architecturally guaranteed within a
// 10-bit region; block transfers rewrite TAR at each boundary.
const tarIncrementBound = 0x400
