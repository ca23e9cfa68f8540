package adiv5

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/cesanta/errors"
	"github.com/golang/glog"
)

// RegIO performs raw DP and AP register accesses, one blocking transport
// round trip per call. addr is a bare DP register address or an AP register
// address in APRegAddr form; implementations derive the wire request from
// the APnDP bit and addr bits [3:2]. Callers must serialize access per DP:
// the transport holds live bank-select state and interleaving two callers'
// select/access pairs corrupts both.
type RegIO interface {
	ReadReg(addr uint16) (uint32, error)
	WriteReg(addr uint16, value uint32) error
}

// APAccess translates an AP register access into the bank-select writes and
// raw transfer appropriate for the DP's ADI version. The ADIv5 variant packs
// APSEL into SELECT bits [31:24]; the ADIv6 variant spreads the AP's 64-bit
// base address across SELECT1/SELECT. Each call re-issues the full select
// sequence so calls on different APs of one DP may be freely interleaved
// (but not run concurrently).
type APAccess interface {
	ReadAPReg(ap *AccessPort, addr uint16) (uint32, error)
	WriteAPReg(ap *AccessPort, addr uint16, value uint32) error
}

// DebugPort is one debug port on a target, bound to its transport for the
// life of the session.
type DebugPort struct {
	io RegIO
	ap APAccess

	// IDR is the raw DPIDR value read by Connect.
	IDR DPIDRValue

	// AddressWidth is the width in bits of the DP's internal address bus.
	// Learned from DPIDR1 on DPv3 parts; zero means "not negotiated" and
	// address validity checks treat the bus as 32-bit.
	AddressWidth uint8

	probed   bitmap.Bitmap
	aps      []*AccessPort
	scanDone bool
}

// NewDebugPort wraps a transport in a DebugPort. The AP accessor defaults
// to the ADIv5 scheme; DPv3 initialization swaps in the ADIv6 one.
func NewDebugPort(io RegIO) *DebugPort {
	return &DebugPort{
		io:     io,
		ap:     V5Access{},
		probed: bitmap.New(apselLimit),
	}
}

// SetAccessor replaces the AP accessor strategy. Called once, during DP
// initialization, before any AP traffic.
func (dp *DebugPort) SetAccessor(ap APAccess) {
	dp.ap = ap
}

// ReadReg reads a raw DP or AP register. Bank selection is the caller's
// business; see ReadBanked for the common select-then-read pair.
func (dp *DebugPort) ReadReg(addr uint16) (uint32, error) {
	value, err := dp.io.ReadReg(addr)
	if err != nil {
		return 0, errors.Trace(err)
	}
	glog.V(4).Infof("%s == 0x%08x", regName(addr, false), value)
	return value, nil
}

// WriteReg writes a raw DP or AP register.
func (dp *DebugPort) WriteReg(addr uint16, value uint32) error {
	glog.V(4).Infof("%s = 0x%08x", regName(addr, true), value)
	return errors.Trace(dp.io.WriteReg(addr, value))
}

// ReadBanked selects a DP register bank and reads one register from it as a
// single step. The SELECT write clears APSEL and APBANKSEL; banked DP reads
// never coexist with an in-progress AP transfer.
func (dp *DebugPort) ReadBanked(bank uint32, addr uint16) (uint32, error) {
	if err := dp.WriteReg(DPSelect, bank&SelectDPBankMask); err != nil {
		return 0, errors.Trace(err)
	}
	return dp.ReadReg(addr)
}

// WriteBanked selects a DP register bank and writes one register in it.
func (dp *DebugPort) WriteBanked(bank uint32, addr uint16, value uint32) error {
	if err := dp.WriteReg(DPSelect, bank&SelectDPBankMask); err != nil {
		return errors.Trace(err)
	}
	return dp.WriteReg(addr, value)
}

// Each poll of CTRL/STAT is a full transport round trip, so the retry count
// bounds the wait at a few hundred milliseconds on a serial link.
const powerUpRetries = 250

// Connect identifies the DP and powers up the debug domain. On return the
// DP is ready for AP traffic or for DPv3 discovery.
func (dp *DebugPort) Connect() error {
	idr, err := dp.ReadReg(DPIDR)
	if err != nil {
		return errors.Annotatef(err, "failed to read DPIDR")
	}
	// All-zeroes and all-ones are line conditions, not identification
	// codes: nothing is driving the bus, or it is stuck high.
	if idr == 0 || idr == 0xffffffff {
		return errors.Errorf("no DP present (DPIDR 0x%08x)", idr)
	}
	dp.IDR = DPIDRValue(idr)
	glog.Infof("DPIDR 0x%08x (designer %s, DPv%d%s, partno 0x%02x rev %d)",
		idr, dp.IDR.Designer(), dp.IDR.Version(), minDPTag(dp.IDR), dp.IDR.PartNo(), dp.IDR.Revision())

	if err := dp.WriteReg(DPAbort, AbortStickyClears); err != nil {
		return errors.Annotatef(err, "failed to clear sticky errors")
	}
	// Known select state: bank 0, AP 0.
	if err := dp.WriteReg(DPSelect, 0); err != nil {
		return errors.Trace(err)
	}
	return dp.PowerUp()
}

// PowerUp requests debug and system power and waits for both acknowledges.
func (dp *DebugPort) PowerUp() error {
	const req = CtrlStatCDbgPwrUpReq | CtrlStatCSysPwrUpReq
	const ack = CtrlStatCDbgPwrUpAck | CtrlStatCSysPwrUpAck
	if err := dp.WriteReg(DPCtrlStat, req); err != nil {
		return errors.Annotatef(err, "failed to write CTRL/STAT")
	}
	for i := 0; i < powerUpRetries; i++ {
		stat, err := dp.ReadReg(DPCtrlStat)
		if err != nil {
			return errors.Annotatef(err, "failed to read CTRL/STAT")
		}
		if stat&ack == ack {
			return nil
		}
	}
	return errors.Errorf("timeout waiting for debug power-up ack")
}

// DPIDRValue decodes the fields of the DPIDR identification register.
type DPIDRValue uint32

// Designer returns the DP designer in JEP106 (continuation << 8 | code)
// form. DPIDR carries the continuation count in bits [11:8] and the 7-bit
// identity code in bits [7:1].
func (v DPIDRValue) Designer() Designer {
	d := (uint16(v) >> 1) & 0x7ff
	return Designer((d&0x780)<<1 | d&0x7f)
}

// Version returns the DP architecture version: 1 and 2 are ADIv5, 3 is
// ADIv6.
func (v DPIDRValue) Version() uint8 {
	return uint8((v >> 12) & 0xf)
}

// MinDP reports whether the DP implements the minimal (MINDP) function set.
func (v DPIDRValue) MinDP() bool {
	return (v>>16)&1 != 0
}

// PartNo returns the designer-assigned part number.
func (v DPIDRValue) PartNo() uint8 {
	return uint8((v >> 20) & 0xff)
}

// Revision returns the designer-assigned revision.
func (v DPIDRValue) Revision() uint8 {
	return uint8(v >> 28)
}

func minDPTag(v DPIDRValue) string {
	if v.MinDP() {
		return " MINDP"
	}
	return ""
}

func regName(addr uint16, write bool) string {
	if addr&APnDP != 0 {
		// Undo the APRegAddr relocation for the trace.
		return fmt.Sprintf("AP+0x%03x", addr&0x00ff|(addr>>4)&0x0f00)
	}
	switch addr & 0xc {
	case 0x0:
		if write {
			return "ABORT"
		}
		return "DPIDR"
	case 0x4:
		return "CTRL/STAT"
	case 0x8:
		return "SELECT"
	default:
		return "RDBUFF"
	}
}
