package adiv5

import (
	"fmt"

	"github.com/cesanta/errors"
	"github.com/golang/glog"
)

// The ADIv5 APSEL field is 8 bits wide.
const apselLimit = 256

// Implemented APs are required to be contiguous from zero, but a few designs
// leave holes, so the scan only stops after a run of empty slots.
const apEmptyRunLimit = 4

// AccessPort is one access port on a DP's internal bus. For ADIv5 ports
// Address is APSEL << 24; for ADIv6 ports it is the component's 64-bit base
// address. Only the DebugPort constructors build these, so every AccessPort
// carries the representation its DP's accessor expects.
type AccessPort struct {
	DP      *DebugPort
	Address TargetAddr64
	IDR     APIDRValue
}

// AP returns a handle to the access port at the given address on the DP's
// internal bus. No wire traffic happens until the handle is used.
func (dp *DebugPort) AP(address TargetAddr64) *AccessPort {
	return &AccessPort{DP: dp, Address: address}
}

// ReadReg reads an AP register through the DP's accessor. addr must be in
// APRegAddr form. The accessor re-issues the full bank-select sequence, so
// the call is self-contained.
func (a *AccessPort) ReadReg(addr uint16) (uint32, error) {
	return a.DP.ap.ReadAPReg(a, addr)
}

// WriteReg writes an AP register through the DP's accessor.
func (a *AccessPort) WriteReg(addr uint16, value uint32) error {
	return a.DP.ap.WriteAPReg(a, addr, value)
}

func (a *AccessPort) String() string {
	return fmt.Sprintf("AP@0x%x", uint64(a.Address))
}

// EnumerateAPs scans the ADIv5 APSEL space and returns the populated access
// ports in ascending order. The scan ends after apEmptyRunLimit consecutive
// empty slots. A completed scan is cached; a scan cut short by a transport
// error resumes past the slots already probed.
func (dp *DebugPort) EnumerateAPs() ([]*AccessPort, error) {
	if dp.scanDone {
		return dp.aps, nil
	}
	emptyRun := 0
	for apsel := 0; apsel < apselLimit && emptyRun < apEmptyRunLimit; apsel++ {
		if dp.probed.Get(apsel) {
			continue
		}
		ap, err := dp.probeAP(uint8(apsel))
		if err != nil {
			return nil, errors.Trace(err)
		}
		dp.probed.Set(apsel, true)
		if ap == nil {
			emptyRun++
			continue
		}
		emptyRun = 0
		dp.aps = append(dp.aps, ap)
	}
	dp.scanDone = true
	return dp.aps, nil
}

// probeAP reads the IDR at an APSEL slot. An IDR of zero means no AP is
// implemented there and reports nil without error.
func (dp *DebugPort) probeAP(apsel uint8) (*AccessPort, error) {
	ap := dp.AP(TargetAddr64(apsel) << 24)
	idr, err := ap.ReadReg(APIDR)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read IDR of AP %d", apsel)
	}
	if idr == 0 {
		return nil, nil
	}
	ap.IDR = APIDRValue(idr)
	glog.Infof("AP %3d: IDR=0x%08x (%s)", apsel, idr, ap.IDR)
	return ap, nil
}

// APIDRValue decodes the fields of an AP IDR register.
type APIDRValue uint32

// AP IDR classes.
const (
	APClassJTAG  uint8 = 0x0
	APClassMemAP uint8 = 0x8
)

// Designer returns the AP designer in JEP106 form, from the continuation
// count in bits [27:24] and the identity code in bits [23:17].
func (v APIDRValue) Designer() Designer {
	d := uint16(v>>17) & 0x7ff
	return Designer((d&0x780)<<1 | d&0x7f)
}

func (v APIDRValue) Revision() uint8 {
	return uint8(v >> 28)
}

func (v APIDRValue) Class() uint8 {
	return uint8((v >> 13) & 0xf)
}

func (v APIDRValue) Variant() uint8 {
	return uint8((v >> 4) & 0xf)
}

func (v APIDRValue) Type() uint8 {
	return uint8(v & 0xf)
}

// Names for the MEM-AP bus types of IDR.TYPE.
var memAPTypes = map[uint8]string{
	0x1: "AHB3-AP",
	0x2: "APB2/3-AP",
	0x4: "AXI3/4-AP",
	0x5: "AHB5-AP",
	0x6: "APB4/5-AP",
	0x7: "AXI5-AP",
	0x8: "AHB5-AP+HPROT",
}

func (v APIDRValue) String() string {
	name := "unknown AP"
	switch v.Class() {
	case APClassMemAP:
		name = "MEM-AP"
		if n, ok := memAPTypes[v.Type()]; ok {
			name = n
		}
	case APClassJTAG:
		if v.Type() == 0 {
			name = "JTAG-AP"
		}
	}
	return fmt.Sprintf("%s var%d rev%d, designer %s", name, v.Variant(), v.Revision(), v.Designer())
}
